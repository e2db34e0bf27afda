// Package mongo implements the marketplace repositories on MongoDB.
package mongo

import (
	"context"
	"time"

	"github.com/farmconnect/marketplace/internal/platform/mongodb"
	"github.com/farmconnect/marketplace/internal/repositories"
)

// Registry wires the MongoDB repositories around a shared provider.
type Registry struct {
	provider      *mongodb.Provider
	crops         *CropRepository
	orders        *OrderRepository
	notifications *NotificationRepository
	health        repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs the repositories. extraChecks are appended to the MongoDB check.
func NewRegistry(provider *mongodb.Provider, extraChecks ...repositories.DependencyCheck) (*Registry, error) {
	crops, err := NewCropRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	notifications, err := NewNotificationRepository(provider)
	if err != nil {
		return nil, err
	}
	checks := append([]repositories.DependencyCheck{{
		Name:    "mongodb",
		Timeout: 2 * time.Second,
		Check:   provider.Ping,
	}}, extraChecks...)
	health, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}
	return &Registry{
		provider:      provider,
		crops:         crops,
		orders:        orders,
		notifications: notifications,
		health:        health,
	}, nil
}

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

func (r *Registry) Crops() repositories.CropRepository { return r.crops }

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) Notifications() repositories.NotificationRepository { return r.notifications }

func (r *Registry) Health() repositories.HealthRepository { return r.health }
