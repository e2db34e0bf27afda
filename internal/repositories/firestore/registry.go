// Package firestore implements the marketplace repositories on Cloud Firestore.
package firestore

import (
	"context"
	"time"

	pfirestore "github.com/farmconnect/marketplace/internal/platform/firestore"
	"github.com/farmconnect/marketplace/internal/repositories"
)

// Registry wires the Firestore repositories around a shared provider.
type Registry struct {
	provider      *pfirestore.Provider
	crops         *CropRepository
	orders        *OrderRepository
	notifications *NotificationRepository
	health        repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs the repositories. extraChecks are appended to the Firestore check.
func NewRegistry(provider *pfirestore.Provider, extraChecks ...repositories.DependencyCheck) (*Registry, error) {
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
		Name:    "firestore",
		Timeout: 2 * time.Second,
		Check: func(ctx context.Context) error {
			return provider.Ping(ctx, ordersCollection)
		},
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
