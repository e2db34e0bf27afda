// Package memory provides mutex-guarded repositories used by tests and local development.
package memory

import (
	"context"

	domain "github.com/farmconnect/marketplace/internal/domain"
	"github.com/farmconnect/marketplace/internal/repositories"
)

// Registry bundles the in-memory repositories behind repositories.Registry.
type Registry struct {
	crops         *CropRepository
	orders        *OrderRepository
	notifications *NotificationRepository
	health        repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs empty repositories. extraChecks are appended to the always-healthy
// memory check.
func NewRegistry(extraChecks ...repositories.DependencyCheck) *Registry {
	checks := append([]repositories.DependencyCheck{{
		Name:  "memory",
		Check: func(context.Context) error { return nil },
	}}, extraChecks...)
	health, _ := repositories.NewDependencyHealthRepository(checks)
	return &Registry{
		crops:         NewCropRepository(),
		orders:        NewOrderRepository(),
		notifications: NewNotificationRepository(),
		health:        health,
	}
}

func (r *Registry) Close(context.Context) error { return nil }

func (r *Registry) Crops() repositories.CropRepository { return r.crops }

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) Notifications() repositories.NotificationRepository { return r.notifications }

func (r *Registry) Health() repositories.HealthRepository { return r.health }

// Seed inserts crops verbatim, keeping their identifiers.
func (r *Registry) Seed(crops ...domain.Crop) {
	r.crops.mu.Lock()
	defer r.crops.mu.Unlock()
	for _, crop := range crops {
		r.crops.items[crop.ID] = crop
	}
}
