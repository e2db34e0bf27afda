package repositories

import (
	"context"
	"time"

	domain "github.com/farmconnect/marketplace/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Crops() CropRepository
	Orders() OrderRepository
	Notifications() NotificationRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CropRepository persists crop listings and performs the conditional stock mutations.
type CropRepository interface {
	Insert(ctx context.Context, crop domain.Crop) (domain.Crop, error)
	Get(ctx context.Context, cropID string) (domain.Crop, error)
	// DecrementStock subtracts quantity only when at least that much stock remains, as one
	// atomic step. When the remaining quantity reaches zero the listing becomes sold.
	// A lost race is reported as a StockError with StockErrorInsufficient.
	DecrementStock(ctx context.Context, cropID string, quantity float64, now time.Time) (domain.Crop, error)
	// RestoreStock atomically adds quantity back and returns a sold listing to available.
	RestoreStock(ctx context.Context, cropID string, quantity float64, now time.Time) (domain.Crop, error)
	MarkSoldOut(ctx context.Context, cropID, orderID string, soldOutAt, runAfter time.Time) error
	ListDueForRemoval(ctx context.Context, now time.Time, limit int) ([]domain.Crop, error)
	MarkDeleted(ctx context.Context, cropID string, deletedAt time.Time) error
}

// OrderListFilter narrows order listings to a single participant.
type OrderListFilter struct {
	BuyerID  string
	FarmerID string
	Limit    int
}

// OrderRepository persists orders.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// UpdateStatus writes next only when the stored status still equals expected.
	// A mismatch is reported as a conflict RepositoryError.
	UpdateStatus(ctx context.Context, orderID string, expected, next domain.OrderStatus, updatedAt time.Time) (domain.Order, error)
	// ListAll scans every order in store order.
	ListAll(ctx context.Context) ([]domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) ([]domain.Order, error)
	Delete(ctx context.Context, orderID string) error
}

// NotificationRepository stores user inbox entries.
type NotificationRepository interface {
	Insert(ctx context.Context, notification domain.Notification) error
	// ListByUser returns the newest notifications first.
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
	// Subscribe streams notifications inserted for the user after the call. The channel is
	// closed once ctx is done or the underlying watch fails.
	Subscribe(ctx context.Context, userID string) (<-chan domain.Notification, error)
}

// HealthRepository collects dependency health information for readiness endpoints.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
