package services

import (
	"context"
	"time"

	domain "github.com/farmconnect/marketplace/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Crop               = domain.Crop
	Order              = domain.Order
	OrderStatus        = domain.OrderStatus
	Notification       = domain.Notification
	NotificationData   = domain.NotificationData
	DuplicateGroup     = domain.DuplicateGroup
	Location           = domain.Location
	SystemHealthReport = domain.SystemHealthReport
)

// OrderService owns the order lifecycle: placement, status transitions and their side effects.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
	UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	GetOrder(ctx context.Context, actorID, orderID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) ([]Order, error)
}

// CropService publishes farmer listings and serves them to buyers.
type CropService interface {
	CreateCrop(ctx context.Context, cmd CreateCropCommand) (Crop, error)
	GetCrop(ctx context.Context, cropID string) (Crop, error)
}

// Notifier delivers a single inbox notification.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) (Notification, error)
}

// NotificationService exposes the user inbox on top of Notifier.
type NotificationService interface {
	Notifier
	NotifyContractCreated(ctx context.Context, notice ContractCreatedNotice) (Notification, error)
	NotifyContractResponse(ctx context.Context, notice ContractResponseNotice) (Notification, error)
	NotifyMessageReceived(ctx context.Context, notice MessageReceivedNotice) (Notification, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]Notification, error)
	MarkAsRead(ctx context.Context, userID, notificationID string) error
	MarkAllAsRead(ctx context.Context, userID string) (int, error)
	Subscribe(ctx context.Context, userID string) (<-chan Notification, error)
}

// CropRemovalService finalises crops whose delayed removal is due.
type CropRemovalService interface {
	SweepDue(ctx context.Context) (SweepReport, error)
}

// DuplicateReconciler finds and removes orders that share a fingerprint.
type DuplicateReconciler interface {
	FindDuplicates(ctx context.Context) ([]DuplicateGroup, error)
	RemoveDuplicates(ctx context.Context, groups []DuplicateGroup, keepMostRecent bool) (int, error)
	Cleanup(ctx context.Context, opts CleanupOptions) (CleanupReport, error)
}

// SystemService reports dependency health.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// PlaceOrderCommand carries a buyer's purchase request.
type PlaceOrderCommand struct {
	BuyerID         string
	BuyerName       string
	CropID          string
	Quantity        float64
	DeliveryDate    *time.Time
	Notes           string
	DeliveryAddress string
}

// CreateCropCommand carries a farmer's new listing.
type CreateCropCommand struct {
	FarmerID       string
	FarmerName     string
	CropName       string
	Variety        string
	Quantity       float64
	Unit           string
	PricePerUnit   float64
	IsOrganic      bool
	HarvestDate    time.Time
	ExpiryDate     time.Time
	Location       Location
	Images         []string
	Description    string
	Certifications []string
}

// UpdateOrderStatusCommand carries a farmer's status change request.
type UpdateOrderStatusCommand struct {
	ActorID string
	OrderID string
	Status  OrderStatus
}

// OrderListRole selects which side of the order the caller is on.
type OrderListRole string

const (
	OrderListRoleBuyer  OrderListRole = "buyer"
	OrderListRoleFarmer OrderListRole = "farmer"
)

// OrderListFilter scopes an order listing to the caller.
type OrderListFilter struct {
	ActorID string
	Role    OrderListRole
	Limit   int
}

// ContractCreatedNotice describes a new contract request for a farmer.
type ContractCreatedNotice struct {
	FarmerID   string
	BuyerID    string
	BuyerName  string
	ContractID string
	CropType   string
}

// ContractResponseNotice describes a farmer's offer on a buyer's contract.
type ContractResponseNotice struct {
	BuyerID      string
	FarmerID     string
	FarmerName   string
	ContractID   string
	CropType     string
	PricePerUnit float64
}

// MessageReceivedNotice describes a chat message for its recipient.
type MessageReceivedNotice struct {
	RecipientID string
	SenderName  string
	ChatRoomID  string
}

// SweepReport summarises one crop removal sweep.
type SweepReport struct {
	Scanned int
	Removed int
	Failed  int
}

// CleanupOptions controls a reconciler run.
type CleanupOptions struct {
	// KeepMostRecent keeps the newest order of each group instead of the first scanned.
	KeepMostRecent bool
	DryRun         bool
}

// CleanupReport summarises a reconciler run.
type CleanupReport struct {
	GroupsFound     int       `json:"groupsFound"`
	DuplicatesFound int       `json:"duplicatesFound"`
	Deleted         int       `json:"deleted"`
	Failed          int       `json:"failed"`
	RemainingGroups int       `json:"remainingGroups"`
	DryRun          bool      `json:"dryRun"`
	StartedAt       time.Time `json:"startedAt"`
	FinishedAt      time.Time `json:"finishedAt"`
	ReportObject    string    `json:"reportObject,omitempty"`
}
