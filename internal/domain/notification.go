package domain

import "time"

// NotificationType enumerates the inbox message kinds.
type NotificationType string

const (
	NotificationOrderPlaced      NotificationType = "order_placed"
	NotificationOrderConfirmed   NotificationType = "order_confirmed"
	NotificationOrderShipped     NotificationType = "order_shipped"
	NotificationOrderDelivered   NotificationType = "order_delivered"
	NotificationOrderCancelled   NotificationType = "order_cancelled"
	NotificationContractCreated  NotificationType = "contract_created"
	NotificationContractResponse NotificationType = "contract_response"
	NotificationMessageReceived  NotificationType = "message_received"
)

// OrderNotificationType maps an order status to its notification type.
func OrderNotificationType(status OrderStatus) NotificationType {
	return NotificationType("order_" + string(status))
}

// NotificationData carries correlation identifiers for the client.
type NotificationData struct {
	OrderID    string
	ContractID string
	ChatRoomID string
	BuyerID    string
	BuyerName  string
	FarmerID   string
	FarmerName string
	CropID     string
	CropName   string
	Amount     *float64
}

// Notification is a single inbox entry for a user.
type Notification struct {
	ID        string
	UserID    string
	Type      NotificationType
	Title     string
	Message   string
	Data      NotificationData
	IsRead    bool
	CreatedAt time.Time
}
