package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/farmconnect/marketplace/internal/domain"
	"github.com/farmconnect/marketplace/internal/repositories"
)

const (
	orderEventPlaced        = "order.placed"
	orderEventStatusChanged = "order.status_changed"

	orderIDPrefix = "ord_"

	// DefaultRemovalDelay is how long a confirmed crop stays visible before removal.
	DefaultRemovalDelay = 2 * time.Hour

	anonymousBuyerName = "A buyer"
	orderUpdateTitle   = "Order Update"
	orderPlacedTitle   = "New Order Received!"
)

var orderStatusMessages = map[domain.OrderStatus]string{
	domain.OrderStatusConfirmed: "Your order has been confirmed by the farmer",
	domain.OrderStatusShipped:   "Your order has been shipped",
	domain.OrderStatusDelivered: "Your order has been delivered",
	domain.OrderStatusCancelled: "Your order has been cancelled",
}

var serviceTracer = otel.Tracer("github.com/farmconnect/marketplace/internal/services")

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string         `json:"type"`
	OrderID        string         `json:"orderId"`
	CropID         string         `json:"cropId"`
	BuyerID        string         `json:"buyerId"`
	FarmerID       string         `json:"farmerId"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	CurrentStatus  string         `json:"currentStatus"`
	ActorID        string         `json:"actorId"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// OrderMetrics records business counters for the order lifecycle.
type OrderMetrics interface {
	OrderPlaced()
	OrderRejected(reason string)
	OrderStatusChanged(from, to domain.OrderStatus)
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Crops        repositories.CropRepository
	Orders       repositories.OrderRepository
	Notifier     Notifier
	Events       OrderEventPublisher
	Metrics      OrderMetrics
	RemovalDelay time.Duration
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	crops        repositories.CropRepository
	orders       repositories.OrderRepository
	notifier     Notifier
	events       OrderEventPublisher
	metrics      OrderMetrics
	removalDelay time.Duration
	clock        func() time.Time
	newID        func() string
	logger       func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Crops == nil {
		return nil, errors.New("order service: crop repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Notifier == nil {
		return nil, errors.New("order service: notifier is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopOrderMetrics{}
	}
	delay := deps.RemovalDelay
	if delay <= 0 {
		delay = DefaultRemovalDelay
	}

	return &orderService{
		crops:        deps.Crops,
		orders:       deps.Orders,
		notifier:     deps.Notifier,
		events:       deps.Events,
		metrics:      metrics,
		removalDelay: delay,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (order Order, err error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.PlaceOrder", trace.WithAttributes(
		attribute.String("crop.id", cmd.CropID),
		attribute.Float64("order.quantity", cmd.Quantity),
	))
	defer func() { endSpan(span, err) }()

	buyerID := strings.TrimSpace(cmd.BuyerID)
	if buyerID == "" {
		return Order{}, fmt.Errorf("%w: buyer identity is required", ErrUnauthenticated)
	}
	cropID := strings.TrimSpace(cmd.CropID)
	if cropID == "" {
		return Order{}, fmt.Errorf("%w: crop id is required", ErrInvalidReference)
	}

	crop, err := s.crops.Get(ctx, cropID)
	if err != nil {
		return Order{}, mapRepositoryError(err, ErrInvalidReference)
	}
	if !crop.Identifiable() || crop.Status == domain.CropStatusDeleted {
		return Order{}, fmt.Errorf("%w: crop %s is incomplete or removed", ErrInvalidReference, cropID)
	}
	switch crop.Status {
	case domain.CropStatusAvailable:
	case domain.CropStatusSold:
		s.metrics.OrderRejected("insufficient_stock")
		return Order{}, fmt.Errorf("%w: crop %s is sold", ErrInsufficientStock, cropID)
	default:
		// sold_out crops are waiting for removal after a confirmed sale.
		s.metrics.OrderRejected("crop_unavailable")
		return Order{}, fmt.Errorf("%w: crop %s is %s and not open for orders", ErrInvalidReference, cropID, crop.Status)
	}
	if cmd.Quantity <= 0 || cmd.Quantity > crop.Quantity {
		s.metrics.OrderRejected("insufficient_stock")
		return Order{}, fmt.Errorf("%w: requested %s, available %s", ErrInsufficientStock,
			formatQuantity(cmd.Quantity), formatQuantity(crop.Quantity))
	}

	now := s.now()
	order = Order{
		ID:           orderIDPrefix + s.newID(),
		BuyerID:      buyerID,
		BuyerName:    strings.TrimSpace(cmd.BuyerName),
		FarmerID:     crop.FarmerID,
		FarmerName:   crop.FarmerName,
		CropID:       crop.ID,
		CropName:     crop.CropName,
		Variety:      crop.Variety,
		Quantity:     cmd.Quantity,
		Unit:         crop.Unit,
		PricePerUnit: crop.PricePerUnit,
		TotalAmount:  domain.OrderTotal(cmd.Quantity, crop.PricePerUnit),
		Status:       domain.OrderStatusPending,
		OrderDate:    now,
		DeliveryDate: cmd.DeliveryDate,
		Location:     deliveryLocation(cmd.DeliveryAddress, crop.Location),
		Notes:        strings.TrimSpace(cmd.Notes),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return Order{}, fmt.Errorf("%w: create order: %v", ErrStoreUnavailable, err)
	}

	if _, err := s.crops.DecrementStock(ctx, crop.ID, order.Quantity, now); err != nil {
		if code, ok := repositories.StockErrorCodeOf(err); ok && (code == repositories.StockErrorInsufficient || code == repositories.StockErrorCropNotFound || code == repositories.StockErrorCropUnavailable) {
			s.compensatePlacement(ctx, order)
			s.metrics.OrderRejected("stock_race")
			switch code {
			case repositories.StockErrorCropNotFound:
				return Order{}, fmt.Errorf("%w: crop %s disappeared during placement", ErrInvalidReference, crop.ID)
			case repositories.StockErrorCropUnavailable:
				return Order{}, fmt.Errorf("%w: crop %s closed during placement", ErrInvalidReference, crop.ID)
			}
			return Order{}, fmt.Errorf("%w: stock changed while placing order: %v", ErrInsufficientStock, err)
		}
		s.logger(ctx, "order.stock.decrement.failed", map[string]any{
			"orderId": order.ID,
			"cropId":  crop.ID,
			"error":   err.Error(),
		})
		return Order{}, fmt.Errorf("%w: decrement stock: %v", ErrStoreUnavailable, err)
	}

	s.metrics.OrderPlaced()
	s.notify(ctx, newOrderPlacedNotification(order))
	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventPlaced,
		OrderID:       order.ID,
		CropID:        order.CropID,
		BuyerID:       order.BuyerID,
		FarmerID:      order.FarmerID,
		CurrentStatus: string(order.Status),
		ActorID:       buyerID,
		OccurredAt:    now,
		Metadata: map[string]any{
			"quantity":    order.Quantity,
			"totalAmount": order.TotalAmount,
		},
	})

	return order, nil
}

// compensatePlacement cancels an order whose stock reservation failed so no pending order
// exists without reserved stock.
func (s *orderService) compensatePlacement(ctx context.Context, order Order) {
	if _, err := s.orders.UpdateStatus(ctx, order.ID, domain.OrderStatusPending, domain.OrderStatusCancelled, s.now()); err != nil {
		s.logger(ctx, "order.compensate.failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		return
	}
	s.logger(ctx, "order.compensated", map[string]any{
		"orderId": order.ID,
		"cropId":  order.CropID,
	})
}

func (s *orderService) UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (order Order, err error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.UpdateOrderStatus", trace.WithAttributes(
		attribute.String("order.id", cmd.OrderID),
		attribute.String("order.status", string(cmd.Status)),
	))
	defer func() { endSpan(span, err) }()

	actor := strings.TrimSpace(cmd.ActorID)
	if actor == "" {
		return Order{}, fmt.Errorf("%w: actor identity is required", ErrUnauthenticated)
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrInvalidReference)
	}

	current, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError(err, ErrInvalidReference)
	}
	if current.FarmerID != actor {
		return Order{}, fmt.Errorf("%w: only the selling farmer may update order %s", ErrOrderPermissionDenied, orderID)
	}
	if !domain.CanTransition(current.Status, cmd.Status) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, cmd.Status)
	}

	now := s.now()
	updated, err := s.orders.UpdateStatus(ctx, orderID, current.Status, cmd.Status, now)
	if err != nil {
		if isConflict(err) {
			return Order{}, fmt.Errorf("%w: order %s changed concurrently: %v", ErrInvalidTransition, orderID, err)
		}
		return Order{}, mapRepositoryError(err, ErrInvalidReference)
	}
	s.metrics.OrderStatusChanged(current.Status, updated.Status)

	s.applyCropSideEffect(ctx, updated, now)
	s.notify(ctx, newOrderStatusNotification(updated))
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        updated.ID,
		CropID:         updated.CropID,
		BuyerID:        updated.BuyerID,
		FarmerID:       updated.FarmerID,
		PreviousStatus: string(current.Status),
		CurrentStatus:  string(updated.Status),
		ActorID:        actor,
		OccurredAt:     now,
	})

	return updated, nil
}

// applyCropSideEffect mirrors the new order status onto the crop. Failures are logged
// and never roll back the status change.
func (s *orderService) applyCropSideEffect(ctx context.Context, order Order, now time.Time) {
	var err error
	switch order.Status {
	case domain.OrderStatusConfirmed:
		err = s.crops.MarkSoldOut(ctx, order.CropID, order.ID, now, now.Add(s.removalDelay))
	case domain.OrderStatusCancelled:
		_, err = s.crops.RestoreStock(ctx, order.CropID, order.Quantity, now)
	default:
		return
	}
	if err != nil {
		s.logger(ctx, "order.crop.side_effect.failed", map[string]any{
			"orderId": order.ID,
			"cropId":  order.CropID,
			"status":  string(order.Status),
			"error":   err.Error(),
		})
	}
}

func (s *orderService) GetOrder(ctx context.Context, actorID, orderID string) (Order, error) {
	actor := strings.TrimSpace(actorID)
	if actor == "" {
		return Order{}, fmt.Errorf("%w: actor identity is required", ErrUnauthenticated)
	}
	order, err := s.orders.FindByID(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return Order{}, mapRepositoryError(err, ErrInvalidReference)
	}
	if order.BuyerID != actor && order.FarmerID != actor {
		return Order{}, fmt.Errorf("%w: order %s belongs to other participants", ErrOrderPermissionDenied, order.ID)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) ([]Order, error) {
	actor := strings.TrimSpace(filter.ActorID)
	if actor == "" {
		return nil, fmt.Errorf("%w: actor identity is required", ErrUnauthenticated)
	}
	repoFilter := repositories.OrderListFilter{Limit: filter.Limit}
	switch filter.Role {
	case OrderListRoleBuyer, "":
		repoFilter.BuyerID = actor
	case OrderListRoleFarmer:
		repoFilter.FarmerID = actor
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrOrderInvalidInput, filter.Role)
	}
	orders, err := s.orders.List(ctx, repoFilter)
	if err != nil {
		return nil, mapRepositoryError(err, ErrInvalidReference)
	}
	return orders, nil
}

func (s *orderService) notify(ctx context.Context, notification Notification) {
	if _, err := s.notifier.Notify(ctx, notification); err != nil {
		s.logger(ctx, "order.notify.failed", map[string]any{
			"orderId": notification.Data.OrderID,
			"userId":  notification.UserID,
			"type":    string(notification.Type),
			"error":   err.Error(),
		})
	}
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func newOrderPlacedNotification(order Order) Notification {
	buyer := order.BuyerName
	if buyer == "" {
		buyer = anonymousBuyerName
	}
	amount := order.TotalAmount
	return Notification{
		UserID: order.FarmerID,
		Type:   domain.NotificationOrderPlaced,
		Title:  orderPlacedTitle,
		Message: fmt.Sprintf("%s has placed an order for %s %s of %s worth $%.2f",
			buyer, formatQuantity(order.Quantity), order.Unit, order.CropName, order.TotalAmount),
		Data: NotificationData{
			OrderID:   order.ID,
			BuyerID:   order.BuyerID,
			BuyerName: buyer,
			CropID:    order.CropID,
			CropName:  order.CropName,
			Amount:    &amount,
		},
	}
}

func newOrderStatusNotification(order Order) Notification {
	return Notification{
		UserID:  order.BuyerID,
		Type:    domain.OrderNotificationType(order.Status),
		Title:   orderUpdateTitle,
		Message: fmt.Sprintf("%s for %s from %s", orderStatusMessages[order.Status], order.CropName, order.FarmerName),
		Data: NotificationData{
			OrderID:    order.ID,
			FarmerID:   order.FarmerID,
			FarmerName: order.FarmerName,
			CropID:     order.CropID,
			CropName:   order.CropName,
		},
	}
}

func deliveryLocation(address string, crop domain.Location) domain.Location {
	loc := domain.Location{Coordinates: crop.Coordinates}
	switch {
	case strings.TrimSpace(address) != "":
		loc.Address = strings.TrimSpace(address)
	case strings.TrimSpace(crop.Address) != "":
		loc.Address = crop.Address
	default:
		loc.Address = domain.DefaultDeliveryAddress
	}
	return loc
}

func formatQuantity(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

type noopOrderMetrics struct{}

func (noopOrderMetrics) OrderPlaced() {}

func (noopOrderMetrics) OrderRejected(string) {}

func (noopOrderMetrics) OrderStatusChanged(domain.OrderStatus, domain.OrderStatus) {}
