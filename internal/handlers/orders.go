package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"

	domain "github.com/farmconnect/marketplace/internal/domain"
	"github.com/farmconnect/marketplace/internal/platform/auth"
	"github.com/farmconnect/marketplace/internal/platform/httpx"
	"github.com/farmconnect/marketplace/internal/services"
)

const (
	defaultOrderPageSize = 50
	maxOrderPageSize     = 200
	maxOrderBodySize     = 8 * 1024
)

type createOrderRequest struct {
	CropID          string     `json:"cropId" validate:"required,max=128"`
	Quantity        float64    `json:"quantity" validate:"gt=0"`
	DeliveryDate    *time.Time `json:"deliveryDate"`
	Notes           string     `json:"notes" validate:"max=2000"`
	DeliveryAddress string     `json:"deliveryAddress" validate:"max=500"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status" validate:"required,max=32"`
}

// OrderHandlers exposes order placement, status updates and reads for authenticated users.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	idempotency func(http.Handler) http.Handler
	limiter     rateLimiter
	notes       *bluemonday.Policy
}

// OrderHandlersOption customises OrderHandlers.
type OrderHandlersOption func(*OrderHandlers)

// WithOrderIdempotency wraps order placement with the idempotency middleware.
func WithOrderIdempotency(mw func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.idempotency = mw
	}
}

// WithOrderRateLimit limits order placement per caller; zero disables the limit.
func WithOrderRateLimit(perMinute int) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.limiter = newPerMinuteRateLimiter(perMinute, nil)
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:  authn,
		orders: orders,
		notes:  bluemonday.StrictPolicy(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/", h.listOrders)
	r.Group(func(create chi.Router) {
		create.Use(rateLimitMiddleware(h.limiter, time.Minute))
		if h.idempotency != nil {
			create.Use(h.idempotency)
		}
		create.Post("/", h.placeOrder)
	})
	r.Get("/{orderID}", h.getOrder)
	r.Patch("/{orderID}/status", h.updateStatus)
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireUser(ctx, w)
	if !ok {
		return
	}

	var req createOrderRequest
	if !decodeBody(w, r, maxOrderBodySize, &req) {
		return
	}

	order, err := h.orders.PlaceOrder(ctx, services.PlaceOrderCommand{
		BuyerID:         strings.TrimSpace(identity.UID),
		BuyerName:       identity.Name(),
		CropID:          strings.TrimSpace(req.CropID),
		Quantity:        req.Quantity,
		DeliveryDate:    req.DeliveryDate,
		Notes:           plainText(h.notes, req.Notes),
		DeliveryAddress: plainText(h.notes, req.DeliveryAddress),
	})
	if err != nil {
		httpx.WriteServiceError(ctx, w, err)
		return
	}

	w.Header().Set("Location", "/api/v1/orders/"+order.ID)
	httpx.WriteJSON(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireUser(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req updateOrderStatusRequest
	if !decodeBody(w, r, maxOrderBodySize, &req) {
		return
	}
	order, err := h.orders.UpdateOrderStatus(ctx, services.UpdateOrderStatusCommand{
		ActorID: strings.TrimSpace(identity.UID),
		OrderID: orderID,
		Status:  domain.NormalizeOrderStatus(req.Status),
	})
	if err != nil {
		httpx.WriteServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireUser(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, identity.UID, orderID)
	if err != nil {
		httpx.WriteServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireUser(ctx, w)
	if !ok {
		return
	}

	query := r.URL.Query()
	role := services.OrderListRole(strings.ToLower(strings.TrimSpace(query.Get("role"))))
	switch role {
	case "":
		role = services.OrderListRoleBuyer
		if identity.FarmerOnly() {
			role = services.OrderListRoleFarmer
		}
	case services.OrderListRoleBuyer, services.OrderListRoleFarmer:
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "role must be buyer or farmer", http.StatusBadRequest))
		return
	}

	pageSize := defaultOrderPageSize
	if sizeRaw := strings.TrimSpace(query.Get("page_size")); sizeRaw != "" {
		size, err := strconv.Atoi(sizeRaw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
			return
		}
		switch {
		case size <= 0:
			pageSize = defaultOrderPageSize
		case size > maxOrderPageSize:
			pageSize = maxOrderPageSize
		default:
			pageSize = size
		}
	}

	orders, err := h.orders.ListOrders(ctx, services.OrderListFilter{
		ActorID: strings.TrimSpace(identity.UID),
		Role:    role,
		Limit:   pageSize,
	})
	if err != nil {
		httpx.WriteServiceError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		items = append(items, buildOrderPayload(order))
	}
	httpx.WriteJSON(w, http.StatusOK, orderListResponse{Items: items})
}

type orderListResponse struct {
	Items []orderPayload `json:"items"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type locationPayload struct {
	Address     string             `json:"address"`
	Coordinates coordinatesPayload `json:"coordinates"`
}

type coordinatesPayload struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type orderPayload struct {
	ID           string          `json:"id"`
	BuyerID      string          `json:"buyerId"`
	BuyerName    string          `json:"buyerName"`
	FarmerID     string          `json:"farmerId"`
	FarmerName   string          `json:"farmerName"`
	CropID       string          `json:"cropId"`
	CropName     string          `json:"cropName"`
	Variety      string          `json:"variety,omitempty"`
	Quantity     float64         `json:"quantity"`
	Unit         string          `json:"unit"`
	PricePerUnit float64         `json:"pricePerUnit"`
	TotalAmount  float64         `json:"totalAmount"`
	Status       string          `json:"status"`
	NextStatuses []string        `json:"nextStatuses"`
	OrderDate    string          `json:"orderDate"`
	DeliveryDate string          `json:"deliveryDate,omitempty"`
	Location     locationPayload `json:"location"`
	Notes        string          `json:"notes,omitempty"`
	CreatedAt    string          `json:"createdAt"`
	UpdatedAt    string          `json:"updatedAt,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	next := domain.NextStates(order.Status)
	nextStatuses := make([]string, 0, len(next))
	for _, status := range next {
		nextStatuses = append(nextStatuses, string(status))
	}
	return orderPayload{
		ID:           order.ID,
		BuyerID:      order.BuyerID,
		BuyerName:    order.BuyerName,
		FarmerID:     order.FarmerID,
		FarmerName:   order.FarmerName,
		CropID:       order.CropID,
		CropName:     order.CropName,
		Variety:      order.Variety,
		Quantity:     order.Quantity,
		Unit:         order.Unit,
		PricePerUnit: order.PricePerUnit,
		TotalAmount:  order.TotalAmount,
		Status:       string(order.Status),
		NextStatuses: nextStatuses,
		OrderDate:    formatTime(order.OrderDate),
		DeliveryDate: formatOptionalTime(order.DeliveryDate),
		Location: locationPayload{
			Address: order.Location.Address,
			Coordinates: coordinatesPayload{
				Lat: order.Location.Coordinates.Lat,
				Lng: order.Location.Coordinates.Lng,
			},
		},
		Notes:     order.Notes,
		CreatedAt: formatTime(order.CreatedAt),
		UpdatedAt: formatTime(order.UpdatedAt),
	}
}
