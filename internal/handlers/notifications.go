package handlers

import (
	"context"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/farmconnect/marketplace/internal/platform/auth"
	"github.com/farmconnect/marketplace/internal/platform/httpx"
	"github.com/farmconnect/marketplace/internal/platform/requestctx"
	"github.com/farmconnect/marketplace/internal/services"
)

const (
	defaultNotificationPageSize = 50
	maxNotificationPageSize     = 200

	streamWriteWait    = 10 * time.Second
	streamPingInterval = 50 * time.Second
	streamReadLimit    = 512
)

// NotificationHandlers serves the per-user inbox and its live stream.
type NotificationHandlers struct {
	authn         *auth.Authenticator
	notifications services.NotificationService
	upgrader      websocket.Upgrader
	pingInterval  time.Duration
}

// NotificationHandlersOption customises NotificationHandlers.
type NotificationHandlersOption func(*NotificationHandlers)

// WithStreamOrigins restricts websocket upgrades to the given origins. "*" allows any origin;
// with no origins only same-host upgrades are accepted.
func WithStreamOrigins(origins []string) NotificationHandlersOption {
	return func(h *NotificationHandlers) {
		allowed := make([]string, 0, len(origins))
		for _, origin := range origins {
			if origin = strings.TrimSpace(origin); origin != "" {
				allowed = append(allowed, strings.ToLower(origin))
			}
		}
		if len(allowed) == 0 {
			return
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := strings.ToLower(r.Header.Get("Origin"))
			return origin == "" || slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
		}
	}
}

// WithStreamPingInterval overrides the websocket keepalive interval.
func WithStreamPingInterval(d time.Duration) NotificationHandlersOption {
	return func(h *NotificationHandlers) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

// NewNotificationHandlers constructs the inbox handlers.
func NewNotificationHandlers(authn *auth.Authenticator, notifications services.NotificationService, opts ...NotificationHandlersOption) *NotificationHandlers {
	h := &NotificationHandlers{
		authn:         authn,
		notifications: notifications,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		pingInterval: streamPingInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the inbox endpoints on the versioned API router.
func (h *NotificationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(inbox chi.Router) {
		inbox.Use(h.authMiddleware())
		inbox.Get("/notifications", h.listNotifications)
		inbox.Post("/notifications:read-all", h.markAllRead)
		inbox.Post("/notifications/{notificationID}:read", h.markRead)
	})
	// Browsers cannot set headers on websocket handshakes, so the stream also accepts
	// the ID token as a query parameter.
	r.Group(func(stream chi.Router) {
		stream.Use(bearerFromQuery)
		stream.Use(h.authMiddleware())
		stream.Get("/notifications/stream", h.stream)
	})
}

func (h *NotificationHandlers) authMiddleware() func(http.Handler) http.Handler {
	if h.authn == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return h.authn.RequireAuth()
}

func (h *NotificationHandlers) listNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.notifications == nil {
		httpx.WriteError(ctx, w, httpx.NewError("notification_service_unavailable", "notification service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireUser(ctx, w)
	if !ok {
		return
	}

	limit := defaultNotificationPageSize
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be a positive integer", http.StatusBadRequest))
			return
		}
		limit = min(parsed, maxNotificationPageSize)
	}

	items, err := h.notifications.ListForUser(ctx, identity.UID, limit)
	if err != nil {
		httpx.WriteServiceError(ctx, w, err)
		return
	}

	resp := notificationListResponse{Items: make([]notificationPayload, 0, len(items))}
	for _, item := range items {
		payload := buildNotificationPayload(item)
		if !payload.IsRead {
			resp.UnreadCount++
		}
		resp.Items = append(resp.Items, payload)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *NotificationHandlers) markRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.notifications == nil {
		httpx.WriteError(ctx, w, httpx.NewError("notification_service_unavailable", "notification service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireUser(ctx, w)
	if !ok {
		return
	}
	notificationID := strings.TrimSpace(chi.URLParam(r, "notificationID"))
	if notificationID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "notification id is required", http.StatusBadRequest))
		return
	}
	if err := h.notifications.MarkAsRead(ctx, identity.UID, notificationID); err != nil {
		httpx.WriteServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandlers) markAllRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.notifications == nil {
		httpx.WriteError(ctx, w, httpx.NewError("notification_service_unavailable", "notification service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireUser(ctx, w)
	if !ok {
		return
	}
	updated, err := h.notifications.MarkAllAsRead(ctx, identity.UID)
	if err != nil {
		httpx.WriteServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

// stream pushes new inbox entries over a websocket until either side goes away.
func (h *NotificationHandlers) stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.notifications == nil {
		httpx.WriteError(ctx, w, httpx.NewError("notification_service_unavailable", "notification service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireUser(ctx, w)
	if !ok {
		return
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates, err := h.notifications.Subscribe(streamCtx, identity.UID)
	if err != nil {
		httpx.WriteServiceError(ctx, w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		return
	}
	defer conn.Close()

	logger := requestctx.Logger(ctx)
	logger.Info("notification stream opened", zap.String("user_id", identity.UID))

	// A client that misses two pings in a row is considered gone.
	readWait := 2 * h.pingInterval
	conn.SetReadLimit(streamReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWait))
	})

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-streamCtx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(streamWriteWait))
			logger.Info("notification stream closed", zap.String("user_id", identity.UID))
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		case notification, ok := <-updates:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream ended"),
					time.Now().Add(streamWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(buildNotificationPayload(notification)); err != nil {
				logger.Warn("notification stream write failed", zap.Error(err))
				return
			}
		}
	}
}

// bearerFromQuery copies ?access_token= into the Authorization header when the header is absent.
func bearerFromQuery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			if token := strings.TrimSpace(r.URL.Query().Get("access_token")); token != "" {
				r = r.Clone(r.Context())
				r.Header.Set("Authorization", "Bearer "+token)
			}
		}
		next.ServeHTTP(w, r)
	})
}

type notificationListResponse struct {
	Items       []notificationPayload `json:"items"`
	UnreadCount int                   `json:"unreadCount"`
}

type notificationDataPayload struct {
	OrderID    string   `json:"orderId,omitempty"`
	ContractID string   `json:"contractId,omitempty"`
	ChatRoomID string   `json:"chatRoomId,omitempty"`
	BuyerID    string   `json:"buyerId,omitempty"`
	BuyerName  string   `json:"buyerName,omitempty"`
	FarmerID   string   `json:"farmerId,omitempty"`
	FarmerName string   `json:"farmerName,omitempty"`
	CropID     string   `json:"cropId,omitempty"`
	CropName   string   `json:"cropName,omitempty"`
	Amount     *float64 `json:"amount,omitempty"`
}

type notificationPayload struct {
	ID        string                  `json:"id"`
	UserID    string                  `json:"userId"`
	Type      string                  `json:"type"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	Data      notificationDataPayload `json:"data"`
	IsRead    bool                    `json:"isRead"`
	CreatedAt string                  `json:"createdAt"`
}

func buildNotificationPayload(n services.Notification) notificationPayload {
	return notificationPayload{
		ID:      n.ID,
		UserID:  n.UserID,
		Type:    string(n.Type),
		Title:   n.Title,
		Message: n.Message,
		Data: notificationDataPayload{
			OrderID:    n.Data.OrderID,
			ContractID: n.Data.ContractID,
			ChatRoomID: n.Data.ChatRoomID,
			BuyerID:    n.Data.BuyerID,
			BuyerName:  n.Data.BuyerName,
			FarmerID:   n.Data.FarmerID,
			FarmerName: n.Data.FarmerName,
			CropID:     n.Data.CropID,
			CropName:   n.Data.CropName,
			Amount:     n.Data.Amount,
		},
		IsRead:    n.IsRead,
		CreatedAt: formatTime(n.CreatedAt),
	}
}
