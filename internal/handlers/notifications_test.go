package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	domain "github.com/farmconnect/marketplace/internal/domain"
	"github.com/farmconnect/marketplace/internal/platform/auth"
	"github.com/farmconnect/marketplace/internal/services"
)

type stubNotificationService struct {
	listFn      func(context.Context, string, int) ([]services.Notification, error)
	markFn      func(context.Context, string, string) error
	markAllFn   func(context.Context, string) (int, error)
	subscribeFn func(context.Context, string) (<-chan services.Notification, error)
	contractFn  func(context.Context, services.ContractCreatedNotice) (services.Notification, error)
	responseFn  func(context.Context, services.ContractResponseNotice) (services.Notification, error)
	messageFn   func(context.Context, services.MessageReceivedNotice) (services.Notification, error)
}

func (s *stubNotificationService) Notify(context.Context, services.Notification) (services.Notification, error) {
	return services.Notification{}, errors.New("not implemented")
}

func (s *stubNotificationService) NotifyContractCreated(ctx context.Context, notice services.ContractCreatedNotice) (services.Notification, error) {
	if s.contractFn != nil {
		return s.contractFn(ctx, notice)
	}
	return services.Notification{}, errors.New("not implemented")
}

func (s *stubNotificationService) NotifyContractResponse(ctx context.Context, notice services.ContractResponseNotice) (services.Notification, error) {
	if s.responseFn != nil {
		return s.responseFn(ctx, notice)
	}
	return services.Notification{}, errors.New("not implemented")
}

func (s *stubNotificationService) NotifyMessageReceived(ctx context.Context, notice services.MessageReceivedNotice) (services.Notification, error) {
	if s.messageFn != nil {
		return s.messageFn(ctx, notice)
	}
	return services.Notification{}, errors.New("not implemented")
}

func (s *stubNotificationService) ListForUser(ctx context.Context, userID string, limit int) ([]services.Notification, error) {
	if s.listFn != nil {
		return s.listFn(ctx, userID, limit)
	}
	return nil, nil
}

func (s *stubNotificationService) MarkAsRead(ctx context.Context, userID, notificationID string) error {
	if s.markFn != nil {
		return s.markFn(ctx, userID, notificationID)
	}
	return nil
}

func (s *stubNotificationService) MarkAllAsRead(ctx context.Context, userID string) (int, error) {
	if s.markAllFn != nil {
		return s.markAllFn(ctx, userID)
	}
	return 0, nil
}

func (s *stubNotificationService) Subscribe(ctx context.Context, userID string) (<-chan services.Notification, error) {
	if s.subscribeFn != nil {
		return s.subscribeFn(ctx, userID)
	}
	return nil, errors.New("not implemented")
}

type stubTokenVerifier struct {
	tokens map[string]string
}

func (v *stubTokenVerifier) VerifyIDToken(_ context.Context, idToken string) (*firebaseauth.Token, error) {
	uid, ok := v.tokens[idToken]
	if !ok {
		return nil, errors.New("token rejected")
	}
	return &firebaseauth.Token{UID: uid, Claims: map[string]interface{}{}}, nil
}

func newNotificationRouter(authn *auth.Authenticator, identity *auth.Identity, svc services.NotificationService) chi.Router {
	handler := NewNotificationHandlers(authn, svc, WithStreamPingInterval(time.Second))
	router := chi.NewRouter()
	router.Use(withTestIdentity(identity))
	router.Route("/api/v1", handler.Routes)
	return router
}

func TestNotificationHandlersList(t *testing.T) {
	amount := 12.5
	var gotUser string
	var gotLimit int
	svc := &stubNotificationService{
		listFn: func(_ context.Context, userID string, limit int) ([]services.Notification, error) {
			gotUser, gotLimit = userID, limit
			return []services.Notification{
				{ID: "ntf_2", UserID: userID, Type: domain.NotificationOrderPlaced, Title: "New Order Received!", Data: services.NotificationData{OrderID: "ord_1", Amount: &amount}, CreatedAt: testNow},
				{ID: "ntf_1", UserID: userID, Type: domain.NotificationMessageReceived, Title: "New Message", IsRead: true, CreatedAt: testNow.Add(-time.Hour)},
			}, nil
		},
	}
	router := newNotificationRouter(nil, &auth.Identity{UID: "farmer-1"}, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications?limit=1000", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if gotUser != "farmer-1" || gotLimit != maxNotificationPageSize {
		t.Fatalf("unexpected service call user=%s limit=%d", gotUser, gotLimit)
	}
	var resp notificationListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Items) != 2 || resp.UnreadCount != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
	first := resp.Items[0]
	if first.Type != "order_placed" || first.Data.OrderID != "ord_1" || first.Data.Amount == nil || *first.Data.Amount != 12.5 {
		t.Fatalf("unexpected first item %+v", first)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/notifications?limit=zero", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rr.Code)
	}
}

func TestNotificationHandlersMarkRead(t *testing.T) {
	var marked []string
	svc := &stubNotificationService{
		markFn: func(_ context.Context, userID, notificationID string) error {
			if notificationID == "ntf_other" {
				return fmt.Errorf("%w: notification %s", services.ErrInvalidReference, notificationID)
			}
			marked = append(marked, userID+"/"+notificationID)
			return nil
		},
		markAllFn: func(_ context.Context, userID string) (int, error) {
			return 3, nil
		},
	}
	router := newNotificationRouter(nil, &auth.Identity{UID: "buyer-1"}, svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/notifications/ntf_1:read", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if len(marked) != 1 || marked[0] != "buyer-1/ntf_1" {
		t.Fatalf("unexpected mark calls %v", marked)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/notifications/ntf_other:read", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another user's notification, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/notifications:read-all", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]int
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || body["updated"] != 3 {
		t.Fatalf("unexpected read-all body %s (%v)", rr.Body.String(), err)
	}
}

func TestNotificationStreamDeliversUpdates(t *testing.T) {
	updates := make(chan services.Notification, 1)
	subscribed := make(chan string, 1)
	svc := &stubNotificationService{
		subscribeFn: func(_ context.Context, userID string) (<-chan services.Notification, error) {
			subscribed <- userID
			return updates, nil
		},
	}
	authn := auth.NewAuthenticator(&stubTokenVerifier{tokens: map[string]string{"good": "buyer-1"}})
	server := httptest.NewServer(newNotificationRouter(authn, nil, svc))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/notifications/stream?access_token=good"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}
	if got := <-subscribed; got != "buyer-1" {
		t.Fatalf("expected subscription for buyer-1, got %q", got)
	}

	updates <- services.Notification{ID: "ntf_9", UserID: "buyer-1", Type: domain.NotificationOrderShipped, Title: "Order Update", CreatedAt: testNow}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var payload notificationPayload
	if err := conn.ReadJSON(&payload); err != nil {
		t.Fatalf("read notification: %v", err)
	}
	if payload.ID != "ntf_9" || payload.Type != "order_shipped" || payload.CreatedAt != "2025-05-01T09:30:00Z" {
		t.Fatalf("unexpected payload %+v", payload)
	}

	close(updates)
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close once the stream ends, got %v", err)
	}
}

func TestNotificationStreamRequiresToken(t *testing.T) {
	authn := auth.NewAuthenticator(&stubTokenVerifier{tokens: map[string]string{"good": "buyer-1"}})
	server := httptest.NewServer(newNotificationRouter(authn, nil, &stubNotificationService{}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/notifications/stream"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if !errors.Is(err, websocket.ErrBadHandshake) {
		t.Fatalf("expected bad handshake, got %v", err)
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 response, got %+v", resp)
	}
}
