package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/farmconnect/marketplace/internal/domain"
	"github.com/farmconnect/marketplace/internal/services"
)

func newEventRouter(svc services.NotificationService) chi.Router {
	router := chi.NewRouter()
	NewEventHandlers(svc).Routes(router)
	return router
}

func TestEventHandlersDeliverNotifications(t *testing.T) {
	var (
		created   services.ContractCreatedNotice
		responded services.ContractResponseNotice
		message   services.MessageReceivedNotice
	)
	svc := &stubNotificationService{
		contractFn: func(_ context.Context, notice services.ContractCreatedNotice) (services.Notification, error) {
			created = notice
			return services.Notification{ID: "ntf_1", UserID: notice.FarmerID, Type: domain.NotificationContractCreated}, nil
		},
		responseFn: func(_ context.Context, notice services.ContractResponseNotice) (services.Notification, error) {
			responded = notice
			return services.Notification{ID: "ntf_2", UserID: notice.BuyerID, Type: domain.NotificationContractResponse}, nil
		},
		messageFn: func(_ context.Context, notice services.MessageReceivedNotice) (services.Notification, error) {
			message = notice
			return services.Notification{ID: "ntf_3", UserID: notice.RecipientID, Type: domain.NotificationMessageReceived}, nil
		},
	}
	router := newEventRouter(svc)

	cases := []struct {
		path   string
		body   string
		userID string
		typ    string
	}{
		{"/events/contracts:created", `{"contractId":"ctr_1","farmerId":"farmer-1","buyerId":"buyer-1","buyerName":" Ana ","cropType":"Maize"}`, "farmer-1", string(domain.NotificationContractCreated)},
		{"/events/contracts:responded", `{"contractId":"ctr_1","buyerId":"buyer-1","farmerId":"farmer-1","farmerName":"Green Acres","cropType":"Maize","pricePerUnit":3.25}`, "buyer-1", string(domain.NotificationContractResponse)},
		{"/events/messages:received", `{"chatRoomId":"room-9","recipientId":"buyer-1","senderName":"Green Acres"}`, "buyer-1", string(domain.NotificationMessageReceived)},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(tc.body))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusAccepted {
			t.Fatalf("%s: expected status 202, got %d: %s", tc.path, rr.Code, rr.Body.String())
		}
		var resp eventAcceptedResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s: decode response: %v", tc.path, err)
		}
		if resp.UserID != tc.userID || resp.Type != tc.typ || resp.NotificationID == "" {
			t.Fatalf("%s: unexpected response %+v", tc.path, resp)
		}
	}

	if created.ContractID != "ctr_1" || created.BuyerName != "Ana" || created.CropType != "Maize" {
		t.Fatalf("unexpected contract notice %+v", created)
	}
	if responded.FarmerName != "Green Acres" || responded.PricePerUnit != 3.25 {
		t.Fatalf("unexpected response notice %+v", responded)
	}
	if message.ChatRoomID != "room-9" || message.SenderName != "Green Acres" {
		t.Fatalf("unexpected message notice %+v", message)
	}
}

func TestEventHandlersRejectIncompleteEvents(t *testing.T) {
	called := false
	svc := &stubNotificationService{
		responseFn: func(context.Context, services.ContractResponseNotice) (services.Notification, error) {
			called = true
			return services.Notification{}, nil
		},
		messageFn: func(context.Context, services.MessageReceivedNotice) (services.Notification, error) {
			return services.Notification{}, fmt.Errorf("%w: recipient id is required", services.ErrNotificationInvalidInput)
		},
	}
	router := newEventRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/events/contracts:responded", strings.NewReader(`{"contractId":"ctr_1","buyerId":"buyer-1","farmerId":"farmer-1","cropType":"Maize"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for missing price, got %d", rr.Code)
	}
	if called {
		t.Fatalf("expected invalid event to stop before the notification service")
	}

	req = httptest.NewRequest(http.MethodPost, "/events/messages:received", strings.NewReader(`{"chatRoomId":"room-9","recipientId":"  ","senderName":"Ana"}`))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 from service validation, got %d: %s", rr.Code, rr.Body.String())
	}
	if code := errorCodeOf(t, rr); code != "invalid_request" {
		t.Fatalf("expected invalid_request, got %q", code)
	}

	unavailable := newEventRouter(nil)
	req = httptest.NewRequest(http.MethodPost, "/events/messages:received", strings.NewReader(`{}`))
	rr = httptest.NewRecorder()
	unavailable.ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503 without a notification service, got %d", rr.Code)
	}
}
