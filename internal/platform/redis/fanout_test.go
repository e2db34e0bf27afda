package redis

import (
	"encoding/json"
	"testing"
	"time"

	domain "github.com/farmconnect/marketplace/internal/domain"
)

func TestNotificationMessageRoundTrip(t *testing.T) {
	amount := 25.5
	original := domain.Notification{
		ID:        "ntf_1",
		UserID:    "farmer-1",
		Type:      domain.NotificationOrderPlaced,
		Title:     "New Order Received!",
		Message:   "Asha has placed an order",
		Data:      domain.NotificationData{OrderID: "ord_1", Amount: &amount},
		CreatedAt: time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC),
	}
	payload, err := json.Marshal(newNotificationMessage(original))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded, err := decodeNotificationMessage(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ID != original.ID || decoded.Type != original.Type || decoded.Data.OrderID != "ord_1" {
		t.Fatalf("unexpected decoded notification %#v", decoded)
	}
	if decoded.Data.Amount == nil || *decoded.Data.Amount != amount {
		t.Fatalf("expected amount to survive encoding")
	}
	if !decoded.CreatedAt.Equal(original.CreatedAt) {
		t.Fatalf("expected createdAt %s, got %s", original.CreatedAt, decoded.CreatedAt)
	}
}

func TestDecodeNotificationMessageRejectsGarbage(t *testing.T) {
	if _, err := decodeNotificationMessage([]byte("{")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestNotificationChannel(t *testing.T) {
	if got := notificationChannel("u1"); got != "notifications:u1" {
		t.Fatalf("unexpected channel %q", got)
	}
}
