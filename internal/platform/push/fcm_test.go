package push

import (
	"context"
	"errors"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"

	domain "github.com/farmconnect/marketplace/internal/domain"
	"github.com/farmconnect/marketplace/internal/services"
)

type stubMessaging struct {
	sent []*messaging.Message
	err  error
}

func (s *stubMessaging) Send(_ context.Context, message *messaging.Message) (string, error) {
	s.sent = append(s.sent, message)
	if s.err != nil {
		return "", s.err
	}
	return "projects/test/messages/1", nil
}

func TestFCMSenderTargetsUserTopic(t *testing.T) {
	client := &stubMessaging{}
	sender := &FCMSender{client: client, timeout: time.Second}

	err := sender.SendPush(context.Background(), services.Notification{
		ID:      "ntf_1",
		UserID:  "buyer-1",
		Type:    domain.NotificationOrderConfirmed,
		Title:   "Order Update",
		Message: "Your order has been confirmed for Tomatoes from Green Acres",
		Data:    domain.NotificationData{OrderID: "ord_9", CropID: "crop-1"},
	})
	if err != nil {
		t.Fatalf("SendPush: %v", err)
	}
	if len(client.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(client.sent))
	}
	msg := client.sent[0]
	if msg.Topic != "user-buyer-1" {
		t.Fatalf("unexpected topic %q", msg.Topic)
	}
	if msg.Android.Notification.Tag != "order-ord_9" {
		t.Fatalf("unexpected tag %q", msg.Android.Notification.Tag)
	}
	if msg.Data["orderId"] != "ord_9" || msg.Data["type"] != "order_confirmed" {
		t.Fatalf("unexpected data %v", msg.Data)
	}
	if _, ok := msg.Data["contractId"]; ok {
		t.Fatalf("expected empty contract id to be omitted")
	}
}

func TestFCMSenderRejectsMissingRecipient(t *testing.T) {
	sender := &FCMSender{client: &stubMessaging{}, timeout: time.Second}
	if err := sender.SendPush(context.Background(), services.Notification{Title: "x"}); err == nil {
		t.Fatal("expected error without user id")
	}
}

func TestFCMSenderWrapsSendError(t *testing.T) {
	cause := errors.New("quota exceeded")
	sender := &FCMSender{client: &stubMessaging{err: cause}, timeout: time.Second}
	err := sender.SendPush(context.Background(), services.Notification{UserID: "u", Type: domain.NotificationMessageReceived, Data: domain.NotificationData{ChatRoomID: "r1"}})
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
