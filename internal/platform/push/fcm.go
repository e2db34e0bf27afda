package push

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"

	"github.com/farmconnect/marketplace/internal/services"
)

const defaultSendTimeout = 5 * time.Second

type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMSender mirrors inbox notifications to Firebase Cloud Messaging. Devices subscribe to a
// per-user topic so the server never tracks registration tokens.
type FCMSender struct {
	client  messageSender
	timeout time.Duration
}

var _ services.PushSender = (*FCMSender)(nil)

// NewFCMSender builds the messaging client on the shared Admin SDK app.
func NewFCMSender(ctx context.Context, app *firebase.App) (*FCMSender, error) {
	if app == nil {
		return nil, errors.New("fcm sender: firebase app is nil")
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase messaging client: %w", err)
	}
	return &FCMSender{client: client, timeout: defaultSendTimeout}, nil
}

// SendPush delivers the notification to the recipient's topic.
func (s *FCMSender) SendPush(ctx context.Context, n services.Notification) error {
	if s == nil || s.client == nil {
		return errors.New("fcm sender not initialised")
	}
	msg := buildMessage(n)
	if msg == nil {
		return errors.New("fcm sender: notification has no recipient")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.client.Send(ctx, msg); err != nil {
		return fmt.Errorf("send push to %s: %w", msg.Topic, err)
	}
	return nil
}

// UserTopic returns the messaging topic a user's devices subscribe to.
func UserTopic(userID string) string {
	return "user-" + strings.TrimSpace(userID)
}

func buildMessage(n services.Notification) *messaging.Message {
	if strings.TrimSpace(n.UserID) == "" {
		return nil
	}
	data := map[string]string{
		"notificationId": n.ID,
		"type":           string(n.Type),
	}
	add := func(key, value string) {
		if value != "" {
			data[key] = value
		}
	}
	add("orderId", n.Data.OrderID)
	add("contractId", n.Data.ContractID)
	add("chatRoomId", n.Data.ChatRoomID)
	add("cropId", n.Data.CropID)

	tag := string(n.Type)
	switch {
	case n.Data.OrderID != "":
		tag = "order-" + n.Data.OrderID
	case n.Data.ChatRoomID != "":
		tag = "chat-" + n.Data.ChatRoomID
	}

	return &messaging.Message{
		Topic: UserTopic(n.UserID),
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Message,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Tag: tag,
			},
		},
	}
}
