package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	domain "github.com/farmconnect/marketplace/internal/domain"
)

const (
	notificationChannelPrefix = "notifications:"
	fanoutBuffer              = 16
)

// NotificationFanout relays inbox entries to every API replica over Redis pub/sub so websocket
// clients connected anywhere receive them.
type NotificationFanout struct {
	client *Client
}

// NewNotificationFanout constructs the fanout.
func NewNotificationFanout(client *Client) *NotificationFanout {
	return &NotificationFanout{client: client}
}

// PublishNotification sends the notification on the recipient's channel.
func (f *NotificationFanout) PublishNotification(ctx context.Context, notification domain.Notification) error {
	payload, err := json.Marshal(newNotificationMessage(notification))
	if err != nil {
		return fmt.Errorf("redis: encode notification: %w", err)
	}
	return f.client.rdb.Publish(ctx, notificationChannel(notification.UserID), payload).Err()
}

// Subscribe streams notifications published for userID until ctx is done.
func (f *NotificationFanout) Subscribe(ctx context.Context, userID string) (<-chan domain.Notification, error) {
	sub := f.client.rdb.Subscribe(ctx, notificationChannel(userID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis: subscribe: %w", err)
	}

	out := make(chan domain.Notification, fanoutBuffer)
	go func() {
		defer close(out)
		defer sub.Close()
		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				notification, err := decodeNotificationMessage([]byte(msg.Payload))
				if err != nil {
					f.client.logger.Warn("discarding malformed notification message", zap.Error(err))
					continue
				}
				select {
				case out <- notification:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func notificationChannel(userID string) string {
	return notificationChannelPrefix + userID
}

type notificationMessage struct {
	ID        string                  `json:"id"`
	UserID    string                  `json:"userId"`
	Type      string                  `json:"type"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	Data      domain.NotificationData `json:"data"`
	IsRead    bool                    `json:"isRead"`
	CreatedAt time.Time               `json:"createdAt"`
}

func newNotificationMessage(n domain.Notification) notificationMessage {
	return notificationMessage{
		ID:        n.ID,
		UserID:    n.UserID,
		Type:      string(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		Data:      n.Data,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}

func decodeNotificationMessage(payload []byte) (domain.Notification, error) {
	var msg notificationMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return domain.Notification{}, err
	}
	return domain.Notification{
		ID:        msg.ID,
		UserID:    msg.UserID,
		Type:      domain.NotificationType(msg.Type),
		Title:     msg.Title,
		Message:   msg.Message,
		Data:      msg.Data,
		IsRead:    msg.IsRead,
		CreatedAt: msg.CreatedAt,
	}, nil
}
