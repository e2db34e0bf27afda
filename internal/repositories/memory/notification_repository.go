package memory

import (
	"context"
	"sort"
	"sync"

	domain "github.com/farmconnect/marketplace/internal/domain"
	"github.com/farmconnect/marketplace/internal/repositories"
)

const subscriberBuffer = 16

// NotificationRepository stores inbox entries and fans inserts out to in-process subscribers.
type NotificationRepository struct {
	mu          sync.Mutex
	items       []domain.Notification
	subscribers map[string]map[chan domain.Notification]struct{}
}

var _ repositories.NotificationRepository = (*NotificationRepository)(nil)

// NewNotificationRepository constructs an empty repository.
func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{subscribers: make(map[string]map[chan domain.Notification]struct{})}
}

func (r *NotificationRepository) Insert(_ context.Context, notification domain.Notification) error {
	if notification.ID == "" {
		return conflict("notifications.insert", "notification id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, notification)
	for ch := range r.subscribers[notification.UserID] {
		select {
		case ch <- notification:
		default:
			// slow subscriber; drop rather than block writers
		}
	}
	return nil
}

func (r *NotificationRepository) ListByUser(_ context.Context, userID string, limit int) ([]domain.Notification, error) {
	r.mu.Lock()
	result := make([]domain.Notification, 0)
	for _, n := range r.items {
		if n.UserID == userID {
			result = append(result, n)
		}
	}
	r.mu.Unlock()

	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *NotificationRepository) MarkRead(_ context.Context, userID, notificationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.items {
		if r.items[i].ID == notificationID && r.items[i].UserID == userID {
			r.items[i].IsRead = true
			return nil
		}
	}
	return notFound("notifications.markRead", notificationID)
}

func (r *NotificationRepository) MarkAllRead(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	updated := 0
	for i := range r.items {
		if r.items[i].UserID == userID && !r.items[i].IsRead {
			r.items[i].IsRead = true
			updated++
		}
	}
	return updated, nil
}

func (r *NotificationRepository) Subscribe(ctx context.Context, userID string) (<-chan domain.Notification, error) {
	ch := make(chan domain.Notification, subscriberBuffer)
	r.mu.Lock()
	if r.subscribers[userID] == nil {
		r.subscribers[userID] = make(map[chan domain.Notification]struct{})
	}
	r.subscribers[userID][ch] = struct{}{}
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		delete(r.subscribers[userID], ch)
		if len(r.subscribers[userID]) == 0 {
			delete(r.subscribers, userID)
		}
		close(ch)
		r.mu.Unlock()
	}()
	return ch, nil
}
