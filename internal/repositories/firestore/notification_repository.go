package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	domain "github.com/farmconnect/marketplace/internal/domain"
	pfirestore "github.com/farmconnect/marketplace/internal/platform/firestore"
	"github.com/farmconnect/marketplace/internal/repositories"
)

const (
	notificationsCollection = "notifications"
	maxBatchWrites          = 500
	subscriptionBuffer      = 16
)

// NotificationRepository stores inbox entries in the notifications collection.
type NotificationRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[notificationDocument]
}

var _ repositories.NotificationRepository = (*NotificationRepository)(nil)

func NewNotificationRepository(provider *pfirestore.Provider) (*NotificationRepository, error) {
	if provider == nil {
		return nil, errors.New("notification repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[notificationDocument](provider, notificationsCollection, nil, nil)
	return &NotificationRepository{provider: provider, base: base}, nil
}

func (r *NotificationRepository) Insert(ctx context.Context, notification domain.Notification) error {
	_, err := r.base.Set(ctx, notification.ID, newNotificationDocument(notification))
	return err
}

func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("userId", "==", userID).OrderBy("createdAt", firestore.Desc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	result := make([]domain.Notification, 0, len(docs))
	for _, doc := range docs {
		result = append(result, doc.Data.toDomain(doc.ID))
	}
	return result, nil
}

func (r *NotificationRepository) MarkRead(ctx context.Context, userID, notificationID string) error {
	doc, err := r.base.Get(ctx, notificationID)
	if err != nil {
		return err
	}
	if doc.Data.UserID != userID {
		return pfirestore.NotFoundError("notifications.markRead", notificationID)
	}
	_, err = r.base.Update(ctx, notificationID, []firestore.Update{{Path: "isRead", Value: true}})
	return err
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", userID).Where("isRead", "==", false)
	})
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, err
	}

	updated := 0
	for start := 0; start < len(docs); start += maxBatchWrites {
		end := min(start+maxBatchWrites, len(docs))
		batch := client.Batch()
		for _, doc := range docs[start:end] {
			ref, err := r.base.DocumentRef(ctx, doc.ID)
			if err != nil {
				return updated, err
			}
			batch.Update(ref, []firestore.Update{{Path: "isRead", Value: true}})
		}
		if _, err := batch.Commit(ctx); err != nil {
			return updated, pfirestore.WrapError("notifications.markAllRead", err)
		}
		updated += end - start
	}
	return updated, nil
}

func (r *NotificationRepository) Subscribe(ctx context.Context, userID string) (<-chan domain.Notification, error) {
	if userID == "" {
		return nil, errors.New("notifications.subscribe: user id is required")
	}
	out := make(chan domain.Notification, subscriptionBuffer)
	go func() {
		defer close(out)
		_ = r.base.Watch(ctx, func(q firestore.Query) firestore.Query {
			return q.Where("userId", "==", userID)
		}, func(kind firestore.DocumentChangeKind, doc pfirestore.Document[notificationDocument]) error {
			if kind != firestore.DocumentAdded {
				return nil
			}
			select {
			case out <- doc.Data.toDomain(doc.ID):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()
	return out, nil
}
