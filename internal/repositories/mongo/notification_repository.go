package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	driver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "github.com/farmconnect/marketplace/internal/domain"
	"github.com/farmconnect/marketplace/internal/platform/mongodb"
	"github.com/farmconnect/marketplace/internal/repositories"
)

const (
	notificationsCollection = "notifications"
	subscriptionBuffer      = 16
)

// NotificationRepository stores inbox entries and streams inserts through change streams.
type NotificationRepository struct {
	provider *mongodb.Provider
}

var _ repositories.NotificationRepository = (*NotificationRepository)(nil)

func NewNotificationRepository(provider *mongodb.Provider) (*NotificationRepository, error) {
	if provider == nil {
		return nil, errors.New("notification repository requires mongodb provider")
	}
	return &NotificationRepository{provider: provider}, nil
}

func (r *NotificationRepository) collection(ctx context.Context) (*driver.Collection, error) {
	return r.provider.Collection(ctx, notificationsCollection)
}

func (r *NotificationRepository) Insert(ctx context.Context, notification domain.Notification) error {
	coll, err := r.collection(ctx)
	if err != nil {
		return err
	}
	_, err = coll.InsertOne(ctx, newNotificationDocument(notification))
	return mongodb.WrapError("notifications.insert", err)
}

func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := coll.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, mongodb.WrapError("notifications.list", err)
	}
	var docs []notificationDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, mongodb.WrapError("notifications.list", err)
	}
	result := make([]domain.Notification, 0, len(docs))
	for _, doc := range docs {
		result = append(result, doc.toDomain())
	}
	return result, nil
}

func (r *NotificationRepository) MarkRead(ctx context.Context, userID, notificationID string) error {
	coll, err := r.collection(ctx)
	if err != nil {
		return err
	}
	res, err := coll.UpdateOne(ctx,
		bson.M{"_id": notificationID, "userId": userID},
		bson.M{"$set": bson.M{"isRead": true}},
	)
	if err != nil {
		return mongodb.WrapError("notifications.markRead", err)
	}
	if res.MatchedCount == 0 {
		return mongodb.NotFoundError("notifications.markRead", notificationID)
	}
	return nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return 0, err
	}
	res, err := coll.UpdateMany(ctx,
		bson.M{"userId": userID, "isRead": false},
		bson.M{"$set": bson.M{"isRead": true}},
	)
	if err != nil {
		return 0, mongodb.WrapError("notifications.markAllRead", err)
	}
	return int(res.ModifiedCount), nil
}

func (r *NotificationRepository) Subscribe(ctx context.Context, userID string) (<-chan domain.Notification, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}
	pipeline := driver.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "operationType", Value: "insert"},
			{Key: "fullDocument.userId", Value: userID},
		}}},
	}
	stream, err := coll.Watch(ctx, pipeline)
	if err != nil {
		return nil, mongodb.WrapError("notifications.subscribe", err)
	}

	out := make(chan domain.Notification, subscriptionBuffer)
	go func() {
		defer close(out)
		defer stream.Close(context.Background())
		for stream.Next(ctx) {
			var event struct {
				FullDocument notificationDocument `bson:"fullDocument"`
			}
			if err := stream.Decode(&event); err != nil {
				continue
			}
			select {
			case out <- event.FullDocument.toDomain():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
