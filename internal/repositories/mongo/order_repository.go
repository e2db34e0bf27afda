package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	driver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "github.com/farmconnect/marketplace/internal/domain"
	"github.com/farmconnect/marketplace/internal/platform/mongodb"
	"github.com/farmconnect/marketplace/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository persists orders in the orders collection.
type OrderRepository struct {
	provider *mongodb.Provider
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

func NewOrderRepository(provider *mongodb.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires mongodb provider")
	}
	return &OrderRepository{provider: provider}, nil
}

func (r *OrderRepository) collection(ctx context.Context) (*driver.Collection, error) {
	return r.provider.Collection(ctx, ordersCollection)
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	coll, err := r.collection(ctx)
	if err != nil {
		return err
	}
	_, err = coll.InsertOne(ctx, newOrderDocument(order))
	return mongodb.WrapError("orders.insert", err)
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	var doc orderDocument
	if err := coll.FindOne(ctx, bson.M{"_id": orderID}).Decode(&doc); err != nil {
		return domain.Order{}, mongodb.WrapError("orders.get", err)
	}
	return doc.toDomain(), nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, expected, next domain.OrderStatus, updatedAt time.Time) (domain.Order, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	filter := bson.M{"_id": orderID, "status": string(expected)}
	update := bson.M{"$set": bson.M{"status": string(next), "updatedAt": updatedAt.UTC()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc orderDocument
	err = coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		return doc.toDomain(), nil
	}
	if !errors.Is(err, driver.ErrNoDocuments) {
		return domain.Order{}, mongodb.WrapError("orders.updateStatus", err)
	}
	current, getErr := r.FindByID(ctx, orderID)
	if getErr != nil {
		return domain.Order{}, getErr
	}
	return domain.Order{}, mongodb.ConflictError("orders.updateStatus",
		fmt.Sprintf("status is %s, expected %s", current.Status, expected))
}

func (r *OrderRepository) ListAll(ctx context.Context) ([]domain.Order, error) {
	return r.find(ctx, bson.M{}, options.Find())
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	query := bson.M{}
	if filter.BuyerID != "" {
		query["buyerId"] = filter.BuyerID
	}
	if filter.FarmerID != "" {
		query["farmerId"] = filter.FarmerID
	}
	opts := options.Find().SetSort(bson.D{{Key: "orderDate", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	return r.find(ctx, query, opts)
}

func (r *OrderRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.Order, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, mongodb.WrapError("orders.find", err)
	}
	var docs []orderDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, mongodb.WrapError("orders.find", err)
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.toDomain())
	}
	return orders, nil
}

func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	coll, err := r.collection(ctx)
	if err != nil {
		return err
	}
	res, err := coll.DeleteOne(ctx, bson.M{"_id": orderID})
	if err != nil {
		return mongodb.WrapError("orders.delete", err)
	}
	if res.DeletedCount == 0 {
		return mongodb.NotFoundError("orders.delete", orderID)
	}
	return nil
}
