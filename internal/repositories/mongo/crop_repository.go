package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	driver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "github.com/farmconnect/marketplace/internal/domain"
	"github.com/farmconnect/marketplace/internal/platform/mongodb"
	"github.com/farmconnect/marketplace/internal/repositories"
)

const cropsCollection = "crops"

// CropRepository stores crops and mutates stock through conditional updates, so the
// availability check and the decrement are evaluated by the server as one operation.
type CropRepository struct {
	provider *mongodb.Provider
}

var _ repositories.CropRepository = (*CropRepository)(nil)

func NewCropRepository(provider *mongodb.Provider) (*CropRepository, error) {
	if provider == nil {
		return nil, errors.New("crop repository requires mongodb provider")
	}
	return &CropRepository{provider: provider}, nil
}

func (r *CropRepository) collection(ctx context.Context) (*driver.Collection, error) {
	return r.provider.Collection(ctx, cropsCollection)
}

func (r *CropRepository) Insert(ctx context.Context, crop domain.Crop) (domain.Crop, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return domain.Crop{}, err
	}
	if crop.ID == "" {
		crop.ID = primitive.NewObjectID().Hex()
	}
	if crop.Status == "" {
		crop.Status = domain.CropStatusAvailable
	}
	if _, err := coll.InsertOne(ctx, newCropDocument(crop)); err != nil {
		return domain.Crop{}, mongodb.WrapError("crops.insert", err)
	}
	return crop, nil
}

func (r *CropRepository) Get(ctx context.Context, cropID string) (domain.Crop, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return domain.Crop{}, err
	}
	var doc cropDocument
	if err := coll.FindOne(ctx, bson.M{"_id": cropID}).Decode(&doc); err != nil {
		return domain.Crop{}, mongodb.WrapError("crops.get", err)
	}
	return doc.toDomain(), nil
}

func (r *CropRepository) DecrementStock(ctx context.Context, cropID string, quantity float64, now time.Time) (domain.Crop, error) {
	if quantity <= 0 {
		return domain.Crop{}, repositories.NewStockError(repositories.StockErrorInvalidQuantity, "quantity must be positive", nil)
	}
	filter := bson.M{
		"_id":      cropID,
		"status":   string(domain.CropStatusAvailable),
		"quantity": bson.M{"$gte": quantity},
	}
	update := driver.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "quantity", Value: bson.D{{Key: "$max", Value: bson.A{0, bson.D{{Key: "$subtract", Value: bson.A{"$quantity", quantity}}}}}}},
			{Key: "updatedAt", Value: now.UTC()},
		}}},
		{{Key: "$set", Value: bson.D{
			{Key: "status", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$lte", Value: bson.A{"$quantity", 0}}},
				string(domain.CropStatusSold),
				"$status",
			}}}},
		}}},
	}
	crop, err := r.findAndUpdate(ctx, filter, update)
	if err == nil {
		return crop, nil
	}
	if !errors.Is(err, driver.ErrNoDocuments) {
		return domain.Crop{}, mongodb.WrapError("crops.decrementStock", err)
	}
	current, getErr := r.Get(ctx, cropID)
	if getErr != nil {
		var repoErr repositories.RepositoryError
		if errors.As(getErr, &repoErr) && repoErr.IsNotFound() {
			return domain.Crop{}, repositories.NewStockError(repositories.StockErrorCropNotFound, fmt.Sprintf("crop %s not found", cropID), getErr)
		}
		return domain.Crop{}, getErr
	}
	if current.Status != domain.CropStatusAvailable {
		return domain.Crop{}, repositories.NewStockError(repositories.StockErrorCropUnavailable,
			fmt.Sprintf("crop %s is %s", cropID, current.Status), nil)
	}
	return domain.Crop{}, repositories.NewStockError(repositories.StockErrorInsufficient,
		fmt.Sprintf("requested %v exceeds available %v", quantity, current.Quantity), nil)
}

func (r *CropRepository) RestoreStock(ctx context.Context, cropID string, quantity float64, now time.Time) (domain.Crop, error) {
	if quantity <= 0 {
		return domain.Crop{}, repositories.NewStockError(repositories.StockErrorInvalidQuantity, "quantity must be positive", nil)
	}
	update := driver.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "quantity", Value: bson.D{{Key: "$add", Value: bson.A{"$quantity", quantity}}}},
			{Key: "status", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$eq", Value: bson.A{"$status", string(domain.CropStatusSold)}}},
				string(domain.CropStatusAvailable),
				"$status",
			}}}},
			{Key: "updatedAt", Value: now.UTC()},
		}}},
	}
	crop, err := r.findAndUpdate(ctx, bson.M{"_id": cropID}, update)
	if errors.Is(err, driver.ErrNoDocuments) {
		return domain.Crop{}, repositories.NewStockError(repositories.StockErrorCropNotFound, fmt.Sprintf("crop %s not found", cropID), err)
	}
	if err != nil {
		return domain.Crop{}, mongodb.WrapError("crops.restoreStock", err)
	}
	return crop, nil
}

func (r *CropRepository) findAndUpdate(ctx context.Context, filter any, update any) (domain.Crop, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return domain.Crop{}, err
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc cropDocument
	if err := coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return domain.Crop{}, err
	}
	return doc.toDomain(), nil
}

func (r *CropRepository) MarkSoldOut(ctx context.Context, cropID, orderID string, soldOutAt, runAfter time.Time) error {
	return r.updateOne(ctx, "crops.markSoldOut", cropID, bson.M{"$set": bson.M{
		"status":        string(domain.CropStatusSoldOut),
		"soldOutAt":     soldOutAt.UTC(),
		"soldToOrderId": orderID,
		"runAfter":      runAfter.UTC(),
		"updatedAt":     soldOutAt.UTC(),
	}})
}

func (r *CropRepository) ListDueForRemoval(ctx context.Context, now time.Time, limit int) ([]domain.Crop, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "runAfter", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := coll.Find(ctx, bson.M{
		"status":   string(domain.CropStatusSoldOut),
		"runAfter": bson.M{"$lte": now.UTC()},
	}, opts)
	if err != nil {
		return nil, mongodb.WrapError("crops.listDue", err)
	}
	var docs []cropDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, mongodb.WrapError("crops.listDue", err)
	}
	crops := make([]domain.Crop, 0, len(docs))
	for _, doc := range docs {
		crops = append(crops, doc.toDomain())
	}
	return crops, nil
}

func (r *CropRepository) MarkDeleted(ctx context.Context, cropID string, deletedAt time.Time) error {
	return r.updateOne(ctx, "crops.markDeleted", cropID, bson.M{
		"$set": bson.M{
			"status":    string(domain.CropStatusDeleted),
			"deletedAt": deletedAt.UTC(),
			"updatedAt": deletedAt.UTC(),
		},
		"$unset": bson.M{"runAfter": ""},
	})
}

func (r *CropRepository) updateOne(ctx context.Context, op, cropID string, update bson.M) error {
	coll, err := r.collection(ctx)
	if err != nil {
		return err
	}
	res, err := coll.UpdateOne(ctx, bson.M{"_id": cropID}, update)
	if err != nil {
		return mongodb.WrapError(op, err)
	}
	if res.MatchedCount == 0 {
		return mongodb.NotFoundError(op, cropID)
	}
	return nil
}
