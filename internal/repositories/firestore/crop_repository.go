package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/farmconnect/marketplace/internal/domain"
	pfirestore "github.com/farmconnect/marketplace/internal/platform/firestore"
	"github.com/farmconnect/marketplace/internal/repositories"
)

const cropsCollection = "crops"

// CropRepository persists crop listings and guards stock mutations with transactions.
type CropRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[cropDocument]
}

var _ repositories.CropRepository = (*CropRepository)(nil)

func NewCropRepository(provider *pfirestore.Provider) (*CropRepository, error) {
	if provider == nil {
		return nil, errors.New("crop repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cropDocument](provider, cropsCollection, nil, nil)
	return &CropRepository{provider: provider, base: base}, nil
}

func (r *CropRepository) Insert(ctx context.Context, crop domain.Crop) (domain.Crop, error) {
	if crop.Status == "" {
		crop.Status = domain.CropStatusAvailable
	}
	doc := newCropDocument(crop)
	if crop.ID == "" {
		id, err := r.base.Create(ctx, doc)
		if err != nil {
			return domain.Crop{}, err
		}
		crop.ID = id
		return crop, nil
	}
	if _, err := r.base.Set(ctx, crop.ID, doc); err != nil {
		return domain.Crop{}, err
	}
	return crop, nil
}

func (r *CropRepository) Get(ctx context.Context, cropID string) (domain.Crop, error) {
	doc, err := r.base.Get(ctx, cropID)
	if err != nil {
		return domain.Crop{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *CropRepository) DecrementStock(ctx context.Context, cropID string, quantity float64, now time.Time) (domain.Crop, error) {
	if quantity <= 0 {
		return domain.Crop{}, repositories.NewStockError(repositories.StockErrorInvalidQuantity, "quantity must be positive", nil)
	}
	return r.mutateStock(ctx, "crops.decrementStock", cropID, func(doc *cropDocument) error {
		if doc.Status != string(domain.CropStatusAvailable) {
			return repositories.NewStockError(repositories.StockErrorCropUnavailable,
				fmt.Sprintf("crop %s is %s", cropID, doc.Status), nil)
		}
		if doc.Quantity < quantity {
			return repositories.NewStockError(repositories.StockErrorInsufficient,
				fmt.Sprintf("requested %v exceeds available %v", quantity, doc.Quantity), nil)
		}
		doc.Quantity -= quantity
		if doc.Quantity <= 0 {
			doc.Quantity = 0
			doc.Status = string(domain.CropStatusSold)
		}
		doc.UpdatedAt = now.UTC()
		return nil
	})
}

func (r *CropRepository) RestoreStock(ctx context.Context, cropID string, quantity float64, now time.Time) (domain.Crop, error) {
	if quantity <= 0 {
		return domain.Crop{}, repositories.NewStockError(repositories.StockErrorInvalidQuantity, "quantity must be positive", nil)
	}
	return r.mutateStock(ctx, "crops.restoreStock", cropID, func(doc *cropDocument) error {
		doc.Quantity += quantity
		if doc.Status == string(domain.CropStatusSold) {
			doc.Status = string(domain.CropStatusAvailable)
		}
		doc.UpdatedAt = now.UTC()
		return nil
	})
}

func (r *CropRepository) mutateStock(ctx context.Context, op, cropID string, mutate func(*cropDocument) error) (domain.Crop, error) {
	var result domain.Crop
	err := r.provider.RunTransaction(ctx, op, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, cropID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewStockError(repositories.StockErrorCropNotFound, fmt.Sprintf("crop %s not found", cropID), err)
			}
			return err
		}
		var doc cropDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode crop %s: %w", cropID, err)
		}
		if err := mutate(&doc); err != nil {
			return err
		}
		if err := tx.Update(ref, []firestore.Update{
			{Path: "quantity", Value: doc.Quantity},
			{Path: "status", Value: doc.Status},
			{Path: "updatedAt", Value: doc.UpdatedAt},
		}); err != nil {
			return err
		}
		result = doc.toDomain(cropID)
		return nil
	})
	if err != nil {
		return domain.Crop{}, wrapStockError(op, err)
	}
	return result, nil
}

func (r *CropRepository) MarkSoldOut(ctx context.Context, cropID, orderID string, soldOutAt, runAfter time.Time) error {
	_, err := r.base.Update(ctx, cropID, []firestore.Update{
		{Path: "status", Value: string(domain.CropStatusSoldOut)},
		{Path: "soldOutAt", Value: soldOutAt.UTC()},
		{Path: "soldToOrderId", Value: orderID},
		{Path: "runAfter", Value: runAfter.UTC()},
		{Path: "updatedAt", Value: soldOutAt.UTC()},
	})
	return err
}

func (r *CropRepository) ListDueForRemoval(ctx context.Context, now time.Time, limit int) ([]domain.Crop, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("status", "==", string(domain.CropStatusSoldOut)).
			Where("runAfter", "<=", now.UTC()).
			OrderBy("runAfter", firestore.Asc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	crops := make([]domain.Crop, 0, len(docs))
	for _, doc := range docs {
		crops = append(crops, doc.Data.toDomain(doc.ID))
	}
	return crops, nil
}

func (r *CropRepository) MarkDeleted(ctx context.Context, cropID string, deletedAt time.Time) error {
	_, err := r.base.Update(ctx, cropID, []firestore.Update{
		{Path: "status", Value: string(domain.CropStatusDeleted)},
		{Path: "deletedAt", Value: deletedAt.UTC()},
		{Path: "runAfter", Value: nil},
		{Path: "updatedAt", Value: deletedAt.UTC()},
	})
	return err
}

func wrapStockError(op string, err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		if stockErr.Op == "" {
			stockErr.Op = op
		}
		return stockErr
	}
	return pfirestore.WrapError(op, err)
}
