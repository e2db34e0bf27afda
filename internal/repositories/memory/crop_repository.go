package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/farmconnect/marketplace/internal/domain"
	"github.com/farmconnect/marketplace/internal/repositories"
)

// CropRepository keeps crop listings in a map guarded by a mutex, so every stock mutation
// observes and writes the quantity as one step.
type CropRepository struct {
	mu    sync.Mutex
	items map[string]domain.Crop
}

var _ repositories.CropRepository = (*CropRepository)(nil)

// NewCropRepository constructs an empty repository.
func NewCropRepository() *CropRepository {
	return &CropRepository{items: make(map[string]domain.Crop)}
}

func (r *CropRepository) Insert(_ context.Context, crop domain.Crop) (domain.Crop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if crop.ID == "" {
		crop.ID = ulid.Make().String()
	}
	if _, exists := r.items[crop.ID]; exists {
		return domain.Crop{}, conflict("crops.insert", fmt.Sprintf("%s already exists", crop.ID))
	}
	if crop.Status == "" {
		crop.Status = domain.CropStatusAvailable
	}
	r.items[crop.ID] = crop
	return crop, nil
}

func (r *CropRepository) Get(_ context.Context, cropID string) (domain.Crop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	crop, ok := r.items[cropID]
	if !ok {
		return domain.Crop{}, notFound("crops.get", cropID)
	}
	return crop, nil
}

func (r *CropRepository) DecrementStock(_ context.Context, cropID string, quantity float64, now time.Time) (domain.Crop, error) {
	if quantity <= 0 {
		return domain.Crop{}, repositories.NewStockError(repositories.StockErrorInvalidQuantity, "quantity must be positive", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	crop, ok := r.items[cropID]
	if !ok {
		return domain.Crop{}, repositories.NewStockError(repositories.StockErrorCropNotFound, "crop not found", notFound("crops.decrement", cropID))
	}
	if crop.Status != domain.CropStatusAvailable {
		return domain.Crop{}, repositories.NewStockError(repositories.StockErrorCropUnavailable,
			fmt.Sprintf("crop %s is %s", cropID, crop.Status), nil)
	}
	if crop.Quantity < quantity {
		return domain.Crop{}, repositories.NewStockError(repositories.StockErrorInsufficient,
			fmt.Sprintf("requested %v exceeds available %v", quantity, crop.Quantity), nil)
	}
	crop.Quantity -= quantity
	if crop.Quantity <= 0 {
		crop.Quantity = 0
		crop.Status = domain.CropStatusSold
	}
	crop.UpdatedAt = now
	r.items[cropID] = crop
	return crop, nil
}

func (r *CropRepository) RestoreStock(_ context.Context, cropID string, quantity float64, now time.Time) (domain.Crop, error) {
	if quantity <= 0 {
		return domain.Crop{}, repositories.NewStockError(repositories.StockErrorInvalidQuantity, "quantity must be positive", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	crop, ok := r.items[cropID]
	if !ok {
		return domain.Crop{}, repositories.NewStockError(repositories.StockErrorCropNotFound, "crop not found", notFound("crops.restore", cropID))
	}
	crop.Quantity += quantity
	if crop.Status == domain.CropStatusSold {
		crop.Status = domain.CropStatusAvailable
	}
	crop.UpdatedAt = now
	r.items[cropID] = crop
	return crop, nil
}

func (r *CropRepository) MarkSoldOut(_ context.Context, cropID, orderID string, soldOutAt, runAfter time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	crop, ok := r.items[cropID]
	if !ok {
		return notFound("crops.markSoldOut", cropID)
	}
	crop.Status = domain.CropStatusSoldOut
	crop.SoldOutAt = &soldOutAt
	crop.SoldToOrderID = orderID
	crop.RunAfter = &runAfter
	crop.UpdatedAt = soldOutAt
	r.items[cropID] = crop
	return nil
}

func (r *CropRepository) ListDueForRemoval(_ context.Context, now time.Time, limit int) ([]domain.Crop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	due := make([]domain.Crop, 0)
	for _, crop := range r.items {
		if crop.RemovalDue(now) {
			due = append(due, crop)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].RunAfter.Before(*due[j].RunAfter) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *CropRepository) MarkDeleted(_ context.Context, cropID string, deletedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	crop, ok := r.items[cropID]
	if !ok {
		return notFound("crops.markDeleted", cropID)
	}
	crop.Status = domain.CropStatusDeleted
	crop.DeletedAt = &deletedAt
	crop.RunAfter = nil
	crop.UpdatedAt = deletedAt
	r.items[cropID] = crop
	return nil
}
