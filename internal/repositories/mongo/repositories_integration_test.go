//go:build integration

package mongo

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/farmconnect/marketplace/internal/domain"
	"github.com/farmconnect/marketplace/internal/platform/config"
	"github.com/farmconnect/marketplace/internal/platform/mongodb"
	"github.com/farmconnect/marketplace/internal/repositories"
)

// newTestProvider connects to MONGO_TEST_URI using a throwaway database.
func newTestProvider(t *testing.T) *mongodb.Provider {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	provider := mongodb.NewProvider(config.MongoConfig{
		URI:      uri,
		Database: "marketplace_test_" + uuid.NewString()[:8],
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if db, err := provider.Database(ctx); err == nil {
			_ = db.Drop(ctx)
		}
		_ = provider.Close(ctx)
	})
	return provider
}

func TestCropRepositoryConcurrentDecrement(t *testing.T) {
	provider := newTestProvider(t)
	repo, err := NewCropRepository(provider)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	crop, err := repo.Insert(ctx, domain.Crop{FarmerID: "farmer-1", CropName: "Maize", Quantity: 10, PricePerUnit: 3})
	require.NoError(t, err)
	require.NotEmpty(t, crop.ID)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.DecrementStock(ctx, crop.ID, 6, time.Now()); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else {
				code, _ := repositories.StockErrorCodeOf(err)
				assert.Equal(t, repositories.StockErrorInsufficient, code)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)

	stored, err := repo.Get(ctx, crop.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.0, stored.Quantity)

	depleted, err := repo.DecrementStock(ctx, crop.ID, 4, time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.CropStatusSold, depleted.Status)
	assert.Equal(t, 0.0, depleted.Quantity)

	restored, err := repo.RestoreStock(ctx, crop.ID, 2, time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.CropStatusAvailable, restored.Status)

	_, err = repo.DecrementStock(ctx, "missing", 1, time.Now())
	code, _ := repositories.StockErrorCodeOf(err)
	assert.Equal(t, repositories.StockErrorCropNotFound, code)
}

func TestOrderRepositoryStatusCompareAndSwap(t *testing.T) {
	provider := newTestProvider(t)
	repo, err := NewOrderRepository(provider)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, repo.Insert(ctx, domain.Order{ID: "ord-1", FarmerID: "f1", Status: domain.OrderStatusPending}))
	_, err = repo.UpdateStatus(ctx, "ord-1", domain.OrderStatusPending, domain.OrderStatusConfirmed, time.Now())
	require.NoError(t, err)

	_, err = repo.UpdateStatus(ctx, "ord-1", domain.OrderStatusPending, domain.OrderStatusCancelled, time.Now())
	var repoErr repositories.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.True(t, repoErr.IsConflict())

	_, err = repo.UpdateStatus(ctx, "missing", domain.OrderStatusPending, domain.OrderStatusCancelled, time.Now())
	require.ErrorAs(t, err, &repoErr)
	assert.True(t, repoErr.IsNotFound())

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, repo.Delete(ctx, "ord-1"))
	require.ErrorAs(t, repo.Delete(ctx, "ord-1"), &repoErr)
	assert.True(t, repoErr.IsNotFound())
}
