package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/farmconnect/marketplace/internal/repositories"
)

const defaultSweepBatchSize = 100

// CropRemovalMetrics records sweep outcomes.
type CropRemovalMetrics interface {
	CropsSwept(removed, failed int)
}

// CropRemovalServiceDeps bundles collaborators for the removal sweep.
type CropRemovalServiceDeps struct {
	Crops     repositories.CropRepository
	BatchSize int
	Metrics   CropRemovalMetrics
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type cropRemovalService struct {
	crops     repositories.CropRepository
	batchSize int
	metrics   CropRemovalMetrics
	clock     func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// NewCropRemovalService constructs the sweep that deletes sold out crops once their removal
// deadline has passed. Deadlines live on the crop document so a restart never loses one.
func NewCropRemovalService(deps CropRemovalServiceDeps) (CropRemovalService, error) {
	if deps.Crops == nil {
		return nil, errors.New("crop removal service: crop repository is required")
	}
	batch := deps.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatchSize
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopCropRemovalMetrics{}
	}
	return &cropRemovalService{
		crops:     deps.Crops,
		batchSize: batch,
		metrics:   metrics,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *cropRemovalService) SweepDue(ctx context.Context) (SweepReport, error) {
	now := s.clock()
	due, err := s.crops.ListDueForRemoval(ctx, now, s.batchSize)
	if err != nil {
		return SweepReport{}, mapRepositoryError(err, ErrStoreUnavailable)
	}

	report := SweepReport{Scanned: len(due)}
	for _, crop := range due {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !crop.RemovalDue(now) {
			continue
		}
		if err := s.crops.MarkDeleted(ctx, crop.ID, now); err != nil {
			report.Failed++
			s.logger(ctx, "crop.removal.failed", map[string]any{
				"cropId": crop.ID,
				"error":  err.Error(),
			})
			continue
		}
		report.Removed++
		s.logger(ctx, "crop.removal.completed", map[string]any{
			"cropId":  crop.ID,
			"orderId": crop.SoldToOrderID,
			"overdue": now.Sub(*crop.RunAfter).String(),
		})
	}
	s.metrics.CropsSwept(report.Removed, report.Failed)

	if report.Failed > 0 {
		return report, fmt.Errorf("%w: %d of %d crop removals failed", ErrPartialFailure, report.Failed, report.Scanned)
	}
	return report, nil
}

type noopCropRemovalMetrics struct{}

func (noopCropRemovalMetrics) CropsSwept(int, int) {}
