package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	domain "github.com/farmconnect/marketplace/internal/domain"
	"github.com/farmconnect/marketplace/internal/repositories"
)

// CleanupReportWriter persists a finished reconciler run and returns where it was written.
type CleanupReportWriter interface {
	WriteCleanupReport(ctx context.Context, report CleanupReport, groups []DuplicateGroup) (string, error)
}

// ReconcilerMetrics records reconciler deletions.
type ReconcilerMetrics interface {
	DuplicatesDeleted(deleted, failed int)
}

// DuplicateReconcilerDeps bundles collaborators for the duplicate order reconciler.
type DuplicateReconcilerDeps struct {
	Orders  repositories.OrderRepository
	Reports CleanupReportWriter
	Metrics ReconcilerMetrics
	Clock   func() time.Time
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type duplicateReconciler struct {
	orders  repositories.OrderRepository
	reports CleanupReportWriter
	metrics ReconcilerMetrics
	clock   func() time.Time
	logger  func(context.Context, string, map[string]any)
}

// NewDuplicateReconciler constructs the maintenance reconciler.
func NewDuplicateReconciler(deps DuplicateReconcilerDeps) (DuplicateReconciler, error) {
	if deps.Orders == nil {
		return nil, errors.New("duplicate reconciler: order repository is required")
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
		metrics = noopReconcilerMetrics{}
	}
	return &duplicateReconciler{
		orders:  deps.Orders,
		reports: deps.Reports,
		metrics: metrics,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// FindDuplicates groups every order by fingerprint and returns groups with more than one
// member, in the order each fingerprint was first seen.
func (r *duplicateReconciler) FindDuplicates(ctx context.Context) ([]DuplicateGroup, error) {
	orders, err := r.orders.ListAll(ctx)
	if err != nil {
		return nil, mapRepositoryError(err, ErrStoreUnavailable)
	}

	index := make(map[domain.OrderFingerprint]int)
	var all []DuplicateGroup
	for _, order := range orders {
		key := domain.FingerprintOf(order)
		pos, ok := index[key]
		if !ok {
			pos = len(all)
			index[key] = pos
			all = append(all, DuplicateGroup{Key: key.String()})
		}
		all[pos].Orders = append(all[pos].Orders, order)
	}

	groups := make([]DuplicateGroup, 0)
	for _, group := range all {
		if len(group.Orders) > 1 {
			groups = append(groups, group)
		}
	}
	return groups, nil
}

// RemoveDuplicates deletes every member of each group except the one retained. Deletions
// are independent; failures are collected into a *PartialFailureError and the returned
// count covers successful deletions only.
func (r *duplicateReconciler) RemoveDuplicates(ctx context.Context, groups []DuplicateGroup, keepMostRecent bool) (int, error) {
	deleted := 0
	failures := make(map[string]error)
	for _, group := range groups {
		_, redundant := splitGroup(group, keepMostRecent)
		for _, order := range redundant {
			if err := ctx.Err(); err != nil {
				r.metrics.DuplicatesDeleted(deleted, len(failures))
				return deleted, err
			}
			if err := r.orders.Delete(ctx, order.ID); err != nil {
				failures[order.ID] = err
				r.logger(ctx, "reconciler.delete.failed", map[string]any{
					"orderId": order.ID,
					"key":     group.Key,
					"error":   err.Error(),
				})
				continue
			}
			deleted++
			r.logger(ctx, "reconciler.delete.completed", map[string]any{
				"orderId": order.ID,
				"key":     group.Key,
			})
		}
	}
	r.metrics.DuplicatesDeleted(deleted, len(failures))
	if len(failures) > 0 {
		return deleted, &PartialFailureError{Failures: failures}
	}
	return deleted, nil
}

// Cleanup runs a full find, remove and re-scan cycle.
func (r *duplicateReconciler) Cleanup(ctx context.Context, opts CleanupOptions) (CleanupReport, error) {
	report := CleanupReport{DryRun: opts.DryRun, StartedAt: r.clock()}

	groups, err := r.FindDuplicates(ctx)
	if err != nil {
		return report, err
	}
	report.GroupsFound = len(groups)
	for _, group := range groups {
		report.DuplicatesFound += group.Redundant()
		kept, _ := splitGroup(group, opts.KeepMostRecent)
		r.logger(ctx, "reconciler.group.found", map[string]any{
			"key":      group.Key,
			"count":    len(group.Orders),
			"orderIds": orderIDs(group.Orders),
			"keep":     kept.ID,
		})
	}

	var removeErr error
	if !opts.DryRun && len(groups) > 0 {
		report.Deleted, removeErr = r.RemoveDuplicates(ctx, groups, opts.KeepMostRecent)
		var partial *PartialFailureError
		switch {
		case errors.As(removeErr, &partial):
			report.Failed = len(partial.Failures)
		case removeErr != nil:
			return report, removeErr
		}
	}

	remaining, err := r.FindDuplicates(ctx)
	if err != nil {
		return report, fmt.Errorf("rescan after cleanup: %w", err)
	}
	report.RemainingGroups = len(remaining)
	report.FinishedAt = r.clock()

	r.logger(ctx, "reconciler.cleanup.completed", map[string]any{
		"groupsFound":     report.GroupsFound,
		"duplicatesFound": report.DuplicatesFound,
		"deleted":         report.Deleted,
		"failed":          report.Failed,
		"remainingGroups": report.RemainingGroups,
		"dryRun":          report.DryRun,
	})

	if r.reports != nil {
		object, err := r.reports.WriteCleanupReport(ctx, report, groups)
		if err != nil {
			r.logger(ctx, "reconciler.report.failed", map[string]any{"error": err.Error()})
		} else {
			report.ReportObject = object
		}
	}

	return report, removeErr
}

// splitGroup picks the retained order and returns the rest in deletion order.
func splitGroup(group DuplicateGroup, keepMostRecent bool) (Order, []Order) {
	if len(group.Orders) == 0 {
		return Order{}, nil
	}
	members := slices.Clone(group.Orders)
	if keepMostRecent {
		slices.SortStableFunc(members, func(a, b Order) int {
			return b.OrderDate.Compare(a.OrderDate)
		})
	}
	return members[0], members[1:]
}

func orderIDs(orders []Order) []string {
	ids := make([]string, 0, len(orders))
	for _, order := range orders {
		ids = append(ids, order.ID)
	}
	return ids
}

type noopReconcilerMetrics struct{}

func (noopReconcilerMetrics) DuplicatesDeleted(int, int) {}
