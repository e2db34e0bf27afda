package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/farmconnect/marketplace/internal/platform/httpx"
	"github.com/farmconnect/marketplace/internal/services"
)

// ErrMaintenanceBusy is returned by a SweepGuard when another run already holds the slot.
var ErrMaintenanceBusy = errors.New("maintenance: run already in progress")

// SweepGuard serialises a maintenance run across replicas. It returns ErrMaintenanceBusy
// without calling fn when the run is already taken.
type SweepGuard func(ctx context.Context, name string, fn func(context.Context) error) error

// MaintenanceHandlers exposes scheduler-triggered jobs under /internal/maintenance.
type MaintenanceHandlers struct {
	removals   services.CropRemovalService
	reconciler services.DuplicateReconciler
	guard      SweepGuard
}

// NewMaintenanceHandlers constructs the handlers. A nil guard runs jobs unguarded.
func NewMaintenanceHandlers(removals services.CropRemovalService, reconciler services.DuplicateReconciler, guard SweepGuard) *MaintenanceHandlers {
	if guard == nil {
		guard = func(ctx context.Context, _ string, fn func(context.Context) error) error {
			return fn(ctx)
		}
	}
	return &MaintenanceHandlers{removals: removals, reconciler: reconciler, guard: guard}
}

// Routes registers the maintenance endpoints.
func (h *MaintenanceHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/maintenance/crop-removals:sweep", h.sweepCropRemovals)
	r.Post("/maintenance/orders:dedupe", h.dedupeOrders)
}

type sweepResponse struct {
	Scanned int    `json:"scanned"`
	Removed int    `json:"removed"`
	Failed  int    `json:"failed"`
	Error   string `json:"error,omitempty"`
}

func (h *MaintenanceHandlers) sweepCropRemovals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.removals == nil {
		httpx.WriteError(ctx, w, httpx.NewError("maintenance_unavailable", "crop removal sweep not configured", http.StatusServiceUnavailable))
		return
	}

	var report services.SweepReport
	err := h.guard(ctx, "crop-removal-sweep", func(ctx context.Context) error {
		var runErr error
		report, runErr = h.removals.SweepDue(ctx)
		return runErr
	})
	resp := sweepResponse{Scanned: report.Scanned, Removed: report.Removed, Failed: report.Failed}
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusOK, resp)
	case errors.Is(err, ErrMaintenanceBusy):
		httpx.WriteError(ctx, w, httpx.NewError("maintenance_in_progress", "a sweep is already running", http.StatusConflict))
	case errors.Is(err, services.ErrPartialFailure):
		resp.Error = err.Error()
		httpx.WriteJSON(w, http.StatusMultiStatus, resp)
	default:
		httpx.WriteServiceError(ctx, w, err)
	}
}

type dedupeResponse struct {
	services.CleanupReport
	Error string `json:"error,omitempty"`
}

// dedupeOrders runs the reconciler. Query parameters keep_most_recent (default true) and
// dry_run (default false) mirror the CLI flags.
func (h *MaintenanceHandlers) dedupeOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reconciler == nil {
		httpx.WriteError(ctx, w, httpx.NewError("maintenance_unavailable", "duplicate reconciler not configured", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	keepMostRecent, err := queryBool(query.Get("keep_most_recent"), true)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "keep_most_recent must be a boolean", http.StatusBadRequest))
		return
	}
	dryRun, err := queryBool(query.Get("dry_run"), false)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "dry_run must be a boolean", http.StatusBadRequest))
		return
	}

	var report services.CleanupReport
	err = h.guard(ctx, "orders-dedupe", func(ctx context.Context) error {
		var runErr error
		report, runErr = h.reconciler.Cleanup(ctx, services.CleanupOptions{
			KeepMostRecent: keepMostRecent,
			DryRun:         dryRun,
		})
		return runErr
	})
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusOK, dedupeResponse{CleanupReport: report})
	case errors.Is(err, ErrMaintenanceBusy):
		httpx.WriteError(ctx, w, httpx.NewError("maintenance_in_progress", "a dedupe run is already in progress", http.StatusConflict))
	case errors.Is(err, services.ErrPartialFailure):
		httpx.WriteJSON(w, http.StatusMultiStatus, dedupeResponse{CleanupReport: report, Error: err.Error()})
	default:
		httpx.WriteServiceError(ctx, w, err)
	}
}

func queryBool(raw string, fallback bool) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseBool(raw)
}
