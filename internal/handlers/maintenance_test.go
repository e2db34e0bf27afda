package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/farmconnect/marketplace/internal/services"
)

type stubCropRemovalService struct {
	report services.SweepReport
	err    error
	calls  int
}

func (s *stubCropRemovalService) SweepDue(context.Context) (services.SweepReport, error) {
	s.calls++
	return s.report, s.err
}

type stubReconciler struct {
	opts   services.CleanupOptions
	report services.CleanupReport
	err    error
}

func (s *stubReconciler) FindDuplicates(context.Context) ([]services.DuplicateGroup, error) {
	return nil, nil
}

func (s *stubReconciler) RemoveDuplicates(context.Context, []services.DuplicateGroup, bool) (int, error) {
	return 0, nil
}

func (s *stubReconciler) Cleanup(_ context.Context, opts services.CleanupOptions) (services.CleanupReport, error) {
	s.opts = opts
	return s.report, s.err
}

func newMaintenanceRouter(h *MaintenanceHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/internal", h.Routes)
	return router
}

func TestMaintenanceSweep(t *testing.T) {
	removals := &stubCropRemovalService{report: services.SweepReport{Scanned: 3, Removed: 3}}
	var guarded string
	guard := func(ctx context.Context, name string, fn func(context.Context) error) error {
		guarded = name
		return fn(ctx)
	}
	router := newMaintenanceRouter(NewMaintenanceHandlers(removals, nil, guard))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/maintenance/crop-removals:sweep", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if guarded != "crop-removal-sweep" || removals.calls != 1 {
		t.Fatalf("expected guarded sweep, got name=%q calls=%d", guarded, removals.calls)
	}
	var resp sweepResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Scanned != 3 || resp.Removed != 3 || resp.Failed != 0 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestMaintenanceSweepBusyAndPartial(t *testing.T) {
	busy := func(context.Context, string, func(context.Context) error) error {
		return ErrMaintenanceBusy
	}
	removals := &stubCropRemovalService{}
	router := newMaintenanceRouter(NewMaintenanceHandlers(removals, nil, busy))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/maintenance/crop-removals:sweep", nil))
	if rr.Code != http.StatusConflict || removals.calls != 0 {
		t.Fatalf("expected 409 without running, got %d (calls=%d)", rr.Code, removals.calls)
	}

	partial := &stubCropRemovalService{
		report: services.SweepReport{Scanned: 2, Removed: 1, Failed: 1},
		err:    fmt.Errorf("%w: 1 of 2 crop removals failed", services.ErrPartialFailure),
	}
	router = newMaintenanceRouter(NewMaintenanceHandlers(partial, nil, nil))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/maintenance/crop-removals:sweep", nil))
	if rr.Code != http.StatusMultiStatus {
		t.Fatalf("expected 207, got %d", rr.Code)
	}
	var resp sweepResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Failed != 1 || resp.Error == "" {
		t.Fatalf("expected failure surfaced, got %+v", resp)
	}
}

func TestMaintenanceDedupe(t *testing.T) {
	reconciler := &stubReconciler{
		report: services.CleanupReport{GroupsFound: 1, DuplicatesFound: 2, DryRun: true, RemainingGroups: 1},
	}
	router := newMaintenanceRouter(NewMaintenanceHandlers(nil, reconciler, nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/maintenance/orders:dedupe?dry_run=true&keep_most_recent=false", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !reconciler.opts.DryRun || reconciler.opts.KeepMostRecent {
		t.Fatalf("unexpected options %+v", reconciler.opts)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["groupsFound"] != float64(1) || body["duplicatesFound"] != float64(2) || body["dryRun"] != true {
		t.Fatalf("unexpected body %v", body)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/maintenance/orders:dedupe", nil))
	if !reconciler.opts.KeepMostRecent || reconciler.opts.DryRun {
		t.Fatalf("expected defaults keep_most_recent=true dry_run=false, got %+v", reconciler.opts)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/internal/maintenance/orders:dedupe?dry_run=maybe", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad flag, got %d", rr.Code)
	}
}

func TestMaintenanceUnconfigured(t *testing.T) {
	router := newMaintenanceRouter(NewMaintenanceHandlers(nil, nil, nil))
	for _, path := range []string{"/internal/maintenance/crop-removals:sweep", "/internal/maintenance/orders:dedupe"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, nil))
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503, got %d", path, rr.Code)
		}
	}
}
