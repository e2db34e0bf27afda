package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	domain "github.com/farmconnect/marketplace/internal/domain"
	"github.com/farmconnect/marketplace/internal/services"
)

type stubSystemService struct {
	report services.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

var _ services.SystemService = (*stubSystemService)(nil)

func TestHealthzReportsBuildAndUptime(t *testing.T) {
	started := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	h := NewHealthHandlers(
		WithHealthBuildInfo(services.BuildInfo{Version: "2.3.1", CommitSHA: "9f1c2e7", Environment: "staging", StartedAt: started}),
		WithHealthClock(func() time.Time { return started.Add(90 * time.Second) }),
	)

	rr := httptest.NewRecorder()
	h.Healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var body healthzResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := healthzResponse{
		Status:      domain.HealthStatusOK,
		Version:     "2.3.1",
		CommitSHA:   "9f1c2e7",
		Environment: "staging",
		Uptime:      "1m30s",
		Timestamp:   "2025-05-01T09:31:30Z",
	}
	if body != want {
		t.Fatalf("unexpected body\n got: %+v\nwant: %+v", body, want)
	}
}

func TestReadyz(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name        string
		svc         services.SystemService
		wantCode    int
		wantStatus  string
		wantChecks  []string
		wantDetails []string
	}{
		{
			name:       "no system service",
			wantCode:   http.StatusOK,
			wantStatus: domain.HealthStatusOK,
		},
		{
			name: "all dependencies healthy",
			svc: &stubSystemService{report: services.SystemHealthReport{
				Status:      domain.HealthStatusOK,
				GeneratedAt: now,
				Checks: map[string]domain.SystemHealthCheck{
					"mongodb": {Status: domain.HealthStatusOK, Latency: 4 * time.Millisecond, CheckedAt: now},
					"redis":   {Status: domain.HealthStatusOK, Latency: time.Millisecond, CheckedAt: now},
				},
			}},
			wantCode:   http.StatusOK,
			wantStatus: domain.HealthStatusOK,
			wantChecks: []string{"mongodb", "redis"},
		},
		{
			name: "store degraded",
			svc: &stubSystemService{report: services.SystemHealthReport{
				Status: domain.HealthStatusDegraded,
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusDegraded, Error: "rpc error: code = Unavailable"},
					"redis":     {Status: domain.HealthStatusOK},
				},
			}},
			wantCode:    http.StatusServiceUnavailable,
			wantStatus:  domain.HealthStatusDegraded,
			wantChecks:  []string{"firestore", "redis"},
			wantDetails: []string{"firestore: rpc error: code = Unavailable"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts := []HealthOption{WithHealthClock(func() time.Time { return now })}
			if tc.svc != nil {
				opts = append(opts, WithHealthSystemService(tc.svc))
			}
			h := NewHealthHandlers(opts...)

			rr := httptest.NewRecorder()
			h.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rr.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rr.Code)
			}

			var body readyzResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != tc.wantStatus {
				t.Fatalf("expected status %s, got %s", tc.wantStatus, body.Status)
			}
			if body.GeneratedAt == "" {
				t.Fatalf("expected generatedAt to be set")
			}
			var names []string
			for name := range body.Checks {
				names = append(names, name)
			}
			slices.Sort(names)
			if !slices.Equal(names, tc.wantChecks) {
				t.Fatalf("expected checks %v, got %v", tc.wantChecks, names)
			}
			if !slices.Equal(body.Details, tc.wantDetails) {
				t.Fatalf("expected details %v, got %v", tc.wantDetails, body.Details)
			}
		})
	}
}

func TestReadyzReportFailure(t *testing.T) {
	h := NewHealthHandlers(WithHealthSystemService(&stubSystemService{err: errors.New("registry closed")}))

	rr := httptest.NewRecorder()
	h.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
