package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/farmconnect/marketplace/internal/platform/config"
	"github.com/farmconnect/marketplace/internal/services"
)

func TestPrintSummaryGroupsLargeCounts(t *testing.T) {
	started := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	var buf bytes.Buffer
	printSummary(&buf, services.CleanupReport{
		GroupsFound:     1200,
		DuplicatesFound: 12345,
		Deleted:         12340,
		Failed:          5,
		RemainingGroups: 3,
		StartedAt:       started,
		FinishedAt:      started.Add(1500 * time.Millisecond),
	})

	out := buf.String()
	for _, want := range []string{"Duplicate order cleanup", "1,200", "12,345", "12,340", "failed:           5", "1.5s"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in summary:\n%s", want, out)
		}
	}
}

func TestPrintSummaryDryRunOmitsDeletes(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, services.CleanupReport{GroupsFound: 2, DuplicatesFound: 3, RemainingGroups: 2, DryRun: true})

	out := buf.String()
	if !strings.Contains(out, "Duplicate order dry run") {
		t.Fatalf("expected dry run heading, got:\n%s", out)
	}
	if strings.Contains(out, "deleted:") {
		t.Fatalf("dry run must not report deletions:\n%s", out)
	}
}

func TestRunAgainstMemoryStoreReportsJSON(t *testing.T) {
	var buf bytes.Buffer
	app := newApp(&buf,
		config.WithoutSystemEnv(),
		config.WithEnvMap(map[string]string{
			"API_FIREBASE_PROJECT_ID": "demo-project",
			"API_STORE_DRIVER":        "memory",
			"API_EVENTS_DRIVER":       "none",
		}),
	)

	if err := app.Run([]string{"dedupe", "--env-file", "", "--dry-run", "--json"}); err != nil {
		t.Fatalf("run: %v", err)
	}

	var report services.CleanupReport
	if err := json.Unmarshal(buf.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, buf.String())
	}
	if !report.DryRun || report.GroupsFound != 0 || report.Deleted != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
}
