package integrity

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/litekeeper/litekeeper/internal/core"
)

func TestReportHealthyDatabase(t *testing.T) {
	t.Parallel()
	path := newTestDatabase(t)
	rep := NewChecker(path).Report(context.Background())

	if rep.OverallStatus != core.IntegrityHealthy {
		t.Errorf("overall status = %s, want %s", rep.OverallStatus, core.IntegrityHealthy)
	}
	if rep.DatabasePath != path {
		t.Errorf("database path = %q, want %q", rep.DatabasePath, path)
	}
	if rep.Statistics == nil {
		t.Fatal("no statistics collected")
	}
	if rep.Statistics.TableCount < 7 {
		t.Errorf("table count = %d, want at least the schema tables", rep.Statistics.TableCount)
	}
	if rep.Statistics.RowCounts["machines"] != 2 {
		t.Errorf("machines row count = %d, want 2", rep.Statistics.RowCounts["machines"])
	}
	if rep.Statistics.PageSize == 0 || rep.Statistics.PageCount == 0 {
		t.Errorf("page figures = %d x %d, want non-zero", rep.Statistics.PageCount, rep.Statistics.PageSize)
	}
	if len(rep.Recommendations) == 0 {
		t.Error("no recommendations attached")
	}
}

func TestWriteReport(t *testing.T) {
	t.Parallel()
	path := newTestDatabase(t)
	c := NewChecker(path)
	rep := c.Report(context.Background())

	out, err := c.WriteReport(rep)
	if err != nil {
		t.Fatalf("WriteReport() error = %v", err)
	}
	if filepath.Dir(out) != filepath.Join(filepath.Dir(path), "reports") {
		t.Errorf("report written to %s", out)
	}
	if name := filepath.Base(out); !strings.HasPrefix(name, "integrity_report_") {
		t.Errorf("report name = %q", name)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var loaded Report
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if loaded.DatabasePath != path || loaded.OverallStatus != rep.OverallStatus {
		t.Errorf("loaded report = %+v", loaded)
	}
}

func TestCleanupReports(t *testing.T) {
	t.Parallel()
	path := newTestDatabase(t)
	c := NewChecker(path)

	old, err := c.WriteReport(c.Report(context.Background()))
	if err != nil {
		t.Fatal(err)
	}
	stale := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(old, stale, stale); err != nil {
		t.Fatal(err)
	}
	fresh, err := c.WriteReport(c.Report(context.Background()))
	if err != nil {
		t.Fatal(err)
	}

	if removed := c.CleanupReports(24 * time.Hour); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("stale report survived cleanup")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh report removed: %v", err)
	}
}

func TestReportGolden(t *testing.T) {
	t.Parallel()
	result := CheckResult{
		IsValid:            false,
		CorruptionDetected: true,
		Errors:             []string{"integrity check: row 12 missing from index idx_batteries_machine"},
		Warnings:           []string{"missing table: event_log"},
		RepairPossible:     true,
		BackupRecommended:  true,
		CheckedAt:          time.Date(2025, 3, 14, 9, 29, 58, 0, time.UTC),
		Duration:           1250 * time.Millisecond,
	}
	rep := &Report{
		DatabasePath:  "/data/litekeeper.db",
		GeneratedAt:   time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC),
		OverallStatus: core.IntegrityCorrupted,
		Result:        result,
		Statistics: &Statistics{
			FileSizeBytes: 65536,
			TableCount:    7,
			IndexCount:    4,
			PageCount:     16,
			PageSize:      4096,
			RowCounts:     map[string]int64{"machines": 12, "batteries": 30},
		},
		Recommendations: recommendations(&result),
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	g := goldie.New(t, goldie.WithFixtureDir("testdata"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "integrity_report", data)
}
