package integrity

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/litekeeper/litekeeper/internal/core"
	"github.com/litekeeper/litekeeper/internal/storage"
)

const reportTimeFormat = "20060102_150405"

// Statistics are the size and shape figures attached to a report.
type Statistics struct {
	FileSizeBytes int64            `json:"file_size_bytes"`
	TableCount    int              `json:"table_count"`
	IndexCount    int              `json:"index_count"`
	PageCount     int64            `json:"page_count"`
	PageSize      int64            `json:"page_size"`
	RowCounts     map[string]int64 `json:"row_counts,omitempty"`
}

// Report bundles one check result with database statistics and
// human-oriented recommendations.
type Report struct {
	DatabasePath    string               `json:"database_path"`
	GeneratedAt     time.Time            `json:"generated_at"`
	OverallStatus   core.IntegrityStatus `json:"overall_status"`
	Result          CheckResult          `json:"result"`
	Statistics      *Statistics          `json:"statistics,omitempty"`
	Recommendations []string             `json:"recommendations"`
}

// Report runs a full check, without a pre-check backup, and bundles it
// with statistics.
func (c *Checker) Report(ctx context.Context) *Report {
	return c.BuildReport(ctx, c.Check(ctx, CheckOptions{}))
}

// BuildReport bundles an already-obtained check result with statistics
// and recommendations. Statistics that cannot be collected are left out
// rather than failing the report.
func (c *Checker) BuildReport(ctx context.Context, res *CheckResult) *Report {
	rep := &Report{
		DatabasePath:    c.path,
		GeneratedAt:     time.Now().UTC(),
		OverallStatus:   res.Status(),
		Result:          *res,
		Recommendations: recommendations(res),
	}
	stats, err := c.statistics(ctx)
	if err != nil {
		c.logger.Warn("collecting statistics failed", "error", err)
	} else {
		rep.Statistics = stats
	}
	return rep
}

// WriteReport saves a report as JSON under reports/ beside the database
// and returns the file path.
func (c *Checker) WriteReport(rep *Report) (string, error) {
	dir := filepath.Join(filepath.Dir(c.path), "reports")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding report: %w", err)
	}
	name := fmt.Sprintf("integrity_report_%s.json", rep.GeneratedAt.Format(reportTimeFormat))
	path := filepath.Join(dir, name)
	if err := storage.WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	c.logger.Info("integrity report written", "path", path)
	return path, nil
}

// CleanupReports removes report files older than the given age and
// returns how many were deleted. Failures are logged, not returned.
func (c *Checker) CleanupReports(olderThan time.Duration) int {
	dir := filepath.Join(filepath.Dir(c.path), "reports")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("reading report directory failed", "error", err)
		}
		return 0
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "integrity_report_") || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		fi, err := e.Info()
		if err != nil || !fi.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			c.logger.Warn("removing old report failed", "name", e.Name(), "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		c.logger.Info("old reports removed", "count", removed)
	}
	return removed
}

// statistics collects the report figures from the file and the handle.
func (c *Checker) statistics(ctx context.Context) (*Statistics, error) {
	fi, err := os.Stat(c.path)
	if err != nil {
		return nil, err
	}
	stats := &Statistics{FileSizeBytes: fi.Size()}

	db, err := storage.Open(ctx, c.path, c.openOpts)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table'`).Scan(&stats.TableCount); err != nil {
		return nil, err
	}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'index'`).Scan(&stats.IndexCount); err != nil {
		return nil, err
	}
	if err := db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&stats.PageCount); err != nil {
		return nil, err
	}
	if err := db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&stats.PageSize); err != nil {
		return nil, err
	}

	tables, err := tableNames(ctx, db)
	if err != nil {
		return nil, err
	}
	stats.RowCounts = make(map[string]int64, len(tables))
	for _, table := range tables {
		var n int64
		if err := db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %q", table)).Scan(&n); err != nil {
			c.logger.Warn("counting rows failed", "table", table, "error", err)
			continue
		}
		stats.RowCounts[table] = n
	}
	return stats, nil
}

// recommendations produces the human guidance attached to a report. The
// texts are fixed; nothing here is acted on automatically.
func recommendations(res *CheckResult) []string {
	if res.IsValid && len(res.Warnings) == 0 {
		return []string{
			"database is healthy, no action needed",
			"keep the regular backup schedule",
		}
	}

	var recs []string
	switch {
	case res.CorruptionDetected && res.RepairPossible:
		recs = append(recs,
			"corruption detected; run a repair, a backup is taken automatically first",
			"expect some rows to be skipped if pages are unreadable")
	case res.CorruptionDetected:
		recs = append(recs,
			"corruption detected and the file cannot be rebuilt",
			"restore from the most recent backup")
	case len(res.Errors) > 0:
		recs = append(recs, "review the reported data errors before writing further")
	default:
		recs = append(recs, "review the reported warnings")
	}
	if res.BackupRecommended {
		recs = append(recs, "create a backup of the current state before any further action")
	}
	return recs
}
