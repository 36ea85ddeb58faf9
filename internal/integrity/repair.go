package integrity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/litekeeper/litekeeper/internal/events"
	"github.com/litekeeper/litekeeper/internal/storage"
)

// RepairResult reports one rebuild attempt. Expected failures (the
// rebuilt copy not passing verification) land here; only infrastructure
// failures surface as errors from Repair.
type RepairResult struct {
	Success           bool          `json:"success"`
	Message           string        `json:"message"`
	Warnings          []string      `json:"warnings,omitempty"`
	BackupPath        string        `json:"backup_path,omitempty"`
	RecoveredRows     int64         `json:"recovered_rows"`
	SkippedStatements int           `json:"skipped_statements"`
	Duration          time.Duration `json:"duration"`
}

// Repair rebuilds the database by replaying every readable schema object
// and row into a fresh file, then swaps the fresh file over the original
// only after it passes the engine's own integrity check. A backup is
// taken unconditionally first, and a failed attempt leaves the original
// untouched: there is never a moment without a readable copy.
func (c *Checker) Repair(ctx context.Context) (*RepairResult, error) {
	start := time.Now()
	res := &RepairResult{}
	c.logger.Info("repair started", "path", c.path)

	info, err := c.store.CreateFromFile("repair")
	if err != nil {
		return nil, fmt.Errorf("creating pre-repair backup: %w", err)
	}
	res.BackupPath = info.Path

	temp := c.path + ".repair"
	if err := storage.RemoveDatabaseFiles(temp); err != nil {
		return nil, fmt.Errorf("clearing previous repair attempt: %w", err)
	}
	defer func() { _ = storage.RemoveDatabaseFiles(temp) }()

	recovered, skipped, err := c.rebuild(ctx, temp)
	res.RecoveredRows = recovered
	res.SkippedStatements = skipped
	if skipped > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d statements could not be replayed", skipped))
	}
	if err != nil {
		res.Message = fmt.Sprintf("rebuild failed: %v", err)
		return c.finishRepair(res, start), nil
	}

	if err := c.verifyRebuilt(ctx, temp); err != nil {
		res.Message = fmt.Sprintf("rebuilt copy rejected, original left untouched: %v", err)
		return c.finishRepair(res, start), nil
	}

	if err := storage.ReplaceFile(temp, c.path); err != nil {
		return nil, fmt.Errorf("swapping rebuilt database into place: %w", err)
	}
	// A leftover WAL or journal from the damaged file must not be paired
	// with the rebuilt one.
	for _, sidecar := range storage.SidecarPaths(c.path) {
		if err := os.Remove(sidecar); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("removing stale sidecar failed", "path", sidecar, "error", err)
		}
	}

	res.Success = true
	res.Message = fmt.Sprintf("database rebuilt, %d rows recovered", recovered)
	return c.finishRepair(res, start), nil
}

func (c *Checker) finishRepair(res *RepairResult, start time.Time) *RepairResult {
	res.Duration = time.Since(start)
	if res.Success {
		c.logger.Info("repair finished",
			"rows", res.RecoveredRows, "skipped", res.SkippedStatements, "duration", res.Duration)
	} else {
		c.logger.Error("repair failed", "message", res.Message, "duration", res.Duration)
	}
	if c.bus != nil {
		c.bus.Publish(events.NewRepairCompletedEvent(c.path, res.Success, res.BackupPath, res.RecoveredRows, res.Message))
	}
	return res
}

// rebuild replays the damaged database into dest and reports how many
// rows made it and how many statements had to be skipped.
func (c *Checker) rebuild(ctx context.Context, dest string) (int64, int, error) {
	src, err := storage.Open(ctx, c.path, c.openOpts)
	if err != nil {
		return 0, 0, fmt.Errorf("opening damaged database: %w", err)
	}
	defer src.Close()

	// Foreign keys stay off while replaying: every readable row is
	// salvaged, orphans included, and a follow-up check reports them.
	opts := c.openOpts
	opts.ForeignKeys = false
	dst, err := storage.Open(ctx, dest, opts)
	if err != nil {
		return 0, 0, fmt.Errorf("creating rebuilt database: %w", err)
	}
	defer dst.Close()

	skipped := 0
	tables, err := c.replayTables(ctx, src, dst, &skipped)
	if err != nil {
		return 0, skipped, err
	}

	var recovered int64
	for _, table := range tables {
		copied, rowSkips, err := c.copyRows(ctx, src, dst, table)
		recovered += copied
		skipped += rowSkips
		if err != nil {
			skipped++
			c.logger.Warn("table not fully recovered", "table", table, "rows", copied, "error", err)
		}
	}

	skipped += c.replaySecondary(ctx, src, dst)
	return recovered, skipped, nil
}

// replayTables recreates table definitions on the rebuilt file in their
// original creation order and returns the tables that now exist there.
func (c *Checker) replayTables(ctx context.Context, src, dst *sql.DB, skipped *int) ([]string, error) {
	rows, err := src.QueryContext(ctx,
		`SELECT name, sql FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND sql IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("reading schema from damaged database: %w", err)
	}
	defer rows.Close()

	type table struct{ name, ddl string }
	var tables []table
	for rows.Next() {
		var t table
		if err := rows.Scan(&t.name, &t.ddl); err != nil {
			return nil, fmt.Errorf("reading schema from damaged database: %w", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading schema from damaged database: %w", err)
	}

	var created []string
	for _, t := range tables {
		if _, err := dst.ExecContext(ctx, t.ddl); err != nil {
			*skipped++
			c.logger.Warn("table definition not replayed", "table", t.name, "error", err)
			continue
		}
		created = append(created, t.name)
	}
	return created, nil
}

// copyRows streams every readable row of one table into the rebuilt file.
// Rows that fail to insert are skipped and counted; a read error ends the
// table early but keeps what was already copied.
func (c *Checker) copyRows(ctx context.Context, src, dst *sql.DB, table string) (int64, int, error) {
	rows, err := src.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %q", table))
	if err != nil {
		return 0, 0, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return 0, 0, err
	}
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = fmt.Sprintf("%q", col)
		marks[i] = "?"
	}
	insert := fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)",
		table, strings.Join(quoted, ", "), strings.Join(marks, ", "))

	tx, err := dst.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		_ = tx.Rollback()
		return 0, 0, err
	}

	var (
		copied  int64
		skipped int
		readErr error
	)
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			readErr = err
			break
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			skipped++
			c.logger.Warn("row not replayed", "table", table, "error", err)
			continue
		}
		copied++
	}
	if readErr == nil {
		readErr = rows.Err()
	}

	_ = stmt.Close()
	if err := tx.Commit(); err != nil {
		return 0, skipped, fmt.Errorf("committing %s: %w", table, err)
	}
	return copied, skipped, readErr
}

// replaySecondary recreates indexes, views, and triggers. These are all
// derivable, so failures only count as skips.
func (c *Checker) replaySecondary(ctx context.Context, src, dst *sql.DB) int {
	rows, err := src.QueryContext(ctx,
		`SELECT sql FROM sqlite_master WHERE type IN ('index', 'view', 'trigger') AND sql IS NOT NULL`)
	if err != nil {
		c.logger.Warn("reading secondary schema objects failed", "error", err)
		return 1
	}
	defer rows.Close()

	skipped := 0
	for rows.Next() {
		var ddl string
		if err := rows.Scan(&ddl); err != nil {
			skipped++
			continue
		}
		if _, err := dst.ExecContext(ctx, ddl); err != nil {
			skipped++
			c.logger.Warn("schema object not replayed", "error", err)
		}
	}
	if rows.Err() != nil {
		skipped++
	}
	return skipped
}

// verifyRebuilt runs the engine's self-check against the rebuilt file and
// requires at least one table. Warnings inherited from the damaged source
// (missing tables, orphaned rows) do not fail a rebuild.
func (c *Checker) verifyRebuilt(ctx context.Context, path string) error {
	db, err := storage.Open(ctx, path, c.openOpts)
	if err != nil {
		return fmt.Errorf("opening rebuilt database: %w", err)
	}
	defer db.Close()

	var verdict string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&verdict); err != nil {
		return fmt.Errorf("checking rebuilt database: %w", err)
	}
	if verdict != "ok" {
		return fmt.Errorf("rebuilt database failed its integrity check: %s", verdict)
	}

	var tables int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table'`).Scan(&tables); err != nil {
		return fmt.Errorf("counting rebuilt tables: %w", err)
	}
	if tables == 0 {
		return errors.New("rebuilt database holds no tables")
	}
	return nil
}
