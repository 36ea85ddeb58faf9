package migrate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/litekeeper/litekeeper/internal/storage"
)

// fullCopy clones the source file and records how big the clone is and how
// many rows it carries. The row count is informational; a count failure
// downgrades to a log line because the bytes already moved.
func (m *Manager) fullCopy(ctx context.Context, plan *Plan, res *Result) error {
	if r := m.files.Run(ctx, "copy database file", func(ctx context.Context) error {
		return copyFile(plan.SourcePath, plan.TargetPath)
	}); !r.Success {
		return fmt.Errorf("copying database file: %w", r.Err)
	}

	fi, err := os.Stat(plan.TargetPath)
	if err != nil {
		return fmt.Errorf("inspecting target: %w", err)
	}
	res.DataSizeBytes = fi.Size()

	count, err := countRecords(ctx, plan.TargetPath)
	if err != nil {
		m.logger.Warn("counting migrated records failed", "path", plan.TargetPath, "error", err)
	}
	res.RecordsMigrated = count
	return nil
}

// schemaOnly recreates the source's table definitions in a fresh target.
// Any existing target database is removed first, sidecars included.
func (m *Manager) schemaOnly(ctx context.Context, plan *Plan, res *Result) error {
	var ddl []string
	if r := m.db.Run(ctx, "extract schema", func(ctx context.Context) error {
		var err error
		ddl, err = extractSchema(ctx, plan.SourcePath)
		return err
	}); !r.Success {
		return fmt.Errorf("extracting schema: %w", r.Err)
	}

	if err := storage.RemoveDatabaseFiles(plan.TargetPath); err != nil {
		return fmt.Errorf("clearing target path: %w", err)
	}
	if r := m.db.Run(ctx, "replay schema", func(ctx context.Context) error {
		return replaySchema(ctx, plan.TargetPath, ddl)
	}); !r.Success {
		return fmt.Errorf("replaying schema: %w", r.Err)
	}

	fi, err := os.Stat(plan.TargetPath)
	if err != nil {
		return fmt.Errorf("inspecting target: %w", err)
	}
	res.DataSizeBytes = fi.Size()
	return nil
}

// dataOnly replays every row of the source into an existing target schema.
// The target must already have matching tables; this strategy never creates
// them.
func (m *Manager) dataOnly(ctx context.Context, plan *Plan, res *Result) error {
	if !exists(plan.TargetPath) {
		return fmt.Errorf("data-only migration needs an existing target database at %s", plan.TargetPath)
	}

	var records int64
	if r := m.db.Run(ctx, "transfer rows", func(ctx context.Context) error {
		var err error
		records, err = transferRows(ctx, plan.SourcePath, plan.TargetPath)
		return err
	}); !r.Success {
		return fmt.Errorf("transferring rows: %w", r.Err)
	}
	res.RecordsMigrated = records

	fi, err := os.Stat(plan.TargetPath)
	if err != nil {
		return fmt.Errorf("inspecting target: %w", err)
	}
	res.DataSizeBytes = fi.Size()
	return nil
}

// extractSchema reads the CREATE TABLE statements out of a database.
// Internal sqlite_* tables are skipped; their names are reserved and cannot
// be replayed.
func extractSchema(ctx context.Context, path string) ([]string, error) {
	db, err := storage.Open(ctx, path, storage.DefaultOpenOptions())
	if err != nil {
		return nil, fmt.Errorf("opening source: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT sql FROM sqlite_master
		 WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND sql IS NOT NULL
		 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	defer rows.Close()

	var ddl []string
	for rows.Next() {
		var stmt string
		if err := rows.Scan(&stmt); err != nil {
			return nil, fmt.Errorf("reading schema: %w", err)
		}
		ddl = append(ddl, stmt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	return ddl, nil
}

// replaySchema creates a new database holding only the given definitions.
func replaySchema(ctx context.Context, path string, ddl []string) error {
	db, err := storage.Open(ctx, path, storage.DefaultOpenOptions())
	if err != nil {
		return fmt.Errorf("creating target: %w", err)
	}
	defer db.Close()

	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("replaying table definition: %w", err)
		}
	}
	return nil
}

// transferRows copies every row of every user table from source to target
// in one transaction. INSERT OR REPLACE makes reruns idempotent. Tables are
// replayed alphabetically, so child rows can land before their parents;
// foreign keys stay off on the target for the duration of the transfer.
func transferRows(ctx context.Context, source, target string) (int64, error) {
	src, err := storage.Open(ctx, source, storage.DefaultOpenOptions())
	if err != nil {
		return 0, fmt.Errorf("opening source: %w", err)
	}
	defer src.Close()

	opts := storage.DefaultOpenOptions()
	opts.ForeignKeys = false
	dst, err := storage.Open(ctx, target, opts)
	if err != nil {
		return 0, fmt.Errorf("opening target: %w", err)
	}
	defer dst.Close()

	tables, err := userTables(ctx, src)
	if err != nil {
		return 0, err
	}

	tx, err := dst.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("starting target transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	for _, table := range tables {
		n, err := copyTableRows(ctx, src, tx, table)
		if err != nil {
			return total, fmt.Errorf("transferring %s: %w", table, err)
		}
		total += n
	}
	if err := tx.Commit(); err != nil {
		return total, fmt.Errorf("committing transfer: %w", err)
	}
	return total, nil
}

func copyTableRows(ctx context.Context, src *sql.DB, tx *sql.Tx, table string) (int64, error) {
	rows, err := src.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %q", table))
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return 0, err
	}
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = fmt.Sprintf("%q", col)
		marks[i] = "?"
	}
	insert := fmt.Sprintf("INSERT OR REPLACE INTO %q (%s) VALUES (%s)",
		table, strings.Join(quoted, ", "), strings.Join(marks, ", "))
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var copied int64
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return copied, err
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			return copied, err
		}
		copied++
	}
	return copied, rows.Err()
}

// userTables lists every table except SQLite's internal ones, sorted by
// name.
func userTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master
		 WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("listing tables: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	return tables, nil
}

// countRecords sums the rows of every user table.
func countRecords(ctx context.Context, path string) (int64, error) {
	db, err := storage.Open(ctx, path, storage.DefaultOpenOptions())
	if err != nil {
		return 0, fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	tables, err := userTables(ctx, db)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, table := range tables {
		var n int64
		if err := db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %q", table)).Scan(&n); err != nil {
			return total, fmt.Errorf("counting %s: %w", table, err)
		}
		total += n
	}
	return total, nil
}

// checksumFile returns the SHA-256 of a file as a hex string.
func checksumFile(path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from the migration plan
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// copyFile clones src to dst, truncating any existing dst, and flushes the
// result to disk.
func copyFile(src, dst string) error {
	// #nosec G304 -- both paths come from the migration plan
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source file: %w", err)
	}
	defer in.Close()

	// #nosec G304 -- both paths come from the migration plan
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating destination file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copying file: %w", err)
	}
	return out.Sync()
}
