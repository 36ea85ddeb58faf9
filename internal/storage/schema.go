package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
)

// SchemaVersion is what a fully migrated database reports.
const SchemaVersion = 2

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

//go:embed migrations/002_seed_defaults.sql
var migrationV2 string

// InitializeSchema brings a connected database up to the current schema
// version. It is idempotent and runs on every open.
func InitializeSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	version, err := CurrentSchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	if version < 1 {
		if _, err := db.ExecContext(ctx, migrationV1); err != nil {
			return fmt.Errorf("applying initial schema: %w", err)
		}
	}
	if version < 2 {
		if _, err := db.ExecContext(ctx, migrationV2); err != nil {
			return fmt.Errorf("applying seed defaults: %w", err)
		}
	}
	return nil
}

// CurrentSchemaVersion reports the highest applied migration version, zero
// for a database with an empty bookkeeping table.
func CurrentSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// ExpectedTables lists the tables a healthy database contains. The
// integrity checker flags databases that are missing any of them.
func ExpectedTables() []string {
	return []string{
		"schema_migrations",
		"users",
		"machines",
		"batteries",
		"maintenance_records",
		"app_settings",
		"event_log",
	}
}
