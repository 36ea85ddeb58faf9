package storage

import (
	"context"
	"testing"
)

func TestInitializeSchemaIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := openTestDB(t)

	for i := 0; i < 2; i++ {
		if err := InitializeSchema(ctx, db); err != nil {
			t.Fatalf("InitializeSchema() pass %d error = %v", i+1, err)
		}
	}
	version, err := CurrentSchemaVersion(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if version != SchemaVersion {
		t.Errorf("schema version = %d, want %d", version, SchemaVersion)
	}
}

func TestInitializeSchemaCreatesExpectedTables(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := openTestDB(t)
	if err := InitializeSchema(ctx, db); err != nil {
		t.Fatal(err)
	}

	for _, table := range ExpectedTables() {
		var name string
		err := db.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("expected table %s missing: %v", table, err)
		}
	}
}

func TestInitializeSchemaSeedsDefaults(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := openTestDB(t)
	if err := InitializeSchema(ctx, db); err != nil {
		t.Fatal(err)
	}

	var role string
	if err := db.QueryRowContext(ctx, `SELECT role FROM users WHERE username = 'admin'`).Scan(&role); err != nil {
		t.Fatalf("seeded admin user missing: %v", err)
	}
	if role != "admin" {
		t.Errorf("admin role = %q, want admin", role)
	}

	var settings int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM app_settings`).Scan(&settings); err != nil {
		t.Fatal(err)
	}
	if settings < 3 {
		t.Errorf("app_settings holds %d rows, want at least 3", settings)
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := openTestDB(t)
	if err := InitializeSchema(ctx, db); err != nil {
		t.Fatal(err)
	}

	_, err := db.ExecContext(ctx, `INSERT INTO batteries (machine_id, serial_no) VALUES (999, 'B-1')`)
	if err == nil {
		t.Error("insert with dangling machine_id succeeded, foreign keys are off")
	}
}

func TestCurrentSchemaVersionEmptyDatabase(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := openTestDB(t)

	if _, err := db.ExecContext(ctx, `CREATE TABLE schema_migrations (version INTEGER PRIMARY KEY, applied_at TIMESTAMP)`); err != nil {
		t.Fatal(err)
	}
	version, err := CurrentSchemaVersion(ctx, db)
	if err != nil {
		t.Fatalf("CurrentSchemaVersion() error = %v", err)
	}
	if version != 0 {
		t.Errorf("version = %d, want 0 for empty bookkeeping table", version)
	}
}

func TestExpectedTablesIncludeBookkeeping(t *testing.T) {
	t.Parallel()
	found := false
	for _, table := range ExpectedTables() {
		if table == "schema_migrations" {
			found = true
		}
	}
	if !found {
		t.Error("ExpectedTables() does not list schema_migrations")
	}
}
