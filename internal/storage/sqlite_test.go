package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// openTestDB opens a fresh file-backed database under the test's temp
// directory.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "app.db"), DefaultOpenOptions())
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenCreatesFileAndProbes(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "app.db")

	db, err := Open(context.Background(), path, DefaultOpenOptions())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file not created: %v", err)
	}
	if err := Probe(context.Background(), db); err != nil {
		t.Errorf("Probe() error = %v", err)
	}
}

func TestOpenMemoryKeepsDataAcrossCalls(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db, err := OpenMemory(ctx, DefaultOpenOptions())
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	defer db.Close()

	// Each statement checks a connection out of the pool. With the pool
	// pinned they all see the same in-memory database.
	if _, err := db.ExecContext(ctx, `CREATE TABLE t (n INTEGER)`); err != nil {
		t.Fatalf("creating table: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO t (n) VALUES (7)`); err != nil {
		t.Fatalf("inserting row: %v", err)
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT n FROM t`).Scan(&n); err != nil {
		t.Fatalf("reading row back: %v", err)
	}
	if n != 7 {
		t.Errorf("read %d, want 7", n)
	}
}

func TestDSN(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		opts OpenOptions
		path string
		want string
	}{
		{
			name: "defaults",
			opts: DefaultOpenOptions(),
			path: "/data/app.db",
			want: "/data/app.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)",
		},
		{
			name: "zero values fall back",
			opts: OpenOptions{},
			path: "app.db",
			want: "app.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(0)",
		},
		{
			name: "custom journal mode and timeout",
			opts: OpenOptions{JournalMode: "delete", BusyTimeout: 250 * time.Millisecond, ForeignKeys: true},
			path: "app.db",
			want: "app.db?_pragma=journal_mode(DELETE)&_pragma=busy_timeout(250)&_pragma=foreign_keys(1)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.opts.DSN(tt.path); got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSidecarPaths(t *testing.T) {
	t.Parallel()
	got := SidecarPaths("/data/app.db")
	want := []string{"/data/app.db-wal", "/data/app.db-shm", "/data/app.db-journal"}
	if len(got) != len(want) {
		t.Fatalf("SidecarPaths() returned %d paths, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("SidecarPaths()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRemoveDatabaseFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "app.db")
	for _, p := range append([]string{path}, SidecarPaths(path)...) {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := RemoveDatabaseFiles(path); err != nil {
		t.Fatalf("RemoveDatabaseFiles() error = %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("directory holds %d files after removal, want 0", len(entries))
	}

	// A second pass over missing files must not fail.
	if err := RemoveDatabaseFiles(path); err != nil {
		t.Errorf("RemoveDatabaseFiles() on missing files error = %v", err)
	}
}

func TestProbeFailsOnClosedHandle(t *testing.T) {
	t.Parallel()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "app.db"), DefaultOpenOptions())
	if err != nil {
		t.Fatal(err)
	}
	db.Close()

	if err := Probe(context.Background(), db); err == nil {
		t.Error("Probe() on a closed handle returned nil error")
	}
}
