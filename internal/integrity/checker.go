// Package integrity verifies the structural and referential health of a
// database file and rebuilds it when the damage allows. Checks are merged:
// later sub-checks still run after earlier ones fail, so a single pass
// reports as much as possible. Only a bad file header short-circuits the
// SQL-level checks, because then the file is not a database at all.
package integrity

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/litekeeper/litekeeper/internal/core"
	"github.com/litekeeper/litekeeper/internal/events"
	"github.com/litekeeper/litekeeper/internal/logging"
	"github.com/litekeeper/litekeeper/internal/storage"
)

const (
	// minPlausibleSize is the smallest file size a populated database can
	// have; anything below it is treated as truncation.
	minPlausibleSize = 1024

	// maxRepairableErrors caps how much damage a rebuild will attempt to
	// work around.
	maxRepairableErrors = 10
)

// magicHeader is the 16-byte prefix of every well-formed SQLite file.
var magicHeader = []byte("SQLite format 3\x00")

// requiredColumns lists the columns each schema table must carry. Missing
// entries are reported as warnings, not corruption: an older or partially
// migrated database is degraded, not damaged.
var requiredColumns = map[string][]string{
	"schema_migrations":   {"version"},
	"users":               {"id", "username", "role"},
	"machines":            {"id", "serial_no", "model"},
	"batteries":           {"id", "machine_id", "serial_no"},
	"maintenance_records": {"id", "machine_id", "performed_at"},
	"app_settings":        {"key", "value"},
	"event_log":           {"id", "event_type"},
}

// CheckOptions controls a single integrity pass.
type CheckOptions struct {
	// CreateBackup snapshots the file before checking it. Repairs always
	// take a backup regardless of this flag.
	CreateBackup bool
}

// CheckResult is the merged outcome of one integrity pass. Errors make the
// result invalid; warnings alone do not.
type CheckResult struct {
	IsValid            bool          `json:"is_valid"`
	CorruptionDetected bool          `json:"corruption_detected"`
	Errors             []string      `json:"errors,omitempty"`
	Warnings           []string      `json:"warnings,omitempty"`
	RepairPossible     bool          `json:"repair_possible"`
	BackupRecommended  bool          `json:"backup_recommended"`
	CheckedAt          time.Time     `json:"checked_at"`
	Duration           time.Duration `json:"duration"`
	BackupPath         string        `json:"backup_path,omitempty"`
}

// Status maps the result onto the coordinator's integrity states.
func (r *CheckResult) Status() core.IntegrityStatus {
	switch {
	case r.CorruptionDetected:
		return core.IntegrityCorrupted
	case len(r.Errors) > 0 || len(r.Warnings) > 0:
		return core.IntegrityWarning
	default:
		return core.IntegrityHealthy
	}
}

// Checker runs integrity checks and repairs against one database file.
type Checker struct {
	path     string
	store    *storage.Store
	expected []string
	openOpts storage.OpenOptions
	canary   bool
	bus      *events.EventBus
	logger   *logging.Logger
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithBackupStore sets the store used for pre-check and pre-repair backups.
func WithBackupStore(s *storage.Store) CheckerOption {
	return func(c *Checker) { c.store = s }
}

// WithExpectedTables overrides the table list the schema check verifies.
func WithExpectedTables(tables []string) CheckerOption {
	return func(c *Checker) { c.expected = tables }
}

// WithCanaryProbe enables the write canary: each check round-trips one
// row through a scratch table to prove the file is writable end to end.
// Off by default because it turns an otherwise read-only pass into one
// that touches the file.
func WithCanaryProbe(enabled bool) CheckerOption {
	return func(c *Checker) { c.canary = enabled }
}

// WithOpenOptions sets the pragmas used when the checker opens the file.
func WithOpenOptions(opts storage.OpenOptions) CheckerOption {
	return func(c *Checker) { c.openOpts = opts }
}

// WithEventBus publishes corruption findings and repair outcomes.
func WithEventBus(bus *events.EventBus) CheckerOption {
	return func(c *Checker) { c.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) CheckerOption {
	return func(c *Checker) { c.logger = l.WithComponent("integrity") }
}

// NewChecker creates a checker bound to the database at path.
func NewChecker(path string, opts ...CheckerOption) *Checker {
	c := &Checker{
		path:     path,
		expected: storage.ExpectedTables(),
		openOpts: storage.DefaultOpenOptions(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = storage.NewStore(path)
	}
	return c
}

// Path returns the database file the checker is bound to.
func (c *Checker) Path() string { return c.path }

// Check runs the merged integrity pass: the raw file structure, the
// engine's own integrity pragma, the expected schema, referential
// consistency, and index statistics.
func (c *Checker) Check(ctx context.Context, opts CheckOptions) *CheckResult {
	start := time.Now()
	res := &CheckResult{CheckedAt: start}
	c.logger.Info("integrity check started", "path", c.path, "backup", opts.CreateBackup)

	fi, err := os.Stat(c.path)
	if os.IsNotExist(err) {
		res.Errors = append(res.Errors, "database file not found")
		return c.finalize(res, start, true)
	}
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("inspecting database file: %v", err))
		return c.finalize(res, start, true)
	}

	if opts.CreateBackup {
		info, err := c.store.CreateFromFile("integrity check")
		if err != nil {
			c.logger.Warn("pre-check backup failed", "error", err)
			res.Warnings = append(res.Warnings, fmt.Sprintf("pre-check backup failed: %v", err))
		} else {
			res.BackupPath = info.Path
		}
	}

	headerOK := c.checkFileStructure(fi.Size(), res)
	if headerOK {
		c.runDatabaseChecks(ctx, res)
	}
	return c.finalize(res, start, !headerOK)
}

// checkFileStructure validates size and magic header. It returns false
// when the header is unreadable or wrong, which rules out both SQL-level
// checks and repair.
func (c *Checker) checkFileStructure(size int64, res *CheckResult) bool {
	if size == 0 {
		res.Errors = append(res.Errors, "database file is empty")
		res.CorruptionDetected = true
		return false
	}
	if size < minPlausibleSize {
		res.Errors = append(res.Errors, fmt.Sprintf("database file is too small to be intact (%d bytes)", size))
		res.CorruptionDetected = true
	}

	// #nosec G304 -- the path is the checker's configured database file
	f, err := os.Open(c.path)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("reading file header: %v", err))
		res.CorruptionDetected = true
		return false
	}
	defer f.Close()

	header := make([]byte, len(magicHeader))
	if _, err := io.ReadFull(f, header); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("reading file header: %v", err))
		res.CorruptionDetected = true
		return false
	}
	for i := range magicHeader {
		if header[i] != magicHeader[i] {
			res.Errors = append(res.Errors, "file does not start with the SQLite format header")
			res.CorruptionDetected = true
			return false
		}
	}
	return true
}

// runDatabaseChecks opens the file once and runs the SQL-level sub-checks
// against the shared handle.
func (c *Checker) runDatabaseChecks(ctx context.Context, res *CheckResult) {
	db, err := storage.Open(ctx, c.path, c.openOpts)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("opening database for checks: %v", err))
		res.CorruptionDetected = true
		return
	}
	defer db.Close()

	c.checkIntegrityPragma(ctx, db, res)
	c.checkSchema(ctx, db, res)
	c.checkReferences(ctx, db, res)
	c.checkIndexes(ctx, db, res)
	if c.canary {
		c.checkWriteCanary(ctx, db, res)
	}
}

// checkWriteCanary round-trips one row through a scratch table. A failed
// round trip is an error but not corruption: a read-only or locked
// database is unusable without being damaged.
func (c *Checker) checkWriteCanary(ctx context.Context, db *sql.DB, res *CheckResult) {
	const table = "_litekeeper_canary"

	stmts := []string{
		"CREATE TABLE IF NOT EXISTS " + table + " (id INTEGER PRIMARY KEY, written_at TEXT NOT NULL)",
		"INSERT INTO " + table + " (written_at) VALUES (datetime('now'))",
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("write canary failed: %v", err))
			return
		}
	}

	var count int64
	if err := db.QueryRowContext(ctx, "SELECT count(*) FROM "+table).Scan(&count); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("reading canary row back: %v", err))
		return
	}
	if count == 0 {
		res.Errors = append(res.Errors, "canary row vanished between write and read")
		return
	}
	if _, err := db.ExecContext(ctx, "DROP TABLE "+table); err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("dropping canary table: %v", err))
	}
}

// checkIntegrityPragma runs the engine's own structural self-check. Any
// row other than a single "ok" is corruption.
func (c *Checker) checkIntegrityPragma(ctx context.Context, db *sql.DB, res *CheckResult) {
	rows, err := db.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("integrity pragma failed: %v", err))
		res.CorruptionDetected = true
		return
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("reading integrity pragma output: %v", err))
			res.CorruptionDetected = true
			return
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("reading integrity pragma output: %v", err))
		res.CorruptionDetected = true
		return
	}

	if len(lines) == 1 && lines[0] == "ok" {
		return
	}
	for _, line := range lines {
		res.Errors = append(res.Errors, "integrity check: "+line)
	}
	res.CorruptionDetected = true
}

// checkSchema verifies the expected tables and their required columns
// exist. Findings are warnings: a missing table is a migration problem,
// not file damage.
func (c *Checker) checkSchema(ctx context.Context, db *sql.DB, res *CheckResult) {
	existing, err := tableNames(ctx, db)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("schema check failed: %v", err))
		return
	}

	present := make(map[string]bool, len(existing))
	for _, name := range existing {
		present[name] = true
	}
	for _, table := range c.expected {
		if !present[table] {
			res.Warnings = append(res.Warnings, "missing table: "+table)
		}
	}

	for table, columns := range requiredColumns {
		if !present[table] {
			continue
		}
		have, err := columnNames(ctx, db, table)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("inspecting table %s: %v", table, err))
			continue
		}
		for _, col := range columns {
			if !have[col] {
				res.Warnings = append(res.Warnings, fmt.Sprintf("table %s is missing column %s", table, col))
			}
		}
	}
}

// checkReferences discovers foreign keys from the schema and counts child
// rows whose parent no longer exists. Orphans are data errors but not
// file corruption.
func (c *Checker) checkReferences(ctx context.Context, db *sql.DB, res *CheckResult) {
	tables, err := tableNames(ctx, db)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("foreign key check failed: %v", err))
		return
	}

	for _, table := range tables {
		refs, err := foreignKeys(ctx, db, table)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("listing foreign keys of %s: %v", table, err))
			continue
		}
		for _, ref := range refs {
			n, err := countOrphans(ctx, db, table, ref)
			if err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("counting orphans in %s: %v", table, err))
				continue
			}
			if n > 0 {
				res.Errors = append(res.Errors,
					fmt.Sprintf("%s.%s: %d rows reference a missing %s row", table, ref.From, n, ref.Parent))
			}
		}
	}
}

// checkIndexes refreshes index statistics. A failing ANALYZE is only a
// warning; the data itself is still readable.
func (c *Checker) checkIndexes(ctx context.Context, db *sql.DB, res *CheckResult) {
	if _, err := db.ExecContext(ctx, "ANALYZE"); err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("index analysis failed: %v", err))
	}
}

// finalize derives the summary fields and publishes corruption findings.
func (c *Checker) finalize(res *CheckResult, start time.Time, headerCorrupt bool) *CheckResult {
	res.IsValid = len(res.Errors) == 0
	res.RepairPossible = res.CorruptionDetected && !headerCorrupt && len(res.Errors) < maxRepairableErrors
	res.BackupRecommended = res.CorruptionDetected || len(res.Errors) > 0
	res.Duration = time.Since(start)

	c.logger.Info("integrity check finished",
		"path", c.path,
		"valid", res.IsValid,
		"corruption", res.CorruptionDetected,
		"errors", len(res.Errors),
		"warnings", len(res.Warnings),
		"duration", res.Duration)

	if res.CorruptionDetected && c.bus != nil {
		c.bus.PublishPriority(events.NewCorruptionDetectedEvent(c.path, res.Errors, res.RepairPossible))
	}
	return res
}

// VerifyFile runs a check against path and reduces it to the verdict the
// storage coordinator consumes before connecting. A path other than the
// configured one binds a throwaway checker; backups and reports stay with
// the configured path.
func (c *Checker) VerifyFile(ctx context.Context, path string) (*storage.IntegrityVerdict, error) {
	ck := c
	if path != c.path {
		clone := *c
		clone.path = path
		clone.store = storage.NewStore(path)
		ck = &clone
	}
	res := ck.Check(ctx, CheckOptions{})
	return &storage.IntegrityVerdict{
		Status:     res.Status(),
		Errors:     res.Errors,
		Warnings:   res.Warnings,
		Repairable: res.RepairPossible,
	}, nil
}

var _ storage.IntegrityVerifier = (*Checker)(nil)

// ref describes one foreign key edge: table.From points at Parent.To.
type ref struct {
	Parent string
	From   string
	To     string
}

// tableNames lists user tables, excluding the engine's internal ones.
func tableNames(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// columnNames returns the column set of a table.
func columnNames(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// foreignKeys lists the outgoing foreign key edges of a table. An empty
// "to" column means the key references the parent's primary key, which is
// resolved here.
func foreignKeys(ctx context.Context, db *sql.DB, table string) ([]ref, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%q)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []ref
	for rows.Next() {
		var (
			id, seq                     int
			parent, from                string
			to                          sql.NullString
			onUpdate, onDelete, matchBy string
		)
		if err := rows.Scan(&id, &seq, &parent, &from, &to, &onUpdate, &onDelete, &matchBy); err != nil {
			return nil, err
		}
		refs = append(refs, ref{Parent: parent, From: from, To: to.String})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range refs {
		if refs[i].To != "" {
			continue
		}
		pk, err := primaryKeyColumn(ctx, db, refs[i].Parent)
		if err != nil {
			return nil, err
		}
		refs[i].To = pk
	}
	return refs, nil
}

// primaryKeyColumn returns the first primary key column of a table,
// falling back to rowid for tables without a declared key.
func primaryKeyColumn(ctx context.Context, db *sql.DB, table string) (string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return "", err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return "", err
		}
		if pk > 0 {
			return name, nil
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return "rowid", nil
}

// countOrphans counts rows of table whose foreign key points at a missing
// parent row. Identifiers come straight from sqlite_master, quoted.
func countOrphans(ctx context.Context, db *sql.DB, table string, r ref) (int64, error) {
	query := fmt.Sprintf(
		`SELECT COUNT(*) FROM %q child LEFT JOIN %q parent ON child.%q = parent.%q WHERE child.%q IS NOT NULL AND parent.%q IS NULL`,
		table, r.Parent, r.From, r.To, r.From, r.To)
	var n int64
	if err := db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
