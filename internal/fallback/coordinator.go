// Package fallback obtains a working database handle when the primary
// file cannot be used. Four recovery tiers are tried in a fixed order:
// restore the newest backup, create a replacement at an alternative
// location, create a clean database, and finally run in memory. Every
// tier that succeeds hands back a schema-initialized, probe-tested
// handle; the in-memory tier means no recovery path leaves the
// application without a database at all.
package fallback

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/litekeeper/litekeeper/internal/core"
	"github.com/litekeeper/litekeeper/internal/integrity"
	"github.com/litekeeper/litekeeper/internal/locate"
	"github.com/litekeeper/litekeeper/internal/logging"
	"github.com/litekeeper/litekeeper/internal/storage"
)

const stampFormat = "20060102_150405"

// Result describes the outcome of one recovery tier. On success DB is a
// live handle the caller owns; DatabasePath is where it lives, or
// ":memory:" for the in-memory tier.
type Result struct {
	Success      bool              `json:"success"`
	Type         core.FallbackType `json:"type,omitempty"`
	DatabasePath string            `json:"database_path,omitempty"`
	Message      string            `json:"message"`
	Warnings     []string          `json:"warnings,omitempty"`
	DB           *sql.DB           `json:"-"`
}

// IsTemporary reports whether the recovered database will not survive the
// process: the in-memory tier always, and the clean tier because it holds
// none of the original data.
func (r *Result) IsTemporary() bool {
	return core.IsTemporaryFallback(r.Type)
}

// Status is a snapshot of the coordinator's last successful engagement.
type Status struct {
	Active       bool              `json:"active"`
	Type         core.FallbackType `json:"type,omitempty"`
	DatabasePath string            `json:"database_path,omitempty"`
	Temporary    bool              `json:"temporary"`
	EngagedAt    time.Time         `json:"engaged_at"`
}

// Coordinator walks the recovery tiers for one primary database path.
// Each tier is also callable on its own, so a UI can offer the choice
// instead of auto-selecting.
type Coordinator struct {
	primaryPath string
	appName     string
	store       *storage.Store
	verifier    storage.IntegrityVerifier
	access      *locate.AccessValidator
	openOpts    storage.OpenOptions
	candidates  []string
	allowMemory bool
	logger      *logging.Logger

	mu        sync.Mutex
	active    *Result
	engagedAt time.Time
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithBackupStore sets the backup store the restore tier reads from.
func WithBackupStore(s *storage.Store) CoordinatorOption {
	return func(c *Coordinator) {
		if s != nil {
			c.store = s
		}
	}
}

// WithVerifier replaces the integrity verifier used to vet backups
// before they are restored.
func WithVerifier(v storage.IntegrityVerifier) CoordinatorOption {
	return func(c *Coordinator) {
		if v != nil {
			c.verifier = v
		}
	}
}

// WithOpenOptions sets the SQLite open options for recovered databases.
func WithOpenOptions(opts storage.OpenOptions) CoordinatorOption {
	return func(c *Coordinator) { c.openOpts = opts }
}

// WithAppName sets the application name used to derive alternative
// locations.
func WithAppName(name string) CoordinatorOption {
	return func(c *Coordinator) {
		if name != "" {
			c.appName = name
		}
	}
}

// WithCandidateDirs replaces the default alternative-location list.
func WithCandidateDirs(dirs ...string) CoordinatorOption {
	return func(c *Coordinator) { c.candidates = dirs }
}

// WithAllowMemory enables or disables the in-memory tier. Disabling it
// means recovery can fail outright.
func WithAllowMemory(allow bool) CoordinatorOption {
	return func(c *Coordinator) { c.allowMemory = allow }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l.WithComponent("fallback")
		}
	}
}

// NewCoordinator creates a fallback coordinator for the given primary
// database path.
func NewCoordinator(primaryPath string, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		primaryPath: primaryPath,
		appName:     "LiteKeeper",
		openOpts:    storage.DefaultOpenOptions(),
		access:      locate.NewAccessValidator(nil),
		allowMemory: true,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = storage.NewStore(primaryPath)
	}
	if c.verifier == nil {
		c.verifier = integrity.NewChecker(primaryPath)
	}
	return c
}

// Run tries the tiers in order and returns the first success, with the
// failures of the earlier tiers carried as warnings. Every tier can only
// fail when the in-memory tier is disabled or the context is cancelled;
// the result then reports failure and the caller has no database.
func (c *Coordinator) Run(ctx context.Context) *Result {
	tiers := []struct {
		name string
		run  func(context.Context) (*Result, error)
	}{
		{"backup restore", func(ctx context.Context) (*Result, error) { return c.RestoreFromBackup(ctx, "") }},
		{"alternative location", func(ctx context.Context) (*Result, error) { return c.CreateAlternativeDatabase(ctx) }},
		{"clean database", func(ctx context.Context) (*Result, error) { return c.CreateCleanDatabase(ctx, "") }},
		{"memory database", c.CreateMemoryDatabase},
	}

	var warnings []string
	for _, tier := range tiers {
		if err := ctx.Err(); err != nil {
			warnings = append(warnings, fmt.Sprintf("recovery cancelled: %v", err))
			break
		}
		res, err := tier.run(ctx)
		if err != nil {
			c.logger.Warn("recovery tier failed", "tier", tier.name, "error", err)
			warnings = append(warnings, fmt.Sprintf("%s: %v", tier.name, err))
			continue
		}
		res.Warnings = append(warnings, res.Warnings...)
		c.logger.Info("recovery tier succeeded",
			"tier", tier.name, "path", res.DatabasePath, "temporary", res.IsTemporary())
		return res
	}

	return &Result{Success: false, Message: "every recovery tier failed", Warnings: warnings}
}

// Engage satisfies the storage coordinator's fallback contract.
func (c *Coordinator) Engage(ctx context.Context) (*storage.FallbackOutcome, error) {
	res := c.Run(ctx)
	if !res.Success {
		return nil, fmt.Errorf("every recovery tier failed: %s", strings.Join(res.Warnings, "; "))
	}
	return &storage.FallbackOutcome{
		Type:     res.Type,
		Path:     res.DatabasePath,
		DB:       res.DB,
		Message:  res.Message,
		Warnings: res.Warnings,
	}, nil
}

var _ storage.FallbackHandler = (*Coordinator)(nil)

// RestoreFromBackup restores a backup over the primary path. An empty
// backupPath selects the newest artifact in the store; both raw .db
// copies and .zip archives are accepted. The artifact is integrity-checked
// before anything touches the primary file, so a corrupt backup is
// rejected without making matters worse.
func (c *Coordinator) RestoreFromBackup(ctx context.Context, backupPath string) (*Result, error) {
	if backupPath == "" {
		info, ok, err := c.store.Latest()
		if err != nil {
			return nil, fmt.Errorf("listing backups: %w", err)
		}
		if !ok {
			return nil, errors.New("no backups available")
		}
		backupPath = info.Path
	}

	if err := c.verifyArtifact(ctx, backupPath); err != nil {
		return nil, err
	}
	if err := c.store.Restore(backupPath); err != nil {
		return nil, fmt.Errorf("restoring backup: %w", err)
	}

	db, err := c.openAndPrepare(ctx, c.primaryPath)
	if err != nil {
		return nil, fmt.Errorf("opening restored database: %w", err)
	}

	res := &Result{
		Success:      true,
		Type:         core.FallbackBackupRestore,
		DatabasePath: c.primaryPath,
		DB:           db,
		Message:      fmt.Sprintf("restored from backup %s", filepath.Base(backupPath)),
		Warnings:     []string{"changes made after the backup was taken are lost"},
	}
	c.remember(res)
	return res, nil
}

// verifyArtifact checks a backup before it is allowed near the primary
// file. Archives are extracted to a staging file first; raw backups are
// checked in place.
func (c *Coordinator) verifyArtifact(ctx context.Context, backupPath string) error {
	target := backupPath
	if filepath.Ext(backupPath) == ".zip" {
		staged := c.primaryPath + ".verify"
		defer func() { _ = os.Remove(staged) }()
		if _, err := storage.ExtractArchive(backupPath, staged); err != nil {
			return fmt.Errorf("extracting backup archive: %w", err)
		}
		target = staged
	}

	verdict, err := c.verifier.VerifyFile(ctx, target)
	if err != nil {
		return fmt.Errorf("checking backup: %w", err)
	}
	if verdict.Status == core.IntegrityCorrupted {
		return fmt.Errorf("backup %s is corrupt: %s", filepath.Base(backupPath), firstOr(verdict.Errors, "integrity check failed"))
	}
	return nil
}

// CreateAlternativeDatabase creates a fresh database at the first
// writable location from the candidate list. The default list is the
// temp directory, the home directory, the working directory, the
// per-user application data folder, and the desktop as last resort.
// The new database starts from the seeded schema; nothing from the
// primary file is carried over.
func (c *Coordinator) CreateAlternativeDatabase(ctx context.Context, candidates ...string) (*Result, error) {
	if len(candidates) == 0 {
		candidates = c.candidates
	}
	if len(candidates) == 0 {
		candidates = c.alternativeDirs()
	}

	fileName := filepath.Base(c.primaryPath)
	var failures []string
	for _, dir := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if dir == "" {
			continue
		}
		path := filepath.Join(dir, fileName)
		if path == c.primaryPath {
			continue
		}

		if err := os.MkdirAll(dir, 0o755); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", dir, err))
			continue
		}
		if !c.access.ProbeWrite(dir) {
			failures = append(failures, fmt.Sprintf("%s: not writable", dir))
			continue
		}

		db, err := c.openAndPrepare(ctx, path)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", path, err))
			continue
		}

		res := &Result{
			Success:      true,
			Type:         core.FallbackAlternativeLocation,
			DatabasePath: path,
			DB:           db,
			Message:      fmt.Sprintf("created replacement database at %s", path),
			Warnings: []string{
				"data from the original database is not available at the new location",
				fmt.Sprintf("the database now lives at %s", path),
			},
		}
		c.remember(res)
		return res, nil
	}

	if len(failures) == 0 {
		return nil, errors.New("no alternative locations to try")
	}
	return nil, fmt.Errorf("no alternative location is writable: %s", strings.Join(failures, "; "))
}

// CreateCleanDatabase creates a fresh seeded database, discarding
// whatever sits at the target path. An empty path synthesizes a
// timestamped sibling of the primary file. This is the first destructive
// tier: the original data is not recovered by it.
func (c *Coordinator) CreateCleanDatabase(ctx context.Context, path string) (*Result, error) {
	if path == "" {
		base := strings.TrimSuffix(filepath.Base(c.primaryPath), filepath.Ext(c.primaryPath))
		path = filepath.Join(filepath.Dir(c.primaryPath),
			fmt.Sprintf("%s_clean_%s.db", base, time.Now().Format(stampFormat)))
	}

	if err := storage.RemoveDatabaseFiles(path); err != nil {
		return nil, fmt.Errorf("clearing target path: %w", err)
	}
	db, err := c.openAndPrepare(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("creating clean database: %w", err)
	}

	res := &Result{
		Success:      true,
		Type:         core.FallbackCleanDatabase,
		DatabasePath: path,
		DB:           db,
		Message:      fmt.Sprintf("created clean database at %s", path),
		Warnings: []string{
			"any existing data at this path was discarded",
			"the database starts empty, previous data was not recovered",
		},
	}
	c.remember(res)
	return res, nil
}

// CreateMemoryDatabase is the last resort: a seeded in-memory database
// that vanishes when the process exits. Callers must surface that to the
// user before any work is done against it.
func (c *Coordinator) CreateMemoryDatabase(ctx context.Context) (*Result, error) {
	if !c.allowMemory {
		return nil, errors.New("in-memory fallback is disabled")
	}

	db, err := storage.OpenMemory(ctx, c.openOpts)
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}
	if err := c.prepare(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	res := &Result{
		Success:      true,
		Type:         core.FallbackMemoryDatabase,
		DatabasePath: ":memory:",
		DB:           db,
		Message:      "running on an in-memory database",
		Warnings:     []string{"all changes are lost when the application exits"},
	}
	c.remember(res)
	return res, nil
}

// Status reports the last successful engagement, if any.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return Status{}
	}
	return Status{
		Active:       true,
		Type:         c.active.Type,
		DatabasePath: c.active.DatabasePath,
		Temporary:    c.active.IsTemporary(),
		EngagedAt:    c.engagedAt,
	}
}

// openAndPrepare opens a file-backed database and brings it to a usable
// state: schema applied, connection probed.
func (c *Coordinator) openAndPrepare(ctx context.Context, path string) (*sql.DB, error) {
	db, err := storage.Open(ctx, path, c.openOpts)
	if err != nil {
		return nil, err
	}
	if err := c.prepare(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (c *Coordinator) prepare(ctx context.Context, db *sql.DB) error {
	if err := storage.InitializeSchema(ctx, db); err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	if err := storage.Probe(ctx, db); err != nil {
		return fmt.Errorf("probing connection: %w", err)
	}
	return nil
}

func (c *Coordinator) remember(res *Result) {
	c.mu.Lock()
	c.active = res
	c.engagedAt = time.Now()
	c.mu.Unlock()
}

// alternativeDirs builds the default candidate list for the alternative
// tier. Order matters: temp first because it is almost always writable,
// the desktop last because a database there is hard to miss.
func (c *Coordinator) alternativeDirs() []string {
	dirs := []string{os.TempDir()}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, home)
	}
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}
	if data := locate.AppDataDir(c.appName); data != "" {
		dirs = append(dirs, data)
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, "Desktop"))
	}
	return dirs
}

func firstOr(list []string, fallback string) string {
	if len(list) > 0 {
		return list[0]
	}
	return fallback
}
