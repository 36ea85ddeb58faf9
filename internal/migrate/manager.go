// Package migrate moves a database from one location to another with the
// safety rails a desktop deployment needs: a pre-flight backup, checksum
// verification, an integrity check of the result, and automatic rollback
// when any of that fails. Four transfer strategies cover the common moves,
// from a byte-exact file clone down to replaying rows into an existing
// schema.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/litekeeper/litekeeper/internal/core"
	"github.com/litekeeper/litekeeper/internal/diagnostics"
	"github.com/litekeeper/litekeeper/internal/events"
	"github.com/litekeeper/litekeeper/internal/integrity"
	"github.com/litekeeper/litekeeper/internal/locate"
	"github.com/litekeeper/litekeeper/internal/logging"
	"github.com/litekeeper/litekeeper/internal/retry"
)

const stampFormat = "20060102_150405"

// DefaultWorkFileAge is how long pre-migration backups are kept before
// CleanupWorkFiles considers them stale.
const DefaultWorkFileAge = 7 * 24 * time.Hour

// Manager plans and executes database migrations. File work (copies,
// backups, rollbacks) and SQL work run under separate retry executors
// because they fail differently: file copies hit permission races, SQL
// phases hit lock contention.
type Manager struct {
	workDir string
	files   *retry.Executor
	db      *retry.Executor
	access  *locate.AccessValidator
	bus     *events.EventBus
	logger  *logging.Logger

	mu      sync.Mutex
	history []*Result
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithWorkDir places pre-migration backups somewhere other than the
// default temp directory.
func WithWorkDir(dir string) ManagerOption {
	return func(m *Manager) {
		if dir != "" {
			m.workDir = dir
		}
	}
}

// WithFileExecutor replaces the retry executor used for file copies.
func WithFileExecutor(e *retry.Executor) ManagerOption {
	return func(m *Manager) {
		if e != nil {
			m.files = e
		}
	}
}

// WithDatabaseExecutor replaces the retry executor used for SQL phases.
func WithDatabaseExecutor(e *retry.Executor) ManagerOption {
	return func(m *Manager) {
		if e != nil {
			m.db = e
		}
	}
}

// WithEventBus sets the bus migration lifecycle events are published on.
func WithEventBus(b *events.EventBus) ManagerOption {
	return func(m *Manager) { m.bus = b }
}

// WithLogger sets the logger for migration progress.
func WithLogger(l *logging.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l.WithComponent("migrate")
		}
	}
}

// NewManager builds a Manager. The work directory is created eagerly so the
// first migration does not fail on a missing backup location.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		workDir: filepath.Join(os.TempDir(), "litekeeper_migrations"),
		access:  locate.NewAccessValidator(nil),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.files == nil {
		m.files = retry.NewFileExecutor(retry.WithLogger(m.logger))
	}
	if m.db == nil {
		m.db = retry.NewDatabaseExecutor(retry.WithLogger(m.logger))
	}
	if err := os.MkdirAll(m.workDir, 0o755); err != nil {
		m.logger.Warn("creating migration work directory failed", "path", m.workDir, "error", err)
	}
	return m
}

// WorkDir returns where pre-migration backups are written.
func (m *Manager) WorkDir() string { return m.workDir }

// Plan describes a migration without touching anything. The size estimate
// comes from the source file; a missing source plans as zero bytes and
// fails later in Execute with a proper error.
func (m *Manager) Plan(source, target string, typ Type, opts PlanOptions) *Plan {
	plan := &Plan{
		ID:              newMigrationID(),
		SourcePath:      source,
		TargetPath:      target,
		Type:            typ,
		BackupBefore:    opts.BackupBefore,
		VerifyAfter:     opts.VerifyAfter,
		RollbackEnabled: opts.RollbackEnabled,
		CreatedAt:       time.Now().UTC(),
	}
	if fi, err := os.Stat(source); err == nil {
		plan.EstimatedSize = fi.Size()
	}
	plan.EstimatedDuration = estimateDuration(plan.EstimatedSize)
	m.logger.Info("migration planned",
		"id", plan.ID,
		"source", source,
		"target", target,
		"type", string(typ),
		"estimated_size", plan.EstimatedSize,
	)
	return plan
}

// Execute runs a plan end to end and always returns a Result, failed ones
// included. On failure with rollback enabled and a backup in hand, the
// target is restored from the pre-migration backup before returning.
func (m *Manager) Execute(ctx context.Context, plan *Plan) *Result {
	res := &Result{
		ID:         plan.ID,
		Status:     StatusInProgress,
		SourcePath: plan.SourcePath,
		TargetPath: plan.TargetPath,
		StartedAt:  time.Now().UTC(),
	}
	log := m.logger.WithMigration(plan.ID)
	log.Info("migration started", "source", plan.SourcePath, "target", plan.TargetPath, "type", string(plan.Type))
	if m.bus != nil {
		m.bus.Publish(events.NewMigrationStartedEvent(plan.SourcePath, plan.TargetPath, plan.ID, string(plan.Type)))
	}

	err := m.run(ctx, plan, res)
	if err != nil {
		res.Status = StatusFailed
		res.ErrorMessage = err.Error()
		log.Error("migration failed", "error", err)
		if plan.RollbackEnabled && res.BackupPath != "" {
			if rbErr := m.Rollback(ctx, res); rbErr != nil {
				log.Error("rollback failed", "error", rbErr)
				res.Warnings = append(res.Warnings, fmt.Sprintf("rollback failed: %v", rbErr))
			}
		}
	} else {
		res.Status = StatusCompleted
		res.Success = true
	}
	res.FinishedAt = time.Now().UTC()
	res.Duration = res.FinishedAt.Sub(res.StartedAt)

	if res.Success {
		log.Info("migration completed",
			"duration", res.Duration,
			"records", res.RecordsMigrated,
			"bytes", res.DataSizeBytes,
		)
		if m.bus != nil {
			m.bus.Publish(events.NewMigrationCompletedEvent(plan.SourcePath, plan.TargetPath, plan.ID, res.Duration, res.DataSizeBytes))
		}
	} else if m.bus != nil {
		m.bus.PublishPriority(events.NewMigrationFailedEvent(plan.SourcePath, plan.TargetPath, plan.ID, err, res.Status == StatusRolledBack))
	}

	m.mu.Lock()
	m.history = append(m.history, res)
	m.mu.Unlock()
	return res
}

// run is the fallible middle of Execute: preconditions, backup, transfer,
// verification. Only the target directory may be created before the backup
// exists; nothing else is touched until the source is safely copied aside.
func (m *Manager) run(ctx context.Context, plan *Plan, res *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.preconditions(plan, res); err != nil {
		return err
	}
	if plan.BackupBefore {
		if err := m.createBackup(ctx, plan, res); err != nil {
			return err
		}
	}

	sum, err := checksumFile(plan.SourcePath)
	if err != nil {
		return fmt.Errorf("checksumming source: %w", err)
	}
	res.SourceChecksum = sum

	switch plan.Type {
	case FullCopy:
		err = m.fullCopy(ctx, plan, res)
	case Incremental:
		res.Warnings = append(res.Warnings, "incremental migration is not implemented yet; a full copy was performed instead")
		err = m.fullCopy(ctx, plan, res)
	case SchemaOnly:
		err = m.schemaOnly(ctx, plan, res)
	case DataOnly:
		err = m.dataOnly(ctx, plan, res)
	default:
		err = fmt.Errorf("unknown migration type %q", plan.Type)
	}
	if err != nil {
		return err
	}

	sum, err = checksumFile(plan.TargetPath)
	if err != nil {
		return fmt.Errorf("checksumming target: %w", err)
	}
	res.TargetChecksum = sum

	if plan.VerifyAfter {
		if err := m.verify(ctx, plan, res); err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}
	}
	return nil
}

// preconditions rejects a migration that cannot work before anything is
// written. Creating a missing target directory is the one side effect here;
// it is recorded as a warning.
func (m *Manager) preconditions(plan *Plan, res *Result) error {
	fi, err := os.Stat(plan.SourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return core.ErrFileNotFound(plan.SourcePath)
		}
		return fmt.Errorf("inspecting source: %w", err)
	}
	if perm := m.access.CheckFile(plan.SourcePath); !perm.CanRead {
		return core.ErrPermissionDenied(plan.SourcePath)
	}

	targetDir := filepath.Dir(plan.TargetPath)
	if !exists(targetDir) {
		if err := os.MkdirAll(targetDir, 0o755); err != nil {
			return fmt.Errorf("creating target directory: %w", err)
		}
		res.Warnings = append(res.Warnings, fmt.Sprintf("target directory created: %s", targetDir))
	}
	if perm := m.access.CheckDirectory(targetDir); !perm.CanWrite {
		return core.ErrPermissionDenied(targetDir)
	}
	if exists(plan.TargetPath) {
		if perm := m.access.CheckFile(plan.TargetPath); !perm.CanWrite {
			return core.ErrPermissionDenied(plan.TargetPath)
		}
		res.Warnings = append(res.Warnings, fmt.Sprintf("existing target will be overwritten: %s", plan.TargetPath))
	}

	// Twice the source size: the copy itself plus WAL and temp room.
	if _, err := diagnostics.CheckFreeSpace(targetDir, uint64(fi.Size())*2); err != nil {
		return err
	}
	return nil
}

// createBackup copies the source into the work directory and verifies the
// copy by size. The backup is what Rollback restores from, so a short copy
// here would poison every later recovery.
func (m *Manager) createBackup(ctx context.Context, plan *Plan, res *Result) error {
	if err := os.MkdirAll(m.workDir, 0o755); err != nil {
		return fmt.Errorf("creating migration work directory: %w", err)
	}
	name := fmt.Sprintf("backup_before_migration_%s_%s.db", plan.ID, time.Now().Format(stampFormat))
	path := filepath.Join(m.workDir, name)

	if r := m.files.Run(ctx, "pre-migration backup", func(ctx context.Context) error {
		return copyFile(plan.SourcePath, path)
	}); !r.Success {
		return fmt.Errorf("creating pre-migration backup: %w", r.Err)
	}

	backupFi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("inspecting pre-migration backup: %w", err)
	}
	sourceFi, err := os.Stat(plan.SourcePath)
	if err != nil {
		return fmt.Errorf("inspecting source: %w", err)
	}
	if backupFi.Size() != sourceFi.Size() {
		return fmt.Errorf("pre-migration backup is incomplete: source %d bytes, backup %d bytes",
			sourceFi.Size(), backupFi.Size())
	}
	res.BackupPath = path
	return nil
}

// verify confirms the target is a usable database. Full copies must also
// match the source byte for byte; transformed targets only need to pass the
// integrity check.
func (m *Manager) verify(ctx context.Context, plan *Plan, res *Result) error {
	targetFi, err := os.Stat(plan.TargetPath)
	if err != nil {
		return fmt.Errorf("target missing after transfer: %w", err)
	}
	if plan.Type == FullCopy || plan.Type == Incremental {
		sourceFi, err := os.Stat(plan.SourcePath)
		if err != nil {
			return fmt.Errorf("inspecting source: %w", err)
		}
		if targetFi.Size() != sourceFi.Size() {
			return fmt.Errorf("size mismatch: source %d bytes, target %d bytes",
				sourceFi.Size(), targetFi.Size())
		}
		if res.SourceChecksum != res.TargetChecksum {
			return errors.New("checksum mismatch between source and target")
		}
	}

	check := integrity.NewChecker(plan.TargetPath).Check(ctx, integrity.CheckOptions{})
	if !check.IsValid {
		detail := "integrity check failed"
		if len(check.Errors) > 0 {
			detail = check.Errors[0]
		}
		return fmt.Errorf("target integrity: %s", detail)
	}
	res.Warnings = append(res.Warnings, check.Warnings...)
	return nil
}

// Rollback restores the migration target from its pre-migration backup.
// The restore is a plain byte copy, so a checksum of the restored file
// matches the backup exactly.
func (m *Manager) Rollback(ctx context.Context, res *Result) error {
	if res.BackupPath == "" {
		return errors.New("no pre-migration backup recorded")
	}
	if _, err := os.Stat(res.BackupPath); err != nil {
		return fmt.Errorf("pre-migration backup unavailable: %w", err)
	}
	if r := m.files.Run(ctx, "rollback migration", func(ctx context.Context) error {
		return copyFile(res.BackupPath, res.TargetPath)
	}); !r.Success {
		return fmt.Errorf("restoring target from backup: %w", r.Err)
	}
	res.Status = StatusRolledBack
	m.logger.WithMigration(res.ID).Info("migration rolled back", "backup", res.BackupPath)
	return nil
}

// History returns a copy of every result so far, oldest first.
func (m *Manager) History() []Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Result, len(m.history))
	for i, r := range m.history {
		out[i] = *r
	}
	return out
}

// Statistics summarizes the run history. Rolled-back migrations count as
// failed; the rollback only limited the damage.
func (m *Manager) Statistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Statistics{TotalMigrations: len(m.history)}
	if len(m.history) == 0 {
		return st
	}
	var totalDur time.Duration
	var totalBytes int64
	for _, r := range m.history {
		if r.Success {
			st.Successful++
		} else {
			st.Failed++
		}
		if r.Status == StatusRolledBack {
			st.RolledBack++
		}
		totalDur += r.Duration
		totalBytes += r.DataSizeBytes
	}
	st.SuccessRate = float64(st.Successful) / float64(len(m.history)) * 100
	st.AverageDuration = totalDur / time.Duration(len(m.history))
	st.TotalDataMigratedMiB = float64(totalBytes) / (1 << 20)
	return st
}

// CleanupWorkFiles removes pre-migration backups older than the given age
// and reports how many were removed. A non-positive age means
// DefaultWorkFileAge. Removal failures are logged and skipped so one stuck
// file does not block the sweep.
func (m *Manager) CleanupWorkFiles(olderThan time.Duration) int {
	if olderThan <= 0 {
		olderThan = DefaultWorkFileAge
	}
	entries, err := os.ReadDir(m.workDir)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn("reading migration work directory failed", "path", m.workDir, "error", err)
		}
		return 0
	}
	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(m.workDir, entry.Name())
		if err := os.Remove(path); err != nil {
			m.logger.Warn("removing migration work file failed", "path", path, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		m.logger.Info("migration work files cleaned", "removed", removed)
	}
	return removed
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
