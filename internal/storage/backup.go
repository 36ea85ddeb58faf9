package storage

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/litekeeper/litekeeper/internal/logging"
)

const (
	backupTimeFormat = "20060102_150405"

	defaultMaxBackups   = 10
	defaultBackupMaxAge = 30 * 24 * time.Hour
)

// BackupInfo describes one backup on disk.
type BackupInfo struct {
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
	Archive   bool      `json:"archive"`
}

// Store manages timestamped backups of a single database file. Retention
// is bounded both by count and by age; the newest backup is always kept.
type Store struct {
	dbPath   string
	dir      string
	maxCount int
	maxAge   time.Duration
	logger   *logging.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithBackupDir overrides the default sibling "backups" directory.
func WithBackupDir(dir string) StoreOption {
	return func(s *Store) { s.dir = dir }
}

// WithMaxCount bounds how many backups are retained.
func WithMaxCount(n int) StoreOption {
	return func(s *Store) { s.maxCount = n }
}

// WithMaxAge bounds how old a retained backup may be.
func WithMaxAge(d time.Duration) StoreOption {
	return func(s *Store) { s.maxAge = d }
}

// WithStoreLogger sets the logger.
func WithStoreLogger(l *logging.Logger) StoreOption {
	return func(s *Store) { s.logger = l.WithComponent("backup") }
}

// NewStore creates a backup store bound to the database at dbPath.
func NewStore(dbPath string, opts ...StoreOption) *Store {
	s := &Store{
		dbPath:   dbPath,
		dir:      filepath.Join(filepath.Dir(dbPath), "backups"),
		maxCount: defaultMaxBackups,
		maxAge:   defaultBackupMaxAge,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the backup directory.
func (s *Store) Dir() string { return s.dir }

// Create snapshots the live database into the backup directory. VACUUM INTO
// produces a compact, consistent copy even while the handle is in use; when
// the statement fails a plain file copy is taken instead. The reason names
// the backup file, so "repair" yields repair_backup_<ts>.db.
func (s *Store) Create(ctx context.Context, db *sql.DB, reason string) (BackupInfo, error) {
	target, err := s.prepareTarget(reason)
	if err != nil {
		return BackupInfo{}, err
	}

	quoted := strings.ReplaceAll(target, "'", "''")
	if _, err := db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", quoted)); err != nil {
		s.logger.Warn("vacuum into failed, copying file instead", "error", err)
		if copyErr := copyFile(s.dbPath, target); copyErr != nil {
			return BackupInfo{}, fmt.Errorf("backing up database: %w", copyErr)
		}
	}
	return s.finishCreate(target, reason)
}

// CreateFromFile snapshots the database file without a live handle. Used
// before repairs, when the file may be too damaged to open.
func (s *Store) CreateFromFile(reason string) (BackupInfo, error) {
	target, err := s.prepareTarget(reason)
	if err != nil {
		return BackupInfo{}, err
	}
	if err := copyFile(s.dbPath, target); err != nil {
		return BackupInfo{}, fmt.Errorf("backing up database file: %w", err)
	}
	return s.finishCreate(target, reason)
}

func (s *Store) prepareTarget(reason string) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}
	prefix := slug(reason)
	if prefix == "" {
		prefix = strings.TrimSuffix(filepath.Base(s.dbPath), filepath.Ext(s.dbPath))
	}
	stamp := time.Now().Format(backupTimeFormat)
	target := filepath.Join(s.dir, fmt.Sprintf("%s_backup_%s.db", prefix, stamp))
	for n := 1; exists(target); n++ {
		target = filepath.Join(s.dir, fmt.Sprintf("%s_backup_%s_%d.db", prefix, stamp, n))
	}
	return target, nil
}

// slug reduces a free-form reason to a file name fragment.
func slug(reason string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(reason)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case b.Len() > 0 && !strings.HasSuffix(b.String(), "_"):
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

func (s *Store) finishCreate(target, reason string) (BackupInfo, error) {
	fi, err := os.Stat(target)
	if err != nil {
		return BackupInfo{}, fmt.Errorf("inspecting backup: %w", err)
	}
	info := BackupInfo{
		Path:      target,
		SizeBytes: fi.Size(),
		CreatedAt: fi.ModTime(),
	}
	s.logger.Info("backup created",
		"path", target, "size_bytes", info.SizeBytes, "reason", reason)
	s.prune()
	return info, nil
}

// List returns every backup in the store's directory, newest first. Plain
// .db copies and .zip archives are both included, whatever reason created
// them.
func (s *Store) List() ([]BackupInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading backup directory: %w", err)
	}

	var infos []BackupInfo
	for _, e := range entries {
		if e.IsDir() || !strings.Contains(e.Name(), "_backup_") {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".db" && ext != ".zip" {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		infos = append(infos, BackupInfo{
			Path:      filepath.Join(s.dir, e.Name()),
			SizeBytes: fi.Size(),
			CreatedAt: fi.ModTime(),
			Archive:   ext == ".zip",
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].CreatedAt.After(infos[j].CreatedAt)
		}
		return infos[i].Path > infos[j].Path
	})
	return infos, nil
}

// Latest returns the newest backup, if any exist.
func (s *Store) Latest() (BackupInfo, bool, error) {
	infos, err := s.List()
	if err != nil || len(infos) == 0 {
		return BackupInfo{}, false, err
	}
	return infos[0], true, nil
}

// Restore copies the given backup over the database file. The replacement
// is staged in the database directory and swapped in atomically; stale WAL
// and journal sidecars are removed so the restored file is not paired with
// a mismatched write-ahead log. The caller must have closed any open
// handle first.
func (s *Store) Restore(backupPath string) error {
	staged := s.dbPath + ".restore"
	defer os.Remove(staged)

	if filepath.Ext(backupPath) == ".zip" {
		if _, err := ExtractArchive(backupPath, staged); err != nil {
			return fmt.Errorf("extracting backup archive: %w", err)
		}
	} else if err := copyFile(backupPath, staged); err != nil {
		return fmt.Errorf("staging backup: %w", err)
	}

	if err := ReplaceFile(staged, s.dbPath); err != nil {
		return fmt.Errorf("restoring backup: %w", err)
	}
	for _, sidecar := range SidecarPaths(s.dbPath) {
		if err := os.Remove(sidecar); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("removing stale sidecar failed", "path", sidecar, "error", err)
		}
	}
	s.logger.Info("backup restored", "backup", backupPath, "database", s.dbPath)
	return nil
}

// prune enforces the count and age bounds. Failures are logged, never
// surfaced: losing an old backup must not fail the operation that created
// a new one.
func (s *Store) prune() {
	infos, err := s.List()
	if err != nil {
		s.logger.Warn("listing backups for prune failed", "error", err)
		return
	}

	cutoff := time.Now().Add(-s.maxAge)
	for i, info := range infos {
		tooMany := s.maxCount > 0 && i >= s.maxCount
		tooOld := s.maxAge > 0 && info.CreatedAt.Before(cutoff)
		if i == 0 || (!tooMany && !tooOld) {
			continue
		}
		if err := os.Remove(info.Path); err != nil {
			s.logger.Warn("pruning backup failed", "path", info.Path, "error", err)
			continue
		}
		s.logger.Debug("pruned backup", "path", info.Path)
	}
}

func copyFile(src, dst string) error {
	// #nosec G304 -- both paths are derived from the configured database path
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source file: %w", err)
	}
	defer srcFile.Close()

	// #nosec G304 -- both paths are derived from the configured database path
	dstFile, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating destination file: %w", err)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("copying file: %w", err)
	}
	return dstFile.Sync()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
