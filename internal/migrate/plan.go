package migrate

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type selects how data travels from source to target.
type Type string

const (
	// FullCopy clones the database file byte for byte.
	FullCopy Type = "full_copy"
	// Incremental is accepted for forward compatibility but currently
	// performs a full copy.
	Incremental Type = "incremental"
	// SchemaOnly recreates the table definitions without any rows.
	SchemaOnly Type = "schema_only"
	// DataOnly replays rows into an existing target schema.
	DataOnly Type = "data_only"
)

// Status is the lifecycle state of one migration.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRolledBack Status = "rolled_back"
)

// Plan describes one migration before it runs. Plans are cheap to build and
// carry no handles; Execute does all the work.
type Plan struct {
	ID                string        `json:"id"`
	SourcePath        string        `json:"source_path"`
	TargetPath        string        `json:"target_path"`
	Type              Type          `json:"type"`
	BackupBefore      bool          `json:"backup_before"`
	VerifyAfter       bool          `json:"verify_after"`
	RollbackEnabled   bool          `json:"rollback_enabled"`
	EstimatedSize     int64         `json:"estimated_size"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
	CreatedAt         time.Time     `json:"created_at"`
}

// PlanOptions are the safety switches recorded on a plan.
type PlanOptions struct {
	BackupBefore    bool
	VerifyAfter     bool
	RollbackEnabled bool
}

// DefaultPlanOptions enables every safety switch: backup first, verify
// after, roll back on failure.
func DefaultPlanOptions() PlanOptions {
	return PlanOptions{BackupBefore: true, VerifyAfter: true, RollbackEnabled: true}
}

// Result is the outcome of one executed migration.
type Result struct {
	ID              string        `json:"id"`
	Status          Status        `json:"status"`
	Success         bool          `json:"success"`
	SourcePath      string        `json:"source_path"`
	TargetPath      string        `json:"target_path"`
	BackupPath      string        `json:"backup_path,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      time.Time     `json:"finished_at"`
	Duration        time.Duration `json:"duration"`
	RecordsMigrated int64         `json:"records_migrated"`
	DataSizeBytes   int64         `json:"data_size_bytes"`
	SourceChecksum  string        `json:"source_checksum,omitempty"`
	TargetChecksum  string        `json:"target_checksum,omitempty"`
	ErrorMessage    string        `json:"error_message,omitempty"`
	Warnings        []string      `json:"warnings,omitempty"`
}

// Statistics aggregates every migration run by one Manager.
type Statistics struct {
	TotalMigrations      int           `json:"total_migrations"`
	Successful           int           `json:"successful"`
	Failed               int           `json:"failed"`
	RolledBack           int           `json:"rolled_back"`
	SuccessRate          float64       `json:"success_rate"`
	AverageDuration      time.Duration `json:"average_duration"`
	TotalDataMigratedMiB float64       `json:"total_data_migrated_mib"`
}

func newMigrationID() string {
	return fmt.Sprintf("migration_%s_%s", time.Now().Format(stampFormat), uuid.NewString()[:8])
}

// estimateDuration budgets two seconds per MiB with a five second floor, so
// even a tiny database gets enough time to settle its WAL.
func estimateDuration(size int64) time.Duration {
	secs := float64(size) / (1 << 20) * 2
	if secs < 5 {
		secs = 5
	}
	return time.Duration(secs * float64(time.Second))
}
