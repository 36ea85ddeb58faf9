package events

import "time"

// Event type constants for migration events.
const (
	TypeMigrationStarted   = "migration_started"
	TypeMigrationCompleted = "migration_completed"
	TypeMigrationFailed    = "migration_failed"
)

// MigrationStartedEvent is emitted when a migration begins executing.
type MigrationStartedEvent struct {
	BaseEvent
	MigrationID string `json:"migration_id"`
	TargetPath  string `json:"target_path"`
	Strategy    string `json:"strategy"`
}

// NewMigrationStartedEvent creates a new migration started event.
func NewMigrationStartedEvent(sourcePath, targetPath, migrationID, strategy string) MigrationStartedEvent {
	return MigrationStartedEvent{
		BaseEvent:   NewBaseEvent(TypeMigrationStarted, sourcePath),
		MigrationID: migrationID,
		TargetPath:  targetPath,
		Strategy:    strategy,
	}
}

// MigrationCompletedEvent is emitted when a migration finishes
// successfully.
type MigrationCompletedEvent struct {
	BaseEvent
	MigrationID string        `json:"migration_id"`
	TargetPath  string        `json:"target_path"`
	Duration    time.Duration `json:"duration"`
	BytesCopied int64         `json:"bytes_copied"`
}

// NewMigrationCompletedEvent creates a new migration completed event.
func NewMigrationCompletedEvent(sourcePath, targetPath, migrationID string, duration time.Duration, bytesCopied int64) MigrationCompletedEvent {
	return MigrationCompletedEvent{
		BaseEvent:   NewBaseEvent(TypeMigrationCompleted, sourcePath),
		MigrationID: migrationID,
		TargetPath:  targetPath,
		Duration:    duration,
		BytesCopied: bytesCopied,
	}
}

// MigrationFailedEvent is emitted when a migration fails or is rolled
// back. This is a PRIORITY event - never dropped.
type MigrationFailedEvent struct {
	BaseEvent
	MigrationID string `json:"migration_id"`
	TargetPath  string `json:"target_path"`
	Error       string `json:"error"`
	RolledBack  bool   `json:"rolled_back"`
}

// NewMigrationFailedEvent creates a new migration failed event.
func NewMigrationFailedEvent(sourcePath, targetPath, migrationID string, err error, rolledBack bool) MigrationFailedEvent {
	errStr := ""
	if err != nil {
		errStr = err.Error()
	}
	return MigrationFailedEvent{
		BaseEvent:   NewBaseEvent(TypeMigrationFailed, sourcePath),
		MigrationID: migrationID,
		TargetPath:  targetPath,
		Error:       errStr,
		RolledBack:  rolledBack,
	}
}
