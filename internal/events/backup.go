package events

// Event type constants for backup events.
const (
	TypeBackupCreated  = "backup_created"
	TypeBackupRestored = "backup_restored"
)

// BackupCreatedEvent is emitted when a backup file is written.
type BackupCreatedEvent struct {
	BaseEvent
	BackupPath string `json:"backup_path"`
	SizeBytes  int64  `json:"size_bytes"`
	Reason     string `json:"reason,omitempty"`
}

// NewBackupCreatedEvent creates a new backup created event.
func NewBackupCreatedEvent(databasePath, backupPath string, sizeBytes int64, reason string) BackupCreatedEvent {
	return BackupCreatedEvent{
		BaseEvent:  NewBaseEvent(TypeBackupCreated, databasePath),
		BackupPath: backupPath,
		SizeBytes:  sizeBytes,
		Reason:     reason,
	}
}

// BackupRestoredEvent is emitted when a backup is restored over the
// live database.
type BackupRestoredEvent struct {
	BaseEvent
	BackupPath string `json:"backup_path"`
}

// NewBackupRestoredEvent creates a new backup restored event.
func NewBackupRestoredEvent(databasePath, backupPath string) BackupRestoredEvent {
	return BackupRestoredEvent{
		BaseEvent:  NewBaseEvent(TypeBackupRestored, databasePath),
		BackupPath: backupPath,
	}
}
