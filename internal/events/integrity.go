package events

// Event type constants for integrity events.
const (
	TypeCorruptionDetected = "corruption_detected"
	TypeRepairCompleted    = "repair_completed"
)

// CorruptionDetectedEvent is emitted when an integrity check finds
// corruption. This is a PRIORITY event - never dropped.
type CorruptionDetectedEvent struct {
	BaseEvent
	Errors         []string `json:"errors"`
	RepairPossible bool     `json:"repair_possible"`
}

// NewCorruptionDetectedEvent creates a new corruption detected event.
func NewCorruptionDetectedEvent(databasePath string, errors []string, repairPossible bool) CorruptionDetectedEvent {
	return CorruptionDetectedEvent{
		BaseEvent:      NewBaseEvent(TypeCorruptionDetected, databasePath),
		Errors:         errors,
		RepairPossible: repairPossible,
	}
}

// RepairCompletedEvent is emitted after a repair attempt finishes.
type RepairCompletedEvent struct {
	BaseEvent
	Success       bool   `json:"success"`
	BackupPath    string `json:"backup_path,omitempty"`
	RecoveredRows int64  `json:"recovered_rows"`
	Message       string `json:"message,omitempty"`
}

// NewRepairCompletedEvent creates a new repair completed event.
func NewRepairCompletedEvent(databasePath string, success bool, backupPath string, recoveredRows int64, message string) RepairCompletedEvent {
	return RepairCompletedEvent{
		BaseEvent:     NewBaseEvent(TypeRepairCompleted, databasePath),
		Success:       success,
		BackupPath:    backupPath,
		RecoveredRows: recoveredRows,
		Message:       message,
	}
}
