package events

import (
	"time"

	"github.com/litekeeper/litekeeper/internal/core"
)

// Event type constants for storage lifecycle events.
const (
	TypeStateChanged   = "state_changed"
	TypeDatabaseOpened = "database_opened"
	TypeDatabaseClosed = "database_closed"
	TypeHealthChecked  = "health_checked"
	TypeFileChanged    = "file_changed"
)

// StateChangedEvent is emitted on every coordinator state transition.
type StateChangedEvent struct {
	BaseEvent
	From   core.StorageState `json:"from"`
	To     core.StorageState `json:"to"`
	Reason string            `json:"reason,omitempty"`
}

// NewStateChangedEvent creates a new state changed event.
func NewStateChangedEvent(databasePath string, from, to core.StorageState, reason string) StateChangedEvent {
	return StateChangedEvent{
		BaseEvent: NewBaseEvent(TypeStateChanged, databasePath),
		From:      from,
		To:        to,
		Reason:    reason,
	}
}

// DatabaseOpenedEvent is emitted when a connection is established.
type DatabaseOpenedEvent struct {
	BaseEvent
	IsFallback    bool              `json:"is_fallback"`
	FallbackType  core.FallbackType `json:"fallback_type,omitempty"`
	FallbackLevel int               `json:"fallback_level"`
}

// NewDatabaseOpenedEvent creates a new database opened event.
func NewDatabaseOpenedEvent(databasePath string, isFallback bool, fallbackType core.FallbackType, fallbackLevel int) DatabaseOpenedEvent {
	return DatabaseOpenedEvent{
		BaseEvent:     NewBaseEvent(TypeDatabaseOpened, databasePath),
		IsFallback:    isFallback,
		FallbackType:  fallbackType,
		FallbackLevel: fallbackLevel,
	}
}

// DatabaseClosedEvent is emitted when the connection is shut down.
type DatabaseClosedEvent struct {
	BaseEvent
	Uptime time.Duration `json:"uptime"`
}

// NewDatabaseClosedEvent creates a new database closed event.
func NewDatabaseClosedEvent(databasePath string, uptime time.Duration) DatabaseClosedEvent {
	return DatabaseClosedEvent{
		BaseEvent: NewBaseEvent(TypeDatabaseClosed, databasePath),
		Uptime:    uptime,
	}
}

// HealthCheckedEvent is emitted after each periodic health check.
type HealthCheckedEvent struct {
	BaseEvent
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// NewHealthCheckedEvent creates a new health checked event.
func NewHealthCheckedEvent(databasePath string, healthy bool, latency time.Duration, err error) HealthCheckedEvent {
	errStr := ""
	if err != nil {
		errStr = err.Error()
	}
	return HealthCheckedEvent{
		BaseEvent: NewBaseEvent(TypeHealthChecked, databasePath),
		Healthy:   healthy,
		Latency:   latency,
		Error:     errStr,
	}
}

// FileChangedEvent is emitted when the database file is modified,
// renamed or removed on disk by something other than this process.
type FileChangedEvent struct {
	BaseEvent
	Op string `json:"op"`
}

// NewFileChangedEvent creates a new file changed event.
func NewFileChangedEvent(databasePath, op string) FileChangedEvent {
	return FileChangedEvent{
		BaseEvent: NewBaseEvent(TypeFileChanged, databasePath),
		Op:        op,
	}
}
