package events

import (
	"github.com/litekeeper/litekeeper/internal/core"
)

// Event type constants for fallback and retry events.
const (
	TypeFallbackActivated = "fallback_activated"
	TypeRetryExhausted    = "retry_exhausted"
)

// FallbackActivatedEvent is emitted when a fallback tier takes over.
// This is a PRIORITY event - never dropped.
type FallbackActivatedEvent struct {
	BaseEvent
	Fallback  core.FallbackType `json:"fallback"`
	Temporary bool              `json:"temporary"`
	Reason    string            `json:"reason,omitempty"`
}

// NewFallbackActivatedEvent creates a new fallback activated event.
func NewFallbackActivatedEvent(databasePath string, fallback core.FallbackType, reason string) FallbackActivatedEvent {
	return FallbackActivatedEvent{
		BaseEvent: NewBaseEvent(TypeFallbackActivated, databasePath),
		Fallback:  fallback,
		Temporary: core.IsTemporaryFallback(fallback),
		Reason:    reason,
	}
}

// RetryExhaustedEvent is emitted when an operation fails after all
// retry attempts.
type RetryExhaustedEvent struct {
	BaseEvent
	Operation string `json:"operation"`
	Attempts  int    `json:"attempts"`
	Reason    string `json:"reason"`
	Error     string `json:"error,omitempty"`
}

// NewRetryExhaustedEvent creates a new retry exhausted event.
func NewRetryExhaustedEvent(databasePath, operation string, attempts int, reason string, err error) RetryExhaustedEvent {
	errStr := ""
	if err != nil {
		errStr = err.Error()
	}
	return RetryExhaustedEvent{
		BaseEvent: NewBaseEvent(TypeRetryExhausted, databasePath),
		Operation: operation,
		Attempts:  attempts,
		Reason:    reason,
		Error:     errStr,
	}
}
