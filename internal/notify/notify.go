// Package notify delivers user-facing notifications for storage events.
// Notifiers are fire-and-forget: delivery problems are logged, never
// returned, and callers never gate control flow on them.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/litekeeper/litekeeper/internal/core"
	"github.com/litekeeper/litekeeper/internal/events"
	"github.com/litekeeper/litekeeper/internal/logging"
)

// warningExpiry is the advisory display duration for warning notifications.
// Error and critical notifications carry no expiry and stay until dismissed.
const warningExpiry = 15 * time.Second

// LogNotifier writes notifications to the structured log. It is the default
// delivery channel for headless runs.
type LogNotifier struct {
	logger *logging.Logger
}

// NewLogNotifier creates a notifier backed by the given logger.
func NewLogNotifier(l *logging.Logger) *LogNotifier {
	if l == nil {
		l = logging.NewNop()
	}
	return &LogNotifier{logger: l.WithComponent("notify")}
}

// Notify implements core.Notifier.
func (n *LogNotifier) Notify(_ context.Context, notification core.Notification) {
	logFn := n.logger.Info
	switch notification.Severity {
	case core.SeverityWarning:
		logFn = n.logger.Warn
	case core.SeverityError, core.SeverityCritical:
		logFn = n.logger.Error
	}
	logFn("user notification",
		"title", notification.Title,
		"message", notification.Message,
		"severity", string(notification.Severity))
}

// Multi fans a notification out to every non-nil notifier in the slice.
type Multi []core.Notifier

// Notify implements core.Notifier.
func (m Multi) Notify(ctx context.Context, notification core.Notification) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, notification)
		}
	}
}

var (
	_ core.Notifier = (*LogNotifier)(nil)
	_ core.Notifier = (Multi)(nil)
)

// Bridge subscribes to the event bus and forwards the events that warrant
// user attention to a notifier. Routine events such as state transitions and
// health probes never become notifications.
type Bridge struct {
	bus      *events.EventBus
	notifier core.Notifier
	logger   *logging.Logger
}

// BridgeOption configures the bridge.
type BridgeOption func(*Bridge)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) BridgeOption {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l.WithComponent("notify")
		}
	}
}

// NewBridge creates a bridge between the event bus and a notifier.
func NewBridge(bus *events.EventBus, notifier core.Notifier, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		bus:      bus,
		notifier: notifier,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.notifier == nil {
		b.notifier = core.NopNotifier{}
	}
	return b
}

// Run consumes events until the context is canceled or the bus closes.
// It returns the context error on cancellation and nil on bus shutdown.
func (b *Bridge) Run(ctx context.Context) error {
	ch := b.bus.Subscribe(
		events.TypeCorruptionDetected,
		events.TypeFallbackActivated,
		events.TypeMigrationFailed,
		events.TypeRetryExhausted,
	)
	defer b.bus.Unsubscribe(ch)

	b.logger.Debug("notification bridge started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			notification, ok := toNotification(event)
			if !ok {
				continue
			}
			b.logger.Debug("notification forwarded",
				"type", event.EventType(),
				"severity", string(notification.Severity))
			b.notifier.Notify(ctx, notification)
		}
	}
}

// toNotification converts a bus event into a user notification. The second
// return value is false for events that need no notification.
func toNotification(event events.Event) (core.Notification, bool) {
	switch e := event.(type) {
	case events.CorruptionDetectedEvent:
		msg := fmt.Sprintf("Integrity check failed for %s.", e.Database)
		if len(e.Errors) > 0 {
			msg = fmt.Sprintf("Integrity check failed for %s: %s.", e.Database, e.Errors[0])
		}
		if e.RepairPossible {
			msg += " An automatic repair may recover the data."
		}
		return core.Notification{
			Title:    "Database corruption detected",
			Message:  msg,
			Severity: core.SeverityCritical,
		}, true

	case events.FallbackActivatedEvent:
		n := core.Notification{
			Title:    "Fallback storage active",
			Message:  fallbackMessage(e),
			Severity: core.SeverityWarning,
			Expiry:   warningExpiry,
		}
		if e.Temporary {
			// Memory and clean databases lose or hide existing data, so
			// the notification must not slip past the user.
			n.Severity = core.SeverityCritical
			n.Expiry = 0
		}
		return n, true

	case events.MigrationFailedEvent:
		msg := fmt.Sprintf("Migration %s to %s failed: %s.", e.MigrationID, e.TargetPath, e.Error)
		if e.RolledBack {
			msg += " The original database was restored."
		}
		return core.Notification{
			Title:    "Database migration failed",
			Message:  msg,
			Severity: core.SeverityError,
		}, true

	case events.RetryExhaustedEvent:
		return core.Notification{
			Title:    "Database operation failed",
			Message:  fmt.Sprintf("The operation %q gave up after %d attempts.", e.Operation, e.Attempts),
			Severity: core.SeverityWarning,
			Expiry:   warningExpiry,
		}, true

	default:
		return core.Notification{}, false
	}
}

func fallbackMessage(e events.FallbackActivatedEvent) string {
	switch e.Fallback {
	case core.FallbackBackupRestore:
		return "The database was restored from the most recent backup. Changes made after that backup may be missing."
	case core.FallbackAlternativeLocation:
		return fmt.Sprintf("The database moved to an alternative location: %s.", e.Database)
	case core.FallbackCleanDatabase:
		return "A clean database was created. Your existing data is preserved in a backup but is not loaded."
	case core.FallbackMemoryDatabase:
		return "Running on an in-memory database. All changes will be lost when the application exits."
	default:
		return fmt.Sprintf("Fallback %s is active.", e.Fallback)
	}
}
