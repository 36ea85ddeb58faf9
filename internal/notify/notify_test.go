package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/litekeeper/litekeeper/internal/core"
	"github.com/litekeeper/litekeeper/internal/events"
	"github.com/litekeeper/litekeeper/internal/logging"
)

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []core.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n core.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, n)
}

func (r *recordingNotifier) notifications() []core.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Notification(nil), r.calls...)
}

func TestLogNotifierSeverityLevels(t *testing.T) {
	t.Parallel()

	cases := []struct {
		severity core.Severity
		level    string
	}{
		{core.SeverityInfo, `"level":"INFO"`},
		{core.SeverityWarning, `"level":"WARN"`},
		{core.SeverityError, `"level":"ERROR"`},
		{core.SeverityCritical, `"level":"ERROR"`},
	}

	for _, tc := range cases {
		var buf bytes.Buffer
		n := NewLogNotifier(logging.New(logging.Config{Level: "debug", Format: "json", Output: &buf}))

		n.Notify(context.Background(), core.Notification{
			Title:    "Disk almost full",
			Message:  "less than 100 MiB free",
			Severity: tc.severity,
		})

		got := buf.String()
		if !strings.Contains(got, tc.level) {
			t.Errorf("severity %s: log %q missing %s", tc.severity, got, tc.level)
		}
		if !strings.Contains(got, "Disk almost full") {
			t.Errorf("severity %s: log %q missing title", tc.severity, got)
		}
	}
}

func TestLogNotifierNilLogger(t *testing.T) {
	t.Parallel()

	n := NewLogNotifier(nil)
	n.Notify(context.Background(), core.Notification{Title: "ok"})
}

func TestMultiFansOut(t *testing.T) {
	t.Parallel()

	first := &recordingNotifier{}
	second := &recordingNotifier{}
	m := Multi{first, nil, second}

	m.Notify(context.Background(), core.Notification{Title: "Fallback storage active"})

	if got := len(first.notifications()); got != 1 {
		t.Errorf("first notifier got %d notifications, want 1", got)
	}
	if got := len(second.notifications()); got != 1 {
		t.Errorf("second notifier got %d notifications, want 1", got)
	}
}

func TestCorruptionNotification(t *testing.T) {
	t.Parallel()

	event := events.NewCorruptionDetectedEvent("/data/app.db", []string{"row 12 missing from index", "page 4 is never used"}, true)

	n, ok := toNotification(event)
	if !ok {
		t.Fatal("expected a notification for corruption_detected")
	}
	if n.Severity != core.SeverityCritical {
		t.Errorf("Severity = %s, want critical", n.Severity)
	}
	if n.Title != "Database corruption detected" {
		t.Errorf("Title = %q", n.Title)
	}
	if !strings.Contains(n.Message, "/data/app.db") {
		t.Errorf("message %q missing database path", n.Message)
	}
	if !strings.Contains(n.Message, "row 12 missing from index") {
		t.Errorf("message %q missing first integrity error", n.Message)
	}
	if !strings.Contains(n.Message, "repair") {
		t.Errorf("message %q should mention the repair option", n.Message)
	}
}

func TestCorruptionNotificationWithoutDetails(t *testing.T) {
	t.Parallel()

	event := events.NewCorruptionDetectedEvent("/data/app.db", nil, false)

	n, ok := toNotification(event)
	if !ok {
		t.Fatal("expected a notification")
	}
	if !strings.Contains(n.Message, "/data/app.db") {
		t.Errorf("message %q missing database path", n.Message)
	}
	if strings.Contains(n.Message, "repair") {
		t.Errorf("message %q mentions repair although none is possible", n.Message)
	}
}

func TestFallbackNotificationDurableTier(t *testing.T) {
	t.Parallel()

	event := events.NewFallbackActivatedEvent("/data/app.db", core.FallbackBackupRestore, "integrity check failed")

	n, ok := toNotification(event)
	if !ok {
		t.Fatal("expected a notification for fallback_activated")
	}
	if n.Severity != core.SeverityWarning {
		t.Errorf("Severity = %s, want warning", n.Severity)
	}
	if n.Expiry != warningExpiry {
		t.Errorf("Expiry = %s, want %s", n.Expiry, warningExpiry)
	}
	if !strings.Contains(n.Message, "backup") {
		t.Errorf("message %q should mention the backup", n.Message)
	}
}

func TestFallbackNotificationTemporaryTier(t *testing.T) {
	t.Parallel()

	cases := []struct {
		fallback core.FallbackType
		want     string
	}{
		{core.FallbackMemoryDatabase, "in-memory"},
		{core.FallbackCleanDatabase, "clean database"},
	}

	for _, tc := range cases {
		event := events.NewFallbackActivatedEvent("/data/app.db", tc.fallback, "nothing else worked")

		n, ok := toNotification(event)
		if !ok {
			t.Fatalf("%s: expected a notification", tc.fallback)
		}
		if n.Severity != core.SeverityCritical {
			t.Errorf("%s: Severity = %s, want critical", tc.fallback, n.Severity)
		}
		if n.Expiry != 0 {
			t.Errorf("%s: Expiry = %s, want 0", tc.fallback, n.Expiry)
		}
		if !strings.Contains(n.Message, tc.want) {
			t.Errorf("%s: message %q missing %q", tc.fallback, n.Message, tc.want)
		}
	}
}

func TestMigrationFailedNotification(t *testing.T) {
	t.Parallel()

	event := events.NewMigrationFailedEvent("/old/app.db", "/new/app.db", "migration_20240101_120000_deadbeef",
		errors.New("verification failed: size mismatch"), true)

	n, ok := toNotification(event)
	if !ok {
		t.Fatal("expected a notification for migration_failed")
	}
	if n.Severity != core.SeverityError {
		t.Errorf("Severity = %s, want error", n.Severity)
	}
	if !strings.Contains(n.Message, "/new/app.db") {
		t.Errorf("message %q missing target path", n.Message)
	}
	if !strings.Contains(n.Message, "verification failed") {
		t.Errorf("message %q missing failure reason", n.Message)
	}
	if !strings.Contains(n.Message, "restored") {
		t.Errorf("message %q should mention the rollback", n.Message)
	}

	event.RolledBack = false
	n, _ = toNotification(event)
	if strings.Contains(n.Message, "restored") {
		t.Errorf("message %q mentions a rollback that never ran", n.Message)
	}
}

func TestRetryExhaustedNotification(t *testing.T) {
	t.Parallel()

	event := events.NewRetryExhaustedEvent("/data/app.db", "open database", 5, "database is locked",
		errors.New("database is locked"))

	n, ok := toNotification(event)
	if !ok {
		t.Fatal("expected a notification for retry_exhausted")
	}
	if n.Severity != core.SeverityWarning {
		t.Errorf("Severity = %s, want warning", n.Severity)
	}
	if !strings.Contains(n.Message, "open database") {
		t.Errorf("message %q missing operation name", n.Message)
	}
	if !strings.Contains(n.Message, "5") {
		t.Errorf("message %q missing attempt count", n.Message)
	}
}

func TestUnhandledEventProducesNoNotification(t *testing.T) {
	t.Parallel()

	event := events.NewStateChangedEvent("/data/app.db", core.StateResolving, core.StateConnected, "opened")

	if _, ok := toNotification(event); ok {
		t.Error("state_changed should not produce a notification")
	}
}

func TestBridgeDeliversNotifications(t *testing.T) {
	t.Parallel()

	bus := events.New(8)
	rec := &recordingNotifier{}
	bridge := NewBridge(bus, rec, WithLogger(logging.NewNop()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bridge.Run(ctx) }()

	// Publish until the bridge's subscription has picked one up; the
	// subscription registers asynchronously inside Run.
	deadline := time.Now().Add(2 * time.Second)
	for len(rec.notifications()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("bridge never delivered a notification")
		}
		bus.Publish(events.NewCorruptionDetectedEvent("/data/app.db", []string{"page 4 is never used"}, true))
		time.Sleep(10 * time.Millisecond)
	}

	got := rec.notifications()[0]
	if got.Severity != core.SeverityCritical {
		t.Errorf("Severity = %s, want critical", got.Severity)
	}
	if got.Title != "Database corruption detected" {
		t.Errorf("Title = %q", got.Title)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestBridgeStopsWhenBusCloses(t *testing.T) {
	t.Parallel()

	bus := events.New(8)
	bridge := NewBridge(bus, &recordingNotifier{})

	done := make(chan error, 1)
	go func() { done <- bridge.Run(context.Background()) }()

	bus.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after bus close")
	}
}

func TestBridgeNilNotifierDefaultsToNop(t *testing.T) {
	t.Parallel()

	bridge := NewBridge(events.New(8), nil)
	if bridge.notifier == nil {
		t.Fatal("notifier should default to a no-op implementation")
	}
}
