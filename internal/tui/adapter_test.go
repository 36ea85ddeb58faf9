package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/litekeeper/litekeeper/internal/core"
	"github.com/litekeeper/litekeeper/internal/events"
)

func receiveBusMsg(t *testing.T, a *BusAdapter) busEventMsg {
	t.Helper()
	select {
	case msg, ok := <-a.MsgChannel():
		if !ok {
			t.Fatal("message channel closed before a message arrived")
		}
		entry, ok := msg.(busEventMsg)
		if !ok {
			t.Fatalf("unexpected message type %T", msg)
		}
		return entry
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a bus message")
	}
	return busEventMsg{}
}

func waitForChannelClose(t *testing.T, a *BusAdapter) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-a.MsgChannel():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("message channel did not close")
		}
	}
}

func TestAdapterConvertsEvents(t *testing.T) {
	bus := events.New(10)
	defer bus.Close()

	a := NewBusAdapter(bus)
	defer a.Close()

	bus.Publish(events.NewStateChangedEvent("/data/app.db", core.StateConnecting, core.StateConnected, ""))

	msg := receiveBusMsg(t, a)
	if msg.entry.Type != events.TypeStateChanged {
		t.Errorf("Type = %q, want %q", msg.entry.Type, events.TypeStateChanged)
	}
	if !strings.Contains(msg.entry.Detail, "connected") {
		t.Errorf("Detail = %q, want the new state mentioned", msg.entry.Detail)
	}
	if msg.entry.When.IsZero() {
		t.Error("When should carry the event timestamp")
	}
}

func TestAdapterCloseStopsPump(t *testing.T) {
	bus := events.New(10)
	defer bus.Close()

	a := NewBusAdapter(bus)
	a.Close()
	a.Close()

	waitForChannelClose(t, a)
}

func TestAdapterStopsWhenBusCloses(t *testing.T) {
	bus := events.New(10)
	a := NewBusAdapter(bus)
	defer a.Close()

	bus.Close()

	waitForChannelClose(t, a)
}

func TestEventDetail(t *testing.T) {
	migErr := errors.New("copy interrupted")

	tests := []struct {
		name  string
		event events.Event
		want  string
	}{
		{
			name:  "state change",
			event: events.NewStateChangedEvent("/data/app.db", core.StateResolving, core.StateValidating, ""),
			want:  "resolving → validating",
		},
		{
			name:  "state change with reason",
			event: events.NewStateChangedEvent("/data/app.db", core.StateConnected, core.StateDegraded, "probe failed"),
			want:  "connected → degraded (probe failed)",
		},
		{
			name:  "primary open",
			event: events.NewDatabaseOpenedEvent("/data/app.db", false, "", 0),
			want:  "primary database",
		},
		{
			name:  "fallback open",
			event: events.NewDatabaseOpenedEvent("/data/app.db", true, core.FallbackBackupRestore, 1),
			want:  "fallback backup_restore",
		},
		{
			name:  "close",
			event: events.NewDatabaseClosedEvent("/data/app.db", 90*time.Second),
			want:  "uptime 1m30s",
		},
		{
			name:  "healthy probe",
			event: events.NewHealthCheckedEvent("/data/app.db", true, 1500*time.Microsecond, nil),
			want:  "ok in 1.5ms",
		},
		{
			name:  "failed probe",
			event: events.NewHealthCheckedEvent("/data/app.db", false, 0, errors.New("database is locked")),
			want:  "failed: database is locked",
		},
		{
			name:  "file change",
			event: events.NewFileChangedEvent("/data/app.db", "REMOVE"),
			want:  "REMOVE",
		},
		{
			name:  "corruption with details",
			event: events.NewCorruptionDetectedEvent("/data/app.db", []string{"row 12 missing from index idx_name"}, true),
			want:  "row 12 missing from index idx_name",
		},
		{
			name:  "corruption without details",
			event: events.NewCorruptionDetectedEvent("/data/app.db", nil, false),
			want:  "corruption reported",
		},
		{
			name:  "fallback activation",
			event: events.NewFallbackActivatedEvent("/data/app.db", core.FallbackMemoryDatabase, "all tiers failed"),
			want:  "memory_database (all tiers failed)",
		},
		{
			name:  "retry exhausted",
			event: events.NewRetryExhaustedEvent("/data/app.db", "connect", 5, "locked", errors.New("database is locked")),
			want:  "connect after 5 attempts",
		},
		{
			name:  "backup created",
			event: events.NewBackupCreatedEvent("/data/app.db", "/backups/app-20260823.db", 4096, "pre-migration"),
			want:  "/backups/app-20260823.db",
		},
		{
			name:  "backup restored",
			event: events.NewBackupRestoredEvent("/data/app.db", "/backups/app-20260823.db"),
			want:  "from /backups/app-20260823.db",
		},
		{
			name:  "migration started",
			event: events.NewMigrationStartedEvent("/data/app.db", "/mnt/new/app.db", "mig-1", "copy_verify_switch"),
			want:  "copy_verify_switch to /mnt/new/app.db",
		},
		{
			name:  "migration completed",
			event: events.NewMigrationCompletedEvent("/data/app.db", "/mnt/new/app.db", "mig-1", 1250*time.Millisecond, 1<<20),
			want:  "mig-1 in 1.25s",
		},
		{
			name:  "migration failed with rollback",
			event: events.NewMigrationFailedEvent("/data/app.db", "/mnt/new/app.db", "mig-1", migErr, true),
			want:  "copy interrupted (rolled back)",
		},
		{
			name:  "migration failed without rollback",
			event: events.NewMigrationFailedEvent("/data/app.db", "/mnt/new/app.db", "mig-1", migErr, false),
			want:  "copy interrupted",
		},
		{
			name:  "successful repair",
			event: events.NewRepairCompletedEvent("/data/app.db", true, "/backups/pre-repair.db", 1204, ""),
			want:  "1204 rows recovered",
		},
		{
			name:  "failed repair",
			event: events.NewRepairCompletedEvent("/data/app.db", false, "", 0, "dump produced no rows"),
			want:  "repair failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := eventDetail(tt.event); got != tt.want {
				t.Errorf("eventDetail() = %q, want %q", got, tt.want)
			}
		})
	}
}
