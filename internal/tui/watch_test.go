package tui

import (
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/litekeeper/litekeeper/internal/core"
	"github.com/litekeeper/litekeeper/internal/events"
	"github.com/litekeeper/litekeeper/internal/storage"
)

type fakeSource struct {
	status core.StorageStatus
	health storage.HealthReport
}

func (f *fakeSource) Status() core.StorageStatus   { return f.status }
func (f *fakeSource) Health() storage.HealthReport { return f.health }

var _ StatusSource = (*fakeSource)(nil)

func connectedSource() *fakeSource {
	return &fakeSource{
		status: core.StorageStatus{
			State:              core.StateConnected,
			IsConnected:        true,
			DatabasePath:       "/data/app.db",
			IntegrityStatus:    core.IntegrityHealthy,
			ConnectionAttempts: 1,
		},
		health: storage.HealthReport{
			LastProbeAt:    time.Now(),
			LastLatency:    2 * time.Millisecond,
			AverageLatency: 3 * time.Millisecond,
			TotalProbes:    10,
			FailedProbes:   1,
			Uptime:         95 * time.Second,
		},
	}
}

func sizedModel(t *testing.T, src StatusSource) Model {
	t.Helper()
	m := New(src, nil)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return updated.(Model)
}

func keyPress(t *testing.T, m Model, key string) (Model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)})
	return updated.(Model), cmd
}

func TestViewBeforeFirstWindowSize(t *testing.T) {
	m := New(connectedSource(), nil)
	if got := m.View(); got != "Starting..." {
		t.Errorf("View() = %q, want %q", got, "Starting...")
	}
}

func TestDashboardShowsStatus(t *testing.T) {
	m := sizedModel(t, connectedSource())
	view := m.View()

	for _, want := range []string{
		"LiteKeeper",
		"/data/app.db",
		"connected",
		"healthy",
		"10 total, 1 failed",
		"1m35s",
		"q: quit",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("dashboard missing %q:\n%s", want, view)
		}
	}
}

func TestDashboardShowsTemporaryFallback(t *testing.T) {
	src := connectedSource()
	src.status.State = core.StateDegraded
	src.status.IsFallback = true
	src.status.FallbackType = core.FallbackMemoryDatabase

	view := sizedModel(t, src).View()

	if !strings.Contains(view, "memory_database (temporary)") {
		t.Errorf("dashboard should flag the temporary tier:\n%s", view)
	}
	if !strings.Contains(view, "degraded") {
		t.Errorf("dashboard should show the degraded state:\n%s", view)
	}
}

func TestDashboardShowsDurableFallbackWithoutFlag(t *testing.T) {
	src := connectedSource()
	src.status.IsFallback = true
	src.status.FallbackType = core.FallbackBackupRestore

	view := sizedModel(t, src).View()

	if !strings.Contains(view, "backup_restore") {
		t.Errorf("dashboard should name the fallback tier:\n%s", view)
	}
	if strings.Contains(view, "(temporary)") {
		t.Errorf("durable tier must not be flagged temporary:\n%s", view)
	}
}

func TestDashboardShowsLastError(t *testing.T) {
	src := connectedSource()
	src.status.LastError = "disk I/O error"

	if view := sizedModel(t, src).View(); !strings.Contains(view, "disk I/O error") {
		t.Errorf("dashboard missing last error:\n%s", view)
	}
}

func TestDashboardBeforeFirstProbe(t *testing.T) {
	src := connectedSource()
	src.health = storage.HealthReport{}

	if view := sizedModel(t, src).View(); !strings.Contains(view, "no probes yet") {
		t.Errorf("dashboard should show the empty health placeholder:\n%s", view)
	}
}

func TestTransitionalStateUsesSpinner(t *testing.T) {
	src := connectedSource()
	src.status.State = core.StateConnecting
	src.status.IsConnected = false

	if view := sizedModel(t, src).View(); !strings.Contains(view, "connecting") {
		t.Errorf("dashboard should show the transitional state:\n%s", view)
	}
}

func TestStatusTickRefreshesSnapshot(t *testing.T) {
	src := connectedSource()
	m := sizedModel(t, src)

	src.status.State = core.StateDegraded
	src.status.LastError = "health probe failed"

	updated, cmd := m.Update(statusTickMsg(time.Now()))
	m = updated.(Model)

	if cmd == nil {
		t.Fatal("tick should schedule the next refresh")
	}
	view := m.View()
	if !strings.Contains(view, "degraded") || !strings.Contains(view, "health probe failed") {
		t.Errorf("refresh did not pick up the new snapshot:\n%s", view)
	}
}

func TestBusEventAppendsToLog(t *testing.T) {
	m := sizedModel(t, connectedSource())

	entry := eventEntry{When: time.Now(), Type: events.TypeBackupCreated, Detail: "/backups/app.db"}
	updated, _ := m.Update(busEventMsg{entry: entry})
	m = updated.(Model)

	view := m.View()
	if !strings.Contains(view, "backup_created") || !strings.Contains(view, "/backups/app.db") {
		t.Errorf("recent events missing the new entry:\n%s", view)
	}
}

func TestEventLogCapped(t *testing.T) {
	m := New(connectedSource(), nil)
	for i := 0; i < maxEventEntries+25; i++ {
		m.appendEntry(eventEntry{
			When:   time.Now(),
			Type:   events.TypeHealthChecked,
			Detail: fmt.Sprintf("probe %d", i),
		})
	}
	if len(m.entries) != maxEventEntries {
		t.Errorf("len(entries) = %d, want cap %d", len(m.entries), maxEventEntries)
	}
	if m.entries[len(m.entries)-1].Detail != fmt.Sprintf("probe %d", maxEventEntries+24) {
		t.Errorf("cap dropped the wrong end: last = %q", m.entries[len(m.entries)-1].Detail)
	}
}

func TestToggleEventLogView(t *testing.T) {
	m := sizedModel(t, connectedSource())

	m, _ = keyPress(t, m, "e")
	if view := m.View(); !strings.Contains(view, "press 'e' to return") {
		t.Errorf("expected the full event log view:\n%s", view)
	}

	m, _ = keyPress(t, m, "e")
	if view := m.View(); !strings.Contains(view, "Health") {
		t.Errorf("expected the dashboard view back:\n%s", view)
	}
}

func TestRefreshKeyRereadsSnapshot(t *testing.T) {
	src := connectedSource()
	m := sizedModel(t, src)

	src.status.IntegrityStatus = core.IntegrityWarning
	m, _ = keyPress(t, m, "r")

	if view := m.View(); !strings.Contains(view, "warning") {
		t.Errorf("refresh key did not re-read the snapshot:\n%s", view)
	}
}

func TestQuitKey(t *testing.T) {
	m := sizedModel(t, connectedSource())

	_, cmd := keyPress(t, m, "q")
	if cmd == nil {
		t.Fatal("quit key should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("quit key returned %T, want tea.QuitMsg", cmd())
	}
}

func TestFormatLatency(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{750 * time.Microsecond, "750µs"},
		{2340 * time.Microsecond, "2.3ms"},
		{150 * time.Millisecond, "150ms"},
	}
	for _, tt := range tests {
		if got := formatLatency(tt.in); got != tt.want {
			t.Errorf("formatLatency(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{95 * time.Second, "1m35s"},
		{125 * time.Minute, "2h05m"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
