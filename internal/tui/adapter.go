package tui

import (
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/litekeeper/litekeeper/internal/events"
)

// eventEntry is one rendered line of the event feed.
type eventEntry struct {
	When   time.Time
	Type   string
	Detail string
}

// busEventMsg delivers one bus event to the model.
type busEventMsg struct {
	entry eventEntry
}

// BusAdapter bridges event bus subscriptions to Bubble Tea messages.
type BusAdapter struct {
	bus     *events.EventBus
	eventCh <-chan events.Event
	msgCh   chan tea.Msg
	closeCh chan struct{}
	mu      sync.Mutex
	closed  bool
}

// NewBusAdapter subscribes to every event type on the bus and starts the
// pump goroutine.
func NewBusAdapter(bus *events.EventBus) *BusAdapter {
	a := &BusAdapter{
		bus:     bus,
		eventCh: bus.Subscribe(),
		msgCh:   make(chan tea.Msg, 100),
		closeCh: make(chan struct{}),
	}
	go a.run()
	return a
}

// MsgChannel returns the channel the model reads from.
func (a *BusAdapter) MsgChannel() <-chan tea.Msg {
	return a.msgCh
}

// Dropped returns the bus-wide count of dropped events.
func (a *BusAdapter) Dropped() int64 {
	return a.bus.DroppedCount()
}

// Close unsubscribes from the bus and stops the pump goroutine.
func (a *BusAdapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	a.closed = true
	a.bus.Unsubscribe(a.eventCh)
	close(a.closeCh)
}

func (a *BusAdapter) run() {
	defer close(a.msgCh)
	for {
		select {
		case <-a.closeCh:
			return
		case event, ok := <-a.eventCh:
			if !ok {
				return
			}
			a.send(busEventMsg{entry: newEventEntry(event)})
		}
	}
}

// send delivers without blocking; the periodic snapshot refresh resyncs
// state when the UI falls behind.
func (a *BusAdapter) send(msg tea.Msg) {
	select {
	case a.msgCh <- msg:
	default:
	}
}

func newEventEntry(event events.Event) eventEntry {
	return eventEntry{
		When:   event.Timestamp(),
		Type:   event.EventType(),
		Detail: eventDetail(event),
	}
}

// eventDetail renders the type-specific part of an event line.
func eventDetail(event events.Event) string {
	switch e := event.(type) {
	case events.StateChangedEvent:
		detail := fmt.Sprintf("%s → %s", e.From, e.To)
		if e.Reason != "" {
			detail += " (" + e.Reason + ")"
		}
		return detail

	case events.DatabaseOpenedEvent:
		if e.IsFallback {
			return "fallback " + string(e.FallbackType)
		}
		return "primary database"

	case events.DatabaseClosedEvent:
		return "uptime " + e.Uptime.Round(time.Second).String()

	case events.HealthCheckedEvent:
		if e.Healthy {
			return "ok in " + e.Latency.Round(time.Microsecond).String()
		}
		return "failed: " + e.Error

	case events.FileChangedEvent:
		return e.Op

	case events.CorruptionDetectedEvent:
		if len(e.Errors) > 0 {
			return e.Errors[0]
		}
		return "corruption reported"

	case events.FallbackActivatedEvent:
		detail := string(e.Fallback)
		if e.Reason != "" {
			detail += " (" + e.Reason + ")"
		}
		return detail

	case events.RetryExhaustedEvent:
		return fmt.Sprintf("%s after %d attempts", e.Operation, e.Attempts)

	case events.BackupCreatedEvent:
		return e.BackupPath

	case events.BackupRestoredEvent:
		return "from " + e.BackupPath

	case events.MigrationStartedEvent:
		return e.Strategy + " to " + e.TargetPath

	case events.MigrationCompletedEvent:
		return e.MigrationID + " in " + e.Duration.Round(time.Millisecond).String()

	case events.MigrationFailedEvent:
		if e.RolledBack {
			return e.Error + " (rolled back)"
		}
		return e.Error

	case events.RepairCompletedEvent:
		if !e.Success {
			return "repair failed"
		}
		return fmt.Sprintf("%d rows recovered", e.RecoveredRows)

	default:
		return ""
	}
}
