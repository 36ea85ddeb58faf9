// Package tui renders the live storage dashboard behind `status --watch`.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/litekeeper/litekeeper/internal/core"
	"github.com/litekeeper/litekeeper/internal/events"
	"github.com/litekeeper/litekeeper/internal/storage"
)

// Color palette - dark theme.
var (
	primaryColor = lipgloss.Color("#7C3AED") // Purple
	successColor = lipgloss.Color("#10B981") // Green
	warningColor = lipgloss.Color("#F59E0B") // Amber
	errorColor   = lipgloss.Color("#EF4444") // Red
	textColor    = lipgloss.Color("#E5E7EB") // Light gray
	dimColor     = lipgloss.Color("#9CA3AF") // Muted gray
	borderColor  = lipgloss.Color("#374151") // Dark gray
)

var (
	logoStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	labelStyle = lipgloss.NewStyle().
			Foreground(dimColor).
			Width(12)

	valueStyle = lipgloss.NewStyle().
			Foreground(textColor)

	connectedStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	degradedStyle = lipgloss.NewStyle().
			Foreground(warningColor).
			Bold(true)

	failedStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	workingStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	warnTextStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	errTextStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginTop(1)

	footerStyle = lipgloss.NewStyle().
			Foreground(dimColor).
			MarginTop(1)

	separatorStyle = lipgloss.NewStyle().
			Foreground(borderColor)

	timeStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(primaryColor)
)

const (
	defaultRefreshInterval = 2 * time.Second
	maxEventEntries        = 200
	recentEventLines       = 8
)

// StatusSource provides point-in-time snapshots of the storage layer.
// *storage.Coordinator satisfies it.
type StatusSource interface {
	Status() core.StorageStatus
	Health() storage.HealthReport
}

// Model is the Bubble Tea model for the watch dashboard.
type Model struct {
	source   StatusSource
	adapter  *BusAdapter
	interval time.Duration

	status  core.StorageStatus
	health  storage.HealthReport
	entries []eventEntry

	spinner    spinner.Model
	viewport   viewport.Model
	showEvents bool
	width      int
	height     int
	ready      bool
}

// New creates a watch model reading snapshots from source and live events
// from bus. A nil bus disables the event feed.
func New(source StatusSource, bus *events.EventBus) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	m := Model{
		source:   source,
		interval: defaultRefreshInterval,
		spinner:  sp,
	}
	if bus != nil {
		m.adapter = NewBusAdapter(bus)
	}
	m.refresh()
	return m
}

// WithRefreshInterval overrides how often snapshots are re-read.
func (m Model) WithRefreshInterval(d time.Duration) Model {
	if d > 0 {
		m.interval = d
	}
	return m
}

// statusTickMsg triggers a snapshot refresh.
type statusTickMsg time.Time

func statusTick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return statusTickMsg(t)
	})
}

func waitForBusEvent(a *BusAdapter) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-a.MsgChannel()
		if !ok {
			return nil
		}
		return msg
	}
}

// Init starts the spinner, the refresh ticker and the event feed.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, statusTick(m.interval)}
	if m.adapter != nil {
		cmds = append(cmds, waitForBusEvent(m.adapter))
	}
	return tea.Batch(cmds...)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeViewport()
		m.ready = true
		return m, nil

	case statusTickMsg:
		m.refresh()
		return m, statusTick(m.interval)

	case busEventMsg:
		m.appendEntry(msg.entry)
		m.refresh()
		if m.adapter != nil {
			return m, waitForBusEvent(m.adapter)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.adapter != nil {
			m.adapter.Close()
		}
		return m, tea.Quit

	case "e":
		m.showEvents = !m.showEvents
		if m.showEvents {
			m.syncViewport()
		}
		return m, nil

	case "r":
		m.refresh()
		return m, nil
	}

	if m.showEvents {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

// refresh re-reads the status and health snapshots.
func (m *Model) refresh() {
	if m.source == nil {
		return
	}
	m.status = m.source.Status()
	m.health = m.source.Health()
}

func (m *Model) appendEntry(entry eventEntry) {
	m.entries = append(m.entries, entry)
	if len(m.entries) > maxEventEntries {
		m.entries = m.entries[len(m.entries)-maxEventEntries:]
	}
	if m.showEvents {
		m.syncViewport()
	}
}

func (m *Model) resizeViewport() {
	h := m.height - 4
	if h < 3 {
		h = 3
	}
	if !m.ready {
		m.viewport = viewport.New(m.width, h)
	} else {
		m.viewport.Width = m.width
		m.viewport.Height = h
	}
	m.syncViewport()
}

func (m *Model) syncViewport() {
	var sb strings.Builder
	for _, e := range m.entries {
		sb.WriteString(m.formatEntry(e))
		sb.WriteByte('\n')
	}
	m.viewport.SetContent(sb.String())
	m.viewport.GotoBottom()
}

// View renders the dashboard.
func (m Model) View() string {
	if !m.ready {
		return "Starting..."
	}
	if m.showEvents {
		return m.renderEventLog()
	}
	return m.renderDashboard()
}

func (m Model) renderDashboard() string {
	var sb strings.Builder
	sb.WriteString(m.renderHeader())
	sb.WriteString("\n\n")
	sb.WriteString(m.renderStatus())
	sb.WriteString("\n")
	sb.WriteString(m.renderHealth())
	sb.WriteString("\n")
	sb.WriteString(m.renderRecentEvents())
	sb.WriteString("\n")
	sb.WriteString(m.renderFooter())
	return sb.String()
}

func (m Model) renderHeader() string {
	path := m.status.DatabasePath
	if path == "" {
		path = "(no database path resolved)"
	}
	return logoStyle.Render("LiteKeeper") + "  " + valueStyle.Render(path)
}

func (m Model) renderStatus() string {
	state := stateStyle(m.status.State).Render(stateIcon(m.status.State) + " " + string(m.status.State))
	if isTransitional(m.status.State) {
		state = m.spinner.View() + " " + workingStyle.Render(string(m.status.State))
	}
	lines := []string{row("State", state)}

	if m.status.IsFallback {
		fb := string(m.status.FallbackType)
		if core.IsTemporaryFallback(m.status.FallbackType) {
			fb += " (temporary)"
		}
		lines = append(lines, row("Fallback", warnTextStyle.Render(fb)))
	}

	lines = append(lines,
		row("Integrity", integrityValue(m.status.IntegrityStatus)),
		row("Attempts", valueStyle.Render(fmt.Sprintf("%d", m.status.ConnectionAttempts))),
	)

	if m.status.LastError != "" {
		lines = append(lines, row("Last error", errTextStyle.Render(m.status.LastError)))
	}

	return strings.Join(lines, "\n")
}

func (m Model) renderHealth() string {
	lines := []string{sectionStyle.Render("Health")}

	if m.health.TotalProbes == 0 {
		lines = append(lines, workingStyle.Render("no probes yet"))
		return strings.Join(lines, "\n")
	}

	probes := valueStyle.Render(fmt.Sprintf("%d total, %d failed", m.health.TotalProbes, m.health.FailedProbes))
	if m.health.ConsecutiveFailures > 0 {
		probes += " " + warnTextStyle.Render(fmt.Sprintf("(%d in a row)", m.health.ConsecutiveFailures))
	}
	lines = append(lines,
		row("Probes", probes),
		row("Latency", valueStyle.Render(fmt.Sprintf("%s last, %s avg",
			formatLatency(m.health.LastLatency), formatLatency(m.health.AverageLatency)))),
	)
	if m.health.Uptime > 0 {
		lines = append(lines, row("Uptime", valueStyle.Render(formatDuration(m.health.Uptime))))
	}

	return strings.Join(lines, "\n")
}

func (m Model) renderRecentEvents() string {
	lines := []string{sectionStyle.Render("Events")}

	if len(m.entries) == 0 {
		lines = append(lines, workingStyle.Render("none yet"))
		return strings.Join(lines, "\n")
	}

	start := 0
	if len(m.entries) > recentEventLines {
		start = len(m.entries) - recentEventLines
	}
	for _, e := range m.entries[start:] {
		lines = append(lines, m.formatEntry(e))
	}

	return strings.Join(lines, "\n")
}

func (m Model) renderEventLog() string {
	header := sectionStyle.Render(fmt.Sprintf("Events (%d) - press 'e' to return", len(m.entries)))
	sep := separatorStyle.Render(strings.Repeat("─", max(m.width, 10)))
	return header + "\n" + sep + "\n" + m.viewport.View() + "\n" + m.renderFooter()
}

func (m Model) renderFooter() string {
	footer := "q: quit | e: events | r: refresh"
	if m.adapter != nil {
		if dropped := m.adapter.Dropped(); dropped > 0 {
			footer += fmt.Sprintf(" | ⚠ %d dropped", dropped)
		}
	}
	return footerStyle.Render(footer)
}

func (m Model) formatEntry(e eventEntry) string {
	line := timeStyle.Render(e.When.Format("15:04:05")) + " " +
		eventTypeStyle(e.Type).Render(fmt.Sprintf("%-20s", e.Type))
	if e.Detail != "" {
		line += " " + valueStyle.Render(e.Detail)
	}
	return line
}

func row(label, value string) string {
	return labelStyle.Render(label) + value
}

func stateStyle(state core.StorageState) lipgloss.Style {
	switch state {
	case core.StateConnected:
		return connectedStyle
	case core.StateDegraded:
		return degradedStyle
	case core.StateFailed:
		return failedStyle
	default:
		return workingStyle
	}
}

func stateIcon(state core.StorageState) string {
	switch state {
	case core.StateConnected:
		return "●"
	case core.StateDegraded:
		return "◐"
	case core.StateFailed:
		return "✗"
	default:
		return "○"
	}
}

func isTransitional(state core.StorageState) bool {
	switch state {
	case core.StateResolving, core.StateValidating, core.StateCheckingIntegrity, core.StateConnecting:
		return true
	}
	return false
}

func integrityValue(s core.IntegrityStatus) string {
	switch s {
	case core.IntegrityCorrupted:
		return errTextStyle.Render(string(s))
	case core.IntegrityWarning:
		return warnTextStyle.Render(string(s))
	default:
		return valueStyle.Render(string(s))
	}
}

func eventTypeStyle(eventType string) lipgloss.Style {
	switch eventType {
	case events.TypeCorruptionDetected, events.TypeMigrationFailed:
		return errTextStyle
	case events.TypeFallbackActivated, events.TypeRetryExhausted, events.TypeFileChanged:
		return warnTextStyle
	default:
		return workingStyle
	}
}

func formatLatency(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	if d < time.Millisecond {
		return d.Round(time.Microsecond).String()
	}
	return d.Round(100 * time.Microsecond).String()
}

// formatDuration formats an uptime for display.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}
