package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/litekeeper/litekeeper/internal/core"
	"github.com/litekeeper/litekeeper/internal/events"
	"github.com/litekeeper/litekeeper/internal/locate"
	"github.com/litekeeper/litekeeper/internal/logging"
	"github.com/litekeeper/litekeeper/internal/retry"
)

// ErrNotConnected is returned when a handle is requested before the
// coordinator has established a connection.
var ErrNotConnected = errors.New("storage: no database connection")

const (
	defaultAppName        = "LiteKeeper"
	defaultFileName       = "litekeeper.db"
	defaultHealthInterval = 30 * time.Second

	// defaultReconnectAfter is how many consecutive failed health probes
	// the loop tolerates before rebuilding the connection.
	defaultReconnectAfter = 3
)

// IntegrityVerdict is the summary the coordinator needs from an integrity
// inspection before it will connect to a database file.
type IntegrityVerdict struct {
	Status     core.IntegrityStatus
	Errors     []string
	Warnings   []string
	Repairable bool
}

// IntegrityVerifier inspects a database file without keeping a connection
// open. Implemented by the integrity checker.
type IntegrityVerifier interface {
	VerifyFile(ctx context.Context, path string) (*IntegrityVerdict, error)
}

// FallbackOutcome is what a recovery tier produced: a live, schema-ready
// handle and the path it belongs to.
type FallbackOutcome struct {
	Type     core.FallbackType
	Path     string
	DB       *sql.DB
	Message  string
	Warnings []string
}

// FallbackHandler walks the recovery tiers when the primary database
// cannot be used. Implemented by the fallback coordinator.
type FallbackHandler interface {
	Engage(ctx context.Context) (*FallbackOutcome, error)
}

// HealthReport summarizes probe outcomes for the current connection.
type HealthReport struct {
	LastProbeAt         time.Time     `json:"last_probe_at"`
	LastLatency         time.Duration `json:"last_latency"`
	AverageLatency      time.Duration `json:"average_latency"`
	TotalProbes         int           `json:"total_probes"`
	FailedProbes        int           `json:"failed_probes"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	Uptime              time.Duration `json:"uptime"`
}

// FallbackMetrics counts recovery tier activations over the life of the
// coordinator. Activations survive Close so diagnostics can report how
// often each tier fired.
type FallbackMetrics struct {
	Activations     map[core.FallbackType]int `json:"activations"`
	Total           int                       `json:"total"`
	LastType        core.FallbackType         `json:"last_type,omitempty"`
	LastActivatedAt time.Time                 `json:"last_activated_at"`
}

// Coordinator owns the live database handle and the process-wide storage
// status. It sequences path resolution, permission validation, integrity
// checking, and connection, and engages the recovery tiers when the
// primary database cannot be used. Status mutation happens under a single
// mutex; callers always receive copies.
type Coordinator struct {
	id       string
	resolver *locate.Resolver
	access   *locate.AccessValidator
	verifier IntegrityVerifier
	fallback FallbackHandler
	executor *retry.Executor
	bus      *events.EventBus
	notifier core.Notifier
	logger   *logging.Logger

	preferredPath  string
	openOpts       OpenOptions
	healthInterval time.Duration
	reconnectAfter int
	watchFile      bool

	openMu sync.Mutex // serializes Open, Reconnect, Close

	mu         sync.Mutex
	status     core.StorageStatus
	db         *sql.DB
	openedAt   time.Time
	watcher    *Watcher
	health     HealthReport
	latencySum time.Duration
	fbMetrics  FallbackMetrics
	wake       chan struct{}
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithResolver sets the path resolver.
func WithResolver(r *locate.Resolver) CoordinatorOption {
	return func(c *Coordinator) { c.resolver = r }
}

// WithAccessValidator sets the permission validator.
func WithAccessValidator(v *locate.AccessValidator) CoordinatorOption {
	return func(c *Coordinator) { c.access = v }
}

// WithIntegrityVerifier sets the pre-connection integrity check.
func WithIntegrityVerifier(v IntegrityVerifier) CoordinatorOption {
	return func(c *Coordinator) { c.verifier = v }
}

// WithFallbackHandler sets the recovery tier walker.
func WithFallbackHandler(h FallbackHandler) CoordinatorOption {
	return func(c *Coordinator) { c.fallback = h }
}

// WithRetryExecutor sets the executor connection attempts run under.
func WithRetryExecutor(e *retry.Executor) CoordinatorOption {
	return func(c *Coordinator) { c.executor = e }
}

// WithEventBus sets the bus lifecycle events are published on.
func WithEventBus(b *events.EventBus) CoordinatorOption {
	return func(c *Coordinator) { c.bus = b }
}

// WithNotifier sets the user notification sink.
func WithNotifier(n core.Notifier) CoordinatorOption {
	return func(c *Coordinator) { c.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = l.WithComponent("coordinator") }
}

// WithPreferredPath sets the user-configured database location, tried
// before the platform candidates.
func WithPreferredPath(path string) CoordinatorOption {
	return func(c *Coordinator) { c.preferredPath = path }
}

// WithOpenOptions sets the connection pragmas.
func WithOpenOptions(o OpenOptions) CoordinatorOption {
	return func(c *Coordinator) { c.openOpts = o }
}

// WithHealthInterval sets the health loop cadence.
func WithHealthInterval(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.healthInterval = d }
}

// WithReconnectThreshold sets how many consecutive probe failures trigger
// a reconnect.
func WithReconnectThreshold(n int) CoordinatorOption {
	return func(c *Coordinator) { c.reconnectAfter = n }
}

// WithFileWatch enables or disables watching the database file for
// external modification.
func WithFileWatch(enabled bool) CoordinatorOption {
	return func(c *Coordinator) { c.watchFile = enabled }
}

// NewCoordinator creates a coordinator in the uninitialized state. Call
// Open to establish the connection.
func NewCoordinator(opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		id:             uuid.New().String(),
		notifier:       core.NopNotifier{},
		logger:         logging.NewNop(),
		openOpts:       DefaultOpenOptions(),
		healthInterval: defaultHealthInterval,
		reconnectAfter: defaultReconnectAfter,
		watchFile:      true,
		wake:           make(chan struct{}, 1),
	}
	c.status.State = core.StateUninitialized
	c.status.IntegrityStatus = core.IntegrityUnknown
	for _, opt := range opts {
		opt(c)
	}
	if c.resolver == nil {
		c.resolver = locate.NewResolver(defaultAppName, defaultFileName, locate.WithLogger(c.logger))
	}
	if c.access == nil {
		c.access = locate.NewAccessValidator(c.logger)
	}
	if c.executor == nil {
		c.executor = retry.NewDatabaseExecutor(retry.WithLogger(c.logger))
	}
	if c.bus == nil {
		c.bus = events.New(64)
	}
	return c
}

// Open establishes the database connection through the full pipeline:
// resolve a path, validate permissions, check integrity, then connect
// under retry. When any stage fails the recovery tiers are engaged and
// the coordinator comes up degraded rather than not at all. Open is
// idempotent while a connection is live.
func (c *Coordinator) Open(ctx context.Context) (core.StorageStatus, error) {
	c.openMu.Lock()
	defer c.openMu.Unlock()

	c.mu.Lock()
	if c.db != nil {
		st := c.status
		c.mu.Unlock()
		return st, nil
	}
	c.mu.Unlock()

	c.logger.Debug("opening storage", "coordinator_id", c.id)

	c.setState(core.StateResolving, "locating database path")
	res := c.resolver.Resolve(ctx, c.preferredPath)
	path := res.ResolvedPath
	c.mu.Lock()
	c.status.DatabasePath = path
	c.mu.Unlock()
	for _, w := range res.Warnings {
		c.logger.Warn("path resolution", "warning", w)
	}
	if res.IsTempFallback() {
		c.notifier.Notify(ctx, core.Notification{
			Title:    "Database in temporary storage",
			Message:  "No durable location was writable. The database lives in the temp directory and may not survive a reboot.",
			Severity: core.SeverityWarning,
		})
	}

	c.setState(core.StateValidating, "validating permissions")
	if err := c.validatePath(path); err != nil {
		return c.engageFallback(ctx, err)
	}

	c.setState(core.StateCheckingIntegrity, "checking database integrity")
	if err := c.checkIntegrity(ctx, path); err != nil {
		return c.engageFallback(ctx, err)
	}

	c.setState(core.StateConnecting, "opening database")
	db, result := retry.RunValue(ctx, c.executor, "open database", func(ctx context.Context) (*sql.DB, error) {
		return c.connect(ctx, path)
	})
	if !result.Success {
		c.bus.Publish(events.NewRetryExhaustedEvent(path, "open database", len(result.Attempts), lastReason(result), result.Err))
		return c.engageFallback(ctx, result.Err)
	}

	st := c.adopt(db, path, nil)
	c.logger.Info("database connected",
		"path", path, "primary", res.IsPrimary, "attempts", result.FinalAttempt+1)
	return st, nil
}

// validatePath confirms the resolved location is actually usable before
// any connection attempt.
func (c *Coordinator) validatePath(path string) error {
	if exists(path) {
		perm := c.access.CheckFile(path)
		if !perm.CanRead || !perm.CanWrite {
			return core.ErrPermissionDenied(path).WithDetail("access", string(perm.Level))
		}
		return nil
	}
	perm := c.access.CheckDirectory(filepath.Dir(path))
	if perm.Level != core.AccessFull {
		return core.ErrPermissionDenied(path).WithDetail("access", string(perm.Level))
	}
	return nil
}

// checkIntegrity runs the verifier against an existing file. A corrupt
// verdict aborts the pipeline; warnings only mark the status. A verifier
// that cannot run is not fatal, the connect probe decides then.
func (c *Coordinator) checkIntegrity(ctx context.Context, path string) error {
	if c.verifier == nil || !exists(path) {
		return nil
	}
	verdict, err := c.verifier.VerifyFile(ctx, path)
	if err != nil {
		c.logger.Warn("integrity check did not run", "error", err)
		return nil
	}

	c.mu.Lock()
	c.status.IntegrityStatus = verdict.Status
	c.mu.Unlock()
	for _, w := range verdict.Warnings {
		c.logger.Warn("integrity", "warning", w)
	}

	if verdict.Status == core.IntegrityCorrupted {
		c.bus.PublishPriority(events.NewCorruptionDetectedEvent(path, verdict.Errors, verdict.Repairable))
		return core.ErrCorruption(path, strings.Join(verdict.Errors, "; "))
	}
	return nil
}

// connect opens the file, brings the schema current, and counts the
// attempt. It runs inside the retry executor.
func (c *Coordinator) connect(ctx context.Context, path string) (*sql.DB, error) {
	c.mu.Lock()
	c.status.ConnectionAttempts++
	c.mu.Unlock()

	db, err := Open(ctx, path, c.openOpts)
	if err != nil {
		return nil, err
	}
	if err := InitializeSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// adopt installs a live handle as the coordinator's connection and brings
// the status to its steady state: connected for the primary database,
// degraded when a fallback produced the handle.
func (c *Coordinator) adopt(db *sql.DB, path string, fb *FallbackOutcome) core.StorageStatus {
	c.mu.Lock()
	from := c.status.State
	c.db = db
	c.openedAt = time.Now()
	c.health = HealthReport{}
	c.latencySum = 0
	c.status.DatabasePath = path
	c.status.IsConnected = true
	c.status.LastCheckedAt = time.Now()

	to := core.StateConnected
	reason := "connected to primary database"
	if fb != nil {
		to = core.StateDegraded
		reason = fb.Message
		c.status.IsFallback = true
		c.status.FallbackType = fb.Type
	} else {
		c.status.IsFallback = false
		c.status.FallbackType = ""
		c.status.LastError = ""
	}
	c.status.State = to
	st := c.status
	c.mu.Unlock()

	if from != to {
		c.bus.Publish(events.NewStateChangedEvent(path, from, to, reason))
	}
	var fbType core.FallbackType
	if fb != nil {
		fbType = fb.Type
	}
	c.bus.Publish(events.NewDatabaseOpenedEvent(path, fb != nil, fbType, fallbackLevel(fbType)))

	if c.watchFile && path != MemoryPath {
		c.startWatcher(path)
	}
	return st
}

// engageFallback records why the primary is unusable and walks the
// recovery tiers. Success leaves the coordinator degraded but serving;
// only the failure of every tier yields the failed state.
func (c *Coordinator) engageFallback(ctx context.Context, cause error) (core.StorageStatus, error) {
	c.mu.Lock()
	c.status.LastError = cause.Error()
	c.mu.Unlock()
	c.logger.Warn("primary database unusable, engaging fallback", "error", cause)

	if c.fallback == nil {
		return c.fail(cause), cause
	}

	out, err := c.fallback.Engage(ctx)
	if err != nil {
		wrapped := fmt.Errorf("engaging fallback: %w", err)
		st := c.fail(wrapped)
		c.notifier.Notify(ctx, core.Notification{
			Title:    "Database unavailable",
			Message:  "The database could not be opened and every recovery option failed.",
			Severity: core.SeverityCritical,
		})
		return st, wrapped
	}

	c.mu.Lock()
	if c.fbMetrics.Activations == nil {
		c.fbMetrics.Activations = make(map[core.FallbackType]int)
	}
	c.fbMetrics.Activations[out.Type]++
	c.fbMetrics.Total++
	c.fbMetrics.LastType = out.Type
	c.fbMetrics.LastActivatedAt = time.Now()
	c.mu.Unlock()

	c.bus.PublishPriority(events.NewFallbackActivatedEvent(out.Path, out.Type, cause.Error()))
	st := c.adopt(out.DB, out.Path, out)

	severity := core.SeverityWarning
	if core.IsTemporaryFallback(out.Type) {
		severity = core.SeverityCritical
	}
	c.notifier.Notify(ctx, core.Notification{
		Title:    "Running on fallback database",
		Message:  out.Message,
		Severity: severity,
	})
	for _, w := range out.Warnings {
		c.logger.Warn("fallback", "warning", w)
	}
	return st, nil
}

// fail moves the coordinator to the terminal failed state.
func (c *Coordinator) fail(err error) core.StorageStatus {
	c.mu.Lock()
	from := c.status.State
	c.status.State = core.StateFailed
	c.status.IsConnected = false
	c.status.LastError = err.Error()
	path := c.status.DatabasePath
	st := c.status
	c.mu.Unlock()

	if from != core.StateFailed {
		c.bus.Publish(events.NewStateChangedEvent(path, from, core.StateFailed, err.Error()))
	}
	return st
}

// setState moves the pipeline to a new stage and announces the change.
func (c *Coordinator) setState(to core.StorageState, reason string) {
	c.mu.Lock()
	from := c.status.State
	if from == to {
		c.mu.Unlock()
		return
	}
	c.status.State = to
	path := c.status.DatabasePath
	c.mu.Unlock()

	c.logger.Debug("state changed", "from", string(from), "to", string(to), "reason", reason)
	c.bus.Publish(events.NewStateChangedEvent(path, from, to, reason))
}

func (c *Coordinator) startWatcher(path string) {
	w, err := NewWatcher(path, c.logger)
	if err != nil {
		c.logger.Debug("file watch unavailable", "error", err)
		return
	}
	c.mu.Lock()
	if c.watcher != nil {
		c.mu.Unlock()
		_ = w.Close()
		return
	}
	c.watcher = w
	c.mu.Unlock()

	go func() {
		for ev := range w.Changes() {
			c.logger.Info("database file changed externally", "op", ev.Op, "path", ev.Path)
			c.bus.Publish(events.NewFileChangedEvent(path, ev.Op))
			select {
			case c.wake <- struct{}{}:
			default:
			}
		}
	}()
}

// Status returns a copy of the current storage status.
func (c *Coordinator) Status() core.StorageStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// DB returns the live handle. Callers must be prepared for
// ErrNotConnected during startup, reconnects, and after Close.
func (c *Coordinator) DB() (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil, ErrNotConnected
	}
	return c.db, nil
}

// Bus exposes the event bus for subscribers.
func (c *Coordinator) Bus() *events.EventBus { return c.bus }

// Executor exposes the retry executor, whose statistics feed diagnostics.
func (c *Coordinator) Executor() *retry.Executor { return c.executor }

// ID identifies this coordinator instance in logs and diagnostics.
func (c *Coordinator) ID() string { return c.id }

// Health returns a copy of the probe metrics for the current connection.
func (c *Coordinator) Health() HealthReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.health
	if h.TotalProbes > 0 {
		h.AverageLatency = c.latencySum / time.Duration(h.TotalProbes)
	}
	if c.db != nil {
		h.Uptime = time.Since(c.openedAt)
	}
	return h
}

// FallbackMetrics returns a copy of the recovery tier activation counts.
func (c *Coordinator) FallbackMetrics() FallbackMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.fbMetrics
	if c.fbMetrics.Activations != nil {
		m.Activations = make(map[core.FallbackType]int, len(c.fbMetrics.Activations))
		for k, v := range c.fbMetrics.Activations {
			m.Activations[k] = v
		}
	}
	return m
}

// SetIntegrityStatus records the verdict of an externally run integrity
// check so on-demand checks show up in Status.
func (c *Coordinator) SetIntegrityStatus(st core.IntegrityStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.IntegrityStatus = st
	c.status.LastCheckedAt = time.Now()
}

// HealthCheck probes the live connection and records the outcome.
func (c *Coordinator) HealthCheck(ctx context.Context) error {
	c.mu.Lock()
	db := c.db
	path := c.status.DatabasePath
	c.mu.Unlock()
	if db == nil {
		return ErrNotConnected
	}

	start := time.Now()
	err := Probe(ctx, db)
	latency := time.Since(start)

	c.mu.Lock()
	c.health.LastProbeAt = time.Now()
	c.health.LastLatency = latency
	c.latencySum += latency
	c.health.TotalProbes++
	if err != nil {
		c.health.FailedProbes++
		c.health.ConsecutiveFailures++
		c.status.LastError = err.Error()
	} else {
		c.health.ConsecutiveFailures = 0
		c.status.LastCheckedAt = time.Now()
	}
	fails := c.health.ConsecutiveFailures
	c.mu.Unlock()

	c.bus.Publish(events.NewHealthCheckedEvent(path, err == nil, latency, err))
	if err != nil {
		c.logger.Warn("health probe failed", "error", err, "consecutive", fails)
	}
	return err
}

// RunHealthLoop probes the connection on a fixed cadence until ctx ends.
// File-watch events trigger an immediate probe. After enough consecutive
// failures the loop rebuilds the connection through the full open
// pipeline.
func (c *Coordinator) RunHealthLoop(ctx context.Context) error {
	interval := c.healthInterval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.logger.Info("health loop started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-c.wake:
		}

		err := c.HealthCheck(ctx)
		if err == nil || errors.Is(err, ErrNotConnected) {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.mu.Lock()
		fails := c.health.ConsecutiveFailures
		c.mu.Unlock()
		if fails < c.reconnectAfter {
			continue
		}
		c.logger.Warn("reconnecting after repeated probe failures", "failures", fails)
		if _, rerr := c.Reconnect(ctx); rerr != nil {
			c.logger.Error("reconnect failed", "error", rerr)
		}
	}
}

// Reconnect tears down the current connection and walks the open pipeline
// again.
func (c *Coordinator) Reconnect(ctx context.Context) (core.StorageStatus, error) {
	c.openMu.Lock()
	c.closeCurrent("reconnecting")
	c.openMu.Unlock()
	return c.Open(ctx)
}

// closeCurrent releases the handle and watcher. Callers hold openMu.
func (c *Coordinator) closeCurrent(reason string) {
	c.mu.Lock()
	db := c.db
	w := c.watcher
	path := c.status.DatabasePath
	opened := c.openedAt
	c.db = nil
	c.watcher = nil
	c.status.IsConnected = false
	c.mu.Unlock()

	if w != nil {
		_ = w.Close()
	}
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		c.logger.Warn("closing database", "error", err)
	}
	c.logger.Info("database closed", "path", path, "reason", reason)
	c.bus.Publish(events.NewDatabaseClosedEvent(path, time.Since(opened)))
}

// Close releases the connection and returns the coordinator to the
// uninitialized state. The event bus stays open; its owner closes it at
// process shutdown.
func (c *Coordinator) Close() error {
	c.openMu.Lock()
	defer c.openMu.Unlock()

	c.closeCurrent("shutdown")

	c.mu.Lock()
	from := c.status.State
	attempts := c.status.ConnectionAttempts
	c.status = core.StorageStatus{
		State:              core.StateUninitialized,
		IntegrityStatus:    core.IntegrityUnknown,
		ConnectionAttempts: attempts,
	}
	c.health = HealthReport{}
	c.latencySum = 0
	c.mu.Unlock()

	if from != core.StateUninitialized {
		c.bus.Publish(events.NewStateChangedEvent("", from, core.StateUninitialized, "closed"))
	}
	return nil
}

func lastReason(res *retry.Result) string {
	if len(res.Attempts) == 0 {
		return ""
	}
	return string(res.Attempts[len(res.Attempts)-1].Reason)
}

// fallbackLevel numbers the recovery tiers for events, zero for the
// primary database.
func fallbackLevel(t core.FallbackType) int {
	switch t {
	case core.FallbackBackupRestore:
		return 1
	case core.FallbackAlternativeLocation:
		return 2
	case core.FallbackCleanDatabase:
		return 3
	case core.FallbackMemoryDatabase:
		return 4
	default:
		return 0
	}
}
