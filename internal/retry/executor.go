// Package retry executes storage operations under exponential backoff with
// failure classification. Each failure class waits its own way: lock
// contention polls in short intervals so cancellation and early release are
// noticed, process conflicts wait for the competing process to exit, and
// everything else sleeps out the computed delay. Errors the classifier cannot
// place are not retried.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/litekeeper/litekeeper/internal/core"
	"github.com/litekeeper/litekeeper/internal/logging"
)

// Operation is a unit of work run under retry. It must be safe to invoke
// more than once.
type Operation func(ctx context.Context) error

// Policy bounds the retry loop. MaxRetries counts additional tries after the
// first, so an operation runs at most MaxRetries+1 times.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultPolicy returns the general-purpose retry policy.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: time.Minute}
}

// Attempt records one failed try. When a later try succeeds, the last
// recorded attempt is flipped to Succeeded.
type Attempt struct {
	Number    int
	Reason    Reason
	Err       error
	Timestamp time.Time
	Delay     time.Duration
	Succeeded bool
}

// Result is the outcome of a retried operation.
type Result struct {
	Success      bool
	Err          error
	Attempts     []Attempt
	Duration     time.Duration
	FinalAttempt int
}

// Stats aggregates retry behavior across all operations run by one Executor.
type Stats struct {
	TotalOperations      int            `json:"total_operations"`
	SuccessfulOperations int            `json:"successful_operations"`
	FailedOperations     int            `json:"failed_operations"`
	TotalRetries         int            `json:"total_retries"`
	MaxRetryCount        int            `json:"max_retry_count"`
	AverageRetryCount    float64        `json:"average_retry_count"`
	ReasonCounts         map[Reason]int `json:"reason_counts"`
}

// SuccessRate returns the share of operations that eventually succeeded, in
// percent.
func (s Stats) SuccessRate() float64 {
	if s.TotalOperations == 0 {
		return 0
	}
	return float64(s.SuccessfulOperations) / float64(s.TotalOperations) * 100
}

// Executor retries operations with exponential backoff and jitter.
type Executor struct {
	policy        Policy
	classify      Classifier
	inspector     core.ProcessInspector
	logger        *logging.Logger
	dbPath        string
	conflictNames []string

	mu    sync.Mutex
	stats Stats
}

// Option configures an Executor.
type Option func(*Executor)

// WithPolicy replaces the whole retry policy.
func WithPolicy(p Policy) Option {
	return func(e *Executor) { e.policy = p }
}

// WithMaxRetries sets the number of additional tries after the first.
func WithMaxRetries(n int) Option {
	return func(e *Executor) { e.policy.MaxRetries = n }
}

// WithBaseDelay sets the first backoff delay.
func WithBaseDelay(d time.Duration) Option {
	return func(e *Executor) { e.policy.BaseDelay = d }
}

// WithMaxDelay caps the backoff delay.
func WithMaxDelay(d time.Duration) Option {
	return func(e *Executor) { e.policy.MaxDelay = d }
}

// WithClassifier replaces the default error classifier.
func WithClassifier(c Classifier) Option {
	return func(e *Executor) {
		if c != nil {
			e.classify = c
		}
	}
}

// WithInspector sets the process inspector used for lock-holder discovery
// and conflict waits.
func WithInspector(in core.ProcessInspector) Option {
	return func(e *Executor) {
		if in != nil {
			e.inspector = in
		}
	}
}

// WithLogger sets the executor logger.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger.WithComponent("retry")
		}
	}
}

// WithDatabasePath tells the executor which file its lock failures refer to,
// so waits can watch the lock holder and the final error can name it.
func WithDatabasePath(path string) Option {
	return func(e *Executor) { e.dbPath = path }
}

// WithConflictingProcesses sets the process names a ReasonProcessConflict
// failure waits on.
func WithConflictingProcesses(names ...string) Option {
	return func(e *Executor) { e.conflictNames = append(e.conflictNames, names...) }
}

// New creates an executor with the default policy.
func New(opts ...Option) *Executor {
	e := &Executor{
		policy:    DefaultPolicy(),
		classify:  Classify,
		inspector: core.NopProcessInspector{},
		logger:    logging.NewNop(),
		stats:     Stats{ReasonCounts: map[Reason]int{}},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.policy.MaxRetries < 0 {
		e.policy.MaxRetries = 0
	}
	if e.policy.BaseDelay <= 0 {
		e.policy.BaseDelay = time.Second
	}
	if e.policy.MaxDelay < e.policy.BaseDelay {
		e.policy.MaxDelay = e.policy.BaseDelay
	}
	return e
}

// NewDatabaseExecutor returns an executor tuned for SQLite statement and
// connection retries.
func NewDatabaseExecutor(opts ...Option) *Executor {
	base := []Option{WithPolicy(Policy{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
	})}
	return New(append(base, opts...)...)
}

// NewFileExecutor returns an executor tuned for filesystem operations.
func NewFileExecutor(opts ...Option) *Executor {
	base := []Option{WithPolicy(Policy{
		MaxRetries: 5,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
	})}
	return New(append(base, opts...)...)
}

// NewNetworkExecutor returns an executor tuned for storage on network paths.
func NewNetworkExecutor(opts ...Option) *Executor {
	base := []Option{WithPolicy(Policy{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   time.Minute,
	})}
	return New(append(base, opts...)...)
}

// Policy returns the executor's retry policy.
func (e *Executor) Policy() Policy {
	return e.policy
}

// Run executes op under the retry policy, classifying each failure to pick
// the wait strategy before the next try. The result carries the complete
// attempt history whether or not the operation eventually succeeded.
func (e *Executor) Run(ctx context.Context, name string, op Operation) *Result {
	start := time.Now()
	log := e.logger.WithOperation(name)
	var attempts []Attempt

	e.mu.Lock()
	e.stats.TotalOperations++
	e.mu.Unlock()

	for attempt := 0; attempt <= e.policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			log.Warn("retry loop cancelled", "attempt", attempt, "error", err)
			return e.finish(false, err, attempts, start, attempt)
		}

		err := op(ctx)
		if err == nil {
			if len(attempts) > 0 {
				attempts[len(attempts)-1].Succeeded = true
				log.Info("operation succeeded after retries",
					"attempt", attempt,
					"duration", time.Since(start).Round(time.Millisecond))
			}
			return e.finish(true, nil, attempts, start, attempt)
		}

		reason, retryable := e.classify(err)
		delay := e.CalculateDelay(attempt)
		attempts = append(attempts, Attempt{
			Number:    attempt,
			Reason:    reason,
			Err:       err,
			Timestamp: time.Now(),
			Delay:     delay,
		})
		e.countReason(reason)

		if attempt >= e.policy.MaxRetries || !retryable {
			if reason == ReasonDatabaseLocked {
				err = e.lockHolderError(ctx, err)
			}
			log.Error("operation failed",
				"attempts", attempt+1,
				"reason", string(reason),
				"retryable", retryable,
				"error", err)
			return e.finish(false, err, attempts, start, attempt)
		}

		log.Warn("operation failed, retrying",
			"attempt", attempt+1,
			"reason", string(reason),
			"delay", delay.Round(time.Millisecond),
			"error", err)

		switch reason {
		case ReasonDatabaseLocked:
			e.waitForUnlock(ctx, delay)
		case ReasonProcessConflict:
			e.waitForConflict(ctx, delay)
		default:
			sleepCtx(ctx, delay)
		}
	}

	// Not reachable: the final iteration returns above.
	return e.finish(false, fmt.Errorf("retries exhausted for %s", name), attempts, start, e.policy.MaxRetries)
}

// RunValue executes an operation returning a value under the executor's
// policy. On failure the zero value is returned alongside the result.
func RunValue[T any](ctx context.Context, e *Executor, name string, op func(ctx context.Context) (T, error)) (T, *Result) {
	var value T
	res := e.Run(ctx, name, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if !res.Success {
		var zero T
		return zero, res
	}
	return value, res
}

// CalculateDelay returns the backoff delay for a zero-based attempt number:
// BaseDelay doubled per attempt plus up to 10% jitter, capped at MaxDelay.
func (e *Executor) CalculateDelay(attempt int) time.Duration {
	delay := float64(e.policy.BaseDelay) * math.Pow(2, float64(attempt))
	delay += rand.Float64() * delay * 0.1
	if ceil := float64(e.policy.MaxDelay); delay > ceil {
		delay = ceil
	}
	return time.Duration(delay)
}

// CalculateDelayNoJitter returns the deterministic part of the backoff
// curve, useful for testing.
func (e *Executor) CalculateDelayNoJitter(attempt int) time.Duration {
	delay := float64(e.policy.BaseDelay) * math.Pow(2, float64(attempt))
	if ceil := float64(e.policy.MaxDelay); delay > ceil {
		delay = ceil
	}
	return time.Duration(delay)
}

// Stats returns a snapshot of accumulated retry statistics.
func (e *Executor) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := e.stats
	out.ReasonCounts = make(map[Reason]int, len(e.stats.ReasonCounts))
	for reason, count := range e.stats.ReasonCounts {
		out.ReasonCounts[reason] = count
	}
	return out
}

// ResetStats clears accumulated statistics.
func (e *Executor) ResetStats() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats = Stats{ReasonCounts: map[Reason]int{}}
}

func (e *Executor) finish(success bool, err error, attempts []Attempt, start time.Time, finalAttempt int) *Result {
	retries := len(attempts)

	e.mu.Lock()
	if success {
		e.stats.SuccessfulOperations++
	} else {
		e.stats.FailedOperations++
	}
	if retries > 0 {
		e.stats.TotalRetries += retries
		if retries > e.stats.MaxRetryCount {
			e.stats.MaxRetryCount = retries
		}
	}
	if completed := e.stats.SuccessfulOperations + e.stats.FailedOperations; completed > 0 {
		e.stats.AverageRetryCount = float64(e.stats.TotalRetries) / float64(completed)
	}
	e.mu.Unlock()

	return &Result{
		Success:      success,
		Err:          err,
		Attempts:     attempts,
		Duration:     time.Since(start),
		FinalAttempt: finalAttempt,
	}
}

func (e *Executor) countReason(reason Reason) {
	e.mu.Lock()
	e.stats.ReasonCounts[reason]++
	e.mu.Unlock()
}
