package retry

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/litekeeper/litekeeper/internal/core"
)

// DefaultConflictingProcesses lists software known to hold long-lived handles
// on user files; sync clients in particular keep SQLite databases open while
// uploading them.
var DefaultConflictingProcesses = []string{
	"dropbox",
	"onedrive",
	"googledrivefs",
	"insync",
	"megasync",
}

// DetectFileLocks lists the processes currently holding the given file open.
// Detection is best-effort; an empty list does not prove the file is free.
func (e *Executor) DetectFileLocks(ctx context.Context, path string) []core.ProcessInfo {
	holders, err := e.inspector.OpenHandles(ctx, path)
	if err != nil {
		e.logger.Debug("file lock detection failed", "path", path, "error", err)
		return nil
	}
	return holders
}

// WaitForProcessCompletion blocks until no process with one of the given
// names runs, or the timeout elapses. It reports whether the processes
// exited.
func (e *Executor) WaitForProcessCompletion(ctx context.Context, names []string, timeout time.Duration) bool {
	return e.inspector.WaitForExit(ctx, names, timeout)
}

// waitForUnlock sleeps out the backoff delay in short intervals so context
// cancellation is noticed quickly. When the inspector saw a lock holder at
// the start of the wait, the wait ends early once the holder lets go.
func (e *Executor) waitForUnlock(ctx context.Context, delay time.Duration) {
	interval := delay / 4
	if interval > 500*time.Millisecond {
		interval = 500 * time.Millisecond
	}
	if interval <= 0 {
		sleepCtx(ctx, delay)
		return
	}

	watching := false
	if e.dbPath != "" {
		holders, err := e.inspector.OpenHandles(ctx, e.dbPath)
		watching = err == nil && len(holders) > 0
	}

	for waited := time.Duration(0); waited < delay; waited += interval {
		if !sleepCtx(ctx, interval) {
			return
		}
		if !watching {
			continue
		}
		holders, err := e.inspector.OpenHandles(ctx, e.dbPath)
		if err == nil && len(holders) == 0 {
			e.logger.Debug("lock holder released the file",
				"path", e.dbPath,
				"waited", (waited + interval).Round(time.Millisecond))
			return
		}
	}
}

// waitForConflict waits for configured conflicting processes to exit,
// bounded at five seconds per try. Without visible conflicts, or without a
// real inspector, it degrades to a plain backoff sleep.
func (e *Executor) waitForConflict(ctx context.Context, delay time.Duration) {
	if len(e.conflictNames) == 0 {
		sleepCtx(ctx, delay)
		return
	}

	running, err := e.inspector.RunningByName(ctx, e.conflictNames)
	self := int32(os.Getpid()) // #nosec G115 -- PIDs fit in int32 on supported platforms
	conflicts := 0
	for _, p := range running {
		if p.PID != self {
			conflicts++
		}
	}
	if err != nil || conflicts == 0 {
		sleepCtx(ctx, delay)
		return
	}

	bound := delay
	if bound > 5*time.Second {
		bound = 5 * time.Second
	}
	e.logger.Warn("waiting for conflicting processes", "count", conflicts, "timeout", bound)
	e.inspector.WaitForExit(ctx, e.conflictNames, bound)
}

// lockHolderError decorates the final lock failure with the processes
// holding the database, when the inspector can see them.
func (e *Executor) lockHolderError(ctx context.Context, cause error) error {
	if e.dbPath == "" {
		return cause
	}
	holders, err := e.inspector.OpenHandles(ctx, e.dbPath)
	if err != nil || len(holders) == 0 {
		return cause
	}
	names := make([]string, 0, len(holders))
	for _, h := range holders {
		names = append(names, fmt.Sprintf("%s (pid %d)", h.Name, h.PID))
	}
	return core.ErrFileLocked(e.dbPath).WithCause(cause).WithDetail("held_by", names)
}

// sleepCtx sleeps for d unless the context is cancelled first. It reports
// whether the full duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
