package core

import (
	"context"
	"time"
)

// Notifier delivers fire-and-forget notifications to the user. Delivery
// failures are the implementation's problem; callers never gate control flow
// on a notification.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NopNotifier discards all notifications. Default for headless and test use.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, Notification) {}

var _ Notifier = NopNotifier{}

// ProcessInspector is a best-effort window into other OS processes. Platforms
// or builds without process introspection use NopProcessInspector; absence of
// the capability must never be a hard failure.
type ProcessInspector interface {
	// OpenHandles lists processes holding the given file open.
	OpenHandles(ctx context.Context, path string) ([]ProcessInfo, error)

	// RunningByName lists processes whose executable name matches one of
	// names. The current process is included when it matches.
	RunningByName(ctx context.Context, names []string) ([]ProcessInfo, error)

	// WaitForExit blocks until no process with one of the given names is
	// running, or the timeout elapses. Returns true when all exited.
	WaitForExit(ctx context.Context, names []string, timeout time.Duration) bool
}

// NopProcessInspector reports no processes and waits passively.
type NopProcessInspector struct{}

// OpenHandles implements ProcessInspector.
func (NopProcessInspector) OpenHandles(context.Context, string) ([]ProcessInfo, error) {
	return nil, nil
}

// RunningByName implements ProcessInspector.
func (NopProcessInspector) RunningByName(context.Context, []string) ([]ProcessInfo, error) {
	return nil, nil
}

// WaitForExit implements ProcessInspector by sleeping out the capped timeout.
func (NopProcessInspector) WaitForExit(ctx context.Context, _ []string, timeout time.Duration) bool {
	if timeout > 5*time.Second {
		timeout = 5 * time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(timeout):
	}
	return true
}

var _ ProcessInspector = NopProcessInspector{}
