package diagnostics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/litekeeper/litekeeper/internal/core"
)

// Inspector finds processes that interfere with database access. Lookups skip
// processes the current user may not inspect, and platforms without open-file
// introspection simply report nothing.
type Inspector struct {
	pollInterval time.Duration
}

// NewInspector creates a process inspector.
func NewInspector() *Inspector {
	return &Inspector{pollInterval: 250 * time.Millisecond}
}

var _ core.ProcessInspector = (*Inspector)(nil)

// OpenHandles lists other processes holding the database file, or one of its
// WAL/journal siblings, open. The current process is excluded: its own
// connections are not a conflict.
func (in *Inspector) OpenHandles(ctx context.Context, path string) ([]core.ProcessInfo, error) {
	targets := handleTargets(path)
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}

	self := int32(os.Getpid()) // #nosec G115 -- PIDs fit in int32 on supported platforms
	var holders []core.ProcessInfo
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		if ctx.Err() != nil {
			return holders, ctx.Err()
		}
		files, err := p.OpenFilesWithContext(ctx)
		if err != nil {
			continue
		}
		for _, f := range files {
			if !targets[filepath.Clean(f.Path)] {
				continue
			}
			info := core.ProcessInfo{PID: p.Pid}
			if name, err := p.NameWithContext(ctx); err == nil {
				info.Name = name
			}
			if exe, err := p.ExeWithContext(ctx); err == nil {
				info.Path = exe
			}
			holders = append(holders, info)
			break
		}
	}
	return holders, nil
}

// RunningByName lists processes whose executable name matches one of names.
// Matching is case-insensitive and ignores a trailing ".exe".
func (in *Inspector) RunningByName(ctx context.Context, names []string) ([]core.ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}

	var found []core.ProcessInfo
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if !matchesAnyName(name, names) {
			continue
		}
		info := core.ProcessInfo{PID: p.Pid, Name: name}
		if exe, err := p.ExeWithContext(ctx); err == nil {
			info.Path = exe
		}
		found = append(found, info)
	}
	return found, nil
}

// WaitForExit polls until no process with one of the given names remains, or
// the timeout elapses. It reports whether the processes are gone. When the
// process table is unreadable there is nothing observable to wait for and the
// wait succeeds immediately.
func (in *Inspector) WaitForExit(ctx context.Context, names []string, timeout time.Duration) bool {
	if len(names) == 0 {
		return true
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(in.pollInterval)
	defer ticker.Stop()

	for {
		running, err := in.RunningByName(ctx, names)
		if err != nil || len(running) == 0 {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// handleTargets collects the paths a holder of the database could have open:
// the file itself plus the sidecar files SQLite creates next to it.
func handleTargets(path string) map[string]bool {
	targets := map[string]bool{}
	add := func(p string) {
		targets[filepath.Clean(p)] = true
		if resolved, err := filepath.EvalSymlinks(p); err == nil {
			targets[filepath.Clean(resolved)] = true
		}
	}
	add(path)
	for _, suffix := range []string{"-wal", "-shm", "-journal"} {
		add(path + suffix)
	}
	return targets
}

func matchesAnyName(procName string, names []string) bool {
	got := normalizeProcName(procName)
	for _, want := range names {
		if got == normalizeProcName(want) {
			return true
		}
	}
	return false
}

func normalizeProcName(name string) string {
	name = strings.ToLower(strings.TrimSpace(filepath.Base(name)))
	return strings.TrimSuffix(name, ".exe")
}
