package retry

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/litekeeper/litekeeper/internal/core"
)

// fakeInspector scripts process visibility for wait tests.
type fakeInspector struct {
	mu         sync.Mutex
	holders    []core.ProcessInfo
	holdersErr error
	running    []core.ProcessInfo
	runningErr error
	waitCalled bool
	waitResult bool
}

func (f *fakeInspector) OpenHandles(ctx context.Context, path string) ([]core.ProcessInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.holders, f.holdersErr
}

func (f *fakeInspector) RunningByName(ctx context.Context, names []string) ([]core.ProcessInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running, f.runningErr
}

func (f *fakeInspector) WaitForExit(ctx context.Context, names []string, timeout time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waitCalled = true
	return f.waitResult
}

func (f *fakeInspector) setHolders(holders []core.ProcessInfo, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holders = holders
	f.holdersErr = err
}

var _ core.ProcessInspector = (*fakeInspector)(nil)

func TestSleepCtx(t *testing.T) {
	t.Parallel()

	if !sleepCtx(context.Background(), 0) {
		t.Error("zero duration should report elapsed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if sleepCtx(ctx, time.Minute) {
		t.Error("cancelled context should interrupt the sleep")
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("sleep took %v after cancellation", elapsed)
	}
}

func TestWaitForUnlock_ObservesCancellation(t *testing.T) {
	t.Parallel()

	e := New()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	e.waitForUnlock(ctx, 2*time.Second)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("waitForUnlock took %v, cancellation should cut it short", elapsed)
	}
}

func TestWaitForUnlock_EndsEarlyWhenHolderReleases(t *testing.T) {
	t.Parallel()

	fake := &fakeInspector{holders: []core.ProcessInfo{{PID: 4242, Name: "machinist"}}}
	e := New(WithInspector(fake), WithDatabasePath("/data/app.db"))

	// The holder disappears after the first poll.
	go func() {
		time.Sleep(30 * time.Millisecond)
		fake.setHolders(nil, nil)
	}()

	start := time.Now()
	e.waitForUnlock(context.Background(), time.Second)
	if elapsed := time.Since(start); elapsed > 800*time.Millisecond {
		t.Errorf("waitForUnlock took %v, release should end the wait early", elapsed)
	}
}

func TestWaitForUnlock_NoInspectorSleepsFullDelay(t *testing.T) {
	t.Parallel()

	e := New()
	start := time.Now()
	e.waitForUnlock(context.Background(), 40*time.Millisecond)
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("waitForUnlock returned after %v, want the full delay", elapsed)
	}
}

func TestWaitForConflict_NoNamesSleepsDelay(t *testing.T) {
	t.Parallel()

	fake := &fakeInspector{}
	e := New(WithInspector(fake))

	start := time.Now()
	e.waitForConflict(context.Background(), 20*time.Millisecond)
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("waitForConflict returned after %v, want the full delay", elapsed)
	}
	if fake.waitCalled {
		t.Error("WaitForExit must not run without configured names")
	}
}

func TestWaitForConflict_NoVisibleConflictSleepsDelay(t *testing.T) {
	t.Parallel()

	fake := &fakeInspector{}
	e := New(WithInspector(fake), WithConflictingProcesses("dropbox"))

	start := time.Now()
	e.waitForConflict(context.Background(), 20*time.Millisecond)
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("waitForConflict returned after %v, want the full delay", elapsed)
	}
	if fake.waitCalled {
		t.Error("WaitForExit must not run when nothing conflicting is visible")
	}
}

func TestWaitForConflict_WaitsForVisibleConflict(t *testing.T) {
	t.Parallel()

	fake := &fakeInspector{
		running:    []core.ProcessInfo{{PID: 4242, Name: "dropbox"}},
		waitResult: true,
	}
	e := New(WithInspector(fake), WithConflictingProcesses("dropbox"))

	e.waitForConflict(context.Background(), 20*time.Millisecond)
	if !fake.waitCalled {
		t.Error("WaitForExit should run when a conflicting process is visible")
	}
}

func TestWaitForConflict_SelfDoesNotCount(t *testing.T) {
	t.Parallel()

	self := int32(os.Getpid()) // #nosec G115 -- PIDs fit in int32 on supported platforms
	fake := &fakeInspector{running: []core.ProcessInfo{{PID: self, Name: "retry.test"}}}
	e := New(WithInspector(fake), WithConflictingProcesses("retry.test"))

	e.waitForConflict(context.Background(), 5*time.Millisecond)
	if fake.waitCalled {
		t.Error("our own process is not a conflict to wait on")
	}
}

func TestLockHolderError(t *testing.T) {
	t.Parallel()

	cause := errors.New("database is locked")

	t.Run("no path", func(t *testing.T) {
		t.Parallel()
		e := New()
		if got := e.lockHolderError(context.Background(), cause); got != cause {
			t.Errorf("err = %v, want the cause unchanged", got)
		}
	})

	t.Run("no visible holders", func(t *testing.T) {
		t.Parallel()
		e := New(WithInspector(&fakeInspector{}), WithDatabasePath("/data/app.db"))
		if got := e.lockHolderError(context.Background(), cause); got != cause {
			t.Errorf("err = %v, want the cause unchanged", got)
		}
	})

	t.Run("holders named", func(t *testing.T) {
		t.Parallel()
		fake := &fakeInspector{holders: []core.ProcessInfo{{PID: 4242, Name: "machinist"}}}
		e := New(WithInspector(fake), WithDatabasePath("/data/app.db"))

		got := e.lockHolderError(context.Background(), cause)
		var serr *core.StorageError
		if !errors.As(got, &serr) {
			t.Fatalf("err = %T, want *core.StorageError", got)
		}
		if serr.Kind != core.KindFileLocked {
			t.Errorf("kind = %s, want %s", serr.Kind, core.KindFileLocked)
		}
		if !errors.Is(got, cause) {
			t.Error("decorated error should still unwrap to the cause")
		}
		held, ok := serr.Details["held_by"].([]string)
		if !ok || len(held) != 1 {
			t.Fatalf("held_by detail = %#v, want one entry", serr.Details["held_by"])
		}
		if held[0] != "machinist (pid 4242)" {
			t.Errorf("held_by[0] = %q", held[0])
		}
	})
}

func TestRun_FinalLockErrorNamesHolders(t *testing.T) {
	t.Parallel()

	fake := &fakeInspector{holders: []core.ProcessInfo{{PID: 4242, Name: "machinist"}}}
	e := New(
		WithMaxRetries(1),
		WithBaseDelay(time.Millisecond),
		WithMaxDelay(2*time.Millisecond),
		WithInspector(fake),
		WithDatabasePath("/data/app.db"),
	)

	res := e.Run(context.Background(), "write", func(ctx context.Context) error {
		return errors.New("database is locked")
	})

	if res.Success {
		t.Fatal("Run should fail")
	}
	if core.GetKind(res.Err) != core.KindFileLocked {
		t.Errorf("final error kind = %s, want %s", core.GetKind(res.Err), core.KindFileLocked)
	}
}

func TestDetectFileLocks(t *testing.T) {
	t.Parallel()

	fake := &fakeInspector{holders: []core.ProcessInfo{{PID: 7, Name: "dropbox"}}}
	e := New(WithInspector(fake))

	locks := e.DetectFileLocks(context.Background(), "/data/app.db")
	if len(locks) != 1 || locks[0].Name != "dropbox" {
		t.Errorf("locks = %+v, want the scripted holder", locks)
	}

	fake.setHolders(nil, errors.New("process table unreadable"))
	if locks := e.DetectFileLocks(context.Background(), "/data/app.db"); locks != nil {
		t.Errorf("locks = %+v, want nil on detection failure", locks)
	}
}

func TestWaitForProcessCompletion(t *testing.T) {
	t.Parallel()

	fake := &fakeInspector{waitResult: true}
	e := New(WithInspector(fake))

	if !e.WaitForProcessCompletion(context.Background(), []string{"dropbox"}, time.Second) {
		t.Error("scripted inspector reports completion")
	}
	if !fake.waitCalled {
		t.Error("WaitForExit should be delegated to the inspector")
	}
}
