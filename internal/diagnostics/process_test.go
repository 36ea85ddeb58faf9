package diagnostics

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestInspector_OpenHandles_ExcludesSelf(t *testing.T) {
	t.Parallel()

	db := filepath.Join(t.TempDir(), "app.db")
	f, err := os.Create(db)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	holders, err := NewInspector().OpenHandles(context.Background(), db)
	if err != nil {
		t.Fatalf("OpenHandles: %v", err)
	}
	self := int32(os.Getpid())
	for _, h := range holders {
		if h.PID == self {
			t.Error("current process must not be reported as a holder")
		}
	}
}

func TestInspector_WaitForExit_AbsentProcess(t *testing.T) {
	t.Parallel()

	start := time.Now()
	ok := NewInspector().WaitForExit(context.Background(), []string{"litekeeper-no-such-process"}, 3*time.Second)
	if !ok {
		t.Error("absent process should report exited")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("wait took %v, should return on the first poll", elapsed)
	}
}

func TestInspector_WaitForExit_NoNames(t *testing.T) {
	t.Parallel()

	if !NewInspector().WaitForExit(context.Background(), nil, time.Second) {
		t.Error("empty name list should report exited immediately")
	}
}

func TestInspector_WaitForExit_SelfTimesOut(t *testing.T) {
	t.Parallel()

	exe, err := os.Executable()
	if err != nil {
		t.Skipf("cannot determine own executable: %v", err)
	}
	name := filepath.Base(exe)

	in := NewInspector()
	in.pollInterval = 20 * time.Millisecond

	running, err := in.RunningByName(context.Background(), []string{name})
	if err != nil || len(running) == 0 {
		t.Skip("own process not visible by name on this platform")
	}

	if in.WaitForExit(context.Background(), []string{name}, 150*time.Millisecond) {
		t.Error("waiting on our own process must time out")
	}
}

func TestInspector_RunningByName_Self(t *testing.T) {
	t.Parallel()

	exe, err := os.Executable()
	if err != nil {
		t.Skipf("cannot determine own executable: %v", err)
	}

	found, err := NewInspector().RunningByName(context.Background(), []string{filepath.Base(exe)})
	if err != nil {
		t.Fatalf("RunningByName: %v", err)
	}

	self := int32(os.Getpid())
	for _, p := range found {
		if p.PID == self {
			return
		}
	}
	t.Skip("own process not visible by name on this platform")
}

func TestHandleTargets(t *testing.T) {
	t.Parallel()

	targets := handleTargets(filepath.Join("data", "app.db"))
	for _, want := range []string{
		filepath.Join("data", "app.db"),
		filepath.Join("data", "app.db-wal"),
		filepath.Join("data", "app.db-shm"),
		filepath.Join("data", "app.db-journal"),
	} {
		if !targets[want] {
			t.Errorf("missing target %q", want)
		}
	}
}

func TestMatchesAnyName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		proc  string
		names []string
		want  bool
	}{
		{"Dropbox.exe", []string{"dropbox"}, true},
		{"dropbox", []string{"Dropbox.exe"}, true},
		{"OneDrive", []string{"onedrive", "dropbox"}, true},
		{"/usr/bin/rsync", []string{"rsync"}, true},
		{"sqlite3", []string{"dropbox"}, false},
		{"dropboxd", []string{"dropbox"}, false},
	}
	for _, tc := range cases {
		if got := matchesAnyName(tc.proc, tc.names); got != tc.want {
			t.Errorf("matchesAnyName(%q, %v) = %v, want %v", tc.proc, tc.names, got, tc.want)
		}
	}
}
