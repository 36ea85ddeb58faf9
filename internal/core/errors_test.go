package core

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
)

func TestStorageError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("root")
	err := ErrCorruption("/data/app.db", "bad page").WithCause(cause)

	if err.Unwrap() != cause {
		t.Fatalf("expected cause to be unwrapped")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to match cause")
	}

	match := &StorageError{Kind: KindCorruption}
	if !errors.Is(err, match) {
		t.Fatalf("expected errors.Is to match kind")
	}
	if !strings.Contains(err.Error(), "bad page") {
		t.Fatalf("Error() = %q, want detail text", err.Error())
	}
}

func TestStorageError_WithDetail(t *testing.T) {
	err := ErrFileLocked("/data/app.db")
	err.WithDetail("holder_pid", 4242)
	if err.Details == nil || err.Details["holder_pid"] != 4242 {
		t.Fatalf("expected details to be set")
	}
}

func TestErrorFactories_Retryable(t *testing.T) {
	if ErrFileNotFound("p").Retryable {
		t.Fatalf("file-not-found should not be retryable")
	}
	if !ErrPermissionDenied("p").Retryable {
		t.Fatalf("permission-denied should be retryable")
	}
	if ErrDiskFull("p", 10, 5).Retryable {
		t.Fatalf("disk-full should not be retryable")
	}
	if !ErrFileLocked("p").Retryable {
		t.Fatalf("file-locked should be retryable")
	}
	if ErrCorruption("p", "d").Retryable {
		t.Fatalf("corruption should not be retryable")
	}
	if !ErrNetworkPath("p").Retryable {
		t.Fatalf("network-path should be retryable")
	}
	if ErrInvalidPath("p", "r").Retryable {
		t.Fatalf("invalid-path should not be retryable")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(ErrFileLocked("p")) {
		t.Fatalf("expected retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Fatalf("plain errors are not retryable")
	}
	wrapped := fmt.Errorf("opening database: %w", ErrFileLocked("p"))
	if !IsRetryable(wrapped) {
		t.Fatalf("expected retryable through wrapping")
	}
}

func TestGetKind(t *testing.T) {
	if got := GetKind(ErrDiskFull("p", 1, 0)); got != KindDiskFull {
		t.Errorf("GetKind = %s, want %s", got, KindDiskFull)
	}
	if got := GetKind(errors.New("plain")); got != KindUnknown {
		t.Errorf("GetKind = %s, want %s", got, KindUnknown)
	}
	if !IsKind(ErrCorruption("p", "d"), KindCorruption) {
		t.Errorf("IsKind should match corruption")
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"os not exist", os.ErrNotExist, KindFileNotFound},
		{"os permission", os.ErrPermission, KindPermissionDenied},
		{"wrapped not exist", fmt.Errorf("stat: %w", os.ErrNotExist), KindFileNotFound},
		{"sqlite locked", errors.New("database is locked (5) (SQLITE_BUSY)"), KindFileLocked},
		{"windows sharing", errors.New("The process cannot access the file because it is being used by another process"), KindFileLocked},
		{"disk full", errors.New("write /data/app.db: no space left on device"), KindDiskFull},
		{"not a database", errors.New("file is not a database (26)"), KindCorruption},
		{"malformed", errors.New("database disk image is malformed"), KindCorruption},
		{"network", errors.New("The network path was not found"), KindNetworkPath},
		{"access denied text", errors.New("open app.db: Access is denied."), KindPermissionDenied},
		{"missing text", errors.New("The system cannot find the file specified"), KindFileNotFound},
		{"long name", errors.New("open: file name too long"), KindInvalidPath},
		{"storage error passthrough", ErrSecurityBlock("p"), KindSecurityBlock},
		{"unmatched", errors.New("something odd"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestExplanationAndRemedies(t *testing.T) {
	kinds := []Kind{
		KindFileNotFound, KindPermissionDenied, KindDiskFull, KindFileLocked,
		KindCorruption, KindNetworkPath, KindSecurityBlock, KindInvalidPath,
		KindUnknown,
	}
	for _, k := range kinds {
		if Explanation(k) == "" {
			t.Errorf("Explanation(%s) is empty", k)
		}
		if len(Remedies(k)) == 0 {
			t.Errorf("Remedies(%s) is empty", k)
		}
	}

	// Unregistered kinds fall back to the unknown texts.
	if Explanation(Kind("bogus")) != Explanation(KindUnknown) {
		t.Errorf("unregistered kind should fall back to unknown explanation")
	}

	// Callers must not be able to mutate the remedy tables.
	r := Remedies(KindCorruption)
	r[0] = "mutated"
	if Remedies(KindCorruption)[0] == "mutated" {
		t.Errorf("Remedies should return a copy")
	}
}

func TestIsTemporaryFallback(t *testing.T) {
	if !IsTemporaryFallback(FallbackMemoryDatabase) {
		t.Errorf("memory database is temporary")
	}
	if !IsTemporaryFallback(FallbackCleanDatabase) {
		t.Errorf("clean database is temporary")
	}
	if IsTemporaryFallback(FallbackBackupRestore) {
		t.Errorf("backup restore is not temporary")
	}
	if IsTemporaryFallback(FallbackAlternativeLocation) {
		t.Errorf("alternative location is not temporary")
	}
}
