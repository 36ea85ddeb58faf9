package retry

import (
	"errors"
	"fmt"
	"net"
	"os"
	"testing"

	"github.com/litekeeper/litekeeper/internal/core"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		err       error
		reason    Reason
		retryable bool
	}{
		{"sqlite lock", errors.New("database is locked"), ReasonDatabaseLocked, true},
		{"table lock", errors.New("table machines is locked"), ReasonDatabaseLocked, true},
		{"unix permission", errors.New("open /data/app.db: permission denied"), ReasonFileAccessDenied, true},
		{"windows permission", errors.New("CreateFile app.db: Access denied"), ReasonFileAccessDenied, true},
		{"wrapped ErrPermission", fmt.Errorf("stat: %w", os.ErrPermission), ReasonFileAccessDenied, true},
		{"device busy", errors.New("device or resource busy"), ReasonResourceBusy, true},
		{"eagain", errors.New("resource temporarily unavailable"), ReasonTransient, true},
		{"would block", errors.New("operation would block"), ReasonTransient, true},
		{"connection reset", errors.New("read tcp 127.0.0.1: connection reset by peer"), ReasonTransient, true},
		{"timeout text", errors.New("i/o timeout"), ReasonTransient, true},
		{"unmatched", errors.New("syntax error near SELECT"), ReasonTransient, false},
		{"nil", nil, ReasonTransient, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			reason, retryable := Classify(tc.err)
			if reason != tc.reason {
				t.Errorf("reason = %s, want %s", reason, tc.reason)
			}
			if retryable != tc.retryable {
				t.Errorf("retryable = %v, want %v", retryable, tc.retryable)
			}
		})
	}
}

func TestClassify_StorageErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		err       error
		reason    Reason
		retryable bool
	}{
		{"locked", core.ErrFileLocked("/data/app.db"), ReasonDatabaseLocked, true},
		{"permission", core.ErrPermissionDenied("/data/app.db"), ReasonFileAccessDenied, true},
		{"security software", core.ErrSecurityBlock("/data/app.db"), ReasonFileAccessDenied, true},
		{"network path", core.ErrNetworkPath(`\\nas\share\app.db`), ReasonNetworkError, true},
		{"corruption", core.ErrCorruption("/data/app.db", "page 5"), ReasonTransient, false},
		{"disk full", core.ErrDiskFull("/data/app.db", 100, 1), ReasonTransient, false},
		{"wrapped storage error", fmt.Errorf("inner: %w", core.ErrFileLocked("/data/app.db")), ReasonDatabaseLocked, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			reason, retryable := Classify(tc.err)
			if reason != tc.reason {
				t.Errorf("reason = %s, want %s", reason, tc.reason)
			}
			if retryable != tc.retryable {
				t.Errorf("retryable = %v, want %v", retryable, tc.retryable)
			}
		})
	}
}

func TestClassify_NetError(t *testing.T) {
	t.Parallel()

	dnsErr := &net.DNSError{Err: "lookup failed", Name: "nas.local", IsTimeout: true}
	reason, retryable := Classify(dnsErr)
	if reason != ReasonNetworkError {
		t.Errorf("reason = %s, want %s", reason, ReasonNetworkError)
	}
	if !retryable {
		t.Error("net.Error should be retryable")
	}
}
