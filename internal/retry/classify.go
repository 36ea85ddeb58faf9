package retry

import (
	"errors"
	"net"
	"os"
	"strings"

	"github.com/litekeeper/litekeeper/internal/core"
)

// Reason classifies why an operation failed. The reason picks the wait
// strategy before the next try.
type Reason string

const (
	ReasonDatabaseLocked   Reason = "database_locked"    // SQLite lock contention
	ReasonFileAccessDenied Reason = "file_access_denied" // Permission failure, often a passing scan
	ReasonProcessConflict  Reason = "process_conflict"   // Named competing process, custom classifiers only
	ReasonTransient        Reason = "transient_error"    // Keyword-matched passing failure
	ReasonNetworkError     Reason = "network_error"      // Socket or network filesystem failure
	ReasonResourceBusy     Reason = "resource_busy"      // OS resource busy
)

// Classifier decides the retry reason for an error and whether it is worth
// retrying at all. A custom classifier replaces the default completely; it
// can call Classify to fall back on the default rules.
type Classifier func(err error) (Reason, bool)

// retryableMessages mark an otherwise unclassified error as transient. The
// list is the complete retry vocabulary even though some fragments are
// already mapped to a specific reason before it is consulted.
var retryableMessages = []string{
	"database is locked",
	"permission denied",
	"resource temporarily unavailable",
	"device or resource busy",
	"operation would block",
	"connection reset",
	"timeout",
}

// Classify is the default Classifier. Structured storage errors carry their
// own retry decision; everything else is matched on driver and OS error text.
// Errors it cannot place are reported non-retryable.
func Classify(err error) (Reason, bool) {
	if err == nil {
		return ReasonTransient, false
	}

	var serr *core.StorageError
	if errors.As(err, &serr) {
		return reasonForKind(serr.Kind), serr.Retryable
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "locked"):
		return ReasonDatabaseLocked, true
	case strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "access denied"),
		errors.Is(err, os.ErrPermission):
		return ReasonFileAccessDenied, true
	case strings.Contains(msg, "busy"):
		return ReasonResourceBusy, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ReasonNetworkError, true
	}

	for _, fragment := range retryableMessages {
		if strings.Contains(msg, fragment) {
			return ReasonTransient, true
		}
	}
	return ReasonTransient, false
}

func reasonForKind(kind core.Kind) Reason {
	switch kind {
	case core.KindFileLocked:
		return ReasonDatabaseLocked
	case core.KindPermissionDenied, core.KindSecurityBlock:
		return ReasonFileAccessDenied
	case core.KindNetworkPath:
		return ReasonNetworkError
	default:
		return ReasonTransient
	}
}
