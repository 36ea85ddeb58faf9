package core

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Kind classifies a storage failure for explanation and remedy lookup.
type Kind string

const (
	KindFileNotFound     Kind = "file_not_found"     // Database file missing
	KindPermissionDenied Kind = "permission_denied"  // OS denied read/write
	KindDiskFull         Kind = "disk_full"          // No space on the target volume
	KindFileLocked       Kind = "file_locked"        // Held by another process
	KindCorruption       Kind = "corruption"         // File fails integrity verification
	KindNetworkPath      Kind = "network_path"       // Unreachable network location
	KindSecurityBlock    Kind = "security_software"  // Blocked by AV/endpoint software
	KindInvalidPath      Kind = "invalid_path"       // Malformed or illegal path
	KindUnknown          Kind = "unknown"            // Unclassified failure
)

// StorageError is a structured error from the storage layer.
type StorageError struct {
	Kind      Kind
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *StorageError) Is(target error) bool {
	t, ok := target.(*StorageError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithCause wraps an underlying error.
func (e *StorageError) WithCause(cause error) *StorageError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *StorageError) WithDetail(key string, value interface{}) *StorageError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrFileNotFound creates a missing-file error.
func ErrFileNotFound(path string) *StorageError {
	return &StorageError{
		Kind:      KindFileNotFound,
		Message:   fmt.Sprintf("database file not found: %s", path),
		Retryable: false,
	}
}

// ErrPermissionDenied creates a permission error.
func ErrPermissionDenied(path string) *StorageError {
	return &StorageError{
		Kind:      KindPermissionDenied,
		Message:   fmt.Sprintf("access denied: %s", path),
		Retryable: true,
	}
}

// ErrDiskFull creates a disk-space error.
func ErrDiskFull(path string, requiredBytes, availableBytes uint64) *StorageError {
	return &StorageError{
		Kind:      KindDiskFull,
		Message:   fmt.Sprintf("insufficient disk space for %s: need %d bytes, have %d", path, requiredBytes, availableBytes),
		Retryable: false,
		Details: map[string]interface{}{
			"required_bytes":  requiredBytes,
			"available_bytes": availableBytes,
		},
	}
}

// ErrFileLocked creates a lock-contention error.
func ErrFileLocked(path string) *StorageError {
	return &StorageError{
		Kind:      KindFileLocked,
		Message:   fmt.Sprintf("database file is locked: %s", path),
		Retryable: true,
	}
}

// ErrCorruption creates a corruption error.
func ErrCorruption(path, detail string) *StorageError {
	return &StorageError{
		Kind:      KindCorruption,
		Message:   fmt.Sprintf("database corruption in %s: %s", path, detail),
		Retryable: false,
	}
}

// ErrNetworkPath creates an unreachable-network-location error.
func ErrNetworkPath(path string) *StorageError {
	return &StorageError{
		Kind:      KindNetworkPath,
		Message:   fmt.Sprintf("network location unreachable: %s", path),
		Retryable: true,
	}
}

// ErrSecurityBlock creates a security-software interference error.
func ErrSecurityBlock(path string) *StorageError {
	return &StorageError{
		Kind:      KindSecurityBlock,
		Message:   fmt.Sprintf("access blocked by security software: %s", path),
		Retryable: true,
	}
}

// ErrInvalidPath creates a malformed-path error.
func ErrInvalidPath(path, reason string) *StorageError {
	return &StorageError{
		Kind:      KindInvalidPath,
		Message:   fmt.Sprintf("invalid path %q: %s", path, reason),
		Retryable: false,
	}
}

// ErrUnknown creates an unclassified error.
func ErrUnknown(message string) *StorageError {
	return &StorageError{
		Kind:      KindUnknown,
		Message:   message,
		Retryable: false,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var serr *StorageError
	if errors.As(err, &serr) {
		return serr.Retryable
	}
	return false
}

// GetKind extracts the error kind, defaulting to KindUnknown.
func GetKind(err error) Kind {
	var serr *StorageError
	if errors.As(err, &serr) {
		return serr.Kind
	}
	return KindUnknown
}

// IsKind checks if an error belongs to a kind.
func IsKind(err error, kind Kind) bool {
	return GetKind(err) == kind
}

// ClassifyError maps an arbitrary error onto the storage taxonomy.
// Classification is best-effort: it inspects sentinel errors first, then
// well-known driver and OS message fragments.
func ClassifyError(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var serr *StorageError
	if errors.As(err, &serr) {
		return serr.Kind
	}

	if errors.Is(err, os.ErrNotExist) {
		return KindFileNotFound
	}
	if errors.Is(err, os.ErrPermission) {
		return KindPermissionDenied
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "database is locked", "table is locked", "sharing violation", "being used by another process", "file is locked"):
		return KindFileLocked
	case containsAny(msg, "no space left", "disk full", "not enough space"):
		return KindDiskFull
	case containsAny(msg, "file is not a database", "malformed", "corrupt", "database disk image"):
		return KindCorruption
	case containsAny(msg, "network path", "network name", "host is down", "connection reset", "unreachable"):
		return KindNetworkPath
	case containsAny(msg, "virus", "quarantine", "blocked by policy"):
		return KindSecurityBlock
	case containsAny(msg, "permission denied", "access is denied", "access denied"):
		return KindPermissionDenied
	case containsAny(msg, "no such file", "cannot find the file", "cannot find the path"):
		return KindFileNotFound
	case containsAny(msg, "invalid argument", "file name too long", "invalid path"):
		return KindInvalidPath
	}
	return KindUnknown
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
