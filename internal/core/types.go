package core

import (
	"time"
)

// AccessLevel summarizes effective permissions on a file or directory.
type AccessLevel string

const (
	AccessFull       AccessLevel = "full_access"
	AccessReadOnly   AccessLevel = "read_only"
	AccessNone       AccessLevel = "no_access"
	AccessPathAbsent AccessLevel = "path_not_exists"
)

// PermissionResult reports what the current process may do with a path.
// Invariant: Level == AccessFull exactly when CanRead and CanWrite.
type PermissionResult struct {
	CanRead      bool        `json:"can_read"`
	CanWrite     bool        `json:"can_write"`
	CanCreate    bool        `json:"can_create"`
	Level        AccessLevel `json:"level"`
	ErrorMessage string      `json:"error_message,omitempty"`
	SuggestedFix string      `json:"suggested_fix,omitempty"`
}

// PathCandidate is one well-known location the database file may live in.
// Candidate ordering encodes preference.
type PathCandidate struct {
	Path        string `json:"path"`
	Description string `json:"description"`
}

// TempFallbackLevel marks the temp-directory last resort in a resolution.
const TempFallbackLevel = 99

// PathResolutionResult is the outcome of locating a usable database path.
type PathResolutionResult struct {
	ResolvedPath     string           `json:"resolved_path"`
	IsPrimary        bool             `json:"is_primary"`
	FallbackLevel    int              `json:"fallback_level"`
	Permission       PermissionResult `json:"permission"`
	CreationRequired bool             `json:"creation_required"`
	Warnings         []string         `json:"warnings,omitempty"`
}

// IsTempFallback reports whether resolution landed on the non-durable
// temp-directory sentinel.
func (r *PathResolutionResult) IsTempFallback() bool {
	return r.FallbackLevel == TempFallbackLevel
}

// FallbackType identifies a recovery tier.
type FallbackType string

const (
	FallbackBackupRestore       FallbackType = "backup_restore"
	FallbackAlternativeLocation FallbackType = "alternative_location"
	FallbackCleanDatabase       FallbackType = "clean_database"
	FallbackMemoryDatabase      FallbackType = "memory_database"
)

// IsTemporaryFallback reports whether a fallback tier yields a database whose
// contents will not survive the process or carry pre-existing business data.
func IsTemporaryFallback(t FallbackType) bool {
	return t == FallbackMemoryDatabase || t == FallbackCleanDatabase
}

// IntegrityStatus summarizes the last known integrity verdict.
type IntegrityStatus string

const (
	IntegrityUnknown   IntegrityStatus = "unknown"
	IntegrityHealthy   IntegrityStatus = "healthy"
	IntegrityWarning   IntegrityStatus = "warning"
	IntegrityCorrupted IntegrityStatus = "corrupted"
)

// StorageState is a stage in the access pipeline.
type StorageState string

const (
	StateUninitialized     StorageState = "uninitialized"
	StateResolving         StorageState = "resolving"
	StateValidating        StorageState = "validating"
	StateCheckingIntegrity StorageState = "checking_integrity"
	StateConnecting        StorageState = "connecting"
	StateConnected         StorageState = "connected"
	StateDegraded          StorageState = "degraded"
	StateFailed            StorageState = "failed"
)

// StorageStatus is the process-wide view of the storage layer, owned and
// mutated only by the access coordinator. Callers receive copies.
type StorageStatus struct {
	State              StorageState    `json:"state"`
	IsConnected        bool            `json:"is_connected"`
	DatabasePath       string          `json:"database_path,omitempty"`
	IsFallback         bool            `json:"is_fallback"`
	FallbackType       FallbackType    `json:"fallback_type,omitempty"`
	LastError          string          `json:"last_error,omitempty"`
	ConnectionAttempts int             `json:"connection_attempts"`
	IntegrityStatus    IntegrityStatus `json:"integrity_status"`
	LastCheckedAt      time.Time       `json:"last_checked_at"`
}

// Severity grades a user notification.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Notification is a fire-and-forget message for the user.
type Notification struct {
	Title    string        `json:"title"`
	Message  string        `json:"message"`
	Severity Severity      `json:"severity"`
	Expiry   time.Duration `json:"expiry,omitempty"`
}

// ProcessInfo describes another OS process, typically one holding the
// database file open.
type ProcessInfo struct {
	PID  int32  `json:"pid"`
	Name string `json:"name"`
	Path string `json:"path,omitempty"`
}
