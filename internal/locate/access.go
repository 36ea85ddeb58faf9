package locate

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/litekeeper/litekeeper/internal/core"
	"github.com/litekeeper/litekeeper/internal/logging"
)

// AccessValidator reports effective permissions on files and directories.
// Plain checks are pure reads; only ProbeWrite touches the filesystem, and
// only when a caller asks for it explicitly.
type AccessValidator struct {
	logger *logging.Logger
}

// NewAccessValidator creates a validator. A nil logger disables logging.
func NewAccessValidator(logger *logging.Logger) *AccessValidator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &AccessValidator{logger: logger.WithComponent("access")}
}

// CheckDirectory reports what the current process may do with a directory.
// A missing directory is judged by its parent: a writable parent means the
// directory can be created.
func (v *AccessValidator) CheckDirectory(path string) core.PermissionResult {
	v.logger.Debug("checking directory permissions", "path", path)

	if !exists(path) {
		parent := filepath.Dir(path)
		if !exists(parent) {
			return core.PermissionResult{
				Level:        core.AccessPathAbsent,
				ErrorMessage: "parent directory does not exist",
				SuggestedFix: "verify the path or create the directory tree first",
			}
		}

		res := core.PermissionResult{
			CanCreate: canWrite(parent),
			Level:     core.AccessPathAbsent,
		}
		if !res.CanCreate {
			res.ErrorMessage = "no permission to create the directory"
			res.SuggestedFix = "run with elevated privileges or choose a writable location"
		}
		return res
	}

	readOK := canRead(path)
	writeOK := canWrite(path)
	res := core.PermissionResult{CanRead: readOK, CanWrite: writeOK, CanCreate: writeOK}
	switch {
	case readOK && writeOK:
		res.Level = core.AccessFull
	case readOK:
		res.Level = core.AccessReadOnly
		res.ErrorMessage = "write permission missing"
		res.SuggestedFix = "grant write access or run with elevated privileges"
	default:
		res.Level = core.AccessNone
		res.ErrorMessage = "no access to the directory"
		res.SuggestedFix = "check ownership and permission bits for the path"
	}
	return res
}

// CheckFile reports what the current process may do with a file. A missing
// file delegates to its directory, so the answer becomes "may it be created
// here".
func (v *AccessValidator) CheckFile(path string) core.PermissionResult {
	v.logger.Debug("checking file permissions", "path", path)

	if !exists(path) {
		return v.CheckDirectory(filepath.Dir(path))
	}

	readOK := canRead(path)
	writeOK := canWrite(path)
	res := core.PermissionResult{CanRead: readOK, CanWrite: writeOK, CanCreate: writeOK}
	switch {
	case readOK && writeOK:
		res.Level = core.AccessFull
	case readOK:
		res.Level = core.AccessReadOnly
		res.ErrorMessage = "file is read-only"
		res.SuggestedFix = "clear the read-only attribute or fix the permission bits"
	default:
		res.Level = core.AccessNone
		res.ErrorMessage = "no access to the file"
		res.SuggestedFix = "check ownership and permission bits for the file"
	}
	return res
}

// ProbeWrite verifies a directory accepts writes by creating and removing a
// zero-byte canary file.
func (v *AccessValidator) ProbeWrite(dir string) bool {
	name := filepath.Join(dir, fmt.Sprintf(".litekeeper_probe_%d", os.Getpid()))
	f, err := os.Create(name)
	if err != nil {
		v.logger.Debug("write probe failed", "dir", dir, "error", err)
		return false
	}
	_ = f.Close()
	if err := os.Remove(name); err != nil {
		v.logger.Debug("removing write probe failed", "path", name, "error", err)
	}
	return true
}

// PermissionIssues lists human-readable problems with a path: existence,
// read/write access, lock contention on files, and Windows path constraints.
func (v *AccessValidator) PermissionIssues(path string) []string {
	var issues []string

	if !exists(path) {
		issues = append(issues, "file or directory does not exist")
		parent := filepath.Dir(path)
		if !exists(parent) {
			issues = append(issues, "parent directory does not exist")
		} else if !canWrite(parent) {
			issues = append(issues, "parent directory is not writable")
		}
	} else {
		if !canRead(path) {
			issues = append(issues, "read permission missing")
		}
		if !canWrite(path) {
			issues = append(issues, "write permission missing")
		} else if info, err := os.Stat(path); err == nil && !info.IsDir() {
			if !probeAppend(path) {
				issues = append(issues, "file is in use by another process")
			}
		}
	}

	issues = append(issues, windowsPathIssues(path)...)
	return issues
}

// probeAppend opens the file for append without writing anything. A sharing
// violation here means another process holds the file exclusively.
func probeAppend(path string) bool {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

// windowsPathIssues flags Windows path constraints. Evaluated only on
// Windows; other platforms have no equivalent limits.
func windowsPathIssues(path string) []string {
	if runtime.GOOS != "windows" {
		return nil
	}
	var issues []string
	if len(path) > 260 {
		issues = append(issues, "path exceeds the Windows 260 character limit")
	}
	if hasInvalidWindowsChars(path) {
		issues = append(issues, "path contains characters Windows does not allow")
	}
	return issues
}

// hasInvalidWindowsChars reports characters Windows rejects in paths. The
// drive letter colon is legal and skipped.
func hasInvalidWindowsChars(path string) bool {
	rest := path
	if len(rest) >= 2 && rest[1] == ':' {
		rest = rest[2:]
	}
	return strings.ContainsAny(rest, `<>:"|?*`)
}

// exists reports whether the path names anything at all.
func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
