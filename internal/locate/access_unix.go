//go:build !windows

package locate

import "syscall"

// POSIX access(2) mode bits; the syscall package does not name them.
const (
	accessRead  = 0x4
	accessWrite = 0x2
)

// canRead asks the kernel whether the path is readable. Unlike a Stat-based
// guess this respects ACLs and read-only mounts.
func canRead(path string) bool {
	return syscall.Access(path, accessRead) == nil
}

// canWrite asks the kernel whether the path is writable.
func canWrite(path string) bool {
	return syscall.Access(path, accessWrite) == nil
}
