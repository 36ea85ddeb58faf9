//go:build !windows

package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// WriteFileAtomic writes data to filename so readers never observe a
// partial file. On POSIX systems renameio guarantees atomic replacement
// via rename(2).
func WriteFileAtomic(filename string, data []byte, perm os.FileMode) error {
	return renameio.WriteFile(filename, data, perm)
}

// ReplaceFile atomically replaces dst with src. Both paths must live on
// the same filesystem.
func ReplaceFile(src, dst string) error {
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("replacing %s: %w", filepath.Base(dst), err)
	}
	return nil
}
