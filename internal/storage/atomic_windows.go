//go:build windows

package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data to filename via a sibling temp file and
// rename. Windows cannot rename over an existing file, so the destination
// is removed first when present.
func WriteFileAtomic(filename string, data []byte, perm os.FileMode) error {
	tmp := filename + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := os.Remove(filename); err != nil && !os.IsNotExist(err) {
		_ = os.Remove(tmp)
		return fmt.Errorf("removing old file: %w", err)
	}
	if err := os.Rename(tmp, filename); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// ReplaceFile replaces dst with src. Windows renames cannot overwrite, so
// an existing dst is moved aside first and restored if the swap fails.
func ReplaceFile(src, dst string) error {
	old := dst + ".old"
	hadDst := false
	if _, err := os.Stat(dst); err == nil {
		hadDst = true
		if err := os.Rename(dst, old); err != nil {
			return fmt.Errorf("moving aside %s: %w", filepath.Base(dst), err)
		}
	}
	if err := os.Rename(src, dst); err != nil {
		if hadDst {
			_ = os.Rename(old, dst)
		}
		return fmt.Errorf("replacing %s: %w", filepath.Base(dst), err)
	}
	if hadDst {
		_ = os.Remove(old)
	}
	return nil
}
