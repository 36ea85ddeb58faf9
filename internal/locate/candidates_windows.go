//go:build windows

package locate

import (
	"os"
	"path/filepath"
)

// AppDataDir returns the per-user local application data folder for the
// given application name.
func AppDataDir(appName string) string {
	base := os.Getenv("LOCALAPPDATA")
	if base == "" {
		return ""
	}
	return filepath.Join(base, appName)
}
