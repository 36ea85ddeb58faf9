//go:build !windows

package locate

import (
	"os"
	"path/filepath"
)

// AppDataDir returns the per-user data directory for the given application
// name, honoring XDG_DATA_HOME.
func AppDataDir(appName string) string {
	if base := os.Getenv("XDG_DATA_HOME"); base != "" {
		return filepath.Join(base, dotName(appName))
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", dotName(appName))
}
