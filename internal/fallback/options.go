package fallback

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/litekeeper/litekeeper/internal/core"
)

// Option describes one recovery tier without executing it, labeled so a
// UI can present the choice before anything is auto-selected.
type Option struct {
	Type        core.FallbackType `json:"type"`
	Label       string            `json:"label"`
	Description string            `json:"description"`
	Risk        string            `json:"risk"`
	DataLoss    string            `json:"data_loss"`
	Available   bool              `json:"available"`
	Detail      string            `json:"detail,omitempty"`
}

// AvailableOptions previews the recovery tiers in the order Run would try
// them. Availability is judged from cheap checks only; nothing is
// created, restored, or opened.
func (c *Coordinator) AvailableOptions(ctx context.Context) []Option {
	backup := Option{
		Type:        core.FallbackBackupRestore,
		Label:       "Restore newest backup",
		Description: "Copy the most recent backup over the damaged database file.",
		Risk:        "low",
		DataLoss:    "changes made after the backup was taken are lost",
	}
	if info, ok, err := c.store.Latest(); err != nil {
		backup.Detail = fmt.Sprintf("listing backups: %v", err)
	} else if !ok {
		backup.Detail = "no backups available"
	} else {
		backup.Available = true
		backup.Detail = fmt.Sprintf("newest backup %s from %s",
			filepath.Base(info.Path), info.CreatedAt.Format("2006-01-02 15:04"))
	}

	alternative := Option{
		Type:        core.FallbackAlternativeLocation,
		Label:       "Create database at an alternative location",
		Description: "Start a fresh database at the first writable well-known location.",
		Risk:        "medium",
		DataLoss:    "no data is carried over; the original file is left in place",
	}
	if dir, ok := c.firstWritableDir(ctx); ok {
		alternative.Available = true
		alternative.Detail = fmt.Sprintf("would use %s", dir)
	} else {
		alternative.Detail = "no writable location found"
	}

	clean := Option{
		Type:        core.FallbackCleanDatabase,
		Label:       "Start with a clean database",
		Description: "Replace the database with a brand-new seeded one.",
		Risk:        "high",
		DataLoss:    "all existing data",
	}
	dir := filepath.Dir(c.primaryPath)
	if perm := c.access.CheckDirectory(dir); perm.CanWrite || perm.CanCreate {
		clean.Available = true
		clean.Detail = fmt.Sprintf("would create a new file in %s", dir)
	} else {
		clean.Detail = fmt.Sprintf("%s is not writable", dir)
	}

	memory := Option{
		Type:        core.FallbackMemoryDatabase,
		Label:       "Run in memory only",
		Description: "Keep working in a database that exists only for this session.",
		Risk:        "high",
		DataLoss:    "all work is lost when the application exits",
		Available:   c.allowMemory,
	}
	if !c.allowMemory {
		memory.Detail = "disabled by configuration"
	}

	return []Option{backup, alternative, clean, memory}
}

// firstWritableDir finds the first candidate the alternative tier could
// use, judged by effective permissions alone.
func (c *Coordinator) firstWritableDir(ctx context.Context) (string, bool) {
	candidates := c.candidates
	if len(candidates) == 0 {
		candidates = c.alternativeDirs()
	}
	for _, dir := range candidates {
		if ctx.Err() != nil {
			break
		}
		if dir == "" {
			continue
		}
		if perm := c.access.CheckDirectory(dir); perm.CanWrite || perm.CanCreate {
			return dir, true
		}
	}
	return "", false
}
