package locate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/litekeeper/litekeeper/internal/core"
	"github.com/litekeeper/litekeeper/internal/logging"
)

// Resolver locates a usable database path from an ordered candidate list.
// Resolution never fails: when every candidate is rejected it falls back to
// a process-scoped file in the OS temp directory.
type Resolver struct {
	appName   string
	fileName  string
	extraDirs []string
	validator *AccessValidator
	logger    *logging.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the resolver logger.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger.WithComponent("resolver")
		}
	}
}

// WithValidator replaces the access validator.
func WithValidator(v *AccessValidator) Option {
	return func(r *Resolver) {
		if v != nil {
			r.validator = v
		}
	}
}

// WithExtraDirs appends configured directories to the candidate list. They
// are tried after the standard locations.
func WithExtraDirs(dirs ...string) Option {
	return func(r *Resolver) {
		r.extraDirs = append(r.extraDirs, dirs...)
	}
}

// NewResolver creates a resolver for the given application and database file
// name.
func NewResolver(appName, fileName string, opts ...Option) *Resolver {
	if appName == "" {
		appName = "LiteKeeper"
	}
	if fileName == "" {
		fileName = "app.db"
	}
	r := &Resolver{
		appName:   appName,
		fileName:  fileName,
		validator: NewAccessValidator(nil),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Candidates builds the ordered location list for the database file. The
// preferred path, when given, is always first; the temp-directory sentinel is
// never part of the list.
func (r *Resolver) Candidates(preferred string) []core.PathCandidate {
	var cands []core.PathCandidate

	if preferred != "" {
		cands = append(cands, core.PathCandidate{Path: preferred, Description: "configured preferred path"})
	}
	if cwd, err := os.Getwd(); err == nil {
		cands = append(cands, core.PathCandidate{Path: filepath.Join(cwd, r.fileName), Description: "current working directory"})
	}
	if home, err := os.UserHomeDir(); err == nil {
		cands = append(cands, core.PathCandidate{Path: filepath.Join(home, "Documents", r.appName, r.fileName), Description: "user documents folder"})
	}
	if dataDir := AppDataDir(r.appName); dataDir != "" {
		cands = append(cands, core.PathCandidate{Path: filepath.Join(dataDir, r.fileName), Description: "per-user application data"})
	}
	if home, err := os.UserHomeDir(); err == nil {
		cands = append(cands, core.PathCandidate{Path: filepath.Join(home, "."+dotName(r.appName), r.fileName), Description: "home dot-folder"})
	}
	if exe, err := os.Executable(); err == nil {
		cands = append(cands, core.PathCandidate{Path: filepath.Join(filepath.Dir(exe), r.fileName), Description: "install directory"})
	}
	for _, dir := range r.extraDirs {
		cands = append(cands, core.PathCandidate{Path: filepath.Join(dir, r.fileName), Description: "configured extra directory"})
	}
	return cands
}

// Resolve walks the candidate list and returns the first location with full
// read and write access, creating missing directories along the way. Failed
// candidates leave a warning on the result. When nothing works, or the
// context is cancelled mid-walk, the non-durable temp sentinel is returned.
func (r *Resolver) Resolve(ctx context.Context, preferred string) *core.PathResolutionResult {
	candidates := r.Candidates(preferred)
	r.logger.Info("resolving database path", "preferred", preferred, "candidates", len(candidates))

	var warnings []string
	for level, cand := range candidates {
		if ctx.Err() != nil {
			warnings = append(warnings, "path resolution cancelled before all candidates were tried")
			break
		}

		log := r.logger.WithPath(cand.Path)
		log.Debug("trying candidate", "level", level, "description", cand.Description)

		if !r.accessible(cand.Path) {
			warnings = append(warnings, fmt.Sprintf("%s (%s): not accessible", cand.Path, cand.Description))
			log.Debug("candidate not accessible")
			continue
		}

		dir := filepath.Dir(cand.Path)
		creationRequired := !exists(dir)
		if creationRequired {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				warnings = append(warnings, fmt.Sprintf("%s (%s): creating directory: %v", cand.Path, cand.Description, err))
				log.Warn("creating candidate directory failed", "error", err)
				continue
			}
			log.Debug("created candidate directory", "dir", dir)
		}

		perm := r.validator.CheckDirectory(dir)
		if perm.Level != core.AccessFull {
			warnings = append(warnings, fmt.Sprintf("%s (%s): %s", cand.Path, cand.Description, permSummary(perm)))
			log.Debug("candidate rejected", "access", string(perm.Level))
			continue
		}

		log.Info("database path resolved", "level", level, "primary", level == 0, "created", creationRequired)
		return &core.PathResolutionResult{
			ResolvedPath:     cand.Path,
			IsPrimary:        level == 0,
			FallbackLevel:    level,
			Permission:       perm,
			CreationRequired: creationRequired,
			Warnings:         warnings,
		}
	}

	return r.tempSentinel(warnings)
}

// accessible is the cheap pre-check before any directory is created: the
// candidate's directory must be writable (or, when missing, its parent must
// be), and the file itself must be writable when it already exists.
func (r *Resolver) accessible(path string) bool {
	dir := filepath.Dir(path)
	if !exists(dir) {
		parent := filepath.Dir(dir)
		if !exists(parent) || !canWrite(parent) {
			return false
		}
	} else if !canWrite(dir) {
		return false
	}
	if exists(path) && !canWrite(path) {
		return false
	}
	return true
}

// tempSentinel synthesizes the absolute last resort: a process-scoped file in
// the OS temp directory. It is assumed writable; if even that assumption
// fails the coordinator finds out at connect time.
func (r *Resolver) tempSentinel(warnings []string) *core.PathResolutionResult {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("%s_temp_%d.db", dotName(r.appName), os.Getpid()))
	r.logger.Warn("all candidates failed, using temp directory sentinel", "path", path)

	warnings = append(warnings, "using temporary directory: the database will not survive cleanup or reboot")
	return &core.PathResolutionResult{
		ResolvedPath:  path,
		IsPrimary:     false,
		FallbackLevel: core.TempFallbackLevel,
		Permission: core.PermissionResult{
			CanRead:   true,
			CanWrite:  true,
			CanCreate: true,
			Level:     core.AccessFull,
		},
		Warnings: warnings,
	}
}

func dotName(appName string) string {
	return strings.ToLower(strings.ReplaceAll(appName, " ", ""))
}

func permSummary(p core.PermissionResult) string {
	if p.ErrorMessage != "" {
		return p.ErrorMessage
	}
	return string(p.Level)
}
