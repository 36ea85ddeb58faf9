package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/litekeeper/litekeeper/internal/clip"
	"github.com/litekeeper/litekeeper/internal/config"
	"github.com/litekeeper/litekeeper/internal/core"
	"github.com/litekeeper/litekeeper/internal/diagnostics"
	"github.com/litekeeper/litekeeper/internal/events"
	"github.com/litekeeper/litekeeper/internal/fallback"
	"github.com/litekeeper/litekeeper/internal/integrity"
	"github.com/litekeeper/litekeeper/internal/locate"
	"github.com/litekeeper/litekeeper/internal/logging"
	"github.com/litekeeper/litekeeper/internal/migrate"
	"github.com/litekeeper/litekeeper/internal/notify"
	"github.com/litekeeper/litekeeper/internal/retry"
	"github.com/litekeeper/litekeeper/internal/storage"
)

// appEnv bundles what nearly every command needs once configuration is
// loaded.
type appEnv struct {
	cfg    *config.Config
	logger *logging.Logger
}

// newLoader builds the configuration loader, honoring --config.
func newLoader() *config.Loader {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	return loader
}

// loadEnv loads and validates configuration and builds the logger the
// rest of the command uses.
func loadEnv() (*appEnv, error) {
	cfg, err := newLoader().Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return &appEnv{cfg: cfg, logger: newLogger(cfg)}, nil
}

// newLogger builds the command logger. Logs go to stderr so stdout stays
// parseable; a configured log file takes precedence.
func newLogger(cfg *config.Config) *logging.Logger {
	var out io.Writer = os.Stderr
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: cannot open log file %s: %v\n", cfg.Log.File, err)
		} else {
			out = f
		}
	}

	level := cfg.Log.Level
	if quiet {
		level = "warn"
	}
	format := cfg.Log.Format
	if noColor && (format == "" || format == "auto") {
		format = "text"
	}

	return logging.New(logging.Config{
		Level:       level,
		Format:      format,
		Output:      out,
		RedactPaths: cfg.Log.RedactPaths,
	})
}

// parseDurationDefault parses a duration string, falling back when the
// value is empty or malformed.
func parseDurationDefault(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// openOptionsFromConfig translates the configured pragmas into open
// options.
func openOptionsFromConfig(cfg *config.Config) storage.OpenOptions {
	opts := storage.DefaultOpenOptions()
	if cfg.Database.JournalMode != "" {
		opts.JournalMode = strings.ToUpper(cfg.Database.JournalMode)
	}
	opts.BusyTimeout = parseDurationDefault(cfg.Database.BusyTimeout, opts.BusyTimeout)
	opts.ForeignKeys = cfg.Database.ForeignKeys
	return opts
}

// retryOptions translates one retry policy section into executor options.
func retryOptions(pc config.RetryPolicyConfig, logger *logging.Logger) []retry.Option {
	opts := []retry.Option{
		retry.WithLogger(logger),
		retry.WithInspector(diagnostics.NewInspector()),
		retry.WithMaxRetries(pc.MaxRetries),
	}
	if d := parseDurationDefault(pc.BaseDelay, 0); d > 0 {
		opts = append(opts, retry.WithBaseDelay(d))
	}
	if d := parseDurationDefault(pc.MaxDelay, 0); d > 0 {
		opts = append(opts, retry.WithMaxDelay(d))
	}
	return opts
}

// databaseExecutor builds the retry executor for database opens. Network
// shares get the slower network policy.
func databaseExecutor(env *appEnv, path string) *retry.Executor {
	if diagnostics.IsNetworkPath(path) {
		opts := append(retryOptions(env.cfg.Retry.Network, env.logger), retry.WithDatabasePath(path))
		return retry.NewNetworkExecutor(opts...)
	}
	opts := append(retryOptions(env.cfg.Retry.Database, env.logger), retry.WithDatabasePath(path))
	return retry.NewDatabaseExecutor(opts...)
}

func fileExecutor(env *appEnv) *retry.Executor {
	return retry.NewFileExecutor(retryOptions(env.cfg.Retry.File, env.logger)...)
}

func newResolver(env *appEnv) *locate.Resolver {
	return locate.NewResolver(env.cfg.App.Name, env.cfg.Database.Filename,
		locate.WithLogger(env.logger),
		locate.WithExtraDirs(env.cfg.Database.ExtraDirs...))
}

// resolvedPath resolves the database location without opening anything.
func resolvedPath(ctx context.Context, env *appEnv) string {
	return newResolver(env).Resolve(ctx, env.cfg.Database.PreferredPath).ResolvedPath
}

func newBackupStore(cfg *config.Config, logger *logging.Logger, dbPath string) *storage.Store {
	opts := []storage.StoreOption{storage.WithStoreLogger(logger)}
	if cfg.Backup.Dir != "" {
		opts = append(opts, storage.WithBackupDir(cfg.Backup.Dir))
	}
	if cfg.Backup.MaxCount > 0 {
		opts = append(opts, storage.WithMaxCount(cfg.Backup.MaxCount))
	}
	if d := parseDurationDefault(cfg.Backup.MaxAge, 0); d > 0 {
		opts = append(opts, storage.WithMaxAge(d))
	}
	return storage.NewStore(dbPath, opts...)
}

func newChecker(env *appEnv, path string, store *storage.Store, bus *events.EventBus) *integrity.Checker {
	opts := []integrity.CheckerOption{
		integrity.WithBackupStore(store),
		integrity.WithOpenOptions(openOptionsFromConfig(env.cfg)),
		integrity.WithCanaryProbe(env.cfg.Integrity.CanaryProbe),
		integrity.WithLogger(env.logger),
	}
	if len(env.cfg.Integrity.ExpectedTables) > 0 {
		opts = append(opts, integrity.WithExpectedTables(env.cfg.Integrity.ExpectedTables))
	}
	if bus != nil {
		opts = append(opts, integrity.WithEventBus(bus))
	}
	return integrity.NewChecker(path, opts...)
}

// newMigrationManager wires the migration manager with per-class retry
// executors.
func newMigrationManager(env *appEnv, bus *events.EventBus, sourcePath string) *migrate.Manager {
	opts := []migrate.ManagerOption{
		migrate.WithFileExecutor(fileExecutor(env)),
		migrate.WithDatabaseExecutor(databaseExecutor(env, sourcePath)),
		migrate.WithLogger(env.logger),
	}
	if bus != nil {
		opts = append(opts, migrate.WithEventBus(bus))
	}
	return migrate.NewManager(opts...)
}

// storageStack is the fully wired storage layer, bound to one resolved
// database path.
type storageStack struct {
	env        *appEnv
	bus        *events.EventBus
	resolution *core.PathResolutionResult
	path       string
	store      *storage.Store
	checker    *integrity.Checker
	recovery   *fallback.Coordinator
	coord      *storage.Coordinator
}

// buildStack resolves the database path once and wires every component
// to it: backup store, integrity checker, recovery coordinator and the
// storage coordinator itself. Extra options are applied last so callers
// can override the defaults.
func buildStack(ctx context.Context, env *appEnv, extra ...storage.CoordinatorOption) *storageStack {
	cfg := env.cfg
	bus := events.New(256)

	resolver := newResolver(env)
	res := resolver.Resolve(ctx, cfg.Database.PreferredPath)
	path := res.ResolvedPath

	pragmas := openOptionsFromConfig(cfg)
	store := newBackupStore(cfg, env.logger, path)
	checker := newChecker(env, path, store, bus)

	recovery := fallback.NewCoordinator(path,
		fallback.WithBackupStore(store),
		fallback.WithVerifier(checker),
		fallback.WithOpenOptions(pragmas),
		fallback.WithAppName(cfg.App.Name),
		fallback.WithCandidateDirs(cfg.Database.ExtraDirs...),
		fallback.WithAllowMemory(cfg.Fallback.AllowMemory),
		fallback.WithLogger(env.logger),
	)

	opts := []storage.CoordinatorOption{
		storage.WithResolver(resolver),
		storage.WithPreferredPath(path),
		storage.WithAccessValidator(locate.NewAccessValidator(env.logger)),
		storage.WithIntegrityVerifier(checker),
		storage.WithFallbackHandler(recovery),
		storage.WithRetryExecutor(databaseExecutor(env, path)),
		storage.WithEventBus(bus),
		storage.WithNotifier(notify.NewLogNotifier(env.logger)),
		storage.WithLogger(env.logger),
		storage.WithOpenOptions(pragmas),
		storage.WithHealthInterval(parseDurationDefault(cfg.Health.Interval, 30*time.Second)),
		storage.WithFileWatch(cfg.Health.WatchFile),
	}
	opts = append(opts, extra...)

	return &storageStack{
		env:        env,
		bus:        bus,
		resolution: res,
		path:       path,
		store:      store,
		checker:    checker,
		recovery:   recovery,
		coord:      storage.NewCoordinator(opts...),
	}
}

// Close releases the coordinator and the event bus.
func (s *storageStack) Close() {
	if err := s.coord.Close(); err != nil {
		s.env.logger.Warn("closing storage", "error", err)
	}
	s.bus.Close()
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}

// outputJSON writes v to stdout as indented JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// copyToClipboard puts v on the clipboard as indented JSON, falling back
// to OSC 52 or a temp file when no native clipboard exists.
func copyToClipboard(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding for clipboard: %w", err)
	}
	res, err := clip.WriteAll(string(data))
	if err != nil {
		return fmt.Errorf("copying to clipboard: %w", err)
	}
	if !quiet {
		fmt.Println(clip.Describe(res))
	}
	return nil
}

// formatBytes renders a byte count in binary units.
func formatBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
