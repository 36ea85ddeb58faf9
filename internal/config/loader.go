package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		envPrefix: "LITEKEEPER",
	}
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "LITEKEEPER",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (LITEKEEPER_*)
// 3. Project config (.litekeeper.yaml in current directory)
// 4. User config (~/.config/litekeeper/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(".litekeeper")
		l.v.SetConfigType("yaml")

		// Project config takes precedence over user config
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "litekeeper"))
		}

		// The user-level file keeps the conventional config.yaml name,
		// which the name search above cannot see. Use it when no project
		// file is present.
		if !projectConfigPresent() {
			if user, err := UserConfigPath(); err == nil {
				if _, err := os.Stat(user); err == nil {
					l.v.SetConfigFile(user)
				}
			}
		}
	}

	// Read config file (ignore not found)
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// Tolerate keys written without underscores and keys from the old
	// flat layout before unmarshaling.
	if normalized := normalizeConfigMap(l.v.AllSettings()); normalized != nil {
		if err := l.v.MergeConfigMap(normalized); err != nil {
			return nil, fmt.Errorf("normalizing config keys: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values.
func (l *Loader) setDefaults() {
	// App defaults
	l.v.SetDefault("app.name", "LiteKeeper")

	// Database defaults
	l.v.SetDefault("database.filename", "app.db")
	l.v.SetDefault("database.preferred_path", "")
	l.v.SetDefault("database.extra_dirs", []string{})
	l.v.SetDefault("database.journal_mode", "wal")
	l.v.SetDefault("database.busy_timeout", "5s")
	l.v.SetDefault("database.foreign_keys", true)

	// Retry defaults per operation class
	l.v.SetDefault("retry.database.max_retries", 3)
	l.v.SetDefault("retry.database.base_delay", "500ms")
	l.v.SetDefault("retry.database.max_delay", "10s")
	l.v.SetDefault("retry.file.max_retries", 5)
	l.v.SetDefault("retry.file.base_delay", "1s")
	l.v.SetDefault("retry.file.max_delay", "30s")
	l.v.SetDefault("retry.network.max_retries", 3)
	l.v.SetDefault("retry.network.base_delay", "2s")
	l.v.SetDefault("retry.network.max_delay", "60s")

	// Integrity defaults
	l.v.SetDefault("integrity.expected_tables", []string{})
	l.v.SetDefault("integrity.canary_probe", false)

	// Backup defaults (30 days, keep at most 10)
	l.v.SetDefault("backup.dir", "")
	l.v.SetDefault("backup.max_count", 10)
	l.v.SetDefault("backup.max_age", "720h")

	// Fallback defaults
	l.v.SetDefault("fallback.allow_memory", true)

	// Health defaults
	l.v.SetDefault("health.interval", "30s")
	l.v.SetDefault("health.watch_file", true)

	// API defaults (loopback only)
	l.v.SetDefault("api.listen", "127.0.0.1:7070")
	l.v.SetDefault("api.allowed_origins", []string{})

	// Log defaults
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")
	l.v.SetDefault("log.file", "")
	l.v.SetDefault("log.redact_paths", false)
}

// projectConfigPresent reports whether the working directory carries a
// project configuration file under either yaml extension.
func projectConfigPresent() bool {
	for _, name := range []string{".litekeeper.yaml", ".litekeeper.yml"} {
		if fi, err := os.Stat(name); err == nil && !fi.IsDir() {
			return true
		}
	}
	return false
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Get returns a configuration value by key.
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// Set sets a configuration value.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// IsSet checks if a key has been set.
func (l *Loader) IsSet(key string) bool {
	return l.v.IsSet(key)
}

// AllSettings returns all settings as a map.
func (l *Loader) AllSettings() map[string]interface{} {
	return l.v.AllSettings()
}

// UnknownKeys returns keys present in the loaded configuration that do
// not correspond to any known setting, with a suggestion for the
// closest known key where one exists.
func (l *Loader) UnknownKeys() []UnknownKey {
	known := knownKeys()
	var unknown []UnknownKey
	for _, key := range l.v.AllKeys() {
		if _, ok := known[key]; ok {
			continue
		}
		// Keys that only lack underscores are accepted by the
		// normalization pass, so don't flag them.
		if _, ok := known[underscoreInsensitive(key, known)]; ok {
			continue
		}
		unknown = append(unknown, UnknownKey{
			Key:        key,
			Suggestion: SuggestKey(key, keyList(known)),
		})
	}
	return unknown
}

// UnknownKey describes a configuration key that was not recognized.
type UnknownKey struct {
	Key        string
	Suggestion string
}
