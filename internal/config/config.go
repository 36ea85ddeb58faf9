package config

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Integrity IntegrityConfig `mapstructure:"integrity"`
	Backup    BackupConfig    `mapstructure:"backup"`
	Fallback  FallbackConfig  `mapstructure:"fallback"`
	Health    HealthConfig    `mapstructure:"health"`
	API       APIConfig       `mapstructure:"api"`
	Log       LogConfig       `mapstructure:"log"`
}

// AppConfig identifies the host application the database belongs to.
// The name is used to derive per-user storage locations such as
// ~/Documents/<name> and the platform application-data directory.
type AppConfig struct {
	Name string `mapstructure:"name"`
}

// DatabaseConfig configures the database file and connection pragmas.
type DatabaseConfig struct {
	Filename      string   `mapstructure:"filename"`
	PreferredPath string   `mapstructure:"preferred_path"`
	ExtraDirs     []string `mapstructure:"extra_dirs"`
	JournalMode   string   `mapstructure:"journal_mode"`
	BusyTimeout   string   `mapstructure:"busy_timeout"`
	ForeignKeys   bool     `mapstructure:"foreign_keys"`
}

// RetryConfig configures retry policies per operation class.
type RetryConfig struct {
	Database RetryPolicyConfig `mapstructure:"database"`
	File     RetryPolicyConfig `mapstructure:"file"`
	Network  RetryPolicyConfig `mapstructure:"network"`
}

// RetryPolicyConfig configures a single retry policy.
type RetryPolicyConfig struct {
	MaxRetries int    `mapstructure:"max_retries"`
	BaseDelay  string `mapstructure:"base_delay"`
	MaxDelay   string `mapstructure:"max_delay"`
}

// IntegrityConfig configures integrity checking.
type IntegrityConfig struct {
	ExpectedTables []string `mapstructure:"expected_tables"`
	CanaryProbe    bool     `mapstructure:"canary_probe"`
}

// BackupConfig configures backup creation and retention.
// An empty Dir places backups in a "backups" directory next to the
// database file.
type BackupConfig struct {
	Dir      string `mapstructure:"dir"`
	MaxCount int    `mapstructure:"max_count"`
	MaxAge   string `mapstructure:"max_age"`
}

// FallbackConfig configures degraded-mode behavior.
type FallbackConfig struct {
	AllowMemory bool `mapstructure:"allow_memory"`
}

// HealthConfig configures the periodic health check loop.
type HealthConfig struct {
	Interval  string `mapstructure:"interval"`
	WatchFile bool   `mapstructure:"watch_file"`
}

// APIConfig configures the local status API.
type APIConfig struct {
	Listen         string   `mapstructure:"listen"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	File        string `mapstructure:"file"`
	RedactPaths bool   `mapstructure:"redact_paths"`
}
