package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateApp(&cfg.App)
	v.validateDatabase(&cfg.Database)
	v.validateRetry(&cfg.Retry)
	v.validateIntegrity(&cfg.Integrity)
	v.validateBackup(&cfg.Backup)
	v.validateHealth(&cfg.Health)
	v.validateAPI(&cfg.API)
	v.validateLog(&cfg.Log)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) validateApp(cfg *AppConfig) {
	if strings.TrimSpace(cfg.Name) == "" {
		v.addError("app.name", cfg.Name, "application name required")
	}
}

func (v *Validator) validateDatabase(cfg *DatabaseConfig) {
	if cfg.Filename == "" {
		v.addError("database.filename", cfg.Filename, "filename required")
	} else if strings.ContainsAny(cfg.Filename, `/\`) {
		v.addError("database.filename", cfg.Filename, "must be a bare filename, not a path")
	}

	validJournalModes := map[string]bool{
		"wal": true, "delete": true, "truncate": true,
		"persist": true, "memory": true, "off": true,
	}
	if !validJournalModes[strings.ToLower(cfg.JournalMode)] {
		v.addError("database.journal_mode", cfg.JournalMode, "must be one of: wal, delete, truncate, persist, memory, off")
	}

	if _, err := time.ParseDuration(cfg.BusyTimeout); err != nil {
		v.addError("database.busy_timeout", cfg.BusyTimeout, "invalid duration format")
	}

	if cfg.PreferredPath != "" && !isValidPath(cfg.PreferredPath) {
		v.addError("database.preferred_path", cfg.PreferredPath, "invalid file path")
	}

	for _, dir := range cfg.ExtraDirs {
		if strings.TrimSpace(dir) == "" {
			v.addError("database.extra_dirs", dir, "directory cannot be empty")
		}
	}
}

func (v *Validator) validateRetry(cfg *RetryConfig) {
	v.validateRetryPolicy("retry.database", &cfg.Database)
	v.validateRetryPolicy("retry.file", &cfg.File)
	v.validateRetryPolicy("retry.network", &cfg.Network)
}

func (v *Validator) validateRetryPolicy(prefix string, cfg *RetryPolicyConfig) {
	if cfg.MaxRetries < 0 || cfg.MaxRetries > 10 {
		v.addError(prefix+".max_retries", cfg.MaxRetries, "must be between 0 and 10")
	}

	base, baseErr := time.ParseDuration(cfg.BaseDelay)
	if baseErr != nil {
		v.addError(prefix+".base_delay", cfg.BaseDelay, "invalid duration format")
	} else if base <= 0 {
		v.addError(prefix+".base_delay", cfg.BaseDelay, "must be positive")
	}

	max, maxErr := time.ParseDuration(cfg.MaxDelay)
	if maxErr != nil {
		v.addError(prefix+".max_delay", cfg.MaxDelay, "invalid duration format")
	} else if baseErr == nil && max < base {
		v.addError(prefix+".max_delay", cfg.MaxDelay, "must be >= base_delay")
	}
}

func (v *Validator) validateIntegrity(cfg *IntegrityConfig) {
	for _, table := range cfg.ExpectedTables {
		if strings.TrimSpace(table) == "" {
			v.addError("integrity.expected_tables", table, "table name cannot be empty")
		}
	}
}

func (v *Validator) validateBackup(cfg *BackupConfig) {
	if cfg.Dir != "" && !isValidPath(cfg.Dir) {
		v.addError("backup.dir", cfg.Dir, "invalid directory path")
	}

	if cfg.MaxCount <= 0 {
		v.addError("backup.max_count", cfg.MaxCount, "must be positive")
	}

	if _, err := time.ParseDuration(cfg.MaxAge); err != nil {
		v.addError("backup.max_age", cfg.MaxAge, "invalid duration format")
	}
}

func (v *Validator) validateHealth(cfg *HealthConfig) {
	interval, err := time.ParseDuration(cfg.Interval)
	if err != nil {
		v.addError("health.interval", cfg.Interval, "invalid duration format")
	} else if interval < time.Second {
		v.addError("health.interval", cfg.Interval, "must be at least 1s")
	}
}

func (v *Validator) validateAPI(cfg *APIConfig) {
	if cfg.Listen == "" {
		v.addError("api.listen", cfg.Listen, "listen address required")
	} else if _, _, err := net.SplitHostPort(cfg.Listen); err != nil {
		v.addError("api.listen", cfg.Listen, "must be host:port")
	}

	for _, origin := range cfg.AllowedOrigins {
		if strings.TrimSpace(origin) == "" {
			v.addError("api.allowed_origins", origin, "origin cannot be empty")
		}
	}
}

func (v *Validator) validateLog(cfg *LogConfig) {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Level] {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"auto": true, "text": true, "json": true,
	}
	if !validFormats[cfg.Format] {
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}

	if cfg.File != "" && !isValidPath(cfg.File) {
		v.addError("log.file", cfg.File, "invalid file path")
	}
}

func isValidPath(path string) bool {
	dir := filepath.Dir(path)
	_, err := os.Stat(dir)
	return err == nil || os.IsNotExist(err)
}

// SuggestKey returns the closest known configuration key for an
// unknown one, or "" when nothing is close enough.
func SuggestKey(key string, known []string) string {
	matches := fuzzy.Find(key, known)
	if len(matches) == 0 {
		return ""
	}
	return matches[0].Str
}

// ValidateConfig is a convenience function that creates a validator and validates config.
func ValidateConfig(cfg *Config) error {
	v := NewValidator()
	return v.Validate(cfg)
}
