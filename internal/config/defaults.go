package config

// DefaultConfigYAML contains the default configuration YAML content.
// This is used by `litekeeper init` so generated files stay consistent
// with the loader defaults.
const DefaultConfigYAML = `# LiteKeeper configuration
#
# Values not specified here use sensible defaults.

# Host application identity. The name is used to derive per-user
# storage locations such as ~/Documents/<name>.
app:
  name: LiteKeeper

database:
  # Bare filename of the database, resolved against candidate
  # directories in order.
  filename: app.db
  # Explicit path to try first. Leave empty to use the standard
  # candidate order.
  preferred_path: ""
  # Additional candidate directories, tried after the standard ones.
  extra_dirs: []
  journal_mode: wal
  busy_timeout: 5s
  foreign_keys: true

# Retry policies per operation class.
retry:
  database:
    max_retries: 3
    base_delay: 500ms
    max_delay: 10s
  file:
    max_retries: 5
    base_delay: 1s
    max_delay: 30s
  network:
    max_retries: 3
    base_delay: 2s
    max_delay: 60s

integrity:
  # Tables that must exist for the schema to be considered complete.
  # Empty means only the built-in bookkeeping tables are required.
  expected_tables: []
  # Write a throwaway row inside a rolled-back transaction during
  # checks. Off by default because it touches the file.
  canary_probe: false

backup:
  # Empty means "backups" next to the database file.
  dir: ""
  max_count: 10
  max_age: 720h

fallback:
  # Allow the in-memory last resort when no durable location works.
  allow_memory: true

health:
  interval: 30s
  # Re-check immediately when the database file changes on disk.
  watch_file: true

# Local status API for 'litekeeper serve'. Loopback only by default.
api:
  listen: 127.0.0.1:7070
  allowed_origins: []

log:
  level: info
  format: auto
  # Strip usernames from paths in log output.
  redact_paths: false
`
