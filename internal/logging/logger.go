package logging

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// Logger wraps slog.Logger with path redaction support.
type Logger struct {
	*slog.Logger
	redactor *Redactor
}

// Config configures the logger.
type Config struct {
	Level       string
	Format      string // auto, text, json
	Output      io.Writer
	AddSource   bool
	RedactPaths bool
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Format:    "auto",
		Output:    os.Stderr,
		AddSource: false,
	}
}

// New creates a new logger.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	level := parseLevel(cfg.Level)
	redactor := NewRedactor()

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(cfg.Output, &slog.HandlerOptions{
			Level:     level,
			AddSource: cfg.AddSource,
		})
	case "text":
		handler = slog.NewTextHandler(cfg.Output, &slog.HandlerOptions{
			Level:     level,
			AddSource: cfg.AddSource,
		})
	default: // auto
		if isTerminal(cfg.Output) {
			handler = NewPrettyHandler(cfg.Output, level)
		} else {
			handler = slog.NewJSONHandler(cfg.Output, &slog.HandlerOptions{
				Level:     level,
				AddSource: cfg.AddSource,
			})
		}
	}

	// Redaction is opt-in: local logs keep real paths so resolver and
	// fallback decisions stay debuggable.
	if cfg.RedactPaths {
		handler = NewRedactingHandler(handler, redactor)
	}

	return &Logger{
		Logger:   slog.New(handler),
		redactor: redactor,
	}
}

// NewNop creates a no-op logger for testing.
func NewNop() *Logger {
	return &Logger{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		redactor: NewRedactor(),
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

// WithComponent returns a logger with component context.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger:   l.Logger.With("component", component),
		redactor: l.redactor,
	}
}

// WithPath returns a logger with database path context.
func (l *Logger) WithPath(path string) *Logger {
	return &Logger{
		Logger:   l.Logger.With("path", path),
		redactor: l.redactor,
	}
}

// WithOperation returns a logger with operation context.
func (l *Logger) WithOperation(operation string) *Logger {
	return &Logger{
		Logger:   l.Logger.With("operation", operation),
		redactor: l.redactor,
	}
}

// WithMigration returns a logger with migration context.
func (l *Logger) WithMigration(migrationID string) *Logger {
	return &Logger{
		Logger:   l.Logger.With("migration_id", migrationID),
		redactor: l.redactor,
	}
}

// With returns a logger with custom fields.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger:   l.Logger.With(args...),
		redactor: l.redactor,
	}
}

// Redactor returns the redactor used by this logger.
func (l *Logger) Redactor() *Redactor {
	return l.redactor
}

// Redact redacts a string using the logger's redactor.
func (l *Logger) Redact(input string) string {
	return l.redactor.Redact(input)
}
