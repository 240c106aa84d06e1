// Package logging builds the process logger. The level is held in a LevelVar
// so a settings reload can change verbosity without rebuilding handlers.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects level and output format.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text
	Output io.Writer
}

// Logger wraps slog and owns the adjustable level.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// New creates the root logger.
func New(cfg Config) *Logger {
	level := new(slog.LevelVar)
	level.Set(ParseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}
	return &Logger{Logger: slog.New(handler), level: level}
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrNop returns l, or a discarding logger when l is nil.
func OrNop(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Nop()
	}
	return l
}

// SetLevel changes the level of every logger derived from l.
func (l *Logger) SetLevel(name string) {
	l.level.Set(ParseLevel(name))
}

// Level reports the current level.
func (l *Logger) Level() slog.Level {
	return l.level.Level()
}

// Component returns a child logger tagged with a component name.
func (l *Logger) Component(name string) *slog.Logger {
	return l.With("component", name)
}

// ParseLevel maps the settings file spelling (INFO, warning, ...) to a slog level.
// Unknown names fall back to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "critical":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
