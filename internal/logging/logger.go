// Package logging is the zerolog setup shared by every mirror subsystem.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/soyeahso/mirror/internal/config"
)

// Logger is a zerolog logger scoped to a subsystem.
type Logger struct {
	zl zerolog.Logger
}

// New creates a root logger writing to w at level. A nil w means pretty
// console output on stderr.
func New(w io.Writer, level string) *Logger {
	if w == nil {
		w = consoleWriter()
	}
	zl := zerolog.New(w).With().Timestamp().Logger().Level(parseLevel(level))
	return &Logger{zl: zl}
}

// NewFromConfig builds the root logger from the logging config section.
// When cfg.File is set, JSON lines are appended to it alongside console
// output. The returned closer releases the log file and is never nil.
func NewFromConfig(cfg config.LoggingConfig) (*Logger, io.Closer, error) {
	var console io.Writer = consoleWriter()
	if cfg.ConsoleStyle == "json" {
		console = os.Stderr
	}
	if cfg.File == "" {
		return New(console, cfg.Level), nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o700); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return New(zerolog.MultiLevelWriter(console, f), cfg.Level), f, nil
}

func consoleWriter() zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Sub returns a child logger tagged with a subsystem name.
func (l *Logger) Sub(subsystem string) *Logger {
	return l.With("subsystem", subsystem)
}

// With returns a child logger carrying an extra string field on every event.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{zl: l.zl.With().Str(key, value).Logger()}
}

// Enabled reports whether events at level would be written.
func (l *Logger) Enabled(level string) bool {
	lv := parseLevel(level)
	return lv != zerolog.Disabled && lv >= l.zl.GetLevel()
}

func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.zl.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }

// parseLevel maps config level names onto zerolog. "silent" disables
// output; anything unrecognized falls back to info.
func parseLevel(s string) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "silent" {
		return zerolog.Disabled
	}
	if s == "" {
		return zerolog.InfoLevel
	}
	lv, err := zerolog.ParseLevel(s)
	if err != nil || lv == zerolog.NoLevel || lv == zerolog.PanicLevel {
		return zerolog.InfoLevel
	}
	return lv
}
