// Package logger provides the structured logger used across logwatch.
//
// Components depend on the Logger interface and receive an implementation
// through their constructors. The default implementation is backed by
// log/slog and writes either text or JSON records.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// LogLevel is a textual log level as it appears in configuration.
type LogLevel string

// Supported log levels.
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Supported output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Logger is the structured logging interface used by all packages.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	// With returns a child logger that adds fields to every record.
	With(fields ...Field) Logger
}

// ParseLevel converts a configuration string into a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch LogLevel(strings.ToLower(strings.TrimSpace(s))) {
	case LogLevelDebug:
		return LogLevelDebug, nil
	case LogLevelInfo, "":
		return LogLevelInfo, nil
	case LogLevelWarn, "warning":
		return LogLevelWarn, nil
	case LogLevelError:
		return LogLevelError, nil
	default:
		return "", fmt.Errorf("unknown log level %q", s)
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SlogLogger implements Logger on top of a slog.Logger.
type SlogLogger struct {
	inner *slog.Logger
}

// NewSlogLogger creates a text logger writing to w at the given level.
// Timestamps are rendered in tz; a nil tz means UTC.
func NewSlogLogger(w io.Writer, level LogLevel, tz *time.Location) *SlogLogger {
	return NewSlogLoggerWithFormat(w, level, FormatText, tz)
}

// NewSlogLoggerWithFormat creates a logger with an explicit output format
// (FormatText or FormatJSON).
func NewSlogLoggerWithFormat(w io.Writer, level LogLevel, format string, tz *time.Location) *SlogLogger {
	if tz == nil {
		tz = time.UTC
	}
	opts := &slog.HandlerOptions{
		Level: level.slogLevel(),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
				a.Value = slog.TimeValue(a.Value.Time().In(tz))
			}
			return a
		},
	}

	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return &SlogLogger{inner: slog.New(handler)}
}

func (l *SlogLogger) log(level slog.Level, msg string, fields []Field) {
	l.inner.LogAttrs(context.Background(), level, msg, toAttrs(fields)...)
}

// Debug logs at debug level.
func (l *SlogLogger) Debug(msg string, fields ...Field) { l.log(slog.LevelDebug, msg, fields) }

// Info logs at info level.
func (l *SlogLogger) Info(msg string, fields ...Field) { l.log(slog.LevelInfo, msg, fields) }

// Warn logs at warn level.
func (l *SlogLogger) Warn(msg string, fields ...Field) { l.log(slog.LevelWarn, msg, fields) }

// Error logs at error level.
func (l *SlogLogger) Error(msg string, fields ...Field) { l.log(slog.LevelError, msg, fields) }

// With returns a child logger carrying fields.
func (l *SlogLogger) With(fields ...Field) Logger {
	args := make([]any, 0, len(fields))
	for _, a := range toAttrs(fields) {
		args = append(args, a)
	}
	return &SlogLogger{inner: l.inner.With(args...)}
}

// Discard returns a logger that drops everything. Handy for tests.
func Discard() Logger {
	return NewSlogLogger(io.Discard, LogLevelError, nil)
}
