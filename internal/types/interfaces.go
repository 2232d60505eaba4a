package types

import (
	"log/slog"
	"time"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// Logger defines the structured logging interface used throughout the
// engine. Production code wraps *slog.Logger via NewSlogLogger; tests use
// lightweight no-op implementations.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}

// slogLogger adapts *slog.Logger to the Logger interface. slog satisfies
// Info/Error/Warn directly, but its With returns *slog.Logger, so an adapter
// is necessary.
type slogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps a *slog.Logger as a Logger. A nil argument falls back
// to slog.Default().
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return &slogLogger{logger: l}
}

func (a *slogLogger) Debug(msg string, args ...any) { a.logger.Debug(msg, args...) }
func (a *slogLogger) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogLogger) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogLogger) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogLogger) With(args ...any) Logger {
	return &slogLogger{logger: a.logger.With(args...)}
}

// NopLogger returns a Logger that discards everything. Useful as a default
// in constructors and in tests that don't assert on logs.
func NopLogger() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any) {}
func (nopLogger) Info(msg string, args ...any)  {}
func (nopLogger) Error(msg string, args ...any) {}
func (nopLogger) Warn(msg string, args ...any)  {}
func (nopLogger) With(args ...any) Logger       { return nopLogger{} }
