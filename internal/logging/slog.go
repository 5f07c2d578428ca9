// Package logging provides the processor's default structured logger.
package logging

import (
	"log/slog"
	"os"

	"github.com/arloliu/eventproc/internal/types"
)

// SlogLogger implements types.Logger using Go's standard log/slog package.
type SlogLogger struct {
	logger *slog.Logger
}

// Compile-time assertion that SlogLogger implements Logger.
var _ types.Logger = (*SlogLogger)(nil)

// NewSlog creates a new slog-based logger.
//
// Parameters:
//   - logger: The underlying slog.Logger instance to use
//
// Returns:
//   - *SlogLogger: A new logger instance that wraps the provided slog.Logger
func NewSlog(logger *slog.Logger) *SlogLogger {
	return &SlogLogger{logger: logger}
}

// NewSlogDefault creates a new slog-based logger with default settings.
//
// It wraps slog.Default(), which writes through the standard log package
// (stderr unless redirected) at Info level.
func NewSlogDefault() *SlogLogger {
	return &SlogLogger{logger: slog.Default()}
}

// Debug logs a debug-level message with optional key-value pairs.
func (l *SlogLogger) Debug(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

// Info logs an info-level message with optional key-value pairs.
func (l *SlogLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Info(msg, keysAndValues...)
}

// Warn logs a warning-level message with optional key-value pairs.
func (l *SlogLogger) Warn(msg string, keysAndValues ...any) {
	l.logger.Warn(msg, keysAndValues...)
}

// Error logs an error-level message with optional key-value pairs.
func (l *SlogLogger) Error(msg string, keysAndValues ...any) {
	l.logger.Error(msg, keysAndValues...)
}

// Fatal logs a fatal-level message with optional key-value pairs and exits.
//
// slog has no Fatal level; this logs at Error level and then calls os.Exit(1).
func (l *SlogLogger) Fatal(msg string, keysAndValues ...any) {
	l.logger.Error(msg, keysAndValues...)
	os.Exit(1) //nolint:revive // Fatal should exit the program
}

// nopLogger discards all log messages. Used as the default when no Logger
// option is supplied to NewProcessor.
type nopLogger struct{}

var _ types.Logger = nopLogger{}

// NewNop creates a logger that discards all messages.
func NewNop() types.Logger { return nopLogger{} }

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Fatal(string, ...any) {}
