// Package common provides shared constants, types, and utilities
// used across the tunnel core.
package common

// Logger defines the interface for leveled logging.
// Messages are printf-style format strings.
type Logger interface {
	// Debug logs a debug message.
	Debug(msg string, args ...interface{})
	// Info logs an informational message.
	Info(msg string, args ...interface{})
	// Warn logs a warning message.
	Warn(msg string, args ...interface{})
	// Error logs an error message.
	Error(msg string, args ...interface{})
}

// WithComponent returns a Logger that prefixes every message with
// "component: ", e.g. "Tunnel: state Down -> Up".
func WithComponent(l Logger, component string) Logger {
	if l == nil {
		l = GetLogger()
	}
	return &componentLogger{base: l, prefix: component + ": "}
}

type componentLogger struct {
	base   Logger
	prefix string
}

func (c *componentLogger) Debug(msg string, args ...interface{}) { c.base.Debug(c.prefix+msg, args...) }
func (c *componentLogger) Info(msg string, args ...interface{})  { c.base.Info(c.prefix+msg, args...) }
func (c *componentLogger) Warn(msg string, args ...interface{})  { c.base.Warn(c.prefix+msg, args...) }
func (c *componentLogger) Error(msg string, args ...interface{}) { c.base.Error(c.prefix+msg, args...) }

// NopLogger discards everything. Useful in tests.
type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
