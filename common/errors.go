// Package common provides shared constants, types, and utilities
// used across the tunnel core.
package common

import "errors"

// Sentinel errors for tunnel operations.
// These can be checked with errors.Is() for proper error handling.
var (
	// Route input errors.
	ErrInvalidPrefix = errors.New("invalid network prefix")

	// Platform tunnel errors.
	ErrPermissionDenied = errors.New("permission denied")
	ErrDevice           = errors.New("tunnel device error")

	// Engine errors.
	ErrBackendFailure = errors.New("backend failure")
	ErrEngineClosed   = errors.New("engine connection closed")
	ErrTimeout        = errors.New("operation timed out")

	// Lifecycle errors.
	ErrNotConnected = errors.New("no active connection")
	ErrCancelled    = errors.New("operation cancelled")
	ErrClosed       = errors.New("controller closed")

	// Configuration errors.
	ErrConfigLoad    = errors.New("failed to load configuration")
	ErrConfigSave    = errors.New("failed to save configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{
		msg: message,
		err: err,
	}
}

type wrappedError struct {
	msg string
	err error
}

func (e *wrappedError) Error() string {
	return e.msg + ": " + e.err.Error()
}

func (e *wrappedError) Unwrap() error {
	return e.err
}
