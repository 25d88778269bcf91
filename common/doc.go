// Package common provides shared constants, errors, interfaces and logging
// used throughout the tunnel core.
//
// This package serves as the foundation for cross-cutting concerns:
//
//   - Constants: intervals, timeouts, file names and interface defaults
//   - Errors: sentinel errors checked with errors.Is across packages
//   - Interfaces: the Logger abstraction injected into components
//   - Logger: leveled logging with optional rotated file output
//   - Utils: configuration and runtime directory helpers
//
// # Usage
//
//	// Use the default logger
//	common.LogInfo("Starting tunnel %s", name)
//
//	// Check errors
//	if errors.Is(err, common.ErrPermissionDenied) {
//	    // ask the user to grant CAP_NET_ADMIN
//	}
package common
