// Package common provides shared constants, types, and utilities
// used across the tunnel core.
package common

import "time"

// Application metadata.
const (
	// AppName is the display name of the application.
	AppName = "Nym VPN Tunnel"
	// ConfigDirName is the name of the configuration directory.
	ConfigDirName = "nym-vpn-tunnel"
)

// File names used by the application.
const (
	SettingsFileName = "settings.yaml"
	LogFileName      = "nym-vpn-tunnel.log"
	SocketFileName   = "engine.sock"
)

// Default timeouts and intervals.
const (
	// StatisticsInterval is how often the connection timer advances while Up.
	StatisticsInterval = 1 * time.Second
	// AckTimeout bounds how long the CLI waits for the engine to acknowledge
	// a start or stop request.
	AckTimeout = 30 * time.Second
	// DialTimeout is the timeout for connecting to the engine socket.
	DialTimeout = 5 * time.Second
)

// Tunnel interface defaults.
const (
	DefaultInterfaceName = "nymtun0"
	DefaultMTU           = 1420
	MinMTU               = 576
	MaxMTU               = 9000
)
