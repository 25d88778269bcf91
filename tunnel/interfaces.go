package tunnel

import (
	"context"
	"net/netip"
)

// Handle is a platform tunnel interface created by a TunnelFactory. The
// Controller owns it exclusively and destroys it exactly once.
type Handle interface {
	// ID uniquely identifies this handle instance.
	ID() string
	// Name is the OS interface name, e.g. "nymtun0".
	Name() string
}

// TunnelFactory builds and tears down the platform tunnel interface.
type TunnelFactory interface {
	// Create builds an interface with cfg.Routes installed. Errors wrap
	// common.ErrPermissionDenied or common.ErrDevice.
	Create(ctx context.Context, cfg InterfaceConfig) (Handle, error)
	// Destroy releases the interface.
	Destroy(h Handle) error
}

// StartRequest is handed to the engine when a connection attempt begins.
type StartRequest struct {
	Attempt   uint64
	Config    Config
	Interface string
	Routes    []netip.Prefix
}

// Engine is the native tunnel engine. It reports progress by pushing
// events into the sink passed to Start.
type Engine interface {
	// Start launches a session and returns once the engine accepted it.
	Start(ctx context.Context, req StartRequest, sink StatusSink) error
	// Stop asks the engine to shut the session down. The engine confirms
	// with an EventTunnelDown.
	Stop(ctx context.Context) error
}
