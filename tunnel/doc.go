// Package tunnel implements the connection lifecycle of the VPN client.
//
// The Controller drives one platform tunnel handle and one native engine
// session through the states
//
//	Down -> InitializingClient -> EstablishingConnection -> Up -> Disconnecting -> Down
//
// and mirrors them, together with a connection timer and a side channel of
// backend messages, to any number of subscribers.
//
// # Events
//
// The engine reports progress by pushing StatusEvent values into the
// StatusSink it was given at start. Every sink is bound to one connection
// attempt; events from an attempt that is no longer current are dropped.
//
// # Routes
//
// Before a handle is created the controller computes the allow-list from
// the profile's include and exclude routes (see package routes) and hands
// the resulting prefixes to the TunnelFactory.
//
// # Thread Safety
//
// All state transitions run under one mutex, whether they come from Start,
// Stop, the engine's event stream or the statistics ticker.
package tunnel
