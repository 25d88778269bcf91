// Package engine talks to the native tunnel engine over its local socket.
//
// The protocol is newline-delimited JSON. The client sends requests
//
//	{"id":1,"op":"start","attempt":3,"interface":"nymtun0","config":{...},"routes":["0.0.0.0/5",...]}
//	{"id":2,"op":"stop","attempt":3}
//
// and the engine answers each one with a reply carrying the same id
//
//	{"id":1,"reply":"ok"}
//	{"id":2,"reply":"error","error":"no session"}
//
// Status events are interleaved with replies and tagged with the attempt
// they belong to:
//
//	{"event":"tunnel_up","attempt":3}
//	{"event":"exit_failure","attempt":3,"reason":"gateway unreachable"}
//	{"event":"bandwidth_alert","attempt":3,"alert":{"message":"10% left","remaining_bytes":1048576}}
package engine

import (
	"net/netip"

	"github.com/nymtech/nym-vpn-client-sub000/tunnel"
)

const (
	opStart = "start"
	opStop  = "stop"

	replyOK    = "ok"
	replyError = "error"
)

type request struct {
	ID        uint64         `json:"id"`
	Op        string         `json:"op"`
	Attempt   uint64         `json:"attempt"`
	Interface string         `json:"interface,omitempty"`
	Config    *tunnel.Config `json:"config,omitempty"`
	Routes    []netip.Prefix `json:"routes,omitempty"`
}

// message is anything the engine writes: a reply when Reply is set, an
// event otherwise.
type message struct {
	ID      uint64                 `json:"id,omitempty"`
	Reply   string                 `json:"reply,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Event   string                 `json:"event,omitempty"`
	Attempt uint64                 `json:"attempt,omitempty"`
	Reason  string                 `json:"reason,omitempty"`
	Alert   *tunnel.BandwidthAlert `json:"alert,omitempty"`
}

var eventKinds = map[string]tunnel.EventKind{
	tunnel.EventClientReady.String():    tunnel.EventClientReady,
	tunnel.EventTunnelUp.String():       tunnel.EventTunnelUp,
	tunnel.EventTunnelDown.String():     tunnel.EventTunnelDown,
	tunnel.EventExitFailure.String():    tunnel.EventExitFailure,
	tunnel.EventBandwidthAlert.String(): tunnel.EventBandwidthAlert,
}

// statusEvent converts a wire event. ok is false for unknown event names.
func (m *message) statusEvent() (ev tunnel.StatusEvent, ok bool) {
	kind, ok := eventKinds[m.Event]
	if !ok {
		return tunnel.StatusEvent{}, false
	}
	ev = tunnel.StatusEvent{Kind: kind, Attempt: m.Attempt, Reason: m.Reason}
	if m.Alert != nil {
		ev.Alert = *m.Alert
	}
	return ev, true
}
