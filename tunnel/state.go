package tunnel

// TunnelState is the lifecycle state of the tunnel.
type TunnelState int

const (
	// StateDown is the initial state and the state after any failure.
	StateDown TunnelState = iota
	// StateInitializingClient: the engine client is being set up.
	StateInitializingClient
	// StateEstablishingConnection: the client is ready and the tunnel is being negotiated.
	StateEstablishingConnection
	// StateUp: traffic flows through the tunnel.
	StateUp
	// StateDisconnecting: a stop was requested and the engine has not acknowledged it yet.
	StateDisconnecting
)

// String returns a human-readable representation of the state.
func (s TunnelState) String() string {
	switch s {
	case StateDown:
		return "Down"
	case StateInitializingClient:
		return "Connecting (initializing client)"
	case StateEstablishingConnection:
		return "Connecting (establishing connection)"
	case StateUp:
		return "Up"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return "Unknown"
	}
}

// IsConnecting reports whether s is one of the Connecting sub-states.
func (s TunnelState) IsConnecting() bool {
	return s == StateInitializingClient || s == StateEstablishingConnection
}

// IsActive reports whether a connection attempt is in progress or up.
func (s TunnelState) IsActive() bool {
	return s.IsConnecting() || s == StateUp
}

// ConnectionStatistics is present only while the tunnel is Up.
type ConnectionStatistics struct {
	// Seconds since the tunnel came up, advanced once per sampling interval.
	Seconds uint64
}

// MessageKind distinguishes backend messages.
type MessageKind int

const (
	MessageNone MessageKind = iota
	MessageFailure
	MessageBandwidthAlert
)

func (k MessageKind) String() string {
	switch k {
	case MessageNone:
		return "None"
	case MessageFailure:
		return "Failure"
	case MessageBandwidthAlert:
		return "BandwidthAlert"
	default:
		return "Unknown"
	}
}

// BandwidthAlert is advisory information about the remaining allowance.
type BandwidthAlert struct {
	Message        string `json:"message,omitempty"`
	RemainingBytes int64  `json:"remaining_bytes,omitempty"`
}

// BackendMessage is the side channel shown next to the tunnel state. It
// never changes the state by itself.
type BackendMessage struct {
	Kind MessageKind
	// Reason is set for MessageFailure.
	Reason string
	// Err is the underlying error for MessageFailure, if any.
	Err error
	// Alert is set for MessageBandwidthAlert.
	Alert BandwidthAlert
}

func failure(reason string, err error) BackendMessage {
	return BackendMessage{Kind: MessageFailure, Reason: reason, Err: err}
}
