package tunnel

import "sync"

// EventKind identifies a status event pushed by the native engine.
type EventKind int

const (
	EventClientReady EventKind = iota + 1
	EventTunnelUp
	EventTunnelDown
	EventExitFailure
	EventBandwidthAlert
)

func (k EventKind) String() string {
	switch k {
	case EventClientReady:
		return "client_ready"
	case EventTunnelUp:
		return "tunnel_up"
	case EventTunnelDown:
		return "tunnel_down"
	case EventExitFailure:
		return "exit_failure"
	case EventBandwidthAlert:
		return "bandwidth_alert"
	default:
		return "unknown"
	}
}

// StatusEvent is one status report from the engine.
type StatusEvent struct {
	Kind EventKind
	// Attempt is stamped by the sink the event was pushed into.
	Attempt uint64
	// Reason accompanies EventExitFailure.
	Reason string
	// Alert accompanies EventBandwidthAlert.
	Alert BandwidthAlert
}

// StatusSink receives engine events. Push must not block.
type StatusSink interface {
	Push(ev StatusEvent)
}

// attemptSink tags events with the attempt they belong to and queues them
// for the controller's event loop.
type attemptSink struct {
	attempt uint64
	q       *queue[StatusEvent]
}

func (s attemptSink) Push(ev StatusEvent) {
	ev.Attempt = s.attempt
	s.q.push(ev)
}

// queue is an unbounded FIFO with a wake-up channel. Producers never block.
type queue[T any] struct {
	mu     sync.Mutex
	items  []T
	signal chan struct{}
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{signal: make(chan struct{}, 1)}
}

func (q *queue[T]) push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// drain returns and removes everything queued so far, oldest first.
func (q *queue[T]) drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}
