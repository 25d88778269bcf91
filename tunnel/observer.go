package tunnel

import (
	"sync"

	"github.com/google/uuid"
)

// ChangeKind flags what an Update changed.
type ChangeKind uint8

const (
	ChangeState ChangeKind = 1 << iota
	ChangeStatistics
	ChangeMessage
)

// Update is a snapshot pushed to subscribers after every change.
type Update struct {
	// Seq increases with every snapshot the controller takes.
	Seq        uint64
	Changed    ChangeKind
	State      TunnelState
	Statistics *ConnectionStatistics
	Message    BackendMessage
}

// Subscription delivers updates in the order they were generated. A slow
// reader never blocks the controller; updates queue up until read.
type Subscription struct {
	// C receives updates. It is closed after Close.
	C <-chan Update

	id      string
	q       *queue[Update]
	out     chan Update
	done    chan struct{}
	once    sync.Once
	release func(id string)
}

func newSubscription(release func(id string)) *Subscription {
	s := &Subscription{
		id:      uuid.NewString(),
		q:       newQueue[Update](),
		out:     make(chan Update),
		done:    make(chan struct{}),
		release: release,
	}
	s.C = s.out
	go s.pump()
	return s
}

// ID returns the subscription identifier.
func (s *Subscription) ID() string {
	return s.id
}

// Close stops delivery and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		if s.release != nil {
			s.release(s.id)
		}
	})
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case <-s.q.signal:
		}
		for _, u := range s.q.drain() {
			select {
			case s.out <- u:
			case <-s.done:
				return
			}
		}
	}
}
