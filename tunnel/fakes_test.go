package tunnel

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeHandle struct {
	id   string
	name string
}

func (h *fakeHandle) ID() string   { return h.id }
func (h *fakeHandle) Name() string { return h.name }

type fakeFactory struct {
	mu        sync.Mutex
	created   []InterfaceConfig
	destroyed map[string]int
	createErr error
	// gate, when set, blocks Create until it is closed or ctx ends.
	gate chan struct{}
	// ignoreCancel makes Create wait for gate even after ctx ends.
	ignoreCancel bool
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{destroyed: make(map[string]int)}
}

func (f *fakeFactory) Create(ctx context.Context, cfg InterfaceConfig) (Handle, error) {
	f.mu.Lock()
	gate, ignore := f.gate, f.ignoreCancel
	f.mu.Unlock()
	if err := waitGate(ctx, gate, ignore); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, cfg)
	n := len(f.created)
	return &fakeHandle{id: fmt.Sprintf("h%d", n), name: fmt.Sprintf("tun%d", n)}, nil
}

func (f *fakeFactory) Destroy(h Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed[h.ID()]++
	return nil
}

func (f *fakeFactory) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *fakeFactory) destroyCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.destroyed[id]
}

func (f *fakeFactory) totalDestroyed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, v := range f.destroyed {
		n += v
	}
	return n
}

// waitGate blocks until gate is closed. Unless ignoreCancel is set it also
// returns when ctx ends. A nil gate never blocks.
func waitGate(ctx context.Context, gate chan struct{}, ignoreCancel bool) error {
	switch {
	case gate == nil:
		return nil
	case ignoreCancel:
		<-gate
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type fakeEngine struct {
	mu       sync.Mutex
	requests []StartRequest
	sinks    []StatusSink
	starts   int
	stops    int
	startErr error
	stopErr  error
	// ack makes Stop confirm with EventTunnelDown.
	ack bool
	// startGate, when set, blocks Start until it is closed or ctx ends.
	startGate chan struct{}
	// ignoreCancel makes Start wait for startGate even after ctx ends.
	ignoreCancel bool
}

func (e *fakeEngine) Start(ctx context.Context, req StartRequest, sink StatusSink) error {
	e.mu.Lock()
	e.starts++
	gate, ignore := e.startGate, e.ignoreCancel
	e.mu.Unlock()
	if err := waitGate(ctx, gate, ignore); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.startErr != nil {
		return e.startErr
	}
	e.requests = append(e.requests, req)
	e.sinks = append(e.sinks, sink)
	return nil
}

func (e *fakeEngine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stops++
	if e.stopErr != nil {
		return e.stopErr
	}
	if e.ack && len(e.sinks) > 0 {
		e.sinks[len(e.sinks)-1].Push(StatusEvent{Kind: EventTunnelDown})
	}
	return nil
}

// emit pushes ev into the sink of the latest session.
func (e *fakeEngine) emit(ev StatusEvent) {
	e.emitTo(-1, ev)
}

// emitTo pushes ev into the sink of session i; -1 means the latest.
func (e *fakeEngine) emitTo(i int, ev StatusEvent) {
	e.mu.Lock()
	if i < 0 {
		i = len(e.sinks) - 1
	}
	sink := e.sinks[i]
	e.mu.Unlock()
	sink.Push(ev)
}

func (e *fakeEngine) startCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.starts
}

func (e *fakeEngine) stopCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stops
}

func (e *fakeEngine) request(i int) StartRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requests[i]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func waitState(t *testing.T, c *Controller, want TunnelState) {
	t.Helper()
	waitFor(t, "state "+want.String(), func() bool { return c.State() == want })
}

// barrier pushes a bandwidth alert through the latest session and waits for
// it, so every event pushed before it has been handled.
func barrier(t *testing.T, c *Controller, e *fakeEngine, tag string) {
	t.Helper()
	e.emit(StatusEvent{Kind: EventBandwidthAlert, Alert: BandwidthAlert{Message: tag}})
	waitFor(t, "barrier "+tag, func() bool {
		m := c.Message()
		return m.Kind == MessageBandwidthAlert && m.Alert.Message == tag
	})
}
