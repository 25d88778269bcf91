package tunnel

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/nymtech/nym-vpn-client-sub000/common"
	"github.com/nymtech/nym-vpn-client-sub000/routes"
)

// Options tune a Controller. The zero value is usable.
type Options struct {
	// Logger receives lifecycle logs. Defaults to common.GetLogger().
	Logger common.Logger
	// SampleInterval is the connection timer period. Defaults to
	// common.StatisticsInterval.
	SampleInterval time.Duration
}

// Controller owns the tunnel lifecycle: at most one platform handle, one
// engine session and the observable state derived from them.
type Controller struct {
	factory  TunnelFactory
	engine   Engine
	log      common.Logger
	interval time.Duration

	// ops is a one-slot semaphore ordering factory and engine calls: a build
	// runs to completion before a stop reaches the engine.
	ops chan struct{}

	mu      sync.Mutex
	state   TunnelState
	stats   *ConnectionStatistics
	message BackendMessage
	config  *Config
	handle  Handle
	attempt uint64
	// cancelAttempt aborts the factory and engine calls of the current
	// attempt once it is stopped.
	cancelAttempt context.CancelFunc
	// engineStarted is set while the engine runs a session that has not
	// been asked to stop yet.
	engineStarted bool
	cancelSampler context.CancelFunc
	// idle is closed while the controller is Down with no handle left to
	// release.
	idle    chan struct{}
	settled bool
	seq     uint64
	subs    map[string]*Subscription
	closed  bool

	events    *queue[StatusEvent]
	done      chan struct{}
	closeOnce sync.Once
}

// NewController creates a controller in the Down state and starts its event
// loop. Call Close when done with it.
func NewController(factory TunnelFactory, engine Engine, opts Options) *Controller {
	interval := opts.SampleInterval
	if interval <= 0 {
		interval = common.StatisticsInterval
	}

	idle := make(chan struct{})
	close(idle)

	c := &Controller{
		factory:  factory,
		engine:   engine,
		log:      common.WithComponent(opts.Logger, "Tunnel"),
		interval: interval,
		ops:      make(chan struct{}, 1),
		state:    StateDown,
		idle:     idle,
		settled:  true,
		subs:     make(map[string]*Subscription),
		events:   newQueue[StatusEvent](),
		done:     make(chan struct{}),
	}

	go c.run()
	return c
}

// State returns the current tunnel state.
func (c *Controller) State() TunnelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Statistics returns the connection timer, or nil when not Up.
func (c *Controller) Statistics() *ConnectionStatistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stats == nil {
		return nil
	}
	s := *c.stats
	return &s
}

// Message returns the latest backend message.
func (c *Controller) Message() BackendMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.message
}

// Attempt returns the id of the most recent connection attempt.
func (c *Controller) Attempt() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

// Subscribe registers an observer. The first update is a snapshot of the
// current state.
func (c *Controller) Subscribe() *Subscription {
	sub := newSubscription(c.unsubscribe)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sub.Close()
		return sub
	}
	c.subs[sub.id] = sub
	sub.q.push(c.snapshotLocked(ChangeState | ChangeStatistics | ChangeMessage))
	c.mu.Unlock()
	return sub
}

func (c *Controller) unsubscribe(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, id)
}

// Start connects with cfg. It returns once the tunnel handle is built and
// the engine accepted the session; progress after that is reported through
// subscriptions.
//
// Starting again with an equal config while connecting or up is a no-op.
// A different config stops the current session first and waits for Down.
func (c *Controller) Start(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	allowed, err := routes.ComputeAllowedRoutes(cfg.IncludeRoutes, cfg.ExcludeRoutes)
	if err != nil {
		return fmt.Errorf("compute allowed routes: %w", err)
	}
	cfg = cfg.Clone()

	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return common.ErrClosed
		}

		if c.state == StateDown && c.settled {
			id, attemptCtx := c.beginAttemptLocked(&cfg)
			c.mu.Unlock()
			return c.build(ctx, attemptCtx, id, cfg, allowed)
		}

		var stopping uint64
		if c.state.IsActive() {
			if c.config.Equal(&cfg) {
				state := c.state
				c.mu.Unlock()
				c.log.Debug("Start with unchanged config ignored (state %s)", state)
				return nil
			}
			c.log.Info("Config changed, restarting %q as %q", c.config.Name, cfg.Name)
			stopping = c.attempt
			c.beginStopLocked()
		}
		idle := c.idle
		c.mu.Unlock()

		if stopping != 0 {
			if err := c.stopEngine(ctx, stopping); err != nil {
				return err
			}
		}
		if err := waitIdle(ctx, idle); err != nil {
			return err
		}
	}
}

// Stop disconnects. Observable state changes immediately: the state becomes
// Disconnecting and statistics disappear before the engine is contacted.
// Stop returns once the controller is Down with the handle released, or
// when ctx ends. Stopping while Down is a no-op.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state.IsActive() {
		id := c.attempt
		c.beginStopLocked()
		idle := c.idle
		c.mu.Unlock()

		if err := c.stopEngine(ctx, id); err != nil {
			return err
		}
		return waitIdle(ctx, idle)
	}
	idle := c.idle
	c.mu.Unlock()
	return waitIdle(ctx, idle)
}

// Close stops the event loop and closes all subscriptions. It does not stop
// the tunnel; call Stop first.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.stopSamplerLocked()
		subs := make([]*Subscription, 0, len(c.subs))
		for _, s := range c.subs {
			subs = append(subs, s)
		}
		c.mu.Unlock()

		close(c.done)
		for _, s := range subs {
			s.Close()
		}
	})
}

func waitIdle(ctx context.Context, idle <-chan struct{}) error {
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctxError(ctx)
	}
}

func ctxError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", common.ErrTimeout, ctx.Err())
	}
	return ctx.Err()
}

// acquireOps takes the operation slot or gives up when ctx ends.
func (c *Controller) acquireOps(ctx context.Context) error {
	select {
	case c.ops <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctxError(ctx)
	}
}

func (c *Controller) releaseOps() {
	<-c.ops
}

// beginAttemptLocked moves Down -> InitializingClient under a new attempt id.
// The returned context is cancelled when the attempt is stopped or ends.
func (c *Controller) beginAttemptLocked(cfg *Config) (uint64, context.Context) {
	attemptCtx, cancel := context.WithCancel(context.Background())
	c.cancelAttempt = cancel
	c.attempt++
	c.config = cfg
	c.engineStarted = false
	c.settled = false
	c.idle = make(chan struct{})
	c.message = BackendMessage{}

	c.log.Info("Attempt %d: connecting %q", c.attempt, cfg.Name)
	c.setStateLocked(StateInitializingClient, ChangeMessage)
	return c.attempt, attemptCtx
}

// beginStopLocked moves an active attempt to Disconnecting and drops the
// statistics right away.
func (c *Controller) beginStopLocked() {
	c.cancelAttemptLocked()
	c.stopSamplerLocked()
	c.stats = nil
	c.setStateLocked(StateDisconnecting, ChangeStatistics)
}

// build creates the platform handle and starts the engine for attempt id.
// Factory and engine calls end when ctx ends or the attempt is stopped.
func (c *Controller) build(ctx, attemptCtx context.Context, id uint64, cfg Config, allowed []netip.Prefix) error {
	if err := c.acquireOps(ctx); err != nil {
		return c.abort(id, err)
	}
	defer c.releaseOps()

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(attemptCtx, cancel)
	defer stop()

	ifcfg, err := cfg.interfaceConfig(allowed)
	if err != nil {
		return c.abort(id, err)
	}

	c.log.Debug("Attempt %d: installing %d allowed routes", id, len(allowed))
	handle, err := c.factory.Create(opCtx, ifcfg)
	if err != nil {
		return c.abort(id, fmt.Errorf("create tunnel interface: %w", err))
	}

	c.mu.Lock()
	switch {
	case c.attempt == id && c.state == StateDisconnecting:
		// Stopped while the interface was being built; the engine never ran,
		// so nobody else will settle this attempt.
		c.handle = handle
		h := c.enterDownLocked(nil)
		c.mu.Unlock()
		c.release(h)
		return common.ErrCancelled
	case c.attempt != id || c.state == StateDown:
		// The attempt already ended and settled without this handle.
		err := c.attemptErrLocked()
		c.mu.Unlock()
		c.destroy(handle)
		return err
	}
	c.handle = handle
	c.mu.Unlock()

	req := StartRequest{
		Attempt:   id,
		Config:    cfg,
		Interface: handle.Name(),
		Routes:    allowed,
	}
	if err := c.engine.Start(opCtx, req, attemptSink{attempt: id, q: c.events}); err != nil {
		c.mu.Lock()
		stopping := c.attempt == id && c.state == StateDisconnecting
		c.mu.Unlock()
		if stopping {
			// The engine may have accepted the session just before the
			// call was cancelled.
			c.stopCancelledSession(ctx, id)
		}
		return c.abort(id, fmt.Errorf("%w: start engine: %w", common.ErrBackendFailure, err))
	}

	c.mu.Lock()
	switch {
	case c.attempt != id || c.state == StateDown:
		err := c.attemptErrLocked()
		c.mu.Unlock()
		return err
	case c.state == StateDisconnecting:
		c.engineStarted = true
		c.mu.Unlock()
		// The Stop that got here first may have given up waiting for ops.
		stopCtx, cancelStop := stopContext(ctx)
		defer cancelStop()
		c.sendStop(stopCtx, id)
		return common.ErrCancelled
	default:
		c.engineStarted = true
		c.mu.Unlock()
		c.log.Info("Attempt %d: engine started on %s", id, handle.Name())
		return nil
	}
}

// attemptErrLocked reports why an attempt ended before build finished.
func (c *Controller) attemptErrLocked() error {
	if c.message.Kind == MessageFailure {
		return fmt.Errorf("%w: %s", common.ErrBackendFailure, c.message.Reason)
	}
	return common.ErrCancelled
}

// stopContext detaches ctx from its caller's cancellation and bounds it by
// the acknowledgement timeout.
func stopContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), common.AckTimeout)
}

// stopCancelledSession tells the engine to drop a session whose start was
// interrupted by a stop. Errors are expected when the session never began.
func (c *Controller) stopCancelledSession(ctx context.Context, id uint64) {
	stopCtx, cancel := stopContext(ctx)
	defer cancel()
	if err := c.engine.Stop(stopCtx); err != nil {
		c.log.Debug("Attempt %d: stop after cancelled start: %v", id, err)
	}
}

// abort fails attempt id with err, surfacing it as a Failure message if the
// attempt is still current.
func (c *Controller) abort(id uint64, err error) error {
	c.log.Error("Attempt %d failed: %v", id, err)

	c.mu.Lock()
	var h Handle
	switch {
	case c.attempt != id || c.state == StateDown:
	case c.state == StateDisconnecting:
		// Stop already requested: go Down without a failure.
		h = c.enterDownLocked(nil)
		err = fmt.Errorf("%w: %w", common.ErrCancelled, err)
	default:
		msg := failure(err.Error(), err)
		h = c.enterDownLocked(&msg)
	}
	c.mu.Unlock()

	c.release(h)
	return err
}

// stopEngine asks the engine to stop attempt id if it is running. It waits
// for any build in progress, or until ctx ends.
func (c *Controller) stopEngine(ctx context.Context, id uint64) error {
	if err := c.acquireOps(ctx); err != nil {
		return err
	}
	defer c.releaseOps()

	c.sendStop(ctx, id)
	return nil
}

// sendStop issues the engine stop for attempt id at most once. The caller
// holds ops.
func (c *Controller) sendStop(ctx context.Context, id uint64) {
	c.mu.Lock()
	running := c.attempt == id && c.engineStarted && c.state == StateDisconnecting
	if running {
		c.engineStarted = false
	}
	c.mu.Unlock()
	if !running {
		return
	}

	c.log.Info("Attempt %d: stopping engine", id)
	if err := c.engine.Stop(ctx); err != nil {
		err = fmt.Errorf("%w: stop engine: %w", common.ErrBackendFailure, err)
		c.log.Error("Attempt %d: %v", id, err)

		c.mu.Lock()
		var h Handle
		if c.attempt == id && c.state == StateDisconnecting {
			msg := failure(err.Error(), err)
			h = c.enterDownLocked(&msg)
		}
		c.mu.Unlock()
		c.release(h)
	}
}

// enterDownLocked moves to Down and detaches the handle. The caller must
// pass the returned handle to release after unlocking.
func (c *Controller) enterDownLocked(msg *BackendMessage) Handle {
	c.cancelAttemptLocked()
	c.stopSamplerLocked()
	c.stats = nil
	c.engineStarted = false

	changed := ChangeStatistics
	if msg != nil {
		c.message = *msg
		changed |= ChangeMessage
	}
	c.setStateLocked(StateDown, changed)

	h := c.handle
	c.handle = nil
	if h == nil {
		c.settleLocked()
	}
	return h
}

// release destroys h outside the state lock and then marks the controller
// idle. A nil handle is ignored.
func (c *Controller) release(h Handle) {
	if h == nil {
		return
	}
	c.destroy(h)

	c.mu.Lock()
	c.settleLocked()
	c.mu.Unlock()
}

func (c *Controller) destroy(h Handle) {
	if err := c.factory.Destroy(h); err != nil {
		c.log.Warn("Destroy %s: %v", h.Name(), err)
	} else {
		c.log.Debug("Destroyed %s (%s)", h.Name(), h.ID())
	}
}

func (c *Controller) cancelAttemptLocked() {
	if c.cancelAttempt != nil {
		c.cancelAttempt()
		c.cancelAttempt = nil
	}
}

func (c *Controller) settleLocked() {
	if c.settled {
		return
	}
	c.settled = true
	close(c.idle)
}

func (c *Controller) setStateLocked(s TunnelState, extra ChangeKind) {
	if c.state != s {
		c.log.Info("State %s -> %s", c.state, s)
	}
	c.state = s
	c.publishLocked(ChangeState | extra)
}

func (c *Controller) publishLocked(changed ChangeKind) {
	u := c.snapshotLocked(changed)
	for _, s := range c.subs {
		s.q.push(u)
	}
}

func (c *Controller) snapshotLocked(changed ChangeKind) Update {
	c.seq++
	return Update{
		Seq:        c.seq,
		Changed:    changed,
		State:      c.state,
		Statistics: c.stats,
		Message:    c.message,
	}
}

// run is the single consumer of engine events.
func (c *Controller) run() {
	for {
		select {
		case <-c.done:
			return
		case <-c.events.signal:
		}
		for _, ev := range c.events.drain() {
			c.handleEvent(ev)
		}
	}
}

func (c *Controller) handleEvent(ev StatusEvent) {
	c.mu.Lock()
	if ev.Attempt != c.attempt {
		c.mu.Unlock()
		c.log.Debug("Discarding %s from stale attempt %d", ev.Kind, ev.Attempt)
		return
	}

	var h Handle
	switch ev.Kind {
	case EventClientReady:
		if c.state == StateInitializingClient {
			c.setStateLocked(StateEstablishingConnection, 0)
		}

	case EventTunnelUp:
		if c.state == StateEstablishingConnection {
			c.startSamplerLocked(ev.Attempt)
			c.setStateLocked(StateUp, ChangeStatistics)
		} else {
			c.log.Debug("Ignoring tunnel_up in state %s", c.state)
		}

	case EventTunnelDown:
		switch {
		case c.state == StateDisconnecting:
			h = c.enterDownLocked(nil)
		case c.state.IsActive():
			msg := failure("tunnel went down unexpectedly", common.ErrBackendFailure)
			h = c.enterDownLocked(&msg)
		}

	case EventExitFailure:
		if c.state != StateDown {
			msg := failure(ev.Reason, fmt.Errorf("%w: %s", common.ErrBackendFailure, ev.Reason))
			h = c.enterDownLocked(&msg)
		}

	case EventBandwidthAlert:
		c.message = BackendMessage{Kind: MessageBandwidthAlert, Alert: ev.Alert}
		c.publishLocked(ChangeMessage)
	}
	c.mu.Unlock()

	c.release(h)
}
