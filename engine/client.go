package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nymtech/nym-vpn-client-sub000/common"
	"github.com/nymtech/nym-vpn-client-sub000/tunnel"
)

// maxMessageSize bounds a single JSON line from the engine.
const maxMessageSize = 1 << 20

// Client implements tunnel.Engine over one engine connection.
type Client struct {
	conn net.Conn
	log  common.Logger

	writeMu sync.Mutex
	enc     *json.Encoder

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan message
	sink    tunnel.StatusSink
	attempt uint64
	err     error

	done  chan struct{}
	group errgroup.Group
	once  sync.Once
}

// Dial connects to the engine listening on the unix socket at path.
func Dial(ctx context.Context, path string, log common.Logger) (*Client, error) {
	d := net.Dialer{Timeout: common.DialTimeout}
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", common.ErrEngineClosed, path, err)
	}
	return NewClient(conn, log), nil
}

// NewClient wraps an established connection and starts reading from it.
func NewClient(conn net.Conn, log common.Logger) *Client {
	c := &Client{
		conn:    conn,
		log:     common.WithComponent(log, "Engine"),
		enc:     json.NewEncoder(conn),
		pending: make(map[uint64]chan message),
		done:    make(chan struct{}),
	}
	c.group.Go(c.readLoop)
	return c
}

// Start asks the engine to open a session for req.Attempt. Events for that
// attempt are pushed into sink from then on; events for any other attempt
// are dropped.
func (c *Client) Start(ctx context.Context, req tunnel.StartRequest, sink tunnel.StatusSink) error {
	c.mu.Lock()
	c.sink = sink
	c.attempt = req.Attempt
	c.mu.Unlock()

	cfg := req.Config
	return c.call(ctx, request{
		Op:        opStart,
		Attempt:   req.Attempt,
		Interface: req.Interface,
		Config:    &cfg,
		Routes:    req.Routes,
	})
}

// Stop asks the engine to shut the current session down. The engine
// confirms with a tunnel_down event.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	attempt := c.attempt
	c.mu.Unlock()

	return c.call(ctx, request{Op: opStop, Attempt: attempt})
}

// Close drops the connection and waits for the reader to exit.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		err = c.conn.Close()
		if werr := c.group.Wait(); werr != nil {
			c.log.Debug("Reader exited: %v", werr)
		}
	})
	return err
}

func (c *Client) call(ctx context.Context, req request) error {
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return err
	}
	c.nextID++
	req.ID = c.nextID
	ch := make(chan message, 1)
	c.pending[req.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	if err := c.write(ctx, req); err != nil {
		return err
	}
	c.log.Debug("Sent %s for attempt %d", req.Op, req.Attempt)

	select {
	case m := <-ch:
		if m.Reply != replyOK {
			return fmt.Errorf("%w: %s rejected: %s", common.ErrBackendFailure, req.Op, m.Error)
		}
		return nil
	case <-c.done:
		return c.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) write(ctx context.Context, req request) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	if err := c.enc.Encode(req); err != nil {
		return fmt.Errorf("%w: send %s: %w", common.ErrEngineClosed, req.Op, err)
	}
	return nil
}

func (c *Client) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return common.ErrEngineClosed
}

func (c *Client) readLoop() error {
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)

	for scanner.Scan() {
		var m message
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			c.log.Warn("Malformed message from engine: %v", err)
			continue
		}
		if m.Reply != "" {
			c.deliverReply(m)
			continue
		}
		c.deliverEvent(m)
	}

	err := scanner.Err()
	if err == nil || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		err = io.EOF
	}
	c.shutdown(err)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (c *Client) deliverReply(m message) {
	c.mu.Lock()
	ch, ok := c.pending[m.ID]
	c.mu.Unlock()
	if !ok {
		c.log.Debug("Reply for unknown request %d", m.ID)
		return
	}
	select {
	case ch <- m:
	default:
		c.log.Debug("Duplicate reply for request %d", m.ID)
	}
}

func (c *Client) deliverEvent(m message) {
	ev, ok := m.statusEvent()
	if !ok {
		c.log.Warn("Unknown engine event %q", m.Event)
		return
	}

	c.mu.Lock()
	sink, attempt := c.sink, c.attempt
	c.mu.Unlock()

	if sink == nil || ev.Attempt != attempt {
		c.log.Debug("Dropping %s for attempt %d (current %d)", ev.Kind, ev.Attempt, attempt)
		return
	}
	sink.Push(ev)
}

// shutdown fails pending calls and reports the lost connection to the
// current session.
func (c *Client) shutdown(cause error) {
	c.mu.Lock()
	c.err = fmt.Errorf("%w: %w", common.ErrEngineClosed, cause)
	sink, attempt := c.sink, c.attempt
	c.mu.Unlock()

	close(c.done)
	c.log.Info("Connection closed: %v", cause)

	if sink != nil {
		sink.Push(tunnel.StatusEvent{
			Kind:    tunnel.EventExitFailure,
			Attempt: attempt,
			Reason:  "engine connection closed",
		})
	}
}
