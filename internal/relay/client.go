// client.go
// Each connection runs two goroutines. The read goroutine pulls frames off the
// socket and fans them out to every other client. The write goroutine drains
// this client's send queue back to the socket, so a slow browser only ever
// stalls its own queue.

package relay

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// State is the lifecycle state of a connection.
type State int32

const (
	StateOpen State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is one inbound frame, relayed verbatim with the same frame kind.
type Event struct {
	Kind int // websocket.TextMessage or websocket.BinaryMessage
	Data []byte
}

type closeReason string

const (
	reasonPeerClosed   closeReason = "peer_closed"
	reasonReadError    closeReason = "read_error"
	reasonWriteError   closeReason = "write_error"
	reasonSlowConsumer closeReason = "slow_consumer"
	reasonShutdown     closeReason = "shutdown"
)

func (r closeReason) closeCode() int {
	switch r {
	case reasonShutdown:
		return websocket.CloseGoingAway
	case reasonSlowConsumer:
		return websocket.CloseTryAgainLater
	default:
		return websocket.CloseNormalClosure
	}
}

// Client is a single WebSocket connection. The socket is owned by the
// client's goroutines; only the write goroutine closes it.
type Client struct {
	id      string
	socket  *websocket.Conn
	manager *Manager
	logger  *slog.Logger
	limiter *rate.Limiter

	send   chan Event
	done   chan struct{} // closed on Open -> Closing
	closed chan struct{} // closed on Closing -> Closed

	// mu orders enqueue against close: everything enqueued while the read
	// lock is held lands before the client leaves the registry.
	mu          sync.RWMutex
	closeOnce   sync.Once
	state       atomic.Int32
	reason      closeReason
	writeFailed atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

func newClient(m *Manager, id string, socket *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(m.ctx)
	c := &Client{
		id:      id,
		socket:  socket,
		manager: m,
		logger:  m.logger.With("session_id", id),
		send:    make(chan Event, m.opts.SendBufferSize),
		done:    make(chan struct{}),
		closed:  make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	if m.opts.EventRate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(m.opts.EventRate), m.opts.EventBurst)
	}
	return c
}

// ID returns the session id assigned at accept time.
func (c *Client) ID() string { return c.id }

// State returns the current lifecycle state.
func (c *Client) State() State { return State(c.state.Load()) }

// Done is closed once the client reaches StateClosed.
func (c *Client) Done() <-chan struct{} { return c.closed }

// Close moves the client to Closing. It is safe to call more than once.
func (c *Client) Close() { c.close(reasonShutdown) }

// enqueue pushes ev onto the send queue. A full queue is retried for at most
// timeout before giving up with ErrSlowConsumer.
func (c *Client) enqueue(ev Event, timeout time.Duration) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.State() != StateOpen {
		return ErrClientClosed
	}

	select {
	case c.send <- ev:
		return nil
	default:
	}
	if timeout <= 0 {
		return ErrSlowConsumer
	}

	timer := c.manager.clock.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c.send <- ev:
		return nil
	case <-timer.Chan():
		return ErrSlowConsumer
	}
}

// close runs the Open -> Closing transition exactly once.
func (c *Client) close(reason closeReason) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.manager.registry.Unregister(c.id)
		c.reason = reason
		c.state.Store(int32(StateClosing))
		close(c.done)
		c.mu.Unlock()

		// Unblock the reader; a closing client relays nothing more.
		if c.socket != nil {
			_ = c.socket.SetReadDeadline(c.manager.clock.Now())
		}
		c.cancel()
		c.manager.detached(c, reason)
	})
}

func (c *Client) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("read loop panic recovered", "panic", r)
			c.close(reasonReadError)
		}
	}()

	c.socket.SetReadLimit(c.manager.opts.MaxMessageSize)
	c.extendReadDeadline()
	c.socket.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	for {
		kind, data, err := c.socket.ReadMessage()
		if err != nil {
			c.close(c.classifyReadError(err))
			return
		}
		if c.State() != StateOpen {
			return
		}
		c.extendReadDeadline()

		if c.limiter != nil && !c.limiter.AllowN(c.manager.clock.Now(), 1) {
			c.manager.metrics.EventsThrottled.Inc()
			c.logger.Debug("event dropped by rate limiter")
			continue
		}

		c.manager.Fanout(c.ctx, c.id, Event{Kind: kind, Data: data})
	}
}

func (c *Client) writeLoop() {
	ticker := c.manager.clock.NewTicker(c.manager.opts.PingInterval)
	defer ticker.Stop()
	defer c.finish()

	for {
		select {
		case ev := <-c.send:
			if err := c.write(ev); err != nil {
				c.logger.Debug("write failed", "error", err)
				c.writeFailed.Store(true)
				c.close(reasonWriteError)
				return
			}
		case <-ticker.Chan():
			deadline := c.manager.clock.Now().Add(c.manager.opts.WriteTimeout)
			if err := c.socket.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("ping failed", "error", err)
				c.writeFailed.Store(true)
				c.close(reasonWriteError)
				return
			}
		case <-c.done:
			c.drain()
			return
		}
	}
}

func (c *Client) write(ev Event) error {
	_ = c.socket.SetWriteDeadline(c.manager.clock.Now().Add(c.manager.opts.WriteTimeout))
	return c.socket.WriteMessage(ev.Kind, ev.Data)
}

// drain flushes whatever was queued before the client started closing.
func (c *Client) drain() {
	for {
		select {
		case ev := <-c.send:
			if err := c.write(ev); err != nil {
				c.writeFailed.Store(true)
				return
			}
		default:
			return
		}
	}
}

// finish runs the Closing -> Closed transition and releases the socket.
func (c *Client) finish() {
	if !c.writeFailed.Load() {
		msg := websocket.FormatCloseMessage(c.reason.closeCode(), string(c.reason))
		_ = c.socket.WriteControl(websocket.CloseMessage, msg, c.manager.clock.Now().Add(c.manager.opts.WriteTimeout))
	}
	_ = c.socket.Close()

	c.state.Store(int32(StateClosed))
	close(c.closed)
	c.manager.finished(c)
}

func (c *Client) classifyReadError(err error) closeReason {
	expected := []int{websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived}
	switch {
	case websocket.IsCloseError(err, expected...):
		c.logger.Debug("connection closed by peer", "error", err)
		return reasonPeerClosed
	case websocket.IsUnexpectedCloseError(err, expected...):
		c.logger.Warn("unexpected close", "error", err)
	default:
		c.logger.Debug("read failed", "error", err)
	}
	return reasonReadError
}

func (c *Client) extendReadDeadline() {
	if c.State() != StateOpen {
		return
	}
	_ = c.socket.SetReadDeadline(c.manager.clock.Now().Add(c.manager.opts.PongTimeout))
}
