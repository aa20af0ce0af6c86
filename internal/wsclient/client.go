// Package wsclient is a small Go client for the relay. It stands in for the
// gesture client: one persistent connection that sends gestureMessage
// envelopes and receives the ones relayed from other connections.
package wsclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/HugoManns/gesture-relay/internal/protocol"
)

const (
	defaultWriteTimeout = 5 * time.Second
	incomingBuffer      = 64
)

type options struct {
	header http.Header
	logger *slog.Logger
	dialer *websocket.Dialer
}

// Option configures Dial.
type Option func(*options)

// WithHeader sets extra handshake headers, such as Origin.
func WithHeader(h http.Header) Option {
	return func(o *options) { o.header = h }
}

// WithLogger sets the logger used for connection events.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDialer overrides websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// Client is one connection to the relay.
type Client struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu  sync.Mutex
	incoming chan []byte
	done     chan struct{}

	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

// Dial connects to the relay's WebSocket endpoint.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	o := options{logger: slog.Default(), dialer: websocket.DefaultDialer}
	for _, opt := range opts {
		opt(&o)
	}

	conn, resp, err := o.dialer.DialContext(ctx, url, o.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Client{
		conn:     conn,
		logger:   o.logger,
		incoming: make(chan []byte, incomingBuffer),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Send writes one raw frame.
func (c *Client) Send(ctx context.Context, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteTimeout)
	}
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// SendGesture encodes g as a gestureMessage and sends it.
func (c *Client) SendGesture(ctx context.Context, g protocol.Gesture) error {
	frame, err := protocol.EncodeGesture(g)
	if err != nil {
		return err
	}
	return c.Send(ctx, frame)
}

// Messages yields every frame relayed to this client. It is closed when the
// connection ends; Err then reports why.
func (c *Client) Messages() <-chan []byte { return c.incoming }

// Err returns the error that ended the read loop, if any.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close sends a normal close frame and releases the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(defaultWriteTimeout))
		c.writeMu.Unlock()

		err = c.conn.Close()
	})
	return err
}

func (c *Client) readLoop() {
	defer close(c.incoming)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.errMu.Lock()
			c.err = err
			c.errMu.Unlock()
			c.logger.Debug("relay connection ended", "error", err)
			return
		}

		select {
		case c.incoming <- data:
		case <-c.done:
			return
		}
	}
}
