// manager.go

// The manager owns the registry and implements fan-out. There is no central
// event loop: each client's read goroutine calls Fanout directly, which keeps
// per-sender ordering and lets independent senders make progress in parallel.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/HugoManns/gesture-relay/internal/metrics"
)

const tracerName = "github.com/HugoManns/gesture-relay/internal/relay"

// Options configures a Manager. Zero durations and sizes fall back to the
// defaults below, except SendTimeout where zero means never wait on a full queue.
type Options struct {
	SendBufferSize int
	SendTimeout    time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	PongTimeout    time.Duration
	MaxMessageSize int64
	MaxConnections int     // 0 means unlimited
	EventRate      float64 // inbound events per second per connection, 0 disables
	EventBurst     int

	Clock   clockwork.Clock
	Logger  *slog.Logger
	Metrics *metrics.Relay
	Tracer  trace.Tracer
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		SendBufferSize: 32,
		SendTimeout:    50 * time.Millisecond,
		WriteTimeout:   5 * time.Second,
		PingInterval:   30 * time.Second,
		PongTimeout:    60 * time.Second,
		MaxMessageSize: 64 << 10,
		EventBurst:     10,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SendBufferSize <= 0 {
		o.SendBufferSize = d.SendBufferSize
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = d.PingInterval
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = d.PongTimeout
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = d.MaxMessageSize
	}
	if o.EventBurst <= 0 {
		o.EventBurst = d.EventBurst
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.New(prometheus.NewRegistry())
	}
	if o.Tracer == nil {
		o.Tracer = otel.Tracer(tracerName)
	}
	return o
}

// FanoutResult summarises one Fanout call.
type FanoutResult struct {
	Recipients int
	Delivered  int
	Dropped    int
	Evicted    int
}

// Manager accepts connections and relays every inbound event to all other
// open connections.
type Manager struct {
	registry *Registry
	opts     Options
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *metrics.Relay
	tracer   trace.Tracer
	newID    func() string

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a manager with an empty registry.
func NewManager(opts Options) *Manager {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		registry: NewRegistry(),
		opts:     opts,
		clock:    opts.Clock,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
		newID:    uuid.NewString,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Registry exposes the live connection set.
func (m *Manager) Registry() *Registry { return m.registry }

// Len returns the number of open connections.
func (m *Manager) Len() int { return m.registry.Len() }

// Full reports whether MaxConnections has been reached.
func (m *Manager) Full() bool {
	return m.opts.MaxConnections > 0 && m.registry.Len() >= m.opts.MaxConnections
}

// Accept registers an upgraded connection under a fresh id and starts its
// read and write goroutines. On error the socket has already been closed.
func (m *Manager) Accept(conn *websocket.Conn) (*Client, error) {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		m.reject(conn, "shutdown", websocket.CloseGoingAway)
		return nil, ErrRelayClosed
	}
	if m.Full() {
		m.mu.Unlock()
		m.reject(conn, "limit", websocket.CloseTryAgainLater)
		return nil, ErrTooManyConnections
	}

	c := newClient(m, m.newID(), conn)
	if err := m.registry.Register(c); err != nil {
		m.mu.Unlock()
		c.cancel()
		m.logger.Error("rejecting connection", "session_id", c.id, "error", err)
		m.reject(conn, "duplicate_id", websocket.CloseInternalServerErr)
		return nil, err
	}
	m.wg.Add(1)
	m.mu.Unlock()

	m.metrics.ConnectionsTotal.Inc()
	m.metrics.ActiveConnections.Inc()
	c.logger.Info("client connected", "remote_addr", conn.RemoteAddr().String(), "connections", m.registry.Len())

	go c.writeLoop()
	go c.readLoop()
	return c, nil
}

func (m *Manager) reject(conn *websocket.Conn, reason string, code int) {
	m.metrics.ConnectionsRejected.WithLabelValues(reason).Inc()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, m.clock.Now().Add(m.opts.WriteTimeout))
	_ = conn.Close()
}

// Fanout enqueues ev on every registered client except the sender. A full or
// closed recipient is skipped without affecting the others; a recipient whose
// queue stays full past SendTimeout is evicted.
func (m *Manager) Fanout(ctx context.Context, senderID string, ev Event) FanoutResult {
	_, span := m.tracer.Start(ctx, "relay.fanout", trace.WithAttributes(
		attribute.String("relay.sender_id", senderID),
		attribute.Int("relay.event_bytes", len(ev.Data)),
	))
	defer span.End()

	start := m.clock.Now()
	var res FanoutResult
	for _, c := range m.registry.Snapshot() {
		if c.id == senderID {
			continue
		}
		res.Recipients++

		err := c.enqueue(ev, m.opts.SendTimeout)
		switch {
		case err == nil:
			res.Delivered++
		case errors.Is(err, ErrSlowConsumer):
			res.Dropped++
			res.Evicted++
			c.logger.Warn("evicting slow client", "queue_capacity", cap(c.send))
			c.close(reasonSlowConsumer)
		default:
			res.Dropped++
		}
	}

	m.metrics.EventsReceived.Inc()
	m.metrics.Deliveries.WithLabelValues("delivered").Add(float64(res.Delivered))
	m.metrics.Deliveries.WithLabelValues("dropped").Add(float64(res.Dropped))
	m.metrics.FanoutDuration.Observe(m.clock.Since(start).Seconds())

	span.SetAttributes(
		attribute.Int("relay.recipients", res.Recipients),
		attribute.Int("relay.delivered", res.Delivered),
		attribute.Int("relay.dropped", res.Dropped),
	)
	return res
}

// Shutdown stops accepting connections and closes every open one. It waits
// for the clients' write goroutines to finish or for ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return ErrRelayClosed
	}
	m.closing = true
	clients := m.registry.Snapshot()
	m.mu.Unlock()

	m.logger.Info("closing connections", "connections", len(clients))
	for _, c := range clients {
		c.close(reasonShutdown)
	}
	defer m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("relay shutdown: %w", ctx.Err())
	}
}

// detached is called once per client on Open -> Closing.
func (m *Manager) detached(c *Client, reason closeReason) {
	m.metrics.ActiveConnections.Dec()
	m.metrics.Disconnects.WithLabelValues(string(reason)).Inc()
	c.logger.Info("client disconnected", "reason", string(reason), "connections", m.registry.Len())
}

// finished is called by the write goroutine once the socket is released.
func (m *Manager) finished(c *Client) {
	c.logger.Debug("client closed")
	m.wg.Done()
}
