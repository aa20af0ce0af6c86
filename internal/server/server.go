// Package server exposes the relay over HTTP: the WebSocket endpoint, a
// static acknowledgement route, a JSON health check and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/HugoManns/gesture-relay/internal/config"
	"github.com/HugoManns/gesture-relay/internal/metrics"
	"github.com/HugoManns/gesture-relay/internal/relay"
)

// Server wires the relay manager to an HTTP listener.
type Server struct {
	cfg        *config.Config
	manager    *relay.Manager
	upgrader   websocket.Upgrader
	registry   *prometheus.Registry
	httpServer *http.Server
	logger     *slog.Logger
	clock      clockwork.Clock
	startTime  time.Time
}

// New builds the metrics registry, the relay manager and the router.
func New(cfg *config.Config, logger *slog.Logger, clock clockwork.Clock) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	manager := relay.NewManager(relay.Options{
		SendBufferSize: cfg.SendBufferSize,
		SendTimeout:    cfg.SendTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		PingInterval:   cfg.PingInterval,
		PongTimeout:    cfg.PongTimeout,
		MaxMessageSize: cfg.MaxMessageSize,
		MaxConnections: cfg.MaxConnections,
		EventRate:      cfg.EventRate,
		EventBurst:     cfg.EventBurst,
		Clock:          clock,
		Logger:         logger,
		Metrics:        metrics.New(registry),
	})

	s := &Server{
		cfg:      cfg,
		manager:  manager,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(cfg.Origins()),
		},
		logger:    logger,
		clock:     clock,
		startTime: clock.Now(),
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Manager returns the relay behind this server.
func (s *Server) Manager() *relay.Manager { return s.manager }

// Handler returns the router, for embedding or tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start listens on the configured address. It returns nil after Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln. It returns nil after Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("relay listening", "addr", ln.Addr().String())
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Shutdown stops accepting HTTP requests, then closes every relay connection.
func (s *Server) Shutdown(ctx context.Context) error {
	httpErr := s.httpServer.Shutdown(ctx)
	relayErr := s.manager.Shutdown(ctx)
	return errors.Join(httpErr, relayErr)
}

func checkOrigin(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}

	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
