// Package metrics holds the Prometheus collectors for the relay.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "gesture_relay"

// Relay holds Prometheus metrics for connections and fan-out.
type Relay struct {
	ActiveConnections   prometheus.Gauge
	ConnectionsTotal    prometheus.Counter
	ConnectionsRejected *prometheus.CounterVec
	Disconnects         *prometheus.CounterVec
	EventsReceived      prometheus.Counter
	EventsThrottled     prometheus.Counter
	Deliveries          *prometheus.CounterVec
	FanoutDuration      prometheus.Histogram
}

// New creates and registers relay metrics on the given registry.
func New(reg prometheus.Registerer) *Relay {
	m := &Relay{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of open WebSocket connections.",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "connections_total",
			Help:      "Total number of accepted WebSocket connections.",
		}),
		ConnectionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "connections_rejected_total",
			Help:      "Connections refused at accept time, by reason.",
		}, []string{"reason"}),
		Disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "disconnects_total",
			Help:      "Connections that left the open state, by reason.",
		}, []string{"reason"}),
		EventsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "events_received_total",
			Help:      "Inbound events fanned out to other connections.",
		}),
		EventsThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "events_throttled_total",
			Help:      "Inbound events dropped by the per-connection rate limiter.",
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "deliveries_total",
			Help:      "Per-recipient delivery attempts, by result.",
		}, []string{"result"}),
		FanoutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "fanout_duration_seconds",
			Help:      "Time spent enqueueing one event to all recipients.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}),
	}

	reg.MustRegister(
		m.ActiveConnections,
		m.ConnectionsTotal,
		m.ConnectionsRejected,
		m.Disconnects,
		m.EventsReceived,
		m.EventsThrottled,
		m.Deliveries,
		m.FanoutDuration,
	)
	return m
}
