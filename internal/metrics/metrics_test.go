package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ActiveConnections.Inc()
	m.ConnectionsRejected.WithLabelValues("duplicate_id").Inc()
	m.Disconnects.WithLabelValues("peer_closed").Inc()
	m.Deliveries.WithLabelValues("delivered").Add(2)
	m.FanoutDuration.Observe(0.001)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["gesture_relay_websocket_active_connections"])
	assert.True(t, names["gesture_relay_websocket_connections_rejected_total"])
	assert.True(t, names["gesture_relay_relay_deliveries_total"])
	assert.True(t, names["gesture_relay_relay_fanout_duration_seconds"])

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("delivered")))
}

func TestNew_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
