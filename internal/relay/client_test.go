package relay

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HugoManns/gesture-relay/internal/metrics"
)

// fillQueue pushes n frames of size bytes straight onto c's send queue.
func fillQueue(t *testing.T, c *Client, n, size int) {
	t.Helper()
	frame := bytes.Repeat([]byte("x"), size)
	for i := 0; i < n; i++ {
		require.NoError(t, c.enqueue(Event{Kind: websocket.BinaryMessage, Data: frame}, 0))
	}
}

func waitClosed(t *testing.T, c *Client, d time.Duration) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(d):
		t.Fatalf("client %s still %s after %s", c.ID(), c.State(), d)
	}
}

func TestClose_ClosingClientStopsRelaying(t *testing.T) {
	tr := newTestRelay(t, Options{SendBufferSize: 32, WriteTimeout: time.Second})
	a, _ := tr.dial(t)
	b, bClient := tr.dial(t)

	// b never reads, so its write goroutine stays blocked on the socket and
	// the client sits in Closing until the write deadline passes.
	fillQueue(t, bClient, 30, 1<<20)
	bClient.close(reasonSlowConsumer)

	assert.Equal(t, StateClosing, bClient.State())
	_, ok := tr.m.Registry().Get(bClient.ID())
	assert.False(t, ok)

	sendText(t, b, "ghost")
	expectSilence(t, a, 300*time.Millisecond)
}

func TestWriteLoop_WriteErrorClosesClient(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	tr := newTestRelay(t, Options{SendBufferSize: 64, WriteTimeout: 200 * time.Millisecond, Metrics: m})
	a, _ := tr.dial(t)
	_, bClient := tr.dial(t)

	fillQueue(t, bClient, 64, 1<<20)
	waitClosed(t, bClient, 5*time.Second)

	assert.Equal(t, StateClosed, bClient.State())
	_, ok := tr.m.Registry().Get(bClient.ID())
	assert.False(t, ok)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Disconnects.WithLabelValues(string(reasonWriteError))))

	res := tr.m.Fanout(context.Background(), "outside", Event{Kind: websocket.TextMessage, Data: []byte("after")})
	assert.Equal(t, FanoutResult{Recipients: 1, Delivered: 1}, res)
	assert.Equal(t, "after", readText(t, a))
}

// readInBackground keeps conn's reader running so control frames are handled.
func readInBackground(conn *websocket.Conn) {
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func TestReadLoop_MissingPongClosesClient(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	tr := newTestRelay(t, Options{
		PingInterval: 20 * time.Millisecond,
		PongTimeout:  150 * time.Millisecond,
		Metrics:      m,
	})

	silent, silentClient := tr.dial(t)
	silent.SetPingHandler(func(string) error { return nil })
	readInBackground(silent)

	healthy, healthyClient := tr.dial(t)
	readInBackground(healthy)

	waitClosed(t, silentClient, 2*time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Disconnects.WithLabelValues(string(reasonReadError))))

	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, StateOpen, healthyClient.State())
	assert.Equal(t, 1, tr.m.Len())
}
