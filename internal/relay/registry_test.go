package relay

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndSnapshot(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Client{id: "a"}))
	require.NoError(t, r.Register(&Client{id: "b"}))

	ids := make([]string, 0, 2)
	for _, c := range r.Snapshot() {
		ids = append(ids, c.ID())
	}
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_DuplicateIDRejected(t *testing.T) {
	r := NewRegistry()
	first := &Client{id: "dup"}
	second := &Client{id: "dup"}

	require.NoError(t, r.Register(first))
	err := r.Register(second)
	require.ErrorIs(t, err, ErrDuplicateID)

	got, ok := r.Get("dup")
	require.True(t, ok)
	assert.Same(t, first, got, "existing entry must not be overwritten")
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_UnregisterIsIdempotent(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Client{id: "a"}))

	assert.True(t, r.Unregister("a"))
	assert.False(t, r.Unregister("a"))
	assert.False(t, r.Unregister("never-registered"))
	assert.Zero(t, r.Len())
}

func TestRegistry_SnapshotIsACopy(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Client{id: "a"}))

	snap := r.Snapshot()
	require.NoError(t, r.Register(&Client{id: "b"}))
	r.Unregister("a")

	require.Len(t, snap, 1)
	assert.Equal(t, "a", snap[0].ID())
}

func TestRegistry_ConcurrentRegisterAndSnapshot(t *testing.T) {
	r := NewRegistry()
	const n = 200

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, r.Register(&Client{id: fmt.Sprintf("c-%d", i)}))
		}(i)
		go func() {
			defer wg.Done()
			seen := make(map[string]bool)
			for _, c := range r.Snapshot() {
				assert.False(t, seen[c.ID()], "snapshot observed %s twice", c.ID())
				seen[c.ID()] = true
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, n, r.Len())
	seen := make(map[string]bool, n)
	for _, c := range r.Snapshot() {
		seen[c.ID()] = true
	}
	assert.Len(t, seen, n)
}

func TestRegistry_ConcurrentRegisterUnregister(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c-%d", i)
			assert.NoError(t, r.Register(&Client{id: id}))
			if i%2 == 0 {
				assert.True(t, r.Unregister(id))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, r.Len())
	for _, c := range r.Snapshot() {
		var n int
		_, err := fmt.Sscanf(c.ID(), "c-%d", &n)
		require.NoError(t, err)
		assert.Equal(t, 1, n%2)
	}
}
