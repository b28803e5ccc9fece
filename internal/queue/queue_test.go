package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerOwnerOrdering(t *testing.T) {
	q, err := New(8)
	require.NoError(t, err)
	defer q.Close()

	var mu sync.Mutex
	got := make(map[string][]int)

	for i := 0; i < 100; i++ {
		i := i
		for _, owner := range []string{"alice", "bob", "carol"} {
			owner := owner
			require.NoError(t, q.Submit(owner, func() {
				mu.Lock()
				got[owner] = append(got[owner], i)
				mu.Unlock()
			}))
		}
	}

	q.Drain()

	for owner, seq := range got {
		require.Len(t, seq, 100, "owner %s", owner)
		for i, v := range seq {
			assert.Equal(t, i, v, "owner %s out of order at %d", owner, i)
		}
	}
}

func TestSubmitAfterClose(t *testing.T) {
	q, err := New(2)
	require.NoError(t, err)
	q.Close()

	err = q.Submit("x", func() {})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSubmitUnwindDropsOnlyOwnTask(t *testing.T) {
	q, err := New(1)
	require.NoError(t, err)

	// A chain can be left idle with pending tasks after a failed
	// runner hand-off; the next failed Submit must remove its own
	// task, not the pending one.
	pending := func() {}
	q.chains["alice"] = &chain{tasks: []func(){pending}}
	q.wg.Add(1)

	q.pool.Release()
	err = q.Submit("alice", func() {
		t.Error("task from a failed submit must never be kept")
	})
	require.Error(t, err)

	q.mu.Lock()
	defer q.mu.Unlock()
	c := q.chains["alice"]
	assert.False(t, c.running)
	require.Len(t, c.tasks, 1, "the pending task must survive the unwind")
}

func TestSubmitUnwindLeavesChainRestartable(t *testing.T) {
	q, err := New(1)
	require.NoError(t, err)
	q.pool.Release()

	err = q.Submit("alice", func() {})
	require.Error(t, err)

	q.mu.Lock()
	defer q.mu.Unlock()
	c := q.chains["alice"]
	assert.Empty(t, c.tasks)
	assert.False(t, c.running)
}

func TestDrainWaitsForAll(t *testing.T) {
	q, err := New(2)
	require.NoError(t, err)
	defer q.Close()

	var mu sync.Mutex
	count := 0
	for i := 0; i < 50; i++ {
		require.NoError(t, q.Submit("solo", func() {
			mu.Lock()
			count++
			mu.Unlock()
		}))
	}

	q.Drain()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 50, count)
}
