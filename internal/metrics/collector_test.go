package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorTimings(t *testing.T) {
	c := NewCollector()

	c.RecordTiming(OpEmbed, 10*time.Millisecond)
	c.RecordTiming(OpEmbed, 30*time.Millisecond)
	c.RecordError(OpEmbed)

	snap := c.Snapshot()
	op, ok := snap.Operations[OpEmbed]
	require.True(t, ok)
	assert.Equal(t, int64(2), op.Count)
	assert.Equal(t, int64(1), op.Errors)
	assert.Equal(t, int64(40), op.TotalTimeMs)
	assert.Equal(t, int64(10), op.MinTimeMs)
	assert.Equal(t, int64(30), op.MaxTimeMs)
	assert.InDelta(t, 20.0, op.AvgTimeMs, 0.01)
}

func TestCollectorObserve(t *testing.T) {
	c := NewCollector()

	require.NoError(t, c.Observe(OpIndexAdd, func() error { return nil }))
	require.Error(t, c.Observe(OpIndexAdd, func() error { return errors.New("boom") }))

	snap := c.Snapshot()
	op := snap.Operations[OpIndexAdd]
	assert.Equal(t, int64(1), op.Count)
	assert.Equal(t, int64(1), op.Errors)
}

func TestCollectorEmptySnapshot(t *testing.T) {
	c := NewCollector()
	snap := c.Snapshot()
	assert.Empty(t, snap.Operations)
	assert.GreaterOrEqual(t, snap.UptimeSeconds, 0.0)
}
