package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder wraps Mock and counts calls; fails while failing is set.
type countingEmbedder struct {
	*Mock
	calls   int
	failing bool
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	if c.failing {
		return nil, errors.New("connection refused")
	}
	return c.Mock.EmbedBatch(ctx, texts)
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func newFailoverForTest(t *testing.T, threshold int) (*Failover, *countingEmbedder, *countingEmbedder) {
	t.Helper()
	primary := &countingEmbedder{Mock: NewMock(384)}
	fallback := &countingEmbedder{Mock: NewMock(384)}
	f := NewFailover(primary, fallback, FailoverConfig{
		Threshold: threshold,
		Window:    30 * time.Second,
		Timeout:   time.Second,
	})
	return f, primary, fallback
}

func TestFailoverUsesPrimaryWhenHealthy(t *testing.T) {
	f, primary, fallback := newFailoverForTest(t, 3)
	ctx := context.Background()

	vec, err := f.Embed(ctx, "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 384)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, fallback.calls)
	assert.False(t, f.Latched())
}

func TestFailoverLatchesAfterThreshold(t *testing.T) {
	f, primary, fallback := newFailoverForTest(t, 3)
	ctx := context.Background()
	primary.failing = true

	// Each failed primary call is served by the fallback.
	for i := 0; i < 3; i++ {
		vec, err := f.Embed(ctx, "hello")
		require.NoError(t, err)
		assert.Len(t, vec, 384)
	}

	require.True(t, f.Latched(), "should latch after 3 failures")
	assert.Equal(t, 3, primary.calls)

	// Even a recovered primary is never retried in this process.
	primary.failing = false
	fallbackCallsBefore := fallback.calls
	for i := 0; i < 5; i++ {
		_, err := f.Embed(ctx, "world")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, primary.calls, "primary must not be re-attempted after latch")
	assert.Equal(t, fallbackCallsBefore+5, fallback.calls)
}

func TestFailoverBothPathsDown(t *testing.T) {
	f, primary, fallback := newFailoverForTest(t, 3)
	primary.failing = true
	fallback.failing = true

	_, err := f.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFailoverEmptyTextZeroVector(t *testing.T) {
	f, primary, _ := newFailoverForTest(t, 3)

	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"whitespace", "   \n\t"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			callsBefore := primary.calls
			vec, err := f.Embed(context.Background(), tt.in)
			require.NoError(t, err)
			require.Len(t, vec, 384)
			for _, v := range vec {
				assert.Zero(t, v)
			}
			assert.Equal(t, callsBefore, primary.calls, "empty text must not hit the backend")
		})
	}
}

func TestFailoverBatchMixedEmpty(t *testing.T) {
	f, _, _ := newFailoverForTest(t, 3)

	vectors, err := f.EmbedBatch(context.Background(), []string{"a", "", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	assert.NotEqual(t, vectors[0], vectors[2], "distinct texts get distinct vectors")
	for _, v := range vectors[1] {
		assert.Zero(t, v)
	}
}

func TestMockDeterminism(t *testing.T) {
	m := NewMock(384)
	ctx := context.Background()

	a1, err := m.Embed(ctx, "user likes cats")
	require.NoError(t, err)
	a2, err := m.Embed(ctx, "user likes cats")
	require.NoError(t, err)
	b, err := m.Embed(ctx, "user lives in Tokyo")
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, b)
}
