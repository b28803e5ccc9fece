package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Mock is a deterministic hash-based embedder for tests and offline
// runs. Identical texts always produce identical vectors; different
// texts are near-orthogonal. It carries no semantic signal.
type Mock struct {
	dimension int
}

// Compile-time check that Mock implements Embedder.
var _ Embedder = (*Mock)(nil)

// NewMock creates a mock embedder with the given dimension.
func NewMock(dimension int) *Mock {
	if dimension <= 0 {
		dimension = 384
	}
	return &Mock{dimension: dimension}
}

// Embed creates a deterministic embedding from text.
func (m *Mock) Embed(_ context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return zeroVector(m.dimension), nil
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	embedding := make([]float32, m.dimension)
	for i := 0; i < m.dimension; i++ {
		// Linear congruential generator seeded by the text hash
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}

	return normalize(embedding), nil
}

// EmbedBatch embeds each text independently.
func (m *Mock) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Model returns the mock model identifier.
func (m *Mock) Model() string {
	return "mock-hash"
}

// Dimension returns the embedding size.
func (m *Mock) Dimension() int {
	return m.dimension
}

// normalize converts an embedding to a unit vector.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
