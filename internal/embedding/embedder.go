// Package embedding provides text embedding generation with a remote
// primary backend and a local fallback that engages permanently after
// repeated failures.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/chatmem/chatmem/internal/config"
)

// Sentinel errors for embedding operations. Use errors.Is() in calling
// code to distinguish degraded service from programmer error.
var (
	// ErrUnavailable indicates both the primary and the fallback
	// backend failed to produce an embedding.
	ErrUnavailable = errors.New("embedding unavailable")

	// ErrDimensionMismatch indicates a backend returned a vector whose
	// length differs from its declared dimension. This is a
	// configuration error, never reconciled silently.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Embedder defines the interface for text embedding providers.
type Embedder interface {
	// Embed generates an embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, one vector
	// per input in the same order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the name of the embedding model being used.
	Model() string

	// Dimension returns the embedding vector dimension.
	// CRITICAL: must match the vector index dimension.
	Dimension() int
}

// New creates the engine's embedder from configuration: the primary
// backend wrapped in the failover latch. A mock provider short-circuits
// to the deterministic hash embedder with no fallback.
func New(cfg config.Config) (Embedder, error) {
	if cfg.EmbedProvider == config.ProviderMock {
		return NewMock(cfg.EmbedDimension), nil
	}

	primary, err := NewLangchain(cfg.EmbedProvider, cfg.EmbedModel, cfg.EmbedDimension, cfg)
	if err != nil {
		return nil, fmt.Errorf("create primary embedder: %w", err)
	}

	// The fallback is always the local Ollama model; it shares no
	// infrastructure with a remote primary.
	fallback, err := NewLangchain(config.ProviderOllama, cfg.FallbackModel, cfg.FallbackDimension, cfg)
	if err != nil {
		return nil, fmt.Errorf("create fallback embedder: %w", err)
	}

	return NewFailover(primary, fallback, FailoverConfig{
		Threshold: cfg.FailureThreshold,
		Window:    cfg.FailureWindow,
		Timeout:   cfg.EmbedTimeout,
	}), nil
}

// zeroVector returns the explicit placeholder for empty input text.
func zeroVector(dim int) []float32 {
	return make([]float32, dim)
}
