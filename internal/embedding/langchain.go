package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/chatmem/chatmem/internal/config"
)

// Langchain wraps a langchaingo embedder with dimension validation.
type Langchain struct {
	model     embeddings.Embedder
	dimension int
	modelName string
}

// Compile-time check that Langchain implements Embedder.
var _ Embedder = (*Langchain)(nil)

// NewLangchain creates an embedder for the given provider and model.
func NewLangchain(provider config.Provider, modelName string, dimension int, cfg config.Config) (*Langchain, error) {
	var model embeddings.Embedder
	var err error

	switch provider {
	case config.ProviderOllama:
		llm, ollamaErr := ollama.New(
			ollama.WithModel(modelName),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if ollamaErr != nil {
			return nil, fmt.Errorf("create ollama client: %w", ollamaErr)
		}
		model, err = embeddings.NewEmbedder(llm)
		if err != nil {
			return nil, fmt.Errorf("create ollama embedder: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		llm, openaiErr := openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithEmbeddingModel(modelName),
		)
		if openaiErr != nil {
			return nil, fmt.Errorf("create openai client: %w", openaiErr)
		}
		model, err = embeddings.NewEmbedder(llm)
		if err != nil {
			return nil, fmt.Errorf("create openai embedder: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", provider)
	}

	return &Langchain{
		model:     model,
		dimension: dimension,
		modelName: modelName,
	}, nil
}

// Embed generates an embedding vector for text.
func (e *Langchain) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *Langchain) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	slog.Debug("embedding batch", "model", e.modelName, "count", len(texts))

	start := time.Now()
	vectors, err := e.model.EmbedDocuments(ctx, texts)
	duration := time.Since(start)

	if err != nil {
		slog.Warn("embedding failed", "model", e.modelName, "count", len(texts),
			"duration_ms", duration.Milliseconds(), "error", err)
		return nil, fmt.Errorf("embed: %w", err)
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("count mismatch: got %d, want %d", len(vectors), len(texts))
	}

	for i, v := range vectors {
		if len(v) != e.dimension {
			return nil, fmt.Errorf("%w: embedding %d got %d, want %d (model: %s)",
				ErrDimensionMismatch, i, len(v), e.dimension, e.modelName)
		}
	}

	slog.Debug("embedding complete", "model", e.modelName, "count", len(texts),
		"duration_ms", duration.Milliseconds())
	return vectors, nil
}

// Model returns the embedding model name.
func (e *Langchain) Model() string {
	return e.modelName
}

// Dimension returns the expected embedding dimension.
func (e *Langchain) Dimension() int {
	return e.dimension
}
