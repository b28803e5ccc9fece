// Package rerank re-scores retrieval candidates against the query
// using an LLM, for better precision than raw vector distance.
package rerank

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/chatmem/chatmem/internal/llm"
)

// Reranker scores candidates with an LLM. A nil Reranker (or one with
// a nil generator) is disabled; callers keep the distance ordering.
type Reranker struct {
	gen llm.Generator
}

// New creates a reranker backed by the given generator.
func New(gen llm.Generator) *Reranker {
	return &Reranker{gen: gen}
}

// Enabled reports whether reranking can run.
func (r *Reranker) Enabled() bool {
	return r != nil && r.gen != nil
}

// Rerank returns one relevance score per candidate, in input order,
// clamped to [0,1]. A line the model got wrong maps to 0.0 for that
// candidate rather than failing the whole pass. Only a failed LLM call
// returns an error; the caller then falls back to distance order.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []string) ([]float64, error) {
	if !r.Enabled() {
		return nil, fmt.Errorf("reranker disabled")
	}
	if len(candidates) == 0 {
		return []float64{}, nil
	}

	raw, err := llm.ScoreCandidates(ctx, r.gen, query, candidates)
	if err != nil {
		return nil, fmt.Errorf("score candidates: %w", err)
	}

	return parseScores(raw, len(candidates)), nil
}

// parseScores extracts one score per candidate from the model output.
// Missing or unparseable lines score 0.0.
func parseScores(raw string, n int) []float64 {
	scores := make([]float64, n)

	var numbers []float64
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		// Tolerate "3. 7" style numbering by taking the last field.
		fields := strings.Fields(line)
		v, err := strconv.ParseFloat(strings.TrimSuffix(fields[len(fields)-1], "."), 64)
		if err != nil {
			numbers = append(numbers, 0)
			continue
		}
		numbers = append(numbers, clamp(v/10))
	}

	if len(numbers) != n {
		slog.Warn("reranker returned wrong line count", "got", len(numbers), "want", n)
	}
	copy(scores, numbers)
	return scores
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
