package llm

import (
	"context"
	"fmt"
	"strings"
)

const coreSummarySystem = `You maintain a compact long-term profile of a chat user.
Fold the previous profile and the recent conversation into a new profile.
Keep only durable facts: preferences, standing commitments, relationships, recurring topics.
Drop small talk. Write at most 100 words of plain prose, no headings or lists.`

const rerankSystem = `You score how relevant each candidate memory is to a query.
Respond with one line per candidate, in the given order, each line a single number from 0 to 10.
No other text.`

// SummarizeCore folds the previous core-memory summary and recent
// turns into a new rolling synopsis.
func SummarizeCore(ctx context.Context, gen Generator, previous string, recent []string) (string, error) {
	var b strings.Builder
	if strings.TrimSpace(previous) != "" {
		b.WriteString("Previous profile:\n")
		b.WriteString(previous)
		b.WriteString("\n\n")
	}
	b.WriteString("Recent conversation:\n")
	for _, line := range recent {
		b.WriteString(line)
		b.WriteString("\n")
	}

	summary, err := gen.GenerateWithSystem(ctx, coreSummarySystem, b.String())
	if err != nil {
		return "", fmt.Errorf("summarize core memory: %w", err)
	}
	return strings.TrimSpace(summary), nil
}

// ScoreCandidates asks the model to rate each candidate's relevance to
// the query. The raw response is returned for the caller to parse; the
// reranker owns clamping and per-line recovery.
func ScoreCandidates(ctx context.Context, gen Generator, query string, candidates []string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\nCandidates:\n", query)
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}

	return gen.GenerateWithSystem(ctx, rerankSystem, b.String())
}
