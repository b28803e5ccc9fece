// Package store implements the long-term RAG memory store: an
// embedded vector index paired with a durable per-owner document log.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatmem/chatmem/internal/embedding"
	"github.com/chatmem/chatmem/internal/index"
	"github.com/chatmem/chatmem/internal/metrics"
	"github.com/chatmem/chatmem/internal/models"
	"github.com/chatmem/chatmem/internal/rerank"
)

// ErrNotIndexed indicates a memory was durably persisted to the
// document log but could not be added to the vector index (embedding
// failure or dimension fault). A later reindex pass recovers it.
var ErrNotIndexed = errors.New("memory persisted but not indexed")

const defaultOwner = "default"

// Store owns the vector index and its document log. All mutation goes
// through Remember/Reindex under the write lock; queries share a read
// lock so they never interleave with an in-flight write. Embedding
// always happens before lock acquisition since it can block on network
// I/O for seconds.
type Store struct {
	embedder  embedding.Embedder
	reranker  *rerank.Reranker
	collector *metrics.Collector
	log       *docLog
	index     *index.Index

	mu sync.RWMutex
	// records mirrors the document log with live indexed status.
	records map[string][]models.MemoryRecord
}

// Open loads the document log under dataDir and rebuilds the vector
// index from cached embeddings. Entries without a usable embedding
// stay unindexed until a reindex pass.
func Open(dataDir string, embedder embedding.Embedder, reranker *rerank.Reranker, collector *metrics.Collector) (*Store, error) {
	if collector == nil {
		collector = metrics.NewCollector()
	}
	s := &Store{
		embedder:  embedder,
		reranker:  reranker,
		collector: collector,
		log:       newDocLog(dataDir),
		index:     index.New(),
		records:   make(map[string][]models.MemoryRecord),
	}
	if err := s.rebuild(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) rebuild() error {
	owners, err := s.log.owners()
	if err != nil {
		return err
	}

	ctx := context.Background()
	total, pending := 0, 0
	for _, owner := range owners {
		records, err := s.log.load(owner)
		if err != nil {
			return fmt.Errorf("load log for %s: %w", owner, err)
		}
		for i := range records {
			rec := &records[i]
			rec.Indexed = false
			if len(rec.Embedding) > 0 {
				if err := s.index.Add(ctx, *rec); err == nil {
					rec.Indexed = true
				} else if !errors.Is(err, index.ErrDimensionMismatch) {
					return fmt.Errorf("rebuild index for %s: %w", owner, err)
				}
			}
			if !rec.Indexed {
				pending++
			}
			total++
		}
		s.records[owner] = records
	}

	if total > 0 {
		slog.Info("memory store loaded",
			"owners", len(owners), "records", total, "pending_reindex", pending)
	}
	return nil
}

func normalizeOwner(owner string) string {
	if owner == "" {
		return defaultOwner
	}
	return owner
}

// Remember embeds text and adds it to the index and the document log.
// Texts beyond the chunking threshold are split into sentence-aware
// chunks, each stored as its own record. When embedding fails on both
// paths, or a vector does not fit the index dimension, the text is
// still durably logged and ErrNotIndexed is returned so callers can
// tell degraded from healthy.
func (s *Store) Remember(ctx context.Context, owner, text string) error {
	owner = normalizeOwner(owner)
	chunks := chunkText(text)
	if len(chunks) == 0 {
		return nil
	}

	now := time.Now().UTC()
	recs := make([]models.MemoryRecord, len(chunks))
	for i, chunk := range chunks {
		recs[i] = models.MemoryRecord{
			ID:        uuid.NewString(),
			Owner:     owner,
			Text:      chunk,
			Timestamp: now,
		}
	}

	// Embed before taking the write lock.
	embedErr := s.collector.Observe(metrics.OpEmbed, func() error {
		vecs, err := s.embedder.EmbedBatch(ctx, chunks)
		if err != nil {
			return err
		}
		for i := range recs {
			recs[i].Embedding = vecs[i]
		}
		return nil
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	var indexErr error
	for i := range recs {
		rec := &recs[i]
		if embedErr == nil {
			err := s.collector.Observe(metrics.OpIndexAdd, func() error {
				return s.index.Add(ctx, *rec)
			})
			if err != nil {
				indexErr = err
			}
			rec.Indexed = err == nil
		}

		if err := s.log.append(owner, *rec); err != nil {
			return fmt.Errorf("persist memory: %w", err)
		}
		s.records[owner] = append(s.records[owner], *rec)
	}

	switch {
	case embedErr != nil:
		slog.Warn("memory logged without embedding", "owner", owner, "error", embedErr)
		return fmt.Errorf("%w: %v", ErrNotIndexed, embedErr)
	case indexErr != nil:
		slog.Warn("memory logged but rejected by index", "owner", owner, "error", indexErr)
		return fmt.Errorf("%w: %v", ErrNotIndexed, indexErr)
	}
	return nil
}

// Search retrieves the k most relevant records for the query text.
// With reranking requested and available, 2k candidates are fetched,
// rescored, and the top k returned; a rerank failure falls back to the
// distance ordering.
func (s *Store) Search(ctx context.Context, owner, query string, k int, useRerank bool) ([]models.SearchResult, error) {
	owner = normalizeOwner(owner)
	if strings.TrimSpace(query) == "" || k <= 0 {
		return nil, nil
	}

	var queryVec []float32
	err := s.collector.Observe(metrics.OpEmbed, func() error {
		vec, err := s.embedder.Embed(ctx, query)
		if err != nil {
			return err
		}
		queryVec = vec
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	s.mu.RLock()
	rr := s.reranker
	s.mu.RUnlock()

	rerankable := useRerank && rr.Enabled()
	fetch := k
	if rerankable {
		fetch = 2 * k
	}

	var results []models.SearchResult
	s.mu.RLock()
	err = s.collector.Observe(metrics.OpIndexSearch, func() error {
		var searchErr error
		results, searchErr = s.index.Search(ctx, owner, queryVec, fetch)
		return searchErr
	})
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	if rerankable {
		results = s.rerankResults(ctx, rr, query, results)
	}
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Query returns the top k documents as plain text snippets.
func (s *Store) Query(ctx context.Context, owner, query string, k int, useRerank bool) ([]string, error) {
	results, err := s.Search(ctx, owner, query, k, useRerank)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(results))
	for _, r := range results {
		texts = append(texts, r.Record.Text)
	}
	return texts, nil
}

func (s *Store) rerankResults(ctx context.Context, rr *rerank.Reranker, query string, results []models.SearchResult) []models.SearchResult {
	candidates := make([]string, len(results))
	for i, r := range results {
		candidates[i] = r.Record.Text
	}

	var scores []float64
	err := s.collector.Observe(metrics.OpRerank, func() error {
		var rerankErr error
		scores, rerankErr = rr.Rerank(ctx, query, candidates)
		return rerankErr
	})
	if err != nil {
		slog.Warn("rerank failed, keeping distance order", "error", err)
		return results
	}

	type scored struct {
		result models.SearchResult
		score  float64
	}
	pairs := make([]scored, len(results))
	for i, r := range results {
		pairs[i] = scored{result: r, score: scores[i]}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].score > pairs[j].score
	})
	reranked := make([]models.SearchResult, len(pairs))
	for i, p := range pairs {
		reranked[i] = p.result
	}
	return reranked
}

// Pending returns how many of the owner's records await reindexing.
func (s *Store) Pending(owner string) int {
	owner = normalizeOwner(owner)
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, rec := range s.records[owner] {
		if !rec.Indexed {
			n++
		}
	}
	return n
}

// Count returns how many records the owner has in the document log.
func (s *Store) Count(owner string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[normalizeOwner(owner)])
}

// Owners lists every owner known to the store.
func (s *Store) Owners() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owners := make([]string, 0, len(s.records))
	for owner := range s.records {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	return owners
}

// SetReranker swaps the reranker, used when the language model is
// initialized lazily after the store is opened.
func (s *Store) SetReranker(r *rerank.Reranker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reranker = r
}

// Metrics exposes the store's collector.
func (s *Store) Metrics() *metrics.Collector {
	return s.collector
}
