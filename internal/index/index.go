// Package index provides the flat vector index backing long-term
// memory, built on chromem-go with one collection per owner.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/chatmem/chatmem/internal/models"
)

// ErrDimensionMismatch indicates a vector whose length differs from
// the index's established dimension. The offending vector is rejected;
// the index and its dimension are never altered to accommodate it.
var ErrDimensionMismatch = errors.New("index dimension mismatch")

// Index stores embeddings and their source documents and answers
// nearest-neighbor queries. The dimension is fixed by the first
// successfully added vector and never changes for the life of the
// instance.
type Index struct {
	db *chromem.DB

	mu          sync.RWMutex
	dim         int
	collections map[string]*chromem.Collection
}

// New creates an empty in-memory index.
func New() *Index {
	return &Index{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}
}

// Dim returns the established embedding dimension, or 0 before the
// first add.
func (ix *Index) Dim() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dim
}

// Count returns the number of stored documents for an owner.
func (ix *Index) Count(owner string) int {
	ix.mu.RLock()
	col, ok := ix.collections[owner]
	ix.mu.RUnlock()
	if !ok {
		return 0
	}
	return col.Count()
}

func collectionName(owner string) string {
	if owner == "" {
		return "global"
	}
	return "owner_" + strings.ReplaceAll(owner, "/", "__")
}

func (ix *Index) getOrCreateCollection(owner string) (*chromem.Collection, error) {
	ix.mu.RLock()
	col, ok := ix.collections[owner]
	ix.mu.RUnlock()
	if ok {
		return col, nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if col, ok := ix.collections[owner]; ok {
		return col, nil
	}

	col, err := ix.db.GetOrCreateCollection(collectionName(owner), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	ix.collections[owner] = col
	return col, nil
}

// Add stores one record. Documents are added one at a time so a single
// bad embedding never discards a batch. The first successful add fixes
// the index dimension; later vectors of a different length are
// rejected with ErrDimensionMismatch.
func (ix *Index) Add(ctx context.Context, rec models.MemoryRecord) error {
	if len(rec.Embedding) == 0 {
		return fmt.Errorf("%w: empty embedding for record %s", ErrDimensionMismatch, rec.ID)
	}

	ix.mu.Lock()
	if ix.dim == 0 {
		ix.dim = len(rec.Embedding)
	} else if len(rec.Embedding) != ix.dim {
		dim := ix.dim
		ix.mu.Unlock()
		return fmt.Errorf("%w: got %d, want %d (record %s)",
			ErrDimensionMismatch, len(rec.Embedding), dim, rec.ID)
	}
	ix.mu.Unlock()

	col, err := ix.getOrCreateCollection(rec.Owner)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        rec.ID,
		Content:   rec.Text,
		Embedding: rec.Embedding,
		Metadata: map[string]string{
			"owner":      rec.Owner,
			"created_at": rec.Timestamp.Format(time.RFC3339),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Drop removes the owner's collection. The established dimension is
// kept; it is fixed for the life of the index.
func (ix *Index) Drop(ctx context.Context, owner string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.collections[owner]; !ok {
		return nil
	}
	if err := ix.db.DeleteCollection(collectionName(owner)); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	delete(ix.collections, owner)
	return nil
}

// Search returns up to k documents for the owner ordered by ascending
// distance. Searching an empty index returns an empty slice, not an
// error.
func (ix *Index) Search(ctx context.Context, owner string, query []float32, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}

	ix.mu.RLock()
	dim := ix.dim
	col, ok := ix.collections[owner]
	ix.mu.RUnlock()

	if !ok || col.Count() == 0 {
		return nil, nil
	}
	if dim != 0 && len(query) != dim {
		return nil, fmt.Errorf("%w: query got %d, want %d", ErrDimensionMismatch, len(query), dim)
	}

	// chromem requires nResults <= collection size.
	if n := col.Count(); k > n {
		k = n
	}

	results, err := col.QueryEmbedding(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	out := make([]models.SearchResult, 0, len(results))
	for _, r := range results {
		created, err := time.Parse(time.RFC3339, r.Metadata["created_at"])
		if err != nil {
			slog.Warn("skipping result with bad timestamp", "id", r.ID, "error", err)
			continue
		}
		out = append(out, models.SearchResult{
			Record: models.MemoryRecord{
				ID:        r.ID,
				Owner:     owner,
				Text:      r.Content,
				Embedding: r.Embedding,
				Indexed:   true,
				Timestamp: created,
			},
			// chromem reports cosine similarity in [-1,1]
			Distance: 1 - r.Similarity,
		})
	}
	return out, nil
}
