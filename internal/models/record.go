// Package models defines the data types shared across the memory engine.
package models

import "time"

// MemoryRecord is one retained unit of conversation: the text that was
// embedded and indexed, plus enough metadata to rebuild the index from
// the document log after a restart.
type MemoryRecord struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding,omitempty"`
	Indexed   bool      `json:"indexed"`
	Timestamp time.Time `json:"timestamp"`
}

// SearchResult pairs a retrieved document with its vector distance
// (lower is closer). Rerank scores, when present, replace the distance
// ordering but not the field.
type SearchResult struct {
	Record   MemoryRecord `json:"record"`
	Distance float32      `json:"distance"`
}
