package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/chatmem/chatmem/internal/index"
	"github.com/chatmem/chatmem/internal/metrics"
	"github.com/chatmem/chatmem/internal/models"
)

// ReindexJob tracks a background reindex pass so callers can render
// progress while it runs.
type ReindexJob struct {
	total int64
	done  atomic.Int64

	finished chan struct{}
	err      error
}

// Total is the number of records the job will process.
func (j *ReindexJob) Total() int { return int(j.total) }

// Progress returns how many records have been processed so far.
func (j *ReindexJob) Progress() int { return int(j.done.Load()) }

// Done reports whether the job has finished.
func (j *ReindexJob) Done() bool {
	select {
	case <-j.finished:
		return true
	default:
		return false
	}
}

// Wait blocks until the job finishes and returns its error.
func (j *ReindexJob) Wait() error {
	<-j.finished
	return j.err
}

// Err returns the job error once finished, nil before that.
func (j *ReindexJob) Err() error {
	if !j.Done() {
		return nil
	}
	return j.err
}

// StartReindex re-embeds every record for the owner with the current
// embedder and rebuilds the owner's slice of the index. Records whose
// embedding still fails stay logged and unindexed. The pass runs in a
// goroutine; watch the returned job for progress.
func (s *Store) StartReindex(ctx context.Context, owner string) *ReindexJob {
	owner = normalizeOwner(owner)

	s.mu.RLock()
	snapshot := make([]models.MemoryRecord, len(s.records[owner]))
	copy(snapshot, s.records[owner])
	s.mu.RUnlock()

	job := &ReindexJob{
		total:    int64(len(snapshot)),
		finished: make(chan struct{}),
	}

	go func() {
		defer close(job.finished)
		job.err = s.reindex(ctx, owner, snapshot, job)
	}()
	return job
}

func (s *Store) reindex(ctx context.Context, owner string, snapshot []models.MemoryRecord, job *ReindexJob) error {
	embedFailed := 0
	for i := range snapshot {
		rec := &snapshot[i]

		err := s.collector.Observe(metrics.OpEmbed, func() error {
			vec, err := s.embedder.Embed(ctx, rec.Text)
			if err != nil {
				return err
			}
			rec.Embedding = vec
			return nil
		})
		if err != nil {
			// Keep the cached vector; a failed re-embed must not
			// degrade a record that was healthy before the pass.
			embedFailed++
			slog.Warn("reindex: embedding failed, keeping cached vector",
				"owner", owner, "id", rec.ID, "error", err)
		}
		job.done.Add(1)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Replace the owner's collection wholesale with the fresh vectors.
	if err := s.index.Drop(ctx, owner); err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}

	// Remember calls that completed while the pass was embedding
	// appended their records after the snapshot; carry them through
	// the rewrite so the pass never erases a durably logged memory.
	merged := append(snapshot, s.records[owner][len(snapshot):]...)

	unindexed := 0
	for i := range merged {
		rec := &merged[i]
		rec.Indexed = false
		if len(rec.Embedding) == 0 {
			unindexed++
			continue
		}
		if err := s.index.Add(ctx, *rec); err != nil {
			if errors.Is(err, index.ErrDimensionMismatch) {
				unindexed++
				continue
			}
			return fmt.Errorf("index record: %w", err)
		}
		rec.Indexed = true
	}

	if err := s.log.rewrite(owner, merged); err != nil {
		return fmt.Errorf("rewrite log: %w", err)
	}
	s.records[owner] = merged

	slog.Info("reindex finished", "owner", owner, "records", len(merged),
		"embed_failures", embedFailed, "unindexed", unindexed)
	return nil
}
