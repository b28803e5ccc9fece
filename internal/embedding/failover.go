package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// FailoverConfig tunes the fallback latch.
type FailoverConfig struct {
	// Threshold is the number of primary failures inside Window that
	// flips the provider to the fallback for the rest of the process.
	Threshold int

	// Window bounds how far back failures count toward the threshold.
	Window time.Duration

	// Timeout applies to every backend call.
	Timeout time.Duration
}

// Failover routes embedding calls to a remote primary until it proves
// unreliable, then latches to the local fallback permanently. The latch
// is deliberate: flipping back and forth between providers with
// different dimensions would poison a live vector index, so once the
// fallback is engaged the primary is never retried in this process.
type Failover struct {
	primary  Embedder
	fallback Embedder
	cfg      FailoverConfig

	mu       sync.Mutex
	latched  bool
	failures []time.Time
}

// Compile-time check that Failover implements Embedder.
var _ Embedder = (*Failover)(nil)

// NewFailover wraps primary with the fallback latch.
func NewFailover(primary, fallback Embedder, cfg FailoverConfig) *Failover {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.Window <= 0 {
		cfg.Window = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Failover{
		primary:  primary,
		fallback: fallback,
		cfg:      cfg,
	}
}

// Latched reports whether the fallback is engaged.
func (f *Failover) Latched() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latched
}

// Model returns the active backend's model name.
func (f *Failover) Model() string {
	return f.active().Model()
}

// Dimension returns the active backend's vector dimension. Callers
// that pin an index dimension must treat a change here as a
// configuration fault, not something to reconcile.
func (f *Failover) Dimension() int {
	return f.active().Dimension()
}

// Embed generates an embedding for a single text. Empty input maps to
// a zero vector placeholder, never an error.
func (f *Failover) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts. Empty strings
// are zero-filled locally; only non-empty texts reach the backend.
func (f *Failover) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, len(texts))
	var pending []string
	var pendingIdx []int
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			continue
		}
		pending = append(pending, t)
		pendingIdx = append(pendingIdx, i)
	}

	if len(pending) > 0 {
		vectors, err := f.embedActive(ctx, pending)
		if err != nil {
			return nil, err
		}
		for j, i := range pendingIdx {
			out[i] = vectors[j]
		}
	}

	dim := f.Dimension()
	for i := range out {
		if out[i] == nil {
			out[i] = zeroVector(dim)
		}
	}
	return out, nil
}

func (f *Failover) active() Embedder {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latched {
		return f.fallback
	}
	return f.primary
}

// embedActive calls the primary unless latched. A primary failure is
// counted toward the latch threshold and the call is served by the
// fallback so the caller still gets a vector when possible.
func (f *Failover) embedActive(ctx context.Context, texts []string) ([][]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	if f.Latched() {
		vectors, err := f.fallback.EmbedBatch(callCtx, texts)
		if err != nil {
			return nil, fmt.Errorf("%w: fallback: %v", ErrUnavailable, err)
		}
		return vectors, nil
	}

	vectors, err := f.primary.EmbedBatch(callCtx, texts)
	if err == nil {
		return vectors, nil
	}

	f.recordFailure(err)

	fbCtx, fbCancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer fbCancel()
	vectors, fbErr := f.fallback.EmbedBatch(fbCtx, texts)
	if fbErr != nil {
		return nil, fmt.Errorf("%w: primary: %v; fallback: %v", ErrUnavailable, err, fbErr)
	}
	return vectors, nil
}

func (f *Failover) recordFailure(cause error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latched {
		return
	}

	now := time.Now()
	cutoff := now.Add(-f.cfg.Window)
	kept := f.failures[:0]
	for _, t := range f.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	f.failures = append(kept, now)

	if len(f.failures) >= f.cfg.Threshold {
		f.latched = true
		slog.Warn("embedding provider latched to fallback",
			"primary", f.primary.Model(),
			"fallback", f.fallback.Model(),
			"failures", len(f.failures),
			"window", f.cfg.Window,
			"last_error", cause)
	}
}
