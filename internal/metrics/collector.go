// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sync"
	"time"
)

// Operation names for the collector.
const (
	OpEmbed       = "embed"
	OpIndexAdd    = "index_add"
	OpIndexSearch = "index_search"
	OpRerank      = "rerank"
	OpSummarize   = "llm_summarize"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	Errors    int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	Errors      int64   `json:"errors"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`
}

// Snapshot represents the full engine statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64                      `json:"uptime_seconds"`
	Operations    map[string]OperationSnapshot `json:"operations"`
}

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records the timing of a successful operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// RecordError counts a failed operation.
func (c *Collector) RecordError(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getOrCreate(op).Errors++
}

// Observe times fn and records it under op, counting an error when fn
// returns one.
func (c *Collector) Observe(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	if err != nil {
		c.RecordError(op)
		return err
	}
	c.RecordTiming(op, time.Since(start))
	return nil
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Operations:    make(map[string]OperationSnapshot, len(c.ops)),
	}
	for op, m := range c.ops {
		if m.Count == 0 && m.Errors == 0 {
			continue
		}
		s := OperationSnapshot{
			Count:       m.Count,
			Errors:      m.Errors,
			TotalTimeMs: m.TotalTime.Milliseconds(),
			MaxTimeMs:   m.MaxTime.Milliseconds(),
		}
		if m.Count > 0 {
			s.AvgTimeMs = float64(m.TotalTime.Milliseconds()) / float64(m.Count)
			s.MinTimeMs = m.MinTime.Milliseconds()
		}
		snap.Operations[op] = s
	}
	return snap
}
