// Package window implements the per-user sliding context window fed
// to the LLM. When the window overflows, turns are scored and the
// lowest-value ones are evicted to a registered callback, typically
// the long-term memory store.
package window

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/chatmem/chatmem/internal/models"
)

// EvictFunc receives turns pushed out of the window before they are
// discarded, so they can be retained long-term.
type EvictFunc func(owner string, turn models.ConversationTurn)

// Manager holds one sliding window per owner. It only ever reaches
// the long-term store through the eviction callback; it never touches
// store internals.
type Manager struct {
	maxTurns int
	scorer   Scorer
	onEvict  EvictFunc

	mu      sync.Mutex
	windows map[string]*userWindow
}

type userWindow struct {
	turns []models.ConversationTurn
	// evictedSummary is a one-line digest of the most recently evicted
	// turns, prepended to prompt messages so the model keeps a trace
	// of dropped context.
	evictedSummary string
}

// New creates a window manager keeping at most maxTurns turns per
// owner. A nil scorer uses DefaultScorer; a nil onEvict discards
// evicted turns.
func New(maxTurns int, scorer Scorer, onEvict EvictFunc) *Manager {
	if maxTurns <= 0 {
		maxTurns = 20
	}
	if scorer == nil {
		scorer = DefaultScorer
	}
	return &Manager{
		maxTurns: maxTurns,
		scorer:   scorer,
		onEvict:  onEvict,
		windows:  make(map[string]*userWindow),
	}
}

// AddTurn appends a turn to the owner's window, evicting the
// lowest-scored turns when the window exceeds its bound. The system
// preamble, when present as the first entry, is never evicted.
func (m *Manager) AddTurn(owner string, turn models.ConversationTurn) {
	var evicted []models.ConversationTurn

	m.mu.Lock()
	w, ok := m.windows[owner]
	if !ok {
		w = &userWindow{}
		m.windows[owner] = w
	}
	w.turns = append(w.turns, turn)
	if len(w.turns) > m.maxTurns {
		evicted = m.evict(w)
	}
	m.mu.Unlock()

	for _, t := range evicted {
		slog.Debug("turn evicted from context window", "owner", owner)
		if m.onEvict != nil {
			m.onEvict(owner, t)
		}
	}
}

// evict trims w.turns down to maxTurns, keeping the highest-scoring
// turns. Relative order of the survivors is preserved. Ties evict the
// earliest turn first. Caller holds m.mu.
func (m *Manager) evict(w *userWindow) []models.ConversationTurn {
	pinned := 0
	if len(w.turns) > 0 && w.turns[0].System {
		pinned = 1
	}

	type scored struct {
		pos   int
		score float64
	}
	candidates := make([]scored, 0, len(w.turns)-pinned)
	for i := pinned; i < len(w.turns); i++ {
		candidates = append(candidates, scored{pos: i, score: m.scorer(w.turns[i])})
	}

	// Lowest score first; equal scores order by position so the
	// earliest turn goes first.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score < candidates[j].score
		}
		return candidates[i].pos < candidates[j].pos
	})

	drop := len(w.turns) - m.maxTurns
	dropped := make(map[int]bool, drop)
	evicted := make([]models.ConversationTurn, 0, drop)
	for _, c := range candidates[:drop] {
		dropped[c.pos] = true
	}

	kept := make([]models.ConversationTurn, 0, m.maxTurns)
	for i, t := range w.turns {
		if dropped[i] {
			evicted = append(evicted, t)
			continue
		}
		kept = append(kept, t)
	}
	w.turns = kept
	w.evictedSummary = summarizeEvicted(w.evictedSummary, evicted)
	return evicted
}

// summarizeEvicted folds newly evicted turns into a single digest
// line, keeping only the most recent few fragments.
func summarizeEvicted(previous string, evicted []models.ConversationTurn) string {
	fragments := strings.Split(previous, "; ")
	if previous == "" {
		fragments = nil
	}
	for _, t := range evicted {
		fragments = append(fragments, truncate(t.User, 40))
	}
	if len(fragments) > 5 {
		fragments = fragments[len(fragments)-5:]
	}
	return strings.Join(fragments, "; ")
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// PromptMessages returns the owner's current window for LLM
// consumption. When turns have been evicted, a one-line summary of
// them is prepended as a system entry.
func (m *Manager) PromptMessages(owner string) []models.ConversationTurn {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[owner]
	if !ok {
		return nil
	}

	out := make([]models.ConversationTurn, 0, len(w.turns)+1)
	if w.evictedSummary != "" {
		out = append(out, models.ConversationTurn{
			User:   fmt.Sprintf("Earlier in this conversation: %s", w.evictedSummary),
			System: true,
		})
	}
	return append(out, w.turns...)
}

// Len returns the owner's current window size.
func (m *Manager) Len(owner string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.windows[owner]; ok {
		return len(w.turns)
	}
	return 0
}

// Reset discards the owner's window and evicted-turn summary.
func (m *Manager) Reset(owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.windows, owner)
}
