// Package memory is the externally consumed facade over the memory
// engine: short-term logs, the live context window, core-memory
// summaries, and long-term RAG retrieval. Its methods never fail on
// degraded service; they log and return empty results so chat keeps
// working with no memory rather than crashing.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chatmem/chatmem/internal/config"
	"github.com/chatmem/chatmem/internal/llm"
	"github.com/chatmem/chatmem/internal/metrics"
	"github.com/chatmem/chatmem/internal/models"
	"github.com/chatmem/chatmem/internal/queue"
	"github.com/chatmem/chatmem/internal/store"
	"github.com/chatmem/chatmem/internal/window"
)

// Message is one completed exchange handed to the facade by the chat
// layer. GroupID and SenderName, when both set, namespace all storage
// so memory never leaks between members of a group chat.
type Message struct {
	UserID     string
	GroupID    string
	SenderName string

	UserMessage    string
	AssistantReply string

	// System marks a persona preamble rather than a real exchange. It
	// is pinned in the context window and skipped by the short-term
	// log and the conversation counter.
	System bool
}

// Handler composes the store, the context window, and the per-user
// short-term and core-memory files behind the four-call facade the
// chat layer consumes.
type Handler struct {
	cfg    config.Config
	store  *store.Store
	window *window.Manager
	gen    llm.Generator
	queue  *queue.Queue

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	counters map[string]int
}

// New wires the facade. gen may be nil, which disables core-memory
// summarization and reranking but leaves everything else working.
func New(cfg config.Config, st *store.Store, gen llm.Generator, q *queue.Queue) *Handler {
	h := &Handler{
		cfg:      cfg,
		store:    st,
		gen:      gen,
		queue:    q,
		locks:    make(map[string]*sync.Mutex),
		counters: make(map[string]int),
	}
	h.window = window.New(cfg.MaxTurns, nil, h.rememberEvicted)
	return h
}

// ownerLock returns the per-owner mutex that keeps short-term file
// appends strictly ordered.
func (h *Handler) ownerLock(owner string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.locks[owner]
	if !ok {
		l = &sync.Mutex{}
		h.locks[owner] = l
	}
	return l
}

// rememberEvicted forwards a turn pushed out of the context window to
// long-term storage, tagged with its timestamp so time-related queries
// can find it later. Runs on the background queue to keep eviction off
// the chat path.
func (h *Handler) rememberEvicted(owner string, turn models.ConversationTurn) {
	text := fmt.Sprintf("[%s] %s", turn.Timestamp.Format("2006-01-02 15:04"), turn.Text())
	err := h.queue.Submit(owner, func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.EmbedTimeout+time.Second)
		defer cancel()
		if err := h.store.Remember(ctx, owner, text); err != nil {
			slog.Warn("evicted turn not fully retained", "owner", owner, "error", err)
		}
	})
	if err != nil {
		slog.Warn("dropping evicted turn, queue closed", "owner", owner)
	}
}

// AddConversation records one exchange: appends it to the short-term
// log, feeds the context window, and every few conversations schedules
// an asynchronous core-memory summarization.
func (h *Handler) AddConversation(msg Message) {
	owner := models.OwnerKey(msg.UserID, msg.GroupID, msg.SenderName)
	turn := models.ConversationTurn{
		User:      msg.UserMessage,
		Assistant: msg.AssistantReply,
		System:    msg.System,
		Timestamp: time.Now().UTC(),
	}

	h.window.AddTurn(owner, turn)
	if msg.System {
		return
	}

	lock := h.ownerLock(owner)
	lock.Lock()
	if err := h.appendShortTerm(owner, turn); err != nil {
		slog.Warn("short-term log append failed", "owner", owner, "error", err)
	}
	lock.Unlock()

	h.mu.Lock()
	h.counters[owner]++
	due := h.cfg.SummarizeEvery > 0 && h.counters[owner]%h.cfg.SummarizeEvery == 0
	h.mu.Unlock()

	if due && h.gen != nil {
		err := h.queue.Submit(owner, func() {
			ctx, cancel := context.WithTimeout(context.Background(), h.cfg.ChatTimeout+time.Second)
			defer cancel()
			if err := h.summarizeOwner(ctx, owner); err != nil {
				slog.Warn("core-memory summarization failed", "owner", owner, "error", err)
			}
		})
		if err != nil {
			slog.Warn("skipping core summarization, queue closed", "owner", owner)
		}
	}
}

func (h *Handler) appendShortTerm(owner string, turn models.ConversationTurn) error {
	entries, err := readShortTerm(h.cfg.DataDir, owner)
	if err != nil {
		return err
	}
	entries = append(entries, models.ShortTermEntry{
		Timestamp: turn.Timestamp,
		User:      turn.User,
		Bot:       turn.Assistant,
	})
	if limit := h.cfg.ShortTermCap; limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return writeShortTerm(h.cfg.DataDir, owner, entries)
}

var (
	timeQueryMarkers = []string{
		"what time", "when did", "when was", "just now", "remember when",
		"how long ago", "yesterday", "last time",
	}
	timestampTag = regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}\]`)
)

func isTimeQuery(query string) bool {
	q := strings.ToLower(query)
	for _, marker := range timeQueryMarkers {
		if strings.Contains(q, marker) {
			return true
		}
	}
	return false
}

// RelevantMemories retrieves long-term memories for a query. Queries
// about time pull a wider candidate set and surface timestamped
// records first. Degraded retrieval returns an empty slice, never an
// error.
func (h *Handler) RelevantMemories(ctx context.Context, query, userID, groupID, senderName string) []string {
	owner := models.OwnerKey(userID, groupID, senderName)

	if isTimeQuery(query) {
		results, err := h.store.Search(ctx, owner, query, 2*h.cfg.TopK, false)
		if err != nil {
			slog.Warn("memory retrieval degraded", "owner", owner, "error", err)
			return nil
		}
		var timed, rest []string
		for _, r := range results {
			if timestampTag.MatchString(r.Record.Text) {
				timed = append(timed, r.Record.Text)
			} else {
				rest = append(rest, r.Record.Text)
			}
		}
		out := append(timed, rest...)
		if len(out) > h.cfg.TopK {
			out = out[:h.cfg.TopK]
		}
		return out
	}

	texts, err := h.store.Query(ctx, owner, query, h.cfg.TopK, h.cfg.RerankEnabled)
	if err != nil {
		slog.Warn("memory retrieval degraded", "owner", owner, "error", err)
		return nil
	}
	return texts
}

// RecentContext returns the last n short-term entries. Unlike the
// in-memory window, this survives process restarts.
func (h *Handler) RecentContext(userID, groupID, senderName string, n int) []models.ShortTermEntry {
	owner := models.OwnerKey(userID, groupID, senderName)
	if n <= 0 {
		return nil
	}

	lock := h.ownerLock(owner)
	lock.Lock()
	entries, err := readShortTerm(h.cfg.DataDir, owner)
	lock.Unlock()
	if err != nil {
		slog.Warn("short-term log unreadable", "owner", owner, "error", err)
		return nil
	}
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries
}

// CoreMemory returns the owner's current rolling summary, empty when
// none exists.
func (h *Handler) CoreMemory(userID, groupID, senderName string) string {
	owner := models.OwnerKey(userID, groupID, senderName)
	core, err := readCore(h.cfg.DataDir, owner)
	if err != nil {
		slog.Warn("core memory unreadable", "owner", owner, "error", err)
		return ""
	}
	return core.Content
}

// SummarizeCore folds the recent short-term entries and the previous
// summary into a new core memory, synchronously.
func (h *Handler) SummarizeCore(ctx context.Context, userID, groupID, senderName string) error {
	return h.summarizeOwner(ctx, models.OwnerKey(userID, groupID, senderName))
}

func (h *Handler) summarizeOwner(ctx context.Context, owner string) error {
	if h.gen == nil {
		return fmt.Errorf("no language model configured")
	}

	lock := h.ownerLock(owner)
	lock.Lock()
	entries, err := readShortTerm(h.cfg.DataDir, owner)
	lock.Unlock()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	if n := h.cfg.SummarizeEvery; n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}

	previous, err := readCore(h.cfg.DataDir, owner)
	if err != nil {
		return err
	}

	recent := make([]string, 0, len(entries))
	for _, e := range entries {
		recent = append(recent, fmt.Sprintf("User: %s\nAssistant: %s", e.User, e.Bot))
	}

	var content string
	err = h.store.Metrics().Observe(metrics.OpSummarize, func() error {
		var genErr error
		content, genErr = llm.SummarizeCore(ctx, h.gen, previous.Content, recent)
		return genErr
	})
	if err != nil {
		return err
	}

	core := models.CoreMemory{Timestamp: time.Now().UTC(), Content: content}
	if err := writeCore(h.cfg.DataDir, owner, core); err != nil {
		return err
	}
	slog.Info("core memory updated", "owner", owner, "words", len(strings.Fields(content)))
	return nil
}

// Window exposes the context window, mainly for prompt construction.
func (h *Handler) Window() *window.Manager {
	return h.window
}

// Drain waits for queued background work to finish. Call on shutdown
// so evicted turns are not lost.
func (h *Handler) Drain() {
	h.queue.Drain()
}
