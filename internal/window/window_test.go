package window

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatmem/chatmem/internal/models"
)

func turn(user, assistant string) models.ConversationTurn {
	return models.ConversationTurn{
		User:      user,
		Assistant: assistant,
		Timestamp: time.Now(),
	}
}

func TestWindowNeverExceedsBound(t *testing.T) {
	m := New(5, nil, nil)

	for i := 0; i < 50; i++ {
		m.AddTurn("alice", turn(fmt.Sprintf("message %d", i), "ok"))
		assert.LessOrEqual(t, m.Len("alice"), 5)
	}
	assert.Equal(t, 5, m.Len("alice"))
}

func TestLowestScoredTurnEvicted(t *testing.T) {
	var evicted []models.ConversationTurn
	scorer := func(tn models.ConversationTurn) float64 {
		if tn.User == "boring" {
			return 0
		}
		return 10
	}
	m := New(3, scorer, func(owner string, tn models.ConversationTurn) {
		evicted = append(evicted, tn)
	})

	m.AddTurn("alice", turn("meeting tomorrow at noon", "noted"))
	m.AddTurn("alice", turn("boring", "ok"))
	m.AddTurn("alice", turn("my exam is on friday", "good luck"))
	m.AddTurn("alice", turn("remind me about the dentist", "will do"))

	require.Len(t, evicted, 1)
	assert.Equal(t, "boring", evicted[0].User)

	for _, tn := range m.PromptMessages("alice") {
		assert.NotEqual(t, "boring", tn.User)
	}
}

func TestTieBreakEvictsEarliestFirst(t *testing.T) {
	var evicted []models.ConversationTurn
	flat := func(models.ConversationTurn) float64 { return 1 }
	m := New(2, flat, func(owner string, tn models.ConversationTurn) {
		evicted = append(evicted, tn)
	})

	m.AddTurn("alice", turn("first", "a"))
	m.AddTurn("alice", turn("second", "b"))
	m.AddTurn("alice", turn("third", "c"))

	require.Len(t, evicted, 1)
	assert.Equal(t, "first", evicted[0].User)
}

func TestSystemPreambleNeverEvicted(t *testing.T) {
	flat := func(models.ConversationTurn) float64 { return 1 }
	m := New(2, flat, nil)

	m.AddTurn("alice", models.ConversationTurn{
		User:      "You are a helpful assistant named Momo.",
		System:    true,
		Timestamp: time.Now(),
	})
	for i := 0; i < 10; i++ {
		m.AddTurn("alice", turn(fmt.Sprintf("chat %d", i), "ok"))
	}

	msgs := m.PromptMessages("alice")
	require.NotEmpty(t, msgs)

	found := false
	for _, tn := range msgs {
		if tn.System && tn.User == "You are a helpful assistant named Momo." {
			found = true
		}
	}
	assert.True(t, found, "system preamble must survive eviction")
}

func TestEvictedTurnsFlowToCallback(t *testing.T) {
	var texts []string
	m := New(2, nil, func(owner string, tn models.ConversationTurn) {
		texts = append(texts, tn.Text())
	})

	m.AddTurn("alice", turn("I live in Tokyo", "nice"))
	m.AddTurn("alice", turn("hello", "hi"))
	m.AddTurn("alice", turn("what's the weather?", "sunny"))
	m.AddTurn("alice", turn("thanks", "anytime"))

	require.NotEmpty(t, texts)
	for _, text := range texts {
		assert.Contains(t, text, "User said:")
		assert.Contains(t, text, "You replied:")
	}
}

func TestPromptMessagesIncludeEvictedSummary(t *testing.T) {
	flat := func(models.ConversationTurn) float64 { return 1 }
	m := New(2, flat, nil)

	m.AddTurn("alice", turn("I adopted a cat named Whiskers", "cute"))
	m.AddTurn("alice", turn("second", "b"))
	m.AddTurn("alice", turn("third", "c"))

	msgs := m.PromptMessages("alice")
	require.Len(t, msgs, 3)
	assert.True(t, msgs[0].System)
	assert.Contains(t, msgs[0].User, "Whiskers")
}

func TestOwnersAreIndependent(t *testing.T) {
	m := New(3, nil, nil)

	m.AddTurn("alice", turn("alice says hi", "hello alice"))
	m.AddTurn("bob", turn("bob says hi", "hello bob"))

	assert.Equal(t, 1, m.Len("alice"))
	assert.Equal(t, 1, m.Len("bob"))
	assert.Empty(t, m.PromptMessages("carol"))
}

func TestDefaultScorerPrefersConcreteFacts(t *testing.T) {
	rich := turn("Remind me about my dentist appointment tomorrow morning", "will do")
	bland := turn("ok", "ok")

	assert.Greater(t, DefaultScorer(rich), DefaultScorer(bland))
}

func TestReset(t *testing.T) {
	m := New(3, nil, nil)
	m.AddTurn("alice", turn("hi", "hello"))
	m.Reset("alice")
	assert.Equal(t, 0, m.Len("alice"))
}
