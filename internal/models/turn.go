package models

import (
	"fmt"
	"time"
)

// ConversationTurn is one exchanged (user message, assistant reply)
// pair inside the live context window. Importance is derived at
// eviction time and never persisted.
type ConversationTurn struct {
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
	System    bool      `json:"system,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Text renders the turn as the "user said X / you replied Y" unit that
// gets embedded and stored on eviction.
func (t ConversationTurn) Text() string {
	if t.System {
		return t.User
	}
	return fmt.Sprintf("User said: %s\nYou replied: %s", t.User, t.Assistant)
}

// ShortTermEntry is one line of the per-user short_memory.json log.
type ShortTermEntry struct {
	Timestamp time.Time `json:"timestamp"`
	User      string    `json:"user"`
	Bot       string    `json:"bot"`
}

// CoreMemory is the single rolling synopsis kept per user. It is
// overwritten by each summarization pass, never appended.
type CoreMemory struct {
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
}
