package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOwnerKey(t *testing.T) {
	tests := []struct {
		name   string
		user   string
		group  string
		sender string
		want   string
	}{
		{"plain user", "alice", "", "", "alice"},
		{"group and sender", "g1", "G", "Alice", "g/alice"},
		{"group without sender falls back to user", "g1", "G", "", "g1"},
		{"sender without group falls back to user", "g1", "", "Alice", "g1"},
		{"spaces and case normalized", "", "Team Chat", "Bob Smith", "team-chat/bob-smith"},
		{"unsafe characters stripped", "a/b\\c:d", "", "", "abcd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OwnerKey(tt.user, tt.group, tt.sender))
		})
	}
}

func TestOwnerKeyGroupMembersNeverCollide(t *testing.T) {
	alice := OwnerKey("g1", "G", "Alice")
	bob := OwnerKey("g1", "G", "Bob")
	assert.NotEqual(t, alice, bob)
}

func TestConversationTurnText(t *testing.T) {
	turn := ConversationTurn{User: "I like cats", Assistant: "Noted!"}
	assert.Equal(t, "User said: I like cats\nYou replied: Noted!", turn.Text())

	preamble := ConversationTurn{User: "You are a cheerful assistant.", System: true}
	assert.Equal(t, "You are a cheerful assistant.", preamble.Text())
}
