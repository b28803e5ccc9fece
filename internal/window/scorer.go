package window

import (
	"strings"

	"github.com/chatmem/chatmem/internal/models"
)

// Scorer rates a turn's importance for eviction decisions. Higher
// scores survive longer. The default heuristic is a replaceable
// policy; any function with this shape can be plugged in.
type Scorer func(turn models.ConversationTurn) float64

// Keyword groups the default scorer looks for. These are heuristics
// for facts worth keeping: when and where something happens, and what
// the user committed to doing.
var (
	timeKeywords = []string{
		"today", "tomorrow", "yesterday", "tonight", "morning",
		"afternoon", "evening", "o'clock", "monday",
		"tuesday", "wednesday", "thursday", "friday", "saturday",
		"sunday", "next week", "weekend", "later",
	}
	locationKeywords = []string{
		"at the", "in the", "home", "office", "school", "station",
		"airport", "restaurant", "hospital", "park", "shop", "city",
	}
	activityKeywords = []string{
		"meeting", "appointment", "birthday", "deadline", "exam",
		"interview", "travel", "trip", "dinner", "lunch", "call",
		"remind", "remember", "plan", "promise",
	}
	sceneMarkers = []string{
		"by the way", "changing the subject", "anyway", "speaking of",
		"one more thing", "before i forget",
	}
)

const (
	timeWeight     = 3.0
	locationWeight = 2.0
	activityWeight = 2.5
	sceneWeight    = 1.5
	questionWeight = 1.0
	lengthWeight   = 0.01
	maxLengthBonus = 2.0
)

// DefaultScorer is the built-in importance heuristic: a weighted sum
// of time, location and activity keyword hits, scene transition
// markers, question marks, and message length.
func DefaultScorer(turn models.ConversationTurn) float64 {
	text := strings.ToLower(turn.User + " " + turn.Assistant)

	score := 0.0
	score += timeWeight * float64(countHits(text, timeKeywords))
	score += locationWeight * float64(countHits(text, locationKeywords))
	score += activityWeight * float64(countHits(text, activityKeywords))
	score += sceneWeight * float64(countHits(text, sceneMarkers))
	score += questionWeight * float64(strings.Count(text, "?"))

	lengthBonus := lengthWeight * float64(len(text))
	if lengthBonus > maxLengthBonus {
		lengthBonus = maxLengthBonus
	}
	score += lengthBonus

	return score
}

func countHits(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			n++
		}
	}
	return n
}
