package voice

import (
	"regexp"
	"strings"
)

// The agent is prompted to prefix replies with an emotion word and a colon.
// The annotation only drives the displayed state, never control flow.
var emotionPrefix = regexp.MustCompile(`^\s*([A-Za-z]+):`)

var emotionStates = map[string]string{
	"happy":     "happy",
	"joyful":    "happy",
	"excited":   "happy",
	"sad":       "sad",
	"angry":     "angry",
	"surprised": "surprised",
	"curious":   "curious",
	"thinking":  "thinking",
	"calm":      "neutral",
	"neutral":   "neutral",
}

// detectEmotion maps a leading emotion annotation to a display state.
// Unrecognized or absent annotations default to neutral.
func detectEmotion(agentText string) string {
	m := emotionPrefix.FindStringSubmatch(agentText)
	if m == nil {
		return "neutral"
	}
	if state, ok := emotionStates[strings.ToLower(m[1])]; ok {
		return state
	}
	return "neutral"
}
