package voice

import (
	"math/rand"
	"strings"
)

// Spoken triggers for the dictation sub-state. Matching is case-insensitive
// against the accumulated user transcript of the current turn.
var (
	startPhrases = []string{
		"start recording",
		"begin recording",
		"start dictation",
	}
	stopPhrases = []string{
		"stop recording",
		"end recording",
		"stop dictation",
	}
)

// matchTrigger finds the first occurrence of any phrase in text and splits
// around it.
func matchTrigger(text string, phrases []string) (before, after string, ok bool) {
	lower := strings.ToLower(text)
	idx := -1
	length := 0
	for _, phrase := range phrases {
		if i := strings.Index(lower, phrase); i >= 0 && (idx < 0 || i < idx) {
			idx = i
			length = len(phrase)
		}
	}
	if idx < 0 {
		return "", "", false
	}
	return text[:idx], text[idx+length:], true
}

// collapseSpaces normalizes accumulated dictation into single-spaced text.
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var thinkingFillers = []string{
	"Hmm, one moment.",
	"Let me check my memory.",
	"Give me a second.",
	"Let me think.",
}

func randomFiller() string {
	return thinkingFillers[rand.Intn(len(thinkingFillers))]
}
