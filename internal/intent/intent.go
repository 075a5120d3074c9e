// Package intent consumes the external classifier that decides whether a
// completed utterance should be archived, searched against the archive, or
// left alone.
package intent

import "context"

// Intent is the classifier's verdict for one utterance.
type Intent string

const (
	IntentSave     Intent = "SAVE"
	IntentRetrieve Intent = "RETRIEVE"
	IntentNone     Intent = "NONE"
)

// SaveData is what the classifier extracted for an archive write.
type SaveData struct {
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

// SearchData is what the classifier extracted for an archive lookup.
type SearchData struct {
	Query string   `json:"query"`
	Tags  []string `json:"tags"`
}

// Classification is the full classifier response.
type Classification struct {
	Intent Intent      `json:"intent"`
	Save   *SaveData   `json:"saveData,omitempty"`
	Search *SearchData `json:"searchData,omitempty"`
}

// Classifier decides what to do with a completed utterance. Implementations
// must degrade to IntentNone on any fault; classification never fails upward.
type Classifier interface {
	Classify(ctx context.Context, utterance string) Classification
}
