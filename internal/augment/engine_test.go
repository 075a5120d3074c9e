package augment

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/vesper-voice/vesper/internal/eventlog"
	"github.com/vesper-voice/vesper/internal/intent"
	"github.com/vesper-voice/vesper/internal/memcore"
)

type stubClassifier struct {
	result intent.Classification
}

func (s stubClassifier) Classify(context.Context, string) intent.Classification {
	return s.result
}

type stubStore struct {
	insertedContent  string
	insertedCategory string
	insertedTags     []string
	searchQuery      string
	searchResults    []memcore.Record
}

func (s *stubStore) Insert(_ context.Context, content, category string, tags []string) string {
	s.insertedContent = content
	s.insertedCategory = category
	s.insertedTags = tags
	return "rec-42"
}

func (s *stubStore) Search(_ context.Context, query string, _ []string) []memcore.Record {
	s.searchQuery = query
	return s.searchResults
}

func newEngine(c intent.Classification, store *stubStore) *Engine {
	return NewEngine(stubClassifier{result: c}, store, eventlog.New(16))
}

func TestAugmentSave(t *testing.T) {
	store := &stubStore{}
	e := newEngine(intent.Classification{
		Intent: intent.IntentSave,
		Save:   &intent.SaveData{Content: "likes tea", Category: "preferences", Tags: []string{"drinks"}},
	}, store)

	got := e.Augment(context.Background(), "remember that I like tea")
	if got.Outcome != OutcomeSaved {
		t.Fatalf("outcome = %s, want saved", got.Outcome)
	}
	if !strings.Contains(got.Text, "rec-42") {
		t.Fatalf("confirmation %q does not name the record id", got.Text)
	}
	if store.insertedContent != "likes tea" || store.insertedCategory != "preferences" {
		t.Fatalf("inserted %q/%q", store.insertedContent, store.insertedCategory)
	}
}

func TestAugmentSaveFallsBackToUtterance(t *testing.T) {
	store := &stubStore{}
	e := newEngine(intent.Classification{Intent: intent.IntentSave}, store)

	e.Augment(context.Background(), "my cat is named Luna")
	if store.insertedContent != "my cat is named Luna" {
		t.Fatalf("inserted content = %q, want raw utterance", store.insertedContent)
	}
	if store.insertedCategory != "general" {
		t.Fatalf("inserted category = %q, want general", store.insertedCategory)
	}
}

func TestAugmentSaveRedactsPII(t *testing.T) {
	store := &stubStore{}
	e := newEngine(intent.Classification{
		Intent: intent.IntentSave,
		Save:   &intent.SaveData{Content: "reach me at luna@example.com", Category: "contacts"},
	}, store)

	e.Augment(context.Background(), "remember my email")
	if strings.Contains(store.insertedContent, "luna@example.com") {
		t.Fatalf("email survived redaction: %q", store.insertedContent)
	}
	if !strings.Contains(store.insertedContent, "[REDACTED_EMAIL]") {
		t.Fatalf("inserted content = %q, want redaction marker", store.insertedContent)
	}
}

func TestAugmentRetrieve(t *testing.T) {
	store := &stubStore{searchResults: []memcore.Record{{
		ID:        "rec-9",
		Content:   "likes tea",
		Category:  "preferences",
		CreatedAt: time.Now(),
	}}}
	e := newEngine(intent.Classification{
		Intent: intent.IntentRetrieve,
		Search: &intent.SearchData{Query: "tea"},
	}, store)

	got := e.Augment(context.Background(), "what do I drink?")
	if got.Outcome != OutcomeInjected {
		t.Fatalf("outcome = %s, want injected", got.Outcome)
	}
	if got.Text != "[ARCHIVE:rec-9 | preferences] likes tea" {
		t.Fatalf("injection = %q", got.Text)
	}
	if store.searchQuery != "tea" {
		t.Fatalf("search query = %q, want classifier query", store.searchQuery)
	}
}

func TestAugmentRetrieveEmpty(t *testing.T) {
	store := &stubStore{}
	e := newEngine(intent.Classification{
		Intent: intent.IntentRetrieve,
		Search: &intent.SearchData{Query: "nothing"},
	}, store)

	got := e.Augment(context.Background(), "what do you know?")
	if got.Text != memcore.NoData {
		t.Fatalf("injection = %q, want no-data sentinel", got.Text)
	}
}

func TestAugmentNone(t *testing.T) {
	store := &stubStore{}
	e := newEngine(intent.Classification{Intent: intent.IntentNone}, store)

	if got := e.Augment(context.Background(), "nice weather today"); got.Outcome != OutcomeNone {
		t.Fatalf("outcome = %s, want none", got.Outcome)
	}
	if got := e.Augment(context.Background(), "   "); got.Outcome != OutcomeNone {
		t.Fatalf("blank utterance outcome = %s, want none", got.Outcome)
	}
}
