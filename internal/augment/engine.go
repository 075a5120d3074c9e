// Package augment turns a completed utterance into a memory side effect:
// classify its intent, then either archive it, pull matching records for
// prompt injection, or do nothing. The engine never fails upward; every
// fault degrades to the no-op outcome.
package augment

import (
	"context"
	"fmt"
	"strings"

	"github.com/vesper-voice/vesper/internal/eventlog"
	"github.com/vesper-voice/vesper/internal/intent"
	"github.com/vesper-voice/vesper/internal/memcore"
	"github.com/vesper-voice/vesper/internal/policy"
)

const logSource = "augment"

// Outcome tags what the engine did with an utterance.
type Outcome string

const (
	OutcomeSaved    Outcome = "saved"
	OutcomeInjected Outcome = "injected"
	OutcomeNone     Outcome = "none"
)

// Result is the engine's answer for one utterance. Text is a confirmation
// line for OutcomeSaved and a formatted record block for OutcomeInjected.
type Result struct {
	Outcome Outcome
	Text    string
}

// Store is the slice of the memory client the engine drives.
type Store interface {
	Insert(ctx context.Context, content, category string, tags []string) string
	Search(ctx context.Context, query string, tags []string) []memcore.Record
}

// Engine wires the classifier to the memory store.
type Engine struct {
	classifier intent.Classifier
	store      Store
	log        *eventlog.Log
}

// NewEngine creates an augmentation engine.
func NewEngine(classifier intent.Classifier, store Store, log *eventlog.Log) *Engine {
	return &Engine{classifier: classifier, store: store, log: log}
}

// Augment classifies utterance and performs the resulting memory operation.
func (e *Engine) Augment(ctx context.Context, utterance string) Result {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return Result{Outcome: OutcomeNone}
	}

	c := e.classifier.Classify(ctx, utterance)
	switch c.Intent {
	case intent.IntentSave:
		return e.save(ctx, utterance, c.Save)
	case intent.IntentRetrieve:
		return e.retrieve(ctx, utterance, c.Search)
	default:
		return Result{Outcome: OutcomeNone}
	}
}

func (e *Engine) save(ctx context.Context, utterance string, data *intent.SaveData) Result {
	content := utterance
	category := "general"
	var tags []string
	if data != nil {
		if strings.TrimSpace(data.Content) != "" {
			content = data.Content
		}
		if strings.TrimSpace(data.Category) != "" {
			category = data.Category
		}
		tags = data.Tags
	}

	if redacted, changed := policy.RedactPII(content); changed {
		e.log.Info(logSource, "PII redacted before archive")
		content = redacted
	}

	id := e.store.Insert(ctx, content, category, tags)
	e.log.Success(logSource, "saved utterance as "+id)
	return Result{
		Outcome: OutcomeSaved,
		Text:    fmt.Sprintf("Archived under %s in category %q.", id, category),
	}
}

func (e *Engine) retrieve(ctx context.Context, utterance string, data *intent.SearchData) Result {
	query := utterance
	var tags []string
	if data != nil {
		if strings.TrimSpace(data.Query) != "" {
			query = data.Query
		}
		tags = data.Tags
	}

	records := e.store.Search(ctx, query, tags)
	e.log.Info(logSource, fmt.Sprintf("retrieved %d records for injection", len(records)))
	return Result{
		Outcome: OutcomeInjected,
		Text:    memcore.FormatForInjection(records),
	}
}
