// Package session tracks the lifecycle of the single live voice session for
// the status surface. The orchestrator writes to it; the HTTP API reads it.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// Snapshot is the externally visible session state.
type Snapshot struct {
	SessionID         string    `json:"session_id,omitempty"`
	Status            Status    `json:"status"`
	Recording         bool      `json:"recording"`
	Emotion           string    `json:"emotion"`
	InterruptionCount int       `json:"interruption_count"`
	StartedAt         time.Time `json:"started_at,omitempty"`
	LastActivityAt    time.Time `json:"last_activity_at,omitempty"`
}

// Tracker holds the current session snapshot behind a lock.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

func NewTracker() *Tracker {
	return &Tracker{snap: Snapshot{Status: StatusDisconnected, Emotion: "neutral"}}
}

// Begin marks a fresh connection attempt and assigns a new session id.
func (t *Tracker) Begin() string {
	now := time.Now().UTC()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap = Snapshot{
		SessionID:      uuid.NewString(),
		Status:         StatusConnecting,
		Emotion:        "neutral",
		StartedAt:      now,
		LastActivityAt: now,
	}
	return t.snap.SessionID
}

func (t *Tracker) SetStatus(status Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Status = status
	t.snap.LastActivityAt = time.Now().UTC()
	if status == StatusDisconnected {
		t.snap.Recording = false
	}
}

func (t *Tracker) SetRecording(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Recording = on
	t.snap.LastActivityAt = time.Now().UTC()
}

func (t *Tracker) SetEmotion(emotion string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Emotion = emotion
}

// Touch records activity without changing state.
func (t *Tracker) Touch() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.LastActivityAt = time.Now().UTC()
}

func (t *Tracker) Interrupted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.InterruptionCount++
	t.snap.LastActivityAt = time.Now().UTC()
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}
