// Package archive persists completed conversation turns so a session's
// transcript survives the process. This is the local flush target for turn
// logs; long-term fact memory lives behind the memcore client.
package archive

import (
	"context"
	"time"
)

// Speaker side of a turn.
const (
	SpeakerUser  = "user"
	SpeakerAgent = "agent"
)

// TurnRecord is one archived conversational turn.
type TurnRecord struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Speaker     string    `json:"speaker"`
	Content     string    `json:"content"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists and retrieves archived turns.
type Store interface {
	SaveTurn(ctx context.Context, record TurnRecord) error
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error)
	Close() error
}
