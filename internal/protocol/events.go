// Package protocol defines the normalized event model for the remote speech
// channel. The realtime client translates provider wire messages into these
// events; the orchestrator consumes them strictly in arrival order.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType identifies a remote-channel event variant.
type EventType string

const (
	EventTranscriptDelta EventType = "transcript_delta"
	EventAudioDelta      EventType = "audio_delta"
	EventToolCall        EventType = "tool_call"
	EventTurnComplete    EventType = "turn_complete"
	EventInterrupted     EventType = "interrupted"
	EventClosed          EventType = "closed"
	EventError           EventType = "error"
)

// TranscriptSource tags which side of the conversation a transcript delta
// belongs to.
type TranscriptSource string

const (
	SourceUser  TranscriptSource = "user"
	SourceAgent TranscriptSource = "agent"
)

// Event is one normalized remote-channel event.
type Event struct {
	Type   EventType
	Source TranscriptSource // transcript deltas only
	Text   string           // transcript delta text
	PCM    []byte           // audio deltas: 16-bit LE mono PCM
	Call   *ToolCall        // tool calls only
	Code   string           // errors
	Detail string           // errors
}

// ToolCall is a function invocation requested by the remote agent.
type ToolCall struct {
	Name      string
	CallID    string
	Arguments string // raw JSON
}

// Tool names the remote agent may invoke.
const (
	ToolCommitToMemoryCore     = "commitToMemoryCore"
	ToolRetrieveFromMemoryCore = "retrieveFromMemoryCore"
)

var ErrUnknownTool = errors.New("unknown tool")

// CommitArgs carries the arguments of a commitToMemoryCore call.
type CommitArgs struct {
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

// RetrieveArgs carries the arguments of a retrieveFromMemoryCore call.
type RetrieveArgs struct {
	Query string `json:"query"`
}

// ToolResult is the payload returned to the remote agent for a tool call.
type ToolResult struct {
	Result string `json:"result"`
}

// ParseCommitArgs decodes and validates commitToMemoryCore arguments.
func ParseCommitArgs(raw string) (CommitArgs, error) {
	var args CommitArgs
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return CommitArgs{}, fmt.Errorf("invalid commitToMemoryCore arguments: %w", err)
	}
	if args.Content == "" {
		return CommitArgs{}, errors.New("commitToMemoryCore requires content")
	}
	if args.Category == "" {
		args.Category = "general"
	}
	return args, nil
}

// ParseRetrieveArgs decodes and validates retrieveFromMemoryCore arguments.
func ParseRetrieveArgs(raw string) (RetrieveArgs, error) {
	var args RetrieveArgs
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return RetrieveArgs{}, fmt.Errorf("invalid retrieveFromMemoryCore arguments: %w", err)
	}
	return args, nil
}
