// Package realtime is the duplex client for the remote speech service. It
// owns one websocket, translates the provider's wire events into normalized
// protocol events, and exposes the outbound half (audio frames, free-text
// instructions, tool results) behind a write lock.
package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/vesper-voice/vesper/internal/protocol"
)

// Config carries the provider endpoint and session parameters.
type Config struct {
	URL          string
	APIKey       string
	Model        string
	Voice        string
	Instructions string
}

// Channel is one live duplex connection to the speech service.
type Channel struct {
	conn      *websocket.Conn
	events    chan protocol.Event
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial opens the websocket, configures the session (audio formats, voice,
// instructions, memory tools) and starts the read loop.
func Dial(ctx context.Context, cfg Config) (*Channel, error) {
	u := cfg.URL
	if cfg.Model != "" && !strings.Contains(u, "model=") {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + "model=" + cfg.Model
	}

	headers := http.Header{}
	if cfg.APIKey != "" {
		headers.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, headers)
	if err != nil {
		return nil, fmt.Errorf("dial speech channel: %w", err)
	}

	ch := &Channel{conn: conn, events: make(chan protocol.Event, 256)}
	if err := ch.sendSessionUpdate(cfg); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("configure session: %w", err)
	}
	go ch.readLoop()
	return ch, nil
}

// Events is the inbound normalized event stream. Closed when the connection
// ends; the final event before close is EventClosed or EventError.
func (c *Channel) Events() <-chan protocol.Event {
	return c.events
}

// SendAudio appends one wire PCM frame to the remote input buffer.
func (c *Channel) SendAudio(pcm []byte) error {
	return c.writeJSON(map[string]string{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(pcm),
	})
}

// SendInstruction injects free text as a user item and asks for a response.
func (c *Channel) SendInstruction(text string) error {
	item := conversationItem{
		Type: "message",
		Role: "user",
		Content: []conversationPart{
			{Type: "input_text", Text: text},
		},
	}
	if err := c.writeJSON(createItemMessage{Type: "conversation.item.create", Item: item}); err != nil {
		return err
	}
	return c.writeJSON(map[string]string{"type": "response.create"})
}

// SendToolResult returns a tool call's output and asks for the next response.
func (c *Channel) SendToolResult(callID string, result protocol.ToolResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	item := conversationItem{
		Type:   "function_call_output",
		CallID: callID,
		Output: string(payload),
	}
	if err := c.writeJSON(createItemMessage{Type: "conversation.item.create", Item: item}); err != nil {
		return err
	}
	return c.writeJSON(map[string]string{"type": "response.create"})
}

// Close shuts the connection down. The read loop drains and closes Events.
func (c *Channel) Close() error {
	var retErr error
	c.closeOnce.Do(func() {
		retErr = c.conn.Close()
	})
	return retErr
}

func (c *Channel) sendSessionUpdate(cfg Config) error {
	params := sessionParams{
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
		Voice:             cfg.Voice,
		Instructions:      cfg.Instructions,
		Tools: []toolDefinition{
			{
				Type:        "function",
				Name:        protocol.ToolCommitToMemoryCore,
				Description: "Archive a fact about the user in long-term memory.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"content":  map[string]any{"type": "string"},
						"category": map[string]any{"type": "string"},
						"tags":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					},
					"required": []string{"content"},
				},
			},
			{
				Type:        "function",
				Name:        protocol.ToolRetrieveFromMemoryCore,
				Description: "Search long-term memory for facts about the user.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{"type": "string"},
					},
					"required": []string{"query"},
				},
			},
		},
	}
	return c.writeJSON(sessionUpdateMessage{Type: "session.update", Session: params})
}

func (c *Channel) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// readLoop translates wire events into normalized protocol events, in strict
// arrival order. It owns the events channel.
func (c *Channel) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.events <- protocol.Event{Type: protocol.EventClosed}
			_ = c.Close()
			return
		}
		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}
		if out, ok := normalize(evt); ok {
			c.events <- out
		}
	}
}

func normalize(evt serverEvent) (protocol.Event, bool) {
	switch evt.Type {
	case "response.audio.delta":
		pcm, err := base64.StdEncoding.DecodeString(evt.Delta)
		if err != nil || len(pcm) == 0 {
			return protocol.Event{}, false
		}
		return protocol.Event{Type: protocol.EventAudioDelta, PCM: pcm}, true

	case "response.audio_transcript.delta":
		if evt.Delta == "" {
			return protocol.Event{}, false
		}
		return protocol.Event{
			Type:   protocol.EventTranscriptDelta,
			Source: protocol.SourceAgent,
			Text:   evt.Delta,
		}, true

	case "conversation.item.input_audio_transcription.delta":
		if evt.Delta == "" {
			return protocol.Event{}, false
		}
		return protocol.Event{
			Type:   protocol.EventTranscriptDelta,
			Source: protocol.SourceUser,
			Text:   evt.Delta,
		}, true

	case "conversation.item.input_audio_transcription.completed":
		if evt.Transcript == "" {
			return protocol.Event{}, false
		}
		return protocol.Event{
			Type:   protocol.EventTranscriptDelta,
			Source: protocol.SourceUser,
			Text:   evt.Transcript,
		}, true

	case "response.function_call_arguments.done":
		return protocol.Event{
			Type: protocol.EventToolCall,
			Call: &protocol.ToolCall{
				Name:      evt.Name,
				CallID:    evt.CallID,
				Arguments: evt.Arguments,
			},
		}, true

	case "response.done":
		return protocol.Event{Type: protocol.EventTurnComplete}, true

	case "input_audio_buffer.speech_started":
		return protocol.Event{Type: protocol.EventInterrupted}, true

	case "error":
		out := protocol.Event{Type: protocol.EventError}
		if evt.Error != nil {
			out.Code = evt.Error.Code
			out.Detail = evt.Error.Message
		}
		return out, true
	}
	return protocol.Event{}, false
}
