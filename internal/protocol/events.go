// Package protocol defines the JSON wire protocol spoken over the
// chat WebSocket: inbound server events and outbound client commands.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ashureev/streamchat/internal/domain"
)

// Inbound event discriminants.
const (
	EventChatCreated        = "chat_created"
	EventChatJoined         = "chat_joined"
	EventUpdateTitle        = "update_title"
	EventMessage            = "message"
	EventToken              = "token"
	EventTaskCompleted      = "task_completed"
	EventTaskFailed         = "task_failed"
	EventError              = "error"
	EventGenerationComplete = "generation_complete"
	// EventStructuredToken is an optional extension carrying a partial
	// structured payload for the in-flight generation.
	EventStructuredToken = "structured_token"
)

// HeartbeatFrame is the single-byte liveness probe sent client->server
// while the connection is open.
var HeartbeatFrame = []byte{0x9}

// PongFrame is the single-byte heartbeat acknowledgement.
var PongFrame = []byte{0xA}

// Event is one decoded inbound frame. Only Type is guaranteed; the
// remaining fields are populated per discriminant. The "message" field
// is a string on error events and an object on message events, so it
// stays raw until a typed accessor is called.
type Event struct {
	Type         string          `json:"type"`
	ChatID       int64           `json:"chat_id,omitempty"`
	Title        string          `json:"title,omitempty"`
	Message      json.RawMessage `json:"message,omitempty"`
	Content      json.RawMessage `json:"content,omitempty"`
	TaskID       string          `json:"task_id,omitempty"`
	Continuation bool            `json:"continuation,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	Data         map[string]any  `json:"data,omitempty"`
}

// DecodeEvent parses one inbound text frame.
func DecodeEvent(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("decode event: missing type discriminant")
	}
	return &ev, nil
}

// TokenText returns the token content if it is textual.
func (e *Event) TokenText() (string, bool) {
	if len(e.Content) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(e.Content, &s); err != nil {
		return "", false
	}
	return s, true
}

// ErrorText returns the error payload of an error event.
func (e *Event) ErrorText() string {
	var s string
	if err := json.Unmarshal(e.Message, &s); err == nil && s != "" {
		return s
	}
	if e.Error != "" {
		return e.Error
	}
	return "unknown error"
}

// ResultText returns the completion result content, if any. Results
// arrive either as a bare string or as an object with a content field.
func (e *Event) ResultText() string {
	if len(e.Result) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Result, &s); err == nil {
		return s
	}
	var obj struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(e.Result, &obj); err == nil {
		return obj.Content
	}
	return ""
}

// ChatMessage decodes the message object of a message event.
func (e *Event) ChatMessage() (*WireMessage, error) {
	if len(e.Message) == 0 {
		return nil, fmt.Errorf("message event without message payload")
	}
	var wm WireMessage
	if err := json.Unmarshal(e.Message, &wm); err != nil {
		return nil, fmt.Errorf("decode message payload: %w", err)
	}
	return &wm, nil
}

// InitialMessage returns the echoed seed message of a chat_created
// event, empty if none was included.
func (e *Event) InitialMessage() string {
	var s string
	if err := json.Unmarshal(e.Message, &s); err != nil {
		return ""
	}
	return s
}

// WireMessage is the message object embedded in message events and
// REST history responses.
type WireMessage struct {
	ID         int64          `json:"id"`
	ChatID     int64          `json:"chat_id"`
	Content    string         `json:"content"`
	IsAI       bool           `json:"is_ai"`
	TaskID     string         `json:"task_id,omitempty"`
	Structured map[string]any `json:"structured,omitempty"`
	Timestamp  string         `json:"timestamp"`
}

// ToDomain converts a wire message into a transcript entry.
func (w *WireMessage) ToDomain() domain.Message {
	return domain.Message{
		ID:         w.ID,
		ChatID:     w.ChatID,
		Content:    w.Content,
		IsAI:       w.IsAI,
		TaskID:     w.TaskID,
		Structured: w.Structured,
		Timestamp:  ParseTimestamp(w.Timestamp),
	}
}

// timestampLayouts covers RFC3339 plus the naive ISO format the server
// emits for timezone-less timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses a server timestamp, returning the zero time
// for anything unparseable.
func ParseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
