// Package domain contains core domain types for the streamchat client.
package domain

import (
	"time"
)

// Originator identifies who produced a transcript entry.
type Originator string

const (
	// OriginatorUser marks an entry typed by the end user.
	OriginatorUser Originator = "user"
	// OriginatorAssistant marks an entry generated by the assistant.
	OriginatorAssistant Originator = "assistant"
)

// Message is a single entry in a chat transcript.
//
// Content is mutable only while the entry is the open streaming target
// for its TaskID; everything else is written once. An entry with
// IsError set is terminal and never receives further appends.
type Message struct {
	ID         int64          `json:"id"`
	ChatID     int64          `json:"chat_id"`
	Content    string         `json:"content"`
	IsAI       bool           `json:"is_ai"`
	TaskID     string         `json:"task_id,omitempty"`
	Structured map[string]any `json:"structured,omitempty"`
	IsError    bool           `json:"is_error,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Originator derives the entry's originator from the IsAI flag.
func (m *Message) Originator() Originator {
	if m.IsAI {
		return OriginatorAssistant
	}
	return OriginatorUser
}

// HasStructured returns true if the entry carries a structured payload.
func (m *Message) HasStructured() bool {
	return len(m.Structured) > 0
}
