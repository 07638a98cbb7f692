// Package transcript maintains the append-only ordered transcript of a
// chat session, merging full messages and streamed tokens into one
// consistent view.
package transcript

import (
	"sync"
	"time"

	"github.com/ashureev/streamchat/internal/domain"
)

// streamKey identifies the open streaming target for one generation.
type streamKey struct {
	chatID int64
	taskID string
}

// Transcript is the ordered collection of messages for the current
// chat view. Entries are never reordered and never removed
// individually; ReplaceAll swaps the whole view on a history load.
type Transcript struct {
	mu      sync.RWMutex
	entries []*domain.Message
	open    map[streamKey]*domain.Message
	now     func() time.Time
}

// New creates an empty transcript.
func New() *Transcript {
	return &Transcript{
		open: make(map[streamKey]*domain.Message),
		now:  time.Now,
	}
}

// Merge inserts a full message unless it duplicates an existing entry.
// A duplicate is an id match, or the same chat carrying the same text
// from the same originator. Returns true if the message was inserted.
//
// An inserted assistant message without a structured payload becomes
// the open streaming target for its task so that trailing tokens
// append to it rather than opening a second entry.
func (t *Transcript) Merge(msg domain.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, e := range t.entries {
		if msg.ID != 0 && e.ID == msg.ID {
			return false
		}
		if e.ChatID == msg.ChatID && e.Content == msg.Content && e.IsAI == msg.IsAI {
			return false
		}
	}

	entry := msg
	t.entries = append(t.entries, &entry)

	if entry.IsAI && !entry.IsError && !entry.HasStructured() && entry.TaskID != "" {
		t.setOpen(&entry)
	}
	return true
}

// AppendToken extends the open entry for (chatID, taskID) with text,
// or opens a new assistant entry seeded with the token when no
// appendable target exists.
func (t *Transcript) AppendToken(chatID int64, taskID, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := streamKey{chatID: chatID, taskID: taskID}
	if e, ok := t.open[key]; ok && !e.IsError && !e.HasStructured() {
		e.Content += text
		return
	}

	now := t.now()
	entry := &domain.Message{
		ID:        now.UnixMilli(),
		ChatID:    chatID,
		Content:   text,
		IsAI:      true,
		TaskID:    taskID,
		Timestamp: now,
	}
	t.entries = append(t.entries, entry)
	t.setOpen(entry)
}

// AppendError appends a terminal error entry. Error entries never
// become streaming targets.
func (t *Transcript) AppendError(chatID int64, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.entries = append(t.entries, &domain.Message{
		ID:        now.UnixMilli(),
		ChatID:    chatID,
		Content:   reason,
		IsAI:      true,
		IsError:   true,
		Timestamp: now,
	})
}

// SetStructured attaches a structured payload to the open entry for
// (chatID, taskID), opening one if needed. Repeated calls overwrite
// the payload in place: the server streams progressively larger
// partial trees for one task. A structured entry never accepts token
// appends.
func (t *Transcript) SetStructured(chatID int64, taskID string, data map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := streamKey{chatID: chatID, taskID: taskID}
	if e, ok := t.open[key]; ok && !e.IsError {
		e.Structured = data
		return
	}

	now := t.now()
	entry := &domain.Message{
		ID:         now.UnixMilli(),
		ChatID:     chatID,
		IsAI:       true,
		TaskID:     taskID,
		Structured: data,
		Timestamp:  now,
	}
	t.entries = append(t.entries, entry)
	t.setOpen(entry)
}

// CloseTask ends appendability for (chatID, taskID).
func (t *Transcript) CloseTask(chatID int64, taskID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.open, streamKey{chatID: chatID, taskID: taskID})
}

// CloseAll ends appendability for every open entry.
func (t *Transcript) CloseAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open = make(map[streamKey]*domain.Message)
}

// ReplaceAll swaps the transcript for a server-provided history
// snapshot, preserving the server's order. All open entries are
// discarded with the old view.
func (t *Transcript) ReplaceAll(entries []domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = make([]*domain.Message, 0, len(entries))
	for i := range entries {
		entry := entries[i]
		t.entries = append(t.entries, &entry)
	}
	t.open = make(map[streamKey]*domain.Message)
}

// Clear empties the transcript, used when the current chat is deleted.
func (t *Transcript) Clear() {
	t.ReplaceAll(nil)
}

// Entries returns a copy of the transcript in order.
func (t *Transcript) Entries() []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]domain.Message, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, *e)
	}
	return out
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// setOpen makes entry the single open target for its task, displacing
// any prior open entry for the same (chat, task). Caller holds t.mu.
func (t *Transcript) setOpen(entry *domain.Message) {
	t.open[streamKey{chatID: entry.ChatID, taskID: entry.TaskID}] = entry
}
