package domain

import (
	"time"
)

// Chat is a read-mostly client projection of a server-owned conversation.
type Chat struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages,omitempty"`
}

// IsEmpty returns true if the chat has no messages loaded.
func (c *Chat) IsEmpty() bool {
	return len(c.Messages) == 0
}
