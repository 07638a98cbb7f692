// Package devserver is a local stub implementation of the chat server
// protocol, used to exercise the client end to end during development
// and integration tests.
package devserver

import (
	"context"
	"errors"

	"github.com/ashureev/streamchat/internal/domain"
)

// ErrChatNotFound is returned when a chat id has no row.
var ErrChatNotFound = errors.New("chat not found")

// Store persists chats and messages for the stub server.
type Store interface {
	// CreateChat creates a chat for a user and returns it.
	CreateChat(ctx context.Context, userID int64) (*domain.Chat, error)

	// GetChat retrieves a chat with its messages in chronological order.
	GetChat(ctx context.Context, chatID int64) (*domain.Chat, error)

	// UserChats lists a user's chats, most recently updated first.
	UserChats(ctx context.Context, userID int64) ([]domain.Chat, error)

	// AddMessage appends a message to a chat and returns its id.
	AddMessage(ctx context.Context, msg *domain.Message) (int64, error)

	// UpdateTitle sets a chat's title.
	UpdateTitle(ctx context.Context, chatID int64, title string) error

	// DeleteChats removes the given chats and their messages.
	DeleteChats(ctx context.Context, chatIDs []int64) error

	// DeleteEmptyChats removes a user's chats that have no messages.
	DeleteEmptyChats(ctx context.Context, userID int64) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
