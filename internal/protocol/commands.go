package protocol

import (
	"encoding/json"
	"errors"
	"strings"
)

// Outbound command actions.
const (
	ActionCreateChat  = "create_chat"
	ActionJoinChat    = "join_chat"
	ActionSendMessage = "send_message"
)

var (
	// ErrInvalidChatID is returned when a command requires a positive chat id.
	ErrInvalidChatID = errors.New("chat id must be positive")
	// ErrEmptyContent is returned when send_message has no text.
	ErrEmptyContent = errors.New("message content must not be empty")
)

// Command is a fully-formed outbound protocol command.
type Command struct {
	Action         string `json:"action"`
	UserID         int64  `json:"user_id,omitempty"`
	InitialMessage string `json:"initial_message,omitempty"`
	ChatID         int64  `json:"chat_id,omitempty"`
	Content        string `json:"content,omitempty"`
}

// Encode serializes the command for transmission.
func (c Command) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// CreateChat builds a create_chat command. The initial message is
// optional and may be empty.
func CreateChat(userID int64, initialMessage string) Command {
	return Command{
		Action:         ActionCreateChat,
		UserID:         userID,
		InitialMessage: initialMessage,
	}
}

// JoinChat builds a join_chat command for an existing chat.
func JoinChat(chatID int64) (Command, error) {
	if chatID <= 0 {
		return Command{}, ErrInvalidChatID
	}
	return Command{Action: ActionJoinChat, ChatID: chatID}, nil
}

// SendMessage builds a send_message command.
func SendMessage(chatID int64, content string) (Command, error) {
	if chatID <= 0 {
		return Command{}, ErrInvalidChatID
	}
	if strings.TrimSpace(content) == "" {
		return Command{}, ErrEmptyContent
	}
	return Command{Action: ActionSendMessage, ChatID: chatID, Content: content}, nil
}
