// Package rest is the client for the chat history REST surface.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ashureev/streamchat/internal/domain"
	"github.com/ashureev/streamchat/internal/protocol"
)

// Client talks to the chat server's REST endpoints. All methods return
// errors for the caller to log; none of them are fatal to the client.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a REST client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// wireChat is the chat resource as the server serializes it.
type wireChat struct {
	ID        int64                  `json:"id"`
	UserID    int64                  `json:"user_id"`
	Title     string                 `json:"title"`
	CreatedAt string                 `json:"created_at"`
	UpdatedAt string                 `json:"updated_at"`
	Messages  []protocol.WireMessage `json:"messages"`
}

func (w *wireChat) toDomain() domain.Chat {
	chat := domain.Chat{
		ID:        w.ID,
		UserID:    w.UserID,
		Title:     w.Title,
		CreatedAt: protocol.ParseTimestamp(w.CreatedAt),
		UpdatedAt: protocol.ParseTimestamp(w.UpdatedAt),
	}
	for i := range w.Messages {
		chat.Messages = append(chat.Messages, w.Messages[i].ToDomain())
	}
	return chat
}

// UserChats fetches the chat list for a user.
func (c *Client) UserChats(ctx context.Context, userID int64) ([]domain.Chat, error) {
	var wire []wireChat
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/users/%d/chats", userID), nil, &wire); err != nil {
		return nil, err
	}
	chats := make([]domain.Chat, 0, len(wire))
	for i := range wire {
		chats = append(chats, wire[i].toDomain())
	}
	return chats, nil
}

// Chat fetches one chat with its full message history.
func (c *Client) Chat(ctx context.Context, chatID int64) (*domain.Chat, error) {
	var wire wireChat
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/chats/%d", chatID), nil, &wire); err != nil {
		return nil, err
	}
	chat := wire.toDomain()
	return &chat, nil
}

// DeleteChats removes the given chats in one batch.
func (c *Client) DeleteChats(ctx context.Context, chatIDs []int64) error {
	body := map[string][]int64{"chat_ids": chatIDs}
	return c.do(ctx, http.MethodPost, "/chats/batch-delete", body, nil)
}

// DeleteEmptyChats sweeps the user's empty chats server-side and
// returns how many were removed.
func (c *Client) DeleteEmptyChats(ctx context.Context, userID int64) (int64, error) {
	var out struct {
		DeletedCount int64 `json:"deleted_count"`
	}
	err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/users/%d/chats/empty", userID), nil, &out)
	return out.DeletedCount, err
}

// AbortTask asks the server to abort an in-flight generation.
func (c *Client) AbortTask(ctx context.Context, chatID int64, taskID string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/chats/%d/abort?task_id=%s", chatID, taskID), nil, nil)
}

// do issues one request and decodes the JSON response into out when
// non-nil. Non-2xx responses carry a detail field used as the error
// message.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var detail struct {
			Detail string `json:"detail"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil || detail.Detail == "" {
			return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: %s", method, path, detail.Detail)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
