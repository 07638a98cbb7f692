package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ashureev/streamchat/internal/domain"
	"github.com/ashureev/streamchat/internal/protocol"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

// WSHandler serves the chat WebSocket endpoint of the stub server.
type WSHandler struct {
	store     Store
	registry  *Registry
	assistant *Assistant
}

// NewWSHandler creates the WebSocket handler.
func NewWSHandler(store Store, registry *Registry, assistant *Assistant) *WSHandler {
	return &WSHandler{store: store, registry: registry, assistant: assistant}
}

// ServeHTTP upgrades the connection and runs the command loop.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := conn.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.registry.Register(userID, conn)
	defer h.registry.Unregister(userID, conn)

	h.commandLoop(r.Context(), conn, userID)
}

func (h *WSHandler) commandLoop(ctx context.Context, conn *websocket.Conn, userID int64) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		// Heartbeat probes are answered immediately and never decoded.
		if bytes.Equal(data, protocol.HeartbeatFrame) {
			if err := conn.Write(ctx, websocket.MessageBinary, protocol.PongFrame); err != nil {
				slog.Debug("Failed to send pong", "error", err, "user_id", userID)
			}
			continue
		}

		var cmd protocol.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			h.sendError(userID, "malformed command")
			continue
		}

		switch cmd.Action {
		case protocol.ActionCreateChat:
			h.handleCreate(ctx, userID, cmd)
		case protocol.ActionJoinChat:
			h.handleJoin(ctx, userID, cmd)
		case protocol.ActionSendMessage:
			h.handleSend(ctx, userID, cmd)
		default:
			h.sendError(userID, "unknown action: "+cmd.Action)
		}
	}
}

func (h *WSHandler) handleCreate(ctx context.Context, userID int64, cmd protocol.Command) {
	chat, err := h.store.CreateChat(ctx, userID)
	if err != nil {
		slog.Error("Failed to create chat", "error", err, "user_id", userID)
		h.sendError(userID, "failed to create chat")
		return
	}

	payload := map[string]any{
		"type":    protocol.EventChatCreated,
		"chat_id": chat.ID,
	}
	if cmd.InitialMessage != "" {
		payload["message"] = cmd.InitialMessage
	}
	h.send(userID, payload)

	if cmd.InitialMessage != "" {
		h.persistUserMessage(ctx, userID, chat.ID, cmd.InitialMessage)
		h.assistant.Generate(userID, chat.ID, cmd.InitialMessage)
	}
}

func (h *WSHandler) handleJoin(ctx context.Context, userID int64, cmd protocol.Command) {
	if _, err := h.store.GetChat(ctx, cmd.ChatID); err != nil {
		h.sendError(userID, "chat not found")
		return
	}
	h.send(userID, map[string]any{
		"type":    protocol.EventChatJoined,
		"chat_id": cmd.ChatID,
	})
}

func (h *WSHandler) handleSend(ctx context.Context, userID int64, cmd protocol.Command) {
	chat, err := h.store.GetChat(ctx, cmd.ChatID)
	if err != nil {
		h.sendError(userID, "chat not found")
		return
	}
	if cmd.Content == "" {
		h.sendError(userID, "empty message")
		return
	}

	h.persistUserMessage(ctx, userID, cmd.ChatID, cmd.Content)

	// First message titles the chat.
	if chat.Title == "" {
		title := cmd.Content
		if len(title) > 40 {
			title = title[:40]
		}
		if err := h.store.UpdateTitle(ctx, cmd.ChatID, title); err != nil {
			slog.Warn("Failed to set chat title", "error", err, "chat_id", cmd.ChatID)
		} else {
			h.send(userID, map[string]any{
				"type":    protocol.EventUpdateTitle,
				"chat_id": cmd.ChatID,
				"title":   title,
			})
		}
	}

	h.assistant.Generate(userID, cmd.ChatID, cmd.Content)
}

func (h *WSHandler) persistUserMessage(ctx context.Context, userID, chatID int64, content string) {
	msg := &domain.Message{
		ChatID:    chatID,
		Content:   content,
		Timestamp: time.Now(),
	}
	if _, err := h.store.AddMessage(ctx, msg); err != nil {
		slog.Error("Failed to persist user message", "error", err, "chat_id", chatID)
		h.sendError(userID, "failed to save message")
		return
	}

	h.send(userID, map[string]any{
		"type": protocol.EventMessage,
		"message": protocol.WireMessage{
			ID:        msg.ID,
			ChatID:    msg.ChatID,
			Content:   msg.Content,
			IsAI:      false,
			Timestamp: msg.Timestamp.Format(time.RFC3339Nano),
		},
	})
}

func (h *WSHandler) send(userID int64, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to encode event", "error", err)
		return
	}
	h.registry.Broadcast(userID, data)
}

func (h *WSHandler) sendError(userID int64, message string) {
	h.send(userID, map[string]any{
		"type":    protocol.EventError,
		"message": message,
	})
}
