package devserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ashureev/streamchat/internal/domain"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Handler serves the REST chat-history surface of the stub server.
type Handler struct {
	store     Store
	assistant *Assistant
}

// NewHandler creates the REST handler.
func NewHandler(store Store, assistant *Assistant) *Handler {
	return &Handler{store: store, assistant: assistant}
}

// NewRouter assembles the full stub server: REST surface plus the
// chat WebSocket endpoint.
func NewRouter(store Store) http.Handler {
	registry := NewRegistry()
	assistant := NewAssistant(store, registry)
	rest := NewHandler(store, assistant)
	wsHandler := NewWSHandler(store, registry, assistant)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	rest.RegisterRoutes(r)
	r.Get("/ws/{userID}", wsHandler.ServeHTTP)
	return r
}

// RegisterRoutes mounts the REST endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chats", h.createChat)
	r.Get("/chats/{chatID}", h.getChat)
	r.Post("/chats/{chatID}/abort", h.abortTask)
	r.Get("/users/{userID}/chats", h.userChats)
	r.Delete("/users/{userID}/chats/empty", h.deleteEmptyChats)
	r.Post("/chats/batch-delete", h.deleteChats)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"detail": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response with a detail field.
func Error(w http.ResponseWriter, status int, detail string) {
	JSON(w, status, map[string]string{"detail": detail})
}

func (h *Handler) createChat(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		Error(w, http.StatusBadRequest, "invalid user_id")
		return
	}

	chat, err := h.store.CreateChat(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to create chat", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to create chat")
		return
	}
	JSON(w, http.StatusOK, chat)
}

func (h *Handler) getChat(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid chat id")
		return
	}

	chat, err := h.store.GetChat(r.Context(), chatID)
	if errors.Is(err, ErrChatNotFound) {
		Error(w, http.StatusNotFound, "Chat not found")
		return
	}
	if err != nil {
		slog.Error("Failed to get chat", "error", err, "chat_id", chatID)
		Error(w, http.StatusInternalServerError, "failed to get chat")
		return
	}
	JSON(w, http.StatusOK, chat)
}

func (h *Handler) userChats(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid user id")
		return
	}

	chats, err := h.store.UserChats(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to list chats", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to list chats")
		return
	}
	if chats == nil {
		chats = []domain.Chat{}
	}
	JSON(w, http.StatusOK, chats)
}

func (h *Handler) deleteChats(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChatIDs []int64 `json:"chat_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.store.DeleteChats(r.Context(), req.ChatIDs); err != nil {
		slog.Error("Failed to delete chats", "error", err)
		Error(w, http.StatusInternalServerError, "failed to delete chats")
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"status":        "success",
		"deleted_count": len(req.ChatIDs),
	})
}

func (h *Handler) deleteEmptyChats(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid user id")
		return
	}

	deleted, err := h.store.DeleteEmptyChats(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to delete empty chats", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to delete empty chats")
		return
	}
	JSON(w, http.StatusOK, map[string]int64{"deleted_count": deleted})
}

func (h *Handler) abortTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("task_id")
	if taskID == "" {
		Error(w, http.StatusBadRequest, "task_id required")
		return
	}

	if !h.assistant.Abort(taskID) {
		Error(w, http.StatusNotFound, "task not running")
		return
	}
	JSON(w, http.StatusOK, map[string]string{
		"status":  "aborted",
		"task_id": taskID,
	})
}
