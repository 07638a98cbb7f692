package devserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/streamchat/internal/domain"
	"github.com/ashureev/streamchat/internal/protocol"
	"github.com/google/uuid"
)

// Assistant fakes the generation backend: it streams a canned reply
// token by token under a task id, persists the final message, and
// supports mid-stream aborts.
type Assistant struct {
	store      Store
	registry   *Registry
	tokenDelay time.Duration

	mu    sync.Mutex
	tasks map[string]context.CancelFunc
}

// NewAssistant creates an assistant writing through store and
// broadcasting via registry.
func NewAssistant(store Store, registry *Registry) *Assistant {
	return &Assistant{
		store:      store,
		registry:   registry,
		tokenDelay: 20 * time.Millisecond,
		tasks:      make(map[string]context.CancelFunc),
	}
}

// Generate starts a canned generation for prompt and returns its task
// id. The stream runs on its own goroutine.
func (a *Assistant) Generate(userID, chatID int64, prompt string) string {
	taskID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	a.mu.Lock()
	a.tasks[taskID] = cancel
	a.mu.Unlock()

	go a.stream(ctx, userID, chatID, taskID, prompt)
	return taskID
}

// Abort cancels an in-flight generation. Returns false if the task is
// not running.
func (a *Assistant) Abort(taskID string) bool {
	a.mu.Lock()
	cancel, ok := a.tasks[taskID]
	a.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (a *Assistant) stream(ctx context.Context, userID, chatID int64, taskID, prompt string) {
	defer func() {
		a.mu.Lock()
		delete(a.tasks, taskID)
		a.mu.Unlock()
	}()

	var builder strings.Builder
	for _, token := range cannedReply(prompt) {
		select {
		case <-ctx.Done():
			a.broadcast(userID, map[string]any{
				"type":    protocol.EventTaskFailed,
				"task_id": taskID,
				"error":   "generation aborted",
			})
			return
		case <-time.After(a.tokenDelay):
		}

		builder.WriteString(token)
		a.broadcast(userID, map[string]any{
			"type":    protocol.EventToken,
			"content": token,
			"task_id": taskID,
		})
	}

	msg := &domain.Message{
		ChatID:    chatID,
		Content:   builder.String(),
		IsAI:      true,
		TaskID:    taskID,
		Timestamp: time.Now(),
	}
	storeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := a.store.AddMessage(storeCtx, msg); err != nil {
		slog.Error("Failed to persist assistant message", "error", err, "chat_id", chatID)
	}

	a.broadcast(userID, map[string]any{
		"type":    protocol.EventTaskCompleted,
		"task_id": taskID,
		"result":  map[string]any{"content": msg.Content},
	})
	a.broadcast(userID, map[string]any{
		"type":    protocol.EventGenerationComplete,
		"task_id": taskID,
	})
}

func (a *Assistant) broadcast(userID int64, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to encode event", "error", err)
		return
	}
	a.registry.Broadcast(userID, data)
}

// cannedReply tokenizes a fixed acknowledgement of the prompt. Word
// granularity is enough to exercise the client's append path.
func cannedReply(prompt string) []string {
	words := strings.Fields("You said: " + prompt)
	tokens := make([]string, 0, len(words))
	for i, w := range words {
		if i > 0 {
			w = " " + w
		}
		tokens = append(tokens, w)
	}
	return tokens
}
