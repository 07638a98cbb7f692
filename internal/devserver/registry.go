package devserver

import (
	"context"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Registry tracks active WebSocket connections per user so events can
// reach every open tab.
type Registry struct {
	mu     sync.RWMutex
	active map[int64]map[*websocket.Conn]struct{}
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		active: make(map[int64]map[*websocket.Conn]struct{}),
	}
}

// Register adds a connection for a user.
func (r *Registry) Register(userID int64, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.active[userID]; !exists {
		r.active[userID] = make(map[*websocket.Conn]struct{})
	}
	r.active[userID][conn] = struct{}{}
	slog.Info("Chat connection registered", "user_id", userID)
}

// Unregister removes a connection for a user.
func (r *Registry) Unregister(userID int64, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conns, ok := r.active[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(r.active, userID)
		}
		slog.Info("Chat connection unregistered", "user_id", userID)
	}
}

// Broadcast sends a text frame to every open connection of a user.
// Write failures are logged and skipped; the read loop of the failed
// connection handles its own teardown.
func (r *Registry) Broadcast(userID int64, payload []byte) {
	r.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(r.active[userID]))
	for conn := range r.active[userID] {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.Write(context.Background(), websocket.MessageText, payload); err != nil {
			slog.Debug("Broadcast write failed", "error", err, "user_id", userID)
		}
	}
}
