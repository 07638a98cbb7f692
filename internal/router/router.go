// Package router classifies inbound protocol events and applies the
// matching transcript-mutation rule for each.
package router

import (
	"log/slog"
	"sync"

	"github.com/ashureev/streamchat/internal/protocol"
	"github.com/ashureev/streamchat/internal/transcript"
)

// Callbacks are side effects the router may trigger. Both must be
// fire-and-forget relative to frame processing: a slow callback must
// not stall dispatch of subsequent frames.
type Callbacks struct {
	// RefreshChat forces a cache-invalidating history re-fetch for a chat.
	RefreshChat func(chatID int64)
	// RefreshList refreshes the user's chat list.
	RefreshList func()
}

// Router dispatches decoded inbound events to exactly one handling
// rule. Unknown discriminants are logged and dropped; nothing here is
// fatal to the connection.
type Router struct {
	transcript *transcript.Transcript
	cb         Callbacks

	mu           sync.Mutex
	currentChat  int64
	currentTask  string
	streamActive bool
}

// New creates a router mutating the given transcript.
func New(t *transcript.Transcript, cb Callbacks) *Router {
	if cb.RefreshChat == nil {
		cb.RefreshChat = func(int64) {}
	}
	if cb.RefreshList == nil {
		cb.RefreshList = func() {}
	}
	return &Router{transcript: t, cb: cb}
}

// CurrentChat returns the chat id recorded by the most recent
// chat_created/chat_joined event, or 0 if none.
func (r *Router) CurrentChat() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentChat
}

// SetCurrentChat records the chat the client is viewing. Used when a
// chat is opened through the REST surface rather than a join event.
func (r *Router) SetCurrentChat(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentChat = chatID
}

// StreamActive reports whether an assistant generation is in flight.
func (r *Router) StreamActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streamActive
}

// Dispatch decodes one inbound frame and applies its rule. Malformed
// frames are dropped with a log line; the router never panics the
// read loop.
func (r *Router) Dispatch(data []byte) {
	ev, err := protocol.DecodeEvent(data)
	if err != nil {
		slog.Warn("Dropping malformed frame", "error", err)
		return
	}

	switch ev.Type {
	case protocol.EventChatCreated:
		r.handleChatCreated(ev)
	case protocol.EventChatJoined:
		r.handleChatJoined(ev)
	case protocol.EventUpdateTitle:
		r.cb.RefreshList()
	case protocol.EventMessage:
		r.handleMessage(ev)
	case protocol.EventToken:
		r.handleToken(ev)
	case protocol.EventStructuredToken:
		r.handleStructuredToken(ev)
	case protocol.EventTaskCompleted:
		r.handleTaskCompleted(ev)
	case protocol.EventTaskFailed:
		r.handleTaskFailed(ev)
	case protocol.EventError:
		r.handleError(ev)
	case protocol.EventGenerationComplete:
		r.handleGenerationComplete(ev)
	default:
		slog.Debug("Dropping unknown event type", "type", ev.Type)
	}
}

func (r *Router) handleChatCreated(ev *protocol.Event) {
	r.mu.Lock()
	r.currentChat = ev.ChatID
	r.mu.Unlock()

	slog.Info("Chat created", "chat_id", ev.ChatID)

	// An echoed seed message means the authoritative transcript already
	// differs from any optimistic local copy.
	if ev.InitialMessage() != "" {
		r.cb.RefreshChat(ev.ChatID)
	}
}

func (r *Router) handleChatJoined(ev *protocol.Event) {
	r.mu.Lock()
	r.currentChat = ev.ChatID
	r.mu.Unlock()
	slog.Info("Chat joined", "chat_id", ev.ChatID)
}

func (r *Router) handleMessage(ev *protocol.Event) {
	wm, err := ev.ChatMessage()
	if err != nil {
		slog.Warn("Dropping message event", "error", err)
		return
	}

	msg := wm.ToDomain()
	r.transcript.Merge(msg)

	// An assistant message without a structured payload anticipates a
	// token stream for its task.
	if msg.IsAI && !msg.HasStructured() {
		r.mu.Lock()
		r.streamActive = true
		if msg.TaskID != "" {
			r.currentTask = msg.TaskID
		}
		r.mu.Unlock()
	}
}

func (r *Router) handleToken(ev *protocol.Event) {
	text, ok := ev.TokenText()
	if !ok {
		return
	}

	r.mu.Lock()
	taskID := ev.TaskID
	if taskID == "" {
		taskID = r.currentTask
	} else {
		r.currentTask = taskID
	}
	chatID := r.currentChat
	if !ev.Continuation {
		r.streamActive = true
	}
	r.mu.Unlock()

	r.transcript.AppendToken(chatID, taskID, text)
}

func (r *Router) handleStructuredToken(ev *protocol.Event) {
	if len(ev.Data) == 0 {
		return
	}

	r.mu.Lock()
	taskID := ev.TaskID
	if taskID == "" {
		taskID = r.currentTask
	} else {
		r.currentTask = taskID
	}
	chatID := r.currentChat
	r.streamActive = true
	r.mu.Unlock()

	r.transcript.SetStructured(chatID, taskID, ev.Data)
}

func (r *Router) handleTaskCompleted(ev *protocol.Event) {
	if ev.ResultText() == "" {
		return
	}

	r.mu.Lock()
	r.streamActive = false
	chatID := r.currentChat
	r.mu.Unlock()

	// Authoritative content arrives via a message event or history
	// refresh; completion only closes the stream.
	r.transcript.CloseTask(chatID, ev.TaskID)
}

func (r *Router) handleTaskFailed(ev *protocol.Event) {
	r.mu.Lock()
	r.streamActive = false
	chatID := r.currentChat
	r.mu.Unlock()

	reason := ev.Error
	if reason == "" {
		reason = "task failed"
	}
	slog.Warn("Task failed", "task_id", ev.TaskID, "error", reason)

	r.transcript.CloseTask(chatID, ev.TaskID)
	r.transcript.AppendError(chatID, reason)
}

// handleError surfaces a server error as a terminal transcript entry.
// Policy: a bare error also resets streaming to idle even though it
// may be unrelated to an in-flight generation; open entries stay
// appendable so a straggling token is not orphaned.
func (r *Router) handleError(ev *protocol.Event) {
	r.mu.Lock()
	r.streamActive = false
	chatID := r.currentChat
	r.mu.Unlock()

	reason := ev.ErrorText()
	slog.Warn("Server error", "error", reason)
	r.transcript.AppendError(chatID, reason)
}

func (r *Router) handleGenerationComplete(ev *protocol.Event) {
	r.mu.Lock()
	r.streamActive = false
	chatID := r.currentChat
	r.mu.Unlock()

	r.transcript.CloseTask(chatID, ev.TaskID)
}
