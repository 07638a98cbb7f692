// Package session wires the chat client together: connection manager,
// event router, transcript, cache, and REST collaborator, owned by one
// explicit session object with no process-wide state.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/streamchat/internal/cache"
	"github.com/ashureev/streamchat/internal/domain"
	"github.com/ashureev/streamchat/internal/protocol"
	"github.com/ashureev/streamchat/internal/rest"
	"github.com/ashureev/streamchat/internal/router"
	"github.com/ashureev/streamchat/internal/transcript"
	"github.com/ashureev/streamchat/internal/ws"
)

const (
	// joinRetryInterval is the wait between join attempts while the
	// connection is still coming up.
	joinRetryInterval = 500 * time.Millisecond
	// joinDeadline is the hard ceiling on join retries. Past it the
	// join gives up silently.
	joinDeadline = 10 * time.Second
)

// Options configures a client session.
type Options struct {
	UserID    int64
	ServerURL string // http(s) base URL of the chat server
	Dialer    ws.Dialer
}

// Session is one user's live chat client instance.
type Session struct {
	userID int64
	wsURL  string

	mgr        *ws.Manager
	monitor    *ws.Monitor
	transcript *transcript.Transcript
	router     *router.Router
	cache      *cache.ChatCache
	rest       *rest.Client

	// OnChatList, when set before Connect, receives refreshed chat
	// lists triggered by title updates.
	OnChatList func(chats []domain.Chat)

	closeOnce sync.Once
}

// New builds a session for the given server. The zero Dialer means the
// production WebSocket dialer.
func New(opts Options) *Session {
	if opts.Dialer == nil {
		opts.Dialer = ws.Dial
	}

	monitor := ws.NewMonitor()
	s := &Session{
		userID:     opts.UserID,
		wsURL:      wsEndpoint(opts.ServerURL, opts.UserID),
		monitor:    monitor,
		mgr:        ws.NewManager(opts.Dialer, monitor),
		transcript: transcript.New(),
		cache:      cache.New(),
		rest:       rest.NewClient(opts.ServerURL),
	}

	s.router = router.New(s.transcript, router.Callbacks{
		RefreshChat: s.refreshChat,
		RefreshList: s.refreshList,
	})
	s.mgr.OnFrame(s.router.Dispatch)
	return s
}

// wsEndpoint derives the per-user websocket URL from the HTTP base.
func wsEndpoint(serverURL string, userID int64) string {
	url := strings.Replace(serverURL, "https://", "wss://", 1)
	url = strings.Replace(url, "http://", "ws://", 1)
	return fmt.Sprintf("%s/ws/%d", strings.TrimSuffix(url, "/"), userID)
}

// Connect establishes the persistent connection and triggers the
// empty-chat sweep. Reconnecting after an unexpected close is the
// caller's decision; calling Connect again is sufficient.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.mgr.Connect(ctx, s.wsURL); err != nil {
		return fmt.Errorf("connect session: %w", err)
	}
	go s.sweepEmptyChats()
	return nil
}

// Close tears the session down, cancelling the heartbeat and read
// loop, and fires a final empty-chat sweep. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		go s.sweepEmptyChats()
		s.monitor.Stop()
		s.mgr.Close()
	})
}

// Transcript returns the session's transcript reconciler.
func (s *Session) Transcript() *transcript.Transcript {
	return s.transcript
}

// State returns the connection state.
func (s *Session) State() domain.ConnectionState {
	return s.mgr.State()
}

// Health returns the connection's traffic-derived health.
func (s *Session) Health() domain.Health {
	return s.monitor.Health()
}

// Subscribe registers a listener for connection state transitions.
func (s *Session) Subscribe(l ws.StatusListener) {
	s.mgr.Subscribe(l)
}

// CurrentChat returns the chat the session is viewing, 0 if none.
func (s *Session) CurrentChat() int64 {
	return s.router.CurrentChat()
}

// CreateChat asks the server for a new chat, optionally seeded with an
// initial message. The chat_created event records the new id.
func (s *Session) CreateChat(initialMessage string) error {
	cmd := protocol.CreateChat(s.userID, initialMessage)
	return s.send(cmd)
}

// SendMessage sends text to the current chat and invalidates its
// cached snapshot.
func (s *Session) SendMessage(text string) error {
	chatID := s.router.CurrentChat()
	cmd, err := protocol.SendMessage(chatID, text)
	if err != nil {
		return err
	}
	s.cache.Invalidate(chatID)
	return s.send(cmd)
}

// JoinChat joins an existing chat, retrying on a fixed interval while
// the connection is not yet open. The retry is cancellable and has a
// hard ceiling; past the deadline it gives up silently.
func (s *Session) JoinChat(ctx context.Context, chatID int64) error {
	cmd, err := protocol.JoinChat(chatID)
	if err != nil {
		return err
	}

	deadline := time.NewTimer(joinDeadline)
	defer deadline.Stop()
	ticker := time.NewTicker(joinRetryInterval)
	defer ticker.Stop()

	for {
		err := s.send(cmd)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ws.ErrNotOpen) {
			return err
		}

		select {
		case <-ticker.C:
		case <-deadline.C:
			slog.Debug("Join retry deadline reached", "chat_id", chatID)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// LoadChat makes chatID the current chat and loads its transcript,
// serving a fresh cached snapshot when one exists. While a fetch for
// the id is outstanding a concurrent load is skipped, not duplicated.
func (s *Session) LoadChat(ctx context.Context, chatID int64) error {
	s.router.SetCurrentChat(chatID)

	if snapshot, ok := s.cache.Get(chatID); ok {
		s.transcript.ReplaceAll(snapshot)
		return nil
	}

	if !s.cache.BeginLoad(chatID) {
		return nil
	}
	defer s.cache.EndLoad(chatID)

	chat, err := s.rest.Chat(ctx, chatID)
	if err != nil {
		return fmt.Errorf("load chat %d: %w", chatID, err)
	}

	s.cache.Put(chatID, chat.Messages)

	// Only install the snapshot if the user hasn't moved on to a
	// different chat while the fetch was in flight.
	if s.router.CurrentChat() == chatID {
		s.transcript.ReplaceAll(chat.Messages)
	}
	return nil
}

// ChatList fetches the user's chats.
func (s *Session) ChatList(ctx context.Context) ([]domain.Chat, error) {
	return s.rest.UserChats(ctx, s.userID)
}

// DeleteChats batch-deletes chats and drops their cached snapshots.
// Deleting the current chat clears the transcript.
func (s *Session) DeleteChats(ctx context.Context, chatIDs []int64) error {
	if err := s.rest.DeleteChats(ctx, chatIDs); err != nil {
		return err
	}
	current := s.router.CurrentChat()
	for _, id := range chatIDs {
		s.cache.Invalidate(id)
		if id == current {
			s.transcript.Clear()
			s.router.SetCurrentChat(0)
		}
	}
	return nil
}

// refreshChat is the router's history-refresh callback. The fetch runs
// off the dispatch goroutine so frame processing never stalls.
func (s *Session) refreshChat(chatID int64) {
	s.cache.Invalidate(chatID)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.LoadChat(ctx, chatID); err != nil {
			slog.Warn("History refresh failed", "chat_id", chatID, "error", err)
		}
	}()
}

// refreshList is the router's chat-list refresh callback.
func (s *Session) refreshList() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		chats, err := s.rest.UserChats(ctx, s.userID)
		if err != nil {
			slog.Warn("Chat list refresh failed", "error", err)
			return
		}
		if s.OnChatList != nil {
			s.OnChatList(chats)
		}
	}()
}

// sweepEmptyChats asks the server to remove this user's empty chats.
// Failures are logged and otherwise ignored.
func (s *Session) sweepEmptyChats() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	deleted, err := s.rest.DeleteEmptyChats(ctx, s.userID)
	if err != nil {
		slog.Debug("Empty chat sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Swept empty chats", "count", deleted)
	}
}

func (s *Session) send(cmd protocol.Command) error {
	payload, err := cmd.Encode()
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	return s.mgr.Send(payload)
}
