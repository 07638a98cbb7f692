package devserver_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/streamchat/internal/devserver"
	"github.com/ashureev/streamchat/internal/domain"
	"github.com/ashureev/streamchat/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) (*httptest.Server, *devserver.SQLiteStore) {
	t.Helper()
	store, err := devserver.NewSQLite(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv := httptest.NewServer(devserver.NewRouter(store))
	t.Cleanup(srv.Close)
	return srv, store
}

func connectedSession(t *testing.T, srv *httptest.Server) *session.Session {
	t.Helper()
	sess := session.New(session.Options{UserID: 1, ServerURL: srv.URL})
	t.Cleanup(sess.Close)
	require.NoError(t, sess.Connect(context.Background()))
	return sess
}

func TestServer_EndToEndChat(t *testing.T) {
	srv, store := startServer(t)
	ctx := context.Background()

	chat, err := store.CreateChat(ctx, 1)
	require.NoError(t, err)
	// Seed the chat so the session's empty-chat sweep leaves it alone.
	_, err = store.AddMessage(ctx, &domain.Message{ChatID: chat.ID, Content: "earlier"})
	require.NoError(t, err)

	sess := connectedSession(t, srv)

	require.NoError(t, sess.JoinChat(ctx, chat.ID))
	require.Eventually(t, func() bool {
		return sess.CurrentChat() == chat.ID
	}, 5*time.Second, 10*time.Millisecond, "join acknowledgement")

	require.NoError(t, sess.SendMessage("ping"))

	// The user message echoes back, then the assistant streams a reply
	// token by token into a single entry.
	require.Eventually(t, func() bool {
		entries := sess.Transcript().Entries()
		if len(entries) != 2 {
			return false
		}
		return entries[0].Content == "ping" && !entries[0].IsAI &&
			entries[1].Content == "You said: ping" && entries[1].IsAI
	}, 5*time.Second, 10*time.Millisecond, "user echo plus settled assistant reply")

	// The persisted transcript matches what was streamed.
	stored, err := store.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 3)
	assert.Equal(t, "You said: ping", stored.Messages[2].Content)
	assert.True(t, stored.Messages[2].IsAI)
}

func TestServer_JoinMissingChatSurfacesError(t *testing.T) {
	srv, _ := startServer(t)
	sess := connectedSession(t, srv)

	require.NoError(t, sess.JoinChat(context.Background(), 999))

	require.Eventually(t, func() bool {
		entries := sess.Transcript().Entries()
		return len(entries) == 1 && entries[0].IsError
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, sess.Transcript().Entries()[0].Content, "chat not found")
}

func TestServer_FirstMessageTitlesChat(t *testing.T) {
	srv, store := startServer(t)
	ctx := context.Background()

	chat, err := store.CreateChat(ctx, 1)
	require.NoError(t, err)
	_, err = store.AddMessage(ctx, &domain.Message{ChatID: chat.ID, Content: "earlier"})
	require.NoError(t, err)

	sess := connectedSession(t, srv)
	require.NoError(t, sess.JoinChat(ctx, chat.ID))
	require.Eventually(t, func() bool {
		return sess.CurrentChat() == chat.ID
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, sess.SendMessage("plan a trip to the mountains"))

	require.Eventually(t, func() bool {
		got, err := store.GetChat(ctx, chat.ID)
		return err == nil && got.Title == "plan a trip to the mountains"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestServer_HealthEndpoint(t *testing.T) {
	srv, _ := startServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_AbortUnknownTask(t *testing.T) {
	srv, _ := startServer(t)

	resp, err := http.Post(srv.URL+"/chats/1/abort?task_id=nope", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
