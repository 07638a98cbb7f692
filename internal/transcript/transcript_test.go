package transcript

import (
	"testing"
	"time"

	"github.com/ashureev/streamchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendToken_ConcatenatesInOrder(t *testing.T) {
	tr := New()

	tokens := []string{"He", "llo", ", ", "wor", "ld"}
	for _, tok := range tokens {
		tr.AppendToken(7, "t1", tok)
	}

	entries := tr.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "Hello, world", entries[0].Content)
	assert.True(t, entries[0].IsAI)
	assert.Equal(t, "t1", entries[0].TaskID)
}

func TestAppendToken_NewTaskOpensNewEntry(t *testing.T) {
	tr := New()

	tr.AppendToken(7, "t1", "first")
	tr.AppendToken(7, "t2", "second")
	tr.AppendToken(7, "t1", "-more")

	entries := tr.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "first-more", entries[0].Content)
	assert.Equal(t, "second", entries[1].Content)
}

func TestAppendToken_ClosedTaskOpensFreshEntry(t *testing.T) {
	tr := New()

	tr.AppendToken(7, "t1", "partial")
	tr.CloseTask(7, "t1")
	tr.AppendToken(7, "t1", "restart")

	entries := tr.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "partial", entries[0].Content)
	assert.Equal(t, "restart", entries[1].Content)
}

func TestMerge_DuplicateIDSuppressed(t *testing.T) {
	tr := New()

	inserted := tr.Merge(domain.Message{ID: 1, ChatID: 7, Content: "hi"})
	require.True(t, inserted)

	inserted = tr.Merge(domain.Message{ID: 1, ChatID: 7, Content: "different text"})
	assert.False(t, inserted)
	assert.Equal(t, 1, tr.Len())
}

func TestMerge_SameChatTextOriginatorSuppressed(t *testing.T) {
	tr := New()

	tr.Merge(domain.Message{ID: 1, ChatID: 7, Content: "hi", IsAI: false})

	// Different id, same (chat, text, originator): still a duplicate.
	inserted := tr.Merge(domain.Message{ID: 99, ChatID: 7, Content: "hi", IsAI: false})
	assert.False(t, inserted)
	assert.Equal(t, 1, tr.Len())

	// Same text from the other originator is a distinct entry.
	inserted = tr.Merge(domain.Message{ID: 100, ChatID: 7, Content: "hi", IsAI: true})
	assert.True(t, inserted)
	assert.Equal(t, 2, tr.Len())
}

func TestMerge_FirstWriteWins(t *testing.T) {
	tr := New()

	original := domain.Message{ID: 5, ChatID: 7, Content: "original", Timestamp: time.Unix(100, 0)}
	tr.Merge(original)
	tr.Merge(domain.Message{ID: 5, ChatID: 7, Content: "overwrite attempt"})

	entries := tr.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "original", entries[0].Content)
	assert.Equal(t, time.Unix(100, 0), entries[0].Timestamp)
}

func TestMerge_AssistantMessageBecomesStreamTarget(t *testing.T) {
	tr := New()

	tr.Merge(domain.Message{ID: 2, ChatID: 7, Content: "Hel", IsAI: true, TaskID: "t1"})
	tr.AppendToken(7, "t1", "lo")

	entries := tr.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "Hello", entries[0].Content)
}

func TestAppendError_IsTerminal(t *testing.T) {
	tr := New()

	tr.AppendError(7, "boom")
	entries := tr.Entries()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsError)

	// Error entries never become append targets; a token for any task
	// opens a new entry instead.
	tr.AppendToken(7, "t1", "next")
	assert.Equal(t, 2, tr.Len())
	assert.Equal(t, "boom", tr.Entries()[0].Content)
}

func TestSetStructured_BlocksTokenAppends(t *testing.T) {
	tr := New()

	tr.SetStructured(7, "t1", map[string]any{"answer": "42"})
	tr.SetStructured(7, "t1", map[string]any{"answer": "42", "reason": "math"})

	entries := tr.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "math", entries[0].Structured["reason"])

	// Tokens for the same task open a new entry rather than touching
	// the structured one.
	tr.AppendToken(7, "t1", "text")
	entries = tr.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "text", entries[1].Content)
}

func TestReplaceAll_InstallsServerOrder(t *testing.T) {
	tr := New()
	tr.AppendToken(7, "t1", "local stream")

	snapshot := []domain.Message{
		{ID: 1, ChatID: 7, Content: "first"},
		{ID: 2, ChatID: 7, Content: "second", IsAI: true},
	}
	tr.ReplaceAll(snapshot)

	entries := tr.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].ID)
	assert.Equal(t, int64(2), entries[1].ID)

	// Open entries were discarded with the old view.
	tr.AppendToken(7, "t1", "resumed")
	assert.Equal(t, 3, tr.Len())
}

func TestEntries_ReturnsCopy(t *testing.T) {
	tr := New()
	tr.Merge(domain.Message{ID: 1, ChatID: 7, Content: "hi"})

	entries := tr.Entries()
	entries[0].Content = "mutated"

	assert.Equal(t, "hi", tr.Entries()[0].Content)
}
