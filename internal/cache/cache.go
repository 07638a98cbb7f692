// Package cache provides a short-lived client-side cache of fetched
// chat transcripts, keyed by chat id.
package cache

import (
	"sync"
	"time"

	"github.com/ashureev/streamchat/internal/domain"
)

// DefaultFreshness is how long a cached snapshot may be served without
// a re-fetch.
const DefaultFreshness = 5 * time.Second

type entry struct {
	messages  []domain.Message
	fetchedAt time.Time
}

// ChatCache caches per-chat message snapshots with a freshness window
// and a per-chat loading claim that suppresses duplicate concurrent
// fetches for the same id.
type ChatCache struct {
	mu        sync.Mutex
	entries   map[int64]entry
	loading   map[int64]struct{}
	freshness time.Duration
	now       func() time.Time
}

// New creates a cache with the default freshness window.
func New() *ChatCache {
	return NewWithFreshness(DefaultFreshness)
}

// NewWithFreshness creates a cache with a custom freshness window.
func NewWithFreshness(freshness time.Duration) *ChatCache {
	return &ChatCache{
		entries:   make(map[int64]entry),
		loading:   make(map[int64]struct{}),
		freshness: freshness,
		now:       time.Now,
	}
}

// Get returns the cached snapshot for chatID if it is still fresh.
// A stale entry is evicted and reported as a miss.
func (c *ChatCache) Get(chatID int64) ([]domain.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[chatID]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.fetchedAt) >= c.freshness {
		delete(c.entries, chatID)
		return nil, false
	}

	out := make([]domain.Message, len(e.messages))
	copy(out, e.messages)
	return out, true
}

// Put stores a snapshot for chatID stamped with the current time.
func (c *ChatCache) Put(chatID int64, messages []domain.Message) {
	snapshot := make([]domain.Message, len(messages))
	copy(snapshot, messages)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[chatID] = entry{messages: snapshot, fetchedAt: c.now()}
}

// Invalidate drops the snapshot for chatID. Called on writes (new
// message, delete) so the next read re-fetches.
func (c *ChatCache) Invalidate(chatID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, chatID)
}

// BeginLoad claims the fetch for chatID. It returns false if another
// fetch for the same id is already outstanding, in which case the
// caller must skip its own fetch.
func (c *ChatCache) BeginLoad(chatID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, busy := c.loading[chatID]; busy {
		return false
	}
	c.loading[chatID] = struct{}{}
	return true
}

// EndLoad releases the fetch claim for chatID. It must be called in
// every outcome of a claimed fetch: success, error, or supersession.
func (c *ChatCache) EndLoad(chatID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.loading, chatID)
}
