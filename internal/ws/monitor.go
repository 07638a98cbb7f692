package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/streamchat/internal/domain"
)

const (
	// HeartbeatInterval is the fixed period between liveness probes.
	HeartbeatInterval = 15 * time.Second
	// StaleAfter is how long the connection may go without inbound
	// traffic before it is reported unhealthy.
	StaleAfter = 30 * time.Second
)

// PingFunc sends one heartbeat probe.
type PingFunc func() error

// Monitor tracks connection liveness. Any inbound frame is liveness
// evidence, not just heartbeat acknowledgements: ordinary chat traffic
// is itself proof the connection is alive.
type Monitor struct {
	lastActivity atomic.Int64 // unix nanos, forward-only
	interval     time.Duration
	staleAfter   time.Duration
	now          func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewMonitor creates a monitor with the standard heartbeat period and
// staleness window.
func NewMonitor() *Monitor {
	return &Monitor{
		interval:   HeartbeatInterval,
		staleAfter: StaleAfter,
		now:        time.Now,
	}
}

// Touch records inbound activity. The timestamp only ever moves
// forward; concurrent touches race benignly toward the same result.
func (m *Monitor) Touch() {
	now := m.now().UnixNano()
	for {
		prev := m.lastActivity.Load()
		if prev >= now {
			return
		}
		if m.lastActivity.CompareAndSwap(prev, now) {
			return
		}
	}
}

// Health reports connection health from recency of inbound traffic.
// Fresh traffic flips the result back to healthy immediately; there is
// no wait for the next heartbeat tick.
func (m *Monitor) Health() domain.Health {
	last := m.lastActivity.Load()
	if last == 0 {
		return domain.Unhealthy
	}
	if m.now().Sub(time.Unix(0, last)) > m.staleAfter {
		return domain.Unhealthy
	}
	return domain.Healthy
}

// Start launches the heartbeat loop, sending a probe via ping on a
// fixed period until ctx is cancelled. A previous loop, if any, is
// stopped first so reconnects never leak tickers.
func (m *Monitor) Start(ctx context.Context, ping PingFunc) {
	m.Stop()
	m.Touch()

	loopCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	ticker := time.NewTicker(m.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := ping(); err != nil {
					if errors.Is(err, ErrNotOpen) {
						return
					}
					slog.Debug("Heartbeat send failed", "error", err)
				}
			case <-loopCtx.Done():
				return
			}
		}
	}()
}

// Stop cancels the heartbeat loop. Safe to call when not started.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
