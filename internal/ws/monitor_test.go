package ws

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/streamchat/internal/domain"
)

func TestMonitor_HealthFromActivityRecency(t *testing.T) {
	now := time.Unix(1000, 0)
	m := NewMonitor()
	m.now = func() time.Time { return now }

	if m.Health() != domain.Unhealthy {
		t.Error("Expected unhealthy before any activity")
	}

	m.Touch()
	if m.Health() != domain.Healthy {
		t.Error("Expected healthy right after activity")
	}

	now = now.Add(30 * time.Second)
	if m.Health() != domain.Healthy {
		t.Error("Expected healthy at exactly the staleness window")
	}

	now = now.Add(1 * time.Second)
	if m.Health() != domain.Unhealthy {
		t.Error("Expected unhealthy past the staleness window")
	}

	// One frame restores health immediately, no tick needed.
	m.Touch()
	if m.Health() != domain.Healthy {
		t.Error("Expected healthy immediately after fresh activity")
	}
}

func TestMonitor_TouchOnlyMovesForward(t *testing.T) {
	now := time.Unix(1000, 0)
	m := NewMonitor()
	m.now = func() time.Time { return now }

	now = time.Unix(2000, 0)
	m.Touch()

	// A late touch with an older clock reading must not move the
	// timestamp backwards.
	now = time.Unix(1500, 0)
	m.Touch()

	if got := m.lastActivity.Load(); got != time.Unix(2000, 0).UnixNano() {
		t.Errorf("Expected timestamp to stay at 2000s, got %d", got)
	}
}

func TestMonitor_HeartbeatFiresOnFixedPeriod(t *testing.T) {
	m := NewMonitor()
	m.interval = 10 * time.Millisecond

	var pings atomic.Int64
	m.Start(context.Background(), func() error {
		pings.Add(1)
		return nil
	})
	defer m.Stop()

	time.Sleep(100 * time.Millisecond)
	if pings.Load() < 3 {
		t.Errorf("Expected at least 3 heartbeats, got %d", pings.Load())
	}
}

func TestMonitor_StopCancelsHeartbeat(t *testing.T) {
	m := NewMonitor()
	m.interval = 10 * time.Millisecond

	var pings atomic.Int64
	m.Start(context.Background(), func() error {
		pings.Add(1)
		return nil
	})

	time.Sleep(30 * time.Millisecond)
	m.Stop()
	settled := pings.Load()

	time.Sleep(50 * time.Millisecond)
	if pings.Load() != settled {
		t.Errorf("Expected no heartbeats after Stop, got %d more", pings.Load()-settled)
	}
}

func TestMonitor_RestartReplacesLoop(t *testing.T) {
	m := NewMonitor()
	m.interval = 10 * time.Millisecond

	var first, second atomic.Int64
	m.Start(context.Background(), func() error {
		first.Add(1)
		return nil
	})
	m.Start(context.Background(), func() error {
		second.Add(1)
		return nil
	})
	defer m.Stop()

	time.Sleep(50 * time.Millisecond)
	firstCount := first.Load()
	time.Sleep(50 * time.Millisecond)

	if first.Load() != firstCount {
		t.Error("Expected first heartbeat loop to stop after restart")
	}
	if second.Load() == 0 {
		t.Error("Expected second heartbeat loop to run")
	}
}

func TestMonitor_HeartbeatStopsWhenConnectionGone(t *testing.T) {
	m := NewMonitor()
	m.interval = 10 * time.Millisecond

	var pings atomic.Int64
	m.Start(context.Background(), func() error {
		pings.Add(1)
		return ErrNotOpen
	})
	defer m.Stop()

	time.Sleep(60 * time.Millisecond)
	if pings.Load() != 1 {
		t.Errorf("Expected heartbeat loop to exit on ErrNotOpen, got %d pings", pings.Load())
	}
}
