// Package ws owns the persistent chat connection: dialing, the ordered
// read loop, outbound sends, and liveness monitoring.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ashureev/streamchat/internal/domain"
	"github.com/ashureev/streamchat/internal/protocol"
	"github.com/coder/websocket"
)

// ErrNotOpen is returned by Send when the connection is not open.
var ErrNotOpen = errors.New("connection not open")

// Conn abstracts a frame-level bidirectional connection so tests can
// inject doubles in place of a real WebSocket.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Dialer establishes a Conn to the given URL.
type Dialer func(ctx context.Context, url string) (Conn, error)

// wsConn adapts *websocket.Conn to Conn.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	return data, err
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "session ended")
}

// Dial is the production Dialer backed by coder/websocket.
func Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

// FrameHandler receives inbound frames in arrival order.
type FrameHandler func(data []byte)

// StatusListener is notified on connection state transitions.
type StatusListener func(state domain.ConnectionState)

// Manager owns the connection lifecycle. It does not retry on its own;
// after an unexpected close the caller decides whether to reconnect.
type Manager struct {
	dial    Dialer
	monitor *Monitor

	mu        sync.Mutex
	state     domain.ConnectionState
	conn      Conn
	cancel    context.CancelFunc
	handler   FrameHandler
	listeners []StatusListener
}

// NewManager creates a connection manager using dial to establish
// connections and monitor for liveness tracking.
func NewManager(dial Dialer, monitor *Monitor) *Manager {
	return &Manager{
		dial:    dial,
		monitor: monitor,
		state:   domain.StateClosed,
	}
}

// OnFrame sets the handler for inbound frames. Must be set before
// Connect; frames are delivered one at a time in arrival order.
func (m *Manager) OnFrame(h FrameHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

// Subscribe registers a listener for state transitions.
func (m *Manager) Subscribe(l StatusListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// State returns the current connection state.
func (m *Manager) State() domain.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect dials the endpoint, starts the read loop, and starts the
// heartbeat. Any existing connection is closed first.
func (m *Manager) Connect(ctx context.Context, url string) error {
	m.Close()
	m.setState(domain.StateConnecting)

	conn, err := m.dial(ctx, url)
	if err != nil {
		m.setState(domain.StateClosed)
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.conn = conn
	m.cancel = cancel
	m.mu.Unlock()
	m.setState(domain.StateOpen)

	m.monitor.Start(loopCtx, func() error { return m.Send(protocol.HeartbeatFrame) })
	go m.readLoop(loopCtx, conn)
	return nil
}

// Send transmits one outbound frame. Returns ErrNotOpen when the
// connection is not open; callers treat that as a no-op condition,
// not an application failure.
func (m *Manager) Send(payload []byte) error {
	m.mu.Lock()
	conn := m.conn
	open := m.state == domain.StateOpen
	m.mu.Unlock()

	if !open || conn == nil {
		return ErrNotOpen
	}
	return conn.Write(context.Background(), payload)
}

// Close tears down the connection, cancelling the read loop and the
// heartbeat. Safe to call repeatedly and on a never-opened manager.
func (m *Manager) Close() {
	m.mu.Lock()
	conn := m.conn
	cancel := m.cancel
	wasOpen := m.state != domain.StateClosed
	m.conn = nil
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			slog.Debug("Failed to close connection", "error", err)
		}
	}
	if wasOpen {
		m.setState(domain.StateClosed)
	}
}

// readLoop delivers frames strictly in arrival order. Every inbound
// frame counts as liveness evidence before dispatch.
func (m *Manager) readLoop(ctx context.Context, conn Conn) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("Connection read error", "error", err)
				m.Close()
			}
			return
		}

		m.monitor.Touch()

		m.mu.Lock()
		handler := m.handler
		m.mu.Unlock()
		if handler != nil {
			handler(data)
		}
	}
}

func (m *Manager) setState(s domain.ConnectionState) {
	m.mu.Lock()
	if m.state == s {
		m.mu.Unlock()
		return
	}
	m.state = s
	listeners := make([]StatusListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	slog.Info("Connection state changed", "state", s.String())
	for _, l := range listeners {
		l(s)
	}
}
