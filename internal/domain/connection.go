package domain

// ConnectionState is the lifecycle state of the persistent connection.
type ConnectionState int

const (
	// StateConnecting means a dial is in progress.
	StateConnecting ConnectionState = iota
	// StateOpen means the connection is established and usable.
	StateOpen
	// StateClosed means the connection is closed or was never opened.
	StateClosed
)

// String returns a human-readable state name.
func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Health is derived from recency of inbound traffic on a connection.
type Health int

const (
	// Healthy means inbound traffic was seen within the staleness window.
	Healthy Health = iota
	// Unhealthy means no inbound traffic for longer than the window.
	Unhealthy
)

// String returns a human-readable health name.
func (h Health) String() string {
	if h == Healthy {
		return "healthy"
	}
	return "unhealthy"
}
