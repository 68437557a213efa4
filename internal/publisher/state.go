package publisher

import "sync/atomic"

// ConnectionState is the broker session state as seen by the agent
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// stateCell holds a ConnectionState that one writer updates and any number
// of goroutines read.
type stateCell struct {
	v atomic.Int32
}

func (c *stateCell) Load() ConnectionState {
	return ConnectionState(c.v.Load())
}

// Store sets the state and reports whether it changed
func (c *stateCell) Store(s ConnectionState) bool {
	return ConnectionState(c.v.Swap(int32(s))) != s
}
