package mqtt

import (
	"context"
	"errors"
	"time"
)

// ErrNotConnected is returned by Publish when the session is down
var ErrNotConnected = errors.New("mqtt client is not connected")

// Client represents an MQTT client interface for testing and abstraction.
// Reconnection is left to the caller: implementations report drops on
// Events() and never reconnect on their own.
type Client interface {
	// Connect performs a single connection attempt
	Connect(ctx context.Context) error

	// Disconnect sends a normal DISCONNECT if connected, otherwise does nothing
	Disconnect(reason string)

	// Publish publishes a message to a topic
	Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error

	// IsConnected returns whether the client is currently connected
	IsConnected() bool

	// Events delivers connection state changes reported by the transport
	Events() <-chan ConnectionEvent
}

// EventType identifies a transport-level connection change
type EventType int

const (
	// EventConnectionLost is emitted when the session drops unexpectedly
	EventConnectionLost EventType = iota
)

func (t EventType) String() string {
	switch t {
	case EventConnectionLost:
		return "connection_lost"
	default:
		return "unknown"
	}
}

// ConnectionEvent describes a connection state change
type ConnectionEvent struct {
	Type EventType
	Err  error
	At   time.Time
}
