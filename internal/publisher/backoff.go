package publisher

import "time"

const (
	// InitialConnectInterval is the fixed pause between startup attempts
	InitialConnectInterval = 3 * time.Second

	// ReconnectFloor is the first delay of every reconnection episode
	ReconnectFloor = 3 * time.Second

	// ReconnectCeiling caps the reconnection delay
	ReconnectCeiling = 30 * time.Second
)

// Backoff tracks the delay of a single reconnection episode. The delay
// doubles after every failed attempt up to the ceiling. Create a new Backoff
// per episode; state is never carried over.
type Backoff struct {
	floor    time.Duration
	ceiling  time.Duration
	current  time.Duration
	attempts int
}

// NewBackoff returns a Backoff starting at floor
func NewBackoff(floor, ceiling time.Duration) *Backoff {
	if ceiling < floor {
		ceiling = floor
	}
	return &Backoff{
		floor:   floor,
		ceiling: ceiling,
		current: floor,
	}
}

// Delay returns the wait before the next attempt
func (b *Backoff) Delay() time.Duration {
	return b.current
}

// Failed records a failed attempt and returns the next delay
func (b *Backoff) Failed() time.Duration {
	b.attempts++
	b.current *= 2
	if b.current > b.ceiling {
		b.current = b.ceiling
	}
	return b.current
}

// Attempts returns the number of failed attempts recorded so far
func (b *Backoff) Attempts() int {
	return b.attempts
}

// Reset returns the delay to the floor
func (b *Backoff) Reset() {
	b.current = b.floor
	b.attempts = 0
}
