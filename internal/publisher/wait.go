package publisher

import (
	"context"
	"time"
)

// waitFunc pauses for d or until ctx is done, returning ctx.Err() in the
// latter case. Every suspension point in this package goes through one.
type waitFunc func(ctx context.Context, d time.Duration) error

// sleepContext is the production waitFunc
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
