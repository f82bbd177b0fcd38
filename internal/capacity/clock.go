// Package capacity drives escalating load against a target service, finds its
// breaking point, and derives an operating capacity model with recommendations.
package capacity

import (
	"context"
	"time"
)

// Sleeper abstracts the settle and pause delays between tests so the full
// sequence can run in tests without wall-clock waits.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type stdSleeper struct{}

// NewSleeper returns a Sleeper backed by the real clock. Sleep returns early
// with the context error when the context is cancelled.
func NewSleeper() Sleeper {
	return stdSleeper{}
}

func (stdSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
