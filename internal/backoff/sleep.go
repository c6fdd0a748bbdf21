package backoff

import (
	"context"
	"time"
)

// Sleep blocks for d, returning early with ctx.Err() if the context is
// cancelled first. A non-positive d returns immediately.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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

// SleepAttempt sleeps for the policy's delay at the given attempt number.
func (p Policy) SleepAttempt(ctx context.Context, attempt int) error {
	return Sleep(ctx, p.Delay(attempt))
}
