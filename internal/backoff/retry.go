package backoff

import (
	"context"
	"errors"
)

// ErrAttemptsExhausted is returned when every retry attempt has failed
// without fn ever producing a distinguishable error.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Do runs fn up to maxAttempts times, sleeping the policy's delay between
// attempts. fn receives the current attempt number (1-indexed). A nil
// return from fn ends the loop; a non-nil return is retried only while
// retryable (nil means always) reports it transient and attempts remain.
// Context cancellation is observed before each attempt and during every
// sleep, and wins over the last error.
func Do(ctx context.Context, p Policy, maxAttempts int, retryable func(error) bool, fn func(attempt int) error) error {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt < maxAttempts {
			if serr := p.SleepAttempt(ctx, attempt); serr != nil {
				return serr
			}
		}
	}

	if lastErr != nil {
		return lastErr
	}
	return ErrAttemptsExhausted
}
