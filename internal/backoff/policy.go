// Package backoff computes exponential retry delays and runs retry loops
// for the provider clients and the agent loop's inference retries.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy bounds an exponential backoff schedule. The deterministic part of
// the schedule is min(Max, Base * Factor^(attempt-1)); Jitter adds a random
// fraction of that delay on top before clamping.
type Policy struct {
	// Base is the delay before the first retry.
	Base time.Duration

	// Max clamps the delay regardless of attempt number.
	Max time.Duration

	// Factor multiplies the delay on each successive attempt.
	Factor float64

	// Jitter in [0, 1] is the maximum random fraction of the computed
	// delay added to it. Zero makes the schedule fully deterministic.
	Jitter float64
}

// Delay returns the backoff duration for attempt (1-indexed). Attempts
// below 1 are treated as 1.
func (p Policy) Delay(attempt int) time.Duration {
	return p.DelayWithRand(attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// DelayWithRand is Delay with the jitter's random value supplied by the
// caller, for deterministic tests. randomValue is expected in [0.0, 1.0).
func (p Policy) DelayWithRand(attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := float64(p.Base) * math.Pow(p.Factor, exp)
	jittered := base + base*p.Jitter*randomValue
	return time.Duration(math.Min(float64(p.Max), jittered))
}

// DefaultPolicy is the schedule the provider clients retry with:
// 100ms base, 30s cap, doubling, 10% jitter.
func DefaultPolicy() Policy {
	return Policy{
		Base:   100 * time.Millisecond,
		Max:    30 * time.Second,
		Factor: 2,
		Jitter: 0.1,
	}
}
