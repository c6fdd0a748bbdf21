package backoff

import (
	"testing"
	"time"
)

func TestDelayWithRandDeterministicSchedule(t *testing.T) {
	p := Policy{Base: 10 * time.Millisecond, Max: time.Second, Factor: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: 10 * time.Millisecond},
		{attempt: 2, want: 20 * time.Millisecond},
		{attempt: 3, want: 40 * time.Millisecond},
		{attempt: 4, want: 80 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := p.DelayWithRand(tt.attempt, 0); got != tt.want {
			t.Errorf("Delay(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDelayClampedToMax(t *testing.T) {
	p := Policy{Base: 100 * time.Millisecond, Max: 500 * time.Millisecond, Factor: 2}

	if got := p.DelayWithRand(10, 0); got != 500*time.Millisecond {
		t.Errorf("Delay(10) = %v, want clamp to %v", got, 500*time.Millisecond)
	}
}

func TestDelayAttemptBelowOneTreatedAsOne(t *testing.T) {
	p := Policy{Base: 10 * time.Millisecond, Max: time.Second, Factor: 2}

	for _, attempt := range []int{0, -1} {
		if got := p.DelayWithRand(attempt, 0); got != 10*time.Millisecond {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, 10*time.Millisecond)
		}
	}
}

func TestDelayJitterAddsFractionOfBase(t *testing.T) {
	p := Policy{Base: 100 * time.Millisecond, Max: time.Second, Factor: 2, Jitter: 0.5}

	// randomValue 1.0 adds the full jitter fraction: 100ms + 100ms*0.5.
	if got := p.DelayWithRand(1, 1.0); got != 150*time.Millisecond {
		t.Errorf("jittered delay = %v, want %v", got, 150*time.Millisecond)
	}
	// randomValue 0 leaves the deterministic schedule untouched.
	if got := p.DelayWithRand(1, 0); got != 100*time.Millisecond {
		t.Errorf("unjittered delay = %v, want %v", got, 100*time.Millisecond)
	}
}

func TestDelayJitterNeverExceedsMax(t *testing.T) {
	p := Policy{Base: 400 * time.Millisecond, Max: 500 * time.Millisecond, Factor: 2, Jitter: 1.0}

	if got := p.DelayWithRand(1, 0.99); got > 500*time.Millisecond {
		t.Errorf("jittered delay %v exceeds max", got)
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.Base != 100*time.Millisecond || p.Max != 30*time.Second || p.Factor != 2 || p.Jitter != 0.1 {
		t.Errorf("unexpected default policy: %+v", p)
	}
}

func TestDelayRandomizedStaysInBounds(t *testing.T) {
	p := DefaultPolicy()
	for attempt := 1; attempt <= 12; attempt++ {
		got := p.Delay(attempt)
		if got < 0 || got > p.Max {
			t.Fatalf("Delay(%d) = %v out of [0, %v]", attempt, got, p.Max)
		}
	}
}
