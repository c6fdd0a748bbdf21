package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSleepCompletes(t *testing.T) {
	start := time.Now()
	if err := Sleep(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("Sleep returned after %v, want >= 10ms", elapsed)
	}
}

func TestSleepNonPositiveReturnsImmediately(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		if err := Sleep(context.Background(), d); err != nil {
			t.Errorf("Sleep(%v) = %v, want nil", d, err)
		}
	}
}

func TestSleepObservesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Sleep(ctx, time.Minute)
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Sleep = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Sleep did not return after cancellation")
	}
}

func TestSleepAttemptUsesPolicyDelay(t *testing.T) {
	p := Policy{Base: 5 * time.Millisecond, Max: time.Second, Factor: 2}

	start := time.Now()
	if err := p.SleepAttempt(context.Background(), 2); err != nil {
		t.Fatalf("SleepAttempt: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("SleepAttempt(2) returned after %v, want >= 10ms", elapsed)
	}
}
