package generator

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterAllowsWithinBudget(t *testing.T) {
	rl := NewRateLimiter(5)
	defer rl.Stop()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("Wait %d failed: %v", i, err)
		}
	}
}

func TestRateLimiterBlocksWhenExhausted(t *testing.T) {
	rl := NewRateLimiter(1)
	defer rl.Stop()

	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx); err == nil {
		t.Error("Wait succeeded with no tokens left")
	}
}

func TestRateLimiterBackoff(t *testing.T) {
	rl := NewRateLimiter(10)
	defer rl.Stop()

	rl.RecordError()
	if err := rl.Wait(context.Background()); err == nil {
		t.Error("Wait succeeded during active backoff")
	}

	rl.RecordSuccess()
	if err := rl.Wait(context.Background()); err != nil {
		t.Errorf("Wait failed after backoff reset: %v", err)
	}
}

func TestRateLimiterBackoffEscalates(t *testing.T) {
	rl := NewRateLimiter(10)
	defer rl.Stop()

	rl.RecordError()
	first := rl.backoffRemaining()
	rl.RecordError()
	second := rl.backoffRemaining()

	if second <= first {
		t.Errorf("backoff did not escalate: %s then %s", first, second)
	}

	for i := 0; i < 20; i++ {
		rl.RecordError()
	}
	if remaining := rl.backoffRemaining(); remaining > 300*time.Second {
		t.Errorf("backoff %s exceeds the five-minute cap", remaining)
	}
}

func TestRateLimiterDefaultRPM(t *testing.T) {
	rl := NewRateLimiter(0)
	defer rl.Stop()

	if rl.requestsPerMinute != 30 {
		t.Errorf("default rpm = %d, expected 30", rl.requestsPerMinute)
	}
}

func TestRateLimiterStopIdempotent(t *testing.T) {
	rl := NewRateLimiter(1)
	rl.Stop()
	rl.Stop() // must not panic on double stop
}
