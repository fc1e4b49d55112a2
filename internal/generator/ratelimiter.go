package generator

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RateLimiter implements a token bucket with exponential backoff on
// repeated API failures
type RateLimiter struct {
	requestsPerMinute int
	tokens            chan struct{}
	done              chan struct{}
	mu                sync.Mutex

	consecutiveErrors int
	lastErrorTime     time.Time
	backoffDuration   time.Duration
}

// NewRateLimiter creates a rate limiter allowing rpm requests per
// minute. Non-positive rpm selects a conservative default.
func NewRateLimiter(rpm int) *RateLimiter {
	if rpm <= 0 {
		rpm = 30
	}

	rl := &RateLimiter{
		requestsPerMinute: rpm,
		tokens:            make(chan struct{}, rpm),
		done:              make(chan struct{}),
	}

	for i := 0; i < rpm; i++ {
		rl.tokens <- struct{}{}
	}

	go rl.refillLoop()

	return rl
}

// Wait blocks until a token is available or the context ends. Returns
// an error immediately while backoff is active.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if remaining := rl.backoffRemaining(); remaining > 0 {
		return fmt.Errorf("rate limited: backoff active for %s", remaining)
	}

	select {
	case <-rl.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecordSuccess resets the backoff state after a successful call
func (rl *RateLimiter) RecordSuccess() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.consecutiveErrors = 0
	rl.backoffDuration = 0
}

// RecordError escalates exponential backoff after a failed call:
// 2^n seconds, capped at five minutes
func (rl *RateLimiter) RecordError() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.consecutiveErrors++
	rl.lastErrorTime = time.Now()

	backoff := time.Duration(1<<uint(rl.consecutiveErrors)) * time.Second
	if backoff > 300*time.Second {
		backoff = 300 * time.Second
	}
	rl.backoffDuration = backoff
}

// Stop terminates the refill goroutine
func (rl *RateLimiter) Stop() {
	select {
	case <-rl.done:
	default:
		close(rl.done)
	}
}

func (rl *RateLimiter) backoffRemaining() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.backoffDuration == 0 {
		return 0
	}
	remaining := rl.backoffDuration - time.Since(rl.lastErrorTime)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (rl *RateLimiter) refillLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.refillTokens()
		case <-rl.done:
			return
		}
	}
}

func (rl *RateLimiter) refillTokens() {
	// Drain, then fill to capacity
	for {
		select {
		case <-rl.tokens:
			continue
		default:
		}
		break
	}

	for i := 0; i < rl.requestsPerMinute; i++ {
		select {
		case rl.tokens <- struct{}{}:
		default:
			return
		}
	}
}
