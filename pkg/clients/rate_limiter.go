package clients

import (
	"context"
	"sync"
	"time"
)

// RateLimiter bounds request rates for the REST connectors. The external
// APIs Tickflow talks to throttle aggressively, so every paginated client
// waits on one of these between requests.
type RateLimiter interface {
	// Wait blocks until a request is allowed, consuming a token, or until
	// the context is done.
	Wait(ctx context.Context) error
}

// TokenBucket implements the token bucket algorithm: tokens accrue at a
// constant rate up to a burst cap and each request consumes one.
type TokenBucket struct {
	rate     float64 // tokens per second
	burst    int
	tokens   float64
	lastTime time.Time

	mu sync.Mutex
}

// NewTokenBucket creates a limiter allowing rate requests per second with
// the given burst capacity. The bucket starts full.
func NewTokenBucket(rate float64, burst int) *TokenBucket {
	return &TokenBucket{
		rate:     rate,
		burst:    burst,
		tokens:   float64(burst),
		lastTime: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is done.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		tb.refill()
		if tb.tokens >= 1.0 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}
		// Time until the next whole token accrues.
		wait := time.Duration((1.0 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// refill adds tokens for the time elapsed since the last refill. Caller
// must hold mu.
func (tb *TokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(tb.lastTime).Seconds()
	tb.lastTime = now

	tb.tokens += elapsed * tb.rate
	if tb.tokens > float64(tb.burst) {
		tb.tokens = float64(tb.burst)
	}
}
