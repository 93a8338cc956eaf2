package clients

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/tickflow/tickflow/pkg/errors"
)

// RetryPolicy defines exponential backoff behavior for transient request
// failures. Only errors the errors package classifies as retryable are
// retried; anything else fails fast.
type RetryPolicy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RandomizeFactor float64
}

// DefaultRetryPolicy returns the backoff used by the REST connectors.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:     3,
		InitialDelay:    500 * time.Millisecond,
		MaxDelay:        30 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.25,
	}
}

// Execute runs fn with the retry policy, honoring context cancellation
// between attempts.
func (rp *RetryPolicy) Execute(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < rp.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !errors.IsRetryable(err) || attempt == rp.MaxAttempts-1 {
			break
		}

		timer := time.NewTimer(rp.calculateDelay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "retry cancelled")
		case <-timer.C:
		}
	}

	return lastErr
}

// calculateDelay returns the jittered delay for the given attempt.
func (rp *RetryPolicy) calculateDelay(attempt int) time.Duration {
	delay := float64(rp.InitialDelay) * math.Pow(rp.Multiplier, float64(attempt))
	if delay > float64(rp.MaxDelay) {
		delay = float64(rp.MaxDelay)
	}
	if rp.RandomizeFactor > 0 {
		jitter := delay * rp.RandomizeFactor
		delay = delay - jitter + rand.Float64()*2*jitter //nolint:gosec // G404: jitter, not crypto
	}
	return time.Duration(delay)
}
