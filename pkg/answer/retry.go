package answer

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy retries transient model-call failures with exponential backoff
// and jitter. Grading and grounding verdicts are never retried through this;
// only transport-level call errors are.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Do runs fn until it succeeds, the retries are exhausted, or the context is
// cancelled. The first attempt runs without delay.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(p.delay(attempt)):
			}
		}

		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("failed after %d retries: %w", p.MaxRetries, lastErr)
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	// ±25% jitter so concurrent runs do not retry in lockstep.
	jitter := delay * 0.25
	delay = delay + (rand.Float64()*2-1)*jitter

	if delay < float64(p.InitialDelay) {
		delay = float64(p.InitialDelay)
	}
	return time.Duration(delay)
}
