package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Backoff returns the delay to wait after a failed attempt (0-based).
type Backoff func(attempt int) time.Duration

// Linear waits step, 2*step, 3*step, ... between attempts.
func Linear(step time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return step * time.Duration(attempt+1)
	}
}

// Exponential grows the delay by multiplier per attempt, capped at max, with
// ±jitter applied as a fraction of the computed delay.
func Exponential(initial, max time.Duration, multiplier, jitter float64) Backoff {
	return func(attempt int) time.Duration {
		d := float64(initial) * math.Pow(multiplier, float64(attempt))
		if d > float64(max) {
			d = float64(max)
		}
		if jitter > 0 {
			d += (rand.Float64()*2 - 1) * d * jitter
		}
		if d < 0 {
			d = 0
		}
		return time.Duration(d)
	}
}

// RetryPolicy bounds how often a call is retried and how long to wait between tries.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first. Default: 3.
	Attempts int

	// Backoff computes the wait after each failed attempt. Default: Linear(400ms).
	Backoff Backoff

	// ShouldRetry overrides the transient check. If nil, IsTransient is used.
	ShouldRetry func(err error) bool

	// OnRetry is called before each retry sleep.
	OnRetry func(attempt int, err error)
}

// DefaultRetryPolicy retries twice with a 400ms linear step.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Backoff: Linear(400 * time.Millisecond)}
}

// Do runs fn until it succeeds, returns a non-retryable error, exhausts the
// policy, or ctx is done.
func Do(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for calls that return a value.
func DoVal[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var zero T
	var lastErr error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !p.ShouldRetry(err) || attempt == p.Attempts-1 {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err)
		}

		timer := time.NewTimer(p.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}
	return zero, lastErr
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.Backoff == nil {
		p.Backoff = Linear(400 * time.Millisecond)
	}
	if p.ShouldRetry == nil {
		p.ShouldRetry = IsTransient
	}
	return p
}

// RetryLogger returns an OnRetry callback that logs each retry attempt.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
