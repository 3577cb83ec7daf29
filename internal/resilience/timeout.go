package resilience

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// ErrTimeout is returned when a call does not finish within its budget.
var ErrTimeout = eris.New("resilience: call timed out")

// WithTimeout races fn against d. fn receives a context that is cancelled at
// the deadline; if fn ignores it, WithTimeout still returns at the deadline and
// the result is discarded. Timeouts are transient.
func WithTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if d <= 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		return zero, NewTransientError(eris.Wrapf(ErrTimeout, "after %s", d), 0)
	}
}
