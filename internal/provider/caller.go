package provider

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/pharmacy-harvester/internal/resilience"
)

// CallerOptions configures how a provider reaches its API.
type CallerOptions struct {
	// Timeout bounds each attempt. Default: 20s.
	Timeout time.Duration
	Retry   resilience.RetryPolicy
	Breaker *resilience.CircuitBreaker
	// Breakers supplies per-endpoint breakers for ForEndpoint. Nil means
	// each endpoint gets a private breaker with default settings.
	Breakers *resilience.ServiceBreakers
	// Limiter paces every attempt. Nil means unlimited.
	Limiter *rate.Limiter
}

// Caller wraps every network call of one provider in a rate limit, a circuit
// breaker, a per-attempt timeout race and a bounded linear retry.
type Caller struct {
	name string
	opts CallerOptions
	log  *zap.Logger
}

// NewCaller creates a Caller for the named provider.
func NewCaller(name string, opts CallerOptions) *Caller {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.Breaker == nil {
		opts.Breaker = resilience.NewCircuitBreaker(name, resilience.DefaultCircuitBreakerConfig())
	}
	return &Caller{
		name: name,
		opts: opts,
		log:  zap.L().With(zap.String("component", "provider"), zap.String("provider", name)),
	}
}

// ForEndpoint returns a copy of c that trips its own breaker, keyed
// "<name>:<endpoint>". Rate limit, timeout and retry stay shared.
func (c *Caller) ForEndpoint(endpoint string) *Caller {
	key := c.name + ":" + endpoint
	opts := c.opts
	if opts.Breakers != nil {
		opts.Breaker = opts.Breakers.Get(key)
	} else {
		opts.Breaker = resilience.NewCircuitBreaker(key, resilience.DefaultCircuitBreakerConfig())
	}
	return &Caller{
		name: c.name,
		opts: opts,
		log:  c.log.With(zap.String("endpoint", endpoint)),
	}
}

// Call runs fn through the caller's policies.
func Call[T any](ctx context.Context, c *Caller, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	retry := c.opts.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(c.name, op)
	}

	return resilience.DoVal(ctx, retry, func(ctx context.Context) (T, error) {
		if c.opts.Limiter != nil {
			if err := c.opts.Limiter.Wait(ctx); err != nil {
				var zero T
				return zero, eris.Wrapf(err, "%s: rate limiter wait", c.name)
			}
		}
		return resilience.ExecuteVal(ctx, c.opts.Breaker, func(ctx context.Context) (T, error) {
			return resilience.WithTimeout(ctx, c.opts.Timeout, fn)
		})
	})
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
