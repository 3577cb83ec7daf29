package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{Attempts: attempts, Backoff: Linear(time.Millisecond)}
}

func TestLinear(t *testing.T) {
	b := Linear(400 * time.Millisecond)
	assert.Equal(t, 400*time.Millisecond, b(0))
	assert.Equal(t, 800*time.Millisecond, b(1))
	assert.Equal(t, 1200*time.Millisecond, b(2))
}

func TestExponential_Caps(t *testing.T) {
	b := Exponential(100*time.Millisecond, time.Second, 2, 0)
	assert.Equal(t, 100*time.Millisecond, b(0))
	assert.Equal(t, 400*time.Millisecond, b(2))
	assert.Equal(t, time.Second, b(10))
}

func TestDo_RetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	var retried []int
	p := fastPolicy(3)
	p.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	err := Do(context.Background(), p, func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("busy"), 503)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(_ context.Context) error {
		calls++
		return errors.New("bad request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), fastPolicy(2), func(_ context.Context) (int, error) {
		calls++
		return 0, NewTransientError(errors.New("busy"), 429)
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoVal_CustomShouldRetry(t *testing.T) {
	p := fastPolicy(3)
	p.ShouldRetry = func(error) bool { return true }
	calls := 0
	v, err := DoVal(context.Background(), p, func(_ context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("anything")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{Attempts: 5, Backoff: Linear(time.Hour)}
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, p, func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("busy"), 503)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestFromRetryConfig(t *testing.T) {
	p := FromRetryConfig(2, 400*time.Millisecond)
	assert.Equal(t, 3, p.Attempts)
	assert.Equal(t, 800*time.Millisecond, p.Backoff(1))

	p = FromRetryConfig(0, 0)
	assert.Equal(t, 1, p.Attempts)
}

func TestWithTimeout_ReturnsAtDeadline(t *testing.T) {
	start := time.Now()
	_, err := WithTimeout(context.Background(), 20*time.Millisecond, func(_ context.Context) (int, error) {
		time.Sleep(500 * time.Millisecond)
		return 1, nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.True(t, IsTransient(err))
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestWithTimeout_PassesResult(t *testing.T) {
	v, err := WithTimeout(context.Background(), time.Second, func(_ context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	cb := NewCircuitBreaker("google", CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute})
	now := time.Now()
	cb.now = func() time.Time { return now }

	fail := func(_ context.Context) error { return errors.New("down") }
	_ = cb.Execute(context.Background(), fail)
	assert.Equal(t, CircuitClosed, cb.State())
	_ = cb.Execute(context.Background(), fail)
	assert.Equal(t, CircuitOpen, cb.State())

	called := false
	err := cb.Execute(context.Background(), func(_ context.Context) error {
		called = true
		return nil
	})
	assert.True(t, errors.Is(err, ErrCircuitOpen))
	assert.False(t, called)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, CircuitHalfOpen, cb.State())
	require.NoError(t, cb.Execute(context.Background(), func(_ context.Context) error { return nil }))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("osm", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	now := time.Now()
	cb.now = func() time.Time { return now }

	_ = cb.Execute(context.Background(), func(_ context.Context) error { return errors.New("x") })
	now = now.Add(2 * time.Second)
	_ = cb.Execute(context.Background(), func(_ context.Context) error { return errors.New("x") })
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_IgnoresCancellation(t *testing.T) {
	cb := NewCircuitBreaker("here", CircuitBreakerConfig{FailureThreshold: 1})
	_ = cb.Execute(context.Background(), func(_ context.Context) error { return context.Canceled })
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestServiceBreakers(t *testing.T) {
	sb := NewServiceBreakers(DefaultCircuitBreakerConfig())
	a := sb.Get("google")
	assert.Same(t, a, sb.Get("google"))
	assert.NotSame(t, a, sb.Get("osm"))
	assert.Len(t, sb.States(), 2)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("invalid input")))
	assert.True(t, IsTransient(fmt.Errorf("wrap: %w", NewTransientError(errors.New("x"), 429))))
	assert.True(t, IsTransient(fmt.Errorf("dial: %w", syscall.ECONNREFUSED)))
	assert.True(t, IsTransient(&net.DNSError{IsTimeout: true, Err: "timeout"}))
	assert.True(t, IsTransient(fmt.Errorf("get: %w", context.DeadlineExceeded)))
	assert.True(t, IsTransient(errors.New("read: connection reset by peer")))
}

func TestHTTPStatusError(t *testing.T) {
	err := HTTPStatusError("overpass", 504, "gateway timeout")
	assert.True(t, IsTransient(err))
	assert.Contains(t, err.Error(), "overpass: http 504")

	err = HTTPStatusError("foursquare", 401, "unauthorized")
	assert.False(t, IsTransient(err))
}
