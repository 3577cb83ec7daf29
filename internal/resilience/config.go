package resilience

import (
	"time"
)

// FromRetryConfig converts config values to a linear RetryPolicy. retries is
// the number of retries after the first attempt.
func FromRetryConfig(retries int, step time.Duration) RetryPolicy {
	p := DefaultRetryPolicy()
	if retries >= 0 {
		p.Attempts = retries + 1
	}
	if step > 0 {
		p.Backoff = Linear(step)
	}
	return p
}

// FromCircuitConfig converts config values to a CircuitBreakerConfig.
func FromCircuitConfig(failureThreshold, resetTimeoutSecs int) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	return cfg
}
