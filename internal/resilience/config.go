package resilience

import (
	"time"
)

// FromRetryConfig converts config values to a RetryConfig. Zero values keep
// the defaults.
func FromRetryConfig(maxAttempts, initialBackoffMs, maxBackoffMs int, multiplier, jitterFraction float64) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if initialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	}
	if maxBackoffMs > 0 {
		cfg.MaxBackoff = time.Duration(maxBackoffMs) * time.Millisecond
	}
	if multiplier > 0 {
		cfg.Multiplier = multiplier
	}
	if jitterFraction > 0 {
		cfg.JitterFraction = jitterFraction
	}
	return cfg
}

// FromBackoffSchedule builds a RetryConfig that sleeps an explicit ordered
// schedule, one entry per failed attempt, and surrenders once the schedule
// is exhausted. Schedule entries are seconds.
func FromBackoffSchedule(seconds []float64) RetryConfig {
	cfg := DefaultRetryConfig()
	if len(seconds) == 0 {
		return cfg
	}
	backoffs := make([]time.Duration, len(seconds))
	for i, s := range seconds {
		backoffs[i] = time.Duration(s * float64(time.Second))
	}
	cfg.Backoffs = backoffs
	cfg.MaxAttempts = len(backoffs) + 1
	cfg.JitterFraction = 0
	return cfg
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
