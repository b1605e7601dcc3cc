package engine

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy shapes how retryable failures are handled.
type RetryPolicy struct {
	// MaxAttempts caps total tries per logical request, first attempt
	// included.
	MaxAttempts int
	// BaseDelay is the first backoff interval.
	BaseDelay time.Duration
	// MaxDelay bounds the backoff curve.
	MaxDelay time.Duration
	// Jitter is the randomization factor applied to each interval (0..1).
	Jitter float64
	// RespectRetryAfter makes vendor retry-after hints override the
	// computed backoff.
	RespectRetryAfter bool
}

// DefaultRetryPolicy returns the standard tuning.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		BaseDelay:         500 * time.Millisecond,
		MaxDelay:          30 * time.Second,
		Jitter:            0.5,
		RespectRetryAfter: true,
	}
}

// newBackOff builds the per-request backoff source. One instance lives for
// the whole logical request, so successive retries climb the curve.
func (p RetryPolicy) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.BaseDelay
	bo.MaxInterval = p.MaxDelay
	bo.RandomizationFactor = p.Jitter
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0 // attempts are bounded by MaxAttempts, not time
	bo.Reset()
	return bo
}
