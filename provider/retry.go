package provider

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy configures retry behavior with exponential backoff and
// escalating per-attempt timeouts.
type RetryPolicy struct {
	MaxAttempts       int     // total attempts including the first
	BaseDelay         float64 // initial backoff delay in seconds
	MaxDelay          float64 // maximum backoff delay in seconds
	BackoffMultiplier float64 // exponential backoff factor
	Jitter            bool    // randomize delays to prevent thundering herd

	// BaseAttemptTimeout bounds the first attempt. Each retry doubles the
	// timeout up to MaxAttemptTimeout: early attempts fail fast, later ones
	// allow for a backend that is merely slow. Zero disables per-attempt
	// deadlines.
	BaseAttemptTimeout time.Duration
	MaxAttemptTimeout  time.Duration

	OnRetry func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:        3,
		BaseDelay:          1.0,
		MaxDelay:           60.0,
		BackoffMultiplier:  2.0,
		Jitter:             true,
		BaseAttemptTimeout: 60 * time.Second,
		MaxAttemptTimeout:  300 * time.Second,
	}
}

// Delay calculates the backoff delay after attempt n (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := math.Min(p.BaseDelay*math.Pow(p.BackoffMultiplier, float64(attempt)), p.MaxDelay)
	if p.Jitter {
		// +/- 50% jitter: rand in [0,1) -> [0.5, 1.5)
		delay = delay * (0.5 + rand.Float64())
	}
	return time.Duration(delay * float64(time.Second))
}

// AttemptTimeout returns the deadline for attempt n (0-indexed), doubling
// per retry and capped at MaxAttemptTimeout.
func (p RetryPolicy) AttemptTimeout(attempt int) time.Duration {
	if p.BaseAttemptTimeout <= 0 {
		return 0
	}
	timeout := p.BaseAttemptTimeout
	for i := 0; i < attempt; i++ {
		timeout *= 2
		if p.MaxAttemptTimeout > 0 && timeout >= p.MaxAttemptTimeout {
			return p.MaxAttemptTimeout
		}
	}
	if p.MaxAttemptTimeout > 0 && timeout > p.MaxAttemptTimeout {
		timeout = p.MaxAttemptTimeout
	}
	return timeout
}

// Retry executes fn under the policy. Only errors classified retryable by
// IsRetryable are retried; a Retry-After hint on a rate-limit error
// overrides the computed delay unless it exceeds MaxDelay.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	var err error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		var result T
		result, err = runAttempt(ctx, policy, attempt, fn)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, &AbortError{AdapterError: AdapterError{
				Message: "request cancelled",
				Cause:   ctx.Err(),
			}}
		}
		if !IsRetryable(err) {
			return zero, err
		}
		if attempt == policy.MaxAttempts-1 {
			break
		}

		delay := policy.Delay(attempt)
		if ra := retryAfterOf(err); ra != nil {
			if *ra > time.Duration(policy.MaxDelay*float64(time.Second)) {
				// Retry-After exceeds the delay ceiling; surface immediately.
				return zero, err
			}
			delay = *ra
		}

		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, delay)
		}

		select {
		case <-ctx.Done():
			return zero, &AbortError{AdapterError: AdapterError{
				Message: "request cancelled during retry wait",
				Cause:   ctx.Err(),
			}}
		case <-time.After(delay):
		}
	}

	return zero, err
}

// runAttempt executes one attempt under its escalated timeout, converting a
// deadline overrun into a retryable TimeoutError (distinct from caller
// cancellation).
func runAttempt[T any](ctx context.Context, policy RetryPolicy, attempt int, fn func(ctx context.Context) (T, error)) (T, error) {
	attemptCtx := ctx
	var cancel context.CancelFunc
	if timeout := policy.AttemptTimeout(attempt); timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := fn(attemptCtx)
	if err != nil && attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return result, &TimeoutError{
			AdapterError: AdapterError{Message: "attempt deadline exceeded", Cause: err},
			Attempt:      attempt + 1,
		}
	}
	return result, err
}
