package provider

import (
	"context"
	"testing"
	"time"
)

func transientErr(msg string) error {
	return &ServerError{BackendError: BackendError{
		AdapterError: AdapterError{Message: msg},
		Backend:      "test",
		StatusCode:   500,
		Retryable:    true,
	}}
}

func TestRetryPolicyDelay(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:         1.0,
		BackoffMultiplier: 2.0,
		MaxDelay:          60.0,
		Jitter:            false,
	}

	delays := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	}

	for i, expected := range delays {
		got := policy.Delay(i)
		if got != expected {
			t.Errorf("attempt %d: expected %v, got %v", i, expected, got)
		}
	}
}

func TestRetryPolicyDelayWithMaxCap(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:         1.0,
		BackoffMultiplier: 2.0,
		MaxDelay:          5.0,
		Jitter:            false,
	}

	// Attempt 10 would be 1024s without the cap.
	got := policy.Delay(10)
	if got != 5*time.Second {
		t.Errorf("expected 5s (capped), got %v", got)
	}
}

func TestRetryPolicyDelayWithJitter(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:         1.0,
		BackoffMultiplier: 2.0,
		MaxDelay:          60.0,
		Jitter:            true,
	}

	// With jitter, delay should be within +/- 50% of the base delay.
	for i := 0; i < 100; i++ {
		got := policy.Delay(0)
		if got < 500*time.Millisecond || got > 1500*time.Millisecond {
			t.Errorf("jittered delay out of range: %v", got)
		}
	}
}

func TestAttemptTimeoutEscalates(t *testing.T) {
	policy := RetryPolicy{
		BaseAttemptTimeout: 60 * time.Second,
		MaxAttemptTimeout:  300 * time.Second,
	}

	timeouts := []time.Duration{
		60 * time.Second,
		120 * time.Second,
		240 * time.Second,
		300 * time.Second, // doubling would be 480s, capped
		300 * time.Second,
	}
	for i, expected := range timeouts {
		if got := policy.AttemptTimeout(i); got != expected {
			t.Errorf("attempt %d: expected %v, got %v", i, expected, got)
		}
	}
}

func TestAttemptTimeoutDisabled(t *testing.T) {
	policy := RetryPolicy{}
	if got := policy.AttemptTimeout(3); got != 0 {
		t.Errorf("expected 0 with no base timeout, got %v", got)
	}
}

func TestRetrySuccessAfterTransient(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 4, BaseDelay: 0.001, BackoffMultiplier: 1, MaxDelay: 0.001}

	callCount := 0
	result, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		callCount++
		if callCount < 3 {
			return "", transientErr("server error")
		}
		return "success", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "success" {
		t.Errorf("expected %q, got %q", "success", result)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestRetryPermanentErrorNotRetried(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 4, BaseDelay: 0.001, BackoffMultiplier: 1, MaxDelay: 0.001}

	callCount := 0
	_, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		callCount++
		return "", &AuthError{BackendError: BackendError{
			AdapterError: AdapterError{Message: "invalid key"},
			Backend:      "test",
			StatusCode:   401,
		}}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := err.(*AuthError); !ok {
		t.Errorf("expected AuthError, got %T", err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call for permanent error, got %d", callCount)
	}
}

func TestRetryExhausted(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: 0.001, BackoffMultiplier: 1, MaxDelay: 0.001}

	callCount := 0
	_, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		callCount++
		return "", transientErr("still failing")
	})
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
	if _, ok := err.(*ServerError); !ok {
		t.Errorf("expected last ServerError to surface, got %T", err)
	}
}

func TestRetryCancelledDuringWait(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: 10.0, BackoffMultiplier: 1, MaxDelay: 10.0}

	ctx, cancel := context.WithCancel(context.Background())
	callCount := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := Retry(ctx, policy, func(ctx context.Context) (string, error) {
		callCount++
		return "", transientErr("flaky")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := err.(*AbortError); !ok {
		t.Errorf("expected AbortError on cancellation, got %T: %v", err, err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", callCount)
	}
}

func TestRetryHonorsRetryAfter(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 2, BaseDelay: 30.0, BackoffMultiplier: 1, MaxDelay: 60.0}

	hint := 10 * time.Millisecond
	var observedDelay time.Duration
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		observedDelay = delay
	}

	callCount := 0
	start := time.Now()
	result, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		callCount++
		if callCount == 1 {
			return "", &RateLimitError{BackendError: BackendError{
				AdapterError: AdapterError{Message: "slow down"},
				Backend:      "test",
				StatusCode:   429,
				Retryable:    true,
				RetryAfter:   &hint,
			}}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Errorf("expected ok, got %q", result)
	}
	if observedDelay != hint {
		t.Errorf("expected Retry-After hint %v to be used, got %v", hint, observedDelay)
	}
	// The 30s computed backoff must not have been used.
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("retry waited %v, expected roughly the hint", elapsed)
	}
}

func TestRetryAfterExceedingCapSurfacesImmediately(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: 0.001, BackoffMultiplier: 1, MaxDelay: 1.0}

	hint := 10 * time.Minute
	callCount := 0
	_, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		callCount++
		return "", &RateLimitError{BackendError: BackendError{
			AdapterError: AdapterError{Message: "very rate limited"},
			Backend:      "test",
			StatusCode:   429,
			Retryable:    true,
			RetryAfter:   &hint,
		}}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := err.(*RateLimitError); !ok {
		t.Errorf("expected RateLimitError, got %T", err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call when Retry-After exceeds the cap, got %d", callCount)
	}
}

func TestRetryAttemptTimeoutConvertsToTimeoutError(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:        1,
		BaseDelay:          0.001,
		BackoffMultiplier:  1,
		MaxDelay:           0.001,
		BaseAttemptTimeout: 10 * time.Millisecond,
	}

	_, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	if err == nil {
		t.Fatal("expected error")
	}
	te, ok := err.(*TimeoutError)
	if !ok {
		t.Fatalf("expected TimeoutError, got %T: %v", err, err)
	}
	if te.Attempt != 1 {
		t.Errorf("expected attempt 1, got %d", te.Attempt)
	}
}

func TestRetryCallerDeadlineIsNotRetried(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: 0.001, BackoffMultiplier: 1, MaxDelay: 0.001}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	callCount := 0
	_, err := Retry(ctx, policy, func(ctx context.Context) (string, error) {
		callCount++
		<-ctx.Done()
		return "", ctx.Err()
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := err.(*AbortError); !ok {
		t.Errorf("expected AbortError when the caller deadline expires, got %T", err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
}

func TestRetryNoError(t *testing.T) {
	result, err := Retry(context.Background(), DefaultRetryPolicy(), func(ctx context.Context) (string, error) {
		return "immediate", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "immediate" {
		t.Errorf("expected %q, got %q", "immediate", result)
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	if p.MaxAttempts != 3 {
		t.Errorf("expected max_attempts 3, got %d", p.MaxAttempts)
	}
	if p.BaseDelay != 1.0 {
		t.Errorf("expected base_delay 1.0, got %f", p.BaseDelay)
	}
	if p.MaxDelay != 60.0 {
		t.Errorf("expected max_delay 60.0, got %f", p.MaxDelay)
	}
	if p.BackoffMultiplier != 2.0 {
		t.Errorf("expected backoff_multiplier 2.0, got %f", p.BackoffMultiplier)
	}
	if !p.Jitter {
		t.Error("expected jitter = true")
	}
	if p.BaseAttemptTimeout != 60*time.Second {
		t.Errorf("expected base attempt timeout 60s, got %v", p.BaseAttemptTimeout)
	}
	if p.MaxAttemptTimeout != 300*time.Second {
		t.Errorf("expected max attempt timeout 300s, got %v", p.MaxAttemptTimeout)
	}
}
