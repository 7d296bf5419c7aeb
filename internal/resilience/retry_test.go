package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(func() error {
		calls++
		return nil
	}, DefaultRetryConfig(), nil)

	if err != nil {
		t.Fatalf("Retry() failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	cfg := &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}

	err := Retry(func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, cfg, nil)

	if err != nil {
		t.Fatalf("Retry() failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestRetry_Exhaustion(t *testing.T) {
	calls := 0
	cfg := &RetryConfig{
		MaxAttempts:       2,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}

	wantErr := errors.New("still broken")
	err := Retry(func() error {
		calls++
		return wantErr
	}, cfg, nil)

	if !errors.Is(err, wantErr) {
		t.Errorf("Expected last error returned, got %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected 2 calls, got %d", calls)
	}
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	fatal := errors.New("auth failure")

	err := Retry(func() error {
		calls++
		return fatal
	}, DefaultRetryConfig(), func(err error) bool {
		return false
	})

	if !errors.Is(err, fatal) {
		t.Errorf("Expected fatal error returned, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected no retry after non-retryable error, got %d calls", calls)
	}
}

func TestRetry_SingleRetryBackoff(t *testing.T) {
	// MaxAttempts 2 means exactly one retry after the configured backoff
	cfg := &RetryConfig{
		MaxAttempts:       2,
		InitialBackoff:    20 * time.Millisecond,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 1.0,
	}

	calls := 0
	start := time.Now()
	_ = Retry(func() error {
		calls++
		return errors.New("transient")
	}, cfg, nil)
	elapsed := time.Since(start)

	if calls != 2 {
		t.Errorf("Expected exactly 2 attempts, got %d", calls)
	}
	if elapsed < 20*time.Millisecond {
		t.Errorf("Expected at least one 20ms backoff, elapsed %v", elapsed)
	}
}

func TestRetry_OnRetryFiresOncePerActualRetry(t *testing.T) {
	cfg := &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
		BackoffMultiplier: 1.0,
	}

	var notified []int
	cfg.OnRetry = func(nextAttempt int, err error) {
		notified = append(notified, nextAttempt)
	}

	_ = Retry(func() error {
		return errors.New("transient")
	}, cfg, nil)

	// Three failed attempts yield two retries; the final failure must not
	// report a retry that never happens
	if len(notified) != 2 {
		t.Fatalf("Expected 2 retry notifications, got %d", len(notified))
	}
	if notified[0] != 2 || notified[1] != 3 {
		t.Errorf("Expected notifications for attempts 2 and 3, got %v", notified)
	}
}

func TestRetry_OnRetrySkippedForNonRetryable(t *testing.T) {
	cfg := &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
		BackoffMultiplier: 1.0,
	}

	retries := 0
	cfg.OnRetry = func(nextAttempt int, err error) { retries++ }

	_ = Retry(func() error {
		return errors.New("fatal")
	}, cfg, func(err error) bool { return false })

	if retries != 0 {
		t.Errorf("Expected no retry notification for a non-retryable error, got %d", retries)
	}
}

func TestRetry_NilConfigUsesDefaults(t *testing.T) {
	calls := 0
	err := Retry(func() error {
		calls++
		return nil
	}, nil, nil)

	if err != nil || calls != 1 {
		t.Errorf("Expected success with defaults, err=%v calls=%d", err, calls)
	}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{10, 5 * time.Second}, // capped
	}

	for _, tt := range tests {
		got := CalculateBackoff(tt.attempt, 100*time.Millisecond, 5*time.Second, 2.0)
		if got != tt.want {
			t.Errorf("CalculateBackoff(%d): expected %v, got %v", tt.attempt, tt.want, got)
		}
	}
}
