package bridge_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tailored-agentic-units/varstate/bridge"
	"github.com/tailored-agentic-units/varstate/state"
)

func fastPolicy(maxRetries int) bridge.RetryPolicy {
	return bridge.RetryPolicy{
		MaxRetries: maxRetries,
		BaseDelay:  time.Microsecond,
		MaxDelay:   time.Millisecond,
	}
}

func TestRetryPolicy_PermanentNotRetried(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		return state.ErrNotFound
	})

	if !errors.Is(err, state.ErrNotFound) {
		t.Errorf("Do error = %v, want ErrNotFound", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1 for permanent failure", calls)
	}
}

func TestRetryPolicy_TemporaryUsesFullBudget(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		return context.DeadlineExceeded
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do error = %v, want DeadlineExceeded", err)
	}
	if calls != 4 {
		t.Errorf("fn called %d times, want 4 (initial call plus 3 retries)", calls)
	}
}

func TestRetryPolicy_UnknownUsesHalfBudget(t *testing.T) {
	calls := 0
	err := fastPolicy(4).Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("opaque failure")
	})

	if err == nil {
		t.Fatal("Do should return the last error")
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3 (initial call plus 2 retries)", calls)
	}
}

func TestRetryPolicy_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return context.DeadlineExceeded
		}
		return nil
	})

	if err != nil {
		t.Errorf("Do failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
}

func TestRetryPolicy_OnRetryCallback(t *testing.T) {
	var attempts []int
	var delays []time.Duration
	policy := fastPolicy(2)
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		attempts = append(attempts, attempt)
		delays = append(delays, delay)
	}

	_ = policy.Do(context.Background(), func(context.Context) error {
		return context.DeadlineExceeded
	})

	if len(attempts) != 2 || attempts[0] != 0 || attempts[1] != 1 {
		t.Errorf("OnRetry attempts = %v, want [0 1]", attempts)
	}
	for i, d := range delays {
		if d <= 0 {
			t.Errorf("delays[%d] = %v, want positive", i, d)
		}
	}
}

func TestRetryPolicy_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := bridge.RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Minute, // never elapses
		MaxDelay:   time.Minute,
	}

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- policy.Do(ctx, func(context.Context) error {
			calls++
			return context.DeadlineExceeded
		})
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Do error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

// Backoff grows per attempt. With jitter at ±25% of BaseDelay*2^attempt the
// bands for consecutive attempts do not overlap, so ordering is deterministic.
func TestRetryPolicy_BackoffGrows(t *testing.T) {
	var delays []time.Duration
	policy := bridge.RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Microsecond,
		MaxDelay:   time.Second,
		OnRetry: func(_ int, delay time.Duration, _ error) {
			delays = append(delays, delay)
		},
	}

	_ = policy.Do(context.Background(), func(context.Context) error {
		return context.DeadlineExceeded
	})

	if len(delays) != 3 {
		t.Fatalf("got %d delays, want 3", len(delays))
	}
	for i := 1; i < len(delays); i++ {
		if delays[i] <= delays[i-1] {
			t.Errorf("delays[%d]=%v not greater than delays[%d]=%v", i, delays[i], i-1, delays[i-1])
		}
	}
}

func TestRetryPolicy_MaxDelayCap(t *testing.T) {
	var delays []time.Duration
	policy := bridge.RetryPolicy{
		MaxRetries: 5,
		BaseDelay:  time.Microsecond,
		MaxDelay:   4 * time.Microsecond,
		OnRetry: func(_ int, delay time.Duration, _ error) {
			delays = append(delays, delay)
		},
	}

	_ = policy.Do(context.Background(), func(context.Context) error {
		return context.DeadlineExceeded
	})

	// 4us cap with +25% jitter bounds every delay at 5us.
	for i, d := range delays {
		if d > 5*time.Microsecond {
			t.Errorf("delays[%d] = %v exceeds jittered cap", i, d)
		}
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := bridge.DefaultRetryPolicy()
	if p.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", p.MaxRetries)
	}
	if p.BaseDelay != 100*time.Millisecond {
		t.Errorf("BaseDelay = %v, want 100ms", p.BaseDelay)
	}
	if p.MaxDelay != 5*time.Second {
		t.Errorf("MaxDelay = %v, want 5s", p.MaxDelay)
	}
}
