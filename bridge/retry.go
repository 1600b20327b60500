package bridge

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy bounds automatic retry of transient remote failures.
// Delays grow as BaseDelay*2^attempt, capped at MaxDelay, with ±25% jitter
// so synchronized callers do not retry in lockstep.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// OnRetry, when set, is invoked before each retry sleep with the
	// attempt number (0-based), the chosen delay, and the failure.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultRetryPolicy returns the policy the bridged backend uses unless
// configured otherwise.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   5 * time.Second,
	}
}

// Do runs fn, retrying per classification: temporary failures up to
// MaxRetries times, unknown failures up to half that, permanent failures
// never. Returns the last error when the budget is exhausted.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		var budget int
		switch Classify(err) {
		case ClassPermanent:
			return err
		case ClassTemporary:
			budget = p.MaxRetries
		case ClassUnknown:
			budget = p.MaxRetries / 2
		}
		if attempt >= budget {
			return err
		}

		delay := p.backoff(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 0; i < attempt && delay < p.MaxDelay; i++ {
		delay *= 2
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	// ±25% jitter.
	factor := 0.75 + rand.Float64()*0.5
	return time.Duration(float64(delay) * factor)
}
