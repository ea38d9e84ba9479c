// Package retry implements the jittered exponential backoff primitive used
// by every network-facing component: the remote HTTP client, the queue
// drain loop, and the tracker supervisor's restart cadence.
//
// The sequence generator is github.com/cenkalti/backoff/v4; this package
// wraps it with the classification contract (retryable vs fatal) and the
// ±25% jitter formula the sync agent's remote protocol expects, rather than
// backoff's own full-jitter strategy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted wraps the last underlying cause when all attempts fail.
type ErrExhausted struct {
	Attempts int
	Cause    error
}

func (e *ErrExhausted) Error() string {
	return fmt.Sprintf("retry: exhausted after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *ErrExhausted) Unwrap() error { return e.Cause }

// Policy configures the backoff schedule. Delay between attempt n (0-indexed)
// and n+1 is min(MaxDelay, BaseDelay * ExponentialBase^n), jittered by ±Jitter
// fraction when Jitter > 0.
type Policy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	Jitter          float64
}

// DefaultPolicy is three attempts, one second base, capped at sixty
// seconds, doubling, with ±25% jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		BaseDelay:       time.Second,
		MaxDelay:        60 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          0.25,
	}
}

// IsRetryable reports whether the given error should trigger another attempt.
type IsRetryable func(err error) bool

// Delay computes the backoff delay before retrying attempt number `attempt`
// (0-indexed, i.e. the delay preceding the (attempt+1)-th try).
func (p Policy) Delay(attempt int) time.Duration {
	raw := float64(p.BaseDelay) * math.Pow(p.ExponentialBase, float64(attempt))
	if max := float64(p.MaxDelay); raw > max {
		raw = max
	}
	if p.Jitter > 0 {
		span := raw * p.Jitter
		raw += (rand.Float64()*2 - 1) * span
	}
	if raw < 0 {
		raw = 0
	}
	return time.Duration(raw)
}

// toBackoff adapts Policy into a cenkalti/backoff/v4 BackOff sequence, used
// so the retry loop itself (attempt bookkeeping, context-aware sleeping)
// comes from the library rather than being hand rolled, while the delay
// values still follow Policy.Delay's formula via a CustomBackOff wrapper.
type customBackoff struct {
	policy  Policy
	attempt int
}

func (c *customBackoff) NextBackOff() time.Duration {
	if c.attempt+1 >= c.policy.MaxAttempts {
		return backoff.Stop
	}
	d := c.policy.Delay(c.attempt)
	c.attempt++
	return d
}

func (c *customBackoff) Reset() { c.attempt = 0 }

// Do executes op, retrying on retryable errors per policy. Non-retryable
// errors propagate immediately without consuming an attempt. Exhaustion
// returns *ErrExhausted wrapping the last error.
func Do(ctx context.Context, policy Policy, isRetryable IsRetryable, op func(ctx context.Context) error) error {
	cb := &customBackoff{policy: policy}
	bo := backoff.WithContext(cb, ctx)

	var lastErr error
	attempts := 0

	retryOp := func() error {
		attempts++
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(retryOp, bo)
	if err == nil {
		return nil
	}

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Unwrap()
	}

	return &ErrExhausted{Attempts: attempts, Cause: lastErr}
}
