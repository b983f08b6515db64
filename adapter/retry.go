package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultBackoff is the delay before the first retry. Each later retry
// doubles it, up to MaxBackoff.
const DefaultBackoff = 500 * time.Millisecond

// MaxBackoff caps a single retry delay.
const MaxBackoff = 30 * time.Second

// Policy bounds delivery attempts for a single Publish call.
type Policy struct {
	// Retries is the number of attempts after the first.
	Retries int
	// Timeout caps each attempt. Zero leaves the caller's context as is.
	Timeout time.Duration
	// Backoff is the first retry delay. Zero means DefaultBackoff.
	Backoff time.Duration
	// Notify, if set, is called before each retry with the failed attempt's
	// error and the wait.
	Notify func(err error, wait time.Duration)
}

// backOff builds the exponential schedule. Delays are not jittered.
func (p Policy) backOff() *backoff.ExponentialBackOff {
	initial := p.Backoff
	if initial <= 0 {
		initial = DefaultBackoff
	}
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(initial),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxInterval(MaxBackoff),
		backoff.WithMaxElapsedTime(0),
	)
}

// Delay returns the wait before retry n (n >= 1).
func (p Policy) Delay(n int) time.Duration {
	b := p.backOff()
	var d time.Duration
	for range max(n, 1) {
		d = b.NextBackOff()
	}
	return d
}

// Do calls op until it succeeds, returns a Permanent error, the attempts run
// out, or ctx is done.
func (p Policy) Do(ctx context.Context, op func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}

	var (
		attempts  int
		permanent bool
		lastErr   error
	)
	operation := func() error {
		attempts++
		lastErr = p.attempt(ctx, op)
		var perm *backoff.PermanentError
		if errors.As(lastErr, &perm) {
			permanent = true
		}
		return lastErr
	}

	schedule := backoff.WithContext(backoff.WithMaxRetries(p.backOff(), uint64(max(p.Retries, 0))), ctx)
	var notify backoff.Notify
	if p.Notify != nil {
		notify = backoff.Notify(p.Notify)
	}

	err := backoff.RetryNotify(operation, schedule, notify)
	switch {
	case err == nil:
		return nil
	case permanent:
		return fmt.Errorf("non-retriable error: %w", err)
	case ctx.Err() != nil:
		return fmt.Errorf("context canceled during backoff: %w (last error: %v)", ctx.Err(), lastErr)
	default:
		return fmt.Errorf("failed after %d attempts: %w", attempts, err)
	}
}

func (p Policy) attempt(ctx context.Context, op func(context.Context) error) error {
	if p.Timeout <= 0 {
		return op(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return op(ctx)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
