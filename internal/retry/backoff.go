// Package retry paces repeated attempts.  The SSH provider retries the
// gateway connection with Backoff.Do; the accept loop drives its own
// loop, waits Backoff.Delay between failed accepts, and asks a
// CircuitBreaker when to give up.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Zero Backoff fields fall back to these.
const (
	defaultInitialDelay = time.Second
	defaultMaxDelay     = time.Minute
	defaultMultiplier   = 2.0
)

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so that [Backoff.Do] returns it at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Backoff is an exponential delay schedule: InitialDelay before the
// first retry, multiplied by Multiplier each time, capped at MaxDelay.
type Backoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxAttempts  int  // tries including the first; 0 = until ctx is done
	Jitter       bool // spread each wait by ±25%
}

// DefaultBackoff is the schedule for reaching an SSH gateway.
func DefaultBackoff() *Backoff {
	return &Backoff{
		InitialDelay: time.Second,
		MaxDelay:     time.Minute,
		Multiplier:   defaultMultiplier,
		MaxAttempts:  10,
		Jitter:       true,
	}
}

// Delay returns the wait after failed attempt number attempt
// (1-based), without jitter.
func (b *Backoff) Delay(attempt int) time.Duration {
	delay, maxDelay, mult := b.InitialDelay, b.MaxDelay, b.Multiplier
	if delay <= 0 {
		delay = defaultInitialDelay
	}
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}
	if mult <= 0 {
		mult = defaultMultiplier
	}
	for i := 1; i < attempt && delay < maxDelay; i++ {
		delay = time.Duration(float64(delay) * mult)
	}
	return min(delay, maxDelay)
}

// Do calls fn until it succeeds, returns a [Permanent] error, runs out
// of attempts, or ctx is done.  fn receives the 1-based attempt number.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if b.MaxAttempts > 0 && attempt >= b.MaxAttempts {
			return fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}

		wait := b.Delay(attempt)
		if b.Jitter {
			wait = jitter(wait)
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-t.C:
		}
	}
}

// jitter spreads d uniformly over [0.75d, 1.25d].
func jitter(d time.Duration) time.Duration {
	return d - d/4 + time.Duration(rand.Int63n(int64(d/2)+1))
}
