// Package backoff provides jittered exponential backoff for the worker's
// poll loop and the callback sender's delivery retries.
package backoff

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Policy defines an exponential backoff curve.
type Policy struct {
	// Initial is the delay before the second attempt.
	Initial time.Duration
	// Max caps the computed delay.
	Max time.Duration
	// Factor multiplies the delay on each successive attempt.
	Factor float64
	// Jitter is the randomization fraction (0.0 to 1.0) added on top of
	// the computed delay.
	Jitter float64
}

// DefaultPolicy is tuned for polling a local-network backend: 100ms
// initial, doubling to a 30s ceiling, 10% jitter.
func DefaultPolicy() Policy {
	return Policy{
		Initial: 100 * time.Millisecond,
		Max:     30 * time.Second,
		Factor:  2,
		Jitter:  0.1,
	}
}

// Delay returns the backoff duration for attempt (1-indexed).
func (p Policy) Delay(attempt int) time.Duration {
	return p.delayWithRand(attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// delayWithRand computes the delay with a caller-supplied random value in
// [0.0, 1.0), kept separate so tests are deterministic.
func (p Policy) delayWithRand(attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := float64(p.Initial) * math.Pow(p.Factor, exp)
	jittered := base + base*p.Jitter*randomValue
	return time.Duration(math.Min(float64(p.Max), jittered))
}

// SleepWithContext sleeps for duration, returning early with ctx.Err() if
// the context is cancelled first.
func SleepWithContext(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return nil
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Sleep sleeps for the policy's delay at the given attempt.
func (p Policy) Sleep(ctx context.Context, attempt int) error {
	return SleepWithContext(ctx, p.Delay(attempt))
}

// ErrExhausted is returned by Retry when every attempt failed. The last
// attempt's error is wrapped alongside it.
var ErrExhausted = errors.New("backoff: attempts exhausted")

// permanentError marks an error that must not be retried.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Retry stops immediately instead of retrying.
// errors.Is/As see through the wrapper.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry runs fn up to maxAttempts times, sleeping the policy's delay
// between failures. It stops early when fn succeeds, when fn returns an
// error wrapped by Permanent (that error is returned unwrapped), or when
// ctx is cancelled. After the final failed attempt it returns the last
// error joined with ErrExhausted.
func Retry(ctx context.Context, p Policy, maxAttempts int, fn func(attempt int) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(attempt)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err

		if attempt < maxAttempts {
			if err := p.Sleep(ctx, attempt); err != nil {
				return err
			}
		}
	}
	return errors.Join(ErrExhausted, lastErr)
}
