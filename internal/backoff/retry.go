// Package backoff wraps cenkalti/backoff/v5 with the single retry shape
// the StateStore needs: bounded attempts, exponential growth, randomized
// jitter (the library's default randomization factor).
// It exists so internal/store doesn't hand-roll its own retry loop for the
// one conflict-retry pattern it needs.
package backoff

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy configures a bounded, jittered exponential retry.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy is used when a caller doesn't need a custom retry shape.
var DefaultPolicy = Policy{
	MaxAttempts:     5,
	InitialInterval: 10 * time.Millisecond,
	MaxInterval:     500 * time.Millisecond,
}

// Retryable marks an error as worth retrying under this policy; any other
// error aborts the loop immediately.
type Retryable struct {
	Err error
}

func (r *Retryable) Error() string { return r.Err.Error() }
func (r *Retryable) Unwrap() error { return r.Err }

// MarkRetryable wraps err so Retry recognizes it as transient.
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &Retryable{Err: err}
}

// Retry runs fn until it succeeds, returns a non-retryable error, or the
// policy's attempt budget is exhausted.
func Retry(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval

	operation := func() (struct{}, error) {
		err := fn(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		var retryable *Retryable
		if ok := asRetryable(err, &retryable); ok {
			return struct{}{}, retryable.Err
		}
		return struct{}{}, backoff.Permanent(err)
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
	)
	return err
}

func asRetryable(err error, target **Retryable) bool {
	for err != nil {
		if r, ok := err.(*Retryable); ok {
			*target = r
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
