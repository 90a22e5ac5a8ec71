// Package retrier implements exponential backoff with jitter for transient
// network failures.
package retrier

import (
	"context"
	"math/rand"
	"time"
)

const (
	defaultInitialDelay = 500 * time.Millisecond
	defaultMaxDelay     = 10 * time.Second
	defaultMultiplier   = 2.0
	defaultAttempts     = 3
	defaultJitter       = 0.1
)

// Retrier retries an operation with exponentially growing delays.
type Retrier struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	attempts     int
	jitter       float64
}

// Option configures a Retrier.
type Option func(*Retrier)

// WithAttempts sets the total number of attempts (initial call included).
func WithAttempts(n int) Option {
	return func(r *Retrier) {
		if n > 0 {
			r.attempts = n
		}
	}
}

// WithInitialDelay sets the delay before the first retry.
func WithInitialDelay(d time.Duration) Option {
	return func(r *Retrier) {
		r.initialDelay = d
	}
}

// WithMaxDelay caps the backoff delay.
func WithMaxDelay(d time.Duration) Option {
	return func(r *Retrier) {
		r.maxDelay = d
	}
}

// New creates a Retrier with defaults tuned for interactive CLI commands.
func New(opts ...Option) *Retrier {
	r := &Retrier{
		initialDelay: defaultInitialDelay,
		maxDelay:     defaultMaxDelay,
		multiplier:   defaultMultiplier,
		attempts:     defaultAttempts,
		jitter:       defaultJitter,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do runs fn until it succeeds, attempts are exhausted, or ctx is done.
// The last error is returned.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	delay := r.initialDelay

	var err error
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			jittered := time.Duration(float64(delay) * (1 + (rand.Float64()*2-1)*r.jitter))
			if jittered < 0 {
				jittered = 0
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jittered):
			}

			delay = time.Duration(float64(delay) * r.multiplier)
			if delay > r.maxDelay {
				delay = r.maxDelay
			}
		}

		if err = fn(ctx); err == nil {
			return nil
		}
	}

	return err
}

// DoWithData runs fn with retries and returns its value.
func DoWithData[T any](r *Retrier, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		var e error
		result, e = fn(ctx)
		return e
	})
	return result, err
}
