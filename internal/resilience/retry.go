package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Retry defaults.
const (
	DefaultRetryAttempts = 3
	DefaultRetryBackoff  = 5 * time.Second
)

// ErrRetriesExhausted wraps the last failure once every attempt has failed.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryConfig controls [Retry].
type RetryConfig struct {
	// Attempts is the total number of tries, including the first.
	// Default: [DefaultRetryAttempts].
	Attempts int

	// Backoff is the fixed delay between tries. Zero selects
	// [DefaultRetryBackoff]; use a negative value for no delay.
	Backoff time.Duration

	// OnRetry, if set, is called before each delay with the 1-based number
	// of the attempt that just failed.
	OnRetry func(attempt int, err error)
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.Attempts <= 0 {
		c.Attempts = DefaultRetryAttempts
	}
	if c.Backoff == 0 {
		c.Backoff = DefaultRetryBackoff
	}
	if c.Backoff < 0 {
		c.Backoff = 0
	}
	return c
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. [Retry] returns it unwrapped
// on the first occurrence.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with [Permanent].
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Retry calls fn until it succeeds, returns a [Permanent] error, ctx ends,
// or cfg.Attempts tries have failed. Context errors are never retried.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := RetryWithResult(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryWithResult is [Retry] for functions that return a value.
func RetryWithResult[R any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (R, error)) (R, error) {
	cfg = cfg.withDefaults()
	var zero R
	for attempt := 1; ; attempt++ {
		r, err := fn(ctx)
		if err == nil {
			return r, nil
		}
		var pe *permanentError
		if errors.As(err, &pe) {
			return zero, pe.err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		if attempt >= cfg.Attempts {
			return zero, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, err)
		}

		slog.Debug("retrying after transient failure", "attempt", attempt, "backoff", cfg.Backoff, "error", err)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}
		if cfg.Backoff > 0 {
			timer := time.NewTimer(cfg.Backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, err
			case <-timer.C:
			}
		}
	}
}
