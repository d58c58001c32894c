// Package retry centralizes the retry-with-backoff loops that were
// previously duplicated across gateway call sites.
package retry

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
)

// Retryable classifies an error: return true to try again, false to stop.
type Retryable func(err error) bool

// Options bounds one retry loop.
type Options struct {
	Attempts int           // total attempts including the first (min 1)
	Delay    time.Duration // base delay between attempts
	Fixed    bool          // true = constant delay, false = exponential
}

// Do runs fn up to opts.Attempts times, sleeping between attempts while
// retryable(err) holds. The last error is returned; ctx cancellation cuts
// the wait short.
func Do(ctx context.Context, opts Options, fn func() error, retryable Retryable) error {
	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}
	b := &backoff.Backoff{
		Min:    opts.Delay,
		Max:    opts.Delay,
		Factor: 2,
		Jitter: false,
	}
	if !opts.Fixed {
		b.Max = opts.Delay * 8
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
	return err
}
