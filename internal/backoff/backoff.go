// Package backoff computes jittered retry delays and drives retry loops
// around operations that may fail transiently.
package backoff

import (
	"math/rand/v2"
	"time"
)

// Default retry parameters
const (
	DefaultMaxRetries = 3
	DefaultBase       = 500 * time.Millisecond
	DefaultMax        = 30 * time.Second
)

// Delay returns a full-jitter delay for the given attempt: uniform random in
// [0, min(max, base*2^attempt)). Attempt numbering starts at 0.
func Delay(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 || max <= 0 {
		return 0
	}
	ceiling := max
	// base << attempt overflows for large attempts; cap at max
	if attempt < 62 {
		if shifted := base << uint(attempt); shifted > 0 && shifted < max {
			ceiling = shifted
		}
	}
	return time.Duration(rand.Int64N(int64(ceiling)))
}

// Options configures WithRetry
type Options struct {
	// MaxRetries is the number of additional attempts after the first. Zero
	// means DefaultMaxRetries; negative disables retries entirely.
	MaxRetries int
	// Base and Max bound the jittered delay between attempts
	Base time.Duration
	Max  time.Duration
	// RetryIf decides whether an error is worth retrying. Nil retries all.
	RetryIf func(error) bool
	// OnRetry observes each retry before its delay elapses. Attempt counts
	// from 1.
	OnRetry func(attempt int, delay time.Duration, err error)
	// Sleep replaces time.Sleep in tests
	Sleep func(time.Duration)
}

// WithRetry invokes op, retrying on failure with full-jitter delays until it
// succeeds, MaxRetries additional attempts are exhausted, or RetryIf declines.
// Returns the last error.
func WithRetry(op func() error, opts Options) error {
	if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultMaxRetries
	} else if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Base <= 0 {
		opts.Base = DefaultBase
	}
	if opts.Max <= 0 {
		opts.Max = DefaultMax
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if attempt >= opts.MaxRetries {
			return err
		}
		if opts.RetryIf != nil && !opts.RetryIf(err) {
			return err
		}
		delay := Delay(attempt, opts.Base, opts.Max)
		if opts.OnRetry != nil {
			opts.OnRetry(attempt+1, delay, err)
		}
		sleep(delay)
	}
}
