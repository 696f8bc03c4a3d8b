// Package retry runs operations against PostgreSQL and Redis with exponential
// backoff. It is used at startup, when the backing services may still be coming up.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"
)

// Config defines retry behavior with exponential backoff
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0-1.0, +/- fraction of each delay

	// OnRetry, if set, is called before each wait with the attempt that failed.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns sensible defaults for database operations
// 3 retries with 100ms initial delay, capped at 5s, doubling each time, with 10% jitter
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// StartupConfig waits longer than DefaultConfig: 10 retries from 500ms, capped at 5s.
// Containers started together rarely have their database ready first.
func StartupConfig() *Config {
	return &Config{
		MaxRetries:   10,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// applyJitter returns delay +/- (delay * jitterFactor * random(-1 to +1)).
func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// backoff tracks the delay between attempts.
type backoff struct {
	cfg   *Config
	delay time.Duration
}

func newBackoff(cfg *Config) *backoff {
	return &backoff{cfg: cfg, delay: cfg.InitialDelay}
}

// wait sleeps before the next attempt and grows the delay.
// It returns ctx.Err() if the context ends first.
func (b *backoff) wait(ctx context.Context, attempt int, err error) error {
	d := applyJitter(b.delay, b.cfg.JitterFactor)
	if b.cfg.OnRetry != nil {
		b.cfg.OnRetry(attempt, err, d)
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		b.delay = time.Duration(float64(b.delay) * b.cfg.Multiplier)
		if b.delay > b.cfg.MaxDelay {
			b.delay = b.cfg.MaxDelay
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"timed out",
	"temporary failure",
	"too many connections",
	"too many clients",
	"deadlock",
	"network is unreachable",
	"the database system is starting up",
	"loading the dataset in memory",
}

// IsRetryable determines if an error is transient and worth retrying.
// Errors are matched against known network and startup failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// DoWithResultIfRetryable runs fn with exponential backoff and returns its result.
// Only transient errors are retried. Permanent errors (bad credentials, unknown
// database) are returned immediately. Waits end early when ctx is done.
func DoWithResultIfRetryable[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var result T
	var lastErr error
	b := newBackoff(cfg)

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		r, err := fn()
		if err == nil {
			return r, nil
		}

		lastErr = err
		result = r

		if !IsRetryable(err) {
			return result, err
		}

		if attempt < cfg.MaxRetries {
			if err := b.wait(ctx, attempt, lastErr); err != nil {
				return result, err
			}
		}
	}

	return result, lastErr
}
