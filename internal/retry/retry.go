// Package retry implements bounded exponential backoff with jitter for
// transient external failures (network, rate limits, flaky child processes).
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Config controls the retry loop.
type Config struct {
	// MaxAttempts is the maximum number of attempts (default: 3).
	MaxAttempts int
	// InitialDelay is the delay before the second attempt (default: 2s).
	InitialDelay time.Duration
	// MaxDelay caps the delay between attempts (default: 30s).
	MaxDelay time.Duration
	// Multiplier grows the delay after each attempt (default: 2.0).
	Multiplier float64
	// Jitter randomizes each delay by ±Jitter fraction (default: 0.1).
	Jitter float64
	// ShouldRetry decides whether an error is worth another attempt.
	// Nil means every error is retried.
	ShouldRetry func(error) bool
	// OnRetry is called before sleeping, with the attempt that failed
	// and the upcoming delay. Optional.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultConfig returns the retry configuration used for external calls.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 2 * time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier < 1 {
		c.Multiplier = 2.0
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	return c
}

// Do runs fn up to cfg.MaxAttempts times, sleeping between attempts with
// exponential backoff and jitter. It returns the first successful result,
// or the last error once attempts are exhausted, ShouldRetry declines, or
// ctx is cancelled.
func Do[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	var zero T
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if cfg.ShouldRetry != nil && !cfg.ShouldRetry(err) {
			break
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		sleep := jittered(delay, cfg.Jitter)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, sleep, err)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(sleep):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return zero, lastErr
}

// jittered returns d shifted by a uniform random amount in ±d*fraction.
func jittered(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return d
	}
	span := float64(d) * fraction
	offset := (rand.Float64()*2 - 1) * span
	return time.Duration(float64(d) + offset)
}
