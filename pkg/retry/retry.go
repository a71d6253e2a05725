// Package retry provides a bounded retry combinator.
//
// delay(attempt) = min(InitialDelay * Multiplier^attempt, MaxDelay) ± jitter
//
// A Multiplier of 1 and no jitter gives the fixed delay used for stoploss exits.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// ErrExhausted is returned (wrapped together with the last error) when every attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

type Config struct {
	// MaxRetries is the total number of attempts, including the first one.
	// Values below 1 are treated as 1.
	MaxRetries int

	InitialDelay time.Duration
	MaxDelay     time.Duration

	// Multiplier 1.0 means a fixed delay.
	Multiplier float64

	// JitterFactor in [0, 1].
	JitterFactor float64

	// RetryIf reports whether err is worth another attempt. Nil retries everything.
	RetryIf func(error) bool

	// OnRetry is called before sleeping ahead of the next attempt.
	OnRetry func(attempt int, err error, delay time.Duration)

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Fixed returns a config making exactly attempts tries with wait between them.
func Fixed(attempts int, wait time.Duration) Config {
	return Config{
		MaxRetries:   attempts,
		InitialDelay: wait,
		MaxDelay:     wait,
		Multiplier:   1,
	}
}

func (c *Config) validate() {
	if c.MaxRetries < 1 {
		c.MaxRetries = 1
	}
	if c.InitialDelay < 0 {
		c.InitialDelay = 0
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 1
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
	if c.JitterFactor > 1 {
		c.JitterFactor = 1
	}
	if c.sleep == nil {
		c.sleep = sleepCtx
	}
}

func (c *Config) delay(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	if c.JitterFactor > 0 {
		d += d * c.JitterFactor * (rand.Float64()*2 - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Do runs operation until it succeeds, RetryIf rejects the error, ctx is done,
// or MaxRetries attempts were made. On exhaustion the returned error wraps both
// ErrExhausted and the last operation error.
func Do(ctx context.Context, operation func(attempt int) error, cfg Config) error {
	cfg.validate()

	var lastErr error
	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := operation(attempt + 1)
		if err == nil {
			return nil
		}
		lastErr = err

		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return err
		}
		if attempt == cfg.MaxRetries-1 {
			break
		}

		d := cfg.delay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, d)
		}
		if err := cfg.sleep(ctx, d); err != nil {
			return lastErr
		}
	}

	return errors.Join(ErrExhausted, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
