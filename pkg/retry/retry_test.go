package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(cfg Config, slept *[]time.Duration) Config {
	cfg.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return cfg
}

func TestDoStopsAtFirstSuccess(t *testing.T) {
	var slept []time.Duration
	calls := 0
	err := Do(context.Background(), func(int) error {
		calls++
		if calls < 2 {
			return errors.New("boom")
		}
		return nil
	}, noSleep(Fixed(5, time.Second), &slept))

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{time.Second}, slept)
}

func TestDoExhausts(t *testing.T) {
	var slept []time.Duration
	last := errors.New("rejected")
	var attempts []int
	err := Do(context.Background(), func(a int) error {
		attempts = append(attempts, a)
		return last
	}, noSleep(Fixed(3, 2*time.Second), &slept))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, last)
	assert.Equal(t, []int{1, 2, 3}, attempts)
	// no sleep after the final attempt
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, slept)
}

func TestDoRetryIf(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	cfg := Fixed(5, 0)
	cfg.RetryIf = func(err error) bool { return !errors.Is(err, fatal) }

	err := Do(context.Background(), func(int) error {
		calls++
		return fatal
	}, cfg)

	assert.Equal(t, fatal, err)
	assert.Equal(t, 1, calls)
}

func TestDoCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, func(int) error {
		calls++
		return nil
	}, Fixed(3, time.Millisecond))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestDoZeroAttemptsStillTriesOnce(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(int) error {
		calls++
		return nil
	}, Fixed(0, time.Second))

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDelayBackoff(t *testing.T) {
	cfg := Config{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, Multiplier: 2}
	cfg.validate()

	assert.Equal(t, 100*time.Millisecond, cfg.delay(0))
	assert.Equal(t, 200*time.Millisecond, cfg.delay(1))
	assert.Equal(t, 300*time.Millisecond, cfg.delay(2))
}
