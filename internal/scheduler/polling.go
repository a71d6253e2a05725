package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

func (r *Runner) poll(ctx context.Context) error {
	t := time.NewTicker(r.opts.Interval)
	defer t.Stop()

	for {
		if err := r.pollOnce(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// pollOnce runs the pairs one after another. A failed price fetch skips only
// that pair.
func (r *Runner) pollOnce(ctx context.Context) error {
	for _, pair := range r.opts.Pairs {
		if ctx.Err() != nil {
			return nil
		}

		start := time.Now()
		price, err := r.deps.Feed.FetchCurrentPrice(ctx, pair)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.log.Warn("price fetch failed, skipping cycle", zap.String("pair", pair), zap.Error(err))
			r.record(pair, outcomeFeedError, time.Since(start))
			continue
		}

		if err := r.cycle(ctx, pair, price); err != nil {
			return err
		}
	}
	return nil
}
