package scheduler

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const warmupConcurrency = 4

// Warmup seeds the indicator windows from recent closes so signals are
// available from the first cycle. A pair whose history cannot be fetched
// fills its windows from live prices instead.
func (r *Runner) Warmup(ctx context.Context) error {
	if r.deps.History == nil || r.deps.Seeder == nil || r.opts.WarmupLimit <= 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmupConcurrency)

	for _, pair := range r.opts.Pairs {
		pair := pair
		g.Go(func() error {
			prices, err := r.deps.History.FetchHistoricalPrices(gctx, pair, r.opts.WarmupLimit, r.opts.WarmupInterval)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.log.Warn("warmup skipped", zap.String("pair", pair), zap.Error(err))
				return nil
			}
			r.deps.Seeder.Seed(pair, prices)
			r.log.Info("indicators warmed up", zap.String("pair", pair), zap.Int("prices", len(prices)))
			return nil
		})
	}
	return g.Wait()
}

// announce logs the parameters and the recovered portfolio, then notifies
// that the bot is running.
func (r *Runner) announce(ctx context.Context) {
	for _, line := range r.opts.Summary {
		r.log.Info(line)
	}

	if r.deps.Portfolio != nil {
		p, err := r.deps.Portfolio.All(ctx)
		switch {
		case err != nil:
			r.log.Warn("could not read portfolio", zap.Error(err))
		case len(p) == 0:
			r.log.Info("no open positions")
		default:
			for pair, ps := range p {
				for _, pos := range ps {
					r.log.Info("restored position",
						zap.String("pair", pair),
						zap.String("id", pos.ID),
						zap.Float64("price", pos.Price),
						zap.Float64("quantity", pos.Quantity),
						zap.Time("opened_at", pos.OpenedAt.Time),
					)
				}
			}
		}
	}

	r.notify(ctx, fmt.Sprintf("bot started (%s) on %s", r.opts.Mode, strings.Join(r.opts.Pairs, ", ")))
}
