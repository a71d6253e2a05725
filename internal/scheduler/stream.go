package scheduler

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"scalper/internal/metrics"
)

// stream runs one worker per pair so each pair keeps its own order while
// pairs proceed concurrently. A worker that is still busy keeps only the
// latest price; older pending prices are dropped.
func (r *Runner) stream(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	inbox := make(map[string]chan float64, len(r.opts.Pairs))
	for _, pair := range r.opts.Pairs {
		pair := pair
		ch := make(chan float64, 1)
		inbox[pair] = ch

		g.Go(func() error {
			for price := range ch {
				if gctx.Err() != nil {
					return nil
				}
				if err := r.cycle(gctx, pair, price); err != nil {
					return err
				}
			}
			return nil
		})
	}

	updates := r.deps.Ticker.Subscribe(gctx, r.opts.Pairs)
	g.Go(func() error {
		defer func() {
			for _, ch := range inbox {
				close(ch)
			}
		}()
		for {
			select {
			case <-gctx.Done():
				return nil
			case u, ok := <-updates:
				if !ok {
					return nil
				}
				ch, known := inbox[u.Pair]
				if !known || u.Price <= 0 {
					continue
				}
				select {
				case ch <- u.Price:
				default:
					// only this goroutine sends, so after the drain there is room
					select {
					case <-ch:
						metrics.StreamDropped.WithLabelValues(u.Pair).Inc()
						r.log.Debug("stale price dropped", zap.String("pair", u.Pair))
					default:
					}
					ch <- u.Price
				}
			}
		}
	})

	return g.Wait()
}
