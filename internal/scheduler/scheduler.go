// Package scheduler drives the decision engine: one cycle per pair, either on
// a fixed polling interval or on every pushed ticker price.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"

	"scalper/internal/decision"
	"scalper/internal/ledger"
	"scalper/internal/metrics"
	"scalper/internal/models"
	"scalper/pkg/tracing"
)

const (
	ModePolling = "polling"
	ModeStream  = "stream"

	outcomeOK          = "ok"
	outcomeTraded      = "traded"
	outcomeFeedError   = "feed_error"
	outcomePersistence = "persistence_error"
	outcomeError       = "error"
)

type Cycler interface {
	Tick(ctx context.Context, pair string, price float64) (*decision.Report, error)
}

type PriceFeed interface {
	FetchCurrentPrice(ctx context.Context, pair string) (float64, error)
}

type Ticker interface {
	Subscribe(ctx context.Context, pairs []string) <-chan models.PriceUpdate
}

type History interface {
	FetchHistoricalPrices(ctx context.Context, pair string, limit int, interval string) ([]float64, error)
}

type Seeder interface {
	Seed(pair string, prices []float64)
}

type Portfolio interface {
	All(ctx context.Context) (models.Portfolio, error)
}

// Health receives the scheduler's view of the loop.
type Health interface {
	SetReady(v bool)
	RecordCycle(pair, outcome string, at time.Time)
	Halt(reason string)
}

type Options struct {
	Profile  string
	Mode     string
	Pairs    []string
	Interval time.Duration

	WarmupLimit    int
	WarmupInterval string

	// Summary lines logged once at startup.
	Summary []string
}

type Deps struct {
	Engine    Cycler
	Feed      PriceFeed
	Ticker    Ticker
	History   History
	Seeder    Seeder
	Portfolio Portfolio
	Notifier  decision.Notifier
	Health    Health
	Tracer    opentracing.Tracer

	// Halt is called once when a cycle could not persist its result.
	Halt func(err error)
}

type Runner struct {
	opts Options
	deps Deps
	log  *zap.Logger

	haltOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

func New(opts Options, deps Deps, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Mode == "" {
		opts.Mode = ModePolling
	}
	return &Runner{opts: opts, deps: deps, log: log}
}

// Start runs warm-up and the cycle loop in the background.
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		r.announce(ctx)
		if err := r.Warmup(ctx); err != nil {
			r.log.Warn("warmup interrupted", zap.Error(err))
		}
		if ctx.Err() != nil {
			return
		}
		r.setReady(true)
		if err := r.Run(ctx); err != nil {
			r.log.Error("scheduler stopped", zap.Error(err))
		}
	}()
}

// Stop stops new cycles and waits for the one in flight.
func (r *Runner) Stop(ctx context.Context) error {
	if r.cancel == nil {
		return nil
	}
	r.cancel()
	r.setReady(false)
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// Run blocks until ctx is done or a cycle fails to persist its result.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("scheduler running",
		zap.String("mode", r.opts.Mode),
		zap.Strings("pairs", r.opts.Pairs),
		zap.Duration("interval", r.opts.Interval),
	)
	if r.opts.Mode == ModeStream {
		return r.stream(ctx)
	}
	return r.poll(ctx)
}

// cycle runs one decision cycle. Cancellation of ctx does not reach the
// engine: a started cycle always completes.
func (r *Runner) cycle(ctx context.Context, pair string, price float64) error {
	start := time.Now()
	span, cctx := tracing.StartSpan(context.WithoutCancel(ctx), r.deps.Tracer, "decision.cycle", opentracing.Tags{
		"pair":  pair,
		"price": price,
	})

	rep, err := r.deps.Engine.Tick(cctx, pair, price)
	tracing.Finish(span, err)

	outcome := outcomeOK
	switch {
	case err != nil:
		outcome = outcomeError
		var perr *ledger.PersistenceError
		if errors.As(err, &perr) {
			outcome = outcomePersistence
		}
	case rep != nil && len(rep.Actions) > 0:
		outcome = outcomeTraded
	}
	r.record(pair, outcome, time.Since(start))

	if err != nil {
		r.halt(ctx, err)
		return err
	}
	return nil
}

func (r *Runner) record(pair, outcome string, took time.Duration) {
	metrics.Cycles.WithLabelValues(pair, outcome).Inc()
	metrics.CycleDuration.WithLabelValues(pair).Observe(took.Seconds())
	if r.deps.Health != nil {
		r.deps.Health.RecordCycle(pair, outcome, time.Now())
	}
}

func (r *Runner) halt(ctx context.Context, err error) {
	r.haltOnce.Do(func() {
		r.log.Error("halting: state could not be persisted", zap.Error(err))
		if r.deps.Health != nil {
			r.deps.Health.Halt(err.Error())
		}
		r.notify(ctx, "halted, manual check of portfolio.json and trades.json required: "+err.Error())
		if r.deps.Halt != nil {
			r.deps.Halt(err)
		}
	})
}

func (r *Runner) setReady(v bool) {
	if r.deps.Health != nil {
		r.deps.Health.SetReady(v)
	}
}

func (r *Runner) notify(ctx context.Context, msg string) {
	if r.deps.Notifier == nil {
		return
	}
	r.deps.Notifier.Notify(ctx, fmt.Sprintf("[%s] %s", r.opts.Profile, msg))
}
