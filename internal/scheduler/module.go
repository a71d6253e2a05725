package scheduler

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"scalper/internal/decision"
	"scalper/internal/exchange/bitvavo"
	"scalper/internal/indicator"
	"scalper/internal/ledger"
	"scalper/internal/modules/config"
	"scalper/internal/modules/health/service"
	"scalper/internal/notify"
)

type Params struct {
	fx.In

	Cfg        *config.Config
	Engine     *decision.Engine
	Client     *bitvavo.Client
	Indicators *indicator.Engine
	Ledger     *ledger.Ledger
	Hub        *notify.Hub
	State      *service.State
	Tracer     opentracing.Tracer
	Shutdowner fx.Shutdowner
	Log        *zap.Logger
}

func NewFromConfig(p Params) *Runner {
	p.Client.OnConnectionChange(p.State.SetWSConnected)

	return New(Options{
		Profile:        p.Cfg.Profile,
		Mode:           p.Cfg.Scheduler,
		Pairs:          p.Cfg.Pairs,
		Interval:       p.Cfg.CheckEvery(),
		WarmupLimit:    p.Cfg.WarmupLimit(),
		WarmupInterval: p.Cfg.RSIInterval,
		Summary:        p.Cfg.Summary(),
	}, Deps{
		Engine:    p.Engine,
		Feed:      p.Client,
		Ticker:    p.Client,
		History:   p.Client,
		Seeder:    p.Indicators,
		Portfolio: p.Ledger,
		Notifier:  p.Hub,
		Health:    p.State,
		Tracer:    p.Tracer,
		Halt: func(error) {
			_ = p.Shutdowner.Shutdown(fx.ExitCode(1))
		},
	}, p.Log.Named("scheduler"))
}

// minStopTimeout is fx's own default.
const minStopTimeout = 15 * time.Second

// StopTimeout is how long shutdown may wait for an in-flight cycle. The worst
// cycle sells every open position of a pair through all stoploss retries and
// then places one more order; the rest covers the other stop hooks.
func StopTimeout(cfg *config.Config) time.Duration {
	attempt := cfg.StopLossWait() + bitvavo.HTTPTimeout
	exits := time.Duration(cfg.MaxTradesPerPair*cfg.StopLossMaxRetries) * attempt
	d := exits + 2*bitvavo.HTTPTimeout + minStopTimeout
	if d < minStopTimeout {
		return minStopTimeout
	}
	return d
}

func Module() fx.Option {
	return fx.Module("scheduler",
		fx.Provide(
			NewFromConfig,
		),
		fx.Invoke(func(lc fx.Lifecycle, ctx context.Context, r *Runner) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					r.Start(ctx)
					return nil
				},
				OnStop: r.Stop,
			})
		}),
	)
}
