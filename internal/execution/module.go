package execution

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"scalper/internal/exchange/bitvavo"
	"scalper/internal/modules/config"
)

func Module() fx.Option {
	return fx.Module("execution",
		fx.Provide(
			func(cfg *config.Config, venue *bitvavo.Client, log *zap.Logger) *Gateway {
				if cfg.DemoMode {
					log.Warn("demo mode: orders are simulated")
				}
				return NewGateway(venue, cfg.DemoMode, log.Named("gateway"))
			},
		),
	)
}
