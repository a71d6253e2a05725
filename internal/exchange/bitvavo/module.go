package bitvavo

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"scalper/internal/modules/config"
)

func Module() fx.Option {
	return fx.Module("bitvavo",
		fx.Provide(
			NewFromConfig,
		),
	)
}

func NewFromConfig(cfg *config.Config, log *zap.Logger) (*Client, error) {
	return NewClient(Config{
		RESTURL:   cfg.Env.BitvavoRESTURL,
		WSURL:     cfg.Env.BitvavoWSURL,
		APIKey:    cfg.Env.BitvavoAPIKey,
		APISecret: cfg.Env.BitvavoAPISecret,
	}, log.Named("bitvavo"))
}
