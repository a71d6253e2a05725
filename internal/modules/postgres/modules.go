package postgres

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"scalper/internal/modules/config"
	"scalper/pkg/db"
)

// Module provides *db.PgTxManager. It is nil when DATABASE_DSN is empty.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(NewTxManager),
	)
}

func NewTxManager(ctx context.Context, lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*db.PgTxManager, error) {
	if cfg.Env.DatabaseDSN == "" {
		log.Info("DATABASE_DSN not set, trades are journaled to file only")
		return nil, nil
	}

	poolMaster, err := db.NewPool(ctx, db.PoolConfig{
		DSN:      cfg.Env.DatabaseDSN,
		MaxConns: 4,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create poolMaster: %w", err)
	}

	if err = poolMaster.Ping(ctx); err != nil {
		poolMaster.Close()
		return nil, err
	}

	m := db.NewPgTxManager(poolMaster)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			m.Close()
			return nil
		},
	})
	return m, nil
}
