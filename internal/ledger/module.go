package ledger

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"scalper/internal/modules/config"
	"scalper/pkg/db"
)

const persistenceRetryWait = 200 * time.Millisecond

func Module() fx.Option {
	return fx.Module("ledger",
		fx.Provide(
			func(cfg *config.Config) Store {
				return NewFileStore(cfg.Env.DataDir)
			},
			NewJournal,
			NewFromConfig,
		),
	)
}

// NewJournal returns the PostgreSQL mirror, or nil when no database is configured.
func NewJournal(ctx context.Context, cfg *config.Config, tx *db.PgTxManager, log *zap.Logger) (TradeJournal, error) {
	if tx == nil {
		return nil, nil
	}
	j := NewPgJournal(tx, cfg.Profile)
	if err := j.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	log.Info("trade journal mirrored to postgres")
	return j, nil
}

func NewFromConfig(cfg *config.Config, store Store, journal TradeJournal, log *zap.Logger) *Ledger {
	return New(store, journal, log.Named("ledger"), Config{
		MaxPerPair: cfg.MaxTradesPerPair,
		MaxRetries: cfg.PersistenceMaxRetries,
		RetryWait:  persistenceRetryWait,
	})
}
