package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"scalper/internal/models"
	"scalper/pkg/db"
)

const (
	createTradesTable = `CREATE TABLE IF NOT EXISTS trades (
	id          BIGSERIAL PRIMARY KEY,
	profile     TEXT             NOT NULL,
	pair        TEXT             NOT NULL,
	side        TEXT             NOT NULL,
	price       DOUBLE PRECISION NOT NULL,
	quantity    DOUBLE PRECISION NOT NULL,
	profit      DOUBLE PRECISION,
	fee         DOUBLE PRECISION,
	executed_at TIMESTAMPTZ      NOT NULL
)`

	insertTrade = `INSERT INTO trades (profile, pair, side, price, quantity, profit, fee, executed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
)

// PgJournal mirrors trade records into PostgreSQL.
type PgJournal struct {
	tx      db.TxManager
	profile string
}

func NewPgJournal(tx db.TxManager, profile string) *PgJournal {
	return &PgJournal{tx: tx, profile: profile}
}

// EnsureSchema creates the trades table when missing.
func (j *PgJournal) EnsureSchema(ctx context.Context) error {
	return j.tx.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, createTradesTable)
		return err
	})
}

func (j *PgJournal) Record(ctx context.Context, t models.Trade) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("PgJournal.Record: %w", err)
		}
	}()

	return j.tx.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, insertTrade,
			j.profile,
			t.Pair,
			string(t.Type),
			t.Price,
			t.Quantity,
			t.Profit,
			t.Fee,
			t.Timestamp.Time,
		)
		return err
	})
}
