package ledger

import (
	"context"

	"scalper/internal/models"
)

// Store is the durable representation owned by the Ledger. Implementations
// need not be safe for concurrent use; the Ledger serializes every call.
type Store interface {
	LoadPortfolio() (models.Portfolio, error)
	SavePortfolio(models.Portfolio) error
	LoadTrades() ([]models.Trade, error)
	AppendTrade(models.Trade) error
}

// TradeJournal mirrors trade records somewhere outside the Store.
// Failures are logged and never fail the ledger operation.
type TradeJournal interface {
	Record(ctx context.Context, trade models.Trade) error
}
