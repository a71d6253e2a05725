package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scalper/internal/models"
	"scalper/pkg/retry"
)

var (
	ErrInvalidPosition = errors.New("ledger: position quantity and price must be positive")

	errVerify = errors.New("verifying re-read does not match the written state")
)

const journalTimeout = 5 * time.Second

type Config struct {
	// MaxPerPair is MAX_TRADES_PER_PAIR; 1 is single-trade mode.
	MaxPerPair int
	// MaxRetries bounds write attempts before a PersistenceError surfaces.
	MaxRetries int
	RetryWait  time.Duration
}

// Ledger is the only writer of the durable portfolio. Every operation runs
// under one mutex and reads the store afresh, so decisions never act on a
// stale copy. Each write is followed by a verifying re-read.
type Ledger struct {
	store   Store
	journal TradeJournal
	log     *zap.Logger
	cfg     Config

	mu  sync.Mutex
	now func() time.Time
}

// New returns a Ledger over store. journal may be nil.
func New(store Store, journal TradeJournal, log *zap.Logger, cfg Config) *Ledger {
	if cfg.MaxPerPair < 1 {
		cfg.MaxPerPair = 1
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{
		store:   store,
		journal: journal,
		log:     log,
		cfg:     cfg,
		now:     time.Now,
	}
}

func (l *Ledger) MaxPerPair() int { return l.cfg.MaxPerPair }

// Open records pos together with its buy trade. An empty ID gets a fresh
// UUID and a zero OpenedAt gets the current time. The stored position is returned.
func (l *Ledger) Open(ctx context.Context, pos models.Position, fee *float64) (models.Position, error) {
	if pos.Quantity <= 0 || pos.Price <= 0 {
		return models.Position{}, ErrInvalidPosition
	}
	if pos.ID == "" {
		pos.ID = uuid.NewString()
	}
	if pos.OpenedAt.IsZero() {
		pos.OpenedAt = models.NewISOTime(l.now())
	}

	trade := models.Trade{
		Pair:      pos.Pair,
		Type:      models.SideBuy,
		Price:     pos.Price,
		Quantity:  pos.Quantity,
		Fee:       fee,
		Timestamp: pos.OpenedAt,
	}

	if err := l.open(ctx, pos, trade); err != nil {
		return models.Position{}, err
	}

	l.log.Info("position opened",
		zap.String("pair", pos.Pair),
		zap.String("id", pos.ID),
		zap.Float64("price", pos.Price),
		zap.Float64("quantity", pos.Quantity),
	)
	l.mirror(ctx, trade)
	return pos, nil
}

func (l *Ledger) open(ctx context.Context, pos models.Position, trade models.Trade) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, err := l.load(ctx)
	if err != nil {
		return err
	}
	if n := current.Count(pos.Pair); n >= l.cfg.MaxPerPair {
		return &ConflictError{Pair: pos.Pair, Open: n, Max: l.cfg.MaxPerPair}
	}

	next := current.Clone()
	next[pos.Pair] = append(next[pos.Pair], pos)

	if err := l.commitPortfolio(ctx, next); err != nil {
		return err
	}
	if err := l.commitTrade(ctx, trade); err != nil {
		return l.rollback(ctx, current, err)
	}
	return nil
}

// Close removes the position id of pair and appends exactly one sell trade.
// Pair, Type and a missing Timestamp of exit are filled in by the ledger.
func (l *Ledger) Close(ctx context.Context, pair, id string, exit models.Trade) (models.Position, error) {
	exit.Pair = pair
	exit.Type = models.SideSell
	if exit.Timestamp.IsZero() {
		exit.Timestamp = models.NewISOTime(l.now())
	}

	pos, err := l.close(ctx, pair, id, exit)
	if err != nil {
		return models.Position{}, err
	}

	l.log.Info("position closed",
		zap.String("pair", pair),
		zap.String("id", id),
		zap.Float64("entry", pos.Price),
		zap.Float64("exit", exit.Price),
		zap.Float64("quantity", exit.Quantity),
	)
	l.mirror(ctx, exit)
	return pos, nil
}

func (l *Ledger) close(ctx context.Context, pair, id string, exit models.Trade) (models.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, err := l.load(ctx)
	if err != nil {
		return models.Position{}, err
	}

	idx := -1
	for i, p := range current[pair] {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.Position{}, &NotFoundError{Pair: pair, ID: id}
	}

	next := current.Clone()
	removed := next[pair][idx]
	next[pair] = append(next[pair][:idx], next[pair][idx+1:]...)
	if len(next[pair]) == 0 {
		delete(next, pair)
	}

	if err := l.commitPortfolio(ctx, next); err != nil {
		return models.Position{}, err
	}
	if err := l.commitTrade(ctx, exit); err != nil {
		return models.Position{}, l.rollback(ctx, current, err)
	}
	return removed, nil
}

// Snapshot re-reads the open positions of pair from the store.
func (l *Ledger) Snapshot(ctx context.Context, pair string) (models.Positions, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make(models.Positions, len(current[pair]))
	copy(out, current[pair])
	return out, nil
}

// All re-reads the whole portfolio.
func (l *Ledger) All(ctx context.Context) (models.Portfolio, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	return current.Clone(), nil
}

// load reads the portfolio, retrying transient read failures.
func (l *Ledger) load(ctx context.Context) (models.Portfolio, error) {
	var current models.Portfolio
	err := retry.Do(ctx, func(attempt int) error {
		var err error
		current, err = l.store.LoadPortfolio()
		return err
	}, l.retryConfig("load portfolio"))
	if err != nil {
		return nil, &PersistenceError{Op: "load portfolio", Err: err}
	}
	return current, nil
}

// rollback restores prev after the trade journal refused the matching
// record, so portfolio.json and trades.json keep agreeing. When even the
// restore fails the returned error is marked Applied.
func (l *Ledger) rollback(ctx context.Context, prev models.Portfolio, cause error) error {
	var perr *PersistenceError
	if !errors.As(cause, &perr) {
		perr = &PersistenceError{Op: "append trade", Err: cause}
	}
	if err := l.commitPortfolio(ctx, prev); err != nil {
		l.log.Error("portfolio rollback failed, trades.json is missing a record",
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		perr.Applied = true
		return perr
	}
	l.log.Warn("portfolio change rolled back", zap.String("op", perr.Op), zap.Error(perr.Err))
	return perr
}

// commitPortfolio writes next and re-reads it until both agree or the
// attempts run out. A filled order is being recorded, so cancellation of
// ctx does not stop the retries.
func (l *Ledger) commitPortfolio(ctx context.Context, next models.Portfolio) error {
	err := retry.Do(context.WithoutCancel(ctx), func(attempt int) error {
		if err := l.store.SavePortfolio(next); err != nil {
			return err
		}
		got, err := l.store.LoadPortfolio()
		if err != nil {
			return err
		}
		if !samePortfolio(got, next) {
			return errVerify
		}
		return nil
	}, l.retryConfig("write portfolio"))
	if err != nil {
		return &PersistenceError{Op: "write portfolio", Err: err}
	}
	return nil
}

func (l *Ledger) commitTrade(ctx context.Context, t models.Trade) error {
	before, err := l.store.LoadTrades()
	if err != nil {
		return &PersistenceError{Op: "load trades", Err: err}
	}
	n := len(before)

	err = retry.Do(context.WithoutCancel(ctx), func(attempt int) error {
		trades, err := l.store.LoadTrades()
		if err != nil {
			return err
		}
		// an earlier attempt may have landed before its verify failed
		if !(len(trades) == n+1 && sameTrade(trades[n], t)) {
			if len(trades) != n {
				return fmt.Errorf("trades journal has %d records, expected %d", len(trades), n)
			}
			if err := l.store.AppendTrade(t); err != nil {
				return err
			}
		}

		got, err := l.store.LoadTrades()
		if err != nil {
			return err
		}
		if len(got) != n+1 || !sameTrade(got[n], t) {
			return errVerify
		}
		return nil
	}, l.retryConfig("append trade"))
	if err != nil {
		return &PersistenceError{Op: "append trade", Err: err}
	}
	return nil
}

func (l *Ledger) retryConfig(op string) retry.Config {
	cfg := retry.Fixed(l.cfg.MaxRetries, l.cfg.RetryWait)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		l.log.Warn("ledger write failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}
	return cfg
}

func (l *Ledger) mirror(ctx context.Context, t models.Trade) {
	if l.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()

	if err := l.journal.Record(ctx, t); err != nil {
		l.log.Warn("trade journal mirror failed", zap.String("pair", t.Pair), zap.Error(err))
	}
}

func samePortfolio(a, b models.Portfolio) bool {
	if nonEmpty(a) != nonEmpty(b) {
		return false
	}
	for pair, ps := range b {
		got := a[pair]
		if len(got) != len(ps) {
			return false
		}
		for i := range ps {
			if got[i].ID != ps[i].ID ||
				got[i].Price != ps[i].Price ||
				got[i].Quantity != ps[i].Quantity ||
				!got[i].OpenedAt.Equal(ps[i].OpenedAt.Time) {
				return false
			}
		}
	}
	return true
}

func nonEmpty(p models.Portfolio) int {
	n := 0
	for _, ps := range p {
		if len(ps) > 0 {
			n++
		}
	}
	return n
}

func sameTrade(a, b models.Trade) bool {
	return a.Pair == b.Pair &&
		a.Type == b.Type &&
		a.Price == b.Price &&
		a.Quantity == b.Quantity &&
		sameFloat(a.Profit, b.Profit) &&
		sameFloat(a.Fee, b.Fee) &&
		a.Timestamp.Equal(b.Timestamp.Time)
}

func sameFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
