package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scalper/internal/models"
)

func newTestLedger(t *testing.T, maxPerPair int) (*Ledger, *FileStore) {
	t.Helper()
	store := NewFileStore(t.TempDir())
	return New(store, nil, nil, Config{MaxPerPair: maxPerPair, MaxRetries: 3}), store
}

func position(pair string, price, qty float64) models.Position {
	return models.Position{Pair: pair, Price: price, Quantity: qty}
}

func TestOpenAndSnapshot(t *testing.T) {
	l, store := newTestLedger(t, 1)
	ctx := context.Background()

	got, err := l.Open(ctx, position("BTC-EUR", 100, 0.5), models.Float(0.12))
	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
	assert.False(t, got.OpenedAt.IsZero())

	snap, err := l.Snapshot(ctx, "BTC-EUR")
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, got.ID, snap[0].ID)
	assert.Equal(t, "BTC-EUR", snap[0].Pair)
	assert.Equal(t, 100.0, snap[0].Price)

	trades, err := store.LoadTrades()
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, models.SideBuy, trades[0].Type)
	assert.Nil(t, trades[0].Profit)
	assert.Equal(t, 0.12, *trades[0].Fee)
}

func TestOpenRejectsEmptyQuantity(t *testing.T) {
	l, _ := newTestLedger(t, 1)
	_, err := l.Open(context.Background(), position("BTC-EUR", 100, 0), nil)
	assert.ErrorIs(t, err, ErrInvalidPosition)
}

func TestOpenConflictLeavesFilesUntouched(t *testing.T) {
	l, store := newTestLedger(t, 1)
	ctx := context.Background()

	_, err := l.Open(ctx, position("BTC-EUR", 100, 1), nil)
	require.NoError(t, err)

	portfolioBefore, err := os.ReadFile(store.PortfolioPath())
	require.NoError(t, err)
	tradesBefore, err := os.ReadFile(store.TradesPath())
	require.NoError(t, err)

	_, err = l.Open(ctx, position("BTC-EUR", 101, 1), nil)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 1, conflict.Open)
	assert.Equal(t, 1, conflict.Max)

	portfolioAfter, err := os.ReadFile(store.PortfolioPath())
	require.NoError(t, err)
	tradesAfter, err := os.ReadFile(store.TradesPath())
	require.NoError(t, err)

	assert.Equal(t, portfolioBefore, portfolioAfter)
	assert.Equal(t, tradesBefore, tradesAfter)
}

func TestCloseRemovesExactlyOneAndAppendsOneTrade(t *testing.T) {
	l, store := newTestLedger(t, 3)
	ctx := context.Background()

	var ids []string
	for _, price := range []float64{100, 101, 102} {
		p, err := l.Open(ctx, position("ETH-EUR", price, 1), nil)
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}
	tradesBefore, err := store.LoadTrades()
	require.NoError(t, err)

	closed, err := l.Close(ctx, "ETH-EUR", ids[1], models.Trade{
		Price:    110,
		Quantity: 1,
		Profit:   models.Float(9),
		Fee:      models.Float(0.27),
	})
	require.NoError(t, err)
	assert.Equal(t, 101.0, closed.Price)

	snap, err := l.Snapshot(ctx, "ETH-EUR")
	require.NoError(t, err)
	require.Len(t, snap, 2)
	assert.Equal(t, ids[0], snap[0].ID)
	assert.Equal(t, ids[2], snap[1].ID)

	tradesAfter, err := store.LoadTrades()
	require.NoError(t, err)
	require.Len(t, tradesAfter, len(tradesBefore)+1)
	last := tradesAfter[len(tradesAfter)-1]
	assert.Equal(t, models.SideSell, last.Type)
	assert.Equal(t, "ETH-EUR", last.Pair)
	assert.Equal(t, 9.0, *last.Profit)
}

func TestCloseLastPositionDropsPair(t *testing.T) {
	l, store := newTestLedger(t, 1)
	ctx := context.Background()

	p, err := l.Open(ctx, position("BTC-EUR", 100, 1), nil)
	require.NoError(t, err)
	_, err = l.Close(ctx, "BTC-EUR", p.ID, models.Trade{Price: 105, Quantity: 1})
	require.NoError(t, err)

	b, err := os.ReadFile(store.PortfolioPath())
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(b))
}

func TestCloseNotFound(t *testing.T) {
	l, _ := newTestLedger(t, 1)

	_, err := l.Close(context.Background(), "BTC-EUR", "missing", models.Trade{Price: 1, Quantity: 1})
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.ID)
}

func TestCountInvariantUnderConcurrentOpens(t *testing.T) {
	const (
		maxPerPair = 2
		callers    = 20
	)
	l, _ := newTestLedger(t, maxPerPair)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		opened    int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.Open(ctx, position("BTC-EUR", 100+float64(i), 1), nil)

			mu.Lock()
			defer mu.Unlock()
			var conflict *ConflictError
			switch {
			case err == nil:
				opened++
			case errors.As(err, &conflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, maxPerPair, opened)
	assert.Equal(t, callers-maxPerPair, conflicts)

	snap, err := l.Snapshot(ctx, "BTC-EUR")
	require.NoError(t, err)
	assert.Len(t, snap, maxPerPair)
}

func TestConcurrentPairsDoNotLoseUpdates(t *testing.T) {
	l, store := newTestLedger(t, 1)
	ctx := context.Background()
	pairs := []string{"BTC-EUR", "ETH-EUR", "SOL-EUR", "XRP-EUR", "ADA-EUR", "DOT-EUR"}

	var wg sync.WaitGroup
	for _, pair := range pairs {
		wg.Add(1)
		go func(pair string) {
			defer wg.Done()
			_, err := l.Open(ctx, position(pair, 10, 1), nil)
			assert.NoError(t, err)
		}(pair)
	}
	wg.Wait()

	all, err := l.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(pairs))

	trades, err := store.LoadTrades()
	require.NoError(t, err)
	assert.Len(t, trades, len(pairs))
}

func TestLegacyPortfolioIsReadable(t *testing.T) {
	l, store := newTestLedger(t, 1)
	ctx := context.Background()

	legacy := `{"BTC-EUR": {"price": 100.0, "quantity": 0.25, "timestamp": "2025-01-02T10:11:12.123456"}}`
	require.NoError(t, os.MkdirAll(filepath.Dir(store.PortfolioPath()), 0o755))
	require.NoError(t, os.WriteFile(store.PortfolioPath(), []byte(legacy), 0o644))

	snap, err := l.Snapshot(ctx, "BTC-EUR")
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, 0.25, snap[0].Quantity)
	assert.Equal(t, 2025, snap[0].OpenedAt.Year())

	// the recovered position still counts against the limit
	_, err = l.Open(ctx, position("BTC-EUR", 90, 1), nil)
	var conflict *ConflictError
	assert.ErrorAs(t, err, &conflict)

	_, err = l.Close(ctx, "BTC-EUR", snap[0].ID, models.Trade{Price: 120, Quantity: 0.25})
	require.NoError(t, err)
}

type flakyStore struct {
	*FileStore

	saveFailures int
	staleReads   int

	saves int
}

func (s *flakyStore) SavePortfolio(p models.Portfolio) error {
	s.saves++
	if s.saveFailures > 0 {
		s.saveFailures--
		return errors.New("disk full")
	}
	return s.FileStore.SavePortfolio(p)
}

func (s *flakyStore) LoadPortfolio() (models.Portfolio, error) {
	// only lie right after a save
	if s.saves > 0 && s.staleReads > 0 {
		s.staleReads--
		return models.Portfolio{}, nil
	}
	return s.FileStore.LoadPortfolio()
}

func TestPersistenceErrorAfterBoundedRetries(t *testing.T) {
	store := &flakyStore{FileStore: NewFileStore(t.TempDir()), saveFailures: 100}
	l := New(store, nil, nil, Config{MaxPerPair: 1, MaxRetries: 3, RetryWait: time.Millisecond})

	_, err := l.Open(context.Background(), position("BTC-EUR", 100, 1), nil)

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "write portfolio", perr.Op)
	assert.Equal(t, 3, store.saves)

	trades, err := store.LoadTrades()
	require.NoError(t, err)
	assert.Empty(t, trades, "no trade is journaled for a position that was not stored")
}

func TestVerifyMismatchIsRetried(t *testing.T) {
	store := &flakyStore{FileStore: NewFileStore(t.TempDir()), staleReads: 1}
	l := New(store, nil, nil, Config{MaxPerPair: 1, MaxRetries: 3, RetryWait: time.Millisecond})

	_, err := l.Open(context.Background(), position("BTC-EUR", 100, 1), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, store.saves)

	snap, err := l.Snapshot(context.Background(), "BTC-EUR")
	require.NoError(t, err)
	assert.Len(t, snap, 1)
}

type recordingJournal struct {
	mu     sync.Mutex
	trades []models.Trade
	err    error
}

func (j *recordingJournal) Record(_ context.Context, t models.Trade) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trades = append(j.trades, t)
	return j.err
}

func TestJournalFailureIsNotFatal(t *testing.T) {
	journal := &recordingJournal{err: errors.New("connection refused")}
	l := New(NewFileStore(t.TempDir()), journal, nil, Config{MaxPerPair: 1, MaxRetries: 1})
	ctx := context.Background()

	p, err := l.Open(ctx, position("BTC-EUR", 100, 1), nil)
	require.NoError(t, err)
	_, err = l.Close(ctx, "BTC-EUR", p.ID, models.Trade{Price: 101, Quantity: 1})
	require.NoError(t, err)

	require.Len(t, journal.trades, 2)
	assert.Equal(t, models.SideBuy, journal.trades[0].Type)
	assert.Equal(t, models.SideSell, journal.trades[1].Type)
}

type journalFailStore struct {
	*FileStore

	failAppends bool
	savesLeft   int // -1 means unlimited
	loadErrs    int
}

func (s *journalFailStore) AppendTrade(t models.Trade) error {
	if s.failAppends {
		return errors.New("disk full")
	}
	return s.FileStore.AppendTrade(t)
}

func (s *journalFailStore) SavePortfolio(p models.Portfolio) error {
	if s.savesLeft == 0 {
		return errors.New("read-only file system")
	}
	if s.savesLeft > 0 {
		s.savesLeft--
	}
	return s.FileStore.SavePortfolio(p)
}

func (s *journalFailStore) LoadPortfolio() (models.Portfolio, error) {
	if s.loadErrs > 0 {
		s.loadErrs--
		return nil, errors.New("resource temporarily unavailable")
	}
	return s.FileStore.LoadPortfolio()
}

func TestOpenRollsBackWhenTradeAppendFails(t *testing.T) {
	store := &journalFailStore{FileStore: NewFileStore(t.TempDir()), failAppends: true, savesLeft: -1}
	l := New(store, nil, nil, Config{MaxPerPair: 1, MaxRetries: 3, RetryWait: time.Millisecond})
	ctx := context.Background()

	_, err := l.Open(ctx, position("BTC-EUR", 100, 1), nil)

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "append trade", perr.Op)
	assert.False(t, perr.Applied)

	snap, err := l.Snapshot(ctx, "BTC-EUR")
	require.NoError(t, err)
	assert.Empty(t, snap)
	trades, err := store.LoadTrades()
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestCloseRollsBackWhenTradeAppendFails(t *testing.T) {
	store := &journalFailStore{FileStore: NewFileStore(t.TempDir()), savesLeft: -1}
	l := New(store, nil, nil, Config{MaxPerPair: 1, MaxRetries: 2, RetryWait: time.Millisecond})
	ctx := context.Background()

	p, err := l.Open(ctx, position("BTC-EUR", 100, 1), nil)
	require.NoError(t, err)

	store.failAppends = true
	_, err = l.Close(ctx, "BTC-EUR", p.ID, models.Trade{Price: 110, Quantity: 1})

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.False(t, perr.Applied)

	snap, err := l.Snapshot(ctx, "BTC-EUR")
	require.NoError(t, err)
	require.Len(t, snap, 1, "the position is still open")
	assert.Equal(t, p.ID, snap[0].ID)

	trades, err := store.LoadTrades()
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, models.SideBuy, trades[0].Type)
}

func TestFailedRollbackIsMarkedApplied(t *testing.T) {
	// one save for the open itself, none left for the restore
	store := &journalFailStore{FileStore: NewFileStore(t.TempDir()), failAppends: true, savesLeft: 1}
	l := New(store, nil, nil, Config{MaxPerPair: 1, MaxRetries: 2, RetryWait: time.Millisecond})

	_, err := l.Open(context.Background(), position("BTC-EUR", 100, 1), nil)

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Applied)
	assert.Contains(t, perr.Error(), "portfolio already updated")
}

func TestTransientReadFailureIsRetried(t *testing.T) {
	store := &journalFailStore{FileStore: NewFileStore(t.TempDir()), savesLeft: -1, loadErrs: 2}
	l := New(store, nil, nil, Config{MaxPerPair: 1, MaxRetries: 3, RetryWait: time.Millisecond})

	snap, err := l.Snapshot(context.Background(), "BTC-EUR")
	require.NoError(t, err)
	assert.Empty(t, snap)

	store.loadErrs = 3
	_, err = l.All(context.Background())
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "load portfolio", perr.Op)
}
