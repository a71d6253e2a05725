package decision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"scalper/internal/execution"
	"scalper/internal/indicator"
	"scalper/internal/ledger"
	"scalper/internal/metrics"
	"scalper/internal/models"
	"scalper/internal/notify"
)

type Ledger interface {
	Snapshot(ctx context.Context, pair string) (models.Positions, error)
	Open(ctx context.Context, pos models.Position, fee *float64) (models.Position, error)
	Close(ctx context.Context, pair, id string, exit models.Trade) (models.Position, error)
}

type Gateway interface {
	Submit(ctx context.Context, pair string, side models.Side, quantity float64) execution.Result
	SubmitWithRetry(ctx context.Context, pair string, side models.Side, quantity float64, maxRetries int, wait time.Duration) (execution.Result, error)
}

// Market supplies the data the engine fetches on demand.
type Market interface {
	FetchHistoricalCandles(ctx context.Context, pair string, limit int, interval string) ([]models.Candle, error)
	MarketConstraints(ctx context.Context, pair string) (models.Constraints, error)
}

type Indicators interface {
	Update(pair string, price float64)
	RSI(pair string) (float64, bool)
	EMA(pair string) (float64, bool)
}

// alertDestinations are the destination names understood by the notify hub.
var alertDestinations = []string{notify.Console, notify.Slack, notify.Telegram}

// partialFillTolerance is the relative shortfall below which a fill counts as complete.
const partialFillTolerance = 1e-6

// Notifier delivers operator messages. With no destinations the configured defaults are used.
type Notifier interface {
	Notify(ctx context.Context, msg string, dests ...string)
}

type Params struct {
	Profile string

	BuySignal  float64 // RSI_BUY_THRESHOLD
	SellSignal float64 // RSI_SELL_THRESHOLD

	ATRPeriod      int
	ATRMultiplier  float64
	CandleInterval string

	StopLossPct        float64
	StopLossMaxRetries int
	StopLossWait       time.Duration

	TotalBudget      float64
	RiskPct          float64
	PairBudgets      map[string]float64
	MaxTradesPerPair int

	FeePct       float64
	MinProfitPct float64

	Explain bool
}

// Engine runs one decision cycle per call to Tick. It keeps no position
// state of its own; every cycle starts from a fresh ledger snapshot.
type Engine struct {
	params Params

	indicators Indicators
	ledger     Ledger
	gateway    Gateway
	market     Market
	notifier   Notifier
	log        *zap.Logger
}

func NewEngine(p Params, ind Indicators, l Ledger, g Gateway, m Market, n Notifier, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if p.MaxTradesPerPair < 1 {
		p.MaxTradesPerPair = 1
	}
	return &Engine{
		params:     p,
		indicators: ind,
		ledger:     l,
		gateway:    g,
		market:     m,
		notifier:   n,
		log:        log,
	}
}

type ActionKind string

const (
	ActionStoploss   ActionKind = "stoploss"
	ActionProfitTake ActionKind = "profit_take"
	ActionEntry      ActionKind = "entry"
)

// Action is one order the cycle attempted.
type Action struct {
	Kind       ActionKind
	PositionID string
	Quantity   float64
	Status     execution.Status
	Err        error
}

// Report describes what one cycle saw and did.
type Report struct {
	Pair  string
	Price float64

	RSI, EMA, ATR       float64
	RSIOK, EMAOK, ATROK bool

	Open    int // positions at the start of the cycle
	Actions []Action
	Reason  string // why no entry or exit happened, when known
}

// Tick runs the fixed cycle for pair at price: indicator update, stoploss
// for every open position, then profit-take or entry. The returned error is
// non-nil only when the ledger could not persist state (a *ledger.PersistenceError).
func (e *Engine) Tick(ctx context.Context, pair string, price float64) (*Report, error) {
	e.indicators.Update(pair, price)

	rep := &Report{Pair: pair, Price: price}
	rep.RSI, rep.RSIOK = e.indicators.RSI(pair)
	rep.EMA, rep.EMAOK = e.indicators.EMA(pair)
	if rep.RSIOK {
		metrics.Indicator.WithLabelValues(pair, "rsi").Set(rep.RSI)
	}
	if rep.EMAOK {
		metrics.Indicator.WithLabelValues(pair, "ema").Set(rep.EMA)
	}

	positions, err := e.ledger.Snapshot(ctx, pair)
	if err != nil {
		return rep, err
	}
	rep.Open = len(positions)
	metrics.OpenPositions.WithLabelValues(pair).Set(float64(len(positions)))

	e.log.Debug("cycle",
		zap.String("pair", pair),
		zap.Float64("price", price),
		zap.String("indicators", formatIndicators(rep)),
		zap.Int("open", len(positions)),
	)

	atr := &lazyATR{engine: e, pair: pair}

	remaining, err := e.stoploss(ctx, rep, positions, atr)
	if err != nil {
		return rep, err
	}

	if !rep.RSIOK || !rep.EMAOK {
		e.explain(rep, "indicators warming up")
		return rep, nil
	}

	switch {
	case rep.RSI >= e.params.SellSignal && price < rep.EMA:
		return rep, e.profitTake(ctx, rep, remaining)
	case rep.RSI <= e.params.BuySignal && price > rep.EMA:
		return rep, e.entry(ctx, rep, atr)
	default:
		e.explain(rep, e.noSignalReason(rep))
		return rep, nil
	}
}

func (e *Engine) stoploss(ctx context.Context, rep *Report, positions models.Positions, atr *lazyATR) (models.Positions, error) {
	if len(positions) == 0 {
		return positions, nil
	}

	value, ok := atr.get(ctx, rep)
	remaining := make(models.Positions, 0, len(positions))

	for _, pos := range positions {
		stop := StopPrice(pos.Price, value, ok, e.params.ATRMultiplier, e.params.StopLossPct)
		if rep.Price > stop {
			remaining = append(remaining, pos)
			continue
		}

		e.log.Warn("stoploss triggered",
			zap.String("pair", pos.Pair),
			zap.String("id", pos.ID),
			zap.Float64("price", rep.Price),
			zap.Float64("stop", stop),
			zap.Bool("atr", ok),
		)
		e.notify(ctx, "⛔️ %s: stoploss triggered at %s (stop %s, entry %s)",
			pos.Pair, fmtPrice(rep.Price), fmtPrice(stop), fmtPrice(pos.Price))

		res, err := e.gateway.SubmitWithRetry(ctx, pos.Pair, models.SideSell, pos.Quantity,
			e.params.StopLossMaxRetries, e.params.StopLossWait)
		action := Action{Kind: ActionStoploss, PositionID: pos.ID, Quantity: pos.Quantity, Status: res.Status, Err: err}
		if err != nil {
			rep.Actions = append(rep.Actions, action)
			metrics.StoplossExhausted.WithLabelValues(pos.Pair).Inc()
			e.log.Error("stoploss exit failed, position stays open",
				zap.String("pair", pos.Pair),
				zap.String("id", pos.ID),
				zap.Error(err),
			)
			e.alert(ctx, "🚨 %s: UNRESOLVED RISK, stoploss sell of %.8f failed: %v", pos.Pair, pos.Quantity, err)
			continue
		}

		if err := e.commitExit(ctx, pos, res, rep.Price); err != nil {
			action.Err = err
			rep.Actions = append(rep.Actions, action)
			return remaining, err
		}
		rep.Actions = append(rep.Actions, action)
	}
	return remaining, nil
}

func (e *Engine) profitTake(ctx context.Context, rep *Report, positions models.Positions) error {
	if len(positions) == 0 {
		e.explain(rep, "sell signal without open positions")
		return nil
	}

	for _, pos := range positions {
		pct := ProfitPct(pos.Price, rep.Price, pos.Quantity, e.params.FeePct)
		if pct < e.params.MinProfitPct {
			e.explain(rep, fmt.Sprintf("profit %.2f%% below minimum %.2f%% for %s", pct, e.params.MinProfitPct, pos.ID))
			continue
		}

		e.notify(ctx, "🔴 %s: selling at %s, profit %.2f%%", pos.Pair, fmtPrice(rep.Price), pct)

		// single attempt; a failed exit is reported and retried by a later cycle
		res := e.gateway.Submit(ctx, pos.Pair, models.SideSell, pos.Quantity)
		action := Action{Kind: ActionProfitTake, PositionID: pos.ID, Quantity: pos.Quantity, Status: res.Status}
		if !res.OK() {
			rep.Actions = append(rep.Actions, action)
			e.notify(ctx, "❌ %s: sell failed: %s", pos.Pair, res.Reason)
			continue
		}

		if err := e.commitExit(ctx, pos, res, rep.Price); err != nil {
			action.Err = err
			rep.Actions = append(rep.Actions, action)
			return err
		}
		rep.Actions = append(rep.Actions, action)
	}
	return nil
}

func (e *Engine) entry(ctx context.Context, rep *Report, atr *lazyATR) error {
	pair := rep.Pair
	if rep.Open >= e.params.MaxTradesPerPair {
		e.explain(rep, fmt.Sprintf("max trades reached (%d/%d)", rep.Open, e.params.MaxTradesPerPair))
		return nil
	}

	value, ok := atr.get(ctx, rep)
	if !ok {
		e.log.Warn("ATR undefined, entry skipped", zap.String("pair", pair))
		e.notify(ctx, "❌ %s: cannot compute ATR, buy skipped", pair)
		rep.Reason = "ATR undefined"
		return nil
	}

	qty, raw, capped := Sizing{
		TotalBudget:   e.params.TotalBudget,
		RiskPct:       e.params.RiskPct,
		ATR:           value,
		ATRMultiplier: e.params.ATRMultiplier,
		PairBudget:    e.params.PairBudgets[pair],
		MaxTrades:     e.params.MaxTradesPerPair,
		Price:         rep.Price,
	}.Quantity()

	constraints, err := e.market.MarketConstraints(ctx, pair)
	if err != nil {
		e.log.Warn("market constraints unavailable, entry skipped", zap.String("pair", pair), zap.Error(err))
		rep.Reason = "market constraints unavailable"
		return nil
	}
	final, reason := RoundQuantity(qty, constraints)
	if reason != "" {
		e.log.Info("entry rejected", zap.String("pair", pair), zap.String("reason", reason))
		rep.Reason = reason
		return nil
	}

	e.log.Info("buy signal",
		zap.String("pair", pair),
		zap.Float64("price", rep.Price),
		zap.Float64("rsi", rep.RSI),
		zap.Float64("ema", rep.EMA),
		zap.Float64("atr", value),
		zap.Float64("raw_qty", raw),
		zap.Float64("max_qty", capped),
		zap.Float64("quantity", final),
	)
	e.notify(ctx, "🟢 %s: buying %.8f at %s (RSI %.2f, risk/unit %.4f)",
		pair, final, fmtPrice(rep.Price), rep.RSI, value*e.params.ATRMultiplier)

	res := e.gateway.Submit(ctx, pair, models.SideBuy, final)
	action := Action{Kind: ActionEntry, Quantity: final, Status: res.Status}
	if !res.OK() {
		rep.Actions = append(rep.Actions, action)
		e.notify(ctx, "❌ %s: buy failed: %s", pair, res.Reason)
		return nil
	}

	price, fee := e.fillPrice(res, rep.Price)
	pos, err := e.ledger.Open(ctx, models.Position{
		Pair:     pair,
		Price:    price,
		Quantity: res.Quantity,
	}, &fee)
	if err != nil {
		action.Err = err
		rep.Actions = append(rep.Actions, action)
		return e.unrecorded(ctx, pair, models.SideBuy, res, price, err)
	}
	action.PositionID = pos.ID
	rep.Actions = append(rep.Actions, action)
	return nil
}

// commitExit records a filled or demo exit of pos in the ledger.
func (e *Engine) commitExit(ctx context.Context, pos models.Position, res execution.Result, cyclePrice float64) error {
	price, fee := e.fillPrice(res, cyclePrice)
	if rest := pos.Quantity - res.Quantity; rest > pos.Quantity*partialFillTolerance {
		e.log.Warn("partial exit fill, remainder is no longer tracked",
			zap.String("pair", pos.Pair),
			zap.String("id", pos.ID),
			zap.Float64("position_qty", pos.Quantity),
			zap.Float64("filled_qty", res.Quantity),
			zap.String("order_id", res.OrderID),
		)
		e.alert(ctx, "⚠️ %s: sell order %s filled %.8f of %.8f, the remaining %.8f is held on the exchange but not tracked",
			pos.Pair, res.OrderID, res.Quantity, pos.Quantity, rest)
	}
	profit := Profit(pos.Price, price, res.Quantity, e.params.FeePct)

	_, err := e.ledger.Close(ctx, pos.Pair, pos.ID, models.Trade{
		Price:    price,
		Quantity: res.Quantity,
		Profit:   &profit,
		Fee:      &fee,
	})
	if err != nil {
		return e.unrecorded(ctx, pos.Pair, models.SideSell, res, price, err)
	}
	e.notify(ctx, "✅ %s: sold %.8f at %s, profit %.2f", pos.Pair, res.Quantity, fmtPrice(price), profit)
	return nil
}

// fillPrice uses the venue's execution price, or the cycle price for demo orders.
func (e *Engine) fillPrice(res execution.Result, cyclePrice float64) (price, fee float64) {
	price = res.Price
	if res.Status == execution.Demo || price <= 0 {
		price = cyclePrice
	}
	fee = res.Fee
	if res.Status == execution.Demo {
		fee = price * res.Quantity * e.params.FeePct / 100
	}
	return price, fee
}

// unrecorded reports an executed order the ledger did not store. The fill
// details always reach the log and the operator. Only persistence failures
// are returned, they halt the scheduler.
func (e *Engine) unrecorded(ctx context.Context, pair string, side models.Side, res execution.Result, price float64, err error) error {
	e.log.Error("executed order not recorded in ledger",
		zap.String("pair", pair),
		zap.String("side", string(side)),
		zap.Stringer("status", res.Status),
		zap.String("order_id", res.OrderID),
		zap.Float64("price", price),
		zap.Float64("quantity", res.Quantity),
		zap.Float64("fee", res.Fee),
		zap.Error(err),
	)
	var perr *ledger.PersistenceError
	isPersistence := errors.As(err, &perr)
	if isPersistence && perr.Applied {
		e.alert(ctx, "🚨 %s: %s %s order %s (%.8f @ %s) is in portfolio.json but NOT in trades.json: %v",
			pair, res.Status, side, res.OrderID, res.Quantity, fmtPrice(price), err)
	} else {
		e.alert(ctx, "🚨 %s: %s %s order %s (%.8f @ %s) NOT recorded: %v",
			pair, res.Status, side, res.OrderID, res.Quantity, fmtPrice(price), err)
	}

	if isPersistence {
		return err
	}
	return nil
}

func (e *Engine) notify(ctx context.Context, format string, args ...any) {
	e.send(ctx, nil, format, args...)
}

// alert reaches every operator channel regardless of NOTIFY; it is used when
// a position needs a human.
func (e *Engine) alert(ctx context.Context, format string, args ...any) {
	e.send(ctx, alertDestinations, format, args...)
}

func (e *Engine) send(ctx context.Context, dests []string, format string, args ...any) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(ctx, fmt.Sprintf("[%s] ", e.params.Profile)+fmt.Sprintf(format, args...), dests...)
}

// lazyATR fetches candles at most once per cycle and only when a branch needs ATR.
type lazyATR struct {
	engine *Engine
	pair   string

	done  bool
	value float64
	ok    bool
}

func (a *lazyATR) get(ctx context.Context, rep *Report) (float64, bool) {
	if a.done {
		return a.value, a.ok
	}
	a.done = true

	e := a.engine
	candles, err := e.market.FetchHistoricalCandles(ctx, a.pair, e.params.ATRPeriod+1, e.params.CandleInterval)
	if err != nil {
		e.log.Warn("candle fetch failed, ATR undefined", zap.String("pair", a.pair), zap.Error(err))
		return 0, false
	}
	a.value, a.ok = indicator.ATR(candles, e.params.ATRPeriod)
	rep.ATR, rep.ATROK = a.value, a.ok
	if a.ok {
		metrics.Indicator.WithLabelValues(a.pair, "atr").Set(a.value)
	}
	return a.value, a.ok
}
