package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"scalper/internal/metrics"
	"scalper/internal/models"
	"scalper/pkg/retry"
)

// ErrRetriesExhausted is returned by SubmitWithRetry when no attempt filled.
var ErrRetriesExhausted = errors.New("order retries exhausted")

type Status int

const (
	Rejected Status = iota
	Filled
	Demo
)

func (s Status) String() string {
	switch s {
	case Filled:
		return "filled"
	case Demo:
		return "demo"
	default:
		return "rejected"
	}
}

// Result of one submission. Only Filled and Demo may be committed to the ledger.
type Result struct {
	Status   Status
	OrderID  string
	Price    float64
	Quantity float64
	Fee      float64
	Reason   string
}

func (r Result) OK() bool { return r.Status == Filled || r.Status == Demo }

// Venue places market orders.
type Venue interface {
	PlaceOrder(ctx context.Context, pair string, side models.Side, quantity float64) (models.Fill, error)
}

type Gateway struct {
	venue Venue
	demo  bool
	log   *zap.Logger
}

func NewGateway(venue Venue, demo bool, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{venue: venue, demo: demo, log: log}
}

// Submit places one order. In demo mode the venue is never contacted.
// An order already sent is not aborted when ctx is cancelled.
func (g *Gateway) Submit(ctx context.Context, pair string, side models.Side, quantity float64) Result {
	res := g.submit(ctx, pair, side, quantity)
	metrics.Orders.WithLabelValues(pair, string(side), res.Status.String()).Inc()

	if res.OK() {
		g.log.Info("order executed",
			zap.String("pair", pair),
			zap.String("side", string(side)),
			zap.Stringer("status", res.Status),
			zap.Float64("quantity", res.Quantity),
			zap.Float64("price", res.Price),
		)
	} else {
		g.log.Warn("order rejected",
			zap.String("pair", pair),
			zap.String("side", string(side)),
			zap.Float64("quantity", quantity),
			zap.String("reason", res.Reason),
		)
	}
	return res
}

func (g *Gateway) submit(ctx context.Context, pair string, side models.Side, quantity float64) Result {
	if quantity <= 0 {
		return Result{Status: Rejected, Reason: fmt.Sprintf("invalid quantity %v", quantity)}
	}
	if side != models.SideBuy && side != models.SideSell {
		return Result{Status: Rejected, Reason: fmt.Sprintf("invalid side %q", side)}
	}
	if g.demo {
		return Result{Status: Demo, Quantity: quantity}
	}
	if g.venue == nil {
		return Result{Status: Rejected, Reason: "no venue configured"}
	}

	fill, err := g.venue.PlaceOrder(context.WithoutCancel(ctx), pair, side, quantity)
	if err != nil {
		return Result{Status: Rejected, Reason: err.Error()}
	}
	if fill.Quantity <= 0 {
		return Result{Status: Rejected, OrderID: fill.OrderID, Reason: "order not filled"}
	}
	return Result{
		Status:   Filled,
		OrderID:  fill.OrderID,
		Price:    fill.Price,
		Quantity: fill.Quantity,
		Fee:      fill.Fee,
	}
}

// SubmitWithRetry makes up to maxRetries attempts with a fixed wait between
// them and stops at the first fill. On exhaustion the last rejected result is
// returned together with an error wrapping ErrRetriesExhausted.
func (g *Gateway) SubmitWithRetry(ctx context.Context, pair string, side models.Side, quantity float64, maxRetries int, wait time.Duration) (Result, error) {
	var last Result

	cfg := retry.Fixed(maxRetries, wait)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		g.log.Warn("retrying order",
			zap.String("pair", pair),
			zap.String("side", string(side)),
			zap.Int("attempt", attempt),
			zap.Duration("wait", delay),
			zap.Error(err),
		)
	}

	attempts := 0
	err := retry.Do(ctx, func(int) error {
		attempts++
		last = g.Submit(ctx, pair, side, quantity)
		if !last.OK() {
			return errors.New(last.Reason)
		}
		return nil
	}, cfg)
	if err == nil {
		return last, nil
	}
	if attempts == 0 {
		// cancelled before anything was sent
		return Result{Status: Rejected, Reason: err.Error()}, err
	}
	return last, fmt.Errorf("%w after %d attempts: %s", ErrRetriesExhausted, attempts, last.Reason)
}
