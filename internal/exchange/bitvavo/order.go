package bitvavo

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"scalper/internal/models"
)

type orderRequest struct {
	Market    string `json:"market"`
	Side      string `json:"side"`
	OrderType string `json:"orderType"`
	Amount    string `json:"amount"`
}

type orderResponse struct {
	OrderID           string `json:"orderId"`
	Market            string `json:"market"`
	Status            string `json:"status"`
	FilledAmount      string `json:"filledAmount"`
	FilledAmountQuote string `json:"filledAmountQuote"`
	FeePaid           string `json:"feePaid"`
}

// PlaceOrder submits a market order for quantity of the base asset and
// reports what was filled.
func (c *Client) PlaceOrder(ctx context.Context, pair string, side models.Side, quantity float64) (models.Fill, error) {
	body, err := sonic.Marshal(orderRequest{
		Market:    pair,
		Side:      string(side),
		OrderType: "market",
		Amount:    strconv.FormatFloat(quantity, 'f', -1, 64),
	})
	if err != nil {
		return models.Fill{}, errors.Wrap(err, "encode order")
	}

	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, "/order", body, &resp); err != nil {
		return models.Fill{}, &FeedError{Op: "order", Pair: pair, Err: err}
	}
	fill, err := resp.fill()
	if err != nil {
		return models.Fill{}, &FeedError{Op: "order", Pair: pair, Err: err}
	}
	return fill, nil
}

func (r orderResponse) fill() (models.Fill, error) {
	amount, err := decimalOrZero(r.FilledAmount)
	if err != nil {
		return models.Fill{}, errors.Wrap(err, "filledAmount")
	}
	quote, err := decimalOrZero(r.FilledAmountQuote)
	if err != nil {
		return models.Fill{}, errors.Wrap(err, "filledAmountQuote")
	}
	fee, err := decimalOrZero(r.FeePaid)
	if err != nil {
		return models.Fill{}, errors.Wrap(err, "feePaid")
	}
	if r.OrderID == "" {
		return models.Fill{}, fmt.Errorf("response without orderId")
	}

	f := models.Fill{
		OrderID:  r.OrderID,
		Quantity: amount.InexactFloat64(),
		Fee:      fee.InexactFloat64(),
	}
	if amount.IsPositive() {
		f.Price = quote.Div(amount).InexactFloat64()
	}
	return f, nil
}

func decimalOrZero(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
