package bitvavo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"scalper/internal/models"
)

const defaultQuantityDecimals = 6

type tickerPrice struct {
	Market string `json:"market"`
	Price  string `json:"price"`
}

type marketInfo struct {
	Market              string `json:"market"`
	Status              string `json:"status"`
	MinOrderInBaseAsset string `json:"minOrderInBaseAsset"`
	QuantityDecimals    *int32 `json:"quantityDecimals"`
	DecimalPlacesBase   *int32 `json:"decimalPlacesBaseAsset"`
}

// FetchCurrentPrice returns the last traded price of pair.
func (c *Client) FetchCurrentPrice(ctx context.Context, pair string) (float64, error) {
	var tp tickerPrice
	if err := c.do(ctx, http.MethodGet, "/ticker/price?market="+url.QueryEscape(pair), nil, &tp); err != nil {
		return 0, &FeedError{Op: "ticker price", Pair: pair, Err: err}
	}
	price, err := parseFloat(tp.Price)
	if err != nil || price <= 0 {
		return 0, &FeedError{Op: "ticker price", Pair: pair, Err: fmt.Errorf("bad price %q", tp.Price)}
	}
	return price, nil
}

// FetchHistoricalCandles returns up to limit candles of pair, oldest first.
func (c *Client) FetchHistoricalCandles(ctx context.Context, pair string, limit int, interval string) ([]models.Candle, error) {
	q := url.Values{}
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))

	var raw [][]any
	if err := c.do(ctx, http.MethodGet, "/"+url.PathEscape(pair)+"/candles?"+q.Encode(), nil, &raw); err != nil {
		return nil, &FeedError{Op: "candles", Pair: pair, Err: err}
	}

	candles := make([]models.Candle, 0, len(raw))
	for i, row := range raw {
		cd, err := parseCandle(row)
		if err != nil {
			return nil, &FeedError{Op: "candles", Pair: pair, Err: errors.Wrapf(err, "row %d", i)}
		}
		candles = append(candles, cd)
	}
	// the API answers newest first
	slices.SortFunc(candles, func(a, b models.Candle) int { return a.Start.Compare(b.Start) })
	return candles, nil
}

// FetchHistoricalPrices returns the closes of the last limit candles, oldest first.
func (c *Client) FetchHistoricalPrices(ctx context.Context, pair string, limit int, interval string) ([]float64, error) {
	candles, err := c.FetchHistoricalCandles(ctx, pair, limit, interval)
	if err != nil {
		return nil, err
	}
	closes := make([]float64, len(candles))
	for i, cd := range candles {
		closes[i] = cd.Close
	}
	return closes, nil
}

// MarketConstraints returns the quantity limits of pair. They change rarely,
// so the first answer per market is kept for the life of the client.
func (c *Client) MarketConstraints(ctx context.Context, pair string) (models.Constraints, error) {
	c.mu.RLock()
	cached, ok := c.markets[pair]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	var info marketInfo
	if err := c.do(ctx, http.MethodGet, "/markets?market="+url.QueryEscape(pair), nil, &info); err != nil {
		return models.Constraints{}, &FeedError{Op: "markets", Pair: pair, Err: err}
	}
	minQty, err := parseFloat(info.MinOrderInBaseAsset)
	if err != nil {
		return models.Constraints{}, &FeedError{Op: "markets", Pair: pair, Err: err}
	}

	out := models.Constraints{MinQuantity: minQty, QuantityPrecision: defaultQuantityDecimals}
	switch {
	case info.QuantityDecimals != nil:
		out.QuantityPrecision = *info.QuantityDecimals
	case info.DecimalPlacesBase != nil:
		out.QuantityPrecision = *info.DecimalPlacesBase
	}

	c.mu.Lock()
	c.markets[pair] = out
	c.mu.Unlock()
	return out, nil
}

// parseCandle reads [timestamp, open, high, low, close, volume].
func parseCandle(row []any) (models.Candle, error) {
	if len(row) < 6 {
		return models.Candle{}, fmt.Errorf("candle has %d fields", len(row))
	}
	ts, err := number(row[0])
	if err != nil {
		return models.Candle{}, errors.Wrap(err, "timestamp")
	}
	vals := make([]float64, 5)
	for i := range vals {
		if vals[i], err = number(row[i+1]); err != nil {
			return models.Candle{}, errors.Wrapf(err, "field %d", i+1)
		}
	}
	return models.Candle{
		Start:  time.UnixMilli(int64(ts)),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

func number(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("unexpected %T", v)
	}
}
