package bitvavo

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scalper/internal/models"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{RESTURL: srv.URL + "/v2", APIKey: "key", APISecret: "secret"}, nil)
	require.NoError(t, err)
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return c
}

func TestRequestsAreSigned(t *testing.T) {
	var gotBody string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)

		assert.Equal(t, "key", r.Header.Get("Bitvavo-Access-Key"))
		assert.Equal(t, "1700000000000", r.Header.Get("Bitvavo-Access-Timestamp"))
		assert.Equal(t, "10000", r.Header.Get("Bitvavo-Access-Window"))

		mac := hmac.New(sha256.New, []byte("secret"))
		mac.Write([]byte("1700000000000" + r.Method + "/v2/order" + gotBody))
		assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), r.Header.Get("Bitvavo-Access-Signature"))

		_, _ = w.Write([]byte(`{"orderId":"abc","market":"BTC-EUR","status":"filled","filledAmount":"0.5","filledAmountQuote":"50.5","feePaid":"0.126"}`))
	})

	fill, err := c.PlaceOrder(context.Background(), "BTC-EUR", models.SideBuy, 0.5)
	require.NoError(t, err)
	assert.JSONEq(t, `{"market":"BTC-EUR","side":"buy","orderType":"market","amount":"0.5"}`, gotBody)
	assert.Equal(t, "abc", fill.OrderID)
	assert.Equal(t, 0.5, fill.Quantity)
	assert.InDelta(t, 101.0, fill.Price, 1e-9)
	assert.InDelta(t, 0.126, fill.Fee, 1e-12)
}

func TestFetchCurrentPrice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/ticker/price", r.URL.Path)
		assert.Equal(t, "ETH-EUR", r.URL.Query().Get("market"))
		_, _ = w.Write([]byte(`{"market":"ETH-EUR","price":"2345.67"}`))
	})

	price, err := c.FetchCurrentPrice(context.Background(), "ETH-EUR")
	require.NoError(t, err)
	assert.Equal(t, 2345.67, price)
}

func TestAPIErrorIsFeedError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errorCode":205,"error":"market parameter is invalid."}`))
	})

	_, err := c.FetchCurrentPrice(context.Background(), "NOPE-EUR")

	var feed *FeedError
	require.ErrorAs(t, err, &feed)
	assert.Equal(t, "NOPE-EUR", feed.Pair)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 205, apiErr.Code)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}

func TestFetchHistoricalCandlesOldestFirst(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/BTC-EUR/candles", r.URL.Path)
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[
			[1700000120000,"102","104","101","103","1.5"],
			[1700000060000,"101","103","100","102","2"],
			[1700000000000,"100","102","99","101","3"]
		]`))
	})

	candles, err := c.FetchHistoricalCandles(context.Background(), "BTC-EUR", 3, "1m")
	require.NoError(t, err)
	require.Len(t, candles, 3)
	assert.Equal(t, 101.0, candles[0].Close)
	assert.Equal(t, 99.0, candles[0].Low)
	assert.Equal(t, 103.0, candles[2].Close)
	assert.True(t, candles[0].Start.Before(candles[2].Start))

	closes, err := c.FetchHistoricalPrices(context.Background(), "BTC-EUR", 3, "1m")
	require.NoError(t, err)
	assert.Equal(t, []float64{101, 102, 103}, closes)
}

func TestMalformedCandleIsRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[[1700000000000,"100","x","99","101","3"]]`))
	})

	_, err := c.FetchHistoricalCandles(context.Background(), "BTC-EUR", 1, "1m")
	var feed *FeedError
	assert.ErrorAs(t, err, &feed)
}

func TestMarketConstraintsAreCached(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v2/markets", r.URL.Path)
		_, _ = w.Write([]byte(`{"market":"BTC-EUR","status":"trading","minOrderInBaseAsset":"0.0001","quantityDecimals":8}`))
	})

	for i := 0; i < 3; i++ {
		got, err := c.MarketConstraints(context.Background(), "BTC-EUR")
		require.NoError(t, err)
		assert.Equal(t, models.Constraints{MinQuantity: 0.0001, QuantityPrecision: 8}, got)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestMarketConstraintsDecimalFallbacks(t *testing.T) {
	for name, tc := range map[string]struct {
		body string
		want int32
	}{
		"base asset decimals": {`{"minOrderInBaseAsset":"0.01","decimalPlacesBaseAsset":4}`, 4},
		"none":                {`{"minOrderInBaseAsset":"0.01"}`, defaultQuantityDecimals},
	} {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			})
			got, err := c.MarketConstraints(context.Background(), "ADA-EUR")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.QuantityPrecision)
			assert.Equal(t, 0.01, got.MinQuantity)
		})
	}
}

func TestOrderWithoutFill(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"orderId":"o-1","status":"new","filledAmount":"0","filledAmountQuote":"0","feePaid":"0"}`))
	})

	fill, err := c.PlaceOrder(context.Background(), "BTC-EUR", models.SideSell, 1)
	require.NoError(t, err)
	assert.Zero(t, fill.Quantity)
	assert.Zero(t, fill.Price)
}
