package bitvavo

import (
	"context"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"scalper/internal/models"
)

const (
	pingEvery     = 20 * time.Second
	reconnectWait = time.Second
)

type subscribeMsg struct {
	Action   string       `json:"action"`
	Channels []wsChannels `json:"channels"`
}

type wsChannels struct {
	Name    string   `json:"name"`
	Markets []string `json:"markets"`
}

type tickerEvent struct {
	Event     string `json:"event"`
	Market    string `json:"market"`
	LastPrice string `json:"lastPrice"`
	BestBid   string `json:"bestBid"`
	BestAsk   string `json:"bestAsk"`
}

// price prefers the last trade and falls back to the book mid.
func (e tickerEvent) price() float64 {
	if p, err := strconv.ParseFloat(e.LastPrice, 64); err == nil && p > 0 {
		return p
	}
	bid, err1 := strconv.ParseFloat(e.BestBid, 64)
	ask, err2 := strconv.ParseFloat(e.BestAsk, 64)
	if err1 != nil || err2 != nil || bid <= 0 || ask <= 0 {
		return 0
	}
	return (bid + ask) / 2
}

// Subscribe streams ticker prices for pairs over one WebSocket. The
// connection is re-established until ctx is done; the channel is closed then.
func (c *Client) Subscribe(ctx context.Context, pairs []string) <-chan models.PriceUpdate {
	ch := make(chan models.PriceUpdate)
	go func() {
		defer close(ch)
		if len(pairs) == 0 {
			return
		}

		sub := subscribeMsg{
			Action:   "subscribe",
			Channels: []wsChannels{{Name: "ticker", Markets: pairs}},
		}

		for {
			c.log.Info("ws connect", zap.String("url", c.wsURL), zap.Strings("pairs", pairs))
			conn, _, err := c.wsDialer.DialContext(ctx, c.wsURL, nil)
			if err != nil {
				c.log.Warn("ws dial failed", zap.Error(err))
				if !sleepCtx(ctx, reconnectWait) {
					return
				}
				continue
			}

			if err := conn.WriteJSON(sub); err != nil {
				c.log.Warn("ws subscribe failed", zap.Error(err))
				_ = conn.Close()
				if !sleepCtx(ctx, reconnectWait) {
					return
				}
				continue
			}
			c.setConnected(true)

			done := make(chan struct{})
			go keepalive(ctx, conn, done)

			ok := c.readTickers(ctx, conn, ch)
			close(done)
			_ = conn.Close()
			c.setConnected(false)

			if !ok || !sleepCtx(ctx, reconnectWait) {
				return
			}
		}
	}()
	return ch
}

// readTickers forwards ticker events until the connection fails. It returns
// false when ctx is done.
func (c *Client) readTickers(ctx context.Context, conn *websocket.Conn, ch chan<- models.PriceUpdate) bool {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			c.log.Warn("ws read failed", zap.Error(err))
			return true
		}

		var ev tickerEvent
		if err := sonic.Unmarshal(msg, &ev); err != nil || ev.Event != "ticker" {
			continue
		}
		p := ev.price()
		if p <= 0 {
			continue
		}

		select {
		case ch <- models.PriceUpdate{Pair: ev.Market, Price: p, At: time.Now().UnixMilli()}:
		case <-ctx.Done():
			return false
		}
	}
}

// keepalive pings the server and closes conn once ctx is done so that a
// blocked read returns.
func keepalive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	t := time.NewTicker(pingEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close()
			return
		case <-done:
			return
		case <-t.C:
			_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
