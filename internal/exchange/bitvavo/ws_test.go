package bitvavo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeStreamsTickers(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub subscribeMsg
		if !assert.NoError(t, conn.ReadJSON(&sub)) {
			return
		}
		assert.Equal(t, "subscribe", sub.Action)
		assert.Equal(t, []string{"BTC-EUR", "ETH-EUR"}, sub.Channels[0].Markets)

		for _, msg := range []string{
			`{"event":"subscribed"}`,
			`{"event":"ticker","market":"BTC-EUR","lastPrice":"100.5"}`,
			`{"event":"ticker","market":"ETH-EUR","bestBid":"10","bestAsk":"12"}`,
			`{"event":"ticker","market":"ETH-EUR"}`,
		} {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(msg))
		}
		// hold the connection until the client goes away
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	c, err := NewClient(Config{WSURL: "ws" + strings.TrimPrefix(srv.URL, "http")}, nil)
	require.NoError(t, err)

	var connected atomic.Bool
	c.OnConnectionChange(connected.Store)

	ctx, cancel := context.WithCancel(context.Background())
	ch := c.Subscribe(ctx, []string{"BTC-EUR", "ETH-EUR"})

	first := recv(t, ch)
	assert.Equal(t, "BTC-EUR", first.Pair)
	assert.Equal(t, 100.5, first.Price)
	assert.True(t, connected.Load())

	second := recv(t, ch)
	assert.Equal(t, "ETH-EUR", second.Pair)
	assert.Equal(t, 11.0, second.Price)

	cancel()
	select {
	case _, ok := <-ch:
		for ok {
			_, ok = <-ch
		}
	case <-time.After(3 * time.Second):
		t.Fatal("stream not closed after cancel")
	}
	assert.False(t, connected.Load())
}

func TestSubscribeWithoutPairsCloses(t *testing.T) {
	c, err := NewClient(Config{}, nil)
	require.NoError(t, err)

	_, ok := <-c.Subscribe(context.Background(), nil)
	assert.False(t, ok)
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for update")
	}
	var zero T
	return zero
}
