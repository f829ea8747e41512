package pricefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventsim/internal/domain/price"
	"eventsim/pkg/errors"
	"eventsim/pkg/logger"
)

const markPriceMsg = `{"stream":"btcusdt@markPrice@1s","data":{"e":"markPriceUpdate","E":1714564800000,"s":"BTCUSDT","p":"64123.45000000","i":"64100.00","r":"0.0001","T":1714579200000}}`

func TestParseMarkPrice(t *testing.T) {
	q, err := ParseMarkPrice([]byte(markPriceMsg))
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", q.Symbol)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("64123.45")))
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), q.Time)

	bare := `{"e":"markPriceUpdate","E":1714564800000,"s":"ETHUSDT","p":"3000.1"}`
	q, err = ParseMarkPrice([]byte(bare))
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", q.Symbol)

	_, err = ParseMarkPrice([]byte(`{"result":null,"id":1}`))
	assert.Error(t, err)
	_, err = ParseMarkPrice([]byte(`{"e":"markPriceUpdate","s":"X","p":"abc"}`))
	assert.Error(t, err)
}

func TestCache(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := NewCache(30 * time.Second).WithClock(func() time.Time { return now })
	ctx := context.Background()

	_, err := c.LastPrice(ctx, "BTCUSDT")
	assert.True(t, errors.Is(err, errors.ErrPriceUnavailable))

	c.Set(price.Quote{Symbol: "btc/usdt", Price: decimal.NewFromInt(100), Time: now.Add(-10 * time.Second)})
	q, err := c.LastPrice(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(100)))

	c.Set(price.Quote{Symbol: "BTCUSDT", Price: decimal.NewFromInt(90), Time: now.Add(-20 * time.Second)})
	q, _ = c.LastPrice(ctx, "BTCUSDT")
	assert.True(t, q.Price.Equal(decimal.NewFromInt(100)), "older quote ignored")

	now = now.Add(time.Minute)
	_, err = c.LastPrice(ctx, "BTCUSDT")
	assert.True(t, errors.Is(err, errors.ErrPriceUnavailable), "stale quote")
}

func TestBinanceFeed_StreamURL(t *testing.T) {
	f := NewBinanceFeed("wss://fstream.binance.com/stream", []string{"BTC/USDT", "ethusdt"}, NewCache(0), logger.NewNop())

	u, err := f.StreamURL()
	require.NoError(t, err)
	assert.Equal(t, "wss://fstream.binance.com/stream?streams=btcusdt@markPrice@1s/ethusdt@markPrice@1s", u)
}

func TestBinanceFeed_RunFillsCache(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.RawQuery, "btcusdt@markPrice@1s")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"garbage":true}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(markPriceMsg))
		// hold the connection until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	cache := NewCache(0)
	feed := NewBinanceFeed("ws"+strings.TrimPrefix(srv.URL, "http"), []string{"BTCUSDT"}, cache, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- feed.Run(ctx) }()

	assert.Eventually(t, func() bool {
		_, err := cache.LastPrice(context.Background(), "BTCUSDT")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, feed.Connected())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not stop")
	}
}
