package pricefeed

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"eventsim/internal/domain/price"
	"eventsim/internal/metrics"
	"eventsim/pkg/errors"
	"eventsim/pkg/logger"
	"eventsim/pkg/reconnect"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 20 * time.Second
)

// BinanceFeed streams futures mark prices over a combined websocket stream into a Cache
type BinanceFeed struct {
	baseURL   string
	symbols   []string
	cache     *Cache
	reconnect *reconnect.Manager
	dialer    *websocket.Dialer
	connected atomic.Bool
	log       *logger.Logger
}

// NewBinanceFeed creates a feed for the given symbols
func NewBinanceFeed(baseURL string, symbols []string, cache *Cache, log *logger.Logger) *BinanceFeed {
	log = log.With("component", "price_feed", "exchange", "binance")
	normalized := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if n := price.NormalizeSymbol(s); n != "" {
			normalized = append(normalized, n)
		}
	}
	return &BinanceFeed{
		baseURL:   baseURL,
		symbols:   normalized,
		cache:     cache,
		reconnect: reconnect.NewManager(reconnect.Config{MinBackoff: time.Second, MaxBackoff: time.Minute}, log),
		dialer:    websocket.DefaultDialer,
		log:       log,
	}
}

// StreamURL builds the combined mark price stream URL
func (f *BinanceFeed) StreamURL() (string, error) {
	u, err := url.Parse(f.baseURL)
	if err != nil {
		return "", errors.Wrapf(err, "parse price feed url %q", f.baseURL)
	}
	streams := make([]string, 0, len(f.symbols))
	for _, s := range f.symbols {
		streams = append(streams, strings.ToLower(s)+"@markPrice@1s")
	}
	q := u.Query()
	q.Set("streams", strings.Join(streams, "/"))
	u.RawQuery = q.Encode()
	// binance expects literal slashes and @ in the stream list
	u.RawQuery = strings.NewReplacer("%2F", "/", "%40", "@").Replace(u.RawQuery)
	return u.String(), nil
}

// Connected reports whether a stream is currently open
func (f *BinanceFeed) Connected() bool {
	return f.connected.Load()
}

// Run keeps the stream open until ctx is cancelled
func (f *BinanceFeed) Run(ctx context.Context) error {
	if len(f.symbols) == 0 {
		f.log.Warnw("no symbols configured, price feed idle")
		<-ctx.Done()
		return nil
	}

	first := true
	for {
		var err error
		if first {
			err = f.stream(ctx)
			first = false
		} else {
			metrics.PriceFeedReconnects.Inc()
			err = f.reconnect.Attempt(ctx, f.stream)
		}

		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, reconnect.ErrCircuitOpen) {
			// wait out the breaker without spinning
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(f.reconnect.Backoff()):
			}
			continue
		}
		f.log.Warnw("price stream ended", "error", err)
	}
}

// stream dials once and reads until the connection fails
func (f *BinanceFeed) stream(ctx context.Context) error {
	streamURL, err := f.StreamURL()
	if err != nil {
		return err
	}

	conn, _, err := f.dialer.DialContext(ctx, streamURL, nil)
	if err != nil {
		return errors.Wrap(err, "dial price feed")
	}
	defer conn.Close()

	f.connected.Store(true)
	defer f.connected.Store(false)
	f.log.Infow("price feed connected", "symbols", len(f.symbols))

	done := make(chan struct{})
	defer close(done)
	go f.keepAlive(ctx, conn, done)

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "read price feed")
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		q, err := ParseMarkPrice(msg)
		if err != nil {
			f.log.Debugw("skipping price message", "error", err)
			continue
		}
		f.cache.Set(q)
	}
}

// keepAlive pings the server and closes the connection on shutdown to unblock the reader
func (f *BinanceFeed) keepAlive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
			_ = conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				f.log.Debugw("ping failed", "error", err)
			}
		}
	}
}

type combinedMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type markPriceEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	MarkPrice string `json:"p"`
}

// ParseMarkPrice decodes a markPriceUpdate, wrapped in a combined stream envelope or bare
func ParseMarkPrice(msg []byte) (price.Quote, error) {
	var envelope combinedMessage
	payload := msg
	if err := json.Unmarshal(msg, &envelope); err == nil && len(envelope.Data) > 0 {
		payload = envelope.Data
	}

	var ev markPriceEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return price.Quote{}, errors.Wrap(err, "decode mark price")
	}
	if ev.EventType != "markPriceUpdate" {
		return price.Quote{}, errors.Newf("unexpected event type %q", ev.EventType)
	}
	p, err := decimal.NewFromString(ev.MarkPrice)
	if err != nil {
		return price.Quote{}, errors.Wrapf(err, "parse mark price %q", ev.MarkPrice)
	}
	return price.Quote{
		Symbol: ev.Symbol,
		Price:  p,
		Time:   time.UnixMilli(ev.EventTime).UTC(),
	}, nil
}
