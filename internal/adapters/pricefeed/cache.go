package pricefeed

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"eventsim/internal/domain/price"
	"eventsim/pkg/errors"
)

// Cache holds the last quote per symbol and serves price.Source.
// Quotes older than maxAge are treated as missing.
type Cache struct {
	mu     sync.RWMutex
	quotes map[string]price.Quote
	maxAge time.Duration
	now    func() time.Time
}

// NewCache creates an empty cache. maxAge <= 0 disables staleness checks.
func NewCache(maxAge time.Duration) *Cache {
	return &Cache{
		quotes: make(map[string]price.Quote),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Set stores a quote if it is newer than the held one
func (c *Cache) Set(q price.Quote) {
	q.Symbol = price.NormalizeSymbol(q.Symbol)

	c.mu.Lock()
	defer c.mu.Unlock()
	if held, ok := c.quotes[q.Symbol]; ok && held.Time.After(q.Time) {
		return
	}
	c.quotes[q.Symbol] = q
}

// SetPrice stores a quote stamped with the cache's clock
func (c *Cache) SetPrice(symbol string, p decimal.Decimal) {
	c.Set(price.Quote{Symbol: symbol, Price: p, Time: c.now()})
}

// LastPrice implements price.Source
func (c *Cache) LastPrice(_ context.Context, symbol string) (price.Quote, error) {
	symbol = price.NormalizeSymbol(symbol)

	c.mu.RLock()
	q, ok := c.quotes[symbol]
	c.mu.RUnlock()

	if !ok {
		return price.Quote{}, errors.Wrapf(errors.ErrPriceUnavailable, "no quote for %s", symbol)
	}
	if c.maxAge > 0 && c.now().Sub(q.Time) > c.maxAge {
		return price.Quote{}, errors.Wrapf(errors.ErrPriceUnavailable, "quote for %s is stale (%s old)", symbol, c.now().Sub(q.Time))
	}
	return q, nil
}
