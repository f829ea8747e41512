package price

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the last observed price of a symbol
type Quote struct {
	Symbol string
	Price  decimal.Decimal
	Time   time.Time
}

// Source provides last prices. Implementations return errors.ErrPriceUnavailable
// when no fresh quote exists.
type Source interface {
	LastPrice(ctx context.Context, symbol string) (Quote, error)
}

// NormalizeSymbol maps pair notations like "btc/usdt" or "BTC-USDT" to the feed's "BTCUSDT"
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	return strings.NewReplacer("/", "", "-", "", "_", "", " ", "").Replace(s)
}
