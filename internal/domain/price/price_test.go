package price

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT", NormalizeSymbol("BTC/USDT"))
	assert.Equal(t, "PEPEUSDT", NormalizeSymbol(" pepe-usdt "))
	assert.Equal(t, "ETHUSDT", NormalizeSymbol("ETHUSDT"))
}

func TestSymbolResolver(t *testing.T) {
	r := NewSymbolResolver("USDT", []string{"BTCUSDT", "SOL/USDT"})

	tests := []struct {
		entities []string
		want     string
	}{
		{[]string{"fed", "btc"}, "BTCUSDT"},
		{[]string{"SOL/USDT"}, "SOLUSDT"},
		{[]string{"Solana", "sol"}, "SOLUSDT"},
		{[]string{"fed", "rates"}, ""},
		{nil, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.Resolve(tt.entities), "%v", tt.entities)
	}
}

func TestSymbolResolver_NoKnownSymbols(t *testing.T) {
	r := NewSymbolResolver("usdt", nil)

	assert.Equal(t, "FEDUSDT", r.Resolve([]string{"fed"}))
	assert.Equal(t, "", r.Resolve([]string{"  "}))
}
