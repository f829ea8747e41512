package position

import "github.com/shopspring/decimal"

// Excursion tracks the best and worst price move seen while a position is open.
// Both values are absolute price deltas from entry and never decrease.
type Excursion struct {
	MFE decimal.Decimal `db:"mfe" json:"mfe"`
	MAE decimal.Decimal `db:"mae" json:"mae"`
}

// Observe folds one price observation into the excursion
func (x *Excursion) Observe(entry, price decimal.Decimal) {
	favorable := decimal.Max(price.Sub(entry), decimal.Zero)
	adverse := decimal.Max(entry.Sub(price), decimal.Zero)

	x.MFE = decimal.Max(x.MFE, favorable)
	x.MAE = decimal.Max(x.MAE, adverse)
}

// Pct expresses an excursion delta as a percentage of entry
func Pct(delta, entry decimal.Decimal) decimal.Decimal {
	if entry.IsZero() {
		return decimal.Zero
	}
	return delta.Div(entry).Mul(decimal.NewFromInt(100)).Round(4)
}
