package position

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventsim/pkg/errors"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func newTestPosition(t *testing.T) *Position {
	t.Helper()
	p, err := New(uuid.New(), "BTCUSDT", d(100), d(110), d(95), time.Hour, t0)
	require.NoError(t, err)
	return p
}

func TestNew_Thresholds(t *testing.T) {
	tests := []struct {
		name    string
		entry   float64
		tp      float64
		sl      float64
		maxDur  time.Duration
		wantErr bool
	}{
		{"valid", 100, 110, 95, time.Hour, false},
		{"tp at entry", 100, 100, 95, time.Hour, true},
		{"sl above entry", 100, 110, 101, time.Hour, true},
		{"zero duration", 100, 110, 95, 0, true},
		{"zero entry", 0, 110, -5, time.Hour, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(uuid.New(), "BTCUSDT", d(tt.entry), d(tt.tp), d(tt.sl), tt.maxDur, t0)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StatusOpen, p.Status)
			assert.True(t, p.MFE.IsZero())
			assert.True(t, p.MAE.IsZero())
		})
	}
}

func TestEvaluate_TakeProfit(t *testing.T) {
	p := newTestPosition(t)

	assert.False(t, p.Evaluate(d(105), t0.Add(5*time.Second)))
	assert.True(t, p.Evaluate(d(111), t0.Add(10*time.Second)))

	assert.Equal(t, StatusClosed, p.Status)
	assert.Equal(t, ExitTakeProfit, p.ExitReason)
	assert.True(t, p.ExitPrice.Equal(d(111)))
	assert.Equal(t, t0.Add(10*time.Second), *p.ExitTimestamp)
	assert.True(t, p.MFE.Equal(d(11)))
	assert.True(t, p.MAE.IsZero())
}

func TestEvaluate_StopLoss(t *testing.T) {
	p := newTestPosition(t)

	assert.True(t, p.Evaluate(d(95), t0.Add(time.Minute)))
	assert.Equal(t, ExitStopLoss, p.ExitReason)
	assert.True(t, p.MAE.Equal(d(5)))
}

func TestEvaluate_Time(t *testing.T) {
	p := newTestPosition(t)

	assert.False(t, p.Evaluate(d(96), t0.Add(30*time.Minute)))
	assert.False(t, p.Evaluate(d(109), t0.Add(59*time.Minute)))
	assert.True(t, p.Evaluate(d(102), t0.Add(3600*time.Second)))

	assert.Equal(t, ExitTime, p.ExitReason)
	assert.True(t, p.MFE.Equal(d(9)))
	assert.True(t, p.MAE.Equal(d(4)))
}

func TestEvaluate_PriorityTPOverTime(t *testing.T) {
	p := newTestPosition(t)

	assert.True(t, p.Evaluate(d(120), t0.Add(2*time.Hour)))
	assert.Equal(t, ExitTakeProfit, p.ExitReason)
}

func TestEvaluate_PrioritySLOverTime(t *testing.T) {
	p := newTestPosition(t)

	assert.True(t, p.Evaluate(d(90), t0.Add(2*time.Hour)))
	assert.Equal(t, ExitStopLoss, p.ExitReason)
}

func TestEvaluate_FrozenAfterClose(t *testing.T) {
	p := newTestPosition(t)
	require.True(t, p.Evaluate(d(111), t0.Add(time.Second)))
	before := p.Clone()

	assert.False(t, p.Evaluate(d(50), t0.Add(time.Minute)))
	assert.Equal(t, before, p)
}

func TestExcursion_Monotonic(t *testing.T) {
	var x Excursion
	entry := d(100)
	prices := []float64{101, 99, 104, 100, 97, 103}

	prevMFE, prevMAE := decimal.Zero, decimal.Zero
	for _, price := range prices {
		x.Observe(entry, d(price))
		assert.True(t, x.MFE.GreaterThanOrEqual(prevMFE))
		assert.True(t, x.MAE.GreaterThanOrEqual(prevMAE))
		prevMFE, prevMAE = x.MFE, x.MAE
	}

	assert.True(t, x.MFE.Equal(d(4)))
	assert.True(t, x.MAE.Equal(d(3)))
}

func TestMetrics(t *testing.T) {
	p := newTestPosition(t)

	_, err := p.Metrics()
	require.Error(t, err)

	p.Evaluate(d(97), t0.Add(time.Second))
	require.True(t, p.Evaluate(d(111), t0.Add(10*time.Second)))

	m, err := p.Metrics()
	require.NoError(t, err)
	assert.Equal(t, p.EventID, m.EventID)
	assert.Equal(t, ExitTakeProfit, m.ExitReason)
	assert.Equal(t, 10*time.Second, m.Duration())
	assert.True(t, m.MFEPct.Equal(d(11)))
	assert.True(t, m.MAEPct.Equal(d(3)))
}
