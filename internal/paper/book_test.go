package paper

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skalibog/perpsentry/internal/config"
	"github.com/skalibog/perpsentry/pkg/models"
)

var entryAt = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func newBook(t *testing.T) *Book {
	t.Helper()
	b := NewBook(config.Default().Paper, State{})
	n := 0
	b.newID = func() string {
		n++
		return "pos-" + string(rune('0'+n))
	}
	return b
}

func longSignal(symbol string, price float64) models.Signal {
	return models.Signal{
		Symbol:        symbol,
		Kind:          models.KindLong,
		EntryPrice:    price,
		RSI:           60,
		Phase:         models.PhaseLaunch,
		StrengthGrade: models.GradeA,
	}
}

// bar 5-минутная свеча через k интервалов после входа
func bar(k int, high, low, closePrice float64) models.Candle {
	open := entryAt.Add(time.Duration(k) * 5 * time.Minute)
	return models.Candle{
		OpenTime:  open.UnixMilli(),
		CloseTime: open.Add(5*time.Minute).UnixMilli() - 1,
		Open:      closePrice,
		High:      high,
		Low:       low,
		Close:     closePrice,
	}
}

func TestAdmissionLevels(t *testing.T) {
	b := newBook(t)
	p, err := b.OnSignal(longSignal("BTC", 100), entryAt)
	require.NoError(t, err)

	assert.Equal(t, 1000.0, p.Size)
	assert.Equal(t, 96.0, p.SL)
	assert.Equal(t, 103.0, p.TP1)
	assert.Equal(t, 105.0, p.TP2)
	assert.Equal(t, 0.0, p.TP3)
	assert.Equal(t, 1.0, p.RemainingPct)
	assert.Equal(t, models.DirectionLong, p.Direction)
	assert.Equal(t, entryAt, p.EntryTime)
}

func TestTP1ThenTrail(t *testing.T) {
	b := newBook(t)
	_, err := b.OnSignal(longSignal("BTC", 100), entryAt)
	require.NoError(t, err)

	trades := b.Tick(map[string][]models.Candle{"BTC": {bar(1, 103, 100.5, 102.5)}}, entryAt.Add(10*time.Minute))
	require.Len(t, trades, 1)
	assert.Equal(t, ReasonTP1, trades[0].Reason)
	assert.InDelta(t, 12.0, trades[0].PnLUSD, 1e-9)

	p := b.Positions()[0]
	assert.True(t, p.TP1Hit)
	assert.Equal(t, 100.0, p.SL)
	assert.InDelta(t, 0.6, p.RemainingPct, 1e-12)

	trades = b.Tick(map[string][]models.Candle{"BTC": {
		bar(1, 103, 100.5, 102.5), // уже учтена
		bar(2, 105, 103.5, 104.5),
		bar(3, 108, 106, 107.5),
		bar(4, 107, 105.5, 105.9),
	}}, entryAt.Add(25*time.Minute))
	require.Len(t, trades, 2)

	assert.Equal(t, ReasonTP2, trades[0].Reason)
	assert.InDelta(t, 15.0, trades[0].PnLUSD, 1e-9)
	assert.Equal(t, ReasonTrail, trades[1].Reason)
	assert.InDelta(t, 105.84, trades[1].ExitPrice, 1e-9)
	assert.InDelta(t, 17.52, trades[1].PnLUSD, 1e-9)
	assert.InDelta(t, 0.3, trades[1].Fraction, 1e-12)

	assert.Empty(t, b.Positions())
	assert.InDelta(t, 10_044.52, b.Capital(), 1e-6)

	sum := b.Summary(nil)
	assert.Equal(t, 1, sum.Trades)
	assert.Equal(t, 1, sum.Wins)
	assert.InDelta(t, 44.52, sum.RealizedUSD, 1e-9)
}

func TestStopLossBeforeTakeProfit(t *testing.T) {
	b := newBook(t)
	_, err := b.OnSignal(longSignal("BTC", 100), entryAt)
	require.NoError(t, err)

	trades := b.Tick(map[string][]models.Candle{"BTC": {bar(1, 104, 95, 99)}}, entryAt.Add(10*time.Minute))
	require.Len(t, trades, 1)

	assert.Equal(t, ReasonSL, trades[0].Reason)
	assert.Equal(t, 96.0, trades[0].ExitPrice)
	assert.Equal(t, 1.0, trades[0].Fraction)
	assert.InDelta(t, -40.0, trades[0].PnLUSD, 1e-9)
	assert.InDelta(t, 9960.0, b.Capital(), 1e-9)
}

func TestTimeExit(t *testing.T) {
	b := newBook(t)
	_, err := b.OnSignal(longSignal("BTC", 100), entryAt)
	require.NoError(t, err)

	var candles []models.Candle
	for k := 0; k < 48; k++ {
		candles = append(candles, bar(k, 101, 99.5, 100.5))
	}
	trades := b.Tick(map[string][]models.Candle{"BTC": candles}, entryAt.Add(4*time.Hour))
	require.Len(t, trades, 1)

	assert.Equal(t, ReasonTime, trades[0].Reason)
	assert.Equal(t, 100.5, trades[0].ExitPrice)
	assert.InDelta(t, 5.0, trades[0].PnLUSD, 1e-9)
	assert.Empty(t, b.Positions())
}

func TestTimeExitWithoutNewBars(t *testing.T) {
	b := newBook(t)
	_, err := b.OnSignal(longSignal("ETH", 100), entryAt)
	require.NoError(t, err)

	assert.Empty(t, b.Tick(map[string][]models.Candle{"ETH": {bar(1, 101, 99, 100)}}, entryAt.Add(time.Hour)))
	assert.Empty(t, b.Tick(nil, entryAt.Add(5*time.Hour)), "без цены позицию не закрыть")
	assert.Len(t, b.Positions(), 1)
}

func TestUnclosedBarIsDeferred(t *testing.T) {
	b := newBook(t)
	_, err := b.OnSignal(longSignal("BTC", 100), entryAt)
	require.NoError(t, err)

	// свеча 10:05 еще формируется: не учитывается и не помечается
	forming := bar(1, 100.5, 99.5, 100)
	assert.Empty(t, b.Tick(map[string][]models.Candle{"BTC": {forming}}, entryAt.Add(7*time.Minute)))
	require.Len(t, b.Positions(), 1)
	assert.Zero(t, b.Positions()[0].LastBar)

	// та же свеча закрылась с проколом стопа
	trades := b.Tick(map[string][]models.Candle{"BTC": {
		bar(1, 100.5, 95, 96.5),
		bar(2, 97, 96.2, 96.5),
	}}, entryAt.Add(15*time.Minute))
	require.Len(t, trades, 1)
	assert.Equal(t, ReasonSL, trades[0].Reason)
	assert.InDelta(t, -40.0, trades[0].PnLUSD, 1e-9)
	assert.Empty(t, b.Positions())
}

func TestUnclosedBarDoesNotTriggerTimeExit(t *testing.T) {
	b := newBook(t)
	_, err := b.OnSignal(longSignal("BTC", 100), entryAt)
	require.NoError(t, err)

	var candles []models.Candle
	for k := 0; k < 48; k++ {
		candles = append(candles, bar(k, 101, 99.5, 100.5))
	}
	// последняя свеча закроется только в 13:59:59.999
	assert.Empty(t, b.Tick(map[string][]models.Candle{"BTC": candles}, entryAt.Add(4*time.Hour-2*time.Minute)))
	require.Len(t, b.Positions(), 1)
	assert.Equal(t, candles[46].OpenTime, b.Positions()[0].LastBar)

	trades := b.Tick(map[string][]models.Candle{"BTC": candles}, entryAt.Add(4*time.Hour))
	require.Len(t, trades, 1)
	assert.Equal(t, ReasonTime, trades[0].Reason)
	assert.True(t, trades[0].ExitTime.Equal(entryAt.Add(4*time.Hour)))
}

func TestShortMirror(t *testing.T) {
	b := newBook(t)
	sig := longSignal("SOL", 100)
	sig.Kind = models.KindShort
	sig.RSI = 40

	p, err := b.OnSignal(sig, entryAt)
	require.NoError(t, err)
	assert.Equal(t, 104.0, p.SL)
	assert.Equal(t, 97.0, p.TP1)
	assert.Equal(t, 95.0, p.TP2)

	trades := b.Tick(map[string][]models.Candle{"SOL": {
		bar(1, 99.5, 97, 97.5),
		bar(2, 96.5, 95, 95.5),
		bar(3, 93.5, 92, 92.5),
		bar(4, 94, 93, 93.9),
	}}, entryAt.Add(25*time.Minute))
	require.Len(t, trades, 3)

	assert.Equal(t, []Reason{ReasonTP1, ReasonTP2, ReasonTrail}, []Reason{trades[0].Reason, trades[1].Reason, trades[2].Reason})
	assert.InDelta(t, 93.84, trades[2].ExitPrice, 1e-9)
	for _, tr := range trades {
		assert.Greater(t, tr.PnLPct, 0.0, "цена ниже входа: шорт в плюсе")
		assert.Less(t, tr.ExitPrice, tr.EntryPrice)
	}
}

func TestBreakevenStopAfterTP1(t *testing.T) {
	b := newBook(t)
	_, err := b.OnSignal(longSignal("BTC", 100), entryAt)
	require.NoError(t, err)

	b.Tick(map[string][]models.Candle{"BTC": {bar(1, 103.5, 101, 103)}}, entryAt.Add(10*time.Minute))
	for _, p := range b.Positions() {
		if p.TP1Hit {
			assert.GreaterOrEqual(t, p.SL, p.EntryPrice)
		}
	}

	trades := b.Tick(map[string][]models.Candle{"BTC": {bar(2, 101, 99, 99.5)}}, entryAt.Add(15*time.Minute))
	require.Len(t, trades, 1)
	assert.Equal(t, ReasonSL, trades[0].Reason)
	assert.Equal(t, 100.0, trades[0].ExitPrice)
	assert.InDelta(t, 0.6, trades[0].Fraction, 1e-12)
	assert.InDelta(t, 0.0, trades[0].PnLUSD, 1e-12)
}

func TestAdmissionGates(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.Signal)
	}{
		{"squeeze", func(s *models.Signal) { s.Kind = models.KindSqueeze }},
		{"early", func(s *models.Signal) { s.Kind = models.KindEarlyLong }},
		{"pending", func(s *models.Signal) { s.Kind = models.KindPending }},
		{"late phase", func(s *models.Signal) { s.Phase = models.PhaseLate }},
		{"overbought", func(s *models.Signal) { s.RSI = 80 }},
		{"grade C", func(s *models.Signal) { s.StrengthGrade = models.GradeC }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBook(t)
			sig := longSignal("BTC", 100)
			tt.mutate(&sig)
			_, err := b.OnSignal(sig, entryAt)
			assert.True(t, errors.Is(err, ErrRejected))
			assert.Empty(t, b.Positions())
		})
	}
}

func TestAdmissionUniqueSymbolAndLimit(t *testing.T) {
	b := newBook(t)
	_, err := b.OnSignal(longSignal("BTC", 100), entryAt)
	require.NoError(t, err)

	_, err = b.OnSignal(longSignal("BTC", 101), entryAt)
	assert.ErrorIs(t, err, ErrRejected)

	for _, s := range []string{"ETH", "SOL", "XRP", "ADA"} {
		_, err = b.OnSignal(longSignal(s, 10), entryAt)
		require.NoError(t, err)
	}
	_, err = b.OnSignal(longSignal("DOGE", 1), entryAt)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Len(t, b.Positions(), 5)
}

func TestOrderBlockRiskMode(t *testing.T) {
	cfg := config.Default().Paper
	cfg.RiskMode = "orderblock"
	cfg.OBEpsilonPct = 0
	b := NewBook(cfg, State{})

	sig := longSignal("BTC", 100)
	sig.Zone = &models.OrderBlock{Type: models.ZoneBullish, Top: 99, Bottom: 98}
	p, err := b.OnSignal(sig, entryAt)
	require.NoError(t, err)

	assert.Equal(t, 98.0, p.SL)
	assert.Equal(t, 103.0, p.TP1)
	assert.Equal(t, 105.0, p.TP2)
	assert.Equal(t, 108.0, p.TP3)
}

func TestManualCloseAndReset(t *testing.T) {
	b := newBook(t)
	_, err := b.OnSignal(longSignal("BTC", 100), entryAt)
	require.NoError(t, err)

	rec, err := b.Close("BTC", 110, entryAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, ReasonManual, rec.Reason)
	assert.InDelta(t, 100.0, rec.PnLUSD, 1e-9)

	_, err = b.Close("BTC", 110, entryAt)
	assert.ErrorIs(t, err, ErrNoPosition)

	b.Reset()
	assert.Equal(t, 10_000.0, b.Capital())
	assert.Empty(t, b.Closed())
}

func TestTickWithoutPositionsKeepsState(t *testing.T) {
	b := newBook(t)
	before := b.Snapshot()
	assert.Empty(t, b.Tick(map[string][]models.Candle{"BTC": {bar(1, 200, 1, 100)}}, entryAt))
	assert.Equal(t, before, b.Snapshot())
}

func TestRestoreFromState(t *testing.T) {
	b := newBook(t)
	_, err := b.OnSignal(longSignal("BTC", 100), entryAt)
	require.NoError(t, err)
	b.Tick(map[string][]models.Candle{"BTC": {bar(1, 103, 100.5, 102.5)}}, entryAt.Add(10*time.Minute))

	restored := NewBook(config.Default().Paper, b.Snapshot())
	assert.Equal(t, b.Capital(), restored.Capital())
	assert.Equal(t, b.Positions(), restored.Positions())

	sum := restored.Summary(map[string]float64{"BTC": 102})
	require.Len(t, sum.Open, 1)
	// 1000 * 0.6 * 2% = 12
	assert.InDelta(t, 12.0, sum.Open[0].UnrealizedUSD, 1e-9)
	assert.Equal(t, 0, sum.Trades)
}
