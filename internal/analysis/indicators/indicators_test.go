package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skalibog/perpsentry/pkg/models"
)

func candle(o, h, l, c, v float64) models.Candle {
	return models.Candle{Open: o, High: h, Low: l, Close: c, Volume: v}
}

func flat(n int) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = candle(110, 111, 109, 110.5, 100)
		out[i].OpenTime = int64(i) * 60_000
	}
	return out
}

func TestRSIEdgeCases(t *testing.T) {
	up := make([]float64, 30)
	down := make([]float64, 30)
	constant := make([]float64, 30)
	for i := range up {
		up[i] = 100 + float64(i)
		down[i] = 100 - float64(i)
		constant[i] = 100
	}

	assert.Equal(t, 100.0, RSI(up, 14))
	assert.Equal(t, 0.0, RSI(down, 14))
	assert.Equal(t, 50.0, RSI(constant, 14))
	assert.Equal(t, 50.0, RSI(up[:10], 14), "мало данных")
}

func TestRSIMixedSeriesInRange(t *testing.T) {
	closes := []float64{44, 44.3, 44.1, 44.5, 43.9, 44.6, 45.2, 45.1, 45.6, 46.2, 46.0, 46.4, 46.2, 45.6, 46.2, 46.3, 46.0, 46.4}
	rsi := RSI(closes, 14)
	assert.Greater(t, rsi, 50.0)
	assert.Less(t, rsi, 100.0)
}

func TestATR(t *testing.T) {
	cs := flat(20)
	assert.InDelta(t, 2.0, ATR(cs, 14), 1e-9)
	assert.Equal(t, 0.0, ATR(cs[:10], 14))
}

func alternating(n int) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = candle(100.5, 102, 100, 101.5, 100)
		} else {
			out[i] = candle(100.5, 101, 99, 99.5, 100)
		}
	}
	return out
}

func TestADXAlternatingSeriesIsFlat(t *testing.T) {
	dmi, ok := LastADX(alternating(120), 14)
	require.True(t, ok)
	assert.Less(t, dmi.ADX, 5.0)
}

func TestADXTrendingSeries(t *testing.T) {
	cs := make([]models.Candle, 60)
	for i := range cs {
		base := 100 + float64(i)
		cs[i] = candle(base, base+1.5, base-0.5, base+1, 100)
	}
	dmi, ok := LastADX(cs, 14)
	require.True(t, ok)
	assert.Greater(t, dmi.ADX, 50.0)
	assert.Greater(t, dmi.PlusDI, dmi.MinusDI)
}

func TestADXDegenerateSeriesIsEmpty(t *testing.T) {
	cs := make([]models.Candle, 40)
	for i := range cs {
		cs[i] = candle(100, 100, 100, 100, 1)
	}
	assert.Empty(t, ADX(cs, 14))
	assert.Empty(t, ADX(cs[:5], 14))
}

func TestSwingsIgnoreEdgesAndTies(t *testing.T) {
	cs := flat(11)
	cs[5] = candle(110, 115, 109, 110.5, 100)
	cs[0] = candle(110, 120, 100, 110.5, 100)
	cs[7] = candle(110, 111, 105, 110.5, 100)
	cs[8] = candle(110, 111, 105, 110.5, 100)

	assert.Equal(t, []int{5}, SwingHighs(cs, 3))
	assert.Empty(t, SwingLows(cs, 3), "равные минимумы не свинг, край ряда тоже")
}

// bullishZoneSeries: падающая свеча 50 образует бычий блок [100, 102]
func bullishZoneSeries() []models.Candle {
	cs := flat(71)
	cs[50] = candle(101.5, 102, 100, 100.5, 100)
	return cs
}

func findBlock(obs []models.OrderBlock, t models.ZoneType, idx int) (models.OrderBlock, bool) {
	for _, ob := range obs {
		if ob.Type == t && ob.FormedIndex == idx {
			return ob, true
		}
	}
	return models.OrderBlock{}, false
}

func TestOrderBlockFormation(t *testing.T) {
	cs := bullishZoneSeries()
	ob, ok := findBlock(OrderBlocks(cs, 3), models.ZoneBullish, 50)
	require.True(t, ok)

	assert.Equal(t, 102.0, ob.Top)
	assert.Equal(t, 100.0, ob.Bottom)
	assert.Equal(t, 0, ob.Tests)
	assert.Equal(t, 20, ob.Age)
	assert.InDelta(t, 1.0, ob.VolRatio, 1e-9)
	assert.False(t, ob.Invalidated)
}

func TestOrderBlockInvalidatedByClose(t *testing.T) {
	cs := bullishZoneSeries()
	cs[60] = candle(110, 111, 98, 99, 100)

	obs := OrderBlocks(cs, 3)
	_, ok := findBlock(obs, models.ZoneBullish, 50)
	assert.False(t, ok, "закрытие ниже 100 ломает блок, восстановление цены не возвращает его")

	for _, ob := range obs {
		for k := ob.FormedIndex + 1; k < len(cs); k++ {
			if ob.Type == models.ZoneBullish {
				assert.GreaterOrEqual(t, cs[k].Close, ob.Bottom)
			} else {
				assert.LessOrEqual(t, cs[k].Close, ob.Top)
			}
		}
	}
}

func TestOrderBlockDroppedAfterTooManyTests(t *testing.T) {
	cs := bullishZoneSeries()
	for _, k := range []int{56, 58, 62, 64} {
		cs[k] = candle(110, 111, 101, 110.5, 100)
	}
	_, ok := findBlock(OrderBlocks(cs, 3), models.ZoneBullish, 50)
	assert.False(t, ok)

	cs[64] = flat(1)[0]
	ob, ok := findBlock(OrderBlocks(cs, 3), models.ZoneBullish, 50)
	require.True(t, ok)
	assert.Equal(t, 3, ob.Tests)
}

func TestOrderBlockLowVolumeDiscarded(t *testing.T) {
	cs := bullishZoneSeries()
	cs[50].Volume = 10
	_, ok := findBlock(OrderBlocks(cs, 3), models.ZoneBullish, 50)
	assert.False(t, ok)
}

func TestFVG(t *testing.T) {
	cs := []models.Candle{
		candle(105, 106, 104, 104.5, 1),
		candle(104, 104.5, 100, 100.5, 1),
		candle(100.5, 101, 99, 100, 1),
	}
	gap, ok := FVGAt(cs, 1)
	require.True(t, ok)
	assert.Equal(t, models.ZoneBullish, gap.Type)
	assert.Equal(t, 104.0, gap.Top)
	assert.Equal(t, 101.0, gap.Bottom)

	assert.Len(t, FVGs(cs, 0.3), 1)
	assert.Empty(t, FVGs(cs, 5), "разрыв 3 при цене 100 меньше 5%")

	up := []models.Candle{
		candle(99, 100, 98, 99.5, 1),
		candle(100, 104, 99.5, 103.5, 1),
		candle(103.5, 105, 103, 104, 1),
	}
	gap, ok = FVGAt(up, 1)
	require.True(t, ok)
	assert.Equal(t, models.ZoneBearish, gap.Type)
	assert.Equal(t, 103.0, gap.Top)
	assert.Equal(t, 100.0, gap.Bottom)

	_, ok = FVGAt(flat(3), 1)
	assert.False(t, ok)
}

func TestVolumeRatio(t *testing.T) {
	cs := flat(23)
	for i := 20; i < 23; i++ {
		cs[i].Volume = 250
	}
	ratio, ok := VolumeRatio(cs, 3, 20)
	require.True(t, ok)
	assert.InDelta(t, 2.5, ratio, 1e-9)

	_, ok = VolumeRatio(cs[:10], 3, 20)
	assert.False(t, ok)
}

func TestClassifyPhase(t *testing.T) {
	tests := []struct {
		name     string
		rsi      float64
		maDist   float64
		position float64
		dir      models.Direction
		want     models.Phase
	}{
		{"long launch", 55, 3, 50, models.DirectionLong, models.PhaseLaunch},
		{"long mid by rsi", 68, 3, 50, models.DirectionLong, models.PhaseMid},
		{"long mid by ma", 55, 9, 50, models.DirectionLong, models.PhaseMid},
		{"long late by range", 55, 3, 95, models.DirectionLong, models.PhaseLate},
		{"long late by rsi", 80, 3, 50, models.DirectionLong, models.PhaseLate},
		{"short launch", 45, -3, 50, models.DirectionShort, models.PhaseLaunch},
		{"short mid", 32, -3, 50, models.DirectionShort, models.PhaseMid},
		{"short late", 45, -16, 50, models.DirectionShort, models.PhaseLate},
		{"short late by range", 45, -3, 5, models.DirectionShort, models.PhaseLate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyPhase(tt.rsi, tt.maDist, tt.position, tt.dir))
		})
	}
}

func TestRangePosition(t *testing.T) {
	assert.Equal(t, 50.0, RangePosition(10, 10, 10))
	assert.Equal(t, 75.0, RangePosition(107.5, 100, 110))
	assert.Equal(t, 100.0, RangePosition(120, 100, 110))
}

func TestStructureScoreUptrend(t *testing.T) {
	var cs []models.Candle
	price := 100.0
	// зигзаг вверх: каждое колебание выше предыдущего
	for leg := 0; leg < 6; leg++ {
		for i := 0; i < 5; i++ {
			price += 2
			cs = append(cs, candle(price-1, price+0.5, price-1.5, price, 100))
		}
		for i := 0; i < 4; i++ {
			price -= 1.5
			cs = append(cs, candle(price+1, price+1.5, price-0.5, price, 100))
		}
	}
	for i := 0; i < 8; i++ {
		price += 3
		cs = append(cs, candle(price-2, price+0.5, price-2.5, price, 100))
	}

	score := StructureScore(cs, 2)
	assert.Equal(t, 100, score)
	assert.Equal(t, 0, StructureScore(nil, 2))
}

func TestMADistance(t *testing.T) {
	cs := flat(25)
	cs[24] = candle(110, 121.5, 110, 121.55, 100)
	// SMA20 = (19*110.5 + 121.55) / 20
	sma := (19*110.5 + 121.55) / 20
	assert.InDelta(t, (121.55-sma)/sma*100, MADistance(cs, MAPeriod), 1e-9)
}
