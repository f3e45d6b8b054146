package signal

import (
	"time"

	"github.com/skalibog/perpsentry/internal/analysis/indicators"
	"github.com/skalibog/perpsentry/pkg/models"
)

const (
	// Period период RSI, ATR и ADX
	Period = 14
	// AvgVolWindow окно среднего объема
	AvgVolWindow = 50
	// MinCandles минимальная история для набора индикаторов
	MinCandles = 2*Period + 2
	// FVGMinPct минимальная ширина отдельного FVG в процентах от цены
	FVGMinPct = 0.3
)

// Bundle набор индикаторов символа на одном таймфрейме
type Bundle struct {
	Symbol         string
	Interval       string
	Bars           int
	Price          float64
	RSI            float64
	ATR            float64
	ADX            float64
	PlusDI         float64
	MinusDI        float64
	HasADX         bool
	AvgVol50       float64
	VolRatio       float64
	Phase          models.Phase
	MADistance     float64
	RangePosition  float64
	PriceChange1h  float64
	PriceChange24h float64
	OIChange1h     float64
	HasOI          bool
	Structure      int
	OrderBlocks    []models.OrderBlock
	FVGs           []models.FVG
}

// Inputs сырые данные для сборки набора
type Inputs struct {
	Series   models.Series
	Ticker   *models.Ticker
	OIChange *float64 // nil: наблюдения нет
}

// BuildBundle считает индикаторы. При короткой истории возвращает indicators.ErrUnderflow.
func BuildBundle(in Inputs, volRecent, volPrior, swingLength int) (Bundle, error) {
	candles := in.Series.Candles
	if err := indicators.Require(candles, MinCandles); err != nil {
		return Bundle{}, err
	}

	closes := in.Series.Closes()
	last := candles[len(candles)-1]
	b := Bundle{
		Symbol:     in.Series.Symbol,
		Interval:   in.Series.Interval,
		Bars:       len(candles),
		Price:      last.Close,
		RSI:        indicators.RSI(closes, Period),
		ATR:        indicators.ATR(candles, Period),
		AvgVol50:   indicators.AvgVolume(candles, AvgVolWindow),
		MADistance: indicators.MADistance(candles, indicators.MAPeriod),
		Structure:  indicators.StructureScore(candles, swingLength),
	}

	if dmi, ok := indicators.LastADX(candles, Period); ok {
		b.ADX, b.PlusDI, b.MinusDI, b.HasADX = dmi.ADX, dmi.PlusDI, dmi.MinusDI, true
	}
	b.VolRatio, _ = indicators.VolumeRatio(candles, volRecent, volPrior)
	b.PriceChange1h = hourChange(in.Series)

	// Диапазон 24ч берется из тикера, без тикера из самих свечей
	low, high := seriesRange(candles, 24*time.Hour, in.Series.Interval)
	if in.Ticker != nil {
		b.PriceChange24h = in.Ticker.PriceChangePercent
		if in.Ticker.High24h > 0 && in.Ticker.Low24h > 0 {
			low, high = in.Ticker.Low24h, in.Ticker.High24h
		}
	}
	b.RangePosition = indicators.RangePosition(b.Price, low, high)

	if in.OIChange != nil {
		b.OIChange1h, b.HasOI = *in.OIChange, true
	}

	b.OrderBlocks = indicators.OrderBlocks(candles, swingLength)
	b.FVGs = indicators.FVGs(candles, FVGMinPct)
	b.Phase = b.PhaseFor(leaning(b.PriceChange1h))
	return b, nil
}

// PhaseFor фаза с порогами для заданного направления
func (b Bundle) PhaseFor(dir models.Direction) models.Phase {
	return indicators.ClassifyPhase(b.RSI, b.MADistance, b.RangePosition, dir)
}

func leaning(change float64) models.Direction {
	if change < 0 {
		return models.DirectionShort
	}
	return models.DirectionLong
}

// hourChange изменение цены за последний час по свечам ряда
func hourChange(s models.Series) float64 {
	step := models.IntervalDuration(s.Interval)
	bars := int(time.Hour / step)
	if bars < 1 {
		bars = 1
	}
	n := len(s.Candles)
	if n <= bars {
		return 0
	}
	return indicators.PctChange(s.Candles[n-1-bars].Close, s.Candles[n-1].Close)
}

func seriesRange(candles []models.Candle, window time.Duration, interval string) (float64, float64) {
	bars := int(window / models.IntervalDuration(interval))
	if bars < 1 || bars > len(candles) {
		bars = len(candles)
	}
	low, high := 0.0, 0.0
	for i, c := range candles[len(candles)-bars:] {
		if i == 0 || c.Low < low {
			low = c.Low
		}
		if i == 0 || c.High > high {
			high = c.High
		}
	}
	return low, high
}
