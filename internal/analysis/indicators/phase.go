package indicators

import (
	"github.com/markcheno/go-talib"

	"github.com/skalibog/perpsentry/pkg/models"
)

// MAPeriod период скользящей средней для фазы и структуры
const MAPeriod = 20

// ClassifyPhase положение в трендовой волне по RSI, удалению от MA и
// позиции цены в 24-часовом диапазоне; для SHORT пороги зеркальные
func ClassifyPhase(rsi, maDistPct, rangePosition float64, dir models.Direction) models.Phase {
	if dir == models.DirectionShort {
		switch {
		case rsi < 25 || maDistPct < -15 || rangePosition < 10:
			return models.PhaseLate
		case rsi < 35 || maDistPct < -8 || rangePosition < 25:
			return models.PhaseMid
		default:
			return models.PhaseLaunch
		}
	}

	switch {
	case rsi > 75 || maDistPct > 15 || rangePosition > 90:
		return models.PhaseLate
	case rsi > 65 || maDistPct > 8 || rangePosition > 75:
		return models.PhaseMid
	default:
		return models.PhaseLaunch
	}
}

// SMA последнее значение простой скользящей средней
func SMA(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period {
		return 0, false
	}
	sma := talib.Sma(closes, period)
	return sma[len(sma)-1], true
}

// MADistance удаление последней цены от SMA в процентах
func MADistance(candles []models.Candle, period int) float64 {
	cl := closePrices(candles)
	sma, ok := SMA(cl, period)
	if !ok || sma == 0 {
		return 0
	}
	return PctChange(sma, cl[len(cl)-1])
}

// RangePosition позиция цены в диапазоне [low, high] в процентах, 50 для нулевого диапазона
func RangePosition(price, low, high float64) float64 {
	if high <= low {
		return 50
	}
	pos := (price - low) / (high - low) * 100
	if pos < 0 {
		return 0
	}
	if pos > 100 {
		return 100
	}
	return pos
}
