package indicators

import "github.com/skalibog/perpsentry/pkg/models"

// StructureScore оценка структуры рынка в диапазоне [-100, 100]:
// сумма четырех компонент по ±25 (HH/LH, HL/LL, цена к SMA20, пробой последнего свинга)
func StructureScore(candles []models.Candle, swingLength int) int {
	if len(candles) == 0 {
		return 0
	}
	score := 0
	last := candles[len(candles)-1]

	highs := SwingHighs(candles, swingLength)
	lows := SwingLows(candles, swingLength)

	if n := len(highs); n >= 2 {
		switch h1, h0 := candles[highs[n-1]].High, candles[highs[n-2]].High; {
		case h1 > h0:
			score += 25
		case h1 < h0:
			score -= 25
		}
	}
	if n := len(lows); n >= 2 {
		switch l1, l0 := candles[lows[n-1]].Low, candles[lows[n-2]].Low; {
		case l1 > l0:
			score += 25
		case l1 < l0:
			score -= 25
		}
	}

	if sma, ok := SMA(closePrices(candles), MAPeriod); ok {
		switch {
		case last.Close > sma:
			score += 25
		case last.Close < sma:
			score -= 25
		}
	}

	switch {
	case len(highs) > 0 && last.Close > candles[highs[len(highs)-1]].High:
		score += 25
	case len(lows) > 0 && last.Close < candles[lows[len(lows)-1]].Low:
		score -= 25
	}
	return score
}
