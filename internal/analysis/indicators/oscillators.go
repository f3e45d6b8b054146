package indicators

import (
	"math"

	"github.com/skalibog/perpsentry/pkg/models"
)

// RSI индекс относительной силы со сглаживанием Уайлдера.
// 50 при нехватке данных или плоском ряде, 100 если убытков в окне нет.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return 50
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}

	if avgGain == 0 && avgLoss == 0 {
		return 50
	}
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

func trueRange(cur, prev models.Candle) float64 {
	return math.Max(cur.High-cur.Low, math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))
}

// ATR средний истинный диапазон за последние period свечей, 0 при нехватке данных
func ATR(candles []models.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}
	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += trueRange(candles[i], candles[i-1])
	}
	return sum / float64(period)
}

// DMI значения ADX и направленных индикаторов в одной точке
type DMI struct {
	ADX     float64
	PlusDI  float64
	MinusDI float64
}

// ADX ряд ADX/+DI/-DI по Уайлдеру. Точки с нулевым делителем пропускаются,
// на вырожденном ряде результат пустой.
func ADX(candles []models.Candle, period int) []DMI {
	if period <= 0 || len(candles) < period+1 {
		return nil
	}

	n := len(candles) - 1
	tr := make([]float64, n)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < len(candles); i++ {
		cur, prev := candles[i], candles[i-1]
		up := cur.High - prev.High
		down := prev.Low - cur.Low
		if up > down && up > 0 {
			plusDM[i-1] = up
		}
		if down > up && down > 0 {
			minusDM[i-1] = down
		}
		tr[i-1] = trueRange(cur, prev)
	}

	// Первое сглаженное значение это сумма первых period значений
	var sTR, sPlus, sMinus float64
	for i := 0; i < period; i++ {
		sTR += tr[i]
		sPlus += plusDM[i]
		sMinus += minusDM[i]
	}

	type point struct{ dx, plusDI, minusDI float64 }
	points := make([]point, 0, n-period+1)
	push := func() {
		if sTR == 0 {
			return
		}
		pdi := 100 * sPlus / sTR
		mdi := 100 * sMinus / sTR
		if pdi+mdi == 0 {
			return
		}
		points = append(points, point{dx: math.Abs(pdi-mdi) / (pdi + mdi) * 100, plusDI: pdi, minusDI: mdi})
	}

	push()
	p := float64(period)
	for i := period; i < n; i++ {
		sTR = sTR - sTR/p + tr[i]
		sPlus = sPlus - sPlus/p + plusDM[i]
		sMinus = sMinus - sMinus/p + minusDM[i]
		push()
	}

	if len(points) < period {
		return nil
	}

	adx := 0.0
	for i := 0; i < period; i++ {
		adx += points[i].dx
	}
	adx /= p

	out := make([]DMI, 0, len(points)-period+1)
	last := points[period-1]
	out = append(out, DMI{ADX: adx, PlusDI: last.plusDI, MinusDI: last.minusDI})
	for i := period; i < len(points); i++ {
		adx = (adx*(p-1) + points[i].dx) / p
		out = append(out, DMI{ADX: adx, PlusDI: points[i].plusDI, MinusDI: points[i].minusDI})
	}
	return out
}

// LastADX последняя точка ряда ADX
func LastADX(candles []models.Candle, period int) (DMI, bool) {
	series := ADX(candles, period)
	if len(series) == 0 {
		return DMI{}, false
	}
	return series[len(series)-1], true
}
