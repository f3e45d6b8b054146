package indicators

import (
	"github.com/skalibog/perpsentry/pkg/models"
)

const (
	obLookback     = 5
	obVolumeWindow = 50
	obMinVolRatio  = 0.5
	obMaxTests     = 3
)

// SwingHighs индексы свечей, чей high строго выше L соседей с каждой стороны
func SwingHighs(candles []models.Candle, length int) []int {
	return swings(candles, length, func(a, b models.Candle) bool { return a.High > b.High })
}

// SwingLows индексы свечей, чей low строго ниже L соседей с каждой стороны
func SwingLows(candles []models.Candle, length int) []int {
	return swings(candles, length, func(a, b models.Candle) bool { return a.Low < b.Low })
}

func swings(candles []models.Candle, length int, beats func(a, b models.Candle) bool) []int {
	if length <= 0 {
		return nil
	}
	var out []int
	for i := length; i < len(candles)-length; i++ {
		ok := true
		for j := 1; j <= length && ok; j++ {
			ok = beats(candles[i], candles[i-j]) && beats(candles[i], candles[i+j])
		}
		if ok {
			out = append(out, i)
		}
	}
	return out
}

// OrderBlocks активные зоны: не пробиты закрытием и протестированы не более трех раз
func OrderBlocks(candles []models.Candle, swingLength int) []models.OrderBlock {
	type key struct {
		t   models.ZoneType
		idx int
	}
	seen := make(map[key]bool)
	var out []models.OrderBlock

	add := func(swing int, t models.ZoneType) {
		j, ok := originCandle(candles, swing, t)
		if !ok || seen[key{t, j}] {
			return
		}
		seen[key{t, j}] = true

		ob, ok := buildOrderBlock(candles, swing, j, t)
		if !ok || ob.Invalidated || ob.Tests > obMaxTests {
			return
		}
		out = append(out, ob)
	}

	for _, i := range SwingHighs(candles, swingLength) {
		add(i, models.ZoneBearish)
	}
	for _, i := range SwingLows(candles, swingLength) {
		add(i, models.ZoneBullish)
	}
	return out
}

// originCandle ближайшая встречная свеча не дальше obLookback назад от свинга:
// растущая для медвежьего блока, падающая для бычьего
func originCandle(candles []models.Candle, swing int, t models.ZoneType) (int, bool) {
	for j := swing; j >= 0 && j >= swing-obLookback; j-- {
		c := candles[j]
		if (t == models.ZoneBearish && c.IsUp()) || (t == models.ZoneBullish && c.IsDown()) {
			return j, true
		}
	}
	return 0, false
}

func buildOrderBlock(candles []models.Candle, swing, j int, t models.ZoneType) (models.OrderBlock, bool) {
	from := j - obVolumeWindow
	if from < 0 {
		from = 0
	}
	avg := mean(volumeSeries(candles[from:j]))
	if avg <= 0 {
		return models.OrderBlock{}, false
	}
	volRatio := candles[j].Volume / avg
	if volRatio < obMinVolRatio {
		return models.OrderBlock{}, false
	}

	ob := models.OrderBlock{
		Type:        t,
		Top:         candles[j].High,
		Bottom:      candles[j].Low,
		FormedIndex: j,
		VolRatio:    volRatio,
		Age:         len(candles) - 1 - j,
	}

	for k := j + 1; k < len(candles); k++ {
		c := candles[k]
		switch t {
		case models.ZoneBullish:
			if c.Close < ob.Bottom {
				ob.Invalidated = true
			} else if k > swing && c.Low <= ob.Top {
				ob.Tests++
			}
		case models.ZoneBearish:
			if c.Close > ob.Top {
				ob.Invalidated = true
			} else if k > swing && c.High >= ob.Bottom {
				ob.Tests++
			}
		}
		if ob.Invalidated {
			break
		}
	}
	return ob, true
}

// NearestOrderBlock ближайший к цене активный блок заданного типа по его стороне от цены:
// бычий снизу или вокруг цены, медвежий сверху или вокруг
func NearestOrderBlock(obs []models.OrderBlock, t models.ZoneType, price float64) (models.OrderBlock, bool) {
	var best models.OrderBlock
	found := false
	bestDist := 0.0
	for _, ob := range obs {
		if ob.Type != t {
			continue
		}
		if (t == models.ZoneBullish && ob.Bottom > price) || (t == models.ZoneBearish && ob.Top < price) {
			continue
		}
		d := distanceToZone(ob, price)
		if !found || d < bestDist {
			best, bestDist, found = ob, d, true
		}
	}
	return best, found
}

func distanceToZone(ob models.OrderBlock, price float64) float64 {
	switch {
	case price > ob.Top:
		return price - ob.Top
	case price < ob.Bottom:
		return ob.Bottom - price
	default:
		return 0
	}
}

// FVGAt разрыв на трех свечах с центром в i.
// Бычий: high[i+1] < low[i-1], медвежий зеркально: low[i+1] > high[i-1].
func FVGAt(candles []models.Candle, i int) (models.FVG, bool) {
	if i < 1 || i+1 >= len(candles) {
		return models.FVG{}, false
	}
	prev, next := candles[i-1], candles[i+1]
	switch {
	case next.High < prev.Low:
		return models.FVG{Type: models.ZoneBullish, Index: i, Top: prev.Low, Bottom: next.High}, true
	case next.Low > prev.High:
		return models.FVG{Type: models.ZoneBearish, Index: i, Top: next.Low, Bottom: prev.High}, true
	default:
		return models.FVG{}, false
	}
}

// FVGs все разрывы ряда шириной не меньше minPct процентов от текущей цены
func FVGs(candles []models.Candle, minPct float64) []models.FVG {
	last, ok := models.Series{Candles: candles}.Last()
	if !ok || last.Close <= 0 {
		return nil
	}
	var out []models.FVG
	for i := 1; i+1 < len(candles); i++ {
		gap, ok := FVGAt(candles, i)
		if ok && gap.SizePct(last.Close) >= minPct {
			out = append(out, gap)
		}
	}
	return out
}
