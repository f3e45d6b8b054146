package signal

import (
	"math"
	"time"

	"github.com/skalibog/perpsentry/internal/analysis/indicators"
	"github.com/skalibog/perpsentry/pkg/models"
)

// Early результат детектора ранних импульсов на 5-минутках
type Early struct {
	Kind        models.SignalKind
	PriceChange float64
	VolRatio    float64
}

// DetectEarly проверяет последнюю свечу: |Δцены| от закрытия предыдущей и объем
// относительно среднего за lookback свечей до нее. Движение без объема дает WAIT.
func (c *Classifier) DetectEarly(candles []models.Candle) Early {
	lookback := c.config.EarlyLookback
	if len(candles) < lookback+2 {
		return Early{Kind: models.KindNone}
	}

	n := len(candles)
	last, prev := candles[n-1], candles[n-2]
	e := Early{Kind: models.KindNone, PriceChange: indicators.PctChange(prev.Close, last.Close)}

	avg := indicators.AvgVolume(candles[:n-1], lookback)
	if avg > 0 {
		e.VolRatio = last.Volume / avg
	}

	if math.Abs(e.PriceChange) < c.config.EarlyPriceChange {
		return e
	}
	if e.VolRatio < c.config.EarlyVolRatio {
		e.Kind = models.KindWait
		return e
	}
	if e.PriceChange > 0 {
		e.Kind = models.KindEarlyLong
	} else {
		e.Kind = models.KindEarlyShort
	}
	return e
}

// ClassifyEarly строит сигнал раннего импульса. OI в оценке не участвует.
func (c *Classifier) ClassifyEarly(series models.Series, ticker *models.Ticker, now time.Time) models.Signal {
	e := c.DetectEarly(series.Candles)
	last, _ := series.Last()

	sig := models.Signal{
		Timestamp:     now,
		Symbol:        series.Symbol,
		Kind:          e.Kind,
		EntryPrice:    last.Close,
		RSI:           indicators.RSI(series.Closes(), Period),
		PriceChange1h: hourChange(series),
		VolRatio:      e.VolRatio,
		Tags:          []string{"5M"},
	}

	dir := leaning(e.PriceChange)
	if d, ok := models.DirectionOf(e.Kind); ok {
		dir = d
	}
	position := 50.0
	if ticker != nil {
		position = indicators.RangePosition(last.Close, ticker.Low24h, ticker.High24h)
	}
	sig.Phase = indicators.ClassifyPhase(sig.RSI, indicators.MADistance(series.Candles, indicators.MAPeriod), position, dir)

	sig.StrengthScore = StrengthScore(e.Kind, sig.RSI, e.VolRatio, 0, e.PriceChange)
	sig.StrengthGrade = models.GradeFromScore(sig.StrengthScore)
	return sig
}
