// internal/analysis/oianalysis/analyzer.go
package oianalysis

import (
	"math"
	"sort"
	"time"

	"github.com/skalibog/perpsentry/internal/config"
	"github.com/skalibog/perpsentry/pkg/models"
)

// Delta изменение OI и цены символа относительно предыдущего снимка
type Delta struct {
	Symbol      string
	OIChange    float64 // %
	PriceChange float64 // %
	OIUSD       float64
}

// Change считает изменение OI против снимка не старше maxAge.
// ok=false означает отсутствие наблюдения: снимка нет, он устарел или символа в нем нет.
func Change(prev *models.OISnapshot, symbol string, cur models.OIPoint, now time.Time, maxAge time.Duration) (Delta, bool) {
	if prev == nil || prev.Data == nil {
		return Delta{}, false
	}
	if maxAge > 0 && now.Sub(prev.Timestamp) > maxAge {
		return Delta{}, false
	}
	p, ok := prev.Data[symbol]
	if !ok || p.OI <= 0 {
		return Delta{}, false
	}

	d := Delta{
		Symbol:   symbol,
		OIChange: (cur.OI - p.OI) / p.OI * 100,
		OIUSD:    cur.OI * cur.Price,
	}
	if p.Price > 0 {
		d.PriceChange = (cur.Price - p.Price) / p.Price * 100
	}
	return d, true
}

// Move заметное изменение OI для 5-минутного сканера
type Move struct {
	Delta
	Kind    models.SignalKind
	Extreme bool
}

// Analyzer реализует сканер резких изменений открытого интереса
type Analyzer struct {
	config config.OI5MinConfig
}

// NewAnalyzer создает новый анализатор открытого интереса
func NewAnalyzer(cfg config.OI5MinConfig) *Analyzer {
	return &Analyzer{
		config: cfg,
	}
}

// Moves сравнивает текущий снимок с предыдущим и возвращает символы,
// где |ΔOI| не меньше порога, от самых сильных к слабым
func (a *Analyzer) Moves(prev *models.OISnapshot, cur models.OISnapshot, maxAge time.Duration) []Move {
	var out []Move
	for symbol, point := range cur.Data {
		d, ok := Change(prev, symbol, point, cur.Timestamp, maxAge)
		if !ok || math.Abs(d.OIChange) < a.config.ChangeThreshold {
			continue
		}
		out = append(out, Move{
			Delta:   d,
			Kind:    kindOf(d),
			Extreme: math.Abs(d.OIChange) >= a.config.Extreme,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		ai, aj := math.Abs(out[i].OIChange), math.Abs(out[j].OIChange)
		if ai != aj {
			return ai > aj
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// kindOf направление по знакам изменений OI и цены
func kindOf(d Delta) models.SignalKind {
	switch {
	case d.PriceChange == 0:
		return models.KindPending
	case d.OIChange > 0 && d.PriceChange > 0:
		return models.KindLong
	case d.OIChange > 0:
		return models.KindShort
	case d.PriceChange > 0:
		return models.KindSqueeze
	default:
		return models.KindShakeout
	}
}
