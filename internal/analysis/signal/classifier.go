package signal

import (
	"math"
	"time"

	"github.com/skalibog/perpsentry/internal/analysis/indicators"
	"github.com/skalibog/perpsentry/internal/config"
	"github.com/skalibog/perpsentry/pkg/models"
)

// Теги сигнала
const (
	TagOBSupport  = "OB_SUPPORT"
	TagOBResist   = "OB_RESIST"
	TagFVGBull    = "FVG_BULL"
	TagFVGBear    = "FVG_BEAR"
	TagADXTrend   = "ADX_TREND"
	TagStructUp   = "STRUCT_UP"
	TagStructDown = "STRUCT_DOWN"
)

const (
	// obNearPct цена считается у зоны, если до нее не больше 1%
	obNearPct = 1.0
	// fvgRecentBars FVG учитывается только среди последних свечей
	fvgRecentBars = 10
	// structureStrong порог структуры для тега
	structureStrong = 50
)

// Classifier сводит индикаторы и изменения OI/цены в сигнал
type Classifier struct {
	config config.SignalConfig
}

// NewClassifier создает классификатор
func NewClassifier(cfg config.SignalConfig) *Classifier {
	return &Classifier{config: cfg}
}

// Kind направление по таблице OI/цена, первое совпадение
func (c *Classifier) Kind(oiChange, priceChange float64) models.SignalKind {
	oiT, pT := c.config.OIThreshold, c.config.PriceThreshold
	switch {
	case oiChange > oiT && priceChange > pT:
		return models.KindLong
	case oiChange > oiT && priceChange < -pT:
		return models.KindShort
	case oiChange < -oiT && priceChange > pT:
		return models.KindSqueeze
	case oiChange < -oiT && priceChange < -pT:
		return models.KindShakeout
	case math.Abs(oiChange) > c.config.PendingOI && math.Abs(priceChange) < c.config.PendingPrice:
		return models.KindPending
	default:
		return models.KindNone
	}
}

// Classify строит сигнал по набору индикаторов. Без наблюдения OI сигнал NONE.
func (c *Classifier) Classify(b Bundle, now time.Time) models.Signal {
	sig := models.Signal{
		Timestamp:     now,
		Symbol:        b.Symbol,
		Kind:          models.KindNone,
		EntryPrice:    b.Price,
		RSI:           b.RSI,
		Phase:         b.Phase,
		OIChange:      b.OIChange1h,
		PriceChange1h: b.PriceChange1h,
		VolRatio:      b.VolRatio,
	}
	if !b.HasOI {
		sig.StrengthGrade = models.GradeC
		return sig
	}

	sig.Kind = c.Kind(b.OIChange1h, b.PriceChange1h)
	if dir, ok := models.DirectionOf(sig.Kind); ok {
		sig.Phase = b.PhaseFor(dir)
		if zone, ok := alignedZone(b, dir); ok {
			sig.Zone = &zone
		}
	}

	sig.StrengthScore = StrengthScore(sig.Kind, b.RSI, b.VolRatio, b.OIChange1h, b.PriceChange1h)
	sig.StrengthGrade = models.GradeFromScore(sig.StrengthScore)
	sig.Admissible = sig.Kind.IsDirectional() && !Vetoed(sig.Kind, sig.Phase, sig.RSI)
	sig.Tags = c.tags(b)
	return sig
}

func (c *Classifier) tags(b Bundle) []string {
	var tags []string

	if ob, ok := indicators.NearestOrderBlock(b.OrderBlocks, models.ZoneBullish, b.Price); ok &&
		(ob.Contains(b.Price) || (b.Price-ob.Top)/b.Price*100 <= obNearPct) {
		tags = append(tags, TagOBSupport)
	}
	if ob, ok := indicators.NearestOrderBlock(b.OrderBlocks, models.ZoneBearish, b.Price); ok &&
		(ob.Contains(b.Price) || (ob.Bottom-b.Price)/b.Price*100 <= obNearPct) {
		tags = append(tags, TagOBResist)
	}

	var bull, bear bool
	for _, gap := range b.FVGs {
		if gap.Index < b.Bars-1-fvgRecentBars {
			continue
		}
		if gap.Type == models.ZoneBullish {
			bull = true
		} else {
			bear = true
		}
	}
	if bull {
		tags = append(tags, TagFVGBull)
	}
	if bear {
		tags = append(tags, TagFVGBear)
	}

	if b.HasADX && b.ADX >= c.config.ADXTrend {
		tags = append(tags, TagADXTrend)
	}
	switch {
	case b.Structure >= structureStrong:
		tags = append(tags, TagStructUp)
	case b.Structure <= -structureStrong:
		tags = append(tags, TagStructDown)
	}
	return tags
}

// alignedZone зона для риск-менеджмента: поддержка для лонга, сопротивление для шорта
func alignedZone(b Bundle, dir models.Direction) (models.OrderBlock, bool) {
	if dir == models.DirectionLong {
		return indicators.NearestOrderBlock(b.OrderBlocks, models.ZoneBullish, b.Price)
	}
	return indicators.NearestOrderBlock(b.OrderBlocks, models.ZoneBearish, b.Price)
}
