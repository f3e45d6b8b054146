package paper

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/skalibog/perpsentry/pkg/models"
)

// Tick прогоняет открытые позиции по новым свечам (от старых к новым) и
// возвращает реализации. Свечи до входа, уже учтенные и еще не закрытые
// к моменту now пропускаются.
// Внутри свечи порядок: SL, TP1, TP2, трейлинг/TP3, время.
func (b *Book) Tick(bars map[string][]models.Candle, now time.Time) []ClosedTrade {
	var out []ClosedTrade
	kept := b.positions[:0]

	for _, p := range b.positions {
		candles := bars[p.Symbol]
		lastClose := 0.0

		for _, c := range candles {
			if c.OpenTime < p.EntryTime.UnixMilli() || c.OpenTime <= p.LastBar {
				continue
			}
			// незакрытая свеча еще изменится, ее разберет следующий тик
			if c.CloseTime >= now.UnixMilli() {
				continue
			}
			p.LastBar = c.OpenTime
			lastClose = c.Close
			out = append(out, b.step(&p, c)...)
			if !p.Open() {
				break
			}
			if deadline := p.EntryTime.Add(b.timeExit()); !time.UnixMilli(c.CloseTime).Before(deadline) {
				out = append(out, b.realize(&p, p.RemainingPct, c.Close, ReasonTime, time.UnixMilli(c.CloseTime).UTC()))
				break
			}
		}

		if p.Open() && lastClose > 0 && now.Sub(p.EntryTime) >= b.timeExit() {
			out = append(out, b.realize(&p, p.RemainingPct, lastClose, ReasonTime, now))
		}
		if p.Open() {
			kept = append(kept, p)
		}
	}

	b.positions = kept
	return out
}

func (b *Book) timeExit() time.Duration {
	return time.Duration(b.config.TimeExitHours * float64(time.Hour))
}

// step разбирает одну свечу для позиции
func (b *Book) step(p *Position, c models.Candle) []ClosedTrade {
	var out []ClosedTrade
	at := time.UnixMilli(c.CloseTime).UTC()
	long := p.isLong()

	// adverse/favorable экстремумы свечи для направления позиции
	adverse, favorable := c.Low, c.High
	if !long {
		adverse, favorable = c.High, c.Low
	}
	reached := func(level, price float64) bool {
		if long {
			return price >= level
		}
		return price <= level
	}
	breached := func(level, price float64) bool {
		if long {
			return price <= level
		}
		return price >= level
	}

	// 1. SL всегда раньше TP: консервативный случай, когда в свече возможны оба
	if breached(p.SL, adverse) {
		return append(out, b.realize(p, p.RemainingPct, p.SL, ReasonSL, at))
	}

	// 2. TP1: 40%, стоп в безубыток
	if !p.TP1Hit && reached(p.TP1, favorable) {
		out = append(out, b.realize(p, tp1Fraction, p.TP1, ReasonTP1, at))
		p.TP1Hit = true
		p.SL = p.EntryPrice
	}

	// 3. TP2: еще 30%, дальше трейлинг остатка
	if p.TP1Hit && !p.TP2Hit && reached(p.TP2, favorable) {
		out = append(out, b.realize(p, tp2Fraction, p.TP2, ReasonTP2, at))
		p.TP2Hit = true
		p.Peak = p.TP2
	}

	// 4. Трейлинг последнего транша: пик обновляется до проверки
	if p.TP2Hit && p.Open() {
		if reached(p.Peak, favorable) {
			p.Peak = favorable
		}
		p.TrailStop = b.trailFrom(*p)
		switch {
		case p.TP3 > 0 && reached(p.TP3, favorable):
			out = append(out, b.realize(p, p.RemainingPct, p.TP3, ReasonTP3, at))
		case breached(p.TrailStop, adverse):
			out = append(out, b.realize(p, p.RemainingPct, p.TrailStop, ReasonTrail, at))
		}
	}
	return out
}

// trailFrom стоп на фиксированном проценте от лучшей цены, не хуже безубытка
func (b *Book) trailFrom(p Position) float64 {
	gap := decimal.NewFromFloat(b.config.TrailPct).Div(hundred)
	peak := decimal.NewFromFloat(p.Peak)
	var stop decimal.Decimal
	if p.isLong() {
		stop = peak.Mul(decimal.NewFromInt(1).Sub(gap))
		if s := stop.InexactFloat64(); s < p.SL {
			return p.SL
		}
	} else {
		stop = peak.Mul(decimal.NewFromInt(1).Add(gap))
		if s := stop.InexactFloat64(); s > p.SL {
			return p.SL
		}
	}
	return stop.InexactFloat64()
}
