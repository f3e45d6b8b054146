// Package tracker решает, отправлять ли алерт по наблюдению символа и с каким тегом.
package tracker

import (
	"sort"
	"time"

	"github.com/skalibog/perpsentry/internal/config"
	"github.com/skalibog/perpsentry/pkg/models"
)

// Tag результат наблюдения
type Tag string

const (
	TagNew        Tag = "NEW"
	TagUpgrade    Tag = "UPGRADE"
	TagDecay      Tag = "DECAY"
	TagSustained  Tag = "SUSTAINED"
	TagFlipped    Tag = "FLIPPED"
	TagSuppressed Tag = "SUPPRESSED"
)

// Emoji метка для сообщения
func (t Tag) Emoji() string {
	switch t {
	case TagNew:
		return "🆕"
	case TagUpgrade:
		return "⬆️"
	case TagDecay:
		return "📉"
	case TagSustained:
		return "⏱️"
	case TagFlipped:
		return "🔄"
	default:
		return ""
	}
}

// Emits true для тегов, по которым уходит алерт
func (t Tag) Emits() bool { return t != TagSuppressed && t != "" }

// Entry состояние символа в трекере
type Entry struct {
	Kind              models.SignalKind `json:"kind" validate:"required"`
	NormalizedKind    models.SignalKind `json:"normalizedKind" validate:"required"`
	FirstSeen         time.Time         `json:"firstSeen" validate:"required"`
	LastSeen          time.Time         `json:"lastSeen" validate:"required,gtefield=FirstSeen"`
	Count             int               `json:"count" validate:"gte=1"`
	PeakOI            float64           `json:"peakOi" validate:"gte=0"`
	PeakGrade         models.Grade      `json:"peakGrade" validate:"omitempty,oneof=S A B C"`
	CurrentOI         float64           `json:"currentOi" validate:"gte=0"`
	CurrentGrade      models.Grade      `json:"currentGrade" validate:"omitempty,oneof=S A B C"`
	NotifiedGrade     models.Grade      `json:"notifiedGrade" validate:"omitempty,oneof=S A B C"`
	DurationMinutes   float64           `json:"durationMinutes" validate:"gte=0"`
	NotifiedSustained bool              `json:"notifiedSustained"`
}

// Decision итог наблюдения; prev нужен для отката, если отправка не удалась
type Decision struct {
	Symbol string
	Tag    Tag
	Signal models.Signal
	Entry  Entry

	prev    Entry
	hadPrev bool
}

// Tracker конечный автомат по символам, общий для всех конвейеров.
// Не потокобезопасен: им владеет один цикл.
type Tracker struct {
	config  config.TrackerConfig
	entries map[string]Entry
}

// New создает трекер поверх сохраненных записей
func New(cfg config.TrackerConfig, entries map[string]Entry) *Tracker {
	if entries == nil {
		entries = make(map[string]Entry)
	}
	return &Tracker{config: cfg, entries: entries}
}

func (t *Tracker) sustainedAfter() time.Duration {
	return time.Duration(t.config.SustainedMinutes * float64(time.Minute))
}

func (t *Tracker) ttl() time.Duration {
	return time.Duration(t.config.EvictHours * float64(time.Hour))
}

// Observe применяет наблюдение к состоянию в памяти и возвращает решение
func (t *Tracker) Observe(sig models.Signal, now time.Time) Decision {
	prev, seen := t.entries[sig.Symbol]
	d := Decision{Symbol: sig.Symbol, Signal: sig, prev: prev, hadPrev: seen}

	oi := abs(sig.OIChange)
	norm := sig.Kind.Normalize()

	if !seen || prev.NormalizedKind != norm {
		d.Tag = TagNew
		if seen {
			d.Tag = TagFlipped
		}
		d.Entry = Entry{
			Kind:           sig.Kind,
			NormalizedKind: norm,
			FirstSeen:      now,
			LastSeen:       now,
			Count:          1,
			PeakOI:         oi,
			PeakGrade:      sig.StrengthGrade,
			CurrentOI:      oi,
			CurrentGrade:   sig.StrengthGrade,
			NotifiedGrade:  sig.StrengthGrade,
		}
		t.entries[sig.Symbol] = d.Entry
		return d
	}

	e := prev
	e.Kind = sig.Kind
	e.LastSeen = now
	e.Count++
	e.CurrentOI = oi
	e.CurrentGrade = sig.StrengthGrade
	e.DurationMinutes = now.Sub(e.FirstSeen).Minutes()
	if oi > e.PeakOI {
		e.PeakOI = oi
	}
	if sig.StrengthGrade.Rank() > e.PeakGrade.Rank() {
		e.PeakGrade = sig.StrengthGrade
	}

	switch {
	case e.CurrentGrade.Rank() > e.NotifiedGrade.Rank():
		e.NotifiedGrade = e.CurrentGrade
		d.Tag = TagUpgrade
	case e.PeakOI > 0 && e.CurrentOI < t.config.DecayRatio*e.PeakOI:
		e.PeakOI = e.CurrentOI
		d.Tag = TagDecay
	case now.Sub(e.FirstSeen) >= t.sustainedAfter() && !e.NotifiedSustained:
		e.NotifiedSustained = true
		d.Tag = TagSustained
	default:
		d.Tag = TagSuppressed
	}

	d.Entry = e
	t.entries[sig.Symbol] = e
	return d
}

// Revert возвращает запись символа в состояние до наблюдения
func (t *Tracker) Revert(d Decision) {
	if d.hadPrev {
		t.entries[d.Symbol] = d.prev
		return
	}
	delete(t.entries, d.Symbol)
}

// Evict удаляет записи, не обновлявшиеся дольше TTL
func (t *Tracker) Evict(now time.Time) []string {
	var evicted []string
	for symbol, e := range t.entries {
		if now.Sub(e.LastSeen) > t.ttl() {
			delete(t.entries, symbol)
			evicted = append(evicted, symbol)
		}
	}
	sort.Strings(evicted)
	return evicted
}

// Get запись символа
func (t *Tracker) Get(symbol string) (Entry, bool) {
	e, ok := t.entries[symbol]
	return e, ok
}

// Len число отслеживаемых символов
func (t *Tracker) Len() int { return len(t.entries) }

// Entries копия состояния для сохранения
func (t *Tracker) Entries() map[string]Entry {
	out := make(map[string]Entry, len(t.entries))
	for k, v := range t.entries {
		out[k] = v
	}
	return out
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
