// Package paper ведет виртуальную книгу: допуск сигналов, частичные фиксации,
// трейлинг, стоп-лосс и выход по времени.
package paper

import (
	"time"

	"github.com/skalibog/perpsentry/pkg/models"
)

// Reason причина реализации части позиции
type Reason string

const (
	ReasonSL     Reason = "SL"
	ReasonTP1    Reason = "TP1"
	ReasonTP2    Reason = "TP2"
	ReasonTP3    Reason = "TP3"
	ReasonTrail  Reason = "TRAIL"
	ReasonTime   Reason = "TIME"
	ReasonManual Reason = "MANUAL"
)

// Доли позиции: 40% на TP1, 30% на TP2, остаток 30% на трейлинге
const (
	tp1Fraction = 0.4
	tp2Fraction = 0.3
)

// Position открытая виртуальная позиция
type Position struct {
	ID            string           `json:"id" validate:"required"`
	Symbol        string           `json:"symbol" validate:"required"`
	Direction     models.Direction `json:"direction" validate:"oneof=LONG SHORT"`
	EntryPrice    float64          `json:"entryPrice" validate:"gt=0"`
	Size          float64          `json:"size" validate:"gt=0"` // USD
	SL            float64          `json:"sl" validate:"gt=0"`
	TP1           float64          `json:"tp1" validate:"gt=0"`
	TP2           float64          `json:"tp2" validate:"gt=0"`
	TP3           float64          `json:"tp3,omitempty" validate:"gte=0"`
	TP1Hit        bool             `json:"tp1Hit"`
	TP2Hit        bool             `json:"tp2Hit"`
	EntryTime     time.Time        `json:"entryTime" validate:"required"`
	Phase         models.Phase     `json:"phase"`
	RSI           float64          `json:"rsi"`
	StrengthGrade models.Grade     `json:"strengthGrade"`
	RemainingPct  float64          `json:"remainingPct" validate:"gt=0,lte=1"`
	Peak          float64          `json:"peak,omitempty"`      // лучшая цена с начала трейлинга
	TrailStop     float64          `json:"trailStop,omitempty"` // 0 пока трейлинг не начат
	LastBar       int64            `json:"lastBar,omitempty"`   // openTime последней учтенной свечи
}

// ClosedTrade реализованная часть позиции
type ClosedTrade struct {
	Position
	ExitPrice float64   `json:"exitPrice"`
	ExitTime  time.Time `json:"exitTime"`
	PnLPct    float64   `json:"pnlPct"`
	PnLUSD    float64   `json:"pnlUsd"`
	Reason    Reason    `json:"reason"`
	Fraction  float64   `json:"fraction"` // доля исходного размера
}

// State сохраняемое состояние книги
type State struct {
	Capital   float64       `json:"capital" validate:"gte=0"`
	Positions []Position    `json:"positions" validate:"dive"`
	Closed    []ClosedTrade `json:"closed"`
}

func (p Position) isLong() bool { return p.Direction == models.DirectionLong }

// Open true пока от позиции что-то осталось
func (p Position) Open() bool { return p.RemainingPct > 0 }
