package models

import "time"

// SignalKind направление сигнала
type SignalKind string

const (
	KindLong       SignalKind = "LONG"
	KindShort      SignalKind = "SHORT"
	KindSqueeze    SignalKind = "SQUEEZE"  // OI падает, цена растет: закрытие шортов
	KindShakeout   SignalKind = "SHAKEOUT" // OI падает, цена падает: капитуляция лонгов
	KindEarlyLong  SignalKind = "EARLY_LONG"
	KindEarlyShort SignalKind = "EARLY_SHORT"
	KindWait       SignalKind = "WAIT"
	KindPending    SignalKind = "PENDING"
	KindNone       SignalKind = "NONE"
)

// Normalize сводит родственные виды к базовому направлению
func (k SignalKind) Normalize() SignalKind {
	switch k {
	case KindSqueeze, KindEarlyLong:
		return KindLong
	case KindShakeout, KindEarlyShort:
		return KindShort
	default:
		return k
	}
}

// IsDirectional true для видов, у которых есть направление
func (k SignalKind) IsDirectional() bool {
	switch k.Normalize() {
	case KindLong, KindShort:
		return true
	}
	return false
}

// Alertable true для видов, которые попадают в трекер алертов
func (k SignalKind) Alertable() bool {
	return k != KindNone && k != KindWait && k != ""
}

// Grade дискретная оценка силы сигнала
type Grade string

const (
	GradeS Grade = "S"
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
)

// Rank порядок оценок: C=0, B=1, A=2, S=3
func (g Grade) Rank() int {
	switch g {
	case GradeS:
		return 3
	case GradeA:
		return 2
	case GradeB:
		return 1
	default:
		return 0
	}
}

// GradeFromScore переводит балл 0..100 в оценку
func GradeFromScore(score float64) Grade {
	switch {
	case score >= 60:
		return GradeS
	case score >= 40:
		return GradeA
	case score >= 25:
		return GradeB
	default:
		return GradeC
	}
}

// Phase положение внутри трендового импульса
type Phase string

const (
	PhaseLaunch Phase = "LAUNCH"
	PhaseMid    Phase = "MID"
	PhaseLate   Phase = "LATE"
)

// Direction сторона позиции
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// DirectionOf возвращает сторону для направленного вида сигнала
func DirectionOf(k SignalKind) (Direction, bool) {
	switch k.Normalize() {
	case KindLong:
		return DirectionLong, true
	case KindShort:
		return DirectionShort, true
	}
	return "", false
}

// Signal результат классификации одного скана символа
type Signal struct {
	Timestamp     time.Time     `json:"timestamp"`
	Symbol        string        `json:"symbol"`
	Kind          SignalKind    `json:"kind"`
	EntryPrice    float64       `json:"entryPrice"`
	RSI           float64       `json:"rsi"`
	Phase         Phase         `json:"phase"`
	StrengthScore float64       `json:"strengthScore"`
	StrengthGrade Grade         `json:"strengthGrade"`
	OIChange      float64       `json:"oiChange"`
	PriceChange1h float64       `json:"priceChange1h"`
	VolRatio      float64       `json:"volRatio"`
	Tags          []string      `json:"tags,omitempty"`
	Admissible    bool          `json:"admissible"`
	Zone          *OrderBlock   `json:"zone,omitempty"` // ближайший активный OB по направлению
	Funding       *FundingStats `json:"funding,omitempty"`
}

// FundingStats ставки финансирования за окно тега, доли
type FundingStats struct {
	Average float64 `json:"average"`
	Extreme float64 `json:"extreme"`
}

// HasTag проверяет наличие тега
func (s Signal) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
