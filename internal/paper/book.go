package paper

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/skalibog/perpsentry/internal/analysis/signal"
	"github.com/skalibog/perpsentry/internal/config"
	"github.com/skalibog/perpsentry/pkg/logger"
	"github.com/skalibog/perpsentry/pkg/models"
)

var (
	// ErrRejected сигнал не прошел допуск
	ErrRejected = errors.New("сигнал не допущен")
	// ErrNoPosition нет открытой позиции по символу
	ErrNoPosition = errors.New("нет открытой позиции")
)

var hundred = decimal.NewFromInt(100)

// Book виртуальная книга. Владелец один цикл, блокировок нет.
type Book struct {
	config    config.PaperConfig
	capital   decimal.Decimal
	positions []Position
	closed    []ClosedTrade
	newID     func() string
}

// NewBook восстанавливает книгу из состояния; пустое состояние дает стартовый капитал
func NewBook(cfg config.PaperConfig, st State) *Book {
	b := &Book{
		config:    cfg,
		capital:   decimal.NewFromFloat(st.Capital),
		positions: append([]Position(nil), st.Positions...),
		closed:    append([]ClosedTrade(nil), st.Closed...),
		newID:     uuid.NewString,
	}
	if st.Capital == 0 && len(st.Positions) == 0 && len(st.Closed) == 0 {
		b.capital = decimal.NewFromFloat(cfg.Capital)
	}
	return b
}

// Snapshot копия состояния для атомарной записи
func (b *Book) Snapshot() State {
	return State{
		Capital:   b.capital.InexactFloat64(),
		Positions: append([]Position{}, b.positions...),
		Closed:    append([]ClosedTrade{}, b.closed...),
	}
}

// Reset возвращает книгу к стартовому капиталу без позиций и истории
func (b *Book) Reset() {
	b.capital = decimal.NewFromFloat(b.config.Capital)
	b.positions = nil
	b.closed = nil
}

// Capital текущий капитал
func (b *Book) Capital() float64 { return b.capital.InexactFloat64() }

// Positions открытые позиции
func (b *Book) Positions() []Position { return append([]Position(nil), b.positions...) }

// Closed журнал реализаций
func (b *Book) Closed() []ClosedTrade { return append([]ClosedTrade(nil), b.closed...) }

func (b *Book) find(symbol string) int {
	for i, p := range b.positions {
		if p.Symbol == symbol {
			return i
		}
	}
	return -1
}

// OnSignal открывает позицию, если сигнал проходит все фильтры допуска
func (b *Book) OnSignal(sig models.Signal, now time.Time) (Position, error) {
	if sig.Kind != models.KindLong && sig.Kind != models.KindShort {
		return Position{}, fmt.Errorf("%w: вид %s не торгуется", ErrRejected, sig.Kind)
	}
	if sig.EntryPrice <= 0 {
		return Position{}, fmt.Errorf("%w: нет цены входа", ErrRejected)
	}
	if b.find(sig.Symbol) >= 0 {
		return Position{}, fmt.Errorf("%w: позиция по %s уже открыта", ErrRejected, sig.Symbol)
	}
	if len(b.positions) >= b.config.MaxPositions {
		return Position{}, fmt.Errorf("%w: достигнут лимит позиций %d", ErrRejected, b.config.MaxPositions)
	}
	if signal.Vetoed(sig.Kind, sig.Phase, sig.RSI) {
		return Position{}, fmt.Errorf("%w: фаза %s, RSI %.1f", ErrRejected, sig.Phase, sig.RSI)
	}
	if b.config.MinGrade != "" && sig.StrengthGrade.Rank() < models.Grade(b.config.MinGrade).Rank() {
		return Position{}, fmt.Errorf("%w: оценка %s ниже %s", ErrRejected, sig.StrengthGrade, b.config.MinGrade)
	}

	dir, _ := models.DirectionOf(sig.Kind)
	size := b.capital.Mul(decimal.NewFromFloat(b.config.PositionPct)).Div(hundred)

	p := Position{
		ID:            b.newID(),
		Symbol:        sig.Symbol,
		Direction:     dir,
		EntryPrice:    sig.EntryPrice,
		Size:          size.InexactFloat64(),
		EntryTime:     now,
		Phase:         sig.Phase,
		RSI:           sig.RSI,
		StrengthGrade: sig.StrengthGrade,
		RemainingPct:  1,
	}
	b.setLevels(&p, sig.Zone)

	b.positions = append(b.positions, p)
	logger.Info("Открыта виртуальная позиция",
		zap.String("symbol", p.Symbol),
		zap.String("direction", string(p.Direction)),
		zap.Float64("entry", p.EntryPrice),
		zap.Float64("size", p.Size),
		zap.Float64("sl", p.SL),
		zap.Float64("tp1", p.TP1),
		zap.Float64("tp2", p.TP2))
	return p, nil
}

// setLevels считает SL/TP в процентах от входа или в R от зоны OB
func (b *Book) setLevels(p *Position, zone *models.OrderBlock) {
	entry := decimal.NewFromFloat(p.EntryPrice)
	sign := decimal.NewFromInt(1)
	if !p.isLong() {
		sign = sign.Neg()
	}

	if b.config.RiskMode == "orderblock" && zone != nil {
		eps := decimal.NewFromFloat(b.config.OBEpsilonPct).Div(hundred)
		var sl decimal.Decimal
		if p.isLong() {
			sl = decimal.NewFromFloat(zone.Bottom).Mul(decimal.NewFromInt(1).Sub(eps))
		} else {
			sl = decimal.NewFromFloat(zone.Top).Mul(decimal.NewFromInt(1).Add(eps))
		}
		risk := entry.Sub(sl).Mul(sign)
		if risk.IsPositive() {
			at := func(r float64) float64 {
				return entry.Add(risk.Mul(decimal.NewFromFloat(r)).Mul(sign)).InexactFloat64()
			}
			p.SL = sl.InexactFloat64()
			p.TP1, p.TP2, p.TP3 = at(1.5), at(2.5), at(4.0)
			return
		}
	}

	level := func(pct float64) float64 {
		return entry.Mul(hundred.Add(decimal.NewFromFloat(pct).Mul(sign))).Div(hundred).InexactFloat64()
	}
	p.SL = level(-b.config.SLPct)
	p.TP1 = level(b.config.TP1Pct)
	p.TP2 = level(b.config.TP2Pct)
	if b.config.TP3Pct > 0 {
		p.TP3 = level(b.config.TP3Pct)
	}
}

// pnlPct доходность в процентах с учетом направления
func pnlPct(p Position, exit float64) decimal.Decimal {
	entry := decimal.NewFromFloat(p.EntryPrice)
	pct := decimal.NewFromFloat(exit).Sub(entry).Div(entry).Mul(hundred)
	if !p.isLong() {
		pct = pct.Neg()
	}
	return pct
}

// realize фиксирует долю исходного размера и переносит результат в капитал
func (b *Book) realize(p *Position, fraction, exit float64, reason Reason, at time.Time) ClosedTrade {
	pct := pnlPct(*p, exit)
	usd := decimal.NewFromFloat(p.Size).Mul(decimal.NewFromFloat(fraction)).Mul(pct).Div(hundred)
	b.capital = b.capital.Add(usd)

	remaining := decimal.NewFromFloat(p.RemainingPct).Sub(decimal.NewFromFloat(fraction))
	if remaining.LessThan(decimal.New(1, -9)) {
		remaining = decimal.Zero
	}

	rec := ClosedTrade{
		Position:  *p,
		ExitPrice: exit,
		ExitTime:  at,
		PnLPct:    pct.InexactFloat64(),
		PnLUSD:    usd.InexactFloat64(),
		Reason:    reason,
		Fraction:  fraction,
	}
	p.RemainingPct = remaining.InexactFloat64()
	b.closed = append(b.closed, rec)

	logger.Info("Реализация виртуальной позиции",
		zap.String("symbol", p.Symbol),
		zap.String("reason", string(reason)),
		zap.Float64("exit", exit),
		zap.Float64("fraction", fraction),
		zap.Float64("pnl_usd", rec.PnLUSD))
	return rec
}

// Close ручное закрытие остатка позиции по цене
func (b *Book) Close(symbol string, price float64, now time.Time) (ClosedTrade, error) {
	i := b.find(symbol)
	if i < 0 {
		return ClosedTrade{}, fmt.Errorf("%w: %s", ErrNoPosition, symbol)
	}
	if price <= 0 {
		return ClosedTrade{}, fmt.Errorf("некорректная цена закрытия %v", price)
	}
	p := b.positions[i]
	rec := b.realize(&p, p.RemainingPct, price, ReasonManual, now)
	b.remove(i)
	return rec, nil
}

func (b *Book) remove(i int) {
	b.positions = append(b.positions[:i], b.positions[i+1:]...)
}
