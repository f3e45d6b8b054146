package paper

import (
	"sort"

	"github.com/shopspring/decimal"
)

// OpenView открытая позиция с нереализованным результатом
type OpenView struct {
	Position
	Mark          float64
	UnrealizedPct float64
	UnrealizedUSD float64
}

// Summary сводка по книге
type Summary struct {
	StartCapital float64
	Capital      float64
	RealizedUSD  float64
	Trades       int // полностью закрытые позиции
	Wins         int
	WinRate      float64 // %
	ByReason     map[Reason]int
	Open         []OpenView
}

// Summary считает сводку; marks цены для оценки открытых позиций
func (b *Book) Summary(marks map[string]float64) Summary {
	s := Summary{
		StartCapital: b.config.Capital,
		Capital:      b.Capital(),
		ByReason:     make(map[Reason]int),
	}

	open := make(map[string]bool, len(b.positions))
	for _, p := range b.positions {
		open[p.ID] = true
	}

	realized := decimal.Zero
	perPosition := make(map[string]decimal.Decimal)
	for _, t := range b.closed {
		usd := decimal.NewFromFloat(t.PnLUSD)
		realized = realized.Add(usd)
		s.ByReason[t.Reason]++
		if !open[t.ID] {
			perPosition[t.ID] = perPosition[t.ID].Add(usd)
		}
	}
	s.RealizedUSD = realized.InexactFloat64()

	for _, pnl := range perPosition {
		s.Trades++
		if pnl.IsPositive() {
			s.Wins++
		}
	}
	if s.Trades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Trades) * 100
	}

	for _, p := range b.positions {
		v := OpenView{Position: p, Mark: marks[p.Symbol]}
		if v.Mark > 0 {
			pct := pnlPct(p, v.Mark)
			v.UnrealizedPct = pct.InexactFloat64()
			v.UnrealizedUSD = decimal.NewFromFloat(p.Size).
				Mul(decimal.NewFromFloat(p.RemainingPct)).
				Mul(pct).Div(hundred).InexactFloat64()
		}
		s.Open = append(s.Open, v)
	}
	sort.Slice(s.Open, func(i, j int) bool { return s.Open[i].EntryTime.Before(s.Open[j].EntryTime) })
	return s
}

// ReturnPct доходность книги от стартового капитала, %
func (s Summary) ReturnPct() float64 {
	if s.StartCapital == 0 {
		return 0
	}
	return (s.Capital - s.StartCapital) / s.StartCapital * 100
}
