package signal

import (
	"math"

	"github.com/skalibog/perpsentry/pkg/models"
)

// StrengthScore аддитивная оценка силы сигнала, не больше 100
func StrengthScore(kind models.SignalKind, rsi, volRatio, oiChange, priceChange float64) float64 {
	score := 0.0

	switch {
	case volRatio >= 2:
		score += 30
	case volRatio >= 1.5:
		score += 20
	}

	if dir, ok := models.DirectionOf(kind); ok {
		if (dir == models.DirectionLong && rsi >= 60) || (dir == models.DirectionShort && rsi <= 40) {
			score += 25
		}
	}

	switch oi := math.Abs(oiChange); {
	case oi >= 15:
		score += 25
	case oi >= 10:
		score += 15
	case oi >= 7:
		score += 10
	}

	switch p := math.Abs(priceChange); {
	case p >= 5:
		score += 20
	case p >= 3:
		score += 10
	}

	return math.Min(score, 100)
}

// Vetoed запрет на открытие бумажной позиции: поздняя фаза или
// перегретый RSI по направлению сигнала. Алерт при этом отправляется.
func Vetoed(kind models.SignalKind, phase models.Phase, rsi float64) bool {
	if phase == models.PhaseLate {
		return true
	}
	dir, ok := models.DirectionOf(kind)
	if !ok {
		return false
	}
	return (dir == models.DirectionLong && rsi > 75) || (dir == models.DirectionShort && rsi < 25)
}
