// Package indicators чистые функции над рядами свечей: без состояния и ввода-вывода.
package indicators

import (
	"errors"
	"fmt"

	"github.com/skalibog/perpsentry/pkg/models"
)

// ErrUnderflow недостаточно свечей для расчета
var ErrUnderflow = errors.New("недостаточно свечей")

// Require проверяет минимальную длину ряда
func Require(candles []models.Candle, n int) error {
	if len(candles) < n {
		return fmt.Errorf("%w: есть %d, нужно %d", ErrUnderflow, len(candles), n)
	}
	return nil
}

func closePrices(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func volumeSeries(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// PctChange изменение в процентах от from к to
func PctChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}
