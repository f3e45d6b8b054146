package indicators

import "github.com/skalibog/perpsentry/pkg/models"

// VolumeRatio отношение среднего объема последних recent свечей
// к среднему объему prior свечей перед ними
func VolumeRatio(candles []models.Candle, recent, prior int) (float64, bool) {
	if recent <= 0 || prior <= 0 || len(candles) < recent+prior {
		return 0, false
	}
	vols := volumeSeries(candles)
	n := len(vols)
	priorAvg := mean(vols[n-recent-prior : n-recent])
	if priorAvg <= 0 {
		return 0, false
	}
	return mean(vols[n-recent:]) / priorAvg, true
}

// AvgVolume средний объем последних window свечей
func AvgVolume(candles []models.Candle, window int) float64 {
	if window <= 0 || len(candles) == 0 {
		return 0
	}
	if window > len(candles) {
		window = len(candles)
	}
	return mean(volumeSeries(candles[len(candles)-window:]))
}
