// internal/analysis/funding/analyzer.go
package funding

import (
	"math"
	"time"

	"github.com/skalibog/perpsentry/pkg/models"
)

const (
	TagHot  = "FUNDING_HOT"
	TagCold = "FUNDING_COLD"
)

// Window период истории ставок для тега
const Window = 24 * time.Hour

// Analyzer реализует анализатор ставок финансирования
type Analyzer struct {
	extreme float64
}

// NewAnalyzer создает новый анализатор ставок финансирования
func NewAnalyzer(extreme float64) *Analyzer {
	return &Analyzer{
		extreme: extreme,
	}
}

// Tag возвращает тег по последней ставке: перегретые лонги платят шортам (HOT),
// перегретые шорты платят лонгам (COLD)
func (a *Analyzer) Tag(rates []models.FundingRate) (string, bool) {
	if len(rates) == 0 || a.extreme <= 0 {
		return "", false
	}
	current := rates[len(rates)-1].Rate
	switch {
	case current >= a.extreme:
		return TagHot, true
	case current <= -a.extreme:
		return TagCold, true
	default:
		return "", false
	}
}

// Average средняя ставка за период
func Average(rates []models.FundingRate) float64 {
	if len(rates) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range rates {
		sum += r.Rate
	}
	return sum / float64(len(rates))
}

// Extreme самая большая по модулю ставка за период
func Extreme(rates []models.FundingRate) float64 {
	best := 0.0
	for _, r := range rates {
		if math.Abs(r.Rate) > math.Abs(best) {
			best = r.Rate
		}
	}
	return best
}
