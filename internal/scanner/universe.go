package scanner

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/skalibog/perpsentry/internal/config"
	"github.com/skalibog/perpsentry/pkg/models"
)

// universe один запрос всех тикеров и фильтры списка, исключений и объема.
// Фильтр по OI применяется позже, когда OI уже получен.
func (s *Scanner) universe(c *cycle) (map[string]models.Ticker, []string, error) {
	tickers, err := s.client.FetchAllTickers(c.fetch)
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка получения тикеров: %w", err)
	}
	symbols := FilterUniverse(s.config.Scan, tickers)
	c.log.Debug("Вселенная символов", zap.Int("tickers", len(tickers)), zap.Int("symbols", len(symbols)))
	return tickers, symbols, nil
}

// FilterUniverse отбирает символы по настройкам сканирования; результат
// отсортирован по объему за 24ч по убыванию
func FilterUniverse(cfg config.ScanConfig, tickers map[string]models.Ticker) []string {
	watch := toSet(cfg.SymbolsWatchlist)
	excluded := toSet(cfg.ExcludedSymbols)

	var out []string
	for symbol, t := range tickers {
		if len(watch) > 0 && !watch[symbol] {
			continue
		}
		if excluded[symbol] || t.LastPrice <= 0 {
			continue
		}
		if t.QuoteVolume < cfg.MinVolume24h {
			continue
		}
		out = append(out, symbol)
	}

	sort.Slice(out, func(i, j int) bool {
		vi, vj := tickers[out[i]].QuoteVolume, tickers[out[j]].QuoteVolume
		if vi != vj {
			return vi > vj
		}
		return out[i] < out[j]
	})
	if cfg.MaxSymbols > 0 && len(out) > cfg.MaxSymbols {
		out = out[:cfg.MaxSymbols]
	}
	return out
}

func toSet(symbols []string) map[string]bool {
	set := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		set[models.NormalizeSymbol(s)] = true
	}
	return set
}
