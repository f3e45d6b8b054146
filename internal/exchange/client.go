package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/skalibog/perpsentry/internal/config"
	"github.com/skalibog/perpsentry/pkg/models"
)

// MarketDataClient источник рыночных данных для сканеров
type MarketDataClient interface {
	FetchCandles(ctx context.Context, symbol, interval string, limit int, endTime *time.Time) (models.Series, error)
	FetchTicker(ctx context.Context, symbol string) (*models.Ticker, error)
	FetchOpenInterest(ctx context.Context, symbol string) (*models.OpenInterest, error)
	FetchAllTickers(ctx context.Context) (map[string]models.Ticker, error)
	FetchFundingRateHistory(ctx context.Context, symbol string, start, end time.Time) ([]models.FundingRate, error)
}

// Venue адаптер одной площадки: эндпоинты + форма ответа.
// Символы на входе и выходе в базовом виде ("BTC").
type Venue interface {
	Name() string
	Candles(ctx context.Context, symbol, interval string, limit int, endTime *time.Time) ([]models.Candle, error)
	Ticker(ctx context.Context, symbol string) (*models.Ticker, error)
	AllTickers(ctx context.Context) (map[string]models.Ticker, error)
	OpenInterest(ctx context.Context, symbol string) (*models.OpenInterest, error)
	FundingRateHistory(ctx context.Context, symbol string, start, end time.Time) ([]models.FundingRate, error)
}

// NewVenues создает адаптеры площадок из конфигурации в порядке приоритета
func NewVenues(cfg config.ExchangeConfig) ([]Venue, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	venues := make([]Venue, 0, len(cfg.Venues))
	for _, vc := range cfg.Venues {
		switch strings.ToLower(vc.Name) {
		case "binance":
			venues = append(venues, NewBinanceVenue(vc, timeout))
		case "bybit":
			venues = append(venues, NewBybitVenue(vc, timeout))
		case "okx":
			venues = append(venues, NewOKXVenue(vc, timeout))
		default:
			return nil, fmt.Errorf("неизвестная площадка %q", vc.Name)
		}
	}
	return venues, nil
}
