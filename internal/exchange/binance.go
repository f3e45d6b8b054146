package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"

	"github.com/skalibog/perpsentry/internal/config"
	"github.com/skalibog/perpsentry/pkg/models"
)

// BinanceVenue адаптер Binance USDⓈ-M futures поверх go-binance
type BinanceVenue struct {
	futures *futures.Client
}

// NewBinanceVenue создает адаптер Binance
func NewBinanceVenue(vc config.VenueConfig, timeout time.Duration) *BinanceVenue {
	client := futures.NewClient(vc.APIKey, vc.APISecret)
	if vc.BaseURL != "" {
		client.BaseURL = vc.BaseURL
	}
	client.HTTPClient = &http.Client{Timeout: timeout}
	return &BinanceVenue{futures: client}
}

// Name имя площадки
func (v *BinanceVenue) Name() string { return "binance" }

// classify переводит ошибку SDK в FetchError
func (v *BinanceVenue) classify(op, symbol string, err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		// -1003 лимит запросов, -1001/-1007 проблемы на стороне площадки
		case 0, -1000, -1001, -1003, -1007, -1008:
			return NewTransientError(v.Name(), op, symbol, err)
		default:
			return NewPermanentError(v.Name(), op, symbol, err)
		}
	}
	return NewTransientError(v.Name(), op, symbol, err)
}

func pair(symbol string) string { return symbol + "USDT" }

// Candles получает свечи, Binance отдает их от старых к новым
func (v *BinanceVenue) Candles(ctx context.Context, symbol, interval string, limit int, endTime *time.Time) ([]models.Candle, error) {
	svc := v.futures.NewKlinesService().
		Symbol(pair(symbol)).
		Interval(interval).
		Limit(limit)
	if endTime != nil {
		svc = svc.EndTime(endTime.UnixMilli())
	}

	klines, err := svc.Do(ctx)
	if err != nil {
		return nil, v.classify("candles", symbol, err)
	}

	candles := make([]models.Candle, 0, len(klines))
	for _, k := range klines {
		row := []interface{}{k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume}
		c, err := candleFromRow(row, 5)
		if err != nil {
			return nil, NewPermanentError(v.Name(), "candles", symbol, err)
		}
		c.CloseTime = k.CloseTime
		candles = append(candles, c)
	}
	return finalizeCandles(candles, interval), nil
}

func binanceTicker(s *futures.PriceChangeStats) (models.Ticker, error) {
	last, err := strconv.ParseFloat(s.LastPrice, 64)
	if err != nil {
		return models.Ticker{}, fmt.Errorf("%w: lastPrice %q", errMalformed, s.LastPrice)
	}
	t := models.Ticker{Symbol: models.NormalizeSymbol(s.Symbol), LastPrice: last}
	t.PriceChangePercent, _ = strconv.ParseFloat(s.PriceChangePercent, 64)
	t.QuoteVolume, _ = strconv.ParseFloat(s.QuoteVolume, 64)
	t.High24h, _ = strconv.ParseFloat(s.HighPrice, 64)
	t.Low24h, _ = strconv.ParseFloat(s.LowPrice, 64)
	return t, nil
}

// Ticker 24-часовая статистика символа
func (v *BinanceVenue) Ticker(ctx context.Context, symbol string) (*models.Ticker, error) {
	stats, err := v.futures.NewListPriceChangeStatsService().Symbol(pair(symbol)).Do(ctx)
	if err != nil {
		return nil, v.classify("ticker", symbol, err)
	}
	if len(stats) == 0 {
		return nil, nil
	}
	t, err := binanceTicker(stats[0])
	if err != nil {
		return nil, NewPermanentError(v.Name(), "ticker", symbol, err)
	}
	return &t, nil
}

// AllTickers статистика по всем контрактам одним запросом
func (v *BinanceVenue) AllTickers(ctx context.Context) (map[string]models.Ticker, error) {
	stats, err := v.futures.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, v.classify("all_tickers", "", err)
	}
	out := make(map[string]models.Ticker, len(stats))
	for _, s := range stats {
		if _, ok := splitInstrument(s.Symbol); !ok {
			continue
		}
		t, err := binanceTicker(s)
		if err != nil {
			continue
		}
		out[t.Symbol] = t
	}
	return out, nil
}

// OpenInterest текущий открытый интерес в контрактах базовой валюты
func (v *BinanceVenue) OpenInterest(ctx context.Context, symbol string) (*models.OpenInterest, error) {
	oi, err := v.futures.NewGetOpenInterestService().Symbol(pair(symbol)).Do(ctx)
	if err != nil {
		return nil, v.classify("open_interest", symbol, err)
	}
	if oi == nil {
		return nil, nil
	}
	value, err := strconv.ParseFloat(oi.OpenInterest, 64)
	if err != nil {
		return nil, NewPermanentError(v.Name(), "open_interest", symbol, fmt.Errorf("%w: openInterest %q", errMalformed, oi.OpenInterest))
	}
	return &models.OpenInterest{Symbol: symbol, Value: value, Timestamp: time.UnixMilli(oi.Time).UTC()}, nil
}

// FundingRateHistory история ставок финансирования за период
func (v *BinanceVenue) FundingRateHistory(ctx context.Context, symbol string, start, end time.Time) ([]models.FundingRate, error) {
	rates, err := v.futures.NewFundingRateService().
		Symbol(pair(symbol)).
		StartTime(start.UnixMilli()).
		EndTime(end.UnixMilli()).
		Do(ctx)
	if err != nil {
		return nil, v.classify("funding", symbol, err)
	}

	out := make([]models.FundingRate, 0, len(rates))
	for _, r := range rates {
		rate, err := strconv.ParseFloat(r.FundingRate, 64)
		if err != nil {
			return nil, NewPermanentError(v.Name(), "funding", symbol, fmt.Errorf("%w: fundingRate %q", errMalformed, r.FundingRate))
		}
		out = append(out, models.FundingRate{Symbol: symbol, Rate: rate, FundingTime: time.UnixMilli(r.FundingTime).UTC()})
	}
	sortFunding(out)
	return out, nil
}
