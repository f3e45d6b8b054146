package exchange

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/bitly/go-simplejson"

	"github.com/skalibog/perpsentry/internal/config"
	"github.com/skalibog/perpsentry/pkg/models"
)

const okxDefaultURL = "https://www.okx.com"

// OKXVenue адаптер OKX v5 (USDT-маржинальные SWAP)
type OKXVenue struct {
	rest *restClient
}

// NewOKXVenue создает адаптер OKX
func NewOKXVenue(vc config.VenueConfig, timeout time.Duration) *OKXVenue {
	base := vc.BaseURL
	if base == "" {
		base = okxDefaultURL
	}
	return &OKXVenue{rest: newRESTClient("okx", base, timeout)}
}

// Name имя площадки
func (v *OKXVenue) Name() string { return "okx" }

func okxInstrument(symbol string) string { return symbol + "-USDT-SWAP" }

func okxBar(interval string) string {
	switch interval {
	case "1m", "3m", "5m", "15m", "30m":
		return interval
	case "1h":
		return "1H"
	case "2h":
		return "2H"
	case "4h":
		return "4H"
	case "6h":
		return "6H"
	case "12h":
		return "12H"
	case "1d":
		return "1D"
	default:
		return "1H"
	}
}

// call выполняет запрос и проверяет code в теле ответа
func (v *OKXVenue) call(ctx context.Context, op, symbol, path string, params url.Values) ([]*simplejson.Json, error) {
	js, err := v.rest.get(ctx, op, symbol, path, params)
	if err != nil {
		return nil, err
	}

	code, ok := stringField(js, "code")
	if !ok {
		return nil, NewPermanentError(v.Name(), op, symbol, fmt.Errorf("%w: нет code", errMalformed))
	}
	if code != "0" {
		e := fmt.Errorf("code %s: %s", code, js.Get("msg").MustString())
		switch code {
		// 50011 лимит запросов, 50001/50004 сервис недоступен или таймаут
		case "50001", "50004", "50011", "50013":
			return nil, NewTransientError(v.Name(), op, symbol, e)
		default:
			return nil, NewPermanentError(v.Name(), op, symbol, e)
		}
	}

	list, err := jsonList(js.Get("data"))
	if err != nil {
		return nil, NewPermanentError(v.Name(), op, symbol, fmt.Errorf("%w: нет data", errMalformed))
	}
	return list, nil
}

// Candles свечи; объем берется в базовой валюте (volCcy), а не в контрактах
func (v *OKXVenue) Candles(ctx context.Context, symbol, interval string, limit int, endTime *time.Time) ([]models.Candle, error) {
	params := url.Values{}
	params.Set("instId", okxInstrument(symbol))
	params.Set("bar", okxBar(interval))
	params.Set("limit", strconv.Itoa(limit))
	if endTime != nil {
		// after: записи старше указанного времени
		params.Set("after", strconv.FormatInt(endTime.UnixMilli()+1, 10))
	}

	rows, err := v.call(ctx, "candles", symbol, "/api/v5/market/candles", params)
	if err != nil {
		return nil, err
	}

	candles := make([]models.Candle, 0, len(rows))
	for _, r := range rows {
		row, err := r.Array()
		if err != nil {
			return nil, NewPermanentError(v.Name(), "candles", symbol, errMalformed)
		}
		volumeIdx := 5
		if len(row) > 6 {
			volumeIdx = 6
		}
		c, err := candleFromRow(row, volumeIdx)
		if err != nil {
			return nil, NewPermanentError(v.Name(), "candles", symbol, err)
		}
		candles = append(candles, c)
	}
	return finalizeCandles(candles, interval), nil
}

func okxTicker(js *simplejson.Json) (models.Ticker, bool) {
	inst, ok := stringField(js, "instId")
	if !ok {
		return models.Ticker{}, false
	}
	base, ok := splitInstrument(inst)
	if !ok {
		return models.Ticker{}, false
	}
	last, ok := numberField(js, "last", "lastPrice")
	if !ok || last <= 0 {
		return models.Ticker{}, false
	}
	t := models.Ticker{Symbol: base, LastPrice: last}
	if open, ok := numberField(js, "open24h"); ok && open > 0 {
		t.PriceChangePercent = (last - open) / open * 100
	}
	if vol, ok := numberField(js, "volCcy24h"); ok {
		t.QuoteVolume = vol * last
	}
	t.High24h, _ = numberField(js, "high24h")
	t.Low24h, _ = numberField(js, "low24h")
	return t, true
}

// Ticker статистика по одному контракту
func (v *OKXVenue) Ticker(ctx context.Context, symbol string) (*models.Ticker, error) {
	params := url.Values{}
	params.Set("instId", okxInstrument(symbol))
	rows, err := v.call(ctx, "ticker", symbol, "/api/v5/market/ticker", params)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	t, ok := okxTicker(rows[0])
	if !ok {
		return nil, NewPermanentError(v.Name(), "ticker", symbol, errMalformed)
	}
	return &t, nil
}

// AllTickers статистика по всем SWAP одной выгрузкой
func (v *OKXVenue) AllTickers(ctx context.Context) (map[string]models.Ticker, error) {
	params := url.Values{}
	params.Set("instType", "SWAP")
	rows, err := v.call(ctx, "all_tickers", "", "/api/v5/market/tickers", params)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.Ticker, len(rows))
	for _, r := range rows {
		if t, ok := okxTicker(r); ok {
			out[t.Symbol] = t
		}
	}
	return out, nil
}

// OpenInterest открытый интерес в базовой валюте
func (v *OKXVenue) OpenInterest(ctx context.Context, symbol string) (*models.OpenInterest, error) {
	params := url.Values{}
	params.Set("instType", "SWAP")
	params.Set("instId", okxInstrument(symbol))
	rows, err := v.call(ctx, "open_interest", symbol, "/api/v5/public/open-interest", params)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	value, ok := numberField(rows[0], "oiCcy", "openInterest", "oi")
	if !ok {
		return nil, NewPermanentError(v.Name(), "open_interest", symbol, errMalformed)
	}
	ts, _ := numberField(rows[0], "ts", "timestamp")
	return &models.OpenInterest{Symbol: symbol, Value: value, Timestamp: time.UnixMilli(int64(ts)).UTC()}, nil
}

// FundingRateHistory история ставок за период
func (v *OKXVenue) FundingRateHistory(ctx context.Context, symbol string, start, end time.Time) ([]models.FundingRate, error) {
	params := url.Values{}
	params.Set("instId", okxInstrument(symbol))
	params.Set("before", strconv.FormatInt(start.UnixMilli()-1, 10))
	params.Set("after", strconv.FormatInt(end.UnixMilli()+1, 10))
	rows, err := v.call(ctx, "funding", symbol, "/api/v5/public/funding-rate-history", params)
	if err != nil {
		return nil, err
	}
	return fundingFromRows(v.Name(), symbol, rows, []string{"fundingTime", "ts"})
}
