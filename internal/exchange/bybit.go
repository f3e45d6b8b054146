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

const bybitDefaultURL = "https://api.bybit.com"

// BybitVenue адаптер Bybit v5 (linear USDT perpetual)
type BybitVenue struct {
	rest *restClient
}

// NewBybitVenue создает адаптер Bybit
func NewBybitVenue(vc config.VenueConfig, timeout time.Duration) *BybitVenue {
	base := vc.BaseURL
	if base == "" {
		base = bybitDefaultURL
	}
	return &BybitVenue{rest: newRESTClient("bybit", base, timeout)}
}

// Name имя площадки
func (v *BybitVenue) Name() string { return "bybit" }

func bybitInterval(interval string) string {
	switch interval {
	case "1m":
		return "1"
	case "3m":
		return "3"
	case "5m":
		return "5"
	case "15m":
		return "15"
	case "30m":
		return "30"
	case "1h":
		return "60"
	case "2h":
		return "120"
	case "4h":
		return "240"
	case "6h":
		return "360"
	case "12h":
		return "720"
	case "1d":
		return "D"
	default:
		return "60"
	}
}

// call выполняет запрос и проверяет retCode в теле ответа
func (v *BybitVenue) call(ctx context.Context, op, symbol, path string, params url.Values) ([]*simplejson.Json, error) {
	params.Set("category", "linear")
	js, err := v.rest.get(ctx, op, symbol, path, params)
	if err != nil {
		return nil, err
	}

	code, err := js.Get("retCode").Int()
	if err != nil {
		return nil, NewPermanentError(v.Name(), op, symbol, fmt.Errorf("%w: нет retCode", errMalformed))
	}
	if code != 0 {
		msg := js.Get("retMsg").MustString()
		e := fmt.Errorf("retCode %d: %s", code, msg)
		switch code {
		case 10000, 10002, 10006, 10016:
			return nil, NewTransientError(v.Name(), op, symbol, e)
		default:
			return nil, NewPermanentError(v.Name(), op, symbol, e)
		}
	}

	list, err := jsonList(js.GetPath("result", "list"))
	if err != nil {
		return nil, NewPermanentError(v.Name(), op, symbol, fmt.Errorf("%w: нет result.list", errMalformed))
	}
	return list, nil
}

// Candles свечи, площадка отдает их от новых к старым
func (v *BybitVenue) Candles(ctx context.Context, symbol, interval string, limit int, endTime *time.Time) ([]models.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol+"USDT")
	params.Set("interval", bybitInterval(interval))
	params.Set("limit", strconv.Itoa(limit))
	if endTime != nil {
		params.Set("end", strconv.FormatInt(endTime.UnixMilli(), 10))
	}

	rows, err := v.call(ctx, "candles", symbol, "/v5/market/kline", params)
	if err != nil {
		return nil, err
	}

	candles := make([]models.Candle, 0, len(rows))
	for _, r := range rows {
		row, err := r.Array()
		if err != nil {
			return nil, NewPermanentError(v.Name(), "candles", symbol, errMalformed)
		}
		c, err := candleFromRow(row, 5)
		if err != nil {
			return nil, NewPermanentError(v.Name(), "candles", symbol, err)
		}
		candles = append(candles, c)
	}
	return finalizeCandles(candles, interval), nil
}

func bybitTicker(js *simplejson.Json) (models.Ticker, bool) {
	inst, ok := stringField(js, "symbol")
	if !ok {
		return models.Ticker{}, false
	}
	base, ok := splitInstrument(inst)
	if !ok {
		return models.Ticker{}, false
	}
	last, ok := numberField(js, "lastPrice", "last")
	if !ok {
		return models.Ticker{}, false
	}
	t := models.Ticker{Symbol: base, LastPrice: last}
	if pct, ok := numberField(js, "price24hPcnt"); ok {
		// доля, а не проценты
		t.PriceChangePercent = pct * 100
	}
	t.QuoteVolume, _ = numberField(js, "turnover24h", "quoteVolume")
	t.High24h, _ = numberField(js, "highPrice24h", "high24h")
	t.Low24h, _ = numberField(js, "lowPrice24h", "low24h")
	return t, true
}

// Ticker статистика по одному символу
func (v *BybitVenue) Ticker(ctx context.Context, symbol string) (*models.Ticker, error) {
	params := url.Values{}
	params.Set("symbol", symbol+"USDT")
	rows, err := v.call(ctx, "ticker", symbol, "/v5/market/tickers", params)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	t, ok := bybitTicker(rows[0])
	if !ok {
		return nil, NewPermanentError(v.Name(), "ticker", symbol, errMalformed)
	}
	return &t, nil
}

// AllTickers статистика по всем линейным контрактам одной выгрузкой
func (v *BybitVenue) AllTickers(ctx context.Context) (map[string]models.Ticker, error) {
	rows, err := v.call(ctx, "all_tickers", "", "/v5/market/tickers", url.Values{})
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.Ticker, len(rows))
	for _, r := range rows {
		if t, ok := bybitTicker(r); ok {
			out[t.Symbol] = t
		}
	}
	return out, nil
}

// OpenInterest последнее значение открытого интереса
func (v *BybitVenue) OpenInterest(ctx context.Context, symbol string) (*models.OpenInterest, error) {
	params := url.Values{}
	params.Set("symbol", symbol+"USDT")
	params.Set("intervalTime", "5min")
	params.Set("limit", "1")
	rows, err := v.call(ctx, "open_interest", symbol, "/v5/market/open-interest", params)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	js := rows[0]
	value, ok := numberField(js, "openInterest", "oi")
	if !ok {
		return nil, NewPermanentError(v.Name(), "open_interest", symbol, errMalformed)
	}
	ts, _ := numberField(js, "timestamp", "ts")
	return &models.OpenInterest{Symbol: symbol, Value: value, Timestamp: time.UnixMilli(int64(ts)).UTC()}, nil
}

// FundingRateHistory история ставок за период
func (v *BybitVenue) FundingRateHistory(ctx context.Context, symbol string, start, end time.Time) ([]models.FundingRate, error) {
	params := url.Values{}
	params.Set("symbol", symbol+"USDT")
	params.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	params.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	rows, err := v.call(ctx, "funding", symbol, "/v5/market/funding/history", params)
	if err != nil {
		return nil, err
	}
	return fundingFromRows(v.Name(), symbol, rows, []string{"fundingRateTimestamp", "fundingTime"})
}

// fundingFromRows общий разбор истории фандинга, результат от старых к новым
func fundingFromRows(venue, symbol string, rows []*simplejson.Json, timeKeys []string) ([]models.FundingRate, error) {
	out := make([]models.FundingRate, 0, len(rows))
	for _, js := range rows {
		rate, ok := numberField(js, "fundingRate", "realizedRate")
		if !ok {
			return nil, NewPermanentError(venue, "funding", symbol, errMalformed)
		}
		ts, _ := numberField(js, timeKeys...)
		out = append(out, models.FundingRate{Symbol: symbol, Rate: rate, FundingTime: time.UnixMilli(int64(ts)).UTC()})
	}
	sortFunding(out)
	return out, nil
}
