package exchange

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/bitly/go-simplejson"

	"github.com/skalibog/perpsentry/pkg/models"
)

var errMalformed = errors.New("неверный формат ответа")

// jsonList раскрывает массив в список узлов
func jsonList(js *simplejson.Json) ([]*simplejson.Json, error) {
	arr, err := js.Array()
	if err != nil {
		return nil, err
	}
	out := make([]*simplejson.Json, len(arr))
	for i := range arr {
		out[i] = js.GetIndex(i)
	}
	return out, nil
}

func sortFunding(rates []models.FundingRate) {
	sort.Slice(rates, func(i, j int) bool { return rates[i].FundingTime.Before(rates[j].FundingTime) })
}

// parseNumber принимает число и как строку, и как json.Number
func parseNumber(v interface{}) (float64, error) {
	switch n := v.(type) {
	case string:
		if n == "" {
			return 0, errMalformed
		}
		return strconv.ParseFloat(n, 64)
	case json.Number:
		return n.Float64()
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%w: %T", errMalformed, v)
	}
}

// numberField ищет первое присутствующее поле из списка имен.
// Площадки называют одно и то же по-разному: lastPrice / last, openInterest / oiCcy.
func numberField(js *simplejson.Json, keys ...string) (float64, bool) {
	for _, k := range keys {
		v, ok := js.CheckGet(k)
		if !ok || v.Interface() == nil {
			continue
		}
		f, err := parseNumber(v.Interface())
		if err != nil {
			continue
		}
		return f, true
	}
	return 0, false
}

// stringField ищет первое присутствующее строковое поле
func stringField(js *simplejson.Json, keys ...string) (string, bool) {
	for _, k := range keys {
		if s, err := js.Get(k).String(); err == nil && s != "" {
			return s, true
		}
	}
	return "", false
}

// candleFromRow разбирает строку вида [openTime, open, high, low, close, volume, ...].
// volumeIdx позволяет взять объем в базовой валюте, если он не на шестой позиции.
func candleFromRow(row []interface{}, volumeIdx int) (models.Candle, error) {
	if len(row) < 6 || volumeIdx >= len(row) {
		return models.Candle{}, fmt.Errorf("%w: строка свечи из %d полей", errMalformed, len(row))
	}

	vals := make([]float64, 6)
	for i, idx := range []int{0, 1, 2, 3, 4, volumeIdx} {
		f, err := parseNumber(row[idx])
		if err != nil {
			return models.Candle{}, fmt.Errorf("%w: поле %d свечи", errMalformed, idx)
		}
		vals[i] = f
	}

	c := models.Candle{
		OpenTime: int64(vals[0]),
		Open:     vals[1],
		High:     vals[2],
		Low:      vals[3],
		Close:    vals[4],
		Volume:   vals[5],
	}
	if c.High < c.Low {
		return models.Candle{}, fmt.Errorf("%w: high < low", errMalformed)
	}
	return c, nil
}

// finalizeCandles сортирует по времени открытия, убирает дубли и
// проставляет closeTime, если площадка его не отдает
func finalizeCandles(candles []models.Candle, interval string) []models.Candle {
	sort.Slice(candles, func(i, j int) bool { return candles[i].OpenTime < candles[j].OpenTime })

	step := models.IntervalDuration(interval).Milliseconds()
	out := candles[:0]
	for _, c := range candles {
		if n := len(out); n > 0 && out[n-1].OpenTime == c.OpenTime {
			continue
		}
		if c.CloseTime == 0 {
			c.CloseTime = c.OpenTime + step - 1
		}
		out = append(out, c)
	}
	return out
}

// splitInstrument "BTC-USDT-SWAP" / "BTCUSDT" -> "BTC", ok=false для не-USDT контрактов
func splitInstrument(instrument string) (string, bool) {
	up := strings.ToUpper(instrument)
	if !strings.Contains(up, "USDT") {
		return "", false
	}
	base := models.NormalizeSymbol(up)
	if base == "" || strings.Contains(base, "-") {
		return "", false
	}
	return base, true
}
