package models

import (
	"strings"
	"time"
)

// Candle представляет свечу в каноническом виде, независимо от биржи
type Candle struct {
	OpenTime  int64   `json:"openTime"` // мс, UTC, левая граница
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"` // в базовой валюте
	CloseTime int64   `json:"closeTime"`
}

// IsUp возвращает true для растущей свечи
func (c Candle) IsUp() bool { return c.Close > c.Open }

// IsDown возвращает true для падающей свечи
func (c Candle) IsDown() bool { return c.Close < c.Open }

// Series упорядоченная последовательность свечей одного интервала (старые -> новые)
type Series struct {
	Symbol   string
	Interval string
	Candles  []Candle
}

// Closes возвращает цены закрытия
func (s Series) Closes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Close
	}
	return out
}

// Last возвращает последнюю свечу
func (s Series) Last() (Candle, bool) {
	if len(s.Candles) == 0 {
		return Candle{}, false
	}
	return s.Candles[len(s.Candles)-1], true
}

// Ticker 24-часовая статистика по символу
type Ticker struct {
	Symbol             string  `json:"symbol"`
	LastPrice          float64 `json:"lastPrice"`
	PriceChangePercent float64 `json:"priceChangePercent"`
	QuoteVolume        float64 `json:"quoteVolume"`
	High24h            float64 `json:"high24h,omitempty"`
	Low24h             float64 `json:"low24h,omitempty"`
}

// OpenInterest открытый интерес в контрактах базовой валюты
type OpenInterest struct {
	Symbol    string    `json:"symbol"`
	Value     float64   `json:"openInterest"`
	Timestamp time.Time `json:"timestamp"`
}

// FundingRate ставка финансирования
type FundingRate struct {
	Symbol      string    `json:"symbol"`
	Rate        float64   `json:"fundingRate"`
	FundingTime time.Time `json:"fundingTime"`
}

// NormalizeSymbol приводит тикер к базовому виду в верхнем регистре ("btcusdt" -> "BTC")
func NormalizeSymbol(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "-USDT-SWAP")
	s = strings.TrimSuffix(s, "-USDT")
	s = strings.TrimSuffix(s, "USDT")
	return s
}

// OIPoint значение OI и цены символа в момент снимка
type OIPoint struct {
	OI    float64 `json:"oi" validate:"gte=0"`
	Price float64 `json:"price" validate:"gte=0"`
}

// OISnapshot снимок открытого интереса по всем символам цикла
type OISnapshot struct {
	Timestamp time.Time          `json:"timestamp"`
	Data      map[string]OIPoint `json:"data" validate:"dive"`
}

// OIHistory снимки OI конвейера от старых к новым
type OIHistory struct {
	Snapshots []OISnapshot `json:"snapshots" validate:"dive"`
}

// IntervalDuration длительность строкового интервала свечи, по умолчанию час
func IntervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "3m":
		return 3 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "2h":
		return 2 * time.Hour
	case "4h":
		return 4 * time.Hour
	case "6h":
		return 6 * time.Hour
	case "12h":
		return 12 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return time.Hour
	}
}
