package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skalibog/perpsentry/internal/config"
)

func serve(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBybitCandlesAreReversedAndNormalized(t *testing.T) {
	srv := serve(t, map[string]string{
		"/v5/market/kline": `{"retCode":0,"retMsg":"OK","result":{"list":[
			["1700003600000","101","103","100","102","20","2040"],
			["1700000000000","100","102","99","101","10","1010"]
		]}}`,
	})
	v := NewBybitVenue(config.VenueConfig{BaseURL: srv.URL}, time.Second)

	candles, err := v.Candles(context.Background(), "BTC", "1h", 2, nil)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, int64(1700000000000), candles[0].OpenTime)
	assert.Equal(t, int64(1700003600000-1), candles[0].CloseTime)
	assert.Equal(t, 101.0, candles[0].Close)
	assert.Equal(t, 20.0, candles[1].Volume)
}

func TestBybitRetCodeClassification(t *testing.T) {
	srv := serve(t, map[string]string{
		"/v5/market/kline":         `{"retCode":10001,"retMsg":"params error","result":{}}`,
		"/v5/market/open-interest": `{"retCode":10006,"retMsg":"too many visits","result":{}}`,
	})
	v := NewBybitVenue(config.VenueConfig{BaseURL: srv.URL}, time.Second)

	_, err := v.Candles(context.Background(), "BTC", "1h", 2, nil)
	assert.True(t, IsPermanent(err))

	_, err = v.OpenInterest(context.Background(), "BTC")
	assert.True(t, IsTransient(err))
}

func TestBybitAllTickersPercentToPercent(t *testing.T) {
	srv := serve(t, map[string]string{
		"/v5/market/tickers": `{"retCode":0,"result":{"list":[
			{"symbol":"BTCUSDT","lastPrice":"50000","price24hPcnt":"0.0125","turnover24h":"123456789","highPrice24h":"51000","lowPrice24h":"49000"},
			{"symbol":"BTCPERP","lastPrice":"50000"}
		]}}`,
	})
	v := NewBybitVenue(config.VenueConfig{BaseURL: srv.URL}, time.Second)

	tickers, err := v.AllTickers(context.Background())
	require.NoError(t, err)
	require.Len(t, tickers, 1)

	btc := tickers["BTC"]
	assert.InDelta(t, 1.25, btc.PriceChangePercent, 1e-9)
	assert.Equal(t, 123456789.0, btc.QuoteVolume)
}

func TestOKXCandlesUseBaseVolume(t *testing.T) {
	srv := serve(t, map[string]string{
		"/api/v5/market/candles": `{"code":"0","msg":"","data":[
			["1700000300000","2","3","1","2.5","500","5","12.5","1"],
			["1700000000000","1","2","1","2","400","4","8","1"]
		]}`,
	})
	v := NewOKXVenue(config.VenueConfig{BaseURL: srv.URL}, time.Second)

	candles, err := v.Candles(context.Background(), "ETH", "5m", 2, nil)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, int64(1700000000000), candles[0].OpenTime)
	assert.Equal(t, 4.0, candles[0].Volume)
	assert.Equal(t, 5.0, candles[1].Volume)
}

func TestOKXTickerDerivedFields(t *testing.T) {
	srv := serve(t, map[string]string{
		"/api/v5/market/ticker": `{"code":"0","data":[{"instId":"SOL-USDT-SWAP","last":"110","open24h":"100","volCcy24h":"1000","high24h":"112","low24h":"98"}]}`,
	})
	v := NewOKXVenue(config.VenueConfig{BaseURL: srv.URL}, time.Second)

	tk, err := v.Ticker(context.Background(), "SOL")
	require.NoError(t, err)
	require.NotNil(t, tk)

	assert.Equal(t, "SOL", tk.Symbol)
	assert.InDelta(t, 10.0, tk.PriceChangePercent, 1e-9)
	assert.InDelta(t, 110000.0, tk.QuoteVolume, 1e-9)
}

func TestOKXMalformedBodyIsPermanent(t *testing.T) {
	srv := serve(t, map[string]string{
		"/api/v5/public/open-interest": `not json`,
	})
	v := NewOKXVenue(config.VenueConfig{BaseURL: srv.URL}, time.Second)

	_, err := v.OpenInterest(context.Background(), "BTC")
	assert.True(t, IsPermanent(err))
}

func TestServerErrorIsTransient(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	v := NewOKXVenue(config.VenueConfig{BaseURL: srv.URL}, time.Second)

	_, err := v.FundingRateHistory(context.Background(), "BTC", time.Now().Add(-24*time.Hour), time.Now())
	assert.True(t, IsTransient(err))
	// повторы делает FallbackClient, транспорт бьет один раз
	assert.EqualValues(t, 1, hits.Load())
}

func TestTransportSendsAcceptHeader(t *testing.T) {
	accept := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept <- r.Header.Get("Accept")
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	v := NewBybitVenue(config.VenueConfig{BaseURL: srv.URL}, time.Second)

	_, err := v.OpenInterest(context.Background(), "BTC")
	assert.True(t, IsPermanent(err))
	assert.Equal(t, "application/json", <-accept)
}

func TestBinanceKlines(t *testing.T) {
	srv := serve(t, map[string]string{
		"/fapi/v1/klines": `[
			[1700000000000,"100","102","99","101","10",1700003599999,"1010",5,"5","505","0"],
			[1700003600000,"101","103","100","102","20",1700007199999,"2040",7,"10","1020","0"]
		]`,
	})
	v := NewBinanceVenue(config.VenueConfig{BaseURL: srv.URL}, time.Second)

	candles, err := v.Candles(context.Background(), "BTC", "1h", 2, nil)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, 100.0, candles[0].Open)
	assert.Equal(t, int64(1700003599999), candles[0].CloseTime)
	assert.Equal(t, 20.0, candles[1].Volume)
}

func TestBinanceOpenInterest(t *testing.T) {
	srv := serve(t, map[string]string{
		"/fapi/v1/openInterest": `{"openInterest":"12345.5","symbol":"BTCUSDT","time":1700000000000}`,
	})
	v := NewBinanceVenue(config.VenueConfig{BaseURL: srv.URL}, time.Second)

	oi, err := v.OpenInterest(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, 12345.5, oi.Value)
	assert.Equal(t, "BTC", oi.Symbol)
}

func TestSplitInstrument(t *testing.T) {
	tests := map[string]string{
		"BTCUSDT":       "BTC",
		"ETH-USDT-SWAP": "ETH",
		"1000PEPEUSDT":  "1000PEPE",
	}
	for in, want := range tests {
		got, ok := splitInstrument(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := splitInstrument("BTC-USD-SWAP")
	assert.False(t, ok)
}
