package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/skalibog/perpsentry/pkg/logger"
)

var (
	// FetchErrors ошибки запросов к площадкам
	FetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "perpsentry",
		Name:      "fetch_errors_total",
		Help:      "Ошибки запросов к площадкам по площадке, операции и виду",
	}, []string{"venue", "op", "kind"})

	// Cycles завершенные циклы сканирования
	Cycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "perpsentry",
		Name:      "cycles_total",
		Help:      "Циклы сканирования по конвейеру и результату",
	}, []string{"pipeline", "result"})

	// CycleDuration длительность цикла
	CycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "perpsentry",
		Name:      "cycle_duration_seconds",
		Help:      "Длительность цикла сканирования",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
	}, []string{"pipeline"})

	// Alerts отправленные оповещения по тегу
	Alerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "perpsentry",
		Name:      "alerts_total",
		Help:      "Отправленные оповещения по конвейеру и тегу",
	}, []string{"pipeline", "tag"})

	// TradesClosed закрытые сделки бумажного журнала по причине
	TradesClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "perpsentry",
		Name:      "paper_trades_closed_total",
		Help:      "Закрытые бумажные сделки по причине",
	}, []string{"reason"})

	// SymbolsSkipped символы, пропущенные в цикле
	SymbolsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "perpsentry",
		Name:      "symbols_skipped_total",
		Help:      "Символы, пропущенные из-за ошибок или дедлайна цикла",
	}, []string{"pipeline", "reason"})
)

// ObserveCycle фиксирует результат и длительность цикла
func ObserveCycle(pipeline string, started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	Cycles.WithLabelValues(pipeline, result).Inc()
	CycleDuration.WithLabelValues(pipeline).Observe(time.Since(started).Seconds())
}

// Serve поднимает /metrics до отмены контекста; пустой адрес отключает листенер
func Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Метрики доступны", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
