// Package scanner выполняет циклы конвейеров: загрузка данных, индикаторы,
// классификация, трекер, оповещения, виртуальная книга и сохранение состояния.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skalibog/perpsentry/internal/analysis/funding"
	"github.com/skalibog/perpsentry/internal/analysis/oianalysis"
	"github.com/skalibog/perpsentry/internal/analysis/signal"
	"github.com/skalibog/perpsentry/internal/config"
	"github.com/skalibog/perpsentry/internal/exchange"
	"github.com/skalibog/perpsentry/internal/metrics"
	"github.com/skalibog/perpsentry/internal/notify"
	"github.com/skalibog/perpsentry/internal/storage"
	"github.com/skalibog/perpsentry/pkg/logger"
	"github.com/skalibog/perpsentry/pkg/models"
)

// Scanner общий исполнитель циклов для всех конвейеров.
// Разные конвейеры можно запускать параллельно: у каждого свои файлы состояния.
type Scanner struct {
	config     *config.Config
	client     exchange.MarketDataClient
	sink       notify.Sink
	history    storage.History
	classifier *signal.Classifier
	funding    *funding.Analyzer
	oi         *oianalysis.Analyzer
	now        func() time.Time

	bookMu sync.Mutex
}

// New создает сканер
func New(cfg *config.Config, client exchange.MarketDataClient, sink notify.Sink, history storage.History) *Scanner {
	if history == nil {
		history = storage.NopHistory{}
	}
	return &Scanner{
		config:     cfg,
		client:     client,
		sink:       sink,
		history:    history,
		classifier: signal.NewClassifier(cfg.Signal),
		funding:    funding.NewAnalyzer(cfg.Signal.FundingExtreme),
		oi:         oianalysis.NewAnalyzer(cfg.OI5Min),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Pipeline конвейер по имени
func (s *Scanner) Pipeline(name string) (config.PipelineConfig, bool) {
	for _, p := range s.config.Pipelines {
		if p.Name == name {
			return p, true
		}
	}
	return config.PipelineConfig{}, false
}

// cycle контекст одного запуска конвейера
type cycle struct {
	pipeline config.PipelineConfig
	now      time.Time
	log      *zap.Logger
	// fetch ограничен мягким дедлайном цикла, отправка и запись идут без него
	fetch context.Context
}

// Run выполняет один цикл конвейера
func (s *Scanner) Run(ctx context.Context, p config.PipelineConfig) (err error) {
	started := time.Now()
	c := &cycle{
		pipeline: p,
		now:      s.now(),
		log:      logger.With(zap.String("pipeline", p.Name), zap.String("cycle", uuid.NewString()[:8])),
	}
	fetchCtx, cancel := context.WithTimeout(ctx, time.Duration(s.config.Scan.CycleDeadlineSeconds)*time.Second)
	defer cancel()
	c.fetch = fetchCtx

	defer func() {
		metrics.ObserveCycle(p.Name, started, err)
		if err != nil {
			c.log.Error("Цикл завершился с ошибкой", zap.Error(err), zap.Duration("took", time.Since(started)))
			return
		}
		c.log.Info("Цикл завершен", zap.Duration("took", time.Since(started)))
	}()

	switch p.Kind {
	case "trend":
		return s.runTrend(ctx, c)
	case "early":
		return s.runEarly(ctx, c)
	case "oi5min":
		return s.runOI5Min(ctx, c)
	default:
		return fmt.Errorf("неизвестный тип конвейера %q", p.Kind)
	}
}

// fanOut обрабатывает символы параллельно с ограничением; после дедлайна
// оставшиеся символы пропускаются
func (s *Scanner) fanOut(c *cycle, symbols []string, fn func(symbol string)) {
	var g errgroup.Group
	g.SetLimit(s.config.Exchange.Concurrency)
	for _, symbol := range symbols {
		g.Go(func() error {
			if c.fetch.Err() != nil {
				metrics.SymbolsSkipped.WithLabelValues(c.pipeline.Name, "deadline").Inc()
				return nil
			}
			fn(symbol)
			return nil
		})
	}
	_ = g.Wait()
	if c.fetch.Err() != nil {
		c.log.Warn("Дедлайн цикла, часть символов пропущена")
	}
}

// skip учитывает ошибку загрузки символа; символ пропускается в этом цикле
func (s *Scanner) skip(c *cycle, symbol, what string, err error) {
	reason := "transient"
	switch {
	case errors.Is(err, exchange.ErrNoData):
		reason = "no_data"
	case exchange.IsPermanent(err):
		reason = "permanent"
	}
	metrics.SymbolsSkipped.WithLabelValues(c.pipeline.Name, reason).Inc()
	if reason == "no_data" {
		c.log.Debug("Нет данных по символу", zap.String("symbol", symbol), zap.String("what", what))
		return
	}
	c.log.Warn("Символ пропущен", zap.String("symbol", symbol), zap.String("what", what), zap.String("reason", reason), zap.Error(err))
}

// snapshotAge максимальный возраст предыдущего снимка OI для сравнения
func snapshotAge(p config.PipelineConfig) time.Duration {
	return 2 * time.Duration(p.EveryMinutes) * time.Minute
}

// oiLookback окно изменения OI трендовых конвейеров, как у изменения цены за час
const oiLookback = time.Hour

// oiWindow окно сравнения OI и допуск в полцикла на дрожание расписания.
// Конвейер реже раза в час сравнивает с предыдущим циклом.
func oiWindow(p config.PipelineConfig) (lookback, slack time.Duration) {
	every := time.Duration(p.EveryMinutes) * time.Minute
	return max(oiLookback, every), every / 2
}

// loadOrEmpty читает состояние; поврежденный файл уже отложен, цикл идет с пустого
func loadOrEmpty[T any](store *storage.Store[T]) (T, error) {
	v, err := store.Load()
	if err != nil && !errors.Is(err, storage.ErrCorrupt) {
		return v, err
	}
	return v, nil
}

// emit отправляет сообщение в ветку конвейера
func (s *Scanner) emit(ctx context.Context, c *cycle, message string) error {
	return s.sink.Emit(ctx, message, c.pipeline.ThreadID)
}

func sortedSignals(sigs []models.Signal) {
	sort.Slice(sigs, func(i, j int) bool { return sigs[i].Symbol < sigs[j].Symbol })
}
