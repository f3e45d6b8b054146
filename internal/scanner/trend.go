package scanner

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/skalibog/perpsentry/internal/analysis/funding"
	"github.com/skalibog/perpsentry/internal/analysis/oianalysis"
	"github.com/skalibog/perpsentry/internal/analysis/signal"
	"github.com/skalibog/perpsentry/internal/metrics"
	"github.com/skalibog/perpsentry/internal/notify"
	"github.com/skalibog/perpsentry/internal/storage"
	"github.com/skalibog/perpsentry/internal/tracker"
	"github.com/skalibog/perpsentry/pkg/models"
)

// defaultCandleLimit история свечей, если конвейер ее не задал
const defaultCandleLimit = 150

func candleLimit(limit int) int {
	if limit <= 0 {
		return defaultCandleLimit
	}
	return limit
}

// runTrend конвейер OI/цена: снимок OI, свечи интервала, классификатор, трекер
func (s *Scanner) runTrend(ctx context.Context, c *cycle) error {
	dir := s.config.Storage.StateDir
	trackerStore := storage.NewTrackerStore(dir, c.pipeline.Name)
	historyStore := storage.NewOIHistoryStore(dir, c.pipeline.Name)

	entries, err := loadOrEmpty(trackerStore)
	if err != nil {
		return err
	}
	history, err := loadOrEmpty(historyStore)
	if err != nil {
		return err
	}
	lookback, slack := oiWindow(c.pipeline)
	base := oianalysis.Baseline(history, c.now, lookback, slack)

	tickers, symbols, err := s.universe(c)
	if err != nil {
		return err
	}

	var (
		mu      sync.Mutex
		signals []models.Signal
		points  = make(map[string]models.OIPoint, len(symbols))
	)
	s.fanOut(c, symbols, func(symbol string) {
		sig, point, ok := s.observeTrend(c, base, symbol, tickers[symbol])
		mu.Lock()
		defer mu.Unlock()
		if point.OI > 0 {
			points[symbol] = point
		}
		if ok {
			signals = append(signals, sig)
		}
	})
	sortedSignals(signals)

	tr := tracker.New(s.config.Tracker, entries)
	if evicted := tr.Evict(c.now); len(evicted) > 0 {
		c.log.Debug("Записи трекера устарели", zap.Strings("symbols", evicted))
	}
	var decisions []tracker.Decision
	for _, sig := range signals {
		if !sig.Kind.Alertable() {
			continue
		}
		if d := tr.Observe(sig, c.now); d.Tag.Emits() {
			decisions = append(decisions, d)
		}
	}

	// трекер сохраняется до отправки, неотправленное откатывается и пишется повторно
	if err := trackerStore.Save(tr.Entries()); err != nil {
		return fmt.Errorf("ошибка сохранения трекера: %w", err)
	}
	if reverted := s.emitDecisions(ctx, c, tr, decisions); reverted > 0 {
		if err := trackerStore.Save(tr.Entries()); err != nil {
			return fmt.Errorf("ошибка сохранения трекера после отката: %w", err)
		}
	}

	history = oianalysis.Push(history, models.OISnapshot{Timestamp: c.now, Data: points}, lookback)
	if err := historyStore.Save(history); err != nil {
		return fmt.Errorf("ошибка сохранения снимка OI: %w", err)
	}
	s.history.RecordSignals(ctx, c.pipeline.Name, signals)

	c.log.Info("Сканирование завершено",
		zap.Int("symbols", len(symbols)),
		zap.Int("signals", len(signals)),
		zap.Int("alerts", len(decisions)),
		zap.Int("tracked", tr.Len()))

	if c.pipeline.Paper {
		return s.runBook(ctx, c, signals)
	}
	return nil
}

// observeTrend OI, свечи и сигнал одного символа. base снимок примерно час
// назад, может быть nil. ok=false: сигнала нет, но точку OI для снимка можно сохранить.
func (s *Scanner) observeTrend(c *cycle, base *models.OISnapshot, symbol string, ticker models.Ticker) (models.Signal, models.OIPoint, bool) {
	oi, err := s.client.FetchOpenInterest(c.fetch, symbol)
	if err != nil {
		s.skip(c, symbol, "open_interest", err)
		return models.Signal{}, models.OIPoint{}, false
	}
	point := models.OIPoint{OI: oi.Value, Price: ticker.LastPrice}
	if point.OI*point.Price < s.config.Scan.MinOIUSD {
		metrics.SymbolsSkipped.WithLabelValues(c.pipeline.Name, "min_oi").Inc()
		return models.Signal{}, point, false
	}

	series, err := s.client.FetchCandles(c.fetch, symbol, c.pipeline.Interval, candleLimit(c.pipeline.CandleLimit), nil)
	if err != nil {
		s.skip(c, symbol, "candles", err)
		return models.Signal{}, point, false
	}

	in := signal.Inputs{Series: series, Ticker: &ticker}
	lookback, _ := oiWindow(c.pipeline)
	if d, ok := oianalysis.Change(base, symbol, point, c.now, 2*lookback); ok {
		in.OIChange = &d.OIChange
	}
	cfg := s.config.Signal
	b, err := signal.BuildBundle(in, cfg.VolRecent, cfg.VolPrior, cfg.SwingLength)
	if err != nil {
		metrics.SymbolsSkipped.WithLabelValues(c.pipeline.Name, "underflow").Inc()
		c.log.Debug("Индикаторы недоступны", zap.String("symbol", symbol), zap.Int("candles", len(series.Candles)), zap.Error(err))
		return models.Signal{}, point, false
	}

	sig := s.classifier.Classify(b, c.now)
	if sig.Kind.IsDirectional() {
		s.tagFunding(c, &sig)
	}
	return sig, point, true
}

// tagFunding добавляет тег перекоса финансирования за последние сутки
// и среднюю и пиковую ставку к алерту
func (s *Scanner) tagFunding(c *cycle, sig *models.Signal) {
	rates, err := s.client.FetchFundingRateHistory(c.fetch, sig.Symbol, c.now.Add(-funding.Window), c.now)
	if err != nil {
		c.log.Debug("История финансирования недоступна", zap.String("symbol", sig.Symbol), zap.Error(err))
		return
	}
	tag, ok := s.funding.Tag(rates)
	if !ok {
		return
	}
	if !sig.HasTag(tag) {
		sig.Tags = append(sig.Tags, tag)
	}
	sig.Funding = &models.FundingStats{Average: funding.Average(rates), Extreme: funding.Extreme(rates)}
}

// emitDecisions отправляет алерты; неотправленные откатываются в трекере.
// Возвращает число откатов.
func (s *Scanner) emitDecisions(ctx context.Context, c *cycle, tr *tracker.Tracker, decisions []tracker.Decision) int {
	reverted := 0
	for _, d := range decisions {
		msg, err := notify.FormatAlert(notify.Alert{
			Pipeline: c.pipeline.Name,
			Interval: c.pipeline.Interval,
			Tag:      string(d.Tag),
			Emoji:    d.Tag.Emoji(),
			Signal:   d.Signal,
			Count:    d.Entry.Count,
			Minutes:  d.Entry.DurationMinutes,
		})
		if err == nil {
			err = s.emit(ctx, c, msg)
		}
		if err != nil {
			tr.Revert(d)
			reverted++
			c.log.Error("Алерт не отправлен, запись трекера откатана",
				zap.String("symbol", d.Symbol),
				zap.String("tag", string(d.Tag)),
				zap.Error(err))
			continue
		}
		metrics.Alerts.WithLabelValues(c.pipeline.Name, string(d.Tag)).Inc()
		s.history.RecordAlert(ctx, c.pipeline.Name, string(d.Tag), d.Signal)
	}
	return reverted
}
