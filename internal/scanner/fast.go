package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/skalibog/perpsentry/internal/metrics"
	"github.com/skalibog/perpsentry/internal/notify"
	"github.com/skalibog/perpsentry/internal/storage"
	"github.com/skalibog/perpsentry/internal/tracker"
	"github.com/skalibog/perpsentry/pkg/models"
)

// Теги 5-минутных алертов
const (
	TagEarly = "EARLY"
	TagOI5m  = "OI5M"
)

// outgoing алерт под кулдауном
type outgoing struct {
	tag     string
	signal  models.Signal
	message string
}

// runEarly ранние импульсы на 5-минутных свечах под кулдауном
func (s *Scanner) runEarly(ctx context.Context, c *cycle) error {
	store := storage.NewCooldownStore(s.config.Storage.StateDir, c.pipeline.Name)
	last, err := loadOrEmpty(store)
	if err != nil {
		return err
	}
	cd := tracker.NewCooldown(
		time.Duration(s.config.Tracker.CooldownMinutes)*time.Minute,
		time.Duration(s.config.Tracker.CooldownHistoryHours)*time.Hour,
		last)

	tickers, symbols, err := s.universe(c)
	if err != nil {
		return err
	}

	var (
		mu      sync.Mutex
		signals []models.Signal
	)
	s.fanOut(c, symbols, func(symbol string) {
		series, err := s.client.FetchCandles(c.fetch, symbol, c.pipeline.Interval, candleLimit(c.pipeline.CandleLimit), nil)
		if err != nil {
			s.skip(c, symbol, "candles", err)
			return
		}
		ticker := tickers[symbol]
		sig := s.classifier.ClassifyEarly(series, &ticker, c.now)
		if sig.Kind != models.KindEarlyLong && sig.Kind != models.KindEarlyShort {
			return
		}
		mu.Lock()
		signals = append(signals, sig)
		mu.Unlock()
	})
	sortedSignals(signals)

	var out []outgoing
	for _, sig := range signals {
		msg, err := notify.FormatAlert(notify.Alert{
			Pipeline: c.pipeline.Name,
			Interval: c.pipeline.Interval,
			Tag:      TagEarly,
			Emoji:    "⚡",
			Signal:   sig,
			Count:    1,
		})
		if err != nil {
			c.log.Error("Ошибка форматирования", zap.String("symbol", sig.Symbol), zap.Error(err))
			continue
		}
		out = append(out, outgoing{tag: TagEarly, signal: sig, message: msg})
	}

	if err := s.emitCooled(ctx, c, store, cd, out); err != nil {
		return err
	}
	s.history.RecordSignals(ctx, c.pipeline.Name, signals)
	c.log.Info("Сканирование ранних импульсов завершено", zap.Int("symbols", len(symbols)), zap.Int("signals", len(signals)))
	return nil
}

// runOI5Min резкие изменения OI против предыдущего 5-минутного снимка
func (s *Scanner) runOI5Min(ctx context.Context, c *cycle) error {
	dir := s.config.Storage.StateDir
	snapStore := storage.NewOISnapshotStore(dir, c.pipeline.Name)
	cdStore := storage.NewCooldownStore(dir, c.pipeline.Name)

	prev, err := loadOrEmpty(snapStore)
	if err != nil {
		return err
	}
	last, err := loadOrEmpty(cdStore)
	if err != nil {
		return err
	}
	cd := tracker.NewCooldown(
		time.Duration(s.config.OI5Min.CooldownMin)*time.Minute,
		time.Duration(s.config.Tracker.CooldownHistoryHours)*time.Hour,
		last)

	tickers, symbols, err := s.universe(c)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	cur := models.OISnapshot{Timestamp: c.now, Data: make(map[string]models.OIPoint, len(symbols))}
	s.fanOut(c, symbols, func(symbol string) {
		oi, err := s.client.FetchOpenInterest(c.fetch, symbol)
		if err != nil {
			s.skip(c, symbol, "open_interest", err)
			return
		}
		mu.Lock()
		cur.Data[symbol] = models.OIPoint{OI: oi.Value, Price: tickers[symbol].LastPrice}
		mu.Unlock()
	})

	var out []outgoing
	for _, m := range s.oi.Moves(&prev, cur, snapshotAge(c.pipeline)) {
		if m.OIUSD < s.config.Scan.MinOIUSD {
			metrics.SymbolsSkipped.WithLabelValues(c.pipeline.Name, "min_oi").Inc()
			continue
		}
		msg, err := notify.FormatOIMove(notify.OIMove{
			Symbol:      m.Symbol,
			Kind:        m.Kind,
			OIChange:    m.OIChange,
			PriceChange: m.PriceChange,
			OIUSD:       m.OIUSD,
			Extreme:     m.Extreme,
			Timestamp:   c.now,
		})
		if err != nil {
			c.log.Error("Ошибка форматирования", zap.String("symbol", m.Symbol), zap.Error(err))
			continue
		}
		tags := []string{TagOI5m}
		if m.Extreme {
			tags = append(tags, "EXTREME")
		}
		out = append(out, outgoing{
			tag:    TagOI5m,
			signal: models.Signal{
				Timestamp:     c.now,
				Symbol:        m.Symbol,
				Kind:          m.Kind,
				EntryPrice:    cur.Data[m.Symbol].Price,
				OIChange:      m.OIChange,
				PriceChange1h: m.PriceChange,
				Tags:          tags,
			},
			message: msg,
		})
	}

	if err := snapStore.Save(cur); err != nil {
		return fmt.Errorf("ошибка сохранения снимка OI: %w", err)
	}
	if err := s.emitCooled(ctx, c, cdStore, cd, out); err != nil {
		return err
	}
	c.log.Info("Сканирование OI завершено", zap.Int("symbols", len(cur.Data)), zap.Int("moves", len(out)))
	return nil
}

// emitCooled отметка кулдауна, запись, отправка; неотправленные отметки
// откатываются и история кулдауна записывается повторно
func (s *Scanner) emitCooled(ctx context.Context, c *cycle, store *storage.CooldownStore, cd *tracker.Cooldown, items []outgoing) error {
	if n := cd.GC(c.now); n > 0 {
		c.log.Debug("История кулдауна очищена", zap.Int("removed", n))
	}

	type marked struct {
		outgoing
		undo func()
	}
	var queue []marked
	for _, it := range items {
		if !cd.Allow(it.signal.Symbol, c.now) {
			c.log.Debug("Кулдаун", zap.String("symbol", it.signal.Symbol))
			continue
		}
		queue = append(queue, marked{outgoing: it, undo: cd.Mark(it.signal.Symbol, c.now)})
	}

	if err := store.Save(cd.Snapshot()); err != nil {
		return fmt.Errorf("ошибка сохранения кулдауна: %w", err)
	}

	undone := 0
	for _, q := range queue {
		if err := s.emit(ctx, c, q.message); err != nil {
			q.undo()
			undone++
			c.log.Error("Алерт не отправлен, кулдаун откатан", zap.String("symbol", q.signal.Symbol), zap.Error(err))
			continue
		}
		metrics.Alerts.WithLabelValues(c.pipeline.Name, q.tag).Inc()
		s.history.RecordAlert(ctx, c.pipeline.Name, q.tag, q.signal)
	}
	if undone > 0 {
		if err := store.Save(cd.Snapshot()); err != nil {
			return fmt.Errorf("ошибка сохранения кулдауна после отката: %w", err)
		}
	}
	return nil
}
