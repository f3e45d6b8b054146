package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/skalibog/perpsentry/internal/metrics"
	"github.com/skalibog/perpsentry/internal/notify"
	"github.com/skalibog/perpsentry/internal/paper"
	"github.com/skalibog/perpsentry/internal/storage"
	"github.com/skalibog/perpsentry/pkg/logger"
	"github.com/skalibog/perpsentry/pkg/models"
)

// monitorInterval свечи для мониторинга позиций
const (
	monitorInterval = "5m"
	maxMonitorBars  = 500
)

func (s *Scanner) bookStore() *storage.BookStore {
	return storage.NewBookStore(s.config.Storage.StateDir)
}

// runBook мониторинг открытых позиций по 5-минутным свечам, затем допуск
// новых сигналов. Книга записывается одной атомарной заменой.
func (s *Scanner) runBook(ctx context.Context, c *cycle, signals []models.Signal) error {
	s.bookMu.Lock()
	defer s.bookMu.Unlock()

	store := s.bookStore()
	st, err := loadOrEmpty(store)
	if err != nil {
		return err
	}
	book := paper.NewBook(s.config.Paper, st)
	hadPositions := len(book.Positions()) > 0

	bars, marks := s.positionBars(c, book.Positions())
	closed := book.Tick(bars, c.now)

	candidates := make([]models.Signal, 0, len(signals))
	for _, sig := range signals {
		if sig.Admissible {
			candidates = append(candidates, sig)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].StrengthScore > candidates[j].StrengthScore })

	var opened []paper.Position
	for _, sig := range candidates {
		p, err := book.OnSignal(sig, c.now)
		if err != nil {
			c.log.Debug("Сигнал не допущен в книгу", zap.String("symbol", sig.Symbol), zap.Error(err))
			continue
		}
		marks[p.Symbol] = p.EntryPrice
		opened = append(opened, p)
	}

	if !hadPositions && len(opened) == 0 {
		return nil
	}
	if err := store.Save(book.Snapshot()); err != nil {
		return fmt.Errorf("ошибка сохранения книги: %w", err)
	}

	for _, t := range closed {
		metrics.TradesClosed.WithLabelValues(string(t.Reason)).Inc()
	}
	s.history.RecordTrades(ctx, closed)
	s.notifyBook(ctx, book, opened, closed, marks)
	return nil
}

// positionBars 5-минутные свечи с момента последней учтенной для каждой позиции
func (s *Scanner) positionBars(c *cycle, positions []paper.Position) (map[string][]models.Candle, map[string]float64) {
	var mu sync.Mutex
	bars := make(map[string][]models.Candle, len(positions))
	marks := make(map[string]float64, len(positions))

	bySymbol := make(map[string]paper.Position, len(positions))
	symbols := make([]string, 0, len(positions))
	for _, p := range positions {
		bySymbol[p.Symbol] = p
		symbols = append(symbols, p.Symbol)
	}

	s.fanOut(c, symbols, func(symbol string) {
		p := bySymbol[symbol]
		series, err := s.client.FetchCandles(c.fetch, symbol, monitorInterval, monitorLimit(p, c.now), nil)
		if err != nil {
			s.skip(c, symbol, "monitor", err)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		bars[symbol] = series.Candles
		if last, ok := series.Last(); ok {
			marks[symbol] = last.Close
		}
	})
	return bars, marks
}

// monitorLimit сколько 5-минутных свечей нужно, чтобы покрыть время с последней учтенной
func monitorLimit(p paper.Position, now time.Time) int {
	since := p.EntryTime
	if p.LastBar > 0 {
		if t := time.UnixMilli(p.LastBar); t.After(since) {
			since = t
		}
	}
	n := int(now.Sub(since)/(5*time.Minute)) + 2
	if n > maxMonitorBars {
		n = maxMonitorBars
	}
	return n
}

// notifyBook сообщение о событиях книги; ошибка отправки книгу не откатывает
func (s *Scanner) notifyBook(ctx context.Context, book *paper.Book, opened []paper.Position, closed []paper.ClosedTrade, marks map[string]float64) {
	var parts []string
	for _, p := range opened {
		if msg, err := notify.FormatOpened(p); err == nil {
			parts = append(parts, msg)
		}
	}
	if len(closed) > 0 {
		if msg, err := notify.FormatTrades(closed); err == nil {
			parts = append(parts, msg)
		}
		if msg, err := notify.FormatSummary(book.Summary(marks)); err == nil {
			parts = append(parts, msg)
		}
	}
	if len(parts) == 0 {
		return
	}
	if err := s.sink.Emit(ctx, strings.Join(parts, "\n\n"), s.config.Notify.BookThreadID); err != nil {
		logger.Error("Сообщение книги не отправлено", zap.Error(err))
	}
}

// marks текущие цены открытых позиций; недоступные символы пропускаются
func (s *Scanner) marks(ctx context.Context, positions []paper.Position) map[string]float64 {
	out := make(map[string]float64, len(positions))
	for _, p := range positions {
		t, err := s.client.FetchTicker(ctx, p.Symbol)
		if err != nil || t == nil {
			logger.Warn("Нет цены для оценки позиции", zap.String("symbol", p.Symbol), zap.Error(err))
			continue
		}
		out[p.Symbol] = t.LastPrice
	}
	return out
}

// BookSummary сводка книги по текущим ценам
func (s *Scanner) BookSummary(ctx context.Context) (paper.Summary, error) {
	st, err := loadOrEmpty(s.bookStore())
	if err != nil {
		return paper.Summary{}, err
	}
	book := paper.NewBook(s.config.Paper, st)
	return book.Summary(s.marks(ctx, book.Positions())), nil
}

// ClosePosition ручное закрытие остатка позиции по текущей цене
func (s *Scanner) ClosePosition(ctx context.Context, symbol string) (paper.ClosedTrade, error) {
	s.bookMu.Lock()
	defer s.bookMu.Unlock()

	symbol = models.NormalizeSymbol(symbol)
	store := s.bookStore()
	st, err := loadOrEmpty(store)
	if err != nil {
		return paper.ClosedTrade{}, err
	}
	book := paper.NewBook(s.config.Paper, st)

	t, err := s.client.FetchTicker(ctx, symbol)
	if err != nil {
		return paper.ClosedTrade{}, fmt.Errorf("нет цены %s: %w", symbol, err)
	}
	if t == nil {
		return paper.ClosedTrade{}, errors.New("пустой тикер " + symbol)
	}

	rec, err := book.Close(symbol, t.LastPrice, s.now())
	if err != nil {
		return paper.ClosedTrade{}, err
	}
	if err := store.Save(book.Snapshot()); err != nil {
		return paper.ClosedTrade{}, fmt.Errorf("ошибка сохранения книги: %w", err)
	}

	metrics.TradesClosed.WithLabelValues(string(rec.Reason)).Inc()
	s.history.RecordTrades(ctx, []paper.ClosedTrade{rec})
	s.notifyBook(ctx, book, nil, []paper.ClosedTrade{rec}, s.marks(ctx, book.Positions()))
	return rec, nil
}

// ResetBook стартовый капитал без позиций и истории
func (s *Scanner) ResetBook() error {
	s.bookMu.Lock()
	defer s.bookMu.Unlock()

	book := paper.NewBook(s.config.Paper, paper.State{})
	if err := s.bookStore().Save(book.Snapshot()); err != nil {
		return fmt.Errorf("ошибка сохранения книги: %w", err)
	}
	logger.Info("Виртуальная книга сброшена", zap.Float64("capital", book.Capital()))
	return nil
}
