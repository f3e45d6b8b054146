package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/skalibog/perpsentry/internal/config"
	"github.com/skalibog/perpsentry/internal/metrics"
	"github.com/skalibog/perpsentry/pkg/logger"
	"github.com/skalibog/perpsentry/pkg/models"
)

// maxRequestTimeout жесткий дедлайн одного запроса
const maxRequestTimeout = 15 * time.Second

// venueSlot площадка вместе с ее ограничителями
type venueSlot struct {
	venue   Venue
	limiter *rate.Limiter
	sem     *semaphore.Weighted
}

// FallbackClient обходит площадки в порядке приоритета.
// Повторяемые ошибки повторяются с линейной задержкой, затем следующая площадка;
// неповторяемые сразу возвращаются вызывающему.
type FallbackClient struct {
	slots          []venueSlot
	retries        int
	backoff        time.Duration
	requestTimeout time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
}

// NewFallbackClient создает клиента по списку площадок
func NewFallbackClient(cfg config.ExchangeConfig, venues []Venue) *FallbackClient {
	delays := make(map[string]time.Duration, len(cfg.Venues))
	for _, vc := range cfg.Venues {
		delays[vc.Name] = time.Duration(vc.MinDelayMs) * time.Millisecond
	}

	slots := make([]venueSlot, 0, len(venues))
	for _, v := range venues {
		limit := rate.Inf
		if d := delays[v.Name()]; d > 0 {
			limit = rate.Every(d)
		}
		concurrency := cfg.Concurrency
		if concurrency <= 0 {
			concurrency = 1
		}
		slots = append(slots, venueSlot{
			venue:   v,
			limiter: rate.NewLimiter(limit, 1),
			sem:     semaphore.NewWeighted(int64(concurrency)),
		})
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 || timeout > maxRequestTimeout {
		timeout = maxRequestTimeout
	}

	return &FallbackClient{
		slots:          slots,
		retries:        cfg.Retries,
		backoff:        time.Duration(cfg.BackoffMillis) * time.Millisecond,
		requestTimeout: timeout,
		sleep:          sleepCtx,
	}
}

// FetchCandles получает свечи
func (c *FallbackClient) FetchCandles(ctx context.Context, symbol, interval string, limit int, endTime *time.Time) (models.Series, error) {
	candles, err := fetch(ctx, c, "candles", symbol, func(ctx context.Context, v Venue) ([]models.Candle, error) {
		return v.Candles(ctx, symbol, interval, limit, endTime)
	}, func(cs []models.Candle) bool { return len(cs) == 0 })
	if err != nil {
		return models.Series{Symbol: symbol, Interval: interval}, err
	}
	return models.Series{Symbol: symbol, Interval: interval, Candles: candles}, nil
}

// FetchTicker получает 24-часовую статистику символа
func (c *FallbackClient) FetchTicker(ctx context.Context, symbol string) (*models.Ticker, error) {
	return fetch(ctx, c, "ticker", symbol, func(ctx context.Context, v Venue) (*models.Ticker, error) {
		return v.Ticker(ctx, symbol)
	}, func(t *models.Ticker) bool { return t == nil || t.LastPrice <= 0 })
}

// FetchOpenInterest получает текущий открытый интерес
func (c *FallbackClient) FetchOpenInterest(ctx context.Context, symbol string) (*models.OpenInterest, error) {
	return fetch(ctx, c, "open_interest", symbol, func(ctx context.Context, v Venue) (*models.OpenInterest, error) {
		return v.OpenInterest(ctx, symbol)
	}, func(oi *models.OpenInterest) bool { return oi == nil || oi.Value <= 0 })
}

// FetchAllTickers одна выгрузка тикеров на цикл вместо N отдельных запросов
func (c *FallbackClient) FetchAllTickers(ctx context.Context) (map[string]models.Ticker, error) {
	return fetch(ctx, c, "all_tickers", "", func(ctx context.Context, v Venue) (map[string]models.Ticker, error) {
		return v.AllTickers(ctx)
	}, func(m map[string]models.Ticker) bool { return len(m) == 0 })
}

// FetchFundingRateHistory получает историю ставок финансирования
func (c *FallbackClient) FetchFundingRateHistory(ctx context.Context, symbol string, start, end time.Time) ([]models.FundingRate, error) {
	return fetch(ctx, c, "funding", symbol, func(ctx context.Context, v Venue) ([]models.FundingRate, error) {
		return v.FundingRateHistory(ctx, symbol, start, end)
	}, func(rs []models.FundingRate) bool { return len(rs) == 0 })
}

// fetch выполняет вызов по цепочке площадок
func fetch[T any](
	ctx context.Context,
	c *FallbackClient,
	op, symbol string,
	call func(ctx context.Context, v Venue) (T, error),
	empty func(T) bool,
) (T, error) {
	var zero T
	var errs error

	if len(c.slots) == 0 {
		return zero, NewPermanentError("none", op, symbol, errors.New("не настроено ни одной площадки"))
	}

	for _, slot := range c.slots {
		name := slot.venue.Name()

		for attempt := 0; attempt <= c.retries; attempt++ {
			if attempt > 0 {
				// Линейная задержка: backoff * номер попытки
				if err := c.sleep(ctx, c.backoff*time.Duration(attempt)); err != nil {
					return zero, multierr.Append(errs, NewTransientError(name, op, symbol, err))
				}
			}

			res, err := callOnce(ctx, c, slot, call)
			if err == nil {
				if empty(res) {
					// Пустой ответ: пробуем следующую площадку без повторов
					errs = multierr.Append(errs, fmt.Errorf("%s/%s: %w", name, op, ErrNoData))
					break
				}
				return res, nil
			}

			metrics.FetchErrors.WithLabelValues(name, op, string(kindOf(err))).Inc()

			if ctx.Err() != nil {
				return zero, multierr.Append(errs, NewTransientError(name, op, symbol, ctx.Err()))
			}
			if !IsTransient(err) {
				logger.Warn("Неповторяемая ошибка площадки, символ пропущен",
					zap.String("venue", name), zap.String("op", op),
					zap.String("symbol", symbol), zap.Error(err))
				return zero, err
			}

			errs = multierr.Append(errs, err)
			logger.Debug("Повторяемая ошибка площадки",
				zap.String("venue", name), zap.String("op", op),
				zap.String("symbol", symbol), zap.Int("attempt", attempt+1), zap.Error(err))
		}
	}

	if allNoData(errs) {
		return zero, ErrNoData
	}
	return zero, &FetchError{Kind: KindTransient, Venue: "all", Op: op, Symbol: symbol, Err: errs}
}

// callOnce один запрос с учетом ограничителей площадки и жесткого дедлайна
func callOnce[T any](ctx context.Context, c *FallbackClient, slot venueSlot, call func(ctx context.Context, v Venue) (T, error)) (T, error) {
	var zero T

	if err := slot.limiter.Wait(ctx); err != nil {
		return zero, NewTransientError(slot.venue.Name(), "rate_limit", "", err)
	}
	if err := slot.sem.Acquire(ctx, 1); err != nil {
		return zero, NewTransientError(slot.venue.Name(), "semaphore", "", err)
	}
	defer slot.sem.Release(1)

	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	return call(reqCtx, slot.venue)
}

func kindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindTransient
}

func allNoData(err error) bool {
	if err == nil {
		return false
	}
	for _, e := range multierr.Errors(err) {
		if !errors.Is(e, ErrNoData) {
			return false
		}
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
