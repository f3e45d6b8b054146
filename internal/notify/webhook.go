// Package notify доставляет готовые сообщения в чат через webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/evdnx/gohttpcl"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/skalibog/perpsentry/internal/config"
	"github.com/skalibog/perpsentry/pkg/logger"
)

// ErrNotifyFailure сообщение не доставлено после всех повторов
var ErrNotifyFailure = errors.New("не удалось доставить сообщение")

// maxRetryAfter верхняя граница ожидания по 429
const maxRetryAfter = time.Minute

// Sink получатель сообщений
type Sink interface {
	Emit(ctx context.Context, message, threadID string) error
}

// New webhook при заданном URL, иначе сообщения только пишутся в лог
func New(cfg config.NotifyConfig) Sink {
	if cfg.WebhookURL == "" {
		return LogSink{}
	}
	return NewWebhook(cfg)
}

// LogSink пишет сообщения в лог вместо чата
type LogSink struct{}

// Emit реализует Sink
func (LogSink) Emit(_ context.Context, message, threadID string) error {
	logger.Info("Сообщение (webhook не задан)", zap.String("thread_id", threadID), zap.String("content", message))
	return nil
}

// Webhook отправляет сообщения POST-запросом {content, thread_id}
type Webhook struct {
	url       string
	http      *gohttpcl.Client
	timeout   time.Duration
	chunkSize int
	retries   int
	minDelay  time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewWebhook создает отправителя
func NewWebhook(cfg config.NotifyConfig) *Webhook {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	return &Webhook{
		url: cfg.WebhookURL,
		// 429 и retry_after разбираются в send, транспорт не повторяет
		http: gohttpcl.New(
			gohttpcl.WithTimeout(timeout),
			gohttpcl.WithMaxRetries(0),
		),
		timeout:   timeout,
		chunkSize: cfg.ChunkSize,
		retries:   cfg.MaxRetries,
		minDelay:  500 * time.Millisecond,
		sleep:     sleepCtx,
	}
}

type payload struct {
	Content  string `json:"content"`
	ThreadID string `json:"thread_id,omitempty"`
}

// Emit режет сообщение по строкам и отправляет части по порядку
func (w *Webhook) Emit(ctx context.Context, message, threadID string) error {
	for i, part := range Chunk(message, w.chunkSize) {
		if err := w.send(ctx, payload{Content: part, ThreadID: threadID}); err != nil {
			return fmt.Errorf("часть %d: %w", i+1, err)
		}
	}
	return nil
}

// send одна часть с повторами: 429 ждет retry_after, 5xx и сеть ждут backoff
func (w *Webhook) send(ctx context.Context, p payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotifyFailure, err)
	}

	b := &backoff.Backoff{Min: w.minDelay, Max: 30 * time.Second, Factor: 2, Jitter: true}
	var last error
	for attempt := 0; attempt <= w.retries; attempt++ {
		wait, err := w.post(ctx, body)
		if err == nil {
			return nil
		}
		last = err
		var perm permanentError
		if errors.As(err, &perm) {
			break
		}
		if attempt == w.retries {
			break
		}
		if wait == 0 {
			wait = b.Duration()
		}
		logger.Warn("Повтор отправки сообщения",
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(err))
		if err := w.sleep(ctx, wait); err != nil {
			return fmt.Errorf("%w: %v", ErrNotifyFailure, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrNotifyFailure, last)
}

type permanentError struct{ error }

// post возвращает паузу перед повтором, если ее назначил сервер
func (w *Webhook) post(ctx context.Context, body []byte) (time.Duration, error) {
	resp, err := w.http.Post(ctx, w.url, bytes.NewReader(body), w.timeout, nil,
		gohttpcl.WithHeader("Content-Type", "application/json"))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent:
		return 0, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return retryAfter(resp.Header, data), fmt.Errorf("лимит запросов webhook: %s", data)
	case resp.StatusCode >= 500:
		return 0, fmt.Errorf("webhook вернул %d: %s", resp.StatusCode, data)
	default:
		return 0, permanentError{fmt.Errorf("webhook вернул %d: %s", resp.StatusCode, data)}
	}
}

// retryAfter берет retry_after из тела (секунды, дробные) или заголовок Retry-After
func retryAfter(h http.Header, body []byte) time.Duration {
	var rl struct {
		RetryAfter float64 `json:"retry_after"`
	}
	d := time.Duration(0)
	if json.Unmarshal(body, &rl) == nil && rl.RetryAfter > 0 {
		d = time.Duration(rl.RetryAfter * float64(time.Second))
	} else if s, err := strconv.ParseFloat(h.Get("Retry-After"), 64); err == nil && s > 0 {
		d = time.Duration(s * float64(time.Second))
	}
	if d > maxRetryAfter {
		d = maxRetryAfter
	}
	if d == 0 {
		d = time.Second
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
