package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skalibog/perpsentry/internal/config"
	"github.com/skalibog/perpsentry/internal/paper"
	"github.com/skalibog/perpsentry/pkg/models"
)

type recorder struct {
	mu       sync.Mutex
	payloads []payload
	statuses []int
	bodies   []string
}

// handler отвечает статусами по очереди, последний повторяется
func (r *recorder) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var p payload
		require.NoError(t, json.NewDecoder(req.Body).Decode(&p))

		r.mu.Lock()
		defer r.mu.Unlock()
		r.payloads = append(r.payloads, p)
		i := len(r.payloads) - 1
		if i >= len(r.statuses) {
			i = len(r.statuses) - 1
		}
		if i < len(r.bodies) && r.bodies[i] != "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(r.statuses[i])
			_, _ = w.Write([]byte(r.bodies[i]))
			return
		}
		w.WriteHeader(r.statuses[i])
	}
}

func newTestWebhook(t *testing.T, rec *recorder, slept *[]time.Duration) *Webhook {
	t.Helper()
	srv := httptest.NewServer(rec.handler(t))
	t.Cleanup(srv.Close)

	cfg := config.Default().Notify
	cfg.WebhookURL = srv.URL
	w := NewWebhook(cfg)
	w.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return w
}

func TestEmitSendsContentAndThread(t *testing.T) {
	rec := &recorder{statuses: []int{http.StatusNoContent}}
	var slept []time.Duration
	w := newTestWebhook(t, rec, &slept)

	require.NoError(t, w.Emit(context.Background(), "hello", "42"))
	require.Len(t, rec.payloads, 1)
	assert.Equal(t, payload{Content: "hello", ThreadID: "42"}, rec.payloads[0])
	assert.Empty(t, slept)
}

func TestEmitHonorsRetryAfter(t *testing.T) {
	rec := &recorder{
		statuses: []int{http.StatusTooManyRequests, http.StatusOK},
		bodies:   []string{`{"message":"You are being rate limited.","retry_after":1.5}`},
	}
	var slept []time.Duration
	w := newTestWebhook(t, rec, &slept)

	require.NoError(t, w.Emit(context.Background(), "x", ""))
	assert.Len(t, rec.payloads, 2)
	assert.Equal(t, []time.Duration{1500 * time.Millisecond}, slept)
}

func TestEmitRetriesServerErrorsThenFails(t *testing.T) {
	rec := &recorder{statuses: []int{http.StatusBadGateway}}
	var slept []time.Duration
	w := newTestWebhook(t, rec, &slept)

	err := w.Emit(context.Background(), "x", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotifyFailure)
	assert.Len(t, rec.payloads, 4, "попытка и три повтора")
	assert.Len(t, slept, 3)
}

func TestEmitClientErrorIsNotRetried(t *testing.T) {
	rec := &recorder{statuses: []int{http.StatusBadRequest}}
	var slept []time.Duration
	w := newTestWebhook(t, rec, &slept)

	err := w.Emit(context.Background(), "x", "")
	assert.ErrorIs(t, err, ErrNotifyFailure)
	assert.Len(t, rec.payloads, 1)
	assert.Empty(t, slept)
}

func TestEmitSendsChunksInOrder(t *testing.T) {
	rec := &recorder{statuses: []int{http.StatusOK}}
	var slept []time.Duration
	w := newTestWebhook(t, rec, &slept)
	w.chunkSize = 10

	require.NoError(t, w.Emit(context.Background(), "aaaa\nbbbb\ncccc", "7"))
	require.Len(t, rec.payloads, 2)
	assert.Equal(t, "aaaa\nbbbb", rec.payloads[0].Content)
	assert.Equal(t, "cccc", rec.payloads[1].Content)
	assert.Equal(t, "7", rec.payloads[1].ThreadID)
}

func TestChunk(t *testing.T) {
	assert.Equal(t, []string{"short"}, Chunk("short", 1900))

	var lines []string
	for i := 0; i < 300; i++ {
		lines = append(lines, strings.Repeat("z", 19))
	}
	text := strings.Join(lines, "\n")
	parts := Chunk(text, 1900)
	require.Len(t, parts, 4)
	for _, p := range parts {
		assert.LessOrEqual(t, utf8.RuneCountInString(p), 1900)
		assert.False(t, strings.HasPrefix(p, "\n"))
	}
	assert.Equal(t, text, strings.Join(parts, "\n"))

	long := strings.Repeat("я", 25)
	assert.Equal(t, []string{strings.Repeat("я", 10), strings.Repeat("я", 10), strings.Repeat("я", 5)}, Chunk(long, 10))
}

func TestChunkKeepsBlankLines(t *testing.T) {
	text := strings.Repeat("a", 10) + "\n\nb"
	parts := Chunk(text, 10)
	assert.Equal(t, []string{strings.Repeat("a", 10), "\nb"}, parts)
	assert.Equal(t, text, strings.Join(parts, "\n"))

	text = "\nabcd\nefghijk"
	parts = Chunk(text, 10)
	assert.Equal(t, []string{"\nabcd", "efghijk"}, parts)
	assert.Equal(t, text, strings.Join(parts, "\n"))
}

func TestEmitPostsJSON(t *testing.T) {
	contentType := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType <- r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := config.Default().Notify
	cfg.WebhookURL = srv.URL
	require.NoError(t, NewWebhook(cfg).Emit(context.Background(), "ping", ""))
	assert.Equal(t, "application/json", <-contentType)
}

func TestFormatAlert(t *testing.T) {
	msg, err := FormatAlert(Alert{
		Pipeline: "hourly",
		Interval: "1h",
		Tag:      "NEW",
		Emoji:    "🆕",
		Count:    1,
		Signal: models.Signal{
			Timestamp:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			Symbol:        "BTC",
			Kind:          models.KindLong,
			EntryPrice:    64250.5,
			RSI:           61.25,
			Phase:         models.PhaseLaunch,
			StrengthScore: 55,
			StrengthGrade: models.GradeA,
			OIChange:      7.5,
			PriceChange1h: 3.2,
			VolRatio:      2.1,
			Tags:          []string{"ADX_TREND", "OB_SUPPORT"},
			Admissible:    true,
		},
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(msg, "🆕 **NEW** BTC LONG"))
	assert.Contains(t, msg, "Цена 64250.5")
	assert.Contains(t, msg, "OI +7.50%")
	assert.Contains(t, msg, "Теги: ADX_TREND, OB_SUPPORT")
	assert.Contains(t, msg, "2024-06-01 08:00 UTC+8")
	assert.NotContains(t, msg, "вне допуска")
	assert.NotContains(t, msg, "Наблюдений")
	assert.NotContains(t, msg, "Фандинг")
	assert.NotContains(t, msg, "Зона OB")
}

func TestFormatAlertFundingAndZone(t *testing.T) {
	msg, err := FormatAlert(Alert{
		Pipeline: "hourly",
		Interval: "1h",
		Tag:      "NEW",
		Emoji:    "🆕",
		Count:    1,
		Signal: models.Signal{
			Symbol:     "ETH",
			Kind:       models.KindLong,
			EntryPrice: 3050,
			Tags:       []string{"FUNDING_HOT"},
			Funding:    &models.FundingStats{Average: 0.0005, Extreme: 0.0016},
			Zone:       &models.OrderBlock{Type: models.ZoneBullish, Top: 3000, Bottom: 2950},
		},
	})
	require.NoError(t, err)

	assert.Contains(t, msg, "Фандинг 24ч: средний +0.0500% | пик +0.1600%")
	assert.Contains(t, msg, "Зона OB 2950.0–3000.0 (ширина 50.00)")
}

func TestFormatSummaryAndTrades(t *testing.T) {
	s := paper.Summary{
		StartCapital: 10_000,
		Capital:      10_044.52,
		RealizedUSD:  44.52,
		Trades:       1,
		Wins:         1,
		WinRate:      100,
		Open: []paper.OpenView{{
			Position: paper.Position{Symbol: "ETH", Direction: models.DirectionShort, EntryPrice: 3000, RemainingPct: 0.6},
			Mark:     2970, UnrealizedPct: 1, UnrealizedUSD: 6,
		}},
	}
	msg, err := FormatSummary(s)
	require.NoError(t, err)
	assert.Contains(t, msg, "Капитал $10044.52 (+0.45%)")
	assert.Contains(t, msg, "Сделок 1, прибыльных 1 (100%)")
	assert.Contains(t, msg, "• ETH SHORT 3000.0 → 2970.0 +1.00% (+6.00$), осталось 60%")

	trades, err := FormatTrades([]paper.ClosedTrade{{
		Position:  paper.Position{Symbol: "BTC", Direction: models.DirectionLong, EntryPrice: 100},
		ExitPrice: 96, PnLPct: -4, PnLUSD: -40, Reason: paper.ReasonSL, Fraction: 1,
	}})
	require.NoError(t, err)
	assert.Equal(t, "🛑 **SL** BTC LONG 100.00 → 96.00 -4.00% (-40.00$, доля 100%)", trades)
}
