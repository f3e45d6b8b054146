package ui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skalibog/perpsentry/internal/paper"
	"github.com/skalibog/perpsentry/internal/tracker"
	"github.com/skalibog/perpsentry/pkg/models"
)

func TestRenderBook(t *testing.T) {
	sum := paper.Summary{
		StartCapital: 10_000,
		Capital:      10_044.52,
		RealizedUSD:  44.52,
		Trades:       1,
		Wins:         1,
		WinRate:      100,
		ByReason:     map[paper.Reason]int{paper.ReasonTP1: 1, paper.ReasonTrail: 1},
		Open: []paper.OpenView{{
			Position: paper.Position{Symbol: "ETH", Direction: models.DirectionShort, EntryPrice: 3000, SL: 3120, RemainingPct: 0.6},
			Mark:     2970,
		}},
	}

	out := RenderBook(sum)
	assert.Contains(t, out, "ВИРТУАЛЬНАЯ КНИГА")
	assert.Contains(t, out, "10044.52")
	assert.Contains(t, out, "+44.52")
	assert.Contains(t, out, "TP1=1 TRAIL=1")
	assert.Contains(t, out, "ETH")
	assert.Contains(t, out, "осталось  60%")
}

func TestRenderTrackerOrdersByLastSeen(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	entries := map[string]tracker.Entry{
		"BTC": {Kind: models.KindLong, LastSeen: now.Add(-time.Hour), Count: 2, CurrentGrade: models.GradeA},
		"SOL": {Kind: models.KindShort, LastSeen: now, Count: 1, CurrentGrade: models.GradeB},
	}

	out := RenderTracker("hourly", entries)
	assert.Contains(t, out, "ТРЕКЕР HOURLY")
	assert.Less(t, strings.Index(out, "SOL"), strings.Index(out, "BTC"))
}

func TestRenderEmptySections(t *testing.T) {
	assert.Contains(t, RenderTracker("early", nil), "нет данных")
	assert.Contains(t, RenderLogs(nil), "нет данных")
}

func TestTailLogs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perpsentry.json.log")
	content := strings.Join([]string{
		`{"level":"INFO","ts":"01.06.2024 - 10:00:00.000Z","caller":"scanner/scanner.go:1","msg":"Цикл завершен","pipeline":"hourly"}`,
		`не json`,
		`{"level":"ERROR","ts":"01.06.2024 - 10:05:00.000Z","msg":"Алерт не отправлен","symbol":"BTC","tag":"NEW"}`,
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	logs, err := TailLogs(path, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "не json", logs[0])
	assert.Equal(t, "[10:05:00] [ERROR] Алерт не отправлен (symbol: BTC) (tag: NEW)", logs[1])

	logs, err = TailLogs(filepath.Join(t.TempDir(), "missing.log"), 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}
