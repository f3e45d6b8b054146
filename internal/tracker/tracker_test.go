package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skalibog/perpsentry/internal/config"
	"github.com/skalibog/perpsentry/pkg/models"
)

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func sig(symbol string, kind models.SignalKind, grade models.Grade, oi float64) models.Signal {
	return models.Signal{Symbol: symbol, Kind: kind, StrengthGrade: grade, OIChange: oi}
}

func newTracker() *Tracker {
	return New(config.Default().Tracker, nil)
}

func TestNewSustainedUpgradeSuppressed(t *testing.T) {
	tr := newTracker()

	d := tr.Observe(sig("BTC", models.KindLong, models.GradeB, 7), t0)
	assert.Equal(t, TagNew, d.Tag)
	assert.Equal(t, models.GradeB, d.Entry.NotifiedGrade)

	d = tr.Observe(sig("BTC", models.KindLong, models.GradeB, 6), t0.Add(31*time.Minute))
	assert.Equal(t, TagSustained, d.Tag)
	assert.True(t, d.Entry.NotifiedSustained)

	d = tr.Observe(sig("BTC", models.KindLong, models.GradeA, 12), t0.Add(45*time.Minute))
	assert.Equal(t, TagUpgrade, d.Tag)
	assert.Equal(t, models.GradeA, d.Entry.NotifiedGrade)

	d = tr.Observe(sig("BTC", models.KindLong, models.GradeA, 12), t0.Add(90*time.Minute))
	assert.Equal(t, TagSuppressed, d.Tag)
	assert.False(t, d.Tag.Emits())

	e, ok := tr.Get("BTC")
	require.True(t, ok)
	assert.Equal(t, 4, e.Count)
	assert.Equal(t, 12.0, e.PeakOI)
	assert.Equal(t, models.GradeA, e.PeakGrade)
	assert.Equal(t, 90.0, e.DurationMinutes)
	assert.Equal(t, t0, e.FirstSeen)
}

func TestFlipped(t *testing.T) {
	tr := newTracker()

	assert.Equal(t, TagNew, tr.Observe(sig("ETH", models.KindLong, models.GradeB, 6), t0).Tag)

	at := t0.Add(10 * time.Minute)
	d := tr.Observe(sig("ETH", models.KindShort, models.GradeB, 6), at)
	assert.Equal(t, TagFlipped, d.Tag)
	assert.Equal(t, at, d.Entry.FirstSeen)
	assert.Equal(t, 1, d.Entry.Count)
	assert.Equal(t, models.KindShort, d.Entry.NormalizedKind)
}

func TestRelatedKindsShareDirection(t *testing.T) {
	tr := newTracker()
	tr.Observe(sig("SOL", models.KindEarlyLong, models.GradeB, 0), t0)

	d := tr.Observe(sig("SOL", models.KindSqueeze, models.GradeB, 0), t0.Add(5*time.Minute))
	assert.Equal(t, TagSuppressed, d.Tag, "SQUEEZE и EARLY_LONG сводятся к LONG")
	assert.Equal(t, models.KindSqueeze, d.Entry.Kind)
}

func TestDecayResetsPeak(t *testing.T) {
	tr := newTracker()
	tr.Observe(sig("XRP", models.KindShort, models.GradeB, -10), t0)

	d := tr.Observe(sig("XRP", models.KindShort, models.GradeB, -4), t0.Add(5*time.Minute))
	assert.Equal(t, TagDecay, d.Tag)
	assert.Equal(t, 4.0, d.Entry.PeakOI)

	d = tr.Observe(sig("XRP", models.KindShort, models.GradeB, -4), t0.Add(10*time.Minute))
	assert.Equal(t, TagSuppressed, d.Tag)
}

func TestIdenticalScanEmitsNothing(t *testing.T) {
	tr := newTracker()
	scan := []models.Signal{
		sig("BTC", models.KindLong, models.GradeA, 8),
		sig("ETH", models.KindShakeout, models.GradeB, -9),
		sig("DOGE", models.KindPending, models.GradeC, 9),
	}

	emitted := 0
	for _, s := range scan {
		if tr.Observe(s, t0).Tag.Emits() {
			emitted++
		}
	}
	assert.Equal(t, 3, emitted)

	for _, s := range scan {
		assert.False(t, tr.Observe(s, t0.Add(5*time.Minute)).Tag.Emits(), s.Symbol)
	}
}

func TestRevertRestoresPreObservationState(t *testing.T) {
	tr := newTracker()

	d := tr.Observe(sig("BTC", models.KindLong, models.GradeB, 7), t0)
	tr.Revert(d)
	_, ok := tr.Get("BTC")
	assert.False(t, ok)

	tr.Observe(sig("BTC", models.KindLong, models.GradeB, 7), t0)
	before, _ := tr.Get("BTC")
	d = tr.Observe(sig("BTC", models.KindLong, models.GradeS, 20), t0.Add(time.Minute))
	require.Equal(t, TagUpgrade, d.Tag)
	tr.Revert(d)

	after, _ := tr.Get("BTC")
	assert.Equal(t, before, after)
	assert.Equal(t, TagUpgrade, tr.Observe(sig("BTC", models.KindLong, models.GradeS, 20), t0.Add(2*time.Minute)).Tag)
}

func TestEvict(t *testing.T) {
	tr := newTracker()
	tr.Observe(sig("OLD", models.KindLong, models.GradeB, 6), t0)
	tr.Observe(sig("FRESH", models.KindLong, models.GradeB, 6), t0.Add(5*time.Hour))

	evicted := tr.Evict(t0.Add(6*time.Hour + time.Minute))
	assert.Equal(t, []string{"OLD"}, evicted)
	assert.Equal(t, 1, tr.Len())

	_, ok := tr.Get("FRESH")
	assert.True(t, ok)
	assert.Empty(t, tr.Evict(t0.Add(6*time.Hour+2*time.Minute)))
}

func TestCooldown(t *testing.T) {
	cd := NewCooldown(90*time.Minute, 24*time.Hour, nil)

	assert.True(t, cd.Allow("BTC", t0))
	undo := cd.Mark("BTC", t0)
	assert.False(t, cd.Allow("BTC", t0.Add(89*time.Minute)))
	assert.True(t, cd.Allow("BTC", t0.Add(90*time.Minute)))

	undo()
	assert.True(t, cd.Allow("BTC", t0.Add(time.Minute)))

	cd.Mark("BTC", t0)
	cd.Mark("ETH", t0.Add(20*time.Hour))
	assert.Equal(t, 1, cd.GC(t0.Add(25*time.Hour)))
	assert.Len(t, cd.Snapshot(), 1)
}
