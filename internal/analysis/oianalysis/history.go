package oianalysis

import (
	"time"

	"github.com/skalibog/perpsentry/pkg/models"
)

// Baseline самый свежий снимок возрастом не меньше lookback-slack.
// Снимок старше 2*lookback устарел: nil, как и при пустой истории.
func Baseline(h models.OIHistory, now time.Time, lookback, slack time.Duration) *models.OISnapshot {
	for i := len(h.Snapshots) - 1; i >= 0; i-- {
		age := now.Sub(h.Snapshots[i].Timestamp)
		if age < lookback-slack {
			continue
		}
		if age > 2*lookback {
			return nil
		}
		return &h.Snapshots[i]
	}
	return nil
}

// Push добавляет снимок в конец истории и отбрасывает снимки старше 2*lookback
func Push(h models.OIHistory, cur models.OISnapshot, lookback time.Duration) models.OIHistory {
	out := models.OIHistory{Snapshots: make([]models.OISnapshot, 0, len(h.Snapshots)+1)}
	for _, s := range h.Snapshots {
		if !s.Timestamp.Before(cur.Timestamp) || cur.Timestamp.Sub(s.Timestamp) > 2*lookback {
			continue
		}
		out.Snapshots = append(out.Snapshots, s)
	}
	out.Snapshots = append(out.Snapshots, cur)
	return out
}
