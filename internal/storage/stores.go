package storage

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/skalibog/perpsentry/internal/paper"
	"github.com/skalibog/perpsentry/internal/tracker"
	"github.com/skalibog/perpsentry/pkg/models"
)

type (
	TrackerStore    = Store[map[string]tracker.Entry]
	BookStore       = Store[paper.State]
	CooldownStore   = Store[map[string]time.Time]
	OISnapshotStore = Store[models.OISnapshot]
	OIHistoryStore  = Store[models.OIHistory]
)

// NewTrackerStore записи трекера конвейера: {"<symbol>": Entry}
func NewTrackerStore(dir, pipeline string) *TrackerStore {
	return NewStore(filepath.Join(dir, "tracker_"+pipeline+".json"),
		func() map[string]tracker.Entry { return map[string]tracker.Entry{} },
		func(m map[string]tracker.Entry) error {
			for symbol, e := range m {
				if err := validate.Struct(e); err != nil {
					return fmt.Errorf("запись %s: %w", symbol, err)
				}
			}
			return nil
		})
}

// NewBookStore виртуальная книга
func NewBookStore(dir string) *BookStore {
	return NewStore(filepath.Join(dir, "paper_book.json"),
		func() paper.State { return paper.State{} },
		func(st paper.State) error { return validate.Struct(st) })
}

// NewCooldownStore время последнего алерта по символу: {"<symbol>": RFC3339}
func NewCooldownStore(dir, pipeline string) *CooldownStore {
	return NewStore(filepath.Join(dir, "cooldown_"+pipeline+".json"),
		func() map[string]time.Time { return map[string]time.Time{} },
		nil)
}

// NewOISnapshotStore последний снимок OI конвейера
func NewOISnapshotStore(dir, pipeline string) *OISnapshotStore {
	return NewStore(filepath.Join(dir, "oi_"+pipeline+".json"),
		func() models.OISnapshot { return models.OISnapshot{Data: map[string]models.OIPoint{}} },
		func(s models.OISnapshot) error { return validate.Struct(s) })
}

// NewOIHistoryStore скользящая история снимков OI трендового конвейера
func NewOIHistoryStore(dir, pipeline string) *OIHistoryStore {
	return NewStore(filepath.Join(dir, "oi_history_"+pipeline+".json"),
		func() models.OIHistory { return models.OIHistory{} },
		func(h models.OIHistory) error { return validate.Struct(h) })
}
