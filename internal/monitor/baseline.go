package monitor

import (
	"time"

	"github.com/LeonardIfiii/shelfsense/internal/monitoring"
	"github.com/LeonardIfiii/shelfsense/internal/track"
)

// baseline accumulates what the camera sees during the startup window so
// the initial inventory reflects reality instead of a guess. Per shelf and
// product it keeps the highest simultaneous count observed; a single frame
// of detector dropout then cannot understate the baseline.
type baseline struct {
	deadline time.Time
	peak     map[int]map[string]int
}

func newBaseline(deadline time.Time) *baseline {
	return &baseline{deadline: deadline, peak: make(map[int]map[string]int)}
}

// observeBaseline folds one frame's tracked boxes into the baseline peaks.
func (s *Session) observeBaseline(boxes []track.TrackedBox, obs []Observation, now time.Time) {
	frame := make(map[int]map[string]int)
	for _, tb := range boxes {
		product, ok := classify(tb.Box, obs)
		if !ok {
			continue
		}
		cx, cy := center(tb.Box)
		shelfID, ok := s.layout.Locate(cx, cy)
		if !ok {
			continue
		}
		if frame[shelfID] == nil {
			frame[shelfID] = make(map[string]int)
		}
		frame[shelfID][product]++
	}
	for shelfID, byProduct := range frame {
		if s.baseline.peak[shelfID] == nil {
			s.baseline.peak[shelfID] = make(map[string]int)
		}
		for product, n := range byProduct {
			if n > s.baseline.peak[shelfID][product] {
				s.baseline.peak[shelfID][product] = n
			}
		}
	}
}

// finishBaseline persists the observed peaks as the initial inventory and
// closes the window. Events left over from a previous run refer to stock
// that no longer matches the fresh baseline, so the log is wiped with it.
// The ledger fills itself on the following frames as the still-visible
// tracks are admitted.
func (s *Session) finishBaseline(now time.Time) error {
	if err := s.gw.ClearEvents(); err != nil {
		return err
	}
	for _, shelfID := range s.layout.Zones() {
		for _, product := range s.layout.Products() {
			if !s.layout.InCorrectShelf(product, shelfID) {
				// Foreign stock observed here is misplaced, not inventory.
				if _, err := s.gw.SetInitialInventory(shelfID, product, 0, now); err != nil {
					return err
				}
				continue
			}
			observed := 0
			if byProduct := s.baseline.peak[shelfID]; byProduct != nil {
				observed = byProduct[product]
			}
			stored, err := s.gw.SetInitialInventory(shelfID, product, observed, now)
			if err != nil {
				return err
			}
			if stored != observed {
				monitoring.Logf("baseline for shelf %d %s clamped from %d to %d", shelfID, product, observed, stored)
			}
			monitoring.Logf("baseline: shelf %d holds %d %s", shelfID, stored, product)
		}
	}
	s.baseline = nil
	s.lastReconcile = now
	return nil
}
