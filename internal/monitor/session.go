package monitor

import (
	"os"
	"time"

	"github.com/LeonardIfiii/shelfsense/internal/monitoring"
	"github.com/LeonardIfiii/shelfsense/internal/shelf"
	"github.com/LeonardIfiii/shelfsense/internal/track"
)

// Observation is one classified detection handed to the session: a box in
// frame coordinates, its product class, and an appearance signature when
// the crop was usable.
type Observation struct {
	Box        track.Rect
	Product    string
	Confidence float64
	Signature  *track.Signature
}

// Session owns one camera's monitoring pipeline: the tracker, the
// re-identification memory, the strict ledger, the per-object lifecycle,
// and the periodic reconciler. Everything runs frame-synchronously on the
// caller's goroutine; nothing here is safe for concurrent use.
type Session struct {
	layout  *shelf.Layout
	tun     shelf.Tunables
	gw      Gateway
	tracker *track.Tracker
	memory  *track.Memory
	ledger  *Ledger

	objects   map[int64]*TrackedObject
	cooldowns map[string]time.Time

	lastReconcile time.Time
	refreshFile   string
	baseline      *baseline
}

// NewSession wires a session from the calibrated layout, resolved
// tunables, and a persistence gateway. refreshFile may be empty to disable
// the external re-baseline trigger.
func NewSession(layout *shelf.Layout, tun shelf.Tunables, gw Gateway, refreshFile string) *Session {
	return &Session{
		layout: layout,
		tun:    tun,
		gw:     gw,
		tracker: track.NewTracker(track.Config{
			MaxAge:              tun.MaxAge,
			MinHits:             tun.MinHits,
			MotionWeight:        tun.MotionWeight,
			AppearanceWeight:    tun.AppearanceWeight,
			AssignmentThreshold: tun.AssignmentThreshold,
		}),
		memory:      track.NewMemory(tun.MemoryWindow, tun.ReIDSimilarity),
		ledger:      NewLedger(layout.Capacities()),
		objects:     make(map[int64]*TrackedObject),
		cooldowns:   make(map[string]time.Time),
		refreshFile: refreshFile,
	}
}

// StartBaseline begins the observation window that establishes the initial
// inventory. Until the window closes, no events fire.
func (s *Session) StartBaseline(now time.Time) {
	s.baseline = newBaseline(now.Add(s.tun.BaselineDelay))
	monitoring.Logf("baseline observation started, window %s", s.tun.BaselineDelay)
}

// Baselining reports whether the initial-inventory window is still open.
func (s *Session) Baselining() bool { return s.baseline != nil }

// ProcessFrame advances the whole pipeline by one frame. Per-object
// persistence failures are logged and absorbed; the returned error is
// reserved for failures that invalidate the frame as a whole.
func (s *Session) ProcessFrame(obs []Observation, now time.Time) error {
	s.checkRefreshSignal(now)

	dets := make([]track.Detection, len(obs))
	for i, o := range obs {
		dets[i] = track.Detection{Box: o.Box, Confidence: o.Confidence, Signature: o.Signature}
	}
	boxes := s.tracker.Update(dets, now)

	if s.baseline != nil {
		s.observeBaseline(boxes, obs, now)
		if now.After(s.baseline.deadline) {
			if err := s.finishBaseline(now); err != nil {
				return err
			}
		}
		return nil
	}

	for _, tb := range boxes {
		product, ok := classify(tb.Box, obs)
		if !ok {
			continue
		}
		obj := s.objects[tb.ID]
		if obj == nil {
			obj = s.admit(tb, product, now)
			if obj == nil {
				continue
			}
		}
		obj.Box = tb.Box
		obj.LastSeen = now
		if sig := s.tracker.Signature(tb.ID); sig != nil {
			obj.Signature = sig
		}

		cx, cy := center(tb.Box)
		hereShelf, hereOK := s.layout.Locate(cx, cy)
		pos := s.layout.Relative(obj.Shelf, cx, cy, hereOK)
		s.step(obj, pos, hereShelf, hereOK, now)
	}

	s.evictStale(now)
	s.snapshotDetected(now)

	if now.Sub(s.lastReconcile) >= s.tun.ReconcileEvery {
		s.lastReconcile = now
		s.reconcile(now)
	}
	return nil
}

// admit creates the domain object for a fresh tracker identity. The
// re-identification memory is consulted first so a track that blinked out
// and back keeps its history instead of being double-counted.
func (s *Session) admit(tb track.TrackedBox, product string, now time.Time) *TrackedObject {
	cx, cy := center(tb.Box)
	hereShelf, hereOK := s.layout.Locate(cx, cy)

	if id, ok := s.memory.Recall(s.tracker.Signature(tb.ID), now); ok {
		obj := &TrackedObject{
			ID:           tb.ID,
			Product:      id.Product,
			Shelf:        id.OriginalShelf,
			CurrentShelf: id.OriginalShelf,
			EventActive:  id.EventActive,
			LastSeen:     now,
		}
		if id.EventActive {
			obj.State = StateRemoved
		} else if hereOK {
			obj.Counted = s.ledger.Add(hereShelf, obj.Product, tb.ID)
		}
		s.objects[tb.ID] = obj
		monitoring.Logf("object %d re-identified as %s from shelf %d (event active: %v)",
			tb.ID, id.Product, id.OriginalShelf, id.EventActive)
		return obj
	}

	if !hereOK {
		// A brand-new identity outside every zone is a shopper's hand or a
		// mid-air object; it gets tracked but never admitted.
		return nil
	}
	obj := &TrackedObject{
		ID:           tb.ID,
		Product:      product,
		Shelf:        hereShelf,
		CurrentShelf: hereShelf,
		LastSeen:     now,
	}
	obj.Counted = s.ledger.Add(hereShelf, product, tb.ID)
	if !obj.Counted {
		monitoring.Logf("shelf %d: %s over capacity, object %d tracked but not counted", hereShelf, product, tb.ID)
	}
	s.objects[tb.ID] = obj
	return obj
}

// evictStale moves objects unseen past the timeout into the
// re-identification memory and releases their ledger slots.
func (s *Session) evictStale(now time.Time) {
	for id, obj := range s.objects {
		if now.Sub(obj.LastSeen) <= s.tun.ObjectTimeout {
			continue
		}
		s.memory.Remember(obj.Signature, track.Identity{
			ObjectID:      id,
			Product:       obj.Product,
			OriginalShelf: obj.Shelf,
			EventActive:   obj.EventActive,
		}, now)
		s.ledger.Remove(id)
		delete(s.objects, id)
		monitoring.Logf("object %d (%s) lost, remembered for re-identification", id, obj.Product)
	}
}

// snapshotDetected persists the per-shelf visibility counts. Removed
// objects are excluded; they are off the shelf by definition.
func (s *Session) snapshotDetected(now time.Time) {
	counts := make(map[int]map[string]int)
	for _, obj := range s.objects {
		if obj.State == StateRemoved {
			continue
		}
		if counts[obj.CurrentShelf] == nil {
			counts[obj.CurrentShelf] = make(map[string]int)
		}
		counts[obj.CurrentShelf][obj.Product]++
	}
	for _, shelfID := range s.layout.Zones() {
		for _, product := range s.layout.Products() {
			n := 0
			if byProduct := counts[shelfID]; byProduct != nil {
				n = byProduct[product]
			}
			if err := s.gw.UpdateDetectedObjects(shelfID, product, n, now); err != nil {
				monitoring.Logf("failed to persist detected counts: %v", err)
			}
		}
	}
}

// Objects returns the live domain objects keyed by tracker id. The map is
// the session's own; callers must not mutate it.
func (s *Session) Objects() map[int64]*TrackedObject { return s.objects }

// Reset drops all transient state: tracks, memory, ledger, lifecycle.
// Persisted events and inventory are left alone.
func (s *Session) Reset() {
	s.tracker.Reset()
	s.memory.Reset()
	s.ledger.Reset()
	s.objects = make(map[int64]*TrackedObject)
	s.cooldowns = make(map[string]time.Time)
	s.baseline = nil
	monitoring.Logf("monitoring session reset")
}

// checkRefreshSignal polls for the external re-baseline marker file. When
// present the file is consumed, the session resets, and a fresh baseline
// window opens.
func (s *Session) checkRefreshSignal(now time.Time) {
	if s.refreshFile == "" {
		return
	}
	if _, err := os.Stat(s.refreshFile); err != nil {
		return
	}
	if err := os.Remove(s.refreshFile); err != nil {
		monitoring.Logf("failed to consume refresh signal %s: %v", s.refreshFile, err)
		return
	}
	monitoring.Logf("refresh signal received, re-baselining")
	s.Reset()
	s.StartBaseline(now)
}

// classify assigns a product class to a tracked box by best overlap with
// this frame's classified observations.
func classify(box track.Rect, obs []Observation) (string, bool) {
	best := ""
	bestIoU := 0.5
	for _, o := range obs {
		if iou := track.IoU(box, o.Box); iou > bestIoU {
			bestIoU = iou
			best = o.Product
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}

func center(r track.Rect) (int, int) {
	cx, cy := r.Center()
	return int(cx), int(cy)
}
