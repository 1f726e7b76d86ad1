package monitor

import (
	"time"

	"github.com/LeonardIfiii/shelfsense/internal/monitoring"
	"github.com/LeonardIfiii/shelfsense/internal/shelf"
	"github.com/LeonardIfiii/shelfsense/internal/store"
)

// step advances one object's lifecycle by one frame. pos is the object
// centre evaluated against its home shelf; hereShelf/hereOK is the zone the
// centre currently sits in, if any.
func (s *Session) step(obj *TrackedObject, pos shelf.Position, hereShelf int, hereOK bool, now time.Time) {
	if hereOK {
		obj.CurrentShelf = hereShelf
	}

	switch obj.State {
	case StateIdle:
		if pos.Outside() {
			obj.State = StatePotentialRemoval
			obj.removalFrames = 1
		}

	case StatePotentialRemoval:
		if pos.FullyInside {
			obj.State = StateIdle
			obj.removalFrames = 0
			return
		}
		obj.removalFrames++
		if obj.removalFrames >= s.tun.RemovalDebounce {
			obj.State = StateRemoved
			obj.removalFrames = 0
			s.handleRemoval(obj, now)
		}

	case StateRemoved:
		if hereOK {
			cx, cy := center(obj.Box)
			if s.layout.Relative(hereShelf, cx, cy, true).FullyInside {
				obj.State = StatePotentialReturn
				obj.returnFrames = 1
			}
		} else if obj.misplacedLogged && obj.EventActive {
			s.reclaimMisplaced(obj, now)
		}

	case StatePotentialReturn:
		inside := false
		if hereOK {
			cx, cy := center(obj.Box)
			inside = s.layout.Relative(hereShelf, cx, cy, true).FullyInside
		}
		if !inside {
			obj.State = StateRemoved
			obj.returnFrames = 0
			return
		}
		obj.returnFrames++
		if obj.returnFrames >= s.tun.ReturnDebounce {
			obj.State = StateIdle
			obj.returnFrames = 0
			s.handleReturn(obj, hereShelf, now)
		}
	}
}

// canCreateEvent caps the open event rows per product so detector flapping
// cannot flood the log past the physical object count.
func (s *Session) canCreateEvent(product string, typ store.EventType) bool {
	open, err := s.gw.OpenEventCount(product, typ)
	if err != nil {
		monitoring.Logf("event budget check failed for %s: %v", product, err)
		return false
	}
	return open < s.layout.Capacity(product)
}

// handleRemoval fires when a removal is confirmed. At most one open removal
// event per object; rapid repeats of the same product are absorbed by the
// cooldown, and an existing open event for the shelf is reused by flipping
// its status back to unpaid.
func (s *Session) handleRemoval(obj *TrackedObject, now time.Time) {
	if obj.EventActive {
		return
	}
	if last, ok := s.cooldowns[obj.Product]; ok && now.Sub(last) < s.tun.EventCooldown {
		monitoring.Logf("event cooldown active for %s, removal of object %d not recorded", obj.Product, obj.ID)
		return
	}
	if !s.canCreateEvent(obj.Product, store.EventRemoval) {
		monitoring.Logf("open event budget exhausted for %s, removal of object %d not recorded", obj.Product, obj.ID)
		return
	}
	s.cooldowns[obj.Product] = now

	if e, ok, err := s.gw.OpenEvent(obj.Shelf, obj.Product, store.EventRemoval); err != nil {
		monitoring.Logf("open event lookup failed: %v", err)
		return
	} else if ok {
		if err := s.gw.UpdateStatus(e.ID, store.StatusNotPaid); err != nil {
			monitoring.Logf("failed to reopen removal event %d: %v", e.ID, err)
			return
		}
	} else {
		if _, err := s.gw.CreateEvent(obj.Shelf, obj.Product, store.EventRemoval, store.StatusNotPaid, 1, obj.ID, now); err != nil {
			monitoring.Logf("failed to record removal of object %d: %v", obj.ID, err)
			return
		}
	}

	if _, err := s.gw.IncrementInventory(obj.Shelf, obj.Product, -1, now); err != nil {
		monitoring.Logf("failed to decrement inventory for shelf %d %s: %v", obj.Shelf, obj.Product, err)
	}
	s.ledger.Remove(obj.ID)
	obj.Counted = false
	obj.EventActive = true
	obj.misplacedLogged = false
	obj.removalTime = now
	monitoring.Logf("shelf %d: %s (object %d) removed", obj.Shelf, obj.Product, obj.ID)
}

// handleReturn fires when a return is confirmed in shelf `to`. A return to
// the product's designated shelf resolves every open debt for the product;
// a return anywhere else records a misplacement and leaves the removal
// open until the object comes home.
func (s *Session) handleReturn(obj *TrackedObject, to int, now time.Time) {
	if !obj.EventActive {
		return
	}

	if s.layout.InCorrectShelf(obj.Product, to) {
		s.resolveReturn(obj, to, now)
		return
	}

	if obj.misplacedLogged {
		return
	}
	quantity := 1
	if e, ok, err := s.gw.OpenEventForObject(obj.ID, store.EventRemoval); err == nil && ok {
		quantity = e.Quantity
	}
	if _, err := s.gw.CreateEvent(obj.Shelf, obj.Product, store.EventRemoval, store.StatusMisplaced, quantity, obj.ID, now); err != nil {
		monitoring.Logf("failed to record misplacement of object %d: %v", obj.ID, err)
		return
	}
	if _, err := s.gw.CreateEvent(to, obj.Product, store.EventMisplacedReturn, store.StatusMisplaced, quantity, obj.ID, now); err != nil {
		monitoring.Logf("failed to record misplaced return of object %d: %v", obj.ID, err)
	}
	obj.misplacedLogged = true
	if obj.Counted {
		s.ledger.Move(obj.ID, to)
	} else {
		obj.Counted = s.ledger.Add(to, obj.Product, obj.ID)
	}
	monitoring.Logf("shelf %d: %s (object %d) returned to wrong shelf, designated shelf is %d", to, obj.Product, obj.ID, obj.Shelf)
}

// reclaimMisplaced fires when a misplaced object leaves the shelves again.
// The misplacement is over: its misplaced debt is closed and replaced by an
// ordinary unpaid removal at the designated shelf, carrying the quantity
// forward.
func (s *Session) reclaimMisplaced(obj *TrackedObject, now time.Time) {
	events, err := s.gw.OpenEventsByStatus(obj.Product, store.StatusMisplaced)
	if err != nil {
		monitoring.Logf("failed to list misplaced events for %s: %v", obj.Product, err)
		return
	}
	var claimed *store.Event
	for i := range events {
		e := &events[i]
		if e.ObjectID == obj.ID || (e.ObjectID == store.NoObject && e.Shelf == obj.Shelf) {
			claimed = e
			break
		}
	}
	if claimed != nil {
		if err := s.gw.ResolveEvent(claimed.ID, store.StatusMisplaced, now); err != nil {
			monitoring.Logf("failed to resolve misplaced event %d: %v", claimed.ID, err)
			return
		}
		if _, err := s.gw.CreateEvent(obj.Shelf, obj.Product, store.EventRemoval, store.StatusNotPaid, claimed.Quantity, obj.ID, now); err != nil {
			monitoring.Logf("failed to record removal of object %d: %v", obj.ID, err)
		}
	} else if e, ok, err := s.gw.OpenEvent(obj.Shelf, obj.Product, store.EventRemoval); err == nil && ok {
		if err := s.gw.UpdateStatus(e.ID, store.StatusNotPaid); err != nil {
			monitoring.Logf("failed to reopen removal event %d: %v", e.ID, err)
		}
	}
	obj.misplacedLogged = false
	s.ledger.Remove(obj.ID)
	obj.Counted = false
	monitoring.Logf("shelf %d: misplaced %s (object %d) taken again, removal reopened", obj.Shelf, obj.Product, obj.ID)
}

// resolveReturn closes out a correct-shelf return: every open misplaced
// debt for the product and every unpaid removal is resolved as returned,
// and a return event preserving the original quantities is appended.
func (s *Session) resolveReturn(obj *TrackedObject, to int, now time.Time) {
	misplaced, err := s.gw.OpenEventsByStatus(obj.Product, store.StatusMisplaced)
	if err != nil {
		monitoring.Logf("failed to list misplaced events for %s: %v", obj.Product, err)
	}
	for _, e := range misplaced {
		if err := s.gw.ResolveEvent(e.ID, store.StatusReturned, now); err != nil {
			monitoring.Logf("failed to resolve misplaced event %d: %v", e.ID, err)
		}
	}

	unpaid, err := s.gw.OpenEventsByStatus(obj.Product, store.StatusNotPaid)
	if err != nil {
		monitoring.Logf("failed to list unpaid events for %s: %v", obj.Product, err)
	}
	resolvedAny := false
	for _, e := range unpaid {
		if err := s.gw.ResolveEvent(e.ID, store.StatusReturned, now); err != nil {
			monitoring.Logf("failed to resolve event %d: %v", e.ID, err)
			continue
		}
		resolvedAny = true
		if _, err := s.gw.CreateEvent(to, obj.Product, store.EventReturn, store.StatusReturned, e.Quantity, obj.ID, now); err != nil {
			monitoring.Logf("failed to record return of object %d: %v", obj.ID, err)
		}
	}
	if !resolvedAny {
		if _, err := s.gw.CreateEvent(to, obj.Product, store.EventReturn, store.StatusReturned, 1, obj.ID, now); err != nil {
			monitoring.Logf("failed to record return of object %d: %v", obj.ID, err)
		}
	}

	if _, err := s.gw.IncrementInventory(to, obj.Product, 1, now); err != nil {
		monitoring.Logf("failed to increment inventory for shelf %d %s: %v", to, obj.Product, err)
	}
	obj.Counted = s.ledger.Add(to, obj.Product, obj.ID)
	obj.EventActive = false
	obj.misplacedLogged = false
	obj.Shelf = to
	monitoring.Logf("shelf %d: %s (object %d) returned", to, obj.Product, obj.ID)
}
