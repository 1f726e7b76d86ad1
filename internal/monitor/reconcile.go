package monitor

import (
	"time"

	"github.com/LeonardIfiii/shelfsense/internal/monitoring"
	"github.com/LeonardIfiii/shelfsense/internal/store"
)

// reconcile audits the persisted inventory against what the camera
// currently sees and repairs the difference. Three passes:
//
//  1. objects visible in a shelf they do not belong to get a misplaced
//     removal event charged to their designated shelf,
//  2. per shelf, units missing beyond what open events already account
//     for get an automatic unpaid removal event,
//  3. per product, a surplus in the global balance resolves or demotes
//     the oldest open unpaid events.
//
// Every pass is idempotent: a second run over an unchanged scene finds
// nothing left to repair.
func (s *Session) reconcile(now time.Time) {
	visible := make(map[int]map[string]int)
	misplacedSeen := make(map[string]bool)

	for _, obj := range s.objects {
		if obj.State == StateRemoved {
			continue
		}
		if !s.layout.InCorrectShelf(obj.Product, obj.CurrentShelf) {
			misplacedSeen[obj.Product] = true
			s.flagMisplaced(obj, now)
			continue
		}
		if visible[obj.CurrentShelf] == nil {
			visible[obj.CurrentShelf] = make(map[string]int)
		}
		visible[obj.CurrentShelf][obj.Product]++
	}

	inventory, err := s.gw.Inventory()
	if err != nil {
		monitoring.Logf("reconcile aborted, inventory unavailable: %v", err)
		return
	}

	totalVisible := make(map[string]int)
	totalUnresolved := make(map[string]int)
	totalInitial := make(map[string]int)

	for _, row := range inventory {
		totalInitial[row.Product] += row.Initial
		if !s.layout.InCorrectShelf(row.Product, row.Shelf) {
			continue
		}
		seen := 0
		if byProduct := visible[row.Shelf]; byProduct != nil {
			seen = byProduct[row.Product]
		}
		totalVisible[row.Product] += seen

		unresolved, err := s.gw.UnresolvedCount(row.Shelf, row.Product, store.EventRemoval)
		if err != nil {
			monitoring.Logf("reconcile: unresolved count failed for shelf %d %s: %v", row.Shelf, row.Product, err)
			continue
		}
		totalUnresolved[row.Product] += unresolved

		missing := row.Initial - seen - unresolved
		if missing <= 0 {
			continue
		}
		if !s.canCreateEvent(row.Product, store.EventRemoval) {
			monitoring.Logf("reconcile: shelf %d missing %d %s but event budget exhausted", row.Shelf, missing, row.Product)
			continue
		}
		monitoring.Logf("reconcile: shelf %d missing %d %s without event", row.Shelf, missing, row.Product)
		if _, err := s.gw.CreateEvent(row.Shelf, row.Product, store.EventRemoval, store.StatusNotPaid, missing, store.NoObject, now); err != nil {
			monitoring.Logf("reconcile: failed to record missing %s: %v", row.Product, err)
			continue
		}
		if err := s.gw.UpdateInventory(row.Shelf, row.Product, seen, now); err != nil {
			monitoring.Logf("reconcile: failed to sync inventory for shelf %d %s: %v", row.Shelf, row.Product, err)
		}
	}

	for product, seen := range totalVisible {
		excess := seen + totalUnresolved[product] - totalInitial[product]
		switch {
		case excess > 0:
			s.settleExcess(product, excess, !misplacedSeen[product], now)
		case excess < 0:
			// Fewer objects than the balance expects even after counting
			// open events; pass 2 has already charged what it could, so
			// only note it.
			monitoring.Logf("reconcile: %s balance short by %d", product, -excess)
		}
	}
}

// flagMisplaced records a misplaced removal for an object sitting in the
// wrong shelf without an open event, charged to its designated shelf.
func (s *Session) flagMisplaced(obj *TrackedObject, now time.Time) {
	if obj.EventActive {
		return
	}
	designated, ok := s.layout.DesignatedShelf(obj.Product)
	if !ok {
		return
	}
	monitoring.Logf("reconcile: %s (object %d) found in shelf %d, belongs in %d",
		obj.Product, obj.ID, obj.CurrentShelf, designated)
	if _, err := s.gw.CreateEvent(designated, obj.Product, store.EventRemoval, store.StatusMisplaced, 1, obj.ID, now); err != nil {
		monitoring.Logf("reconcile: failed to record misplacement of object %d: %v", obj.ID, err)
		return
	}
	obj.EventActive = true
	obj.misplacedLogged = true
	obj.Shelf = designated
}

// settleExcess retires open unpaid removal events when the global balance
// shows more objects than the baseline accounts for. When every object of
// the product sits in its designated shelf the surplus means silent
// returns, so the oldest events resolve as returned; otherwise the surplus
// is misplaced stock and the oldest events are demoted to misplaced but
// stay open.
func (s *Session) settleExcess(product string, excess int, allInPlace bool, now time.Time) {
	open, err := s.gw.OpenEvents(product, store.EventRemoval)
	if err != nil {
		monitoring.Logf("reconcile: failed to list open events for %s: %v", product, err)
		return
	}
	for _, e := range open {
		if excess <= 0 {
			return
		}
		if e.Status != store.StatusNotPaid {
			continue
		}
		if allInPlace {
			monitoring.Logf("reconcile: resolving event %d (%s) as returned", e.ID, product)
			if err := s.gw.ResolveEvent(e.ID, store.StatusReturned, now); err != nil {
				monitoring.Logf("reconcile: failed to resolve event %d: %v", e.ID, err)
				continue
			}
		} else {
			monitoring.Logf("reconcile: demoting event %d (%s) to misplaced", e.ID, product)
			if err := s.gw.UpdateStatus(e.ID, store.StatusMisplaced); err != nil {
				monitoring.Logf("reconcile: failed to demote event %d: %v", e.ID, err)
				continue
			}
		}
		excess--
	}
}
