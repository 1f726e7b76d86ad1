package monitor

// Ledger is the strict in-process inventory: per shelf and product it
// counts only objects that were explicitly admitted, enforces the global
// per-product cap at admission time, and treats re-adds of an already
// known object id as a no-op. The persisted inventory table may lag a
// frame behind; the ledger never does.
type Ledger struct {
	limits map[string]int
	counts map[int]map[string]int
	owners map[int64]ledgerSlot
}

type ledgerSlot struct {
	shelf   int
	product string
}

// NewLedger creates a ledger with per-product global caps. Products absent
// from limits are unconstrained.
func NewLedger(limits map[string]int) *Ledger {
	l := &Ledger{
		limits: make(map[string]int, len(limits)),
		counts: make(map[int]map[string]int),
		owners: make(map[int64]ledgerSlot),
	}
	for p, n := range limits {
		l.limits[p] = n
	}
	return l
}

// CanAdd reports whether another unit of product fits under the global cap.
func (l *Ledger) CanAdd(product string) bool {
	limit, ok := l.limits[product]
	if !ok {
		return true
	}
	return l.Total(product) < limit
}

// Add admits an object. Returns true when the object is now counted,
// including the idempotent case of an id that was already admitted; false
// only when the global cap rejects a genuinely new object.
func (l *Ledger) Add(shelf int, product string, objectID int64) bool {
	if _, known := l.owners[objectID]; known {
		return true
	}
	if !l.CanAdd(product) {
		return false
	}
	if l.counts[shelf] == nil {
		l.counts[shelf] = make(map[string]int)
	}
	l.counts[shelf][product]++
	l.owners[objectID] = ledgerSlot{shelf: shelf, product: product}
	return true
}

// Remove retires an admitted object. Unknown ids are ignored so a removal
// that races an eviction cannot drive a count negative.
func (l *Ledger) Remove(objectID int64) bool {
	slot, known := l.owners[objectID]
	if !known {
		return false
	}
	delete(l.owners, objectID)
	if byProduct := l.counts[slot.shelf]; byProduct != nil && byProduct[slot.product] > 0 {
		byProduct[slot.product]--
	}
	return true
}

// Move reassigns an admitted object to another shelf, keeping totals.
func (l *Ledger) Move(objectID int64, shelf int) {
	slot, known := l.owners[objectID]
	if !known || slot.shelf == shelf {
		return
	}
	if byProduct := l.counts[slot.shelf]; byProduct != nil && byProduct[slot.product] > 0 {
		byProduct[slot.product]--
	}
	if l.counts[shelf] == nil {
		l.counts[shelf] = make(map[string]int)
	}
	l.counts[shelf][slot.product]++
	slot.shelf = shelf
	l.owners[objectID] = slot
}

// Count returns the admitted units for (shelf, product).
func (l *Ledger) Count(shelf int, product string) int {
	if byProduct := l.counts[shelf]; byProduct != nil {
		return byProduct[product]
	}
	return 0
}

// Total returns the admitted units of product across all shelves.
func (l *Ledger) Total(product string) int {
	total := 0
	for _, byProduct := range l.counts {
		total += byProduct[product]
	}
	return total
}

// Known reports whether an object id has been admitted.
func (l *Ledger) Known(objectID int64) bool {
	_, ok := l.owners[objectID]
	return ok
}

// Reset drops every count and every known object id.
func (l *Ledger) Reset() {
	l.counts = make(map[int]map[string]int)
	l.owners = make(map[int64]ledgerSlot)
}
