// Package monitor is the domain core of shelf monitoring: the per-object
// lifecycle state machine, the strict in-process ledger, the event
// handlers, and the periodic reconciler that keeps the persisted inventory
// honest against what the camera actually sees.
package monitor

import (
	"fmt"
	"time"

	"github.com/LeonardIfiii/shelfsense/internal/track"
)

// ObjectState is an object's position in the removal/return lifecycle.
type ObjectState int

const (
	// StateIdle means the object sits inside its shelf zone.
	StateIdle ObjectState = iota
	// StatePotentialRemoval means the object left its zone or dropped below
	// the threshold line but the removal is not yet confirmed.
	StatePotentialRemoval
	// StateRemoved means the removal was confirmed and its event fired.
	StateRemoved
	// StatePotentialReturn means a removed object is back fully inside a
	// zone but the return is not yet confirmed.
	StatePotentialReturn
)

func (s ObjectState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePotentialRemoval:
		return "potential_removal"
	case StateRemoved:
		return "removed"
	case StatePotentialReturn:
		return "potential_return"
	default:
		return "unknown"
	}
}

// TrackedObject is the domain view of one tracker identity: product class,
// home shelf, lifecycle state and the bookkeeping the event handlers need.
type TrackedObject struct {
	ID      int64
	Product string
	// Shelf is the home shelf: where the object was first confirmed, or
	// the shelf an open removal event is charged against.
	Shelf int
	// CurrentShelf is where the object is visible right now; differs from
	// Shelf while the object is misplaced.
	CurrentShelf int
	State        ObjectState
	Box          track.Rect
	LastSeen     time.Time
	// Signature is the last known appearance, kept here so the object can
	// still be remembered after the tracker has dropped its track.
	Signature *track.Signature

	// EventActive marks an open removal event charged to this object.
	EventActive bool
	// misplacedLogged blocks repeat misplacement events for one excursion.
	misplacedLogged bool
	// Counted marks the object as admitted into the strict ledger.
	Counted bool

	removalFrames int
	returnFrames  int
	removalTime   time.Time
}

func (o *TrackedObject) String() string {
	return fmt.Sprintf("object %d (%s) shelf %d state %s", o.ID, o.Product, o.CurrentShelf, o.State)
}
