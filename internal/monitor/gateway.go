package monitor

import (
	"time"

	"github.com/LeonardIfiii/shelfsense/internal/store"
)

// Gateway is the slice of the persistence layer the domain core uses.
// *store.Store satisfies it.
type Gateway interface {
	CreateEvent(shelf int, product string, typ store.EventType, status store.Status, quantity int, objectID int64, now time.Time) (int64, error)
	OpenEvent(shelf int, product string, typ store.EventType) (store.Event, bool, error)
	OpenEventForObject(objectID int64, typ store.EventType) (store.Event, bool, error)
	OpenEvents(product string, typ store.EventType) ([]store.Event, error)
	OpenEventsByStatus(product string, status store.Status) ([]store.Event, error)
	OpenEventCount(product string, typ store.EventType) (int, error)
	UpdateStatus(id int64, status store.Status) error
	ResolveEvent(id int64, status store.Status, now time.Time) error
	UnresolvedCount(shelf int, product string, typ store.EventType) (int, error)
	ClearEvents() error

	SetInitialInventory(shelf int, product string, count int, now time.Time) (int, error)
	UpdateInventory(shelf int, product string, count int, now time.Time) error
	IncrementInventory(shelf int, product string, delta int, now time.Time) (bool, error)
	InventoryCount(shelf int, product string) (int, error)
	Inventory() ([]store.InventoryRow, error)
	UpdateDetectedObjects(shelf int, product string, count int, now time.Time) error
}
