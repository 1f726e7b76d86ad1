// Package store is the persistence gateway for shelf monitoring: an
// append-only event log plus mutable per-shelf-per-product inventory
// counters, backed by sqlite. Algorithmic code never opens its own
// connections; everything goes through the narrow surface here.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// EventType classifies an event record. The string values are the
// serialization format; control flow switches on the typed constants.
type EventType string

const (
	EventRemoval         EventType = "removal"
	EventReturn          EventType = "return"
	EventMisplacedReturn EventType = "misplaced_return"
)

// Status is the payment/resolution state of an event. StatusDeferred keeps
// the legacy serialization value used by the POS surface.
type Status string

const (
	StatusNotPaid   Status = "not paid"
	StatusPaid      Status = "paid"
	StatusMisplaced Status = "misplaced"
	StatusReturned  Status = "returned"
	StatusDeferred  Status = "zurückgestellt"
)

// NoObject is the object_id recorded for events not tied to a specific
// tracked object (reconciler corrections, aggregate bookkeeping).
const NoObject int64 = -1

// Event is one row of the event log. Events are append-only but mutable
// until resolved; they are never deleted except by an explicit full reset.
type Event struct {
	ID             int64
	Shelf          int
	Product        string
	Type           EventType
	CreatedUnix    int64
	Resolved       bool
	ResolutionUnix int64 // zero until resolved
	Status         Status
	Quantity       int
	ObjectID       int64
}

// InventoryRow is one persisted (shelf, product) counter.
type InventoryRow struct {
	Shelf      int
	Product    string
	Initial    int
	Current    int
	UpdateUnix int64
}

// DetectedRow is the per-frame visibility snapshot consumed by the
// dashboards.
type DetectedRow struct {
	Shelf      int
	Product    string
	Count      int
	UpdateUnix int64
}

// Store wraps the sqlite handle together with the per-product global
// capacities the counter mutations enforce.
type Store struct {
	*sql.DB
	caps map[string]int
}

const schema = `
	CREATE TABLE IF NOT EXISTS events (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		shelf_id          INTEGER,
		product_type      TEXT,
		event_type        TEXT,
		event_time        INTEGER,
		resolved          INTEGER DEFAULT 0,
		resolution_time   INTEGER DEFAULT 0,
		status            TEXT DEFAULT 'not paid',
		quantity          INTEGER DEFAULT 1,
		object_id         INTEGER DEFAULT -1
	);
	CREATE TABLE IF NOT EXISTS inventory (
		shelf_id          INTEGER,
		product_type      TEXT,
		initial_count     INTEGER,
		current_count     INTEGER,
		last_update       INTEGER,
		PRIMARY KEY (shelf_id, product_type)
	);
	CREATE TABLE IF NOT EXISTS detected_objects (
		shelf_id          INTEGER,
		product_type      TEXT,
		count             INTEGER,
		last_update       INTEGER,
		PRIMARY KEY (shelf_id, product_type)
	);
	CREATE TABLE IF NOT EXISTS runs (
		run_id            TEXT PRIMARY KEY,
		version           TEXT,
		started_at        INTEGER
	);
`

// Open opens (creating if needed) the store at path. caps is the
// per-product global capacity table; products absent from it are
// unconstrained.
func Open(path string, caps map[string]int) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise schema: %w", err)
	}
	s := &Store{DB: db, caps: make(map[string]int, len(caps))}
	for p, c := range caps {
		s.caps[p] = c
	}
	return s, nil
}

// Capacity returns the global cap for a product and whether one is set.
func (s *Store) Capacity(product string) (int, bool) {
	c, ok := s.caps[product]
	return c, ok
}

// RecordRun registers one monitor process start. Restarts are visible to
// the reporting surfaces this way, since a restart implies a fresh
// baseline.
func (s *Store) RecordRun(runID, version string, now time.Time) error {
	_, err := s.Exec(`INSERT INTO runs (run_id, version, started_at) VALUES (?, ?, ?)`,
		runID, version, now.Unix())
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// ResetAll drops and recreates every table except the run history.
// Destructive; only the explicit full-reset path calls it.
func (s *Store) ResetAll() error {
	_, err := s.Exec(`
		DROP TABLE IF EXISTS events;
		DROP TABLE IF EXISTS inventory;
		DROP TABLE IF EXISTS detected_objects;
	`)
	if err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	if _, err := s.Exec(schema); err != nil {
		return fmt.Errorf("failed to recreate schema: %w", err)
	}
	return nil
}
