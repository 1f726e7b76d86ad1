package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateEvent appends one event and returns its row id.
func (s *Store) CreateEvent(shelf int, product string, typ EventType, status Status, quantity int, objectID int64, now time.Time) (int64, error) {
	res, err := s.Exec(`
		INSERT INTO events (shelf_id, product_type, event_type, event_time, status, quantity, object_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		shelf, product, string(typ), now.Unix(), string(status), quantity, objectID)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s event: %w", typ, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read event id: %w", err)
	}
	return id, nil
}

const eventColumns = `id, shelf_id, product_type, event_type, event_time,
	resolved, resolution_time, status, quantity, object_id`

func scanEvent(row interface{ Scan(...any) error }) (Event, error) {
	var e Event
	var resolved int
	err := row.Scan(&e.ID, &e.Shelf, &e.Product, &e.Type, &e.CreatedUnix,
		&resolved, &e.ResolutionUnix, &e.Status, &e.Quantity, &e.ObjectID)
	e.Resolved = resolved != 0
	return e, err
}

// OpenEvent returns the oldest unresolved event matching (shelf, product,
// type), with ok=false when none exists.
func (s *Store) OpenEvent(shelf int, product string, typ EventType) (Event, bool, error) {
	row := s.QueryRow(`
		SELECT `+eventColumns+` FROM events
		WHERE shelf_id = ? AND product_type = ? AND event_type = ? AND resolved = 0
		ORDER BY event_time ASC LIMIT 1`,
		shelf, product, string(typ))
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return Event{}, false, nil
	}
	if err != nil {
		return Event{}, false, fmt.Errorf("failed to query open event: %w", err)
	}
	return e, true, nil
}

// OpenEventForObject returns the oldest unresolved event of the given type
// tied to a specific tracked object.
func (s *Store) OpenEventForObject(objectID int64, typ EventType) (Event, bool, error) {
	row := s.QueryRow(`
		SELECT `+eventColumns+` FROM events
		WHERE object_id = ? AND event_type = ? AND resolved = 0
		ORDER BY event_time ASC LIMIT 1`,
		objectID, string(typ))
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return Event{}, false, nil
	}
	if err != nil {
		return Event{}, false, fmt.Errorf("failed to query event for object %d: %w", objectID, err)
	}
	return e, true, nil
}

// OpenEvents lists the unresolved events for (product, type), oldest first,
// across every shelf. The reconciler resolves against this ordering so
// corrections always retire the oldest debt.
func (s *Store) OpenEvents(product string, typ EventType) ([]Event, error) {
	rows, err := s.Query(`
		SELECT `+eventColumns+` FROM events
		WHERE product_type = ? AND event_type = ? AND resolved = 0
		ORDER BY event_time ASC`,
		product, string(typ))
	if err != nil {
		return nil, fmt.Errorf("failed to list open events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// OpenEventsByStatus lists unresolved events of any type for a product
// carrying the given status, oldest first. The return flow uses this to
// retire every open debt for a product in one sweep.
func (s *Store) OpenEventsByStatus(product string, status Status) ([]Event, error) {
	rows, err := s.Query(`
		SELECT `+eventColumns+` FROM events
		WHERE product_type = ? AND status = ? AND resolved = 0
		ORDER BY event_time ASC`,
		product, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list open events by status: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// OpenEventCount counts the unresolved event rows for (product, type)
// across all shelves. Rows, not quantities; the per-product event budget is
// expressed in rows.
func (s *Store) OpenEventCount(product string, typ EventType) (int, error) {
	var n int
	err := s.QueryRow(`
		SELECT COUNT(*) FROM events
		WHERE product_type = ? AND event_type = ? AND resolved = 0`,
		product, string(typ)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count open events: %w", err)
	}
	return n, nil
}

// UpdateStatus rewrites the status of an unresolved event in place.
func (s *Store) UpdateStatus(id int64, status Status) error {
	res, err := s.Exec(`UPDATE events SET status = ? WHERE id = ? AND resolved = 0`,
		string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update event %d status: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("event %d is missing or already resolved", id)
	}
	return nil
}

// AdjustQuantity adds delta to an unresolved event's quantity. The monitor
// itself never changes a quantity in place; this is the maintenance surface
// for manual corrections against the event log.
func (s *Store) AdjustQuantity(id int64, delta int) error {
	_, err := s.Exec(`UPDATE events SET quantity = quantity + ? WHERE id = ? AND resolved = 0`,
		delta, id)
	if err != nil {
		return fmt.Errorf("failed to adjust event %d quantity: %w", id, err)
	}
	return nil
}

// ResolveEvent closes an event with a final status and resolution time.
// Resolution is terminal; resolved rows are never mutated again.
func (s *Store) ResolveEvent(id int64, status Status, now time.Time) error {
	_, err := s.Exec(`
		UPDATE events SET resolved = 1, resolution_time = ?, status = ?
		WHERE id = ?`,
		now.Unix(), string(status), id)
	if err != nil {
		return fmt.Errorf("failed to resolve event %d: %w", id, err)
	}
	return nil
}

// UnresolvedCount sums the quantities of open events for (shelf, product,
// type). Quantity, not row count: a coalesced event of three removals
// still accounts for three units.
func (s *Store) UnresolvedCount(shelf int, product string, typ EventType) (int, error) {
	var n sql.NullInt64
	err := s.QueryRow(`
		SELECT SUM(quantity) FROM events
		WHERE shelf_id = ? AND product_type = ? AND event_type = ? AND resolved = 0`,
		shelf, product, string(typ)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unresolved events: %w", err)
	}
	return int(n.Int64), nil
}

// SaleRow aggregates event quantities per product and status.
type SaleRow struct {
	Product  string
	Status   Status
	Quantity int
}

// SalesData aggregates removal events by product and status for the POS
// surface: what left the shelves, and whether it was paid for.
func (s *Store) SalesData() ([]SaleRow, error) {
	rows, err := s.Query(`
		SELECT product_type, status, SUM(quantity) FROM events
		WHERE event_type = ?
		GROUP BY product_type, status
		ORDER BY product_type, status`,
		string(EventRemoval))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate sales data: %w", err)
	}
	defer rows.Close()

	var out []SaleRow
	for rows.Next() {
		var r SaleRow
		if err := rows.Scan(&r.Product, &r.Status, &r.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan sales row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Events lists every event, newest first, capped at limit (0 means all).
func (s *Store) Events(limit int) ([]Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events ORDER BY event_time DESC, id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ClearEvents deletes the entire event log. Inventory counters are left
// untouched.
func (s *Store) ClearEvents() error {
	if _, err := s.Exec(`DELETE FROM events`); err != nil {
		return fmt.Errorf("failed to clear events: %w", err)
	}
	return nil
}
