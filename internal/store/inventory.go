package store

import (
	"database/sql"
	"fmt"
	"time"
)

// remainingCapacity returns how many units of product may still be placed
// on shelf without the global total exceeding the product's cap. Products
// without a cap get an effectively unbounded allowance.
func (s *Store) remainingCapacity(shelf int, product string) (int, error) {
	limit, ok := s.caps[product]
	if !ok {
		return int(^uint(0) >> 1), nil
	}
	var other sql.NullInt64
	err := s.QueryRow(`
		SELECT SUM(current_count) FROM inventory
		WHERE product_type = ? AND shelf_id != ?`,
		product, shelf).Scan(&other)
	if err != nil {
		return 0, fmt.Errorf("failed to sum inventory for %s: %w", product, err)
	}
	remaining := limit - int(other.Int64)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// SetInitialInventory records the baseline count for (shelf, product),
// clamped so the product's global total never exceeds its cap, and returns
// the count actually stored.
func (s *Store) SetInitialInventory(shelf int, product string, count int, now time.Time) (int, error) {
	remaining, err := s.remainingCapacity(shelf, product)
	if err != nil {
		return 0, err
	}
	if count > remaining {
		count = remaining
	}
	if count < 0 {
		count = 0
	}
	_, err = s.Exec(`
		INSERT OR REPLACE INTO inventory (shelf_id, product_type, initial_count, current_count, last_update)
		VALUES (?, ?, ?, ?, ?)`,
		shelf, product, count, count, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to set initial inventory: %w", err)
	}
	return count, nil
}

// UpdateInventory overwrites the current count for (shelf, product),
// clamped to [0, remaining global capacity]. The initial count is
// preserved; a row is created with initial == count when none exists.
func (s *Store) UpdateInventory(shelf int, product string, count int, now time.Time) error {
	remaining, err := s.remainingCapacity(shelf, product)
	if err != nil {
		return err
	}
	if count > remaining {
		count = remaining
	}
	if count < 0 {
		count = 0
	}
	res, err := s.Exec(`
		UPDATE inventory SET current_count = ?, last_update = ?
		WHERE shelf_id = ? AND product_type = ?`,
		count, now.Unix(), shelf, product)
	if err != nil {
		return fmt.Errorf("failed to update inventory: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		_, err = s.Exec(`
			INSERT INTO inventory (shelf_id, product_type, initial_count, current_count, last_update)
			VALUES (?, ?, ?, ?, ?)`,
			shelf, product, count, count, now.Unix())
		if err != nil {
			return fmt.Errorf("failed to insert inventory row: %w", err)
		}
	}
	return nil
}

// IncrementInventory applies a signed delta to the current count. Returns
// false without writing when the delta would push the count below zero or
// past the product's remaining global capacity.
func (s *Store) IncrementInventory(shelf int, product string, delta int, now time.Time) (bool, error) {
	current, err := s.InventoryCount(shelf, product)
	if err != nil {
		return false, err
	}
	next := current + delta
	if next < 0 {
		return false, nil
	}
	if delta > 0 {
		remaining, err := s.remainingCapacity(shelf, product)
		if err != nil {
			return false, err
		}
		if next > remaining {
			return false, nil
		}
	}
	if err := s.UpdateInventory(shelf, product, next, now); err != nil {
		return false, err
	}
	return true, nil
}

// InventoryCount returns the current count for (shelf, product), zero when
// no row exists yet.
func (s *Store) InventoryCount(shelf int, product string) (int, error) {
	var n int
	err := s.QueryRow(`
		SELECT current_count FROM inventory
		WHERE shelf_id = ? AND product_type = ?`,
		shelf, product).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read inventory count: %w", err)
	}
	return n, nil
}

// Inventory lists every persisted counter ordered by shelf then product.
func (s *Store) Inventory() ([]InventoryRow, error) {
	rows, err := s.Query(`
		SELECT shelf_id, product_type, initial_count, current_count, last_update
		FROM inventory ORDER BY shelf_id, product_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to list inventory: %w", err)
	}
	defer rows.Close()

	var out []InventoryRow
	for rows.Next() {
		var r InventoryRow
		if err := rows.Scan(&r.Shelf, &r.Product, &r.Initial, &r.Current, &r.UpdateUnix); err != nil {
			return nil, fmt.Errorf("failed to scan inventory row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateDetectedObjects records the per-frame visibility snapshot for
// (shelf, product). Upsert; the table holds only the latest value.
func (s *Store) UpdateDetectedObjects(shelf int, product string, count int, now time.Time) error {
	_, err := s.Exec(`
		INSERT OR REPLACE INTO detected_objects (shelf_id, product_type, count, last_update)
		VALUES (?, ?, ?, ?)`,
		shelf, product, count, now.Unix())
	if err != nil {
		return fmt.Errorf("failed to update detected objects: %w", err)
	}
	return nil
}

// DetectedObjects lists the latest visibility snapshot.
func (s *Store) DetectedObjects() ([]DetectedRow, error) {
	rows, err := s.Query(`
		SELECT shelf_id, product_type, count, last_update
		FROM detected_objects ORDER BY shelf_id, product_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to list detected objects: %w", err)
	}
	defer rows.Close()

	var out []DetectedRow
	for rows.Next() {
		var r DetectedRow
		if err := rows.Scan(&r.Shelf, &r.Product, &r.Count, &r.UpdateUnix); err != nil {
			return nil, fmt.Errorf("failed to scan detected row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
