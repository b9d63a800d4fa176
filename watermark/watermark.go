// Package watermark persists per-table load progress boundaries.
// The boundary for a table only ever moves forward: Advance applies the
// late-arrival safety buffer and clamps against the stored value, so an
// empty or reordered batch can never regress a watermark.
package watermark

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a table was never registered in the store.
// This is a configuration error, not a normal runtime condition.
var ErrNotFound = errors.New("watermark: table not registered")

// Sentinel is the beginning-of-time boundary seeded for new tables
var Sentinel = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// Store manages watermark rows in the control schema
type Store struct {
	db     *sql.DB
	table  string
	buffer time.Duration
}

// NewStore creates a watermark store backed by the given table
// (for example "etl.watermarks")
func NewStore(db *sql.DB, table string, buffer time.Duration) *Store {
	return &Store{
		db:     db,
		table:  table,
		buffer: buffer,
	}
}

// Init creates the watermark table if needed and seeds a sentinel row for
// every tracked table. Existing rows are left untouched.
func (s *Store) Init(ctx context.Context, tables map[string]string) error {
	createSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			table_id TEXT NOT NULL,
			last_boundary TIMESTAMPTZ NOT NULL,
			boundary_column TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (table_id)
		)
	`, s.table)

	if _, err := s.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create watermark table: %w", err)
	}

	seedSQL := fmt.Sprintf(`
		INSERT INTO %s (table_id, last_boundary, boundary_column)
		VALUES ($1, $2, $3)
		ON CONFLICT (table_id) DO NOTHING
	`, s.table)

	for tableID, boundaryColumn := range tables {
		if _, err := s.db.ExecContext(ctx, seedSQL, tableID, Sentinel, boundaryColumn); err != nil {
			return fmt.Errorf("failed to seed watermark for %s: %w", tableID, err)
		}
	}

	return nil
}

// Get returns the stored boundary for a table
func (s *Store) Get(ctx context.Context, tableID string) (time.Time, error) {
	query := fmt.Sprintf(`
		SELECT last_boundary
		FROM %s
		WHERE table_id = $1
	`, s.table)

	var boundary time.Time
	err := s.db.QueryRowContext(ctx, query, tableID).Scan(&boundary)
	if err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, fmt.Errorf("%w: %s", ErrNotFound, tableID)
		}
		return time.Time{}, fmt.Errorf("failed to load watermark for %s: %w", tableID, err)
	}

	return boundary.UTC(), nil
}

// AdvanceTx moves the boundary forward within the caller's transaction.
// The new boundary is observedMax minus the safety buffer, clamped so the
// stored value never decreases. Call only after the corresponding data
// mutation is part of the same transaction.
func (s *Store) AdvanceTx(ctx context.Context, tx *sql.Tx, tableID string, observedMax time.Time) error {
	candidate := Clamp(time.Time{}, observedMax, s.buffer)

	query := fmt.Sprintf(`
		UPDATE %s
		SET last_boundary = GREATEST(last_boundary, $2),
		    updated_at = NOW()
		WHERE table_id = $1
	`, s.table)

	result, err := tx.ExecContext(ctx, query, tableID, candidate)
	if err != nil {
		return fmt.Errorf("failed to advance watermark for %s: %w", tableID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, tableID)
	}

	return nil
}

// Clamp computes the boundary Advance would store: observedMax minus the
// buffer, but never earlier than the currently stored boundary.
func Clamp(stored, observedMax time.Time, buffer time.Duration) time.Time {
	candidate := observedMax.Add(-buffer)
	if candidate.Before(stored) {
		return stored
	}
	return candidate
}
