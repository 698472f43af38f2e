package slot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"studio/internal/adapters/storage"
	domain "studio/internal/domain/slot"
	"studio/internal/metrics"
)

// SQLiteStore implements the slot Store using SQLite.
type SQLiteStore struct {
	db SQLDB
}

// NewSQLiteStore creates a new slot store.
func NewSQLiteStore(db SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const selectColumns = `id, date, start_time, end_time, location, coach_id, max_bookings, current_bookings, is_available, created_at`

// GetByID retrieves a slot by its ID.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Slot, error) {
	return Get(ctx, s.db, id)
}

// Get reads a slot through q, which may be a transaction.
func Get(ctx context.Context, q storage.Querier, id string) (domain.Slot, error) {
	row := q.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM slot WHERE id = ?`, id)
	sl, err := scanSlot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Slot{}, domain.ErrSlotNotFound
	}
	return sl, err
}

// Save inserts a slot or updates its schedule fields.
// PRE: s has been validated
// POST: Slot persisted; counters untouched on update
func (s *SQLiteStore) Save(ctx context.Context, sl domain.Slot) error {
	sl.Recompute()
	createdAt := sl.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO slot (`+selectColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   date=excluded.date, start_time=excluded.start_time, end_time=excluded.end_time,
		   location=excluded.location, coach_id=excluded.coach_id, max_bookings=excluded.max_bookings,
		   is_available=(slot.current_bookings < excluded.max_bookings)`,
		sl.ID, sl.Date, sl.StartTime, sl.EndTime, sl.Location, sl.CoachID,
		sl.MaxBookings, sl.CurrentBookings, sl.IsAvailable, storage.FormatTime(createdAt))
	return err
}

// Reserve takes one place on the slot outside any caller transaction.
func (s *SQLiteStore) Reserve(ctx context.Context, id string) error {
	return Reserve(ctx, s.db, id)
}

// Release gives one place back outside any caller transaction.
func (s *SQLiteStore) Release(ctx context.Context, id string) error {
	return Release(ctx, s.db, id)
}

// Reserve is the capacity ledger's increment. The capacity check and the
// increment are one conditional UPDATE, so concurrent callers can never both
// take the last place. SET expressions read pre-update values.
// PRE: id is non-empty
// POST: Exactly one place taken, or ErrSlotNotFound / ErrSlotFull
func Reserve(ctx context.Context, q storage.Querier, id string) error {
	res, err := q.ExecContext(ctx,
		`UPDATE slot
		 SET current_bookings = current_bookings + 1,
		     is_available = (current_bookings + 1 < max_bookings)
		 WHERE id = ? AND is_available = 1 AND current_bookings < max_bookings`, id)
	if err != nil {
		if storage.IsCheckViolation(err) {
			metrics.IncSlot("reserve", "full")
			return domain.ErrSlotFull
		}
		return fmt.Errorf("reserve slot %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve slot %s: %w", id, err)
	}
	if n == 1 {
		metrics.IncSlot("reserve", "ok")
		return nil
	}

	var exists int
	err = q.QueryRowContext(ctx, `SELECT 1 FROM slot WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.IncSlot("reserve", "not_found")
		return domain.ErrSlotNotFound
	}
	if err != nil {
		return fmt.Errorf("reserve slot %s: %w", id, err)
	}
	metrics.IncSlot("reserve", "full")
	return domain.ErrSlotFull
}

// Release decrements current_bookings, floored at zero, and recomputes availability.
// PRE: id is non-empty
// POST: One place returned, or ErrSlotNotFound
func Release(ctx context.Context, q storage.Querier, id string) error {
	res, err := q.ExecContext(ctx,
		`UPDATE slot
		 SET current_bookings = MAX(current_bookings - 1, 0),
		     is_available = (MAX(current_bookings - 1, 0) < max_bookings)
		 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("release slot %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("release slot %s: %w", id, err)
	}
	if n == 0 {
		metrics.IncSlot("release", "not_found")
		return domain.ErrSlotNotFound
	}
	metrics.IncSlot("release", "ok")
	return nil
}

// ListOpen returns upcoming slots with remaining capacity.
func (s *SQLiteStore) ListOpen(ctx context.Context, fromDate string, limit int) ([]domain.Slot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM slot
		 WHERE date >= ? AND is_available = 1 AND current_bookings < max_bookings
		 ORDER BY date, start_time LIMIT ?`, fromDate, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Slot
	for rows.Next() {
		sl, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sl)
	}
	return out, rows.Err()
}

// Delete removes a slot. The booking foreign key refuses the delete while
// any booking still references the slot.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	return Delete(ctx, s.db, id)
}

// Delete removes a slot through q.
func Delete(ctx context.Context, q storage.Querier, id string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM slot WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete slot %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrSlotNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSlot(row scanner) (domain.Slot, error) {
	var sl domain.Slot
	var createdAt string
	err := row.Scan(&sl.ID, &sl.Date, &sl.StartTime, &sl.EndTime, &sl.Location, &sl.CoachID,
		&sl.MaxBookings, &sl.CurrentBookings, &sl.IsAvailable, &createdAt)
	if err != nil {
		return domain.Slot{}, err
	}
	sl.CreatedAt = storage.ParseTime(createdAt)
	return sl, nil
}
