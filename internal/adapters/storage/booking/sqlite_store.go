package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"studio/internal/adapters/storage"
	"studio/internal/adapters/storage/catalog"
	"studio/internal/adapters/storage/slot"
	domain "studio/internal/domain/booking"
	slotdomain "studio/internal/domain/slot"
)

// SQLiteStore implements the booking Store using SQLite.
type SQLiteStore struct {
	db SQLDB
}

// NewSQLiteStore creates a new booking store.
func NewSQLiteStore(db SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const selectColumns = `id, athlete_id, coach_id, service_id, slot_id, booking_date, start_time, duration_minutes,
	location, status, payment_status, payment_method, amount_cents, stripe_checkout_session_id, stripe_payment_intent_id,
	athlete_package_id, notes, created_at, updated_at`

// GetByID retrieves a booking by ID.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Booking, error) {
	return get(ctx, s.db, `id = ?`, id)
}

// GetByCheckoutSession retrieves the booking created for a checkout session.
func (s *SQLiteStore) GetByCheckoutSession(ctx context.Context, sessionID string) (domain.Booking, error) {
	return get(ctx, s.db, `stripe_checkout_session_id = ?`, sessionID)
}

func get(ctx context.Context, q storage.Querier, where, arg string) (domain.Booking, error) {
	row := q.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM booking WHERE `+where, arg)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Booking{}, domain.ErrNotFound
	}
	return b, err
}

// CreateWithReservation inserts b after taking its slot place.
// The unique indexes on the checkout session id and on the athlete's active
// booking per slot turn a racing duplicate into a rolled-back transaction, so
// the slot place taken here is given back with it.
// PRE: b has been validated
// POST: booking row, slot increment and package deduction are committed together
func (s *SQLiteStore) CreateWithReservation(ctx context.Context, b domain.Booking) error {
	return storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if b.SlotID != "" {
			if err := slot.Reserve(ctx, tx, b.SlotID); err != nil {
				return err
			}
		}
		if b.AthletePackageID != "" {
			if err := catalog.UseSession(ctx, tx, b.AthletePackageID, b.CreatedAt); err != nil {
				return err
			}
		}
		return insert(ctx, tx, b)
	})
}

func insert(ctx context.Context, q storage.Querier, b domain.Booking) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO booking (`+selectColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.AthleteID, b.CoachID, b.ServiceID, storage.NullString(b.SlotID), b.Date, b.StartTime,
		b.DurationMinutes, b.Location, b.Status, b.PaymentStatus, paymentMethod(b), b.AmountCents,
		storage.NullString(b.StripeCheckoutSessionID), b.StripePaymentIntentID, b.AthletePackageID, b.Notes,
		storage.FormatTime(b.CreatedAt), storage.FormatTime(b.UpdatedAt))
	switch {
	case err == nil:
		return nil
	case storage.UniqueViolationOn(err, "stripe_checkout_session_id"):
		return domain.ErrDuplicateSession
	case storage.UniqueViolationOn(err, "athlete_id"):
		return domain.ErrAlreadyBooked
	default:
		return fmt.Errorf("insert booking: %w", err)
	}
}

// UpdateStatus applies a transition with a compare-and-set on the current status.
// PRE: domain transition from -> to already checked
// POST: status updated (and slot released when the booking gives up its
// place), or domain.ErrNotFound / domain.ErrInvalidTransition when the row
// is missing or its status moved underneath the caller
func (s *SQLiteStore) UpdateStatus(ctx context.Context, id, from, to string, now time.Time) error {
	return storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		b, err := get(ctx, tx, `id = ?`, id)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE booking SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			to, storage.FormatTime(now), id, from)
		if err != nil {
			return fmt.Errorf("update booking status %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrInvalidTransition
		}
		if !domain.ReleasesSlot(from, to) {
			return nil
		}
		return giveBack(ctx, tx, b)
	})
}

// DeleteAndRelease removes a booking; an active booking returns its slot
// place and any package session it consumed.
func (s *SQLiteStore) DeleteAndRelease(ctx context.Context, id string) (domain.Booking, error) {
	var deleted domain.Booking
	err := storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		b, err := DeleteAndRelease(ctx, tx, id)
		deleted = b
		return err
	})
	return deleted, err
}

// DeleteAndRelease runs the delete through q, which should be a transaction.
func DeleteAndRelease(ctx context.Context, q storage.Querier, id string) (domain.Booking, error) {
	b, err := get(ctx, q, `id = ?`, id)
	if err != nil {
		return domain.Booking{}, err
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM booking WHERE id = ?`, id); err != nil {
		return domain.Booking{}, fmt.Errorf("delete booking %s: %w", id, err)
	}
	if b.IsActive() {
		if err := giveBack(ctx, q, b); err != nil {
			return domain.Booking{}, err
		}
	}
	return b, nil
}

func giveBack(ctx context.Context, q storage.Querier, b domain.Booking) error {
	if b.SlotID != "" {
		if err := slot.Release(ctx, q, b.SlotID); err != nil && !errors.Is(err, slotdomain.ErrSlotNotFound) {
			return err
		}
	}
	if b.AthletePackageID != "" {
		return catalog.ReturnSession(ctx, q, b.AthletePackageID)
	}
	return nil
}

// ListByAthlete returns an athlete's bookings, most recent date first.
func (s *SQLiteStore) ListByAthlete(ctx context.Context, athleteID string, limit int) ([]domain.Booking, error) {
	return s.list(ctx,
		`SELECT `+selectColumns+` FROM booking WHERE athlete_id = ? ORDER BY booking_date DESC, start_time DESC LIMIT ?`,
		athleteID, limit)
}

// ListByDate returns the bookings on one date in start order.
func (s *SQLiteStore) ListByDate(ctx context.Context, date string) ([]domain.Booking, error) {
	return s.list(ctx,
		`SELECT `+selectColumns+` FROM booking WHERE booking_date = ? ORDER BY start_time, created_at`, date)
}

func (s *SQLiteStore) list(ctx context.Context, query string, args ...any) ([]domain.Booking, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func paymentMethod(b domain.Booking) string {
	if b.PaymentMethod == "" {
		return domain.MethodCard
	}
	return b.PaymentMethod
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBooking(row scanner) (domain.Booking, error) {
	var b domain.Booking
	var slotID, sessionID sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&b.ID, &b.AthleteID, &b.CoachID, &b.ServiceID, &slotID, &b.Date, &b.StartTime,
		&b.DurationMinutes, &b.Location, &b.Status, &b.PaymentStatus, &b.PaymentMethod, &b.AmountCents, &sessionID,
		&b.StripePaymentIntentID, &b.AthletePackageID, &b.Notes, &createdAt, &updatedAt)
	if err != nil {
		return domain.Booking{}, err
	}
	b.SlotID = slotID.String
	b.StripeCheckoutSessionID = sessionID.String
	b.CreatedAt = storage.ParseTime(createdAt)
	b.UpdatedAt = storage.ParseTime(updatedAt)
	return b, nil
}
