package booking

import (
	"context"
	"time"

	"studio/internal/adapters/storage"
	domain "studio/internal/domain/booking"
)

// Store defines persistence for bookings. Every write that changes whether a
// booking holds a slot place also moves the slot ledger in the same
// transaction.
type Store interface {
	GetByID(ctx context.Context, id string) (domain.Booking, error)

	// GetByCheckoutSession finds the booking created for a payment session.
	// POST: Returns the booking or domain.ErrNotFound
	GetByCheckoutSession(ctx context.Context, sessionID string) (domain.Booking, error)

	// CreateWithReservation reserves the slot, optionally consumes an athlete
	// package session, and inserts the booking, all in one transaction.
	// POST: All three happen, or none does and the error is one of
	// slot.ErrSlotNotFound, slot.ErrSlotFull, catalog package errors,
	// domain.ErrDuplicateSession, domain.ErrAlreadyBooked
	CreateWithReservation(ctx context.Context, b domain.Booking) error

	// UpdateStatus moves a booking from one status to another, releasing the
	// slot place when the move gives it back.
	UpdateStatus(ctx context.Context, id, from, to string, now time.Time) error

	// DeleteAndRelease removes a booking and returns what was deleted.
	DeleteAndRelease(ctx context.Context, id string) (domain.Booking, error)

	ListByAthlete(ctx context.Context, athleteID string, limit int) ([]domain.Booking, error)
	ListByDate(ctx context.Context, date string) ([]domain.Booking, error)
}

var _ Store = (*SQLiteStore)(nil)

// SQLDB is the database handle the booking store needs.
type SQLDB interface {
	storage.SQLDB
}
