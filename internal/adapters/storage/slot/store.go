package slot

import (
	"context"

	"studio/internal/adapters/storage"
	domain "studio/internal/domain/slot"
)

// Store defines the interface for slot persistence and the capacity ledger.
type Store interface {
	// GetByID retrieves a slot.
	// PRE: id is non-empty
	// POST: Returns the slot or domain.ErrSlotNotFound
	GetByID(ctx context.Context, id string) (domain.Slot, error)

	// Save inserts or updates the slot's schedule fields. Counters are only
	// written on insert; afterwards they change through Reserve and Release.
	Save(ctx context.Context, s domain.Slot) error

	// Reserve takes one place on the slot.
	// POST: current_bookings incremented and is_available recomputed, or
	// domain.ErrSlotNotFound / domain.ErrSlotFull with nothing changed
	Reserve(ctx context.Context, id string) error

	// Release gives one place back, floored at zero.
	Release(ctx context.Context, id string) error

	// ListOpen returns slots on or after fromDate with remaining capacity.
	ListOpen(ctx context.Context, fromDate string, limit int) ([]domain.Slot, error)

	// Delete removes a slot that no booking references.
	Delete(ctx context.Context, id string) error
}

var _ Store = (*SQLiteStore)(nil)

// SQLDB is the database handle the slot store needs.
type SQLDB interface {
	storage.SQLDB
}
