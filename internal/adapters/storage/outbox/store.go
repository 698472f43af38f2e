package outbox

import (
	"context"
	"time"

	domain "studio/internal/domain/outbox"
)

// Store defines the interface for outbox entry persistence.
type Store interface {
	// GetByID retrieves an outbox entry by its ID.
	// PRE: id is non-empty
	// POST: Returns the entry or domain.ErrNotFound
	GetByID(ctx context.Context, id string) (domain.Entry, error)

	// Save persists an outbox entry to the database.
	// PRE: entity has been validated
	// POST: Entity is persisted (insert or update)
	Save(ctx context.Context, e domain.Entry) error

	// ListPending returns entries that still need delivery (pending or retrying).
	// PRE: limit > 0
	// POST: Returns up to limit entries ordered by created_at
	ListPending(ctx context.Context, limit int) ([]domain.Entry, error)

	// ListPendingAfter pages through pending entries in (created_at, id)
	// order, starting after the given position. A zero createdAt starts at
	// the beginning.
	ListPendingAfter(ctx context.Context, createdAt time.Time, id string, limit int) ([]domain.Entry, error)

	// List returns entries filtered by action type and status; empty filters match all.
	List(ctx context.Context, actionType, status string, limit int) ([]domain.Entry, error)
}

var _ Store = (*SQLiteStore)(nil)
