package actionrequest

import (
	"context"
	"time"

	"studio/internal/adapters/storage"
	domain "studio/internal/domain/actionrequest"
)

// Store persists action requests. Requests are never deleted.
type Store interface {
	Create(ctx context.Context, r domain.Request) error
	GetByID(ctx context.Context, id string) (domain.Request, error)

	// List returns requests filtered by status ("" for all), newest first.
	List(ctx context.Context, status string, limit int) ([]domain.Request, error)

	// Review records the one allowed review of a request.
	// POST: status moved from pending to the given status, or
	// domain.ErrAlreadyReviewed / domain.ErrNotFound with nothing changed
	Review(ctx context.Context, id, status, reviewerID string, now time.Time) (domain.Request, error)
}

var _ Store = (*SQLiteStore)(nil)

// SQLDB is the database handle the action request store needs.
type SQLDB interface {
	storage.SQLDB
}
