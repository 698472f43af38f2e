package simulation

import (
	"context"
	"time"

	"studio/internal/adapters/storage"
	domain "studio/internal/domain/simulation"
)

// Store persists simulation sessions and the log of rows they wrote.
type Store interface {
	Create(ctx context.Context, s domain.Session) error
	GetByID(ctx context.Context, id string) (domain.Session, error)

	// GetActiveForAdmin returns the admin's running session, if any.
	GetActiveForAdmin(ctx context.Context, adminID string, now time.Time) (domain.Session, error)

	// ListExpired returns sessions still marked active whose window has lapsed.
	ListExpired(ctx context.Context, now time.Time) ([]domain.Session, error)

	// MarkEnded closes an active session exactly once.
	// POST: status moved from active, or domain.ErrNotActive / domain.ErrNotFound
	MarkEnded(ctx context.Context, id, status string, now time.Time) error

	// ListPendingReversal returns closed sessions whose log still holds rows
	// a reversal failed to remove.
	ListPendingReversal(ctx context.Context, endedBefore time.Time) ([]domain.Session, error)

	// LogWrite records a row created while simulating. Logging the same row twice is a no-op.
	// POST: domain.ErrNotActive when the session has already ended
	LogWrite(ctx context.Context, entry domain.LogEntry) error
	ListLog(ctx context.Context, sessionID string) ([]domain.LogEntry, error)
	DeleteLogEntry(ctx context.Context, id string) error
}

var _ Store = (*SQLiteStore)(nil)

// SQLDB is the database handle the simulation store needs.
type SQLDB interface {
	storage.SQLDB
}
