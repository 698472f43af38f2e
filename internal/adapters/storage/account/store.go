package account

import (
	"context"
	"time"

	"studio/internal/adapters/storage"
	domain "studio/internal/domain/account"
)

// Store persists Account state.
type Store interface {
	GetByID(ctx context.Context, id string) (domain.Account, error)
	GetByEmail(ctx context.Context, email string) (domain.Account, error)
	Save(ctx context.Context, value domain.Account) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ListFilter) ([]domain.Account, error)

	// SetStripeCustomerID records the processor customer for an account.
	SetStripeCustomerID(ctx context.Context, id, customerID string) error

	// RecordLoginResult stores the lockout counters after a login attempt.
	RecordLoginResult(ctx context.Context, id string, failedLogins int, lockedUntil time.Time) error
}

// ListFilter carries filtering parameters for List operations.
type ListFilter struct {
	Limit  int
	Offset int
	Role   string
}

var _ Store = (*SQLiteStore)(nil)

// SQLDB is the database handle the account store needs.
type SQLDB interface {
	storage.SQLDB
}
