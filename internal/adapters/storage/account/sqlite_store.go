package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"studio/internal/adapters/storage"
	domain "studio/internal/domain/account"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db SQLDB
}

// NewSQLiteStore creates a new account store.
func NewSQLiteStore(db SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const selectColumns = `id, email, name, password_hash, role, stripe_customer_id, created_at, failed_logins, locked_until`

// GetByID retrieves an Account by its ID.
// PRE: id is non-empty
// POST: Returns the entity or domain.ErrNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Account, error) {
	return s.get(ctx, "id = ?", id)
}

// GetByEmail retrieves an Account by email, ignoring case.
// PRE: email is non-empty
// POST: Returns the entity or domain.ErrNotFound
func (s *SQLiteStore) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	return s.get(ctx, "email = ? COLLATE NOCASE", strings.TrimSpace(email))
}

func (s *SQLiteStore) get(ctx context.Context, where, arg string) (domain.Account, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM account WHERE "+where, arg)
	entity, err := scanAccount(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, domain.ErrNotFound
	}
	return entity, err
}

// Save persists an Account to the database.
// PRE: entity has been validated
// POST: Entity is persisted (insert or update)
func (s *SQLiteStore) Save(ctx context.Context, entity domain.Account) error {
	fields := strings.Split(selectColumns, ", ")
	placeholders := make([]string, len(fields))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	updates := []string{
		"email=excluded.email",
		"name=excluded.name",
		"password_hash=excluded.password_hash",
		"role=excluded.role",
		"stripe_customer_id=excluded.stripe_customer_id",
		"failed_logins=excluded.failed_logins",
		"locked_until=excluded.locked_until",
	}

	query := fmt.Sprintf(
		"INSERT INTO account (%s) VALUES (%s) ON CONFLICT(id) DO UPDATE SET %s",
		selectColumns,
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "),
	)

	_, err := s.db.ExecContext(ctx, query,
		entity.ID,
		entity.Email,
		entity.Name,
		entity.PasswordHash,
		entity.Role,
		entity.StripeCustomerID,
		storage.FormatTime(entity.CreatedAt),
		entity.FailedLogins,
		formatOptional(entity.LockedUntil),
	)
	return err
}

// Delete removes an Account from the database.
// PRE: id is non-empty
// POST: Entity is removed, or domain.ErrNotFound
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM account WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List retrieves Accounts based on the filter.
// PRE: filter has valid parameters
// POST: Returns matching entities
func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]domain.Account, error) {
	var queryBuilder strings.Builder
	var args []any

	queryBuilder.WriteString("SELECT " + selectColumns + " FROM account")

	if filter.Role != "" {
		queryBuilder.WriteString(" WHERE role = ?")
		args = append(args, filter.Role)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	queryBuilder.WriteString(" ORDER BY created_at DESC LIMIT ? OFFSET ?")
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.Account
	for rows.Next() {
		entity, err := scanAccount(rows.Scan)
		if err != nil {
			return nil, err
		}
		results = append(results, entity)
	}
	return results, rows.Err()
}

// SetStripeCustomerID records the processor customer id.
func (s *SQLiteStore) SetStripeCustomerID(ctx context.Context, id, customerID string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE account SET stripe_customer_id = ? WHERE id = ?", customerID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RecordLoginResult stores the lockout counters without touching other fields.
func (s *SQLiteStore) RecordLoginResult(ctx context.Context, id string, failedLogins int, lockedUntil time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE account SET failed_logins = ?, locked_until = ? WHERE id = ?",
		failedLogins, formatOptional(lockedUntil), id)
	return err
}

func formatOptional(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return storage.FormatTime(t)
}

// scanAccount extracts an Account from a row scanner function.
func scanAccount(scan func(dest ...any) error) (domain.Account, error) {
	var entity domain.Account
	var createdAt, lockedUntil string
	err := scan(
		&entity.ID,
		&entity.Email,
		&entity.Name,
		&entity.PasswordHash,
		&entity.Role,
		&entity.StripeCustomerID,
		&createdAt,
		&entity.FailedLogins,
		&lockedUntil,
	)
	if err != nil {
		return domain.Account{}, err
	}
	entity.CreatedAt = storage.ParseTime(createdAt)
	entity.LockedUntil = storage.ParseTime(lockedUntil)
	return entity, nil
}
