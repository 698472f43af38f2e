// Package setting persists operator-controlled key/value settings.
package setting

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"studio/internal/adapters/storage"
)

// KeyPaymentMode selects the live or test payment account.
const KeyPaymentMode = "payment_mode"

// SQLiteStore reads and writes the setting table.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new setting store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Get returns the value for key, or def when unset.
func (s *SQLiteStore) Get(ctx context.Context, key, def string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM setting WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

// Set upserts key.
func (s *SQLiteStore) Set(ctx context.Context, key, value string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO setting (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, storage.FormatTime(now))
	return err
}
