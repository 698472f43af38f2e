package actionrequest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"studio/internal/adapters/storage"
	domain "studio/internal/domain/actionrequest"
)

// SQLiteStore implements the action request Store using SQLite.
type SQLiteStore struct {
	db SQLDB
}

// NewSQLiteStore creates a new action request store.
func NewSQLiteStore(db SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const selectColumns = `id, requester_id, action_type, target_table, target_id, reason, metadata, status, reviewed_by, reviewed_at, created_at`

// Create inserts a pending request.
// PRE: r has been validated
func (s *SQLiteStore) Create(ctx context.Context, r domain.Request) error {
	md, err := json.Marshal(r.Metadata)
	if err != nil {
		return fmt.Errorf("encode request metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO action_request (`+selectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RequesterID, r.ActionType, r.TargetTable, r.TargetID, r.Reason, string(md),
		r.Status, r.ReviewedBy, formatReviewed(r.ReviewedAt), storage.FormatTime(r.CreatedAt))
	return err
}

// GetByID retrieves a request.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Request, error) {
	return get(ctx, s.db, id)
}

func get(ctx context.Context, q storage.Querier, id string) (domain.Request, error) {
	row := q.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM action_request WHERE id = ?`, id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Request{}, domain.ErrNotFound
	}
	return r, err
}

// List returns requests, newest first.
func (s *SQLiteStore) List(ctx context.Context, status string, limit int) ([]domain.Request, error) {
	query := `SELECT ` + selectColumns + ` FROM action_request`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Review is a compare-and-set on status = 'pending'. Of two concurrent
// reviewers exactly one updates the row; the other sees zero rows affected.
func (s *SQLiteStore) Review(ctx context.Context, id, status, reviewerID string, now time.Time) (domain.Request, error) {
	var reviewed domain.Request
	err := storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE action_request SET status = ?, reviewed_by = ?, reviewed_at = ?
			 WHERE id = ? AND status = ?`,
			status, reviewerID, storage.FormatTime(now), id, domain.StatusPending)
		if err != nil {
			return fmt.Errorf("review action request %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		r, err := get(ctx, tx, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrAlreadyReviewed
		}
		reviewed = r
		return nil
	})
	return reviewed, err
}

func formatReviewed(t *time.Time) string {
	if t == nil {
		return ""
	}
	return storage.FormatTime(*t)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (domain.Request, error) {
	var r domain.Request
	var md, reviewedAt, createdAt string
	err := row.Scan(&r.ID, &r.RequesterID, &r.ActionType, &r.TargetTable, &r.TargetID, &r.Reason,
		&md, &r.Status, &r.ReviewedBy, &reviewedAt, &createdAt)
	if err != nil {
		return domain.Request{}, err
	}
	if md != "" {
		if err := json.Unmarshal([]byte(md), &r.Metadata); err != nil {
			return domain.Request{}, fmt.Errorf("decode request metadata %s: %w", r.ID, err)
		}
	}
	if reviewedAt != "" {
		t := storage.ParseTime(reviewedAt)
		r.ReviewedAt = &t
	}
	r.CreatedAt = storage.ParseTime(createdAt)
	return r, nil
}
