// Package records stores the coaching records that gated deletions and
// simulation reversal operate on: drills, their assignments and completions,
// and athlete performance metrics.
package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"studio/internal/adapters/storage"
	"studio/internal/domain/apperr"
)

// Errors
var (
	ErrNotFound     = apperr.New(apperr.KindNotFound, "record not found")
	ErrUnknownTable = apperr.New(apperr.KindValidation, "unknown record table")
)

// Drill is a coach-authored exercise.
type Drill struct {
	ID        string
	CoachID   string
	Title     string
	CreatedAt time.Time
}

// Assignment gives a drill to an athlete.
type Assignment struct {
	ID        string
	DrillID   string
	AthleteID string
	CreatedAt time.Time
}

// Metric is one recorded performance measurement.
type Metric struct {
	ID         string
	AthleteID  string
	Name       string
	Value      float64
	RecordedAt time.Time
}

// Store persists coaching records.
type Store interface {
	CreateDrill(ctx context.Context, d Drill) error
	AssignDrill(ctx context.Context, a Assignment) error
	CompleteAssignment(ctx context.Context, id, assignmentID string, at time.Time) error
	RecordMetric(ctx context.Context, m Metric) error

	// DeleteDrill removes a drill with its assignments and completions.
	DeleteDrill(ctx context.Context, id string) error
	DeleteMetric(ctx context.Context, id string) error

	// DeleteRow removes one row from a drill child table, used when undoing simulated writes.
	DeleteRow(ctx context.Context, table, id string) error
}

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new records store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// CreateDrill inserts a drill.
func (s *SQLiteStore) CreateDrill(ctx context.Context, d Drill) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO drill (id, coach_id, title, created_at) VALUES (?, ?, ?, ?)`,
		d.ID, d.CoachID, d.Title, storage.FormatTime(d.CreatedAt))
	return err
}

// AssignDrill inserts an assignment.
func (s *SQLiteStore) AssignDrill(ctx context.Context, a Assignment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO drill_assignment (id, drill_id, athlete_id, created_at) VALUES (?, ?, ?, ?)`,
		a.ID, a.DrillID, a.AthleteID, storage.FormatTime(a.CreatedAt))
	return err
}

// CompleteAssignment records a completion.
func (s *SQLiteStore) CompleteAssignment(ctx context.Context, id, assignmentID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO drill_completion (id, assignment_id, completed_at) VALUES (?, ?, ?)`,
		id, assignmentID, storage.FormatTime(at))
	return err
}

// RecordMetric inserts a performance metric.
func (s *SQLiteStore) RecordMetric(ctx context.Context, m Metric) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO performance_metric (id, athlete_id, name, value, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.AthleteID, m.Name, m.Value, storage.FormatTime(m.RecordedAt))
	return err
}

// DeleteDrill removes the drill and everything that references it in one transaction.
// POST: drill, its assignments and their completions are gone, or ErrNotFound
func (s *SQLiteStore) DeleteDrill(ctx context.Context, id string) error {
	return storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM drill_completion WHERE assignment_id IN (SELECT id FROM drill_assignment WHERE drill_id = ?)`, id); err != nil {
			return fmt.Errorf("delete drill completions: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM drill_assignment WHERE drill_id = ?`, id); err != nil {
			return fmt.Errorf("delete drill assignments: %w", err)
		}
		return deleteByID(ctx, tx, "drill", id)
	})
}

// DeleteMetric removes a performance metric.
func (s *SQLiteStore) DeleteMetric(ctx context.Context, id string) error {
	return deleteByID(ctx, s.db, "performance_metric", id)
}

// DeleteRow removes a drill_completion or drill_assignment row. Deleting an
// assignment also removes completions that were not themselves logged.
func (s *SQLiteStore) DeleteRow(ctx context.Context, table, id string) error {
	switch table {
	case "drill_completion":
		return deleteByID(ctx, s.db, table, id)
	case "drill_assignment":
		return storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `DELETE FROM drill_completion WHERE assignment_id = ?`, id); err != nil {
				return err
			}
			return deleteByID(ctx, tx, table, id)
		})
	}
	return ErrUnknownTable
}

// deleteByID deletes one row; table is always a constant chosen above.
func deleteByID(ctx context.Context, q storage.Querier, table, id string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", table, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Exists reports whether a row exists; used by the approval flow to reject
// requests against missing targets.
func (s *SQLiteStore) Exists(ctx context.Context, table, id string) (bool, error) {
	switch table {
	case "drill", "performance_metric", "drill_assignment", "drill_completion":
	default:
		return false, ErrUnknownTable
	}
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}
