package simulation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"studio/internal/adapters/storage"
	domain "studio/internal/domain/simulation"
)

// SQLiteStore implements the simulation Store using SQLite.
type SQLiteStore struct {
	db SQLDB
}

// NewSQLiteStore creates a new simulation store.
func NewSQLiteStore(db SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const sessionColumns = `id, admin_id, role, status, started_at, expires_at, ended_at`

// Create inserts a new session.
func (s *SQLiteStore) Create(ctx context.Context, sess domain.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO simulation_session (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.AdminID, sess.Role, sess.Status,
		storage.FormatTime(sess.StartedAt), storage.FormatTime(sess.ExpiresAt), "")
	return err
}

// GetByID retrieves a session.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM simulation_session WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrNotFound
	}
	return sess, err
}

// GetActiveForAdmin returns the newest active, unexpired session for adminID.
func (s *SQLiteStore) GetActiveForAdmin(ctx context.Context, adminID string, now time.Time) (domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM simulation_session
		 WHERE admin_id = ? AND status = ? AND expires_at > ?
		 ORDER BY started_at DESC LIMIT 1`,
		adminID, domain.StatusActive, storage.FormatTime(now))
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrNotFound
	}
	return sess, err
}

// ListExpired returns active sessions whose expiry is at or before now.
func (s *SQLiteStore) ListExpired(ctx context.Context, now time.Time) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM simulation_session WHERE status = ? AND expires_at <= ? ORDER BY expires_at`,
		domain.StatusActive, storage.FormatTime(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// MarkEnded sets the terminal status with a compare-and-set on active, so an
// explicit end racing the expiry sweep reverses the session only once.
func (s *SQLiteStore) MarkEnded(ctx context.Context, id, status string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE simulation_session SET status = ?, ended_at = ? WHERE id = ? AND status = ?`,
		status, storage.FormatTime(now), id, domain.StatusActive)
	if err != nil {
		return fmt.Errorf("end simulation %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	return domain.ErrNotActive
}

// LogWrite records one written row against a session that is still active.
// POST: Row logged (or already logged), domain.ErrNotActive when the session
// has ended, or domain.ErrNotFound
func (s *SQLiteStore) LogWrite(ctx context.Context, e domain.LogEntry) error {
	if !domain.IsTrackedTable(e.TableName) {
		return domain.ErrUntrackedTable
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO simulation_data_log (id, session_id, table_name, record_id, created_at)
		 SELECT ?, ?, ?, ?, ?
		 WHERE EXISTS (SELECT 1 FROM simulation_session WHERE id = ? AND status = ?)
		 ON CONFLICT(session_id, table_name, record_id) DO NOTHING`,
		e.ID, e.SessionID, e.TableName, e.RecordID, storage.FormatTime(e.CreatedAt),
		e.SessionID, domain.StatusActive)
	if err != nil {
		return fmt.Errorf("log simulation write: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	sess, err := s.GetByID(ctx, e.SessionID)
	if err != nil {
		return err
	}
	if sess.Status != domain.StatusActive {
		return domain.ErrNotActive
	}
	return nil
}

// ListPendingReversal returns ended or expired sessions that ended before
// endedBefore and still have logged rows.
func (s *SQLiteStore) ListPendingReversal(ctx context.Context, endedBefore time.Time) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM simulation_session
		 WHERE status != ? AND ended_at != '' AND ended_at <= ?
		   AND EXISTS (SELECT 1 FROM simulation_data_log l WHERE l.session_id = simulation_session.id)
		 ORDER BY ended_at`,
		domain.StatusActive, storage.FormatTime(endedBefore))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// ListLog returns every row logged for a session.
func (s *SQLiteStore) ListLog(ctx context.Context, sessionID string) ([]domain.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, table_name, record_id, created_at FROM simulation_data_log
		 WHERE session_id = ? ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.LogEntry
	for rows.Next() {
		var e domain.LogEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.TableName, &e.RecordID, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = storage.ParseTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteLogEntry removes a log row once its record has been reversed.
func (s *SQLiteStore) DeleteLogEntry(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM simulation_data_log WHERE id = ?`, id)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (domain.Session, error) {
	var sess domain.Session
	var startedAt, expiresAt, endedAt string
	err := row.Scan(&sess.ID, &sess.AdminID, &sess.Role, &sess.Status, &startedAt, &expiresAt, &endedAt)
	if err != nil {
		return domain.Session{}, err
	}
	sess.StartedAt = storage.ParseTime(startedAt)
	sess.ExpiresAt = storage.ParseTime(expiresAt)
	if endedAt != "" {
		t := storage.ParseTime(endedAt)
		sess.EndedAt = &t
	}
	return sess, nil
}
