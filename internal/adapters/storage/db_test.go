package storage_test

import (
	"context"
	"database/sql"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio/internal/adapters/storage"
	"studio/internal/adapters/storage/storagetest"
)

func tableNames(t *testing.T, db *sql.DB) []string {
	t.Helper()
	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'")
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func TestInitDB_CreatesSchema(t *testing.T) {
	db := storagetest.Open(t)

	assert.Equal(t, []string{
		"account", "action_request", "athlete_package", "audit_event", "booking",
		"drill", "drill_assignment", "drill_completion", "membership_tier", "outbox",
		"package", "performance_metric", "service", "setting", "simulation_data_log",
		"simulation_session", "slot",
	}, tableNames(t, db))

	// Idempotent.
	require.NoError(t, storage.InitDB(db))
}

func TestUniqueViolationDetection(t *testing.T) {
	db := storagetest.Open(t)
	ctx := context.Background()

	insert := `INSERT INTO booking (id, athlete_id, service_id, booking_date, start_time, duration_minutes, status, payment_status, stripe_checkout_session_id, created_at, updated_at)
		VALUES (?, 'a1', 'svc', '2026-11-02', '09:00', 60, 'confirmed', 'paid', ?, 'now', 'now')`
	_, err := db.ExecContext(ctx, insert, "b1", "cs_test_abc")
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, insert, "b2", "cs_test_abc")
	require.Error(t, err)
	assert.True(t, storage.IsUniqueViolation(err))
	assert.True(t, storage.UniqueViolationOn(err, "stripe_checkout_session_id"))
	assert.False(t, storage.UniqueViolationOn(err, "athlete_id"))

	// NULL session ids never collide.
	_, err = db.ExecContext(ctx, insert, "b3", nil)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, insert, "b4", nil)
	require.NoError(t, err)
}

func TestSlotCheckConstraint(t *testing.T) {
	db := storagetest.Open(t)
	_, err := db.Exec(`INSERT INTO slot (id, date, start_time, end_time, max_bookings, current_bookings, created_at)
		VALUES ('s1', '2026-11-02', '09:00', '10:00', 1, 2, 'now')`)
	require.Error(t, err)
	assert.True(t, storage.IsCheckViolation(err))
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db := storagetest.Open(t)
	ctx := context.Background()

	err := storage.WithTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO setting (key, value, updated_at) VALUES ('k', 'v', 'now')`); err != nil {
			return err
		}
		return sql.ErrTxDone
	})
	require.ErrorIs(t, err, sql.ErrTxDone)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM setting`).Scan(&n))
	assert.Equal(t, 0, n)
}
