package storage_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio/internal/adapters/storage"
	"studio/internal/adapters/storage/storagetest"
)

func TestTimedDB_LogsSlowQueries(t *testing.T) {
	db := storagetest.Open(t)
	var buf bytes.Buffer
	tdb := storage.NewTimedDB(db, zerolog.New(&buf), time.Nanosecond)
	ctx := context.Background()

	_, err := tdb.ExecContext(ctx, `INSERT INTO setting (key, value, updated_at) VALUES ('payment_mode', 'live', 'now')`)
	require.NoError(t, err)

	var value string
	require.NoError(t, tdb.QueryRowContext(ctx, `SELECT value FROM setting WHERE key = 'payment_mode'`).Scan(&value))
	assert.Equal(t, "live", value)
	assert.Contains(t, buf.String(), "slow_query")
}

func TestTimedDB_QuietUnderThreshold(t *testing.T) {
	db := storagetest.Open(t)
	var buf bytes.Buffer
	tdb := storage.NewTimedDB(db, zerolog.New(&buf), time.Hour)

	rows, err := tdb.QueryContext(context.Background(), `SELECT key FROM setting`)
	require.NoError(t, err)
	rows.Close()
	assert.Empty(t, buf.String())
	assert.Same(t, db, tdb.RawDB())
}
