package records_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio/internal/adapters/storage/records"
	"studio/internal/adapters/storage/storagetest"
)

var at = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T) *records.SQLiteStore {
	t.Helper()
	store := records.NewSQLiteStore(storagetest.Open(t))
	ctx := context.Background()
	require.NoError(t, store.CreateDrill(ctx, records.Drill{ID: "D1", CoachID: "coach-1", Title: "Footwork ladder", CreatedAt: at}))
	require.NoError(t, store.AssignDrill(ctx, records.Assignment{ID: "DA1", DrillID: "D1", AthleteID: "A1", CreatedAt: at}))
	require.NoError(t, store.CompleteAssignment(ctx, "DC1", "DA1", at.Add(time.Hour)))
	return store
}

func TestDeleteDrillCascades(t *testing.T) {
	store := seed(t)
	ctx := context.Background()

	require.NoError(t, store.DeleteDrill(ctx, "D1"))
	for table, id := range map[string]string{"drill": "D1", "drill_assignment": "DA1", "drill_completion": "DC1"} {
		ok, err := store.Exists(ctx, table, id)
		require.NoError(t, err)
		assert.False(t, ok, table)
	}
	assert.ErrorIs(t, store.DeleteDrill(ctx, "D1"), records.ErrNotFound)
}

func TestDeleteRowAssignmentTakesCompletions(t *testing.T) {
	store := seed(t)
	ctx := context.Background()

	require.NoError(t, store.DeleteRow(ctx, "drill_assignment", "DA1"))
	ok, err := store.Exists(ctx, "drill_completion", "DC1")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, store.DeleteRow(ctx, "account", "U1"), records.ErrUnknownTable)
}

func TestDeleteMetric(t *testing.T) {
	store := records.NewSQLiteStore(storagetest.Open(t))
	ctx := context.Background()
	require.NoError(t, store.RecordMetric(ctx, records.Metric{ID: "M1", AthleteID: "A1", Name: "sprint_40m", Value: 5.1, RecordedAt: at}))

	require.NoError(t, store.DeleteMetric(ctx, "M1"))
	assert.ErrorIs(t, store.DeleteMetric(ctx, "M1"), records.ErrNotFound)
}
