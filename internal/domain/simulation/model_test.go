package simulation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortForReversal(t *testing.T) {
	base := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	entries := []LogEntry{
		{RecordID: "slot-1", TableName: TableSlot, CreatedAt: base},
		{RecordID: "pkg-1", TableName: TableAthletePackage, CreatedAt: base.Add(time.Minute)},
		{RecordID: "bk-1", TableName: TableBooking, CreatedAt: base.Add(2 * time.Minute)},
		{RecordID: "bk-2", TableName: TableBooking, CreatedAt: base.Add(3 * time.Minute)},
		{RecordID: "dc-1", TableName: TableDrillCompletion, CreatedAt: base.Add(4 * time.Minute)},
		{RecordID: "da-1", TableName: TableDrillAssignment, CreatedAt: base.Add(5 * time.Minute)},
	}

	got := SortForReversal(entries)
	var ids []string
	for _, e := range got {
		ids = append(ids, e.RecordID)
	}
	assert.Equal(t, []string{"dc-1", "da-1", "bk-2", "bk-1", "pkg-1", "slot-1"}, ids)
	assert.Equal(t, "slot-1", entries[0].RecordID, "input must not be reordered")
}

func TestSessionLifecycle(t *testing.T) {
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	s := Session{ID: "sim1", Status: StatusActive, StartedAt: now, ExpiresAt: now.Add(4 * time.Hour)}
	assert.True(t, s.IsActive(now))
	assert.False(t, s.IsActive(now.Add(4*time.Hour)))

	require.NoError(t, s.MarkEnded(now.Add(time.Hour), false))
	assert.Equal(t, StatusEnded, s.Status)
	assert.ErrorIs(t, s.MarkEnded(now, true), ErrNotActive)
}

func TestTableClassification(t *testing.T) {
	assert.True(t, IsTrackedTable(TableBooking))
	assert.False(t, IsTrackedTable("account"))
	assert.True(t, IsPaymentBearing(TableAthletePackage))
	assert.False(t, IsPaymentBearing(TableSlot))
}
