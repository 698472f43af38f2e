package slot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validSlot() Slot {
	return Slot{
		ID:          "S1",
		Date:        "2026-11-02",
		StartTime:   "09:00",
		EndTime:     "10:30",
		Location:    " Main gym ",
		CoachID:     "coach-1",
		MaxBookings: 2,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Slot)
		want   error
	}{
		{"valid", func(s *Slot) {}, nil},
		{"zero capacity", func(s *Slot) { s.MaxBookings = 0 }, ErrInvalidCapacity},
		{"over capacity", func(s *Slot) { s.CurrentBookings = 3 }, ErrCountOutOfRange},
		{"negative count", func(s *Slot) { s.CurrentBookings = -1 }, ErrCountOutOfRange},
		{"bad date", func(s *Slot) { s.Date = "02/11/2026" }, ErrInvalidDate},
		{"end before start", func(s *Slot) { s.EndTime = "08:00" }, ErrInvalidTime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSlot()
			tt.mutate(&s)
			assert.Equal(t, tt.want, s.Validate())
		})
	}
}

func TestCapacity(t *testing.T) {
	s := validSlot()
	s.Recompute()
	assert.True(t, s.HasCapacity())
	assert.Equal(t, 2, s.Remaining())

	s.CurrentBookings = 2
	s.Recompute()
	assert.False(t, s.IsAvailable)
	assert.False(t, s.HasCapacity())
	assert.Equal(t, 0, s.Remaining())

	// A slot blocked by staff has no capacity even with open places.
	s.CurrentBookings = 0
	s.IsAvailable = false
	assert.False(t, s.HasCapacity())
}

func TestIsPast(t *testing.T) {
	s := validSlot()
	before := time.Date(2026, 11, 2, 8, 59, 0, 0, time.UTC)
	after := time.Date(2026, 11, 2, 9, 0, 0, 0, time.UTC)
	assert.False(t, s.IsPast(before))
	assert.True(t, s.IsPast(after))
	assert.Equal(t, 90, s.DurationMinutes())

	s.Date = "garbage"
	assert.True(t, s.IsPast(before))
}
