package slot

import (
	"strings"
	"time"

	"studio/internal/domain/apperr"
)

// DateLayout and TimeLayout are the wire formats for slot dates and times.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Domain errors
var (
	ErrSlotNotFound    = apperr.New(apperr.KindNotFound, "slot not found")
	ErrSlotFull        = apperr.New(apperr.KindCapacityExceeded, "slot is full")
	ErrInvalidCapacity = apperr.New(apperr.KindValidation, "max bookings must be at least 1")
	ErrInvalidDate     = apperr.New(apperr.KindValidation, "date must be YYYY-MM-DD")
	ErrInvalidTime     = apperr.New(apperr.KindValidation, "start and end time must be HH:MM with end after start")
	ErrCountOutOfRange = apperr.New(apperr.KindValidation, "current bookings must be between 0 and max bookings")
)

// Slot is a bookable time window at a location with a coach.
type Slot struct {
	ID              string
	Date            string // YYYY-MM-DD
	StartTime       string // HH:MM
	EndTime         string // HH:MM
	Location        string
	CoachID         string
	MaxBookings     int
	CurrentBookings int
	IsAvailable     bool
	CreatedAt       time.Time
}

// Validate checks that the slot is well formed.
// PRE: Slot struct is populated
// POST: Returns nil if valid, error otherwise
func (s *Slot) Validate() error {
	if s.MaxBookings < 1 {
		return ErrInvalidCapacity
	}
	if s.CurrentBookings < 0 || s.CurrentBookings > s.MaxBookings {
		return ErrCountOutOfRange
	}
	if _, err := time.Parse(DateLayout, s.Date); err != nil {
		return ErrInvalidDate
	}
	start, err := time.Parse(TimeLayout, s.StartTime)
	if err != nil {
		return ErrInvalidTime
	}
	end, err := time.Parse(TimeLayout, s.EndTime)
	if err != nil || !end.After(start) {
		return ErrInvalidTime
	}
	s.Location = strings.TrimSpace(s.Location)
	return nil
}

// Recompute derives IsAvailable from the counters.
// POST: IsAvailable == CurrentBookings < MaxBookings
func (s *Slot) Recompute() {
	s.IsAvailable = s.CurrentBookings < s.MaxBookings
}

// HasCapacity reports whether one more booking fits.
// INVARIANT: Slot fields are not mutated
func (s Slot) HasCapacity() bool {
	return s.IsAvailable && s.CurrentBookings < s.MaxBookings
}

// Remaining returns the number of open places.
func (s Slot) Remaining() int {
	if s.CurrentBookings >= s.MaxBookings {
		return 0
	}
	return s.MaxBookings - s.CurrentBookings
}

// StartsAt returns the slot start in loc.
func (s Slot) StartsAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+TimeLayout, s.Date+" "+s.StartTime, loc)
}

// DurationMinutes returns the slot length.
func (s Slot) DurationMinutes() int {
	start, err1 := time.Parse(TimeLayout, s.StartTime)
	end, err2 := time.Parse(TimeLayout, s.EndTime)
	if err1 != nil || err2 != nil {
		return 0
	}
	return int(end.Sub(start).Minutes())
}

// IsPast reports whether the slot has already started at now.
// Unparseable dates are treated as past so they can never be sold.
func (s Slot) IsPast(now time.Time) bool {
	start, err := s.StartsAt(now.Location())
	if err != nil {
		return true
	}
	return !start.After(now)
}
