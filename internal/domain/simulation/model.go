package simulation

import (
	"sort"
	"time"

	"studio/internal/domain/apperr"
)

// Session status constants.
const (
	StatusActive  = "active"
	StatusEnded   = "ended"
	StatusExpired = "expired"
)

// Tables that may be written while simulating.
const (
	TableDrillCompletion = "drill_completion"
	TableDrillAssignment = "drill_assignment"
	TableBooking         = "booking"
	TableAthletePackage  = "athlete_package"
	TableSlot            = "slot"
)

// ReversalOrder lists tracked tables children first, so a record is always
// deleted before anything it references.
var ReversalOrder = []string{
	TableDrillCompletion,
	TableDrillAssignment,
	TableBooking,
	TableAthletePackage,
	TableSlot,
}

// Domain errors
var (
	ErrNotFound       = apperr.New(apperr.KindNotFound, "simulation session not found")
	ErrNotActive      = apperr.New(apperr.KindConflict, "simulation session is not active")
	ErrUntrackedTable = apperr.New(apperr.KindValidation, "table is not tracked by simulations")
)

// Session is one admin simulation run.
type Session struct {
	ID        string
	AdminID   string
	Role      string
	Status    string
	StartedAt time.Time
	ExpiresAt time.Time
	EndedAt   *time.Time
}

// IsActive reports whether the session is running at now.
func (s Session) IsActive(now time.Time) bool {
	return s.Status == StatusActive && now.Before(s.ExpiresAt)
}

// MarkEnded closes the session. expired distinguishes a sweep from an explicit end.
// PRE: Status is active
// POST: Status is ended or expired, EndedAt set
func (s *Session) MarkEnded(now time.Time, expired bool) error {
	if s.Status != StatusActive {
		return ErrNotActive
	}
	s.Status = StatusEnded
	if expired {
		s.Status = StatusExpired
	}
	s.EndedAt = &now
	return nil
}

// LogEntry records one row written during a simulation.
type LogEntry struct {
	ID        string
	SessionID string
	TableName string
	RecordID  string
	CreatedAt time.Time
}

// IsTrackedTable reports whether table participates in reversal.
func IsTrackedTable(table string) bool {
	return reversalRank(table) >= 0
}

// IsPaymentBearing reports whether rows in table may carry an external payment intent.
func IsPaymentBearing(table string) bool {
	return table == TableBooking || table == TableAthletePackage
}

func reversalRank(table string) int {
	for i, t := range ReversalOrder {
		if t == table {
			return i
		}
	}
	return -1
}

// SortForReversal orders entries children first. Within one table the most
// recent write is undone first.
func SortForReversal(entries []LogEntry) []LogEntry {
	out := make([]LogEntry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := reversalRank(out[i].TableName), reversalRank(out[j].TableName)
		if ri != rj {
			return ri < rj
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
