package booking

import (
	"encoding/json"
	"strings"
	"time"

	"studio/internal/domain/apperr"
)

// Status constants
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no-show"
)

// Payment status constants
const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
	PaymentFailed  = "failed"
)

// Payment method constants record how a booking was settled.
const (
	// MethodCard is a checkout payment through the processor.
	MethodCard = "card"
	// MethodComp marks staff-initiated bookings that bypass payment.
	MethodComp = "comp"
	// MethodPackage marks bookings paid by deducting an athlete package session.
	MethodPackage = "package"
)

// MaxNotesLength bounds the free-text notes field.
const MaxNotesLength = 1000

// Domain errors
var (
	ErrNotFound             = apperr.New(apperr.KindNotFound, "booking not found")
	ErrDuplicateSession     = apperr.New(apperr.KindConflict, "a booking already exists for this checkout session")
	ErrAlreadyBooked        = apperr.New(apperr.KindConflict, "athlete already holds a booking on this slot")
	ErrInvalidTransition    = apperr.New(apperr.KindValidation, "invalid booking status transition")
	ErrMissingAthlete       = apperr.New(apperr.KindValidation, "athlete is required")
	ErrMissingService       = apperr.New(apperr.KindValidation, "service is required")
	ErrInvalidDraft         = apperr.New(apperr.KindValidation, "booking draft is incomplete")
	ErrNotesTooLong         = apperr.New(apperr.KindValidation, "notes cannot exceed 1000 characters")
	ErrInvalidPaymentStatus = apperr.New(apperr.KindValidation, "invalid payment status")
	ErrInvalidPaymentMethod = apperr.New(apperr.KindValidation, "invalid payment method")
)

// Booking is one athlete's reservation of one slot for one service.
// Date, time, duration and location are snapshots taken at creation.
type Booking struct {
	ID                      string
	AthleteID               string
	CoachID                 string
	ServiceID               string
	SlotID                  string
	Date                    string
	StartTime               string
	DurationMinutes         int
	Location                string
	Status                  string
	PaymentStatus           string
	PaymentMethod           string
	AmountCents             int64
	StripeCheckoutSessionID string
	StripePaymentIntentID   string
	AthletePackageID        string
	Notes                   string
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// Validate checks if the Booking has valid data.
// PRE: Booking struct is populated
// POST: Returns nil if valid, error otherwise
func (b *Booking) Validate() error {
	if b.AthleteID == "" {
		return ErrMissingAthlete
	}
	if b.ServiceID == "" {
		return ErrMissingService
	}
	if b.Date == "" || b.StartTime == "" || b.DurationMinutes <= 0 {
		return ErrInvalidDraft
	}
	if len(b.Notes) > MaxNotesLength {
		return ErrNotesTooLong
	}
	switch b.PaymentStatus {
	case PaymentPending, PaymentPaid, PaymentFailed:
	default:
		return ErrInvalidPaymentStatus
	}
	if b.PaymentMethod == "" {
		b.PaymentMethod = MethodCard
	}
	switch b.PaymentMethod {
	case MethodCard, MethodComp, MethodPackage:
	default:
		return ErrInvalidPaymentMethod
	}
	return nil
}

// IsActive reports whether the booking holds a place on its slot.
func (b Booking) IsActive() bool {
	return IsActiveStatus(b.Status)
}

// IsActiveStatus reports whether status holds a slot place.
func IsActiveStatus(status string) bool {
	return status == StatusPending || status == StatusConfirmed
}

// IsPast reports whether the booked time has already started at now.
func (b Booking) IsPast(now time.Time) bool {
	start, err := time.ParseInLocation("2006-01-02 15:04", b.Date+" "+b.StartTime, now.Location())
	if err != nil {
		return false
	}
	return !start.After(now)
}

// TransitionTo moves the booking to next.
// PRE: next is a known status
// POST: Status updated, or ErrInvalidTransition
//
//	pending   -> confirmed | cancelled
//	confirmed -> completed | no-show | cancelled
func (b *Booking) TransitionTo(next string, now time.Time) error {
	allowed := false
	switch b.Status {
	case StatusPending:
		allowed = next == StatusConfirmed || next == StatusCancelled
	case StatusConfirmed:
		allowed = next == StatusCompleted || next == StatusNoShow || next == StatusCancelled
	}
	if !allowed {
		return ErrInvalidTransition
	}
	b.Status = next
	b.UpdatedAt = now
	return nil
}

// ReleasesSlot reports whether moving from one status to another gives the
// slot place back.
func ReleasesSlot(from, to string) bool {
	return IsActiveStatus(from) && to == StatusCancelled
}

// Draft is the booking intent carried through the payment processor as metadata.
// The processor has no knowledge of studio entities, so everything needed to
// materialize the booking later travels here.
type Draft struct {
	SlotID          string `json:"slot_id"`
	CoachID         string `json:"coach_id"`
	Date            string `json:"date"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Location        string `json:"location"`
	Notes           string `json:"notes,omitempty"`
}

// Validate checks the draft has everything reconciliation needs.
func (d Draft) Validate() error {
	if d.SlotID == "" || d.Date == "" || d.StartTime == "" || d.DurationMinutes <= 0 {
		return ErrInvalidDraft
	}
	if len(d.Notes) > MaxNotesLength {
		return ErrNotesTooLong
	}
	return nil
}

// Encode serializes the draft for session metadata.
func (d Draft) Encode() (string, error) {
	d.Notes = strings.TrimSpace(d.Notes)
	raw, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// DecodeDraft parses a serialized draft.
// PRE: raw is non-empty
// POST: Returns a validated Draft or ErrInvalidDraft
func DecodeDraft(raw string) (Draft, error) {
	var d Draft
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return Draft{}, apperr.Wrap(apperr.KindValidation, ErrInvalidDraft.Reason, err)
	}
	if err := d.Validate(); err != nil {
		return Draft{}, err
	}
	return d, nil
}
