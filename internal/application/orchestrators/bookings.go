package orchestrators

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/domain/account"
	"studio/internal/domain/apperr"
	"studio/internal/domain/audit"
	"studio/internal/domain/booking"
	"studio/internal/domain/catalog"
	"studio/internal/domain/identity"
	"studio/internal/domain/simulation"
)

// Booking management errors.
var (
	ErrNotAnAthlete     = apperr.New(apperr.KindValidation, "bookings can only be made for athlete accounts")
	ErrPackageNotOwned  = apperr.New(apperr.KindForbidden, "this package belongs to another athlete")
	ErrNotBookingOwner  = apperr.New(apperr.KindForbidden, "this booking belongs to another athlete")
	ErrAthleteCancelled = apperr.New(apperr.KindForbidden, "athletes can only cancel their own bookings")
)

// StaffBookingStore inserts bookings together with their slot reservation.
type StaffBookingStore interface {
	CreateWithReservation(ctx context.Context, b booking.Booking) error
}

// AthletePackageReader reads purchased packages.
type AthletePackageReader interface {
	GetAthletePackage(ctx context.Context, id string) (catalog.AthletePackage, error)
}

// StaffBookingInput carries input for StaffBooking.
type StaffBookingInput struct {
	Caller    identity.Identity
	AthleteID string
	ServiceID string
	SlotID    string
	// AthletePackageID, when set, pays by deducting one package session;
	// otherwise the booking is complimentary.
	AthletePackageID string
	Notes            string
}

// StaffBookingDeps holds dependencies for StaffBooking.
type StaffBookingDeps struct {
	Accounts    AccountReader
	Catalog     CatalogReader
	Packages    AthletePackageReader
	Slots       SlotReader
	Bookings    StaffBookingStore
	Simulations SimulationLogger
	Audit       AuditRecorder
	Logger      zerolog.Logger
	GenerateID  func() string
	Now         func() time.Time
}

// ExecuteStaffBooking books an athlete without a payment session.
// PRE: caller is staff
// POST: Booking inserted with its slot place (and package session) taken in
// one transaction, or capacity/conflict/validation error and nothing changed
func ExecuteStaffBooking(ctx context.Context, input StaffBookingInput, deps StaffBookingDeps) (booking.Booking, error) {
	if err := input.Caller.CanWrite(); err != nil {
		return booking.Booking{}, err
	}
	if !input.Caller.IsStaff() {
		return booking.Booking{}, ErrStaffOnly
	}
	athlete, err := deps.Accounts.GetByID(ctx, input.AthleteID)
	if err != nil {
		return booking.Booking{}, err
	}
	if athlete.Role != account.RoleAthlete {
		return booking.Booking{}, ErrNotAnAthlete
	}
	if strings.TrimSpace(input.ServiceID) == "" {
		return booking.Booking{}, booking.ErrMissingService
	}
	svc, err := deps.Catalog.GetService(ctx, input.ServiceID)
	if err != nil {
		return booking.Booking{}, err
	}
	sl, err := deps.Slots.GetByID(ctx, input.SlotID)
	if err != nil {
		return booking.Booking{}, err
	}
	now := deps.Now()
	if sl.IsPast(now) {
		return booking.Booking{}, ErrSlotPast
	}

	method := booking.MethodComp
	if input.AthletePackageID != "" {
		ap, err := deps.Packages.GetAthletePackage(ctx, input.AthletePackageID)
		if err != nil {
			return booking.Booking{}, err
		}
		if ap.AthleteID != athlete.ID {
			return booking.Booking{}, ErrPackageNotOwned
		}
		method = booking.MethodPackage
	}

	b := booking.Booking{
		ID:               deps.GenerateID(),
		AthleteID:        athlete.ID,
		CoachID:          sl.CoachID,
		ServiceID:        svc.ID,
		SlotID:           sl.ID,
		Date:             sl.Date,
		StartTime:        sl.StartTime,
		DurationMinutes:  svc.DurationMinutes,
		Location:         sl.Location,
		Status:           booking.StatusConfirmed,
		PaymentStatus:    booking.PaymentPaid,
		PaymentMethod:    method,
		AthletePackageID: input.AthletePackageID,
		Notes:            input.Notes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := b.Validate(); err != nil {
		return booking.Booking{}, err
	}
	if err := deps.Bookings.CreateWithReservation(ctx, b); err != nil {
		return booking.Booking{}, err
	}

	if simID := input.Caller.SimulationSessionID(); simID != "" && deps.Simulations != nil {
		if err := deps.Simulations.LogWrite(ctx, simulation.LogEntry{
			ID: deps.GenerateID(), SessionID: simID, TableName: simulation.TableBooking, RecordID: b.ID, CreatedAt: now,
		}); err != nil {
			deps.Logger.Warn().Err(err).Str("simulation_session_id", simID).Str("booking_id", b.ID).Msg("simulation_log_failed")
		}
	}
	deps.Logger.Info().Str("booking_id", b.ID).Str("athlete_id", athlete.ID).Str("slot_id", sl.ID).
		Str("payment_method", method).Str("staff_id", input.Caller.UserID).Msg("staff_booking_created")
	recordAudit(ctx, deps.Audit, deps.Logger, audit.NewEvent(input.Caller.TrueUserID, input.Caller.Role, audit.CategoryBooking, audit.ActionUpdate, now).
		WithResource("booking", b.ID).WithDescription("staff booking (" + method + ")"))
	return b, nil
}

// BookingStatusStore reads bookings and applies status transitions.
type BookingStatusStore interface {
	GetByID(ctx context.Context, id string) (booking.Booking, error)
	UpdateStatus(ctx context.Context, id, from, to string, now time.Time) error
}

// UpdateBookingStatusInput carries input for UpdateBookingStatus.
type UpdateBookingStatusInput struct {
	Caller    identity.Identity
	BookingID string
	Status    string
}

// UpdateBookingStatusDeps holds dependencies for UpdateBookingStatus.
type UpdateBookingStatusDeps struct {
	Bookings BookingStatusStore
	Audit    AuditRecorder
	Logger   zerolog.Logger
	Now      func() time.Time
}

// ExecuteUpdateBookingStatus checks an athlete in, marks a no-show or cancels.
// Staff may apply any allowed transition; an athlete may only cancel their own
// booking.
// PRE: caller is authenticated
// POST: Status moved; a cancellation returns the slot place
func ExecuteUpdateBookingStatus(ctx context.Context, input UpdateBookingStatusInput, deps UpdateBookingStatusDeps) (booking.Booking, error) {
	if err := input.Caller.CanWrite(); err != nil {
		return booking.Booking{}, err
	}
	b, err := deps.Bookings.GetByID(ctx, input.BookingID)
	if err != nil {
		return booking.Booking{}, err
	}
	if !input.Caller.IsStaff() {
		if b.AthleteID != input.Caller.UserID {
			return booking.Booking{}, ErrNotBookingOwner
		}
		if input.Status != booking.StatusCancelled {
			return booking.Booking{}, ErrAthleteCancelled
		}
	}

	now := deps.Now()
	from := b.Status
	if err := b.TransitionTo(input.Status, now); err != nil {
		return booking.Booking{}, err
	}
	if err := deps.Bookings.UpdateStatus(ctx, b.ID, from, b.Status, now); err != nil {
		return booking.Booking{}, err
	}
	deps.Logger.Info().Str("booking_id", b.ID).Str("from", from).Str("to", b.Status).
		Str("actor_id", input.Caller.UserID).Msg("booking_status_changed")
	recordAudit(ctx, deps.Audit, deps.Logger, audit.NewEvent(input.Caller.TrueUserID, input.Caller.Role, audit.CategoryBooking, audit.ActionUpdate, now).
		WithResource("booking", b.ID).WithDescription(from+" -> "+b.Status))
	return b, nil
}

// BookingLister lists bookings.
type BookingLister interface {
	ListByAthlete(ctx context.Context, athleteID string, limit int) ([]booking.Booking, error)
	ListByDate(ctx context.Context, date string) ([]booking.Booking, error)
}

// ListBookingsInput carries input for ListBookings.
type ListBookingsInput struct {
	Caller    identity.Identity
	AthleteID string
	Date      string
}

// ExecuteListBookings returns the caller's own bookings, or for staff the
// bookings of one athlete or one day.
func ExecuteListBookings(ctx context.Context, input ListBookingsInput, bookings BookingLister) ([]booking.Booking, error) {
	if !input.Caller.Authenticated() {
		return nil, identity.ErrUnauthenticated
	}
	if !input.Caller.IsStaff() {
		return bookings.ListByAthlete(ctx, input.Caller.UserID, 200)
	}
	switch {
	case input.AthleteID != "":
		return bookings.ListByAthlete(ctx, input.AthleteID, 200)
	case input.Date != "":
		return bookings.ListByDate(ctx, input.Date)
	}
	return nil, apperr.New(apperr.KindValidation, "athlete_id or date is required")
}
