package orchestrators

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/application/payments"
	"studio/internal/domain/account"
	"studio/internal/domain/apperr"
	"studio/internal/domain/booking"
	"studio/internal/domain/catalog"
	"studio/internal/domain/identity"
	"studio/internal/domain/slot"
)

// Checkout errors.
var (
	ErrAthleteOnly = apperr.New(apperr.KindForbidden, "only athletes can make purchases")
	ErrSlotPast    = apperr.New(apperr.KindValidation, "this session has already started")
)

// AccountReader reads accounts.
type AccountReader interface {
	GetByID(ctx context.Context, id string) (account.Account, error)
}

// CheckoutGateway creates payment sessions.
type CheckoutGateway interface {
	CreateBookingCheckout(ctx context.Context, in payments.BookingCheckout) (payments.Session, error)
	CreatePackageCheckout(ctx context.Context, in payments.PackageCheckout) (payments.Session, error)
	CreateMembershipCheckout(ctx context.Context, tier catalog.MembershipTier, athlete account.Account, customers payments.CustomerStore) (payments.Session, error)
}

// CatalogReader reads what the studio sells.
type CatalogReader interface {
	GetService(ctx context.Context, id string) (catalog.Service, error)
	GetPackage(ctx context.Context, id string) (catalog.Package, error)
	GetTier(ctx context.Context, id string) (catalog.MembershipTier, error)
}

// AthleteBookingLister lists an athlete's bookings.
type AthleteBookingLister interface {
	ListByAthlete(ctx context.Context, athleteID string, limit int) ([]booking.Booking, error)
}

// CheckoutResult carries the processor redirect.
type CheckoutResult struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

// BookingCheckoutInput carries input for CreateBookingCheckout.
type BookingCheckoutInput struct {
	Caller    identity.Identity
	ServiceID string
	SlotID    string
	Notes     string
}

// BookingCheckoutDeps holds dependencies for CreateBookingCheckout.
type BookingCheckoutDeps struct {
	Accounts AccountReader
	Catalog  CatalogReader
	Slots    SlotReader
	Bookings AthleteBookingLister
	Gateway  CheckoutGateway
	Logger   zerolog.Logger
	Now      func() time.Time
}

// ExecuteCreateBookingCheckout opens a payment session for one slot. Every
// check that can refuse the booking runs before the session exists, so a
// full slot never starts a charge.
// PRE: caller is authenticated
// POST: Returns a redirect to the processor, or a validation/capacity/conflict error
func ExecuteCreateBookingCheckout(ctx context.Context, input BookingCheckoutInput, deps BookingCheckoutDeps) (CheckoutResult, error) {
	athlete, err := checkoutAthlete(ctx, input.Caller, deps.Accounts)
	if err != nil {
		return CheckoutResult{}, err
	}
	if strings.TrimSpace(input.ServiceID) == "" {
		return CheckoutResult{}, booking.ErrMissingService
	}
	if len(input.Notes) > booking.MaxNotesLength {
		return CheckoutResult{}, booking.ErrNotesTooLong
	}

	svc, err := deps.Catalog.GetService(ctx, input.ServiceID)
	if err != nil {
		return CheckoutResult{}, err
	}
	if !svc.Active {
		return CheckoutResult{}, catalog.ErrServiceInactive
	}

	sl, err := deps.Slots.GetByID(ctx, input.SlotID)
	if err != nil {
		return CheckoutResult{}, err
	}
	if sl.IsPast(deps.Now()) {
		return CheckoutResult{}, ErrSlotPast
	}
	if !sl.HasCapacity() {
		return CheckoutResult{}, slot.ErrSlotFull
	}
	if held, err := holdsActiveBooking(ctx, deps.Bookings, athlete.ID, sl.ID); err != nil {
		return CheckoutResult{}, err
	} else if held {
		return CheckoutResult{}, booking.ErrAlreadyBooked
	}

	draft := booking.Draft{
		SlotID:          sl.ID,
		CoachID:         sl.CoachID,
		Date:            sl.Date,
		StartTime:       sl.StartTime,
		DurationMinutes: svc.DurationMinutes,
		Location:        sl.Location,
		Notes:           input.Notes,
	}
	sess, err := deps.Gateway.CreateBookingCheckout(ctx, payments.BookingCheckout{
		Service:      svc,
		Athlete:      athlete,
		Draft:        draft,
		SimulationID: input.Caller.SimulationSessionID(),
	})
	if err != nil {
		return CheckoutResult{}, err
	}
	deps.Logger.Info().Str("session_id", sess.ID).Str("athlete_id", athlete.ID).Str("slot_id", sl.ID).
		Str("service_id", svc.ID).Msg("booking_checkout_created")
	return CheckoutResult{SessionID: sess.ID, RedirectURL: sess.URL}, nil
}

func holdsActiveBooking(ctx context.Context, bookings AthleteBookingLister, athleteID, slotID string) (bool, error) {
	list, err := bookings.ListByAthlete(ctx, athleteID, 500)
	if err != nil {
		return false, fmt.Errorf("list bookings for athlete %s: %w", athleteID, err)
	}
	for _, b := range list {
		if b.SlotID == slotID && b.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

// checkoutAthlete resolves the account paying. A simulating admin pays as
// themself under the athlete role.
func checkoutAthlete(ctx context.Context, caller identity.Identity, accounts AccountReader) (account.Account, error) {
	if err := caller.CanWrite(); err != nil {
		return account.Account{}, err
	}
	if !caller.HasRole(account.RoleAthlete) {
		return account.Account{}, ErrAthleteOnly
	}
	return accounts.GetByID(ctx, caller.UserID)
}

// PackageCheckoutInput carries input for CreatePackageCheckout.
type PackageCheckoutInput struct {
	Caller       identity.Identity
	PackageID    string
	Installments int
}

// PackageCheckoutDeps holds dependencies for CreatePackageCheckout.
type PackageCheckoutDeps struct {
	Accounts AccountReader
	Catalog  CatalogReader
	Gateway  CheckoutGateway
	Logger   zerolog.Logger
}

// ExecuteCreatePackageCheckout sells a session package outright (0 or 1
// installments) or as a 2 to 4 installment subscription.
// PRE: caller is authenticated
// POST: Returns a redirect, or a validation error for a bad installment count
func ExecuteCreatePackageCheckout(ctx context.Context, input PackageCheckoutInput, deps PackageCheckoutDeps) (CheckoutResult, error) {
	athlete, err := checkoutAthlete(ctx, input.Caller, deps.Accounts)
	if err != nil {
		return CheckoutResult{}, err
	}
	if input.Installments < 0 || input.Installments > catalog.MaxInstallments {
		return CheckoutResult{}, catalog.ErrInvalidInstallments
	}
	pkg, err := deps.Catalog.GetPackage(ctx, input.PackageID)
	if err != nil {
		return CheckoutResult{}, err
	}
	sess, err := deps.Gateway.CreatePackageCheckout(ctx, payments.PackageCheckout{
		Package:      pkg,
		Athlete:      athlete,
		Installments: input.Installments,
		SimulationID: input.Caller.SimulationSessionID(),
	})
	if err != nil {
		return CheckoutResult{}, err
	}
	deps.Logger.Info().Str("session_id", sess.ID).Str("athlete_id", athlete.ID).Str("package_id", pkg.ID).
		Int("installments", input.Installments).Msg("package_checkout_created")
	return CheckoutResult{SessionID: sess.ID, RedirectURL: sess.URL}, nil
}

// MembershipCheckoutInput carries input for CreateMembershipCheckout.
type MembershipCheckoutInput struct {
	Caller identity.Identity
	TierID string
}

// MembershipCheckoutDeps holds dependencies for CreateMembershipCheckout.
type MembershipCheckoutDeps struct {
	Accounts  AccountReader
	Customers payments.CustomerStore
	Catalog   CatalogReader
	Gateway   CheckoutGateway
	Logger    zerolog.Logger
}

// ExecuteCreateMembershipCheckout starts a monthly membership subscription.
// PRE: caller is authenticated
// POST: Returns a redirect; in live mode the athlete has a stored customer id
func ExecuteCreateMembershipCheckout(ctx context.Context, input MembershipCheckoutInput, deps MembershipCheckoutDeps) (CheckoutResult, error) {
	athlete, err := checkoutAthlete(ctx, input.Caller, deps.Accounts)
	if err != nil {
		return CheckoutResult{}, err
	}
	tier, err := deps.Catalog.GetTier(ctx, input.TierID)
	if err != nil {
		return CheckoutResult{}, err
	}
	sess, err := deps.Gateway.CreateMembershipCheckout(ctx, tier, athlete, deps.Customers)
	if err != nil {
		return CheckoutResult{}, err
	}
	deps.Logger.Info().Str("session_id", sess.ID).Str("athlete_id", athlete.ID).Str("tier_id", tier.ID).
		Msg("membership_checkout_created")
	return CheckoutResult{SessionID: sess.ID, RedirectURL: sess.URL}, nil
}
