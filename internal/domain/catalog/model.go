// Package catalog holds what the studio sells: bookable services, session
// packages, membership tiers, and the packages athletes have bought.
package catalog

import (
	"strings"
	"time"

	"studio/internal/domain/apperr"
)

// Installment bounds for package checkouts.
const (
	MinInstallments = 2
	MaxInstallments = 4
)

// Domain errors
var (
	ErrServiceNotFound        = apperr.New(apperr.KindNotFound, "service not found")
	ErrPackageNotFound        = apperr.New(apperr.KindNotFound, "package not found")
	ErrTierNotFound           = apperr.New(apperr.KindNotFound, "membership tier not found")
	ErrAthletePackageNotFound = apperr.New(apperr.KindNotFound, "athlete package not found")
	ErrServiceInactive        = apperr.New(apperr.KindValidation, "service is not currently offered")
	ErrEmptyName              = apperr.New(apperr.KindValidation, "name cannot be empty")
	ErrInvalidPrice           = apperr.New(apperr.KindValidation, "price must be positive")
	ErrInvalidDuration        = apperr.New(apperr.KindValidation, "duration must be positive")
	ErrInvalidSessions        = apperr.New(apperr.KindValidation, "sessions included must be positive")
	ErrInvalidInstallments    = apperr.New(apperr.KindValidation, "installments must be between 2 and 4")
	ErrInstallmentsDisallowed = apperr.New(apperr.KindValidation, "this package cannot be paid in installments")
	ErrPackageExhausted       = apperr.New(apperr.KindCapacityExceeded, "no sessions remain on this package")
	ErrPackageExpired         = apperr.New(apperr.KindValidation, "package has expired")
	ErrDuplicatePurchase      = apperr.New(apperr.KindConflict, "package already recorded for this checkout session")
)

// Service is a bookable training offering.
type Service struct {
	ID              string
	Name            string
	Description     string
	PriceCents      int64
	DurationMinutes int
	Active          bool
}

// Validate checks if the Service has valid data.
func (s *Service) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return ErrEmptyName
	}
	if s.PriceCents <= 0 {
		return ErrInvalidPrice
	}
	if s.DurationMinutes <= 0 {
		return ErrInvalidDuration
	}
	return nil
}

// Package is a bundle of sessions sold together.
type Package struct {
	ID                string
	Name              string
	PriceCents        int64
	SessionsIncluded  int
	ValidityDays      int
	AllowInstallments bool
}

// Validate checks if the Package has valid data.
func (p *Package) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	if p.PriceCents <= 0 {
		return ErrInvalidPrice
	}
	if p.SessionsIncluded <= 0 {
		return ErrInvalidSessions
	}
	if p.ValidityDays <= 0 {
		return ErrInvalidDuration
	}
	return nil
}

// InstallmentAmount returns the per-cycle charge for n installments,
// rounded up so the sum of cycles always covers the price.
// PRE: none
// POST: Returns ceil(PriceCents/n) or ErrInvalidInstallments
func (p Package) InstallmentAmount(n int) (int64, error) {
	if n < MinInstallments || n > MaxInstallments {
		return 0, ErrInvalidInstallments
	}
	if !p.AllowInstallments {
		return 0, ErrInstallmentsDisallowed
	}
	count := int64(n)
	return (p.PriceCents + count - 1) / count, nil
}

// MembershipTier is a flat recurring membership.
type MembershipTier struct {
	ID                string
	Name              string
	MonthlyPriceCents int64
}

// AthletePackage records a purchased package and its consumption.
type AthletePackage struct {
	ID                      string
	AthleteID               string
	PackageID               string
	SessionsTotal           int
	SessionsUsed            int
	PurchasedAt             time.Time
	ExpiresAt               time.Time
	AmountCents             int64
	InstallmentsTotal       int
	StripeCheckoutSessionID string
	StripePaymentIntentID   string
}

// NewAthletePackage creates a fresh purchase of pkg.
// POST: SessionsUsed == 0, ExpiresAt == purchasedAt + ValidityDays
func NewAthletePackage(id, athleteID string, pkg Package, purchasedAt time.Time) AthletePackage {
	return AthletePackage{
		ID:            id,
		AthleteID:     athleteID,
		PackageID:     pkg.ID,
		SessionsTotal: pkg.SessionsIncluded,
		PurchasedAt:   purchasedAt,
		ExpiresAt:     purchasedAt.AddDate(0, 0, pkg.ValidityDays),
	}
}

// Remaining returns sessions still available.
func (a AthletePackage) Remaining() int {
	if a.SessionsUsed >= a.SessionsTotal {
		return 0
	}
	return a.SessionsTotal - a.SessionsUsed
}

// IsExpired reports whether the package can no longer be used at now.
func (a AthletePackage) IsExpired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// UseSession consumes one session.
// PRE: package not expired and Remaining() > 0
// POST: SessionsUsed incremented
func (a *AthletePackage) UseSession(now time.Time) error {
	if a.IsExpired(now) {
		return ErrPackageExpired
	}
	if a.Remaining() == 0 {
		return ErrPackageExhausted
	}
	a.SessionsUsed++
	return nil
}
