package account

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"studio/internal/domain/apperr"
)

// MaxEmailLength bounds user-editable email addresses.
const MaxEmailLength = 254

// Role constants. master_admin is the highest privilege; admin and coach are
// the mid tier; athlete is the customer.
const (
	RoleMasterAdmin = "master_admin"
	RoleAdmin       = "admin"
	RoleCoach       = "coach"
	RoleAthlete     = "athlete"
)

// ValidRoles contains all valid role values.
var ValidRoles = []string{RoleMasterAdmin, RoleAdmin, RoleCoach, RoleAthlete}

// Lockout policy
const (
	MaxFailedLogins = 5
	LockoutDuration = 15 * time.Minute
)

// Domain errors
var (
	ErrNotFound         = apperr.New(apperr.KindNotFound, "account not found")
	ErrInvalidEmail     = apperr.New(apperr.KindValidation, "email must contain '@'")
	ErrEmptyEmail       = apperr.New(apperr.KindValidation, "email cannot be empty")
	ErrEmailTooLong     = apperr.New(apperr.KindValidation, "email cannot exceed 254 characters")
	ErrInvalidRole      = apperr.New(apperr.KindValidation, "role must be one of: master_admin, admin, coach, athlete")
	ErrEmptyPassword    = apperr.New(apperr.KindValidation, "password cannot be empty")
	ErrPasswordTooShort = apperr.New(apperr.KindValidation, "password must be at least 12 characters")
	ErrWrongPassword    = apperr.New(apperr.KindForbidden, "incorrect password")
)

// Account holds state for a studio user.
type Account struct {
	ID               string
	Email            string
	Name             string
	PasswordHash     string
	Role             string
	StripeCustomerID string
	CreatedAt        time.Time
	FailedLogins     int
	LockedUntil      time.Time
}

// Validate checks if the Account has valid data.
// PRE: Account struct is populated
// POST: Returns nil if valid, error otherwise
func (a *Account) Validate() error {
	if strings.TrimSpace(a.Email) == "" {
		return ErrEmptyEmail
	}
	if len(a.Email) > MaxEmailLength {
		return ErrEmailTooLong
	}
	if !strings.Contains(a.Email, "@") {
		return ErrInvalidEmail
	}
	if !IsValidRole(a.Role) {
		return ErrInvalidRole
	}
	return nil
}

// SetPassword hashes and stores a password using bcrypt with cost 12.
// PRE: plaintext is non-empty and >= 12 characters
// POST: PasswordHash is set to bcrypt hash
func (a *Account) SetPassword(plaintext string) error {
	if plaintext == "" {
		return ErrEmptyPassword
	}
	if len(plaintext) < 12 {
		return ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), 12)
	if err != nil {
		return err
	}
	a.PasswordHash = string(hash)
	return nil
}

// CheckPassword verifies a plaintext password against the stored hash.
// PRE: PasswordHash is set
// INVARIANT: Account fields are not mutated
func (a *Account) CheckPassword(plaintext string) error {
	if a.PasswordHash == "" {
		return ErrWrongPassword
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(plaintext)); err != nil {
		return ErrWrongPassword
	}
	return nil
}

// IsLocked returns true if the account is locked out at now.
func (a *Account) IsLocked(now time.Time) bool {
	return !a.LockedUntil.IsZero() && now.Before(a.LockedUntil)
}

// RecordFailedLogin increments the failed login counter and locks the account
// after MaxFailedLogins failures.
func (a *Account) RecordFailedLogin(now time.Time) {
	a.FailedLogins++
	if a.FailedLogins >= MaxFailedLogins {
		a.LockedUntil = now.Add(LockoutDuration)
	}
}

// ResetFailedLogins clears the failed login counter and lock.
func (a *Account) ResetFailedLogins() {
	a.FailedLogins = 0
	a.LockedUntil = time.Time{}
}

// DisplayName returns Name, falling back to Email.
func (a Account) DisplayName() string {
	if strings.TrimSpace(a.Name) != "" {
		return a.Name
	}
	return a.Email
}

// IsStaff reports whether role is coach or above.
func IsStaff(role string) bool {
	return role == RoleCoach || role == RoleAdmin || role == RoleMasterAdmin
}

// IsAdministrator reports whether role may use operator tooling (impersonation, simulation).
func IsAdministrator(role string) bool {
	return role == RoleAdmin || role == RoleMasterAdmin
}

// IsValidRole reports whether role is known.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}
