// Package identity composes the authenticated caller with the optional
// impersonation and simulation overlays into one effective identity.
package identity

import (
	"time"

	"studio/internal/domain/account"
	"studio/internal/domain/apperr"
)

// Overlay lifetimes.
const (
	ImpersonationTTL = 2 * time.Hour
	SimulationTTL    = 4 * time.Hour
)

// Errors
var (
	ErrConflictingOverlay = apperr.New(apperr.KindConflict, "another overlay is already active; end it first")
	ErrReadOnly           = apperr.New(apperr.KindForbidden, "changes are not allowed while impersonating")
	ErrUnauthenticated    = apperr.New(apperr.KindForbidden, "authentication required")
	ErrNotAdministrator   = apperr.New(apperr.KindForbidden, "only admins may start an impersonation or simulation")
	ErrInvalidSimRole     = apperr.New(apperr.KindValidation, "simulated role must be athlete or coach")
	ErrSelfImpersonation  = apperr.New(apperr.KindValidation, "you cannot impersonate yourself")
	ErrProtectedTarget    = apperr.New(apperr.KindForbidden, "the master admin account cannot be impersonated")
	ErrNoOverlay          = apperr.New(apperr.KindNotFound, "no overlay is active")
)

// Impersonation is an admin viewing the system as another account, read-only.
type Impersonation struct {
	TargetUserID string
	TargetName   string
	TargetRole   string
	ExpiresAt    time.Time
}

// Simulation is an admin acting under a synthetic role with tracked writes.
type Simulation struct {
	SessionID string
	Role      string
	ExpiresAt time.Time
}

// Identity is the per-request effective identity.
type Identity struct {
	TrueUserID string
	TrueRole   string
	Email      string
	// UserID and Role are what access control sees.
	UserID        string
	Role          string
	Impersonation *Impersonation
	Simulation    *Simulation
}

// Resolve builds the effective identity. Expired overlays are ignored.
// Impersonation takes precedence; both being present cannot happen through
// the start operations, which reject a second overlay.
func Resolve(trueUserID, trueRole string, imp *Impersonation, sim *Simulation, now time.Time) Identity {
	id := Identity{
		TrueUserID: trueUserID,
		TrueRole:   trueRole,
		UserID:     trueUserID,
		Role:       trueRole,
	}
	if imp != nil && now.Before(imp.ExpiresAt) {
		id.Impersonation = imp
		id.UserID = imp.TargetUserID
		id.Role = imp.TargetRole
		return id
	}
	if sim != nil && now.Before(sim.ExpiresAt) {
		id.Simulation = sim
		id.Role = sim.Role
	}
	return id
}

// Authenticated reports whether a caller is present.
func (i Identity) Authenticated() bool {
	return i.TrueUserID != ""
}

// IsImpersonating reports whether the impersonation overlay is active.
func (i Identity) IsImpersonating() bool {
	return i.Impersonation != nil
}

// IsSimulating reports whether the simulation overlay is active.
func (i Identity) IsSimulating() bool {
	return i.Simulation != nil
}

// SimulationSessionID returns the active simulation id, or "".
func (i Identity) SimulationSessionID() string {
	if i.Simulation == nil {
		return ""
	}
	return i.Simulation.SessionID
}

// ReadOnly reports whether writes must be rejected.
func (i Identity) ReadOnly() bool {
	return i.IsImpersonating()
}

// CanWrite is the capability check every mutating use case performs.
func (i Identity) CanWrite() error {
	if !i.Authenticated() {
		return ErrUnauthenticated
	}
	if i.ReadOnly() {
		return ErrReadOnly
	}
	return nil
}

// HasRole reports whether the effective role is one of roles.
func (i Identity) HasRole(roles ...string) bool {
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

// IsStaff reports whether the effective role is coach or above.
func (i Identity) IsStaff() bool {
	return account.IsStaff(i.Role)
}

// CanStartOverlay checks that the true role may begin an impersonation or
// simulation and that no overlay is already active.
func (i Identity) CanStartOverlay() error {
	if !i.Authenticated() {
		return ErrUnauthenticated
	}
	if !account.IsAdministrator(i.TrueRole) {
		return ErrNotAdministrator
	}
	if i.IsImpersonating() || i.IsSimulating() {
		return ErrConflictingOverlay
	}
	return nil
}

// IsSimulatableRole reports whether role can be simulated.
func IsSimulatableRole(role string) bool {
	return role == account.RoleAthlete || role == account.RoleCoach
}
