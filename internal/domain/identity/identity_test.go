package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"studio/internal/domain/account"
)

var now = time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)

func TestResolve(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		id := Resolve("adm", account.RoleAdmin, nil, nil, now)
		assert.Equal(t, "adm", id.UserID)
		assert.Equal(t, account.RoleAdmin, id.Role)
		assert.NoError(t, id.CanWrite())
	})

	t.Run("impersonation is read-only as the target", func(t *testing.T) {
		imp := &Impersonation{TargetUserID: "ath", TargetRole: account.RoleAthlete, ExpiresAt: now.Add(ImpersonationTTL)}
		id := Resolve("adm", account.RoleAdmin, imp, nil, now)
		assert.Equal(t, "ath", id.UserID)
		assert.Equal(t, account.RoleAthlete, id.Role)
		assert.Equal(t, "adm", id.TrueUserID)
		assert.True(t, id.ReadOnly())
		assert.ErrorIs(t, id.CanWrite(), ErrReadOnly)
	})

	t.Run("simulation keeps the admin id under the synthetic role", func(t *testing.T) {
		sim := &Simulation{SessionID: "sim1", Role: account.RoleCoach, ExpiresAt: now.Add(SimulationTTL)}
		id := Resolve("adm", account.RoleAdmin, nil, sim, now)
		assert.Equal(t, "adm", id.UserID)
		assert.Equal(t, account.RoleCoach, id.Role)
		assert.Equal(t, "sim1", id.SimulationSessionID())
		assert.NoError(t, id.CanWrite())
	})

	t.Run("expired overlays are ignored", func(t *testing.T) {
		imp := &Impersonation{TargetUserID: "ath", TargetRole: account.RoleAthlete, ExpiresAt: now}
		sim := &Simulation{SessionID: "sim1", Role: account.RoleCoach, ExpiresAt: now.Add(-time.Second)}
		id := Resolve("adm", account.RoleAdmin, imp, sim, now)
		assert.False(t, id.IsImpersonating())
		assert.False(t, id.IsSimulating())
		assert.Equal(t, account.RoleAdmin, id.Role)
	})
}

func TestCanStartOverlay(t *testing.T) {
	assert.ErrorIs(t, Identity{}.CanStartOverlay(), ErrUnauthenticated)

	coach := Resolve("c1", account.RoleCoach, nil, nil, now)
	assert.ErrorIs(t, coach.CanStartOverlay(), ErrNotAdministrator)

	sim := &Simulation{SessionID: "sim1", Role: account.RoleAthlete, ExpiresAt: now.Add(time.Hour)}
	simulating := Resolve("adm", account.RoleAdmin, nil, sim, now)
	assert.ErrorIs(t, simulating.CanStartOverlay(), ErrConflictingOverlay)

	imp := &Impersonation{TargetUserID: "ath", TargetRole: account.RoleAthlete, ExpiresAt: now.Add(time.Hour)}
	impersonating := Resolve("adm", account.RoleMasterAdmin, imp, nil, now)
	assert.ErrorIs(t, impersonating.CanStartOverlay(), ErrConflictingOverlay)

	assert.NoError(t, Resolve("adm", account.RoleAdmin, nil, nil, now).CanStartOverlay())
}
