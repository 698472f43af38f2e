package orchestrators

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio/internal/domain/account"
)

func createAccountDeps(h *harness) CreateAccountDeps {
	n := 0
	return CreateAccountDeps{
		AccountStore: h.Accounts,
		Logger:       zerolog.Nop(),
		GenerateID: func() string {
			n++
			return "ACC" + string(rune('0'+n))
		},
		Now: func() time.Time { return testNow },
	}
}

func TestCreateAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	deps := createAccountDeps(h)

	id, err := ExecuteCreateAccount(ctx, CreateAccountInput{Email: " Coach@Studio.test", Name: "Cam", Password: "long enough password", Role: account.RoleCoach}, deps)
	require.NoError(t, err)

	stored, err := h.Accounts.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "coach@studio.test", stored.Email)
	assert.NoError(t, stored.CheckPassword("long enough password"))

	_, err = ExecuteCreateAccount(ctx, CreateAccountInput{Email: "coach@studio.test", Password: "long enough password", Role: account.RoleCoach}, deps)
	assert.ErrorIs(t, err, ErrEmailAlreadyExists)

	_, err = ExecuteCreateAccount(ctx, CreateAccountInput{Email: "short@studio.test", Password: "short", Role: account.RoleCoach}, deps)
	assert.ErrorIs(t, err, account.ErrPasswordTooShort)

	_, err = ExecuteCreateAccount(ctx, CreateAccountInput{Email: "who@studio.test", Password: "long enough password", Role: "owner"}, deps)
	assert.ErrorIs(t, err, account.ErrInvalidRole)
}

func TestSeedAdminIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	deps := createAccountDeps(h)

	require.NoError(t, ExecuteSeedAdmin(ctx, deps, "owner@studio.test", "bootstrap password"))
	require.NoError(t, ExecuteSeedAdmin(ctx, deps, "owner@studio.test", "another password!"))
	require.NoError(t, ExecuteSeedAdmin(ctx, deps, "", ""))

	admin, err := h.Accounts.GetByEmail(ctx, "owner@studio.test")
	require.NoError(t, err)
	assert.Equal(t, account.RoleMasterAdmin, admin.Role)
	assert.NoError(t, admin.CheckPassword("bootstrap password"))
}
