package orchestrators

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditStore "studio/internal/adapters/storage/audit"
	"studio/internal/domain/account"
)

func TestChangePassword(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := account.Account{ID: "A1", Email: "ana@studio.test", Role: account.RoleAthlete, CreatedAt: testNow}
	require.NoError(t, a.SetPassword("original password"))
	require.NoError(t, h.Accounts.Save(ctx, a))
	deps := ChangePasswordDeps{AccountStore: h.Accounts, Audit: h.Audit, Logger: zerolog.Nop(), Now: func() time.Time { return testNow }}

	err := ExecuteChangePassword(ctx, ChangePasswordInput{AccountID: "A1", CurrentPassword: "wrong password!", NewPassword: "brand new password"}, deps)
	assert.ErrorIs(t, err, ErrCurrentPasswordWrong)

	err = ExecuteChangePassword(ctx, ChangePasswordInput{AccountID: "A1", CurrentPassword: "original password", NewPassword: "original password"}, deps)
	assert.ErrorIs(t, err, ErrNewPasswordSame)

	err = ExecuteChangePassword(ctx, ChangePasswordInput{AccountID: "A1", CurrentPassword: "original password", NewPassword: "short"}, deps)
	assert.ErrorIs(t, err, account.ErrPasswordTooShort)

	require.NoError(t, ExecuteChangePassword(ctx, ChangePasswordInput{AccountID: "A1", CurrentPassword: "original password", NewPassword: "brand new password"}, deps))

	stored, err := h.Accounts.GetByID(ctx, "A1")
	require.NoError(t, err)
	assert.NoError(t, stored.CheckPassword("brand new password"))
	assert.Error(t, stored.CheckPassword("original password"))

	events, err := h.Audit.List(ctx, auditStore.Filter{ActorID: "A1"}, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "password changed", events[0].Description)
}
