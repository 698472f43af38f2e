package orchestrators

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio/internal/application/payments"
	"studio/internal/domain/account"
	"studio/internal/domain/apperr"
)

func TestSetPaymentMode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	deps := PaymentModeDeps{Gateway: h.Gateway, Audit: h.Audit, Logger: zerolog.Nop(), Now: func() time.Time { return testNow }}
	master := callerAs("M1", account.RoleMasterAdmin)

	mode, err := ExecuteGetPaymentMode(ctx, master, deps)
	require.NoError(t, err)
	assert.Equal(t, payments.ModeLive, mode)

	assert.ErrorIs(t, ExecuteSetPaymentMode(ctx, callerAs("AD1", account.RoleAdmin), payments.ModeTest, deps), ErrMasterAdminOnly)

	h.Processor.PingErr[payments.ModeTest] = errors.New("invalid api key")
	err = ExecuteSetPaymentMode(ctx, master, payments.ModeTest, deps)
	require.Error(t, err)
	assert.Equal(t, apperr.KindExternalService, apperr.KindOf(err))
	mode, err = ExecuteGetPaymentMode(ctx, master, deps)
	require.NoError(t, err)
	assert.Equal(t, payments.ModeLive, mode, "a failed credentials check changes nothing")

	delete(h.Processor.PingErr, payments.ModeTest)
	require.NoError(t, ExecuteSetPaymentMode(ctx, master, payments.ModeTest, deps))
	mode, err = ExecuteGetPaymentMode(ctx, master, deps)
	require.NoError(t, err)
	assert.Equal(t, payments.ModeTest, mode)

	_, err = ExecuteGetPaymentMode(ctx, athleteCaller("A1"), deps)
	assert.ErrorIs(t, err, ErrStaffOnly)
}
