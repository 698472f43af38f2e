package orchestrators

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/application/payments"
	"studio/internal/domain/account"
	"studio/internal/domain/apperr"
	"studio/internal/domain/audit"
	"studio/internal/domain/identity"
)

// ErrMasterAdminOnly guards studio-wide payment settings.
var ErrMasterAdminOnly = apperr.New(apperr.KindForbidden, "only the master admin can change payment settings")

// ModeSwitcher reads and changes the payment mode.
type ModeSwitcher interface {
	Mode(ctx context.Context) (payments.Mode, error)
	SetMode(ctx context.Context, mode payments.Mode) error
}

// PaymentModeDeps holds dependencies for the payment mode use cases.
type PaymentModeDeps struct {
	Gateway ModeSwitcher
	Audit   AuditRecorder
	Logger  zerolog.Logger
	Now     func() time.Time
}

// ExecuteGetPaymentMode reports the mode new checkouts use.
func ExecuteGetPaymentMode(ctx context.Context, caller identity.Identity, deps PaymentModeDeps) (payments.Mode, error) {
	if !caller.Authenticated() {
		return "", identity.ErrUnauthenticated
	}
	if !caller.IsStaff() {
		return "", ErrStaffOnly
	}
	return deps.Gateway.Mode(ctx)
}

// ExecuteSetPaymentMode switches between the live and test accounts.
// PRE: caller is the master admin
// POST: Mode stored; switching to test first proves the test credentials work
func ExecuteSetPaymentMode(ctx context.Context, caller identity.Identity, mode payments.Mode, deps PaymentModeDeps) error {
	if err := caller.CanWrite(); err != nil {
		return err
	}
	if !caller.HasRole(account.RoleMasterAdmin) {
		return ErrMasterAdminOnly
	}
	if err := deps.Gateway.SetMode(ctx, mode); err != nil {
		deps.Logger.Warn().Err(err).Str("mode", string(mode)).Str("actor_id", caller.TrueUserID).Msg("payment_mode_change_rejected")
		return err
	}
	recordAudit(ctx, deps.Audit, deps.Logger, audit.NewEvent(caller.TrueUserID, caller.Role, audit.CategoryBilling, audit.ActionUpdate, deps.Now()).
		WithResource("setting", payments.SettingKeyMode).WithDescription(string(mode)).WithSeverity(audit.SeverityWarning))
	return nil
}
