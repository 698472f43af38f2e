package orchestrators

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/domain/account"
	"studio/internal/domain/apperr"
	"studio/internal/domain/audit"
)

// ChangePasswordInput carries input for the change-password orchestrator.
type ChangePasswordInput struct {
	AccountID       string
	CurrentPassword string
	NewPassword     string
}

// AccountStoreForChangePassword defines the store interface needed by ChangePassword.
type AccountStoreForChangePassword interface {
	GetByID(ctx context.Context, id string) (account.Account, error)
	Save(ctx context.Context, a account.Account) error
}

// ChangePasswordDeps holds dependencies for ChangePassword.
type ChangePasswordDeps struct {
	AccountStore AccountStoreForChangePassword
	Audit        AuditRecorder
	Logger       zerolog.Logger
	Now          func() time.Time
}

var (
	ErrCurrentPasswordWrong = apperr.New(apperr.KindForbidden, "current password is incorrect")
	ErrNewPasswordSame      = apperr.New(apperr.KindValidation, "new password must be different from current password")
)

// ExecuteChangePassword validates the current password and updates to the new one.
// PRE: AccountID is the caller's true account
// POST: Password is updated and audited
func ExecuteChangePassword(ctx context.Context, input ChangePasswordInput, deps ChangePasswordDeps) error {
	if input.CurrentPassword == "" || input.NewPassword == "" {
		return account.ErrEmptyPassword
	}

	acct, err := deps.AccountStore.GetByID(ctx, input.AccountID)
	if err != nil {
		return err
	}
	if err := acct.CheckPassword(input.CurrentPassword); err != nil {
		return ErrCurrentPasswordWrong
	}
	if input.CurrentPassword == input.NewPassword {
		return ErrNewPasswordSame
	}
	if err := acct.SetPassword(input.NewPassword); err != nil {
		return err
	}
	if err := deps.AccountStore.Save(ctx, acct); err != nil {
		return err
	}

	deps.Logger.Info().Str("event", "password_changed").Str("account_id", acct.ID).Msg("auth_event")
	recordAudit(ctx, deps.Audit, deps.Logger, audit.NewEvent(acct.ID, acct.Role, audit.CategorySecurity, audit.ActionUpdate, deps.Now()).
		WithResource("account", acct.ID).WithDescription("password changed"))
	return nil
}
