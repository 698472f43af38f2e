package orchestrators

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/domain/account"
	"studio/internal/domain/apperr"
	"studio/internal/domain/audit"
)

// AccountStoreForLogin defines the store interface needed by Login.
type AccountStoreForLogin interface {
	GetByEmail(ctx context.Context, email string) (account.Account, error)
	RecordLoginResult(ctx context.Context, id string, failedLogins int, lockedUntil time.Time) error
}

// LoginInput carries input for the login orchestrator.
type LoginInput struct {
	Email    string
	Password string
}

// LoginResult carries the result of a successful login.
type LoginResult struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
}

// LoginDeps holds dependencies for Login.
type LoginDeps struct {
	AccountStore AccountStoreForLogin
	Audit        AuditRecorder
	Logger       zerolog.Logger
	Now          func() time.Time
}

var (
	ErrInvalidCredentials = apperr.New(apperr.KindForbidden, "invalid email or password")
	ErrAccountLocked      = apperr.New(apperr.KindForbidden, "account is locked due to too many failed attempts")
)

// ExecuteLogin validates credentials and returns account info for session creation.
// PRE: Valid email and password provided
// POST: Returns account info on success, records failed login on failure
// INVARIANT: Account must not be locked
func ExecuteLogin(ctx context.Context, input LoginInput, deps LoginDeps) (LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || input.Password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}

	acct, err := deps.AccountStore.GetByEmail(ctx, email)
	if err != nil {
		deps.Logger.Info().Str("event", "login_failed").Str("email", email).Str("reason", "not_found").Msg("auth_event")
		return LoginResult{}, ErrInvalidCredentials
	}

	now := deps.Now()
	if acct.IsLocked(now) {
		deps.Logger.Info().Str("event", "login_blocked").Str("email", email).Str("reason", "locked").Msg("auth_event")
		return LoginResult{}, ErrAccountLocked
	}

	if err := acct.CheckPassword(input.Password); err != nil {
		acct.RecordFailedLogin(now)
		if err := deps.AccountStore.RecordLoginResult(ctx, acct.ID, acct.FailedLogins, acct.LockedUntil); err != nil {
			deps.Logger.Warn().Err(err).Str("account_id", acct.ID).Msg("login_counter_write_failed")
		}
		deps.Logger.Info().Str("event", "login_failed").Str("email", email).Str("reason", "wrong_password").
			Int("failed_logins", acct.FailedLogins).Msg("auth_event")
		if acct.IsLocked(now) {
			recordAudit(ctx, deps.Audit, deps.Logger, audit.NewEvent(acct.ID, acct.Role, audit.CategorySecurity, audit.ActionLogin, now).
				WithResource("account", acct.ID).WithDescription("account locked").WithSeverity(audit.SeverityWarning))
		}
		return LoginResult{}, ErrInvalidCredentials
	}

	if acct.FailedLogins > 0 || !acct.LockedUntil.IsZero() {
		acct.ResetFailedLogins()
		if err := deps.AccountStore.RecordLoginResult(ctx, acct.ID, 0, time.Time{}); err != nil {
			deps.Logger.Warn().Err(err).Str("account_id", acct.ID).Msg("login_counter_write_failed")
		}
	}

	deps.Logger.Info().Str("event", "login_success").Str("email", email).Str("role", acct.Role).Msg("auth_event")
	recordAudit(ctx, deps.Audit, deps.Logger, audit.NewEvent(acct.ID, acct.Role, audit.CategorySecurity, audit.ActionLogin, now).
		WithResource("account", acct.ID))

	return LoginResult{
		AccountID: acct.ID,
		Email:     acct.Email,
		Name:      acct.DisplayName(),
		Role:      acct.Role,
	}, nil
}
