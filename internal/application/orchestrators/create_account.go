package orchestrators

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/domain/account"
	"studio/internal/domain/apperr"
)

// AccountStoreForCreate defines the store interface needed by CreateAccount.
type AccountStoreForCreate interface {
	GetByEmail(ctx context.Context, email string) (account.Account, error)
	Save(ctx context.Context, a account.Account) error
}

// CreateAccountInput carries input for the orchestrator.
type CreateAccountInput struct {
	Email    string
	Name     string
	Password string
	Role     string
}

// CreateAccountDeps holds dependencies for CreateAccount.
type CreateAccountDeps struct {
	AccountStore AccountStoreForCreate
	Logger       zerolog.Logger
	GenerateID   func() string
	Now          func() time.Time
}

var ErrEmailAlreadyExists = apperr.New(apperr.KindConflict, "an account with this email already exists")

// ExecuteCreateAccount coordinates account creation.
// PRE: Valid email, password >= 12 chars, valid role
// POST: Account created with hashed password
// INVARIANT: Email must be unique
func ExecuteCreateAccount(ctx context.Context, input CreateAccountInput, deps CreateAccountDeps) (string, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	_, err := deps.AccountStore.GetByEmail(ctx, email)
	if err == nil {
		return "", ErrEmailAlreadyExists
	}
	if !errors.Is(err, account.ErrNotFound) {
		return "", err
	}

	acct := account.Account{
		ID:        deps.GenerateID(),
		Email:     email,
		Name:      strings.TrimSpace(input.Name),
		Role:      input.Role,
		CreatedAt: deps.Now(),
	}
	if err := acct.Validate(); err != nil {
		return "", err
	}
	if err := acct.SetPassword(input.Password); err != nil {
		return "", err
	}
	if err := deps.AccountStore.Save(ctx, acct); err != nil {
		return "", err
	}

	deps.Logger.Info().Str("event", "account_created").Str("email", email).Str("role", acct.Role).Msg("auth_event")
	return acct.ID, nil
}

// ExecuteSeedAdmin creates the bootstrap master admin when email is unused.
// POST: No-op when email is empty or the account exists
func ExecuteSeedAdmin(ctx context.Context, deps CreateAccountDeps, email, password string) error {
	if email == "" {
		return nil
	}
	_, err := ExecuteCreateAccount(ctx, CreateAccountInput{
		Email:    email,
		Name:     "Studio admin",
		Password: password,
		Role:     account.RoleMasterAdmin,
	}, deps)
	if errors.Is(err, ErrEmailAlreadyExists) {
		return nil
	}
	if err != nil {
		return err
	}
	deps.Logger.Info().Str("event", "admin_seeded").Str("email", email).Msg("auth_event")
	return nil
}
