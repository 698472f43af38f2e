package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// DefaultTTL is how long a login session stays valid.
const DefaultTTL = 24 * time.Hour

// ErrNotFound is returned when a token is unknown or has expired.
var ErrNotFound = errors.New("session not found")

// Session represents an authenticated login. Overlays (impersonation and
// simulation) are carried by separate signed cookies, never in here.
type Session struct {
	AccountID string    `json:"account_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists login sessions keyed by an opaque token.
type Store interface {
	Create(ctx context.Context, s Session) (string, error)
	Get(ctx context.Context, token string) (Session, error)
	Delete(ctx context.Context, token string) error
}

func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
