package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/hlog"

	"studio/internal/domain/identity"
)

// Overlay cookies. The banner cookie is display-only and never read back.
const (
	ImpersonationCookieName = "studio_impersonation"
	SimulationCookieName    = "studio_simulation"
	BannerCookieName        = "studio_overlay_banner"
)

const (
	kindImpersonation = "impersonation"
	kindSimulation    = "simulation"
)

var errWrongOverlayKind = errors.New("overlay token kind mismatch")

type overlayClaims struct {
	Kind         string `json:"kind"`
	TargetUserID string `json:"target_user_id,omitempty"`
	TargetName   string `json:"target_name,omitempty"`
	TargetRole   string `json:"target_role,omitempty"`
	SessionID    string `json:"sid,omitempty"`
	Role         string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// OverlayTokens signs and verifies overlay cookies. A token is bound to the
// true user id in its subject, so it is useless under another login.
type OverlayTokens struct {
	key []byte
	now func() time.Time
}

// NewOverlayTokens creates a signer.
// PRE: len(key) >= 32
func NewOverlayTokens(key []byte, now func() time.Time) *OverlayTokens {
	if now == nil {
		now = time.Now
	}
	return &OverlayTokens{key: key, now: now}
}

// IssueImpersonation signs an impersonation overlay for trueUserID.
func (o *OverlayTokens) IssueImpersonation(trueUserID string, imp identity.Impersonation) (string, error) {
	return o.sign(overlayClaims{
		Kind:         kindImpersonation,
		TargetUserID: imp.TargetUserID,
		TargetName:   imp.TargetName,
		TargetRole:   imp.TargetRole,
	}, trueUserID, imp.ExpiresAt)
}

// IssueSimulation signs a simulation overlay for trueUserID.
func (o *OverlayTokens) IssueSimulation(trueUserID string, sim identity.Simulation) (string, error) {
	return o.sign(overlayClaims{
		Kind:      kindSimulation,
		SessionID: sim.SessionID,
		Role:      sim.Role,
	}, trueUserID, sim.ExpiresAt)
}

func (o *OverlayTokens) sign(c overlayClaims, subject string, expiresAt time.Time) (string, error) {
	c.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(o.now()),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(o.key)
}

// ParseImpersonation verifies an impersonation token for trueUserID.
func (o *OverlayTokens) ParseImpersonation(token, trueUserID string) (*identity.Impersonation, error) {
	c, err := o.parse(token, trueUserID, kindImpersonation)
	if err != nil {
		return nil, err
	}
	return &identity.Impersonation{
		TargetUserID: c.TargetUserID,
		TargetName:   c.TargetName,
		TargetRole:   c.TargetRole,
		ExpiresAt:    c.ExpiresAt.Time,
	}, nil
}

// ParseSimulation verifies a simulation token for trueUserID.
func (o *OverlayTokens) ParseSimulation(token, trueUserID string) (*identity.Simulation, error) {
	c, err := o.parse(token, trueUserID, kindSimulation)
	if err != nil {
		return nil, err
	}
	return &identity.Simulation{SessionID: c.SessionID, Role: c.Role, ExpiresAt: c.ExpiresAt.Time}, nil
}

func (o *OverlayTokens) parse(token, trueUserID, kind string) (*overlayClaims, error) {
	var c overlayClaims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) { return o.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(trueUserID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(o.now),
	)
	if err != nil {
		return nil, err
	}
	if c.Kind != kind {
		return nil, errWrongOverlayKind
	}
	return &c, nil
}

// Identity returns middleware that resolves the effective identity from the
// login session and any overlay cookies. Invalid or expired overlay tokens
// are ignored.
func Identity(tokens *OverlayTokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := GetSessionFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			var imp *identity.Impersonation
			var sim *identity.Simulation
			if c, err := r.Cookie(ImpersonationCookieName); err == nil && c.Value != "" {
				if imp, err = tokens.ParseImpersonation(c.Value, sess.AccountID); err != nil {
					hlog.FromRequest(r).Debug().Err(err).Msg("impersonation_token_ignored")
				}
			}
			if c, err := r.Cookie(SimulationCookieName); err == nil && c.Value != "" {
				if sim, err = tokens.ParseSimulation(c.Value, sess.AccountID); err != nil {
					hlog.FromRequest(r).Debug().Err(err).Msg("simulation_token_ignored")
				}
			}
			id := identity.Resolve(sess.AccountID, sess.Role, imp, sim, tokens.now())
			id.Email = sess.Email
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
		})
	}
}

// IdentityFromContext returns the effective identity; the zero value is an
// unauthenticated caller.
func IdentityFromContext(ctx context.Context) identity.Identity {
	id, _ := ctx.Value(identityContextKey).(identity.Identity)
	return id
}

// ContextWithIdentity returns a context with the given identity set.
func ContextWithIdentity(ctx context.Context, id identity.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// ReadOnlyGuard rejects mutating requests while impersonating. Ending the
// impersonation and logging out stay allowed.
func ReadOnlyGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IdentityFromContext(r.Context()).ReadOnly() && isMutating(r.Method) && !readOnlyExempt(r) {
			hlog.FromRequest(r).Info().Str("method", r.Method).Str("path", r.URL.Path).Msg("read_only_write_blocked")
			WriteError(w, http.StatusForbidden, "forbidden", identity.ErrReadOnly.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isMutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

func readOnlyExempt(r *http.Request) bool {
	switch {
	case r.Method == http.MethodDelete && r.URL.Path == "/api/impersonation":
		return true
	case r.Method == http.MethodPost && r.URL.Path == "/api/logout":
		return true
	}
	return false
}

// SetOverlayCookie stores a signed overlay token.
func SetOverlayCookie(w http.ResponseWriter, name, token string, expiresAt time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    token,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
		Expires:  expiresAt,
	})
}

// SetBannerCookie stores the banner text the front end shows during an overlay.
func SetBannerCookie(w http.ResponseWriter, text string, expiresAt time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     BannerCookieName,
		Value:    url.QueryEscape(text),
		HttpOnly: false,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
		Expires:  expiresAt,
	})
}

// ClearOverlayCookies removes both overlay tokens and the banner.
func ClearOverlayCookies(w http.ResponseWriter, secure bool) {
	clearCookie(w, ImpersonationCookieName, true, secure)
	clearCookie(w, SimulationCookieName, true, secure)
	clearCookie(w, BannerCookieName, false, secure)
}
