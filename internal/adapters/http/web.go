package web

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"studio/internal/adapters/http/middleware"
	"studio/internal/adapters/session"
	accountStore "studio/internal/adapters/storage/account"
	actionStore "studio/internal/adapters/storage/actionrequest"
	auditStore "studio/internal/adapters/storage/audit"
	bookingStore "studio/internal/adapters/storage/booking"
	catalogStore "studio/internal/adapters/storage/catalog"
	outboxStore "studio/internal/adapters/storage/outbox"
	"studio/internal/adapters/storage/records"
	simulationStore "studio/internal/adapters/storage/simulation"
	slotStore "studio/internal/adapters/storage/slot"
	"studio/internal/application/orchestrators"
	"studio/internal/application/payments"
)

// Stores holds all storage dependencies.
type Stores struct {
	Accounts    accountStore.Store
	Bookings    bookingStore.Store
	Catalog     catalogStore.Store
	Slots       slotStore.Store
	Outbox      outboxStore.Store
	Audit       auditStore.Store
	Requests    actionStore.Store
	Simulations simulationStore.Store
	Records     records.Store
}

// Config holds HTTP settings.
type Config struct {
	SecureCookies  bool
	CSRFKey        []byte
	TrustedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
	SlowRequest    time.Duration
	// MaxWebhookBytes caps processor payloads.
	MaxWebhookBytes int64
}

// Deps holds what the handlers call into.
type Deps struct {
	Stores   Stores
	Gateway  *payments.Gateway
	Verifier payments.WebhookVerifier
	Notifier orchestrators.Notifier
	Outbox   *orchestrators.OutboxProcessor
	Sessions session.Store
	Tokens   *middleware.OverlayTokens
	Logger   zerolog.Logger
	Now      func() time.Time
	// GenerateID defaults to uuid.NewString.
	GenerateID func() string
}

// Server serves the studio JSON API.
type Server struct {
	stores   Stores
	gateway  *payments.Gateway
	verifier payments.WebhookVerifier
	notifier orchestrators.Notifier
	outbox   *orchestrators.OutboxProcessor
	sessions session.Store
	tokens   *middleware.OverlayTokens
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time
	newID    func() string
	limiter  *middleware.RateLimiter
}

// NewServer wires handlers.
// PRE: every field of deps except Notifier is set
func NewServer(deps Deps, cfg Config) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.GenerateID == nil {
		deps.GenerateID = uuid.NewString
	}
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 10
	}
	if cfg.MaxWebhookBytes <= 0 {
		cfg.MaxWebhookBytes = 1 << 16
	}
	return &Server{
		stores:   deps.Stores,
		gateway:  deps.Gateway,
		verifier: deps.Verifier,
		notifier: deps.Notifier,
		outbox:   deps.Outbox,
		sessions: deps.Sessions,
		tokens:   deps.Tokens,
		cfg:      cfg,
		logger:   deps.Logger,
		now:      deps.Now,
		newID:    deps.GenerateID,
		limiter:  middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}
}

// Limiter exposes the rate limiter so the caller can run its sweeper.
func (s *Server) Limiter() *middleware.RateLimiter {
	return s.limiter
}

// Handler returns the API with its middleware stack applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	return middleware.Chain(mux,
		middleware.AccessLog(s.logger),
		middleware.SecurityHeaders,
		middleware.RateLimit(s.limiter),
		middleware.CSRF(s.cfg.CSRFKey, s.cfg.SecureCookies, s.cfg.TrustedOrigins),
		middleware.Auth(s.sessions),
		middleware.Identity(s.tokens),
		middleware.ReadOnlyGuard,
		middleware.Timing(s.cfg.SlowRequest),
	)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	authed := func(h http.HandlerFunc) http.Handler { return middleware.RequireAuth(h) }

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)
	mux.HandleFunc("POST /api/webhooks/stripe", s.handleStripeWebhook)

	mux.Handle("POST /api/account/password", authed(s.handleChangePassword))

	mux.Handle("POST /api/checkout/booking", authed(s.handleBookingCheckout))
	mux.Handle("POST /api/checkout/package", authed(s.handlePackageCheckout))
	mux.Handle("POST /api/checkout/membership", authed(s.handleMembershipCheckout))
	mux.Handle("GET /api/bookings/verify", authed(s.handleVerifyBooking))

	mux.Handle("GET /api/bookings", authed(s.handleListBookings))
	mux.Handle("POST /api/bookings/staff", authed(s.handleStaffBooking))
	mux.Handle("PATCH /api/bookings/{id}/status", authed(s.handleBookingStatus))
	mux.Handle("DELETE /api/bookings/{id}", authed(s.handleDeleteBooking))

	mux.Handle("POST /api/action-requests", authed(s.handleSubmitActionRequest))
	mux.Handle("GET /api/action-requests", authed(s.handleListActionRequests))
	mux.Handle("PATCH /api/action-requests/{id}", authed(s.handleReviewActionRequest))

	mux.Handle("POST /api/impersonation", authed(s.handleStartImpersonation))
	mux.Handle("DELETE /api/impersonation", authed(s.handleEndImpersonation))
	mux.Handle("POST /api/simulation", authed(s.handleStartSimulation))
	mux.Handle("DELETE /api/simulation", authed(s.handleEndSimulation))

	mux.Handle("GET /api/admin/payment-mode", authed(s.handleGetPaymentMode))
	mux.Handle("PUT /api/admin/payment-mode", authed(s.handleSetPaymentMode))
	mux.Handle("GET /api/admin/outbox", authed(s.handleAdminOutbox))
	mux.Handle("POST /api/admin/outbox/{id}/{action}", authed(s.handleAdminOutboxAction))
	mux.Handle("GET /api/admin/audit", authed(s.handleAdminAudit))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
