package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/domain/account"
	"studio/internal/domain/apperr"
	"studio/internal/domain/booking"
	"studio/internal/domain/catalog"
	"studio/internal/metrics"
)

// SettingKeyMode is the setting row that stores the operator-selected mode.
const SettingKeyMode = "payment_mode"

// ModeStore persists the operator's mode selection.
type ModeStore interface {
	Get(ctx context.Context, key, def string) (string, error)
	Set(ctx context.Context, key, value string, now time.Time) error
}

// CustomerStore records processor customer ids against accounts.
type CustomerStore interface {
	SetStripeCustomerID(ctx context.Context, id, customerID string) error
}

// Config holds gateway settings.
type Config struct {
	SuccessURL string
	CancelURL  string
	Currency   string
	Timeout    time.Duration
}

// Gateway creates and inspects checkout sessions.
type Gateway struct {
	processor Processor
	modes     ModeStore
	cfg       Config
	logger    zerolog.Logger
	now       func() time.Time
}

// NewGateway builds a gateway.
// PRE: processor and modes are non-nil
// POST: Timeout defaults to 10s and Currency to nzd
func NewGateway(processor Processor, modes ModeStore, cfg Config, logger zerolog.Logger) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = "nzd"
	}
	return &Gateway{processor: processor, modes: modes, cfg: cfg, logger: logger, now: time.Now}
}

// Mode returns the mode new sessions are created in.
func (g *Gateway) Mode(ctx context.Context) (Mode, error) {
	v, err := g.modes.Get(ctx, SettingKeyMode, string(ModeLive))
	if err != nil {
		return "", fmt.Errorf("read payment mode: %w", err)
	}
	if Mode(v) == ModeTest {
		return ModeTest, nil
	}
	return ModeLive, nil
}

// SetMode switches new-session creation between accounts. Test mode is only
// enabled after the test account answers a credentials check.
// PRE: mode is live or test
// POST: mode persisted, or ErrNotConfigured / external_service error and nothing changed
func (g *Gateway) SetMode(ctx context.Context, mode Mode) error {
	if mode != ModeLive && mode != ModeTest {
		return ErrInvalidMode
	}
	if mode == ModeTest {
		pctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
		if err := g.processor.Ping(pctx, ModeTest); err != nil {
			if errors.Is(err, ErrNotConfigured) {
				return err
			}
			return apperr.Wrap(apperr.KindExternalService, "test payment account rejected its credentials", err)
		}
	}
	if err := g.modes.Set(ctx, SettingKeyMode, string(mode), g.now()); err != nil {
		return fmt.Errorf("store payment mode: %w", err)
	}
	g.logger.Info().Str("mode", string(mode)).Msg("payment_mode_changed")
	return nil
}

// BookingCheckout is the input to CreateBookingCheckout.
type BookingCheckout struct {
	Service      catalog.Service
	Athlete      account.Account
	Draft        booking.Draft
	SimulationID string
}

// CreateBookingCheckout creates a one-off payment session whose metadata
// carries everything reconciliation needs to materialize the booking.
// PRE: draft validated; slot capacity checked by the caller
// POST: Returns the session with a redirect URL, or an external_service error
func (g *Gateway) CreateBookingCheckout(ctx context.Context, in BookingCheckout) (Session, error) {
	raw, err := in.Draft.Encode()
	if err != nil {
		return Session{}, fmt.Errorf("encode booking draft: %w", err)
	}
	md := map[string]string{
		MetaPurchaseType: PurchaseBooking,
		MetaAthleteID:    in.Athlete.ID,
		MetaServiceID:    in.Service.ID,
		MetaBookingDraft: raw,
	}
	if in.SimulationID != "" {
		md[MetaSimulationID] = in.SimulationID
	}
	return g.create(ctx, CheckoutRequest{
		Name:          in.Service.Name,
		AmountCents:   in.Service.PriceCents,
		CustomerEmail: in.Athlete.Email,
		Metadata:      md,
	})
}

// PackageCheckout is the input to CreatePackageCheckout.
type PackageCheckout struct {
	Package      catalog.Package
	Athlete      account.Account
	Installments int
	SimulationID string
}

// CreatePackageCheckout sells a package outright, or as a monthly
// installment subscription of ceil(price/n) when Installments is 2 to 4.
// PRE: Installments is 0, 1, or between 2 and 4
func (g *Gateway) CreatePackageCheckout(ctx context.Context, in PackageCheckout) (Session, error) {
	md := map[string]string{
		MetaPurchaseType:     PurchasePackage,
		MetaAthleteID:        in.Athlete.ID,
		MetaPackageID:        in.Package.ID,
		MetaSessionsIncluded: strconv.Itoa(in.Package.SessionsIncluded),
	}
	if in.SimulationID != "" {
		md[MetaSimulationID] = in.SimulationID
	}
	req := CheckoutRequest{
		Name:          in.Package.Name,
		AmountCents:   in.Package.PriceCents,
		CustomerEmail: in.Athlete.Email,
		Metadata:      md,
	}
	if in.Installments > 1 {
		amount, err := in.Package.InstallmentAmount(in.Installments)
		if err != nil {
			return Session{}, err
		}
		req.AmountCents = amount
		req.Recurring = true
		req.Name = fmt.Sprintf("%s (%d installments)", in.Package.Name, in.Installments)
		md[MetaInstallmentsTotal] = strconv.Itoa(in.Installments)
	} else if in.Installments < 0 {
		return Session{}, catalog.ErrInvalidInstallments
	}
	return g.create(ctx, req)
}

// CreateMembershipCheckout creates a monthly subscription for tier. In live
// mode the athlete's processor customer is reused, or created and stored;
// test-mode customers are never stored against the account.
func (g *Gateway) CreateMembershipCheckout(ctx context.Context, tier catalog.MembershipTier, athlete account.Account, customers CustomerStore) (Session, error) {
	mode, err := g.Mode(ctx)
	if err != nil {
		return Session{}, err
	}
	req := CheckoutRequest{
		Name:        tier.Name,
		AmountCents: tier.MonthlyPriceCents,
		Recurring:   true,
		Metadata: map[string]string{
			MetaPurchaseType: PurchaseMembership,
			MetaAthleteID:    athlete.ID,
			MetaTierID:       tier.ID,
		},
	}
	switch {
	case mode == ModeTest:
		req.CustomerEmail = athlete.Email
	case athlete.StripeCustomerID != "":
		req.CustomerID = athlete.StripeCustomerID
	default:
		cctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		customerID, err := g.processor.CreateCustomer(cctx, mode, athlete.Email, athlete.DisplayName())
		cancel()
		if err != nil {
			return Session{}, external("create payment customer", err)
		}
		if err := customers.SetStripeCustomerID(ctx, athlete.ID, customerID); err != nil {
			return Session{}, fmt.Errorf("store customer id: %w", err)
		}
		req.CustomerID = customerID
	}
	return g.create(ctx, req)
}

func (g *Gateway) create(ctx context.Context, req CheckoutRequest) (Session, error) {
	mode, err := g.Mode(ctx)
	if err != nil {
		return Session{}, err
	}
	req.Currency = g.cfg.Currency
	req.SuccessURL = g.cfg.SuccessURL
	req.CancelURL = g.cfg.CancelURL

	cctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	sess, err := g.processor.CreateCheckout(cctx, mode, req)
	if err != nil {
		return Session{}, external("create checkout session", err)
	}
	g.logger.Info().
		Str("session_id", sess.ID).
		Str("mode", string(mode)).
		Str("purchase_type", req.Metadata[MetaPurchaseType]).
		Int64("amount_cents", req.AmountCents).
		Msg("checkout_session_created")
	return sess, nil
}

// RetrieveSession loads a session from the account its id belongs to,
// regardless of the current mode setting.
// POST: Returns the session, or an external_service error
func (g *Gateway) RetrieveSession(ctx context.Context, sessionID string) (Session, error) {
	cctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	sess, err := g.processor.GetSession(cctx, ModeForSession(sessionID), sessionID)
	if err != nil {
		return Session{}, external("retrieve checkout session", err)
	}
	return sess, nil
}

// IssueRefund refunds a payment on the account the session belongs to.
// Failures are logged and counted here; the returned error only tells the
// caller whether to record the payment for manual reconciliation and must
// never fail the caller's operation. An already-refunded payment is success.
func (g *Gateway) IssueRefund(ctx context.Context, sessionID, paymentIntentID, reason string) (string, error) {
	if paymentIntentID == "" {
		metrics.IncRefund("skipped")
		return "", ErrNoPaymentIntent
	}
	mode := ModeForSession(sessionID)
	if sessionID == "" {
		var err error
		if mode, err = g.Mode(ctx); err != nil {
			mode = ModeLive
		}
	}

	cctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	refundID, err := g.processor.Refund(cctx, mode, paymentIntentID, reason)
	switch {
	case err == nil:
		metrics.IncRefund("ok")
		g.logger.Info().Str("payment_intent_id", paymentIntentID).Str("refund_id", refundID).
			Str("reason", reason).Msg("refund_issued")
		return refundID, nil
	case errors.Is(err, ErrAlreadyRefunded):
		metrics.IncRefund("already_refunded")
		g.logger.Info().Str("payment_intent_id", paymentIntentID).Msg("refund_already_issued")
		return "", nil
	default:
		metrics.IncRefund("failed")
		g.logger.Warn().Err(err).Str("payment_intent_id", paymentIntentID).Str("session_id", sessionID).
			Str("reason", reason).Msg("refund_failed")
		return "", external("issue refund", err)
	}
}

func external(op string, err error) error {
	if apperr.KindOf(err) == apperr.KindExternalService {
		return err
	}
	return apperr.Wrap(apperr.KindExternalService, op+" failed", err)
}
