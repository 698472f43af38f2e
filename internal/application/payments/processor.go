// Package payments is the studio's payment session gateway. It creates and
// inspects checkout sessions through a Processor and never decides a
// booking outcome itself.
package payments

import (
	"context"
	"strings"

	"studio/internal/domain/apperr"
)

// Mode selects the live or the test processor account.
type Mode string

const (
	ModeLive Mode = "live"
	ModeTest Mode = "test"
)

// TestSessionPrefix marks checkout session ids created on the test account.
const TestSessionPrefix = "cs_test_"

// ModeForSession picks the account a session lives on from its id alone.
func ModeForSession(sessionID string) Mode {
	if strings.HasPrefix(sessionID, TestSessionPrefix) {
		return ModeTest
	}
	return ModeLive
}

// Payment statuses reported by the processor.
const (
	StatusPaid   = "paid"
	StatusUnpaid = "unpaid"
)

// Metadata keys carried on every checkout session.
const (
	MetaPurchaseType      = "purchase_type"
	MetaAthleteID         = "athlete_id"
	MetaServiceID         = "service_id"
	MetaBookingDraft      = "booking_draft"
	MetaPackageID         = "package_id"
	MetaTierID            = "tier_id"
	MetaInstallmentsTotal = "installments_total"
	MetaSessionsIncluded  = "sessions_included"
	MetaSimulationID      = "simulation_session_id"
)

// Purchase types.
const (
	PurchaseBooking    = "booking"
	PurchasePackage    = "package"
	PurchaseMembership = "membership"
)

// Errors
var (
	ErrNotConfigured    = apperr.New(apperr.KindExternalService, "payment account is not configured")
	ErrAlreadyRefunded  = apperr.New(apperr.KindConflict, "payment has already been refunded")
	ErrInvalidSignature = apperr.New(apperr.KindExternalService, "webhook signature verification failed")
	ErrInvalidMode      = apperr.New(apperr.KindValidation, "payment mode must be live or test")
	ErrNoPaymentIntent  = apperr.New(apperr.KindValidation, "payment intent id is required for a refund")
)

// CheckoutRequest describes a session to create.
type CheckoutRequest struct {
	Name          string
	AmountCents   int64
	Currency      string
	Recurring     bool // monthly subscription when true
	CustomerID    string
	CustomerEmail string
	Metadata      map[string]string
	SuccessURL    string
	CancelURL     string
}

// Session is the processor's view of a checkout session.
type Session struct {
	ID              string
	URL             string
	PaymentStatus   string
	PaymentIntentID string
	SubscriptionID  string
	AmountTotal     int64
	CustomerID      string
	Metadata        map[string]string
}

// IsPaid reports whether the session's payment completed.
func (s Session) IsPaid() bool {
	return s.PaymentStatus == StatusPaid
}

// Event is a verified webhook delivery.
type Event struct {
	ID      string
	Type    string
	Mode    Mode
	Session *Session // set for checkout.session.* events
}

// EventCheckoutCompleted is the only event type that triggers reconciliation.
const EventCheckoutCompleted = "checkout.session.completed"

// Processor is the external payment API, addressed per account.
type Processor interface {
	CreateCheckout(ctx context.Context, mode Mode, req CheckoutRequest) (Session, error)
	GetSession(ctx context.Context, mode Mode, id string) (Session, error)
	// Refund returns the refund id, or ErrAlreadyRefunded.
	Refund(ctx context.Context, mode Mode, paymentIntentID, reason string) (string, error)
	CreateCustomer(ctx context.Context, mode Mode, email, name string) (string, error)
	// Ping checks the account's credentials; ErrNotConfigured when none are set.
	Ping(ctx context.Context, mode Mode) error
}

// WebhookVerifier authenticates webhook payloads.
type WebhookVerifier interface {
	VerifyWebhook(payload []byte, signature string) (Event, error)
}
