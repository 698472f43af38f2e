package orchestrators

import (
	"context"

	"github.com/rs/zerolog"

	"studio/internal/application/payments"
)

// WebhookInput is one raw delivery from the processor.
type WebhookInput struct {
	Payload   []byte
	Signature string
}

// WebhookResult reports what a delivery did.
type WebhookResult struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Handled   bool            `json:"handled"`
	Result    ReconcileResult `json:"result"`
}

// WebhookDeps holds dependencies for HandleWebhook.
type WebhookDeps struct {
	Verifier payments.WebhookVerifier
	Booking  ReconcileBookingDeps
	Package  ReconcilePackageDeps
	Logger   zerolog.Logger
}

// ExecuteHandleWebhook verifies a processor delivery and reconciles completed
// checkouts. Deliveries may repeat or race the verify poll; reconciliation
// is idempotent so both are safe.
// PRE: none; the payload is untrusted until verified
// POST: Returns payments.ErrInvalidSignature for unverified payloads. Store
// failures are returned so the processor redelivers.
func ExecuteHandleWebhook(ctx context.Context, input WebhookInput, deps WebhookDeps) (WebhookResult, error) {
	evt, err := deps.Verifier.VerifyWebhook(input.Payload, input.Signature)
	if err != nil {
		deps.Logger.Warn().Err(err).Msg("webhook_signature_rejected")
		return WebhookResult{}, err
	}
	out := WebhookResult{EventID: evt.ID, EventType: evt.Type}
	if evt.Type != payments.EventCheckoutCompleted || evt.Session == nil {
		deps.Logger.Debug().Str("event_id", evt.ID).Str("event_type", evt.Type).Msg("webhook_ignored")
		return out, nil
	}
	sess := *evt.Session
	if !sess.IsPaid() {
		deps.Logger.Info().Str("event_id", evt.ID).Str("session_id", sess.ID).
			Str("payment_status", sess.PaymentStatus).Msg("webhook_session_unpaid")
		return out, nil
	}

	switch purchaseType(sess) {
	case payments.PurchaseBooking:
		out.Result, err = ExecuteReconcileBooking(ctx, sess, deps.Booking)
	case payments.PurchasePackage:
		out.Result, err = ExecuteReconcilePackage(ctx, sess, deps.Package)
	default:
		deps.Logger.Info().Str("event_id", evt.ID).Str("session_id", sess.ID).
			Str("purchase_type", purchaseType(sess)).Msg("webhook_purchase_not_reconciled")
		return out, nil
	}
	if err != nil {
		deps.Logger.Error().Err(err).Str("event_id", evt.ID).Str("session_id", sess.ID).Msg("webhook_reconcile_failed")
		return WebhookResult{}, err
	}
	out.Handled = true
	deps.Logger.Info().Str("event_id", evt.ID).Str("session_id", sess.ID).Str("mode", string(evt.Mode)).
		Str("outcome", out.Result.Outcome).Msg("webhook_processed")
	return out, nil
}
