package orchestrators

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"studio/internal/application/payments"
	"studio/internal/domain/apperr"
	"studio/internal/domain/identity"
)

// ErrNotSessionOwner is returned when a caller verifies someone else's payment.
var ErrNotSessionOwner = apperr.New(apperr.KindForbidden, "this checkout session belongs to another athlete")

// SessionRetriever reads checkout sessions from the processor.
type SessionRetriever interface {
	RetrieveSession(ctx context.Context, sessionID string) (payments.Session, error)
}

// VerifyBookingInput carries input for VerifyBooking.
type VerifyBookingInput struct {
	Caller    identity.Identity
	SessionID string
}

// VerifyBookingResult is what the post-redirect poll sees.
type VerifyBookingResult struct {
	Verified  bool   `json:"verified"`
	Booking   string `json:"booking,omitempty"`
	BookingID string `json:"booking_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// VerifyBookingDeps holds dependencies for VerifyBooking.
type VerifyBookingDeps struct {
	Sessions  SessionRetriever
	Reconcile ReconcileBookingDeps
	Logger    zerolog.Logger
}

// ExecuteVerifyBooking is the client's side of reconciliation: after the
// processor redirects back, the client polls with the session id. The
// account is chosen from the id's prefix, so a lost mode cookie cannot send
// the lookup to the wrong account.
// PRE: caller is authenticated
// POST: A paid session has been reconciled exactly as the webhook would
func ExecuteVerifyBooking(ctx context.Context, input VerifyBookingInput, deps VerifyBookingDeps) (VerifyBookingResult, error) {
	if !input.Caller.Authenticated() {
		return VerifyBookingResult{}, identity.ErrUnauthenticated
	}
	sessionID := strings.TrimSpace(input.SessionID)
	if sessionID == "" {
		return VerifyBookingResult{}, apperr.New(apperr.KindValidation, "session_id is required")
	}

	sess, err := deps.Sessions.RetrieveSession(ctx, sessionID)
	if err != nil {
		return VerifyBookingResult{}, err
	}
	if owner := sess.Metadata[payments.MetaAthleteID]; owner != input.Caller.UserID && owner != input.Caller.TrueUserID && !input.Caller.IsStaff() {
		return VerifyBookingResult{}, ErrNotSessionOwner
	}
	if !sess.IsPaid() {
		return VerifyBookingResult{Verified: false}, nil
	}

	res, err := ExecuteReconcileBooking(ctx, sess, deps.Reconcile)
	if err != nil {
		deps.Logger.Error().Err(err).Str("session_id", sessionID).Msg("verify_reconcile_failed")
		return VerifyBookingResult{}, err
	}
	return VerifyBookingResult{Verified: true, Booking: res.Outcome, BookingID: res.ID, Reason: res.Reason}, nil
}
