package web

import (
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"studio/internal/adapters/http/middleware"
	"studio/internal/application/orchestrators"
	"studio/internal/application/payments"
)

type bookingCheckoutRequest struct {
	ServiceID string `json:"service_id"`
	SlotID    string `json:"slot_id"`
	Notes     string `json:"notes"`
}

// handleBookingCheckout handles POST /api/checkout/booking
func (s *Server) handleBookingCheckout(w http.ResponseWriter, r *http.Request) {
	var req bookingCheckoutRequest
	if err := strictDecode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := orchestrators.ExecuteCreateBookingCheckout(r.Context(), orchestrators.BookingCheckoutInput{
		Caller:    middleware.IdentityFromContext(r.Context()),
		ServiceID: req.ServiceID,
		SlotID:    req.SlotID,
		Notes:     req.Notes,
	}, orchestrators.BookingCheckoutDeps{
		Accounts: s.stores.Accounts,
		Catalog:  s.stores.Catalog,
		Slots:    s.stores.Slots,
		Bookings: s.stores.Bookings,
		Gateway:  s.gateway,
		Logger:   s.logger,
		Now:      s.now,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type packageCheckoutRequest struct {
	PackageID    string `json:"package_id"`
	Installments int    `json:"installments"`
}

// handlePackageCheckout handles POST /api/checkout/package
func (s *Server) handlePackageCheckout(w http.ResponseWriter, r *http.Request) {
	var req packageCheckoutRequest
	if err := strictDecode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := orchestrators.ExecuteCreatePackageCheckout(r.Context(), orchestrators.PackageCheckoutInput{
		Caller:       middleware.IdentityFromContext(r.Context()),
		PackageID:    req.PackageID,
		Installments: req.Installments,
	}, orchestrators.PackageCheckoutDeps{
		Accounts: s.stores.Accounts,
		Catalog:  s.stores.Catalog,
		Gateway:  s.gateway,
		Logger:   s.logger,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type membershipCheckoutRequest struct {
	TierID string `json:"tier_id"`
}

// handleMembershipCheckout handles POST /api/checkout/membership
func (s *Server) handleMembershipCheckout(w http.ResponseWriter, r *http.Request) {
	var req membershipCheckoutRequest
	if err := strictDecode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := orchestrators.ExecuteCreateMembershipCheckout(r.Context(), orchestrators.MembershipCheckoutInput{
		Caller: middleware.IdentityFromContext(r.Context()),
		TierID: req.TierID,
	}, orchestrators.MembershipCheckoutDeps{
		Accounts:  s.stores.Accounts,
		Customers: s.stores.Accounts,
		Catalog:   s.stores.Catalog,
		Gateway:   s.gateway,
		Logger:    s.logger,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// handleVerifyBooking handles GET /api/bookings/verify?session_id=
func (s *Server) handleVerifyBooking(w http.ResponseWriter, r *http.Request) {
	res, err := orchestrators.ExecuteVerifyBooking(r.Context(), orchestrators.VerifyBookingInput{
		Caller:    middleware.IdentityFromContext(r.Context()),
		SessionID: r.URL.Query().Get("session_id"),
	}, orchestrators.VerifyBookingDeps{
		Sessions:  s.gateway,
		Reconcile: s.reconcileBookingDeps(),
		Logger:    s.logger,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleStripeWebhook handles POST /api/webhooks/stripe
// POST: 200 once the delivery is reconciled or ignored; 400 for an
// unverifiable payload; 500 when a store failed so the processor redelivers
func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxWebhookBytes))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "validation", "payload too large or unreadable")
		return
	}
	res, err := orchestrators.ExecuteHandleWebhook(r.Context(), orchestrators.WebhookInput{
		Payload:   payload,
		Signature: r.Header.Get("Stripe-Signature"),
	}, orchestrators.WebhookDeps{
		Verifier: s.verifier,
		Booking:  s.reconcileBookingDeps(),
		Package:  s.reconcilePackageDeps(),
		Logger:   s.logger,
	})
	switch {
	case errors.Is(err, payments.ErrInvalidSignature), errors.Is(err, payments.ErrNotConfigured):
		hlog.FromRequest(r).Warn().Err(err).Msg("webhook_rejected")
		middleware.WriteError(w, http.StatusBadRequest, "invalid_signature", "webhook signature verification failed")
		return
	case err != nil:
		hlog.FromRequest(r).Error().Err(err).Str("event_id", res.EventID).Msg("webhook_failed")
		middleware.WriteError(w, http.StatusInternalServerError, "internal", "webhook processing failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
