package orchestrators

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/application/payments"
	"studio/internal/domain/booking"
	"studio/internal/domain/catalog"
	"studio/internal/domain/outbox"
	"studio/internal/domain/simulation"
	"studio/internal/domain/slot"
	"studio/internal/metrics"
)

// Reconcile outcomes.
const (
	OutcomeCreated    = "created"
	OutcomeExists     = "exists"
	OutcomeFailed     = "failed"
	OutcomeNotBooking = "not_booking"
)

// Failure reasons reported when a paid session cannot become a booking.
const (
	ReasonSlotNotFound    = "slot_not_found"
	ReasonSlotUnavailable = "slot_unavailable"
	ReasonInsertFailed    = "insert_failed"
	ReasonInvalidDraft    = "invalid_draft"
	// ReasonSimulationEnded marks a purchase made under a simulation that
	// ended while its checkout was still open.
	ReasonSimulationEnded = "simulation_ended"
)

// ReconcileBookingStore is the booking persistence reconciliation needs.
type ReconcileBookingStore interface {
	GetByCheckoutSession(ctx context.Context, sessionID string) (booking.Booking, error)
	CreateWithReservation(ctx context.Context, b booking.Booking) error
	DeleteAndRelease(ctx context.Context, id string) (booking.Booking, error)
}

// SlotReader reads slots.
type SlotReader interface {
	GetByID(ctx context.Context, id string) (slot.Slot, error)
}

// Refunder issues compensating refunds.
type Refunder interface {
	IssueRefund(ctx context.Context, sessionID, paymentIntentID, reason string) (string, error)
}

// SimulationLogger records rows written while an admin is simulating.
type SimulationLogger interface {
	LogWrite(ctx context.Context, entry simulation.LogEntry) error
}

// ReconcileResult is the outcome of one reconcile call.
type ReconcileResult struct {
	Outcome  string `json:"outcome"`
	ID       string `json:"id,omitempty"`
	Reason   string `json:"reason,omitempty"`
	RefundID string `json:"refund_id,omitempty"`
}

// ReconcileBookingDeps holds dependencies for ReconcileBooking.
type ReconcileBookingDeps struct {
	Bookings    ReconcileBookingStore
	Slots       SlotReader
	Refunder    Refunder
	Outbox      OutboxWriter
	Simulations SimulationLogger
	Notifier    Notifier
	Logger      zerolog.Logger
	GenerateID  func() string
	Now         func() time.Time
}

// ExecuteReconcileBooking turns a paid checkout session into exactly one
// booking. The webhook and the verify poll both call it, possibly at the
// same time; the unique index on the checkout session id decides the race.
// PRE: sess has been retrieved from the processor and is paid
// POST: Exactly one booking exists for sess.ID, or the payment was refunded
// (or recorded for manual reconciliation); store errors are returned so the
// caller can retry
func ExecuteReconcileBooking(ctx context.Context, sess payments.Session, deps ReconcileBookingDeps) (ReconcileResult, error) {
	existing, err := deps.Bookings.GetByCheckoutSession(ctx, sess.ID)
	if err == nil {
		metrics.IncReconcile(payments.PurchaseBooking, OutcomeExists)
		return ReconcileResult{Outcome: OutcomeExists, ID: existing.ID}, nil
	}
	if !errors.Is(err, booking.ErrNotFound) {
		return ReconcileResult{}, fmt.Errorf("look up booking for session %s: %w", sess.ID, err)
	}

	rawDraft := sess.Metadata[payments.MetaBookingDraft]
	if rawDraft == "" || purchaseType(sess) != payments.PurchaseBooking {
		metrics.IncReconcile(payments.PurchaseBooking, OutcomeNotBooking)
		return ReconcileResult{Outcome: OutcomeNotBooking}, nil
	}
	draft, err := booking.DecodeDraft(rawDraft)
	if err != nil {
		deps.Logger.Error().Err(err).Str("session_id", sess.ID).Msg("booking_draft_invalid")
		return failBooking(ctx, sess, ReasonInvalidDraft, deps)
	}

	sl, err := deps.Slots.GetByID(ctx, draft.SlotID)
	switch {
	case errors.Is(err, slot.ErrSlotNotFound):
		return failBooking(ctx, sess, ReasonSlotNotFound, deps)
	case err != nil:
		return ReconcileResult{}, fmt.Errorf("read slot %s: %w", draft.SlotID, err)
	case !sl.HasCapacity():
		return failBooking(ctx, sess, ReasonSlotUnavailable, deps)
	}

	now := deps.Now()
	b := booking.Booking{
		ID:                      deps.GenerateID(),
		AthleteID:               sess.Metadata[payments.MetaAthleteID],
		CoachID:                 draft.CoachID,
		ServiceID:               sess.Metadata[payments.MetaServiceID],
		SlotID:                  draft.SlotID,
		Date:                    draft.Date,
		StartTime:               draft.StartTime,
		DurationMinutes:         draft.DurationMinutes,
		Location:                draft.Location,
		Status:                  booking.StatusConfirmed,
		PaymentStatus:           booking.PaymentPaid,
		PaymentMethod:           booking.MethodCard,
		AmountCents:             sess.AmountTotal,
		StripeCheckoutSessionID: sess.ID,
		StripePaymentIntentID:   sess.PaymentIntentID,
		Notes:                   draft.Notes,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if err := b.Validate(); err != nil {
		deps.Logger.Error().Err(err).Str("session_id", sess.ID).Msg("booking_metadata_invalid")
		return failBooking(ctx, sess, ReasonInvalidDraft, deps)
	}

	err = deps.Bookings.CreateWithReservation(ctx, b)
	switch {
	case err == nil:
	case errors.Is(err, booking.ErrDuplicateSession):
		winner, lookupErr := deps.Bookings.GetByCheckoutSession(ctx, sess.ID)
		if lookupErr != nil {
			return ReconcileResult{}, fmt.Errorf("look up winning booking for session %s: %w", sess.ID, lookupErr)
		}
		metrics.IncReconcile(payments.PurchaseBooking, OutcomeExists)
		return ReconcileResult{Outcome: OutcomeExists, ID: winner.ID}, nil
	case errors.Is(err, slot.ErrSlotFull), errors.Is(err, slot.ErrSlotNotFound), errors.Is(err, booking.ErrAlreadyBooked):
		deps.Logger.Warn().Err(err).Str("session_id", sess.ID).Str("slot_id", draft.SlotID).Msg("booking_insert_lost_race")
		return failBooking(ctx, sess, ReasonInsertFailed, deps)
	default:
		return ReconcileResult{}, fmt.Errorf("create booking for session %s: %w", sess.ID, err)
	}

	if err := logSimulationWrite(ctx, sess, simulation.TableBooking, b.ID, deps.Simulations, deps.Logger, deps.GenerateID, now); err != nil {
		return undoLateSimulatedBooking(ctx, sess, b, deps)
	}

	metrics.IncReconcile(payments.PurchaseBooking, OutcomeCreated)
	deps.Logger.Info().Str("booking_id", b.ID).Str("session_id", sess.ID).Str("slot_id", b.SlotID).
		Str("athlete_id", b.AthleteID).Msg("booking_reconciled")

	if deps.Notifier != nil {
		notice := Notice{
			Kind:        NoticeBooking,
			AthleteID:   b.AthleteID,
			SessionID:   sess.ID,
			AmountCents: b.AmountCents,
			BookingID:   b.ID,
			SlotID:      b.SlotID,
			Date:        b.Date,
			StartTime:   b.StartTime,
			Location:    b.Location,
		}
		if err := deps.Notifier.Notify(ctx, notice); err != nil {
			deps.Logger.Warn().Err(err).Str("booking_id", b.ID).Msg("booking_notification_failed")
		}
	}
	return ReconcileResult{Outcome: OutcomeCreated, ID: b.ID}, nil
}

// failBooking compensates a session that cannot be booked. A concurrent call
// for the same session may have filled the slot or taken the athlete's place
// with this very payment, so the session is looked up once more first.
func failBooking(ctx context.Context, sess payments.Session, reason string, deps ReconcileBookingDeps) (ReconcileResult, error) {
	existing, err := deps.Bookings.GetByCheckoutSession(ctx, sess.ID)
	if err == nil {
		metrics.IncReconcile(payments.PurchaseBooking, OutcomeExists)
		return ReconcileResult{Outcome: OutcomeExists, ID: existing.ID}, nil
	}
	if !errors.Is(err, booking.ErrNotFound) {
		return ReconcileResult{}, fmt.Errorf("recheck booking for session %s: %w", sess.ID, err)
	}

	metrics.IncReconcile(payments.PurchaseBooking, OutcomeFailed)
	refundID := compensate(ctx, sess, reason, compensation{
		Refunder:   deps.Refunder,
		Outbox:     deps.Outbox,
		Logger:     deps.Logger,
		GenerateID: deps.GenerateID,
		Now:        deps.Now,
	})
	return ReconcileResult{Outcome: OutcomeFailed, Reason: reason, RefundID: refundID}, nil
}

// undoLateSimulatedBooking reverses a booking whose simulation ended before
// the payment completed: the payment is refunded, then the place released.
func undoLateSimulatedBooking(ctx context.Context, sess payments.Session, b booking.Booking, deps ReconcileBookingDeps) (ReconcileResult, error) {
	deps.Logger.Warn().Str("booking_id", b.ID).Str("session_id", sess.ID).
		Str("simulation_session_id", sess.Metadata[payments.MetaSimulationID]).Msg("simulation_ended_before_payment")
	refundID := compensate(ctx, sess, ReasonSimulationEnded, compensation{
		Refunder:   deps.Refunder,
		Outbox:     deps.Outbox,
		Logger:     deps.Logger,
		GenerateID: deps.GenerateID,
		Now:        deps.Now,
	})
	if _, err := deps.Bookings.DeleteAndRelease(ctx, b.ID); err != nil && !errors.Is(err, booking.ErrNotFound) {
		return ReconcileResult{}, fmt.Errorf("undo simulated booking %s: %w", b.ID, err)
	}
	metrics.IncReconcile(payments.PurchaseBooking, OutcomeFailed)
	return ReconcileResult{Outcome: OutcomeFailed, Reason: ReasonSimulationEnded, RefundID: refundID}, nil
}

// compensation carries what a compensating refund needs.
type compensation struct {
	Refunder   Refunder
	Outbox     OutboxWriter
	Logger     zerolog.Logger
	GenerateID func() string
	Now        func() time.Time
}

// compensate refunds a paid session that produced nothing. When the refund
// cannot be issued the payment is written to the outbox as a refund entry;
// that entry is both the retry job and the manual-reconciliation record.
// It never returns an error: the caller's outcome does not depend on it.
func compensate(ctx context.Context, sess payments.Session, reason string, c compensation) string {
	refundID, err := c.Refunder.IssueRefund(ctx, sess.ID, sess.PaymentIntentID, reason)
	if err == nil {
		return refundID
	}

	athleteID := sess.Metadata[payments.MetaAthleteID]
	metrics.IncManualReconciliation()
	c.Logger.Error().Err(err).Str("session_id", sess.ID).Str("payment_intent_id", sess.PaymentIntentID).
		Str("athlete_id", athleteID).Str("reason", reason).Msg("manual_reconciliation_required")

	if c.Outbox == nil {
		return ""
	}
	payload, mErr := json.Marshal(outbox.RefundPayload{
		PaymentIntentID: sess.PaymentIntentID,
		SessionID:       sess.ID,
		AthleteID:       athleteID,
		Reason:          reason,
		FailureReason:   err.Error(),
	})
	if mErr != nil {
		return ""
	}
	entry := outbox.NewEntry(c.GenerateID(), outbox.ActionTypeRefund, string(payload), c.Now())
	entry.ErrorMessage = err.Error()
	if sErr := c.Outbox.Save(ctx, entry); sErr != nil {
		c.Logger.Error().Err(sErr).Str("session_id", sess.ID).Msg("refund_ledger_write_failed")
	}
	return ""
}

// logSimulationWrite records a row created under a simulation so it can be
// reversed. It returns simulation.ErrNotActive when the simulation has ended,
// and the caller must undo the write itself. Any other logging failure leaves
// a stray test row, never a failed purchase.
func logSimulationWrite(ctx context.Context, sess payments.Session, table, recordID string, sims SimulationLogger, logger zerolog.Logger, genID func() string, now time.Time) error {
	simID := sess.Metadata[payments.MetaSimulationID]
	if simID == "" || sims == nil {
		return nil
	}
	err := sims.LogWrite(ctx, simulation.LogEntry{
		ID:        genID(),
		SessionID: simID,
		TableName: table,
		RecordID:  recordID,
		CreatedAt: now,
	})
	if errors.Is(err, simulation.ErrNotActive) {
		return err
	}
	if err != nil {
		logger.Warn().Err(err).Str("simulation_session_id", simID).Str("table", table).
			Str("record_id", recordID).Msg("simulation_log_failed")
	}
	return nil
}

func purchaseType(sess payments.Session) string {
	if t := sess.Metadata[payments.MetaPurchaseType]; t != "" {
		return t
	}
	if sess.Metadata[payments.MetaBookingDraft] != "" {
		return payments.PurchaseBooking
	}
	return ""
}

// athletePackageFor builds the package row a paid package session produces.
func athletePackageFor(id string, sess payments.Session, pkg catalog.Package, installments int, now time.Time) catalog.AthletePackage {
	ap := catalog.NewAthletePackage(id, sess.Metadata[payments.MetaAthleteID], pkg, now)
	ap.AmountCents = sess.AmountTotal
	ap.InstallmentsTotal = installments
	ap.StripeCheckoutSessionID = sess.ID
	ap.StripePaymentIntentID = sess.PaymentIntentID
	return ap
}
