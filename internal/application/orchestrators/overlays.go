package orchestrators

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/adapters/storage/records"
	"studio/internal/domain/account"
	"studio/internal/domain/audit"
	"studio/internal/domain/booking"
	"studio/internal/domain/catalog"
	"studio/internal/domain/identity"
	"studio/internal/domain/simulation"
	"studio/internal/domain/slot"
)

// RefundReasonSimulation tags refunds issued while undoing a simulation.
const RefundReasonSimulation = "simulation_reversal"

// ReversalRetryAfter is how long a closed session's leftover log rows wait
// before the sweeper retries them, so it does not race the reversal that
// ended the session.
const ReversalRetryAfter = time.Minute

// ImpersonationDeps holds dependencies for the impersonation use cases.
type ImpersonationDeps struct {
	Accounts    AccountReader
	// Simulations, when set, refuses an impersonation while a stored
	// simulation is still running for the admin.
	Simulations SimulationStore
	Audit       AuditRecorder
	Logger      zerolog.Logger
	Now         func() time.Time
}

// ExecuteStartImpersonation lets an admin view the system as another account.
// The returned overlay is what the caller signs into the impersonation token.
// PRE: caller's true role is admin or master_admin
// POST: Returns the overlay, or ErrConflictingOverlay when one is active
func ExecuteStartImpersonation(ctx context.Context, caller identity.Identity, targetUserID string, deps ImpersonationDeps) (identity.Impersonation, error) {
	if err := caller.CanStartOverlay(); err != nil {
		return identity.Impersonation{}, err
	}
	if targetUserID == caller.TrueUserID {
		return identity.Impersonation{}, identity.ErrSelfImpersonation
	}
	target, err := deps.Accounts.GetByID(ctx, targetUserID)
	if err != nil {
		return identity.Impersonation{}, err
	}
	if target.Role == account.RoleMasterAdmin {
		return identity.Impersonation{}, identity.ErrProtectedTarget
	}

	now := deps.Now()
	if deps.Simulations != nil {
		if _, err := deps.Simulations.GetActiveForAdmin(ctx, caller.TrueUserID, now); err == nil {
			return identity.Impersonation{}, identity.ErrConflictingOverlay
		} else if !errors.Is(err, simulation.ErrNotFound) {
			return identity.Impersonation{}, err
		}
	}
	imp := identity.Impersonation{
		TargetUserID: target.ID,
		TargetName:   target.DisplayName(),
		TargetRole:   target.Role,
		ExpiresAt:    now.Add(identity.ImpersonationTTL),
	}
	deps.Logger.Info().Str("admin_id", caller.TrueUserID).Str("target_user_id", target.ID).
		Str("target_role", target.Role).Msg("impersonation_started")
	recordAudit(ctx, deps.Audit, deps.Logger, audit.NewEvent(caller.TrueUserID, caller.TrueRole, audit.CategoryOverlay, audit.ActionStart, now).
		WithResource("account", target.ID).WithDescription("impersonation").WithSeverity(audit.SeverityWarning))
	return imp, nil
}

// ExecuteEndImpersonation closes the impersonation overlay.
func ExecuteEndImpersonation(ctx context.Context, caller identity.Identity, deps ImpersonationDeps) error {
	if !caller.Authenticated() {
		return identity.ErrUnauthenticated
	}
	if !caller.IsImpersonating() {
		return identity.ErrNoOverlay
	}
	deps.Logger.Info().Str("admin_id", caller.TrueUserID).Str("target_user_id", caller.Impersonation.TargetUserID).
		Msg("impersonation_ended")
	recordAudit(ctx, deps.Audit, deps.Logger, audit.NewEvent(caller.TrueUserID, caller.TrueRole, audit.CategoryOverlay, audit.ActionEnd, deps.Now()).
		WithResource("account", caller.Impersonation.TargetUserID).WithDescription("impersonation"))
	return nil
}

// SimulationStore persists simulation sessions and their write log.
type SimulationStore interface {
	Create(ctx context.Context, s simulation.Session) error
	GetActiveForAdmin(ctx context.Context, adminID string, now time.Time) (simulation.Session, error)
	ListExpired(ctx context.Context, now time.Time) ([]simulation.Session, error)
	ListPendingReversal(ctx context.Context, endedBefore time.Time) ([]simulation.Session, error)
	MarkEnded(ctx context.Context, id, status string, now time.Time) error
	ListLog(ctx context.Context, sessionID string) ([]simulation.LogEntry, error)
	DeleteLogEntry(ctx context.Context, id string) error
}

// StartSimulationDeps holds dependencies for StartSimulation.
type StartSimulationDeps struct {
	Simulations SimulationStore
	Audit       AuditRecorder
	Logger      zerolog.Logger
	GenerateID  func() string
	Now         func() time.Time
}

// ExecuteStartSimulation opens a simulation session under a synthetic role.
// PRE: caller's true role is admin or master_admin
// POST: An active session is stored and its overlay returned
func ExecuteStartSimulation(ctx context.Context, caller identity.Identity, role string, deps StartSimulationDeps) (identity.Simulation, error) {
	if err := caller.CanStartOverlay(); err != nil {
		return identity.Simulation{}, err
	}
	if !identity.IsSimulatableRole(role) {
		return identity.Simulation{}, identity.ErrInvalidSimRole
	}
	now := deps.Now()
	// A running session whose token was lost must be ended before another starts.
	if _, err := deps.Simulations.GetActiveForAdmin(ctx, caller.TrueUserID, now); err == nil {
		return identity.Simulation{}, identity.ErrConflictingOverlay
	} else if !errors.Is(err, simulation.ErrNotFound) {
		return identity.Simulation{}, err
	}

	sess := simulation.Session{
		ID:        deps.GenerateID(),
		AdminID:   caller.TrueUserID,
		Role:      role,
		Status:    simulation.StatusActive,
		StartedAt: now,
		ExpiresAt: now.Add(identity.SimulationTTL),
	}
	if err := deps.Simulations.Create(ctx, sess); err != nil {
		return identity.Simulation{}, err
	}
	deps.Logger.Info().Str("admin_id", caller.TrueUserID).Str("simulation_id", sess.ID).Str("role", role).Msg("simulation_started")
	recordAudit(ctx, deps.Audit, deps.Logger, audit.NewEvent(caller.TrueUserID, caller.TrueRole, audit.CategoryOverlay, audit.ActionStart, now).
		WithResource("simulation_session", sess.ID).WithDescription("simulation as " + role))
	return identity.Simulation{SessionID: sess.ID, Role: role, ExpiresAt: sess.ExpiresAt}, nil
}

// ReversalBookings reads and deletes simulated bookings.
type ReversalBookings interface {
	GetByID(ctx context.Context, id string) (booking.Booking, error)
	DeleteAndRelease(ctx context.Context, id string) (booking.Booking, error)
}

// ReversalPackages reads and deletes simulated package purchases.
type ReversalPackages interface {
	GetAthletePackage(ctx context.Context, id string) (catalog.AthletePackage, error)
	DeleteAthletePackage(ctx context.Context, id string) error
}

// ReversalSlots deletes simulated slots.
type ReversalSlots interface {
	Delete(ctx context.Context, id string) error
}

// ReversalRecords deletes simulated drill rows.
type ReversalRecords interface {
	DeleteRow(ctx context.Context, table, id string) error
}

// ReversalDeps holds dependencies for ending and sweeping simulations.
type ReversalDeps struct {
	Simulations SimulationStore
	Bookings    ReversalBookings
	Packages    ReversalPackages
	Slots       ReversalSlots
	Records     ReversalRecords
	Refunder    Refunder
	Audit       AuditRecorder
	Logger      zerolog.Logger
	Now         func() time.Time
}

// ReversalResult summarizes one undone simulation.
type ReversalResult struct {
	SessionID string `json:"session_id"`
	Deleted   int    `json:"deleted"`
	Refunded  int    `json:"refunded"`
	// Failed rows stay in the log; the sweeper retries them.
	Failed int `json:"failed"`
}

// ExecuteEndSimulation closes the caller's simulation and undoes its writes.
// A caller whose token was lost still ends their stored active session.
// PRE: caller is authenticated
// POST: Session ended exactly once; every logged row deleted children first,
// with payment-bearing rows refunded before deletion
func ExecuteEndSimulation(ctx context.Context, caller identity.Identity, deps ReversalDeps) (ReversalResult, error) {
	if !caller.Authenticated() {
		return ReversalResult{}, identity.ErrUnauthenticated
	}
	now := deps.Now()
	sessionID := caller.SimulationSessionID()
	if sessionID == "" {
		sess, err := deps.Simulations.GetActiveForAdmin(ctx, caller.TrueUserID, now)
		if errors.Is(err, simulation.ErrNotFound) {
			return ReversalResult{}, identity.ErrNoOverlay
		}
		if err != nil {
			return ReversalResult{}, err
		}
		sessionID = sess.ID
	}

	if err := deps.Simulations.MarkEnded(ctx, sessionID, simulation.StatusEnded, now); err != nil {
		return ReversalResult{}, err
	}
	res, err := reverseSimulation(ctx, sessionID, deps)
	if err != nil {
		return res, err
	}
	deps.Logger.Info().Str("admin_id", caller.TrueUserID).Str("simulation_id", sessionID).Int("deleted", res.Deleted).
		Int("refunded", res.Refunded).Int("failed", res.Failed).Msg("simulation_ended")
	recordAudit(ctx, deps.Audit, deps.Logger, audit.NewEvent(caller.TrueUserID, caller.TrueRole, audit.CategoryOverlay, audit.ActionEnd, now).
		WithResource("simulation_session", sessionID).WithMetadata(res))
	return res, nil
}

// ExecuteExpireSimulations ends every simulation whose window lapsed and
// undoes its writes. Sessions another caller already ended are skipped.
// Closed sessions whose earlier reversal left rows behind are retried.
func ExecuteExpireSimulations(ctx context.Context, deps ReversalDeps) ([]ReversalResult, error) {
	now := deps.Now()
	expired, err := deps.Simulations.ListExpired(ctx, now)
	if err != nil {
		return nil, err
	}
	var out []ReversalResult
	for _, sess := range expired {
		err := deps.Simulations.MarkEnded(ctx, sess.ID, simulation.StatusExpired, now)
		if errors.Is(err, simulation.ErrNotActive) {
			continue
		}
		if err != nil {
			return out, err
		}
		res, err := reverseSimulation(ctx, sess.ID, deps)
		if err != nil {
			return out, err
		}
		out = append(out, res)
		deps.Logger.Info().Str("admin_id", sess.AdminID).Str("simulation_id", sess.ID).Int("deleted", res.Deleted).
			Int("failed", res.Failed).Msg("simulation_expired")
		recordAudit(ctx, deps.Audit, deps.Logger, audit.NewEvent(sess.AdminID, "", audit.CategoryOverlay, audit.ActionExpire, now).
			WithResource("simulation_session", sess.ID).WithMetadata(res))
	}

	leftover, err := deps.Simulations.ListPendingReversal(ctx, now.Add(-ReversalRetryAfter))
	if err != nil {
		return out, err
	}
	for _, sess := range leftover {
		res, err := reverseSimulation(ctx, sess.ID, deps)
		if err != nil {
			return out, err
		}
		out = append(out, res)
		deps.Logger.Info().Str("admin_id", sess.AdminID).Str("simulation_id", sess.ID).Int("deleted", res.Deleted).
			Int("failed", res.Failed).Msg("simulation_reversal_retried")
	}
	return out, nil
}

func reverseSimulation(ctx context.Context, sessionID string, deps ReversalDeps) (ReversalResult, error) {
	res := ReversalResult{SessionID: sessionID}
	entries, err := deps.Simulations.ListLog(ctx, sessionID)
	if err != nil {
		return res, err
	}
	for _, e := range simulation.SortForReversal(entries) {
		refunded, err := reverseEntry(ctx, e, deps)
		if refunded {
			res.Refunded++
		}
		if err != nil {
			res.Failed++
			deps.Logger.Warn().Err(err).Str("simulation_id", sessionID).Str("table", e.TableName).
				Str("record_id", e.RecordID).Msg("simulation_reversal_failed")
			continue
		}
		if err := deps.Simulations.DeleteLogEntry(ctx, e.ID); err != nil {
			return res, err
		}
		res.Deleted++
	}
	return res, nil
}

// reverseEntry refunds and deletes one logged row. A row already gone counts
// as reversed.
func reverseEntry(ctx context.Context, e simulation.LogEntry, deps ReversalDeps) (refunded bool, err error) {
	switch e.TableName {
	case simulation.TableDrillCompletion, simulation.TableDrillAssignment:
		err = deps.Records.DeleteRow(ctx, e.TableName, e.RecordID)
		if errors.Is(err, records.ErrNotFound) {
			return false, nil
		}
		return false, err

	case simulation.TableBooking:
		b, err := deps.Bookings.GetByID(ctx, e.RecordID)
		if errors.Is(err, booking.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		refunded = refundSimulated(ctx, deps, b.StripeCheckoutSessionID, b.StripePaymentIntentID)
		_, err = deps.Bookings.DeleteAndRelease(ctx, b.ID)
		if errors.Is(err, booking.ErrNotFound) {
			err = nil
		}
		return refunded, err

	case simulation.TableAthletePackage:
		ap, err := deps.Packages.GetAthletePackage(ctx, e.RecordID)
		if errors.Is(err, catalog.ErrAthletePackageNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		refunded = refundSimulated(ctx, deps, ap.StripeCheckoutSessionID, ap.StripePaymentIntentID)
		err = deps.Packages.DeleteAthletePackage(ctx, ap.ID)
		if errors.Is(err, catalog.ErrAthletePackageNotFound) {
			err = nil
		}
		return refunded, err

	case simulation.TableSlot:
		err = deps.Slots.Delete(ctx, e.RecordID)
		if errors.Is(err, slot.ErrSlotNotFound) {
			return false, nil
		}
		return false, err
	}
	return false, simulation.ErrUntrackedTable
}

// refundSimulated attempts a refund and never fails the reversal: the payment
// may be synthetic or already refunded.
func refundSimulated(ctx context.Context, deps ReversalDeps, sessionID, paymentIntentID string) bool {
	if paymentIntentID == "" || deps.Refunder == nil {
		return false
	}
	refundID, err := deps.Refunder.IssueRefund(ctx, sessionID, paymentIntentID, RefundReasonSimulation)
	if err != nil {
		deps.Logger.Warn().Err(err).Str("payment_intent_id", paymentIntentID).Msg("simulation_refund_failed")
		return false
	}
	return refundID != ""
}

// StartSimulationSweeper periodically expires lapsed simulations.
// POST: Runs until stopCh is closed; done is closed when it has exited
func StartSimulationSweeper(deps ReversalDeps, interval time.Duration, stopCh <-chan struct{}) (done <-chan struct{}) {
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				if _, err := ExecuteExpireSimulations(ctx, deps); err != nil {
					deps.Logger.Error().Err(err).Msg("simulation_sweep_failed")
				}
				cancel()
			case <-stopCh:
				deps.Logger.Info().Msg("simulation_sweeper_stopped")
				return
			}
		}
	}()
	return exited
}
