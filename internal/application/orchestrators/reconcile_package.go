package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/application/payments"
	"studio/internal/domain/catalog"
	"studio/internal/domain/simulation"
	"studio/internal/metrics"
)

// ReconcilePackageStore is the catalog persistence package reconciliation needs.
type ReconcilePackageStore interface {
	GetPackage(ctx context.Context, id string) (catalog.Package, error)
	GetAthletePackageBySession(ctx context.Context, sessionID string) (catalog.AthletePackage, error)
	CreateAthletePackage(ctx context.Context, ap catalog.AthletePackage) error
	DeleteAthletePackage(ctx context.Context, id string) error
}

// ReconcilePackageDeps holds dependencies for ReconcilePackage.
type ReconcilePackageDeps struct {
	Catalog     ReconcilePackageStore
	Refunder    Refunder
	Outbox      OutboxWriter
	Simulations SimulationLogger
	Notifier    Notifier
	Logger      zerolog.Logger
	GenerateID  func() string
	Now         func() time.Time
}

// ExecuteReconcilePackage records the athlete package bought by a paid
// session, exactly once per session.
// PRE: sess is paid
// POST: One athlete_package row exists for sess.ID, or the payment was refunded
func ExecuteReconcilePackage(ctx context.Context, sess payments.Session, deps ReconcilePackageDeps) (ReconcileResult, error) {
	existing, err := deps.Catalog.GetAthletePackageBySession(ctx, sess.ID)
	if err == nil {
		metrics.IncReconcile(payments.PurchasePackage, OutcomeExists)
		return ReconcileResult{Outcome: OutcomeExists, ID: existing.ID}, nil
	}
	if !errors.Is(err, catalog.ErrAthletePackageNotFound) {
		return ReconcileResult{}, fmt.Errorf("look up package for session %s: %w", sess.ID, err)
	}

	packageID := sess.Metadata[payments.MetaPackageID]
	if purchaseType(sess) != payments.PurchasePackage || packageID == "" {
		metrics.IncReconcile(payments.PurchasePackage, OutcomeNotBooking)
		return ReconcileResult{Outcome: OutcomeNotBooking}, nil
	}

	pkg, err := deps.Catalog.GetPackage(ctx, packageID)
	if errors.Is(err, catalog.ErrPackageNotFound) {
		return failPackage(ctx, sess, "package_not_found", deps), nil
	}
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("read package %s: %w", packageID, err)
	}

	installments, _ := strconv.Atoi(sess.Metadata[payments.MetaInstallmentsTotal])
	if installments < 1 {
		installments = 1
	}
	// The sessions sold are the ones quoted at checkout, even if the package
	// has been edited since.
	if n, err := strconv.Atoi(sess.Metadata[payments.MetaSessionsIncluded]); err == nil && n > 0 {
		pkg.SessionsIncluded = n
	}

	now := deps.Now()
	ap := athletePackageFor(deps.GenerateID(), sess, pkg, installments, now)
	err = deps.Catalog.CreateAthletePackage(ctx, ap)
	switch {
	case err == nil:
	case errors.Is(err, catalog.ErrDuplicatePurchase):
		winner, lookupErr := deps.Catalog.GetAthletePackageBySession(ctx, sess.ID)
		if lookupErr != nil {
			return ReconcileResult{}, fmt.Errorf("look up winning package for session %s: %w", sess.ID, lookupErr)
		}
		metrics.IncReconcile(payments.PurchasePackage, OutcomeExists)
		return ReconcileResult{Outcome: OutcomeExists, ID: winner.ID}, nil
	default:
		return ReconcileResult{}, fmt.Errorf("create athlete package for session %s: %w", sess.ID, err)
	}

	if err := logSimulationWrite(ctx, sess, simulation.TableAthletePackage, ap.ID, deps.Simulations, deps.Logger, deps.GenerateID, now); err != nil {
		deps.Logger.Warn().Str("athlete_package_id", ap.ID).Str("session_id", sess.ID).Msg("simulation_ended_before_payment")
		res := failPackage(ctx, sess, ReasonSimulationEnded, deps)
		if err := deps.Catalog.DeleteAthletePackage(ctx, ap.ID); err != nil && !errors.Is(err, catalog.ErrAthletePackageNotFound) {
			return ReconcileResult{}, fmt.Errorf("undo simulated package %s: %w", ap.ID, err)
		}
		return res, nil
	}

	metrics.IncReconcile(payments.PurchasePackage, OutcomeCreated)
	deps.Logger.Info().Str("athlete_package_id", ap.ID).Str("session_id", sess.ID).
		Str("athlete_id", ap.AthleteID).Int("sessions_total", ap.SessionsTotal).Msg("package_reconciled")

	if deps.Notifier != nil {
		notice := Notice{
			Kind:             NoticePackage,
			AthleteID:        ap.AthleteID,
			SessionID:        sess.ID,
			AmountCents:      ap.AmountCents,
			AthletePackageID: ap.ID,
			PackageID:        ap.PackageID,
			SessionsTotal:    ap.SessionsTotal,
		}
		if err := deps.Notifier.Notify(ctx, notice); err != nil {
			deps.Logger.Warn().Err(err).Str("athlete_package_id", ap.ID).Msg("package_notification_failed")
		}
	}
	return ReconcileResult{Outcome: OutcomeCreated, ID: ap.ID}, nil
}

func failPackage(ctx context.Context, sess payments.Session, reason string, deps ReconcilePackageDeps) ReconcileResult {
	metrics.IncReconcile(payments.PurchasePackage, OutcomeFailed)
	refundID := compensate(ctx, sess, reason, compensation{
		Refunder:   deps.Refunder,
		Outbox:     deps.Outbox,
		Logger:     deps.Logger,
		GenerateID: deps.GenerateID,
		Now:        deps.Now,
	})
	return ReconcileResult{Outcome: OutcomeFailed, Reason: reason, RefundID: refundID}
}
