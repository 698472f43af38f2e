package web

import (
	"time"

	"github.com/rs/zerolog"

	"studio/internal/application/orchestrators"
)

// ReversalDeps wires simulation reversal; the background sweeper uses the
// same wiring as the end-simulation route.
func ReversalDeps(stores Stores, refunder orchestrators.Refunder, logger zerolog.Logger, now func() time.Time) orchestrators.ReversalDeps {
	return orchestrators.ReversalDeps{
		Simulations: stores.Simulations,
		Bookings:    stores.Bookings,
		Packages:    stores.Catalog,
		Slots:       stores.Slots,
		Records:     stores.Records,
		Refunder:    refunder,
		Audit:       stores.Audit,
		Logger:      logger,
		Now:         now,
	}
}

func (s *Server) reconcileBookingDeps() orchestrators.ReconcileBookingDeps {
	return orchestrators.ReconcileBookingDeps{
		Bookings:    s.stores.Bookings,
		Slots:       s.stores.Slots,
		Refunder:    s.gateway,
		Outbox:      s.stores.Outbox,
		Simulations: s.stores.Simulations,
		Notifier:    s.notifier,
		Logger:      s.logger,
		GenerateID:  s.newID,
		Now:         s.now,
	}
}

func (s *Server) reconcilePackageDeps() orchestrators.ReconcilePackageDeps {
	return orchestrators.ReconcilePackageDeps{
		Catalog:     s.stores.Catalog,
		Refunder:    s.gateway,
		Outbox:      s.stores.Outbox,
		Simulations: s.stores.Simulations,
		Notifier:    s.notifier,
		Logger:      s.logger,
		GenerateID:  s.newID,
		Now:         s.now,
	}
}

func (s *Server) reversalDeps() orchestrators.ReversalDeps {
	return ReversalDeps(s.stores, s.gateway, s.logger, s.now)
}

func (s *Server) submitDeps() orchestrators.SubmitActionRequestDeps {
	return orchestrators.SubmitActionRequestDeps{
		Requests:   s.stores.Requests,
		Bookings:   s.stores.Bookings,
		Accounts:   s.stores.Accounts,
		Audit:      s.stores.Audit,
		Logger:     s.logger,
		GenerateID: s.newID,
		Now:        s.now,
	}
}
