package web

import (
	"net/http"

	"studio/internal/adapters/http/middleware"
	auditStore "studio/internal/adapters/storage/audit"
	"studio/internal/application/listutil"
	"studio/internal/application/orchestrators"
	"studio/internal/application/payments"
	"studio/internal/domain/account"
	"studio/internal/domain/apperr"
	auditDomain "studio/internal/domain/audit"
	"studio/internal/domain/identity"
	"studio/internal/domain/outbox"
)

var errAdminOnly = apperr.New(apperr.KindForbidden, "admin required")

// requireAdmin returns the caller when they act as an admin.
func requireAdmin(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	caller := middleware.IdentityFromContext(r.Context())
	if !caller.HasRole(account.RoleAdmin, account.RoleMasterAdmin) {
		writeError(w, r, errAdminOnly)
		return identity.Identity{}, false
	}
	return caller, true
}

func (s *Server) paymentModeDeps() orchestrators.PaymentModeDeps {
	return orchestrators.PaymentModeDeps{Gateway: s.gateway, Audit: s.stores.Audit, Logger: s.logger, Now: s.now}
}

// handleGetPaymentMode handles GET /api/admin/payment-mode
func (s *Server) handleGetPaymentMode(w http.ResponseWriter, r *http.Request) {
	mode, err := orchestrators.ExecuteGetPaymentMode(r.Context(), middleware.IdentityFromContext(r.Context()), s.paymentModeDeps())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mode": string(mode)})
}

type paymentModeRequest struct {
	Mode string `json:"mode"`
}

// handleSetPaymentMode handles PUT /api/admin/payment-mode
func (s *Server) handleSetPaymentMode(w http.ResponseWriter, r *http.Request) {
	var req paymentModeRequest
	if err := strictDecode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	mode := payments.Mode(req.Mode)
	if err := orchestrators.ExecuteSetPaymentMode(r.Context(), middleware.IdentityFromContext(r.Context()), mode, s.paymentModeDeps()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mode": string(mode)})
}

// handleAdminOutbox handles GET /api/admin/outbox?status=&type=&limit=
// Failed entries are listed by default; they are the ones awaiting manual
// reconciliation.
func (s *Server) handleAdminOutbox(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	q := r.URL.Query()
	limit := listutil.ParseLimit(q, listutil.OutboxLimits)
	status := q.Get("status")
	var (
		entries []outbox.Entry
		err     error
	)
	switch status {
	case "", outbox.StatusFailed:
		entries, err = s.stores.Outbox.List(r.Context(), q.Get("type"), outbox.StatusFailed, limit)
	case outbox.StatusPending:
		entries, err = s.stores.Outbox.ListPending(r.Context(), limit)
	case "all":
		entries, err = s.stores.Outbox.List(r.Context(), q.Get("type"), "", limit)
	default:
		entries, err = s.stores.Outbox.List(r.Context(), q.Get("type"), status, limit)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleAdminOutboxAction handles POST /api/admin/outbox/{id}/{action}
// where action is retry or abandon.
func (s *Server) handleAdminOutboxAction(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	if err := caller.CanWrite(); err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	var (
		entry outbox.Entry
		err   error
	)
	switch r.PathValue("action") {
	case "retry":
		entry, err = s.outbox.ProcessSingle(r.Context(), id)
	case "abandon":
		entry, err = s.outbox.AbandonEntry(r.Context(), id)
	default:
		writeError(w, r, apperr.New(apperr.KindValidation, "action must be retry or abandon"))
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.logger.Info().Str("outbox_id", id).Str("action", r.PathValue("action")).Str("actor_id", caller.TrueUserID).
		Str("status", entry.Status).Msg("outbox_manual_action")
	writeJSON(w, http.StatusOK, entry)
}

// handleAdminAudit handles GET /api/admin/audit?category=&action=&actor_id=&resource_id=&limit=
func (s *Server) handleAdminAudit(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	q := r.URL.Query()
	f := listutil.ParseFilters(q, []string{"category", "action", "actor_id", "resource_id"})
	filter := auditStore.Filter{
		Category:   auditDomain.Category(f["category"]),
		Action:     auditDomain.Action(f["action"]),
		ActorID:    f["actor_id"],
		ResourceID: f["resource_id"],
	}
	events, err := s.stores.Audit.List(r.Context(), filter, listutil.ParseLimit(q, listutil.AuditLimits))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
