package web

import (
	"net/http"

	"studio/internal/adapters/http/middleware"
	"studio/internal/application/orchestrators"
)

func (s *Server) impersonationDeps() orchestrators.ImpersonationDeps {
	return orchestrators.ImpersonationDeps{
		Accounts:    s.stores.Accounts,
		Simulations: s.stores.Simulations,
		Audit:       s.stores.Audit,
		Logger:      s.logger,
		Now:         s.now,
	}
}

type startImpersonationRequest struct {
	TargetUserID string `json:"target_user_id"`
}

// handleStartImpersonation handles POST /api/impersonation
// POST: The signed overlay cookie and the display banner cookie are set
func (s *Server) handleStartImpersonation(w http.ResponseWriter, r *http.Request) {
	var req startImpersonationRequest
	if err := strictDecode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	caller := middleware.IdentityFromContext(r.Context())
	imp, err := orchestrators.ExecuteStartImpersonation(r.Context(), caller, req.TargetUserID, s.impersonationDeps())
	if err != nil {
		writeError(w, r, err)
		return
	}
	token, err := s.tokens.IssueImpersonation(caller.TrueUserID, imp)
	if err != nil {
		writeError(w, r, err)
		return
	}
	middleware.SetOverlayCookie(w, middleware.ImpersonationCookieName, token, imp.ExpiresAt, s.cfg.SecureCookies)
	middleware.SetBannerCookie(w, "Viewing as "+imp.TargetName+" (read-only)", imp.ExpiresAt, s.cfg.SecureCookies)
	writeJSON(w, http.StatusOK, map[string]any{
		"target_user_id": imp.TargetUserID,
		"target_name":    imp.TargetName,
		"target_role":    imp.TargetRole,
		"expires_at":     imp.ExpiresAt,
	})
}

// handleEndImpersonation handles DELETE /api/impersonation
func (s *Server) handleEndImpersonation(w http.ResponseWriter, r *http.Request) {
	if err := orchestrators.ExecuteEndImpersonation(r.Context(), middleware.IdentityFromContext(r.Context()), s.impersonationDeps()); err != nil {
		writeError(w, r, err)
		return
	}
	middleware.ClearOverlayCookies(w, s.cfg.SecureCookies)
	w.WriteHeader(http.StatusNoContent)
}

type startSimulationRequest struct {
	Role string `json:"role"`
}

// handleStartSimulation handles POST /api/simulation
func (s *Server) handleStartSimulation(w http.ResponseWriter, r *http.Request) {
	var req startSimulationRequest
	if err := strictDecode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	caller := middleware.IdentityFromContext(r.Context())
	sim, err := orchestrators.ExecuteStartSimulation(r.Context(), caller, req.Role, orchestrators.StartSimulationDeps{
		Simulations: s.stores.Simulations,
		Audit:       s.stores.Audit,
		Logger:      s.logger,
		GenerateID:  s.newID,
		Now:         s.now,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	token, err := s.tokens.IssueSimulation(caller.TrueUserID, sim)
	if err != nil {
		writeError(w, r, err)
		return
	}
	middleware.SetOverlayCookie(w, middleware.SimulationCookieName, token, sim.ExpiresAt, s.cfg.SecureCookies)
	middleware.SetBannerCookie(w, "Simulating "+sim.Role+"; changes are undone when you stop", sim.ExpiresAt, s.cfg.SecureCookies)
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sim.SessionID,
		"role":       sim.Role,
		"expires_at": sim.ExpiresAt,
	})
}

// handleEndSimulation handles DELETE /api/simulation
// POST: Simulated rows are reversed and the overlay cookies cleared
func (s *Server) handleEndSimulation(w http.ResponseWriter, r *http.Request) {
	res, err := orchestrators.ExecuteEndSimulation(r.Context(), middleware.IdentityFromContext(r.Context()), s.reversalDeps())
	if err != nil {
		writeError(w, r, err)
		return
	}
	middleware.ClearOverlayCookies(w, s.cfg.SecureCookies)
	writeJSON(w, http.StatusOK, res)
}
