package web

import (
	"net/http"

	"studio/internal/adapters/http/middleware"
	"studio/internal/adapters/session"
	"studio/internal/application/orchestrators"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleLogin handles POST /api/login
// POST: On success a login session exists and its cookie is set
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := strictDecode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := orchestrators.ExecuteLogin(r.Context(), orchestrators.LoginInput{Email: req.Email, Password: req.Password},
		orchestrators.LoginDeps{AccountStore: s.stores.Accounts, Audit: s.stores.Audit, Logger: s.logger, Now: s.now})
	if err != nil {
		writeError(w, r, err)
		return
	}
	token, err := s.sessions.Create(r.Context(), session.Session{AccountID: res.AccountID, Email: res.Email, Role: res.Role, CreatedAt: s.now()})
	if err != nil {
		writeError(w, r, err)
		return
	}
	middleware.SetSessionCookie(w, token, s.cfg.SecureCookies)
	// A fresh login never inherits overlays from an earlier one.
	middleware.ClearOverlayCookies(w, s.cfg.SecureCookies)
	writeJSON(w, http.StatusOK, res)
}

// handleLogout handles POST /api/logout
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		if err := s.sessions.Delete(r.Context(), cookie.Value); err != nil {
			writeError(w, r, err)
			return
		}
	}
	middleware.ClearSessionCookie(w, s.cfg.SecureCookies)
	middleware.ClearOverlayCookies(w, s.cfg.SecureCookies)
	w.WriteHeader(http.StatusNoContent)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// handleChangePassword handles POST /api/account/password
// Overlays never change whose password is updated.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := strictDecode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	caller := middleware.IdentityFromContext(r.Context())
	err := orchestrators.ExecuteChangePassword(r.Context(), orchestrators.ChangePasswordInput{
		AccountID:       caller.TrueUserID,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	}, orchestrators.ChangePasswordDeps{AccountStore: s.stores.Accounts, Audit: s.stores.Audit, Logger: s.logger, Now: s.now})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
