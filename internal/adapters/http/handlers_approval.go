package web

import (
	"net/http"
	"strconv"

	"studio/internal/adapters/http/middleware"
	"studio/internal/application/orchestrators"
)

type actionRequestBody struct {
	ActionType  string `json:"action_type"`
	TargetTable string `json:"target_table"`
	TargetID    string `json:"target_id"`
	Reason      string `json:"reason"`
}

// handleSubmitActionRequest handles POST /api/action-requests
func (s *Server) handleSubmitActionRequest(w http.ResponseWriter, r *http.Request) {
	var req actionRequestBody
	if err := strictDecode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := orchestrators.ExecuteSubmitActionRequest(r.Context(), orchestrators.SubmitActionRequestInput{
		Caller:      middleware.IdentityFromContext(r.Context()),
		ActionType:  req.ActionType,
		TargetTable: req.TargetTable,
		TargetID:    req.TargetID,
		Reason:      req.Reason,
	}, s.submitDeps())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleListActionRequests handles GET /api/action-requests?status=&limit=
func (s *Server) handleListActionRequests(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := orchestrators.ExecuteListActionRequests(r.Context(), orchestrators.ListActionRequestsInput{
		Caller: middleware.IdentityFromContext(r.Context()),
		Status: r.URL.Query().Get("status"),
		Limit:  limit,
	}, s.stores.Requests)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type reviewRequestBody struct {
	Decision string `json:"decision"`
	Execute  bool   `json:"execute"`
}

// handleReviewActionRequest handles PATCH /api/action-requests/{id}
// POST: 409 when the request was already reviewed
func (s *Server) handleReviewActionRequest(w http.ResponseWriter, r *http.Request) {
	var req reviewRequestBody
	if err := strictDecode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := orchestrators.ExecuteReviewActionRequest(r.Context(), orchestrators.ReviewActionRequestInput{
		Caller:    middleware.IdentityFromContext(r.Context()),
		RequestID: r.PathValue("id"),
		Decision:  req.Decision,
		Execute:   req.Execute,
	}, orchestrators.ReviewActionRequestDeps{
		Requests:  s.stores.Requests,
		Executors: orchestrators.DefaultExecutors(s.stores.Bookings, s.stores.Records),
		Audit:     s.stores.Audit,
		Logger:    s.logger,
		Now:       s.now,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
