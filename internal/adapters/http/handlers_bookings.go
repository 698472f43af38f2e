package web

import (
	"net/http"

	"studio/internal/adapters/http/middleware"
	"studio/internal/application/orchestrators"
)

// handleListBookings handles GET /api/bookings?athlete_id=&date=
func (s *Server) handleListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := orchestrators.ExecuteListBookings(r.Context(), orchestrators.ListBookingsInput{
		Caller:    middleware.IdentityFromContext(r.Context()),
		AthleteID: q.Get("athlete_id"),
		Date:      q.Get("date"),
	}, s.stores.Bookings)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type staffBookingRequest struct {
	AthleteID        string `json:"athlete_id"`
	ServiceID        string `json:"service_id"`
	SlotID           string `json:"slot_id"`
	AthletePackageID string `json:"athlete_package_id"`
	Notes            string `json:"notes"`
}

// handleStaffBooking handles POST /api/bookings/staff
func (s *Server) handleStaffBooking(w http.ResponseWriter, r *http.Request) {
	var req staffBookingRequest
	if err := strictDecode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := orchestrators.ExecuteStaffBooking(r.Context(), orchestrators.StaffBookingInput{
		Caller:           middleware.IdentityFromContext(r.Context()),
		AthleteID:        req.AthleteID,
		ServiceID:        req.ServiceID,
		SlotID:           req.SlotID,
		AthletePackageID: req.AthletePackageID,
		Notes:            req.Notes,
	}, orchestrators.StaffBookingDeps{
		Accounts:    s.stores.Accounts,
		Catalog:     s.stores.Catalog,
		Packages:    s.stores.Catalog,
		Slots:       s.stores.Slots,
		Bookings:    s.stores.Bookings,
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
	writeJSON(w, http.StatusCreated, b)
}

type bookingStatusRequest struct {
	Status string `json:"status"`
}

// handleBookingStatus handles PATCH /api/bookings/{id}/status
func (s *Server) handleBookingStatus(w http.ResponseWriter, r *http.Request) {
	var req bookingStatusRequest
	if err := strictDecode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := orchestrators.ExecuteUpdateBookingStatus(r.Context(), orchestrators.UpdateBookingStatusInput{
		Caller:    middleware.IdentityFromContext(r.Context()),
		BookingID: r.PathValue("id"),
		Status:    req.Status,
	}, orchestrators.UpdateBookingStatusDeps{
		Bookings: s.stores.Bookings,
		Audit:    s.stores.Audit,
		Logger:   s.logger,
		Now:      s.now,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleDeleteBooking handles DELETE /api/bookings/{id}?reason=
// POST: 200 when deleted, 202 when a review request was filed instead
func (s *Server) handleDeleteBooking(w http.ResponseWriter, r *http.Request) {
	res, err := orchestrators.ExecuteDeleteSession(r.Context(), orchestrators.DeleteSessionInput{
		Caller:    middleware.IdentityFromContext(r.Context()),
		BookingID: r.PathValue("id"),
		Reason:    r.URL.Query().Get("reason"),
	}, orchestrators.DeleteSessionDeps{
		Bookings:   s.stores.Bookings,
		Accounts:   s.stores.Accounts,
		Requests:   s.stores.Requests,
		Audit:      s.stores.Audit,
		Logger:     s.logger,
		GenerateID: s.newID,
		Now:        s.now,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if !res.Deleted {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}
