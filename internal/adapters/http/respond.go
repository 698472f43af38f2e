package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"studio/internal/adapters/http/middleware"
	"studio/internal/domain/apperr"
)

var errBadJSON = apperr.New(apperr.KindValidation, "request body is not valid JSON")

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindCapacityExceeded, apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindExternalService:
		return http.StatusBadGateway
	case apperr.KindValidation:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeError responds with the classified error. Unclassified errors are
// logged and answered with a generic body so internals never leak.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Kind == apperr.KindInternal {
		hlog.FromRequest(r).Error().Err(err).Msg("internal_error")
		middleware.WriteError(w, http.StatusInternalServerError, string(apperr.KindInternal), "internal server error")
		return
	}
	status := statusFor(ae.Kind)
	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Str("kind", string(ae.Kind)).Msg("request_failed")
	}
	middleware.WriteError(w, status, string(ae.Kind), ae.Reason)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// strictDecode decodes JSON from the request body, rejecting unknown fields.
func strictDecode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Wrap(apperr.KindValidation, errBadJSON.Reason, err)
	}
	return nil
}
