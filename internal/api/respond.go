package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/access"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/identity"
	"github.com/hackgods/clinic-scheduling/internal/records"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// handleError maps domain errors to HTTP responses. Anything unrecognised is
// logged and reported as a 500 without leaking its text.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		forbidden *access.ForbiddenError
		conflict  *appointment.ConflictError
		invalid   *appointment.InvalidSlotError
		state     *appointment.StateError
	)

	switch {
	case errors.As(err, &forbidden):
		writeError(w, http.StatusForbidden, "forbidden", forbidden.Reason)
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())
	case errors.As(err, &invalid):
		writeError(w, http.StatusUnprocessableEntity, "invalid_slot", err.Error())
	case errors.As(err, &state):
		writeError(w, http.StatusConflict, "invalid_state", state.Error())

	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, records.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "record_not_found", err.Error())
	case errors.Is(err, identity.ErrActorNotFound):
		writeError(w, http.StatusNotFound, "actor_not_found", err.Error())
	case errors.Is(err, availability.ErrWindowNotFound):
		writeError(w, http.StatusNotFound, "window_not_found", err.Error())
	case errors.Is(err, availability.ErrExceptionNotFound):
		writeError(w, http.StatusNotFound, "exception_not_found", err.Error())

	case errors.Is(err, identity.ErrAlreadyApproved):
		writeError(w, http.StatusConflict, "already_approved", err.Error())
	case errors.Is(err, identity.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken", err.Error())
	case errors.Is(err, availability.ErrWindowOverlap):
		writeError(w, http.StatusConflict, "window_overlap", err.Error())

	case errors.Is(err, appointment.ErrInvalidRequest),
		errors.Is(err, records.ErrInvalidRecord),
		errors.Is(err, availability.ErrInvalidWindow),
		errors.Is(err, availability.ErrInvalidRange),
		errors.Is(err, identity.ErrInvalidActor):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())

	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, identity.ErrActorNotFound)
}
