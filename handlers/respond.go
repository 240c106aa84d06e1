package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"remindbot/models"
	"remindbot/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, category, msg string) {
	writeJSON(w, status, models.ErrorResponse{Category: category, Error: msg})
}

func invalidInput(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, models.ErrorInvalidInput, msg)
}

func permissionDenied(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusForbidden, models.ErrorPermissionDenied, msg)
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, models.ErrorNotFound, msg)
}

func internalError(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusInternalServerError, models.ErrorInternal, msg)
}

// storeError maps store sentinels onto error responses.
func storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrReminderNotFound):
		notFound(w, "reminder not found")
	case errors.Is(err, store.ErrReminderInFlight):
		writeError(w, http.StatusConflict, models.ErrorInvalidInput, "reminder is being delivered")
	case errors.Is(err, store.ErrInvalidReminder), errors.Is(err, store.ErrUnknownAuthority):
		invalidInput(w, err.Error())
	default:
		internalError(w, "internal error")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(v)
}
