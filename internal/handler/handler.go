package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/duende/internal/calendar"
	"github.com/dukerupert/duende/internal/model"
)

const maxBodyBytes = 1 << 20

func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

type conflictResponse struct {
	Error                string                `json:"error"`
	ConflictingType      model.EventType       `json:"conflicting_type"`
	RequiresConfirmation bool                  `json:"requires_confirmation"`
	Conflicts            []model.CalendarEvent `json:"conflicts"`
}

// writeError maps scheduler errors onto status codes. Store failures are
// reported as a generic 503 and logged with their cause.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var ce *calendar.ConflictError
	switch {
	case errors.As(err, &ce):
		writeJSON(w, http.StatusConflict, conflictResponse{
			Error:                errors.Unwrap(ce).Error(),
			ConflictingType:      ce.Verdict.ConflictingType,
			RequiresConfirmation: ce.Verdict.Policy() == calendar.PolicyConfirm,
			Conflicts:            ce.Verdict.Conflicts,
		})
	case errors.Is(err, calendar.ErrInvalidEvent):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, calendar.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "event not found")
	case errors.Is(err, calendar.ErrStoreUnavailable):
		logger.Error("event store", "error", err)
		writeMessage(w, http.StatusServiceUnavailable, "failed to save event")
	default:
		logger.Error("unexpected error", "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}
