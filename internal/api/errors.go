package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"skysurvey/pkg/fleet"
	"skysurvey/pkg/mission"
	"skysurvey/pkg/store"
)

// writeError maps domain error kinds to HTTP status codes. Unknown errors
// become a 500 with a generic body so internals never leak to clients.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal server error"

	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
		msg = err.Error()
	case errors.Is(err, mission.ErrValidation):
		status = http.StatusBadRequest
		msg = err.Error()
	case errors.Is(err, mission.ErrIllegalState):
		status = http.StatusConflict
		msg = err.Error()
	case errors.Is(err, fleet.ErrNoDroneAvailable):
		status = http.StatusConflict
		msg = err.Error()
	default:
		slog.Error("request failed", "error", err)
	}

	respondJSON(w, status, map[string]string{"error": msg})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
