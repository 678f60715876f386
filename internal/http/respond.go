package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/trips/internal/lifecycle"
)

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

// writeError maps the lifecycle taxonomy onto HTTP statuses. Anything
// unclassified is a 500 and gets logged with its cause; classified
// errors surface their message to the caller.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, lifecycle.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, lifecycle.ErrUnauthorized), errors.Is(err, lifecycle.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, lifecycle.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, lifecycle.ErrIllegalTransition),
		errors.Is(err, lifecycle.ErrActiveRideExists),
		errors.Is(err, lifecycle.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, lifecycle.ErrValidation):
		status = http.StatusBadRequest
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
		return
	}
	s.writeJSON(w, status, errorBody{Error: err.Error()})
}
