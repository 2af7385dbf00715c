package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/authd/internal/auth"
	"github.com/dmitrymomot/authd/pkg/logger"
	"github.com/dmitrymomot/authd/pkg/oidc"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondError maps service errors onto HTTP statuses. Expected failures get
// a stable public message; anything else becomes a generic 500 with the full
// detail kept in server-side logs only.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, auth.ErrEmailTaken):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "email already in use"})
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid credentials"})
	case errors.Is(err, auth.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthenticated"})
	case errors.Is(err, auth.ErrInvalidState):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid oauth state"})
	case errors.Is(err, oidc.ErrProvider):
		// Transient upstream failure; the raw provider payload stays out of
		// the response.
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "identity provider unavailable"})
	case errors.Is(err, auth.ErrAuthenticationFailed):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "authentication failed"})
	default:
		h.log.ErrorContext(r.Context(), "unhandled request error",
			slog.String("path", r.URL.Path),
			logger.Error(err),
			logger.Component("handler"),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
