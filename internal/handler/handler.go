// Package handler exposes the authentication service over a thin JSON HTTP
// surface. Routing and encoding live here; every decision about identity
// and trust is delegated to the auth service.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/authd/internal/auth"
	"github.com/dmitrymomot/authd/pkg/logger"
)

// Handler wires the auth service into HTTP routes.
type Handler struct {
	svc    *auth.Service
	log    *slog.Logger
	health func(ctx context.Context) error
}

// Option configures a Handler.
type Option func(*Handler)

// WithHealthcheck adds a dependency probe to GET /healthz.
func WithHealthcheck(fn func(ctx context.Context) error) Option {
	return func(h *Handler) { h.health = fn }
}

// New creates the HTTP handler for the auth service.
func New(svc *auth.Service, log *slog.Logger, opts ...Option) *Handler {
	if log == nil {
		log = logger.NewDiscard()
	}
	h := &Handler{svc: svc, log: log}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router builds the chi router with all routes mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Get("/google", h.google)
		r.Get("/google/callback", h.googleCallback)
		r.Get("/me", h.me)
	})
	r.Get("/healthz", h.healthz)

	return r
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	token, err := h.svc.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Token: token})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	token, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func (h *Handler) google(w http.ResponseWriter, r *http.Request) {
	url, err := h.svc.AuthURL(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (h *Handler) googleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	token, err := h.svc.FederatedLogin(r.Context(), code, state)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		h.respondError(w, r, auth.ErrUnauthenticated)
		return
	}

	user, err := h.svc.Introspect(r.Context(), token)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]userResponse{"user": {
		ID:    user.ID.String(),
		Email: user.Email,
		Name:  user.Name,
	}})
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.log.ErrorContext(r.Context(), "healthcheck failed", logger.Error(err), logger.Component("handler"))
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed json body", auth.ErrValidation)
	}
	return nil
}

func bearerToken(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}
