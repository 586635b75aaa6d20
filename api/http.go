package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	authgate "github.com/goliatone/go-authgate"
	"github.com/goliatone/go-authgate/middleware/jwtware"
)

// RegisterHTTP mounts the routes on a chi router. authn authenticates
// bearer tokens for the /api group.
func (h *Handler) RegisterHTTP(r chi.Router, authn *authgate.RequestAuthenticator) {
	r.Post("/auth/login", h.handleLogin)

	if h.flow != nil {
		r.Get("/auth/providers", func(w http.ResponseWriter, r *http.Request) {
			h.write(w, r, h.providers())
		})
		r.Get("/auth/oauth2/{provider}", h.handleBeginAuth)
		r.Get("/auth/oauth2/{provider}/callback", h.handleCallback)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(jwtware.NewHTTP(authn, jwtware.HTTPConfig{Logger: h.logger}))
		r.With(jwtware.RequireAuthenticatedHTTP()).Get("/me", func(w http.ResponseWriter, r *http.Request) {
			principal, _ := authgate.PrincipalFromContext(r.Context())
			h.write(w, r, h.me(principal))
		})
		r.With(jwtware.RequireAuthorityHTTP(authgate.RolePrefix+authgate.RoleAdmin)).Get("/admin", func(w http.ResponseWriter, r *http.Request) {
			principal, _ := authgate.PrincipalFromContext(r.Context())
			h.write(w, r, h.admin(principal))
		})
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.config.MaxBodyBytes))
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		err = errBodyTooLarge
	}
	h.write(w, r, h.login(r.Context(), r.URL.Path, body, err))
}

func (h *Handler) handleBeginAuth(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, h.beginAuth(r.Context(), r.URL.Path, chi.URLParam(r, "provider"), r.URL.Query().Get("redirect_url")))
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	h.write(w, r, h.callback(r.Context(), r.URL.Path, chi.URLParam(r, "provider"), query.Get))
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, rep reply) {
	if rep.location != "" {
		http.Redirect(w, r, rep.location, rep.status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rep.status)
	if err := json.NewEncoder(w).Encode(rep.body); err != nil {
		h.logger.Warn("failed to write response", "error", err)
	}
}
