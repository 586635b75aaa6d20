package api

import (
	authgate "github.com/goliatone/go-authgate"
	"github.com/goliatone/go-authgate/middleware/jwtware"
	"github.com/goliatone/go-router"
)

// RouteConfig configures RegisterRoutes.
type RouteConfig struct {
	// Authenticator is required. It authenticates bearer tokens for the
	// /api group.
	Authenticator *authgate.RequestAuthenticator
	// ContextKey is the router locals key the principal is stored under.
	ContextKey string
	// ErrorHandler renders refused requests. Defaults to
	// jwtware.DefaultErrorHandler.
	ErrorHandler router.ErrorHandler
	// ValidationListeners run after a token verified.
	ValidationListeners []jwtware.ValidationListener
}

// RegisterRoutes mounts the handler on a go-router router.
func RegisterRoutes[T any](r router.Router[T], h *Handler, cfg RouteConfig) {
	if cfg.ContextKey == "" {
		cfg.ContextKey = authgate.DefaultContextKey
	}
	rt := &routes{h: h, contextKey: cfg.ContextKey}

	r.Post("/auth/login", rt.login)

	if h.flow != nil {
		r.Get("/auth/providers", rt.providers)
		r.Get("/auth/oauth2/:provider", rt.beginAuth)
		r.Get("/auth/oauth2/:provider/callback", rt.callback)
	}

	guard := jwtware.GuardConfig{ContextKey: cfg.ContextKey, ErrorHandler: cfg.ErrorHandler}

	protected := r.Group("/api")
	protected.Use(jwtware.New(jwtware.Config{
		Authenticator:       cfg.Authenticator,
		ContextKey:          cfg.ContextKey,
		ErrorHandler:        cfg.ErrorHandler,
		ValidationListeners: cfg.ValidationListeners,
	}))
	protected.Get("/me", rt.me, jwtware.RequireAuthenticated(guard))
	protected.Get("/admin", rt.admin, jwtware.RequireAuthority(authgate.RolePrefix+authgate.RoleAdmin, guard))
}

type routes struct {
	h          *Handler
	contextKey string
}

func (rt *routes) login(ctx router.Context) error {
	body := ctx.Body()
	var err error
	if int64(len(body)) > rt.h.config.MaxBodyBytes {
		err = errBodyTooLarge
	}
	return send(ctx, rt.h.login(ctx.Context(), ctx.Path(), body, err))
}

func (rt *routes) providers(ctx router.Context) error {
	return send(ctx, rt.h.providers())
}

func (rt *routes) beginAuth(ctx router.Context) error {
	return send(ctx, rt.h.beginAuth(ctx.Context(), ctx.Path(), ctx.Param("provider"), ctx.Query("redirect_url", "")))
}

func (rt *routes) callback(ctx router.Context) error {
	query := func(name string) string { return ctx.Query(name, "") }
	return send(ctx, rt.h.callback(ctx.Context(), ctx.Path(), ctx.Param("provider"), query))
}

func (rt *routes) me(ctx router.Context) error {
	return send(ctx, rt.h.me(rt.principal(ctx)))
}

func (rt *routes) admin(ctx router.Context) error {
	return send(ctx, rt.h.admin(rt.principal(ctx)))
}

// principal is only called behind a guard, which guarantees one is set.
func (rt *routes) principal(ctx router.Context) *authgate.Principal {
	if p, ok := authgate.GetRouterPrincipal(ctx, rt.contextKey); ok {
		return p
	}
	p, _ := authgate.PrincipalFromContext(ctx.Context())
	return p
}

func send(ctx router.Context, rep reply) error {
	if rep.location != "" {
		return ctx.Redirect(rep.location, rep.status)
	}
	return ctx.JSON(rep.status, rep.body)
}
