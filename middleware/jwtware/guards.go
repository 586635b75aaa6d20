package jwtware

import (
	authgate "github.com/goliatone/go-authgate"
	"github.com/goliatone/go-router"
)

// EntryPoint builds the 401 envelope sent when a protected route has no
// principal.
func EntryPoint(path string) *Rejection {
	return &Rejection{
		Response: authgate.NewErrorResponse(authgate.CodeInvalidCredentials, path, "Authentication required"),
		Err:      ErrNoPrincipal,
	}
}

// AccessDenied builds the 403 envelope sent when the principal lacks an
// authority.
func AccessDenied(path, authority string) *Rejection {
	return &Rejection{
		Response: authgate.NewErrorResponse(authgate.CodeAccessDenied, path),
		Err:      &MissingAuthorityError{Authority: authority},
	}
}

// MissingAuthorityError names the authority a principal did not hold.
type MissingAuthorityError struct {
	Authority string
}

func (e *MissingAuthorityError) Error() string {
	return "missing authority " + e.Authority
}

// GuardConfig configures RequireAuthenticated and RequireAuthority.
type GuardConfig struct {
	ContextKey   string
	ErrorHandler router.ErrorHandler
}

func (g GuardConfig) withDefaults() GuardConfig {
	if g.ContextKey == "" {
		g.ContextKey = authgate.DefaultContextKey
	}
	if g.ErrorHandler == nil {
		g.ErrorHandler = DefaultErrorHandler
	}
	return g
}

// RequireAuthenticated refuses requests without a principal through the
// entry point.
func RequireAuthenticated(config ...GuardConfig) router.MiddlewareFunc {
	cfg := firstGuard(config).withDefaults()
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if _, ok := principalOf(ctx, cfg.ContextKey); !ok {
				return cfg.ErrorHandler(ctx, EntryPoint(ctx.Path()))
			}
			return next(ctx)
		}
	}
}

// RequireAuthority refuses requests whose principal lacks authority. A
// missing principal goes through the entry point instead.
func RequireAuthority(authority string, config ...GuardConfig) router.MiddlewareFunc {
	cfg := firstGuard(config).withDefaults()
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			principal, ok := principalOf(ctx, cfg.ContextKey)
			if !ok {
				return cfg.ErrorHandler(ctx, EntryPoint(ctx.Path()))
			}
			if !principal.HasAuthority(authority) {
				return cfg.ErrorHandler(ctx, AccessDenied(ctx.Path(), authority))
			}
			return next(ctx)
		}
	}
}

func principalOf(ctx router.Context, key string) (*authgate.Principal, bool) {
	if p, ok := authgate.GetRouterPrincipal(ctx, key); ok {
		return p, true
	}
	return authgate.PrincipalFromContext(ctx.Context())
}

func firstGuard(config []GuardConfig) GuardConfig {
	if len(config) > 0 {
		return config[0]
	}
	return GuardConfig{}
}
