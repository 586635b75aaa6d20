package jwtware

import (
	"net/http"

	authgate "github.com/goliatone/go-authgate"
)

// HTTPConfig configures the net/http middleware.
type HTTPConfig struct {
	Logger authgate.Logger
	// ErrorHandler renders refused requests. Defaults to writing the JSON
	// envelope.
	ErrorHandler func(w http.ResponseWriter, r *http.Request, resp *authgate.APIErrorResponse)
}

func (c HTTPConfig) withDefaults() HTTPConfig {
	if c.Logger == nil {
		c.Logger = noopLogger{}
	}
	if c.ErrorHandler == nil {
		c.ErrorHandler = func(w http.ResponseWriter, r *http.Request, resp *authgate.APIErrorResponse) {
			_ = resp.Write(w)
		}
	}
	return c
}

// NewHTTP returns net/http middleware with the same behaviour as New. The
// principal is carried on the request context. Errors that are not token
// failures become a 500 envelope since net/http has no error return.
func NewHTTP(authenticator *authgate.RequestAuthenticator, config ...HTTPConfig) func(http.Handler) http.Handler {
	if authenticator == nil {
		panic("AUTH: JWT middleware configuration: Authenticator is required.")
	}
	cfg := firstHTTP(config).withDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := authenticator.Authenticate(r.Context(), r.Header.Get("Authorization"), r.URL.Path)
			if err != nil {
				cfg.Logger.Error("request authentication failed", "path", r.URL.Path, "error", err)
				cfg.ErrorHandler(w, r, authgate.ErrorResponseFromError(err, r.URL.Path))
				return
			}

			if !decision.Continue() {
				cfg.ErrorHandler(w, r, decision.Response)
				return
			}

			if decision.State == authgate.StateAuthenticated {
				r = r.WithContext(decision.Context)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuthenticatedHTTP is the net/http form of RequireAuthenticated.
func RequireAuthenticatedHTTP(config ...HTTPConfig) func(http.Handler) http.Handler {
	cfg := firstHTTP(config).withDefaults()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := authgate.PrincipalFromContext(r.Context()); !ok {
				cfg.ErrorHandler(w, r, EntryPoint(r.URL.Path).Response)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuthorityHTTP is the net/http form of RequireAuthority.
func RequireAuthorityHTTP(authority string, config ...HTTPConfig) func(http.Handler) http.Handler {
	cfg := firstHTTP(config).withDefaults()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := authgate.PrincipalFromContext(r.Context())
			if !ok {
				cfg.ErrorHandler(w, r, EntryPoint(r.URL.Path).Response)
				return
			}
			if !principal.HasAuthority(authority) {
				cfg.Logger.Info("access denied", "path", r.URL.Path, "authority", authority, "user", principal.Username())
				cfg.ErrorHandler(w, r, AccessDenied(r.URL.Path, authority).Response)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func firstHTTP(config []HTTPConfig) HTTPConfig {
	if len(config) > 0 {
		return config[0]
	}
	return HTTPConfig{}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
