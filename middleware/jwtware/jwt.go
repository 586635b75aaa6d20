package jwtware

import (
	"errors"
	"fmt"

	authgate "github.com/goliatone/go-authgate"
	"github.com/goliatone/go-router"
)

// ErrNoPrincipal is reported by the entry point when a protected route is
// reached without an authenticated principal.
var ErrNoPrincipal = errors.New("authentication required")

// Rejection is handed to the ErrorHandler when a request is refused. It
// carries the envelope that should be rendered.
type Rejection struct {
	Response *authgate.APIErrorResponse
	Err      error
}

func (r *Rejection) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %v", r.Response.ErrorCode, r.Err)
	}
	return r.Response.ErrorCode
}

func (r *Rejection) Unwrap() error { return r.Err }

// ValidationListener runs after a token verified and before the principal
// is stored. Returning an error refuses the request.
type ValidationListener func(ctx router.Context, principal *authgate.Principal) error

type Config struct {
	// Authenticator is required.
	Authenticator *authgate.RequestAuthenticator

	Filter         func(router.Context) bool
	SuccessHandler router.HandlerFunc
	ErrorHandler   router.ErrorHandler

	// ContextKey is the locals key the principal is stored under.
	ContextKey string

	ValidationListeners []ValidationListener
}

// New returns go-router middleware that authenticates bearer tokens.
//
// Requests without a token continue anonymously; pair with
// RequireAuthenticated on routes that need a principal. A verified token
// stores the principal both in the router locals and on the request
// context. A rejected token is answered by the ErrorHandler and the
// downstream handler does not run. Errors that are not token failures are
// returned to the router untouched.
func New(config ...Config) router.MiddlewareFunc {
	cfg := GetDefaultConfig(config...)
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return next(ctx)
			}

			decision, err := cfg.Authenticator.Authenticate(ctx.Context(), ctx.Header(router.HeaderAuthorization), ctx.Path())
			if err != nil {
				return err
			}

			switch decision.State {
			case authgate.StateRejected:
				return cfg.ErrorHandler(ctx, &Rejection{Response: decision.Response, Err: decision.Err})
			case authgate.StateNoToken:
				return next(ctx)
			}

			if err := cfg.runValidationListeners(ctx, decision.Principal); err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			ctx.Locals(cfg.ContextKey, decision.Principal)
			if decision.State == authgate.StateAuthenticated {
				ctx.SetContext(decision.Context)
			}

			if cfg.SuccessHandler != nil {
				if err := cfg.SuccessHandler(ctx); err != nil {
					return err
				}
			}
			return next(ctx)
		}
	}
}

// GetDefaultConfig fills in defaults. It panics without an Authenticator.
func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Authenticator == nil {
		panic("AUTH: JWT middleware configuration: Authenticator is required.")
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = DefaultErrorHandler
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = authgate.DefaultContextKey
	}

	return cfg
}

// DefaultErrorHandler renders the envelope of a Rejection, or maps any other
// error through authgate.ErrorResponseFromError.
func DefaultErrorHandler(ctx router.Context, err error) error {
	resp := ResponseFor(err, ctx.Path())
	return ctx.JSON(resp.StatusCode, resp)
}

// ResponseFor returns the envelope for err.
func ResponseFor(err error, path string) *authgate.APIErrorResponse {
	var rejection *Rejection
	if errors.As(err, &rejection) && rejection.Response != nil {
		return rejection.Response
	}
	return authgate.ErrorResponseFromError(err, path)
}

func (cfg *Config) runValidationListeners(ctx router.Context, principal *authgate.Principal) error {
	for _, listener := range cfg.ValidationListeners {
		if listener == nil {
			continue
		}
		if err := listener(ctx, principal); err != nil {
			return err
		}
	}
	return nil
}
