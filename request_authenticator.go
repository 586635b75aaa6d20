package authgate

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// AuthState is the outcome of authenticating one request.
type AuthState int

const (
	// StateNoToken means no bearer credential was presented.
	StateNoToken AuthState = iota
	// StateAlreadyAuthenticated means a principal was already attached.
	StateAlreadyAuthenticated
	// StateUnauthenticatedWithToken is transient while the token is verified.
	StateUnauthenticatedWithToken
	// StateAuthenticated means the token verified and a principal was attached.
	StateAuthenticated
	// StateRejected means the token failed verification.
	StateRejected
)

func (s AuthState) String() string {
	switch s {
	case StateNoToken:
		return "no_token"
	case StateAlreadyAuthenticated:
		return "already_authenticated"
	case StateUnauthenticatedWithToken:
		return "unauthenticated_with_token"
	case StateAuthenticated:
		return "authenticated"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Decision is the result of Authenticate. Context is the request context
// to continue with; Response is set only when the request was rejected.
type Decision struct {
	State     AuthState
	Principal *Principal
	Context   context.Context
	Response  *APIErrorResponse
	Err       error
}

// Continue reports whether the downstream handler should run.
func (d Decision) Continue() bool {
	return d.State != StateRejected
}

// TokenVerifier verifies access tokens. *TokenService implements it.
type TokenVerifier interface {
	Verify(token string) (TokenClaims, error)
}

// RequestAuthenticator turns the Authorization header of a request into a
// principal on the request context.
type RequestAuthenticator struct {
	verifier   TokenVerifier
	authScheme string
	logger     Logger
	sink       ActivitySink
}

// RequestAuthenticatorOption configures a RequestAuthenticator.
type RequestAuthenticatorOption func(*RequestAuthenticator)

// WithAuthScheme sets the expected Authorization scheme, "Bearer" by default.
func WithAuthScheme(scheme string) RequestAuthenticatorOption {
	return func(a *RequestAuthenticator) {
		if scheme != "" {
			a.authScheme = scheme
		}
	}
}

// WithRequestLogger sets the logger.
func WithRequestLogger(logger Logger) RequestAuthenticatorOption {
	return func(a *RequestAuthenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithRequestActivitySink records rejected tokens.
func WithRequestActivitySink(sink ActivitySink) RequestAuthenticatorOption {
	return func(a *RequestAuthenticator) {
		a.sink = activitySinkOrDiscard(sink)
	}
}

// NewRequestAuthenticator creates a RequestAuthenticator.
func NewRequestAuthenticator(verifier TokenVerifier, opts ...RequestAuthenticatorOption) *RequestAuthenticator {
	a := &RequestAuthenticator{
		verifier:   verifier,
		authScheme: "Bearer",
		logger:     defaultLogger(),
		sink:       discardActivity,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Authenticate decides the authentication state of a request.
//
// A request without a bearer header, or one that already carries a
// principal, passes through untouched. A verified token yields a derived
// context holding the principal. A token that fails verification is
// rejected with an INVALID_CREDENTIALS envelope. Errors that are not
// classified token failures are returned to the caller as is.
func (a *RequestAuthenticator) Authenticate(ctx context.Context, authorization, path string) (Decision, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	token, ok := a.bearerToken(authorization)
	if !ok {
		return Decision{State: StateNoToken, Context: ctx}, nil
	}

	if existing, ok := PrincipalFromContext(ctx); ok {
		return Decision{State: StateAlreadyAuthenticated, Principal: existing, Context: ctx}, nil
	}

	claims, err := a.verifier.Verify(token)
	if err != nil {
		if !isClassifiedAuthError(err) {
			return Decision{State: StateUnauthenticatedWithToken, Context: ctx}, err
		}

		a.logger.Info("bearer token rejected", "path", path, "reason", TokenErrorCode(err))
		_ = a.sink.Record(ctx, ActivityEvent{
			EventType:  ActivityEventTokenRejected,
			OccurredAt: time.Now(),
			Metadata: map[string]any{
				"path":   path,
				"reason": TokenErrorCode(err),
			},
		})

		return Decision{
			State:    StateRejected,
			Context:  ctx,
			Response: NewErrorResponse(CodeInvalidCredentials, path, rejectionMessage(err)),
			Err:      err,
		}, nil
	}

	principal := FromTokenClaims(claims)
	return Decision{
		State:     StateAuthenticated,
		Principal: principal,
		Context:   WithPrincipal(ctx, principal),
	}, nil
}

func (a *RequestAuthenticator) bearerToken(header string) (string, bool) {
	l := len(a.authScheme)
	if len(header) <= l || header[l] != ' ' || !strings.EqualFold(header[:l], a.authScheme) {
		return "", false
	}
	return strings.TrimSpace(header[l+1:]), true
}

func isClassifiedAuthError(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.Category == goerrors.CategoryAuth
}

func rejectionMessage(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Message != "" {
		return richErr.Message
	}
	return CodeInvalidCredentials.DefaultMessage
}
