// Package api exposes the login, provider callback and protected resource
// endpoints. RegisterRoutes serves them through go-router; RegisterHTTP
// mounts the same handlers on a chi router.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	authgate "github.com/goliatone/go-authgate"
	"github.com/goliatone/go-authgate/social"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

var errBodyTooLarge = errors.New("request body too large")

// PasswordLogin signs in local accounts.
type PasswordLogin interface {
	Login(ctx context.Context, req authgate.LoginRequest) (*authgate.LoginSuccess, error)
	ActionTokenFor(le *authgate.LinkError) string
}

// ProviderFlow runs the provider redirect and callback legs.
type ProviderFlow interface {
	Providers() []string
	BeginAuth(ctx context.Context, registration string, opts ...social.BeginAuthOption) (*social.AuthRedirect, error)
	CompleteAuth(ctx context.Context, registration, code, state string) (*social.AuthResult, error)
}

type Config struct {
	// ErrorRedirect, when set, receives failed callbacks as a redirect with
	// error, authProvider and actionToken query parameters instead of a
	// JSON envelope.
	ErrorRedirect string
	// MaxBodyBytes bounds login request bodies. Default 64KiB.
	MaxBodyBytes int64
}

type Handler struct {
	logins PasswordLogin
	flow   ProviderFlow
	config Config
	logger authgate.Logger
}

type Option func(*Handler)

func WithLogger(logger authgate.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithProviderFlow enables the /auth/oauth2 routes.
func WithProviderFlow(flow ProviderFlow) Option {
	return func(h *Handler) { h.flow = flow }
}

func NewHandler(logins PasswordLogin, config Config, opts ...Option) *Handler {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 64 << 10
	}
	h := &Handler{
		logins: logins,
		config: config,
		logger: noopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// reply is a route outcome before a transport writes it. A non empty
// location is sent as a redirect.
type reply struct {
	status   int
	body     any
	location string
}

func jsonReply(status int, body any) reply {
	return reply{status: status, body: body}
}

func errorReply(resp *authgate.APIErrorResponse) reply {
	return reply{status: resp.StatusCode, body: resp}
}

func redirectReply(location string) reply {
	return reply{status: http.StatusFound, location: location}
}

func (h *Handler) login(ctx context.Context, path string, body []byte, readErr error) reply {
	var req authgate.LoginRequest
	if readErr != nil {
		h.logger.Debug("login body rejected", "path", path, "error", readErr)
		return errorReply(authgate.NewErrorResponse(authgate.CodeValidationFailed, path, "request body must be a JSON object"))
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return errorReply(authgate.NewErrorResponse(authgate.CodeValidationFailed, path, "request body must be a JSON object"))
		}
	}

	success, err := h.logins.Login(ctx, req)
	if err != nil {
		return h.fail(path, err)
	}
	return jsonReply(http.StatusOK, success)
}

func (h *Handler) providers() reply {
	return jsonReply(http.StatusOK, map[string]any{"providers": h.flow.Providers()})
}

func (h *Handler) beginAuth(ctx context.Context, path, registration, redirectURL string) reply {
	redirect, err := h.flow.BeginAuth(ctx, registration, social.WithRedirectURL(redirectURL))
	if err != nil {
		return h.fail(path, err)
	}
	return redirectReply(redirect.URL)
}

// callback completes the provider leg. query reads the callback query
// parameters.
func (h *Handler) callback(ctx context.Context, path, registration string, query func(string) string) reply {
	if errCode := query("error"); errCode != "" {
		h.logger.Info("provider returned an error", "provider", registration, "error", errCode)
		resp := authgate.NewErrorResponse(authgate.CodeAccessDenied, path, query("error_description"))
		resp.AuthProvider = registration
		return h.callbackError(resp)
	}

	var missing []authgate.FieldError
	for _, name := range []string{"code", "state"} {
		if query(name) == "" {
			missing = append(missing, authgate.FieldError{Field: name, Message: "cannot be blank"})
		}
	}
	if len(missing) > 0 {
		return h.callbackError(authgate.NewErrorResponse(authgate.CodeValidationFailed, path).WithFieldErrors(missing...))
	}

	result, err := h.flow.CompleteAuth(ctx, registration, query("code"), query("state"))
	if err != nil {
		resp := authgate.ErrorResponseFromError(err, path)
		if le, ok := authgate.AsLinkError(err); ok {
			resp.WithActionToken(h.logins.ActionTokenFor(le))
		} else {
			h.logFailure(path, err, resp)
		}
		return h.callbackError(resp)
	}

	return jsonReply(http.StatusOK, result.Login)
}

// Me is the body of GET /api/me.
type Me struct {
	UserID      int64               `json:"userId"`
	Username    string              `json:"username"`
	Provider    authgate.ProviderID `json:"identityProvider"`
	Authorities []string            `json:"authorities"`
}

func (h *Handler) me(principal *authgate.Principal) reply {
	return jsonReply(http.StatusOK, Me{
		UserID:      principal.UserID,
		Username:    principal.Username(),
		Provider:    principal.Provider,
		Authorities: principal.Authorities,
	})
}

func (h *Handler) admin(principal *authgate.Principal) reply {
	return jsonReply(http.StatusOK, map[string]string{
		"status":   "ok",
		"username": principal.Username(),
	})
}

func (h *Handler) callbackError(resp *authgate.APIErrorResponse) reply {
	if h.config.ErrorRedirect == "" {
		return errorReply(resp)
	}

	target := appendQueryParam(h.config.ErrorRedirect, "error", resp.ErrorCode)
	if resp.AuthProvider != "" {
		target = appendQueryParam(target, "authProvider", resp.AuthProvider)
	}
	if resp.ActionToken != "" {
		target = appendQueryParam(target, "actionToken", resp.ActionToken)
	}
	return redirectReply(target)
}

func (h *Handler) fail(path string, err error) reply {
	resp := authgate.ErrorResponseFromError(err, path)
	h.logFailure(path, err, resp)
	return errorReply(resp)
}

func (h *Handler) logFailure(path string, err error, resp *authgate.APIErrorResponse) {
	args := []any{"path", path, "code", resp.ErrorCode, "error", err}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && len(richErr.Metadata) > 0 {
		args = append(args, "details", print.MaybePrettyJSON(richErr.Metadata))
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		h.logger.Error("request failed", args...)
		return
	}
	h.logger.Debug("request refused", args...)
}

func appendQueryParam(rawURL, key, value string) string {
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err == nil {
		query := parsed.Query()
		query.Set(key, value)
		parsed.RawQuery = query.Encode()
		return parsed.String()
	}

	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + url.QueryEscape(key) + "=" + url.QueryEscape(value)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
