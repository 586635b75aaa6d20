package social

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	authgate "github.com/goliatone/go-authgate"
)

// LoginCompleter reconciles a resolved identity with a local account and
// signs the access token. *authgate.Authenticator implements it.
type LoginCompleter interface {
	CompleteExternalLogin(ctx context.Context, identity authgate.ExternalIdentity) (*authgate.Principal, *authgate.LoginSuccess, error)
}

// Authenticator orchestrates provider login flows.
type Authenticator struct {
	providers    map[string]Provider
	stateManager StateManager
	logins       LoginCompleter
	logger       authgate.Logger
	config       Config
	now          func() time.Time
}

// Config configures the social authenticator.
type Config struct {
	DefaultRedirectURL string
	StateTTL           time.Duration
}

// Option configures the social authenticator.
type Option func(*Authenticator)

// NewAuthenticator creates a new social authenticator.
func NewAuthenticator(logins LoginCompleter, states StateManager, config Config, opts ...Option) *Authenticator {
	if config.StateTTL <= 0 {
		config.StateTTL = 10 * time.Minute
	}

	sa := &Authenticator{
		providers:    make(map[string]Provider),
		stateManager: states,
		logins:       logins,
		logger:       defaultLogger(),
		config:       config,
		now:          time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sa)
		}
	}

	return sa
}

// WithProvider registers a provider under its registration id.
func WithProvider(provider Provider) Option {
	return func(sa *Authenticator) {
		if provider == nil {
			return
		}
		sa.providers[provider.Name()] = provider
	}
}

// WithLogger sets the logger.
func WithLogger(logger authgate.Logger) Option {
	return func(sa *Authenticator) {
		if logger != nil {
			sa.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(sa *Authenticator) {
		if now != nil {
			sa.now = now
		}
	}
}

// Providers lists the registration ids of configured providers.
func (sa *Authenticator) Providers() []string {
	names := make([]string, 0, len(sa.providers))
	for name := range sa.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BeginAuth starts the OAuth flow for a provider.
func (sa *Authenticator) BeginAuth(ctx context.Context, registration string, opts ...BeginAuthOption) (*AuthRedirect, error) {
	provider, ok := sa.providers[registration]
	if !ok {
		return nil, providerNotFound(registration)
	}
	if sa.stateManager == nil {
		return nil, ErrInvalidState
	}

	cfg := &beginAuthConfig{redirectURL: sa.config.DefaultRedirectURL}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	codeVerifier, err := generateCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}

	now := sa.now()
	state := &OAuthState{
		Registration: registration,
		CodeVerifier: codeVerifier,
		RedirectURL:  cfg.redirectURL,
		IssuedAt:     now.Unix(),
		ExpiresAt:    now.Add(sa.config.StateTTL).Unix(),
	}

	stateToken, err := sa.stateManager.Encode(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}

	authURL := provider.AuthCodeURL(stateToken,
		WithPKCE(computeCodeChallenge(codeVerifier), "S256"),
		WithNonce(state.Nonce),
	)

	return &AuthRedirect{
		URL:          authURL,
		State:        stateToken,
		Registration: registration,
	}, nil
}

// CompleteAuth finishes the OAuth flow after callback. Link verification
// failures are returned as *authgate.LinkError.
func (sa *Authenticator) CompleteAuth(ctx context.Context, registration, code, stateToken string) (*AuthResult, error) {
	if sa.stateManager == nil {
		return nil, ErrInvalidState
	}

	state, err := sa.stateManager.Decode(stateToken)
	if err != nil {
		return nil, err
	}
	if state.Registration != registration {
		sa.logger.Warn("oauth state provider mismatch", "expected", state.Registration, "got", registration)
		return nil, ErrInvalidState
	}

	provider, ok := sa.providers[registration]
	if !ok {
		return nil, providerNotFound(registration)
	}

	token, err := provider.Exchange(ctx, code,
		WithCodeVerifier(state.CodeVerifier),
		WithExpectedNonce(state.Nonce),
	)
	if err != nil {
		return nil, WrapProviderError(ErrTokenExchangeFailed, registration, "exchange", err)
	}

	identity, err := provider.Identity(ctx, token)
	if err != nil {
		return nil, err
	}
	if identity.Registration == "" {
		identity.Registration = registration
	}

	principal, login, err := sa.logins.CompleteExternalLogin(ctx, identity)
	if err != nil {
		return nil, err
	}

	sa.logger.Info("external login completed", "provider", registration, "user_id", principal.UserID)

	return &AuthResult{
		Principal:    principal,
		Login:        login,
		Identity:     identity,
		Registration: registration,
		RedirectURL:  state.RedirectURL,
	}, nil
}

// AuthRedirect contains the authorization URL for redirecting users.
type AuthRedirect struct {
	URL          string
	State        string
	Registration string
}

// AuthResult contains the result of a successful authentication.
type AuthResult struct {
	Principal    *authgate.Principal
	Login        *authgate.LoginSuccess
	Identity     authgate.ExternalIdentity
	Registration string
	RedirectURL  string
}

// BeginAuthOption configures the auth initiation.
type BeginAuthOption func(*beginAuthConfig)

type beginAuthConfig struct {
	redirectURL string
}

// WithRedirectURL sets the post-auth redirect URL.
func WithRedirectURL(url string) BeginAuthOption {
	return func(c *beginAuthConfig) {
		if url != "" {
			c.redirectURL = url
		}
	}
}

func providerNotFound(registration string) error {
	clone := ErrProviderNotFound.Clone()
	if clone == nil {
		return ErrProviderNotFound
	}
	clone.WithMetadata(map[string]any{"provider": registration})
	return clone
}

func defaultLogger() authgate.Logger {
	return slog.Default().With("component", "authgate.social")
}
