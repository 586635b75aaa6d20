package social

import (
	"context"
	"time"

	authgate "github.com/goliatone/go-authgate"
)

// Provider is an OAuth2 or OIDC client registration.
type Provider interface {
	// Name returns the client registration id (e.g., "github", "google").
	Name() string

	// Family returns the identity provider family principals are tagged with.
	Family() authgate.ProviderID

	// AuthCodeURL returns the URL to redirect users for authorization.
	AuthCodeURL(state string, opts ...AuthCodeOption) string

	// Exchange trades an authorization code for a token.
	Exchange(ctx context.Context, code string, opts ...ExchangeOption) (*Token, error)

	// Identity resolves the external identity behind token.
	Identity(ctx context.Context, token *Token) (authgate.ExternalIdentity, error)
}

// AuthCodeOption configures the authorization URL.
type AuthCodeOption func(*AuthCodeConfig)

// WithScopes sets additional scopes for the auth request.
func WithScopes(scopes ...string) AuthCodeOption {
	return func(c *AuthCodeConfig) {
		c.Scopes = append(c.Scopes, scopes...)
	}
}

// WithPKCE enables PKCE with the given code challenge.
func WithPKCE(codeChallenge, method string) AuthCodeOption {
	return func(c *AuthCodeConfig) {
		c.CodeChallenge = codeChallenge
		c.CodeChallengeMethod = method
	}
}

// WithNonce sets the OIDC nonce parameter.
func WithNonce(nonce string) AuthCodeOption {
	return func(c *AuthCodeConfig) {
		c.Nonce = nonce
	}
}

// ExchangeOption configures the token exchange.
type ExchangeOption func(*ExchangeConfig)

// WithCodeVerifier sets the PKCE code verifier for token exchange.
func WithCodeVerifier(verifier string) ExchangeOption {
	return func(c *ExchangeConfig) {
		c.CodeVerifier = verifier
	}
}

// WithExpectedNonce sets the nonce the ID token must carry.
func WithExpectedNonce(nonce string) ExchangeOption {
	return func(c *ExchangeConfig) {
		c.Nonce = nonce
	}
}

// AuthCodeConfig is the applied form of AuthCodeOption values.
type AuthCodeConfig struct {
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod string
	Nonce               string
}

// ExchangeConfig is the applied form of ExchangeOption values.
type ExchangeConfig struct {
	CodeVerifier string
	Nonce        string
}

// ApplyAuthCodeOptions applies AuthCodeOption values and returns a normalized config.
func ApplyAuthCodeOptions(scopes []string, opts ...AuthCodeOption) AuthCodeConfig {
	cfg := AuthCodeConfig{Scopes: append([]string(nil), scopes...)}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// ApplyExchangeOptions applies ExchangeOption values and returns a normalized config.
func ApplyExchangeOptions(opts ...ExchangeOption) ExchangeConfig {
	cfg := ExchangeConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// Token represents an OAuth2 token response. The ID token fields are only
// set by OIDC providers, after the ID token was verified.
type Token struct {
	AccessToken   string
	TokenType     string
	RefreshToken  string
	ExpiresAt     time.Time
	RawIDToken    string
	IDTokenClaims map[string]any
}

// Profile is the provider user profile before email resolution.
type Profile struct {
	Registration   string
	ProviderUserID string
	Email          string
	Name           string
	Username       string
	AvatarURL      string
	Attributes     map[string]any

	IDTokenClaims map[string]any
	UserInfo      map[string]any
	RawIDToken    string
}
