package authgate

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/joeshaw/envdecode"
)

// Settings is the process configuration, loaded from the environment.
type Settings struct {
	SigningKey     string        `env:"AUTHGATE_SIGNING_KEY"`
	TokenTTL       time.Duration `env:"AUTHGATE_TOKEN_TTL,default=1h"`
	ActionTokenTTL time.Duration `env:"AUTHGATE_ACTION_TOKEN_TTL,default=15m"`
	Issuer         string        `env:"AUTHGATE_ISSUER"`
	Audience       []string      `env:"AUTHGATE_AUDIENCE"`
	AuthScheme     string        `env:"AUTHGATE_AUTH_SCHEME,default=Bearer"`
	ContextKey     string        `env:"AUTHGATE_CONTEXT_KEY,default=user"`

	HTTPAddr      string `env:"AUTHGATE_HTTP_ADDR,default=:8080"`
	HTTPTransport string `env:"AUTHGATE_HTTP_TRANSPORT,default=fiber"`
	BaseURL       string `env:"AUTHGATE_BASE_URL,default=http://localhost:8080"`
	ErrorRedirect string `env:"AUTHGATE_ERROR_REDIRECT"`

	DatabaseDriver string `env:"AUTHGATE_DB_DRIVER,default=sqlite"`
	DatabaseDSN    string `env:"AUTHGATE_DB_DSN,default=file:authgate.db?cache=shared"`

	RedisAddr    string        `env:"AUTHGATE_REDIS_ADDR"`
	UserCacheTTL time.Duration `env:"AUTHGATE_USER_CACHE_TTL,default=5m"`

	StateEncryptionKey string        `env:"AUTHGATE_STATE_KEY"`
	StateHMACKey       string        `env:"AUTHGATE_STATE_HMAC_KEY"`
	StateTTL           time.Duration `env:"AUTHGATE_STATE_TTL,default=10m"`

	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleIssuer       string `env:"GOOGLE_ISSUER,default=https://accounts.google.com"`

	EmailLookupTimeout time.Duration `env:"AUTHGATE_EMAIL_LOOKUP_TIMEOUT,default=5s"`
	EmailLookupRetries uint64        `env:"AUTHGATE_EMAIL_LOOKUP_RETRIES,default=2"`

	Debug bool `env:"AUTHGATE_DEBUG"`
}

var _ Config = (*Settings)(nil)

// LoadSettings decodes Settings from the environment and validates them.
func LoadSettings() (*Settings, error) {
	var s Settings
	if err := envdecode.Decode(&s); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the settings. Social login keys are only required when a
// provider is configured.
func (s Settings) Validate() error {
	stateKeyRules := []validation.Rule{validation.Length(32, 32)}
	if s.SocialLoginEnabled() {
		stateKeyRules = append(stateKeyRules, validation.Required)
	}

	return validation.ValidateStruct(&s,
		validation.Field(&s.SigningKey, validation.Required, validation.Length(32, 0)),
		validation.Field(&s.TokenTTL, validation.Required),
		validation.Field(&s.AuthScheme, validation.Required),
		validation.Field(&s.DatabaseDriver, validation.Required, validation.In("sqlite", "postgres")),
		validation.Field(&s.HTTPTransport, validation.In("fiber", "chi")),
		validation.Field(&s.StateEncryptionKey, stateKeyRules...),
		validation.Field(&s.StateHMACKey, validation.Length(16, 0)),
	)
}

// Summary is a loggable view of the settings without secrets.
func (s Settings) Summary() map[string]any {
	return map[string]any{
		"http_addr":      s.HTTPAddr,
		"http_transport": s.HTTPTransport,
		"base_url":       s.BaseURL,
		"db_driver":      s.DatabaseDriver,
		"redis":          s.RedisAddr != "",
		"user_cache_ttl": s.UserCacheTTL.String(),
		"token_ttl":      s.TokenTTL.String(),
		"issuer":         s.Issuer,
		"audience":       s.Audience,
		"auth_scheme":    s.AuthScheme,
		"github_enabled": s.GitHubClientID != "",
		"google_enabled": s.GoogleClientID != "",
		"error_redirect": s.ErrorRedirect,
	}
}

// SocialLoginEnabled reports whether any external provider is configured.
func (s Settings) SocialLoginEnabled() bool {
	return s.GitHubClientID != "" || s.GoogleClientID != ""
}

func (s Settings) GetSigningKey() string {
	return s.SigningKey
}

func (s Settings) GetTokenTTL() time.Duration {
	return s.TokenTTL
}

func (s Settings) GetActionTokenTTL() time.Duration {
	return s.ActionTokenTTL
}

func (s Settings) GetIssuer() string {
	return s.Issuer
}

func (s Settings) GetAudience() []string {
	return s.Audience
}

func (s Settings) GetAuthScheme() string {
	return s.AuthScheme
}

func (s Settings) GetContextKey() string {
	if s.ContextKey == "" {
		return DefaultContextKey
	}
	return s.ContextKey
}
