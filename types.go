package authgate

import (
	"context"
	"log/slog"
	"time"
)

// Logger is the logging surface used across the package. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds token and transport options.
type Config interface {
	GetSigningKey() string
	GetTokenTTL() time.Duration
	GetActionTokenTTL() time.Duration
	GetIssuer() string
	GetAudience() []string
	GetAuthScheme() string
	GetContextKey() string
}

// UserStore looks up local accounts. Implementations return ErrUserNotFound
// (possibly wrapped) when nothing matches.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
}

// CredentialVerifier checks a password login. identifier is an email or a
// username.
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, identifier, password string) (*User, error)
}

// PasswordAuthenticator hashes and compares passwords.
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

func defaultLogger() Logger {
	return slog.Default().With("component", "authgate")
}
