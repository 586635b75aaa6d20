package authgate

import (
	"context"
	"errors"
	"strings"
)

// LinkVerifier decides whether an external identity may sign in to an
// existing local account. It never creates or modifies accounts.
type LinkVerifier struct {
	users  UserStore
	logger Logger
}

// LinkVerifierOption configures a LinkVerifier.
type LinkVerifierOption func(*LinkVerifier)

// WithLinkVerifierLogger sets the logger.
func WithLinkVerifierLogger(logger Logger) LinkVerifierOption {
	return func(v *LinkVerifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// NewLinkVerifier creates a LinkVerifier backed by users.
func NewLinkVerifier(users UserStore, opts ...LinkVerifierOption) *LinkVerifier {
	v := &LinkVerifier{
		users:  users,
		logger: defaultLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// Verify returns the local account for email when expected is registered
// on it. resolvingProvider is the client registration id and is only used
// for error reporting.
//
// Checks run in order and the first failure wins: an empty email gives
// email_missing, an unknown email gives user_not_registered and a missing
// provider registration gives auth_provider_not_linked. Store failures other
// than not found are returned unchanged.
func (v *LinkVerifier) Verify(ctx context.Context, email, resolvingProvider string, expected ProviderID) (*User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		v.logger.Info("external login rejected", "reason", CodeEmailMissing.Code, "provider", resolvingProvider)
		return nil, errEmailMissing(resolvingProvider)
	}

	user, err := v.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			v.logger.Info("external login rejected", "reason", CodeUserNotRegistered.Code, "provider", resolvingProvider)
			return nil, errUserNotRegistered(resolvingProvider, email)
		}
		return nil, err
	}
	if user == nil {
		return nil, errUserNotRegistered(resolvingProvider, email)
	}

	if !user.HasProvider(expected) {
		v.logger.Info("external login rejected",
			"reason", CodeAuthProviderNotLinked.Code,
			"provider", resolvingProvider,
			"user_id", user.ID,
		)
		return nil, errProviderNotLinked(resolvingProvider, email)
	}

	return user, nil
}
