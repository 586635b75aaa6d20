package social

import (
	"context"
	"errors"
	"strings"
	"time"

	authgate "github.com/goliatone/go-authgate"
	"github.com/sethvargo/go-retry"
)

// Email is one entry of a provider email listing.
type Email struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// EmailLookup lists the email addresses of the account behind accessToken.
type EmailLookup interface {
	ListEmails(ctx context.Context, accessToken string) ([]Email, error)
}

// EmailLookupFunc adapts a function to EmailLookup.
type EmailLookupFunc func(ctx context.Context, accessToken string) ([]Email, error)

// ListEmails implements EmailLookup.
func (f EmailLookupFunc) ListEmails(ctx context.Context, accessToken string) ([]Email, error) {
	return f(ctx, accessToken)
}

// PrimaryVerifiedEmail returns the first address flagged both primary and
// verified, or "".
func PrimaryVerifiedEmail(emails []Email) string {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	return ""
}

// RetryPolicy bounds an email lookup.
type RetryPolicy struct {
	Timeout    time.Duration
	MaxRetries uint64
	Base       time.Duration
}

// DefaultRetryPolicy is a 5s attempt timeout with two retries starting at 200ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Timeout:    5 * time.Second,
		MaxRetries: 2,
		Base:       200 * time.Millisecond,
	}
}

type retryingLookup struct {
	next   EmailLookup
	policy RetryPolicy
}

// WithRetry wraps next with a per attempt timeout and bounded exponential
// retry. Only failures reporting Temporary() are retried.
func WithRetry(next EmailLookup, policy RetryPolicy) EmailLookup {
	def := DefaultRetryPolicy()
	if policy.Timeout <= 0 {
		policy.Timeout = def.Timeout
	}
	if policy.Base <= 0 {
		policy.Base = def.Base
	}
	return &retryingLookup{next: next, policy: policy}
}

func (r *retryingLookup) ListEmails(ctx context.Context, accessToken string) ([]Email, error) {
	var emails []Email
	backoff := retry.WithMaxRetries(r.policy.MaxRetries, retry.NewExponential(r.policy.Base))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, r.policy.Timeout)
		defer cancel()

		out, err := r.next.ListEmails(attemptCtx, accessToken)
		if err != nil {
			if isTemporary(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		emails = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return emails, nil
}

type temporary interface {
	Temporary() bool
}

func isTemporary(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t temporary
	return errors.As(err, &t) && t.Temporary()
}

// OAuth2Resolver resolves the email of plain OAuth2 logins. An inline
// email on the profile wins; otherwise the email listing is consulted once.
type OAuth2Resolver struct {
	family authgate.ProviderID
	lookup EmailLookup
}

// NewOAuth2Resolver creates an OAuth2Resolver for family. lookup may be nil
// when the provider always returns an email inline.
func NewOAuth2Resolver(family authgate.ProviderID, lookup EmailLookup) *OAuth2Resolver {
	return &OAuth2Resolver{family: family, lookup: lookup}
}

// Resolve builds the external identity of profile. An empty email is not
// an error here; lookup failures return ErrEmailLookupFailed.
func (r *OAuth2Resolver) Resolve(ctx context.Context, profile *Profile, accessToken string) (authgate.ExternalIdentity, error) {
	if profile == nil {
		profile = &Profile{}
	}

	attributes := copyAttributes(profile.Attributes)
	email := strings.TrimSpace(profile.Email)
	if email == "" {
		if inline, ok := attributes["email"].(string); ok {
			email = strings.TrimSpace(inline)
		}
	}

	if email == "" && r.lookup != nil {
		emails, err := r.lookup.ListEmails(ctx, accessToken)
		if err != nil {
			return authgate.ExternalIdentity{}, WrapProviderError(ErrEmailLookupFailed, profile.Registration, "emails", err)
		}
		email = PrimaryVerifiedEmail(emails)
	}

	attributes["email"] = email

	return authgate.ExternalIdentity{
		Provider:     r.family,
		Registration: profile.Registration,
		Email:        email,
		Attributes:   attributes,
	}, nil
}

// OIDCResolver resolves OIDC logins from the ID token claims. It makes no
// outbound calls.
type OIDCResolver struct {
	family authgate.ProviderID
}

// NewOIDCResolver creates an OIDCResolver for family.
func NewOIDCResolver(family authgate.ProviderID) *OIDCResolver {
	return &OIDCResolver{family: family}
}

// Resolve reads the email from the ID token claims, falling back to the
// userinfo claims.
func (r *OIDCResolver) Resolve(profile *Profile) authgate.ExternalIdentity {
	if profile == nil {
		profile = &Profile{}
	}

	email := claimString(profile.IDTokenClaims, "email")
	if email == "" {
		email = claimString(profile.UserInfo, "email")
	}
	if email == "" {
		email = strings.TrimSpace(profile.Email)
	}

	attributes := copyAttributes(profile.IDTokenClaims)
	for k, v := range profile.UserInfo {
		if _, ok := attributes[k]; !ok {
			attributes[k] = v
		}
	}

	return authgate.ExternalIdentity{
		Provider:     r.family,
		Registration: profile.Registration,
		Email:        email,
		Attributes:   attributes,
		OIDC: &authgate.OIDCExtras{
			IDTokenClaims: profile.IDTokenClaims,
			UserInfo:      profile.UserInfo,
			RawIDToken:    profile.RawIDToken,
		},
	}
}

func claimString(claims map[string]any, key string) string {
	if claims == nil {
		return ""
	}
	s, _ := claims[key].(string)
	return strings.TrimSpace(s)
}

func copyAttributes(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}
