package social

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	authgate "github.com/goliatone/go-authgate"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{Timeout: time.Second, MaxRetries: 2, Base: time.Millisecond}
}

func TestPrimaryVerifiedEmail(t *testing.T) {
	tests := []struct {
		name   string
		emails []Email
		want   string
	}{
		{
			name: "first primary and verified wins",
			emails: []Email{
				{Email: "a@x.com", Primary: false, Verified: true},
				{Email: "b@x.com", Primary: true, Verified: true},
				{Email: "c@x.com", Primary: true, Verified: true},
			},
			want: "b@x.com",
		},
		{
			name: "primary but unverified is skipped",
			emails: []Email{
				{Email: "a@x.com", Primary: true, Verified: false},
				{Email: "b@x.com", Primary: false, Verified: true},
			},
			want: "",
		},
		{
			name: "empty listing",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PrimaryVerifiedEmail(tt.emails))
		})
	}
}

func TestOAuth2Resolver_InlineEmailWins(t *testing.T) {
	var calls int32
	lookup := EmailLookupFunc(func(ctx context.Context, accessToken string) ([]Email, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("should not be called")
	})

	resolver := NewOAuth2Resolver(authgate.ProviderGitHub, lookup)
	identity, err := resolver.Resolve(context.Background(), &Profile{
		Registration: "github",
		Email:        "inline@x.com",
	}, "token")

	require.NoError(t, err)
	assert.Equal(t, "inline@x.com", identity.Email)
	assert.Equal(t, authgate.ProviderGitHub, identity.Provider)
	assert.Equal(t, "github", identity.Registration)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestOAuth2Resolver_LooksUpEmail(t *testing.T) {
	var gotToken string
	lookup := EmailLookupFunc(func(ctx context.Context, accessToken string) ([]Email, error) {
		gotToken = accessToken
		return []Email{
			{Email: "a@x.com", Primary: false, Verified: true},
			{Email: "b@x.com", Primary: true, Verified: true},
		}, nil
	})

	resolver := NewOAuth2Resolver(authgate.ProviderGitHub, lookup)
	identity, err := resolver.Resolve(context.Background(), &Profile{
		Registration: "github",
		Attributes:   map[string]any{"login": "octo"},
	}, "access-token")

	require.NoError(t, err)
	assert.Equal(t, "access-token", gotToken)
	assert.Equal(t, "b@x.com", identity.Email)
	assert.Equal(t, "b@x.com", identity.Attributes["email"])
	assert.Equal(t, "octo", identity.Attributes["login"])
}

func TestOAuth2Resolver_NoUsableEmailIsNotAnError(t *testing.T) {
	lookup := EmailLookupFunc(func(ctx context.Context, accessToken string) ([]Email, error) {
		return []Email{{Email: "a@x.com", Primary: true, Verified: false}}, nil
	})

	identity, err := NewOAuth2Resolver(authgate.ProviderGitHub, lookup).
		Resolve(context.Background(), &Profile{Registration: "github"}, "token")

	require.NoError(t, err)
	assert.Empty(t, identity.Email)
}

func TestOAuth2Resolver_LookupFailure(t *testing.T) {
	lookup := EmailLookupFunc(func(ctx context.Context, accessToken string) ([]Email, error) {
		return nil, &ProviderError{Provider: "github", Operation: "emails", Status: http.StatusUnauthorized}
	})

	_, err := NewOAuth2Resolver(authgate.ProviderGitHub, lookup).
		Resolve(context.Background(), &Profile{Registration: "github"}, "token")

	require.Error(t, err)
	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, TextCodeEmailLookupFail, richErr.TextCode)
	assert.Equal(t, http.StatusUnauthorized, richErr.Metadata["status"])
}

func TestWithRetry_RetriesServerErrors(t *testing.T) {
	var calls int32
	lookup := WithRetry(EmailLookupFunc(func(ctx context.Context, accessToken string) ([]Email, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, &ProviderError{Provider: "github", Status: http.StatusBadGateway}
		}
		return []Email{{Email: "a@x.com", Primary: true, Verified: true}}, nil
	}), fastPolicy())

	emails, err := lookup.ListEmails(context.Background(), "token")
	require.NoError(t, err)
	assert.Len(t, emails, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestWithRetry_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	lookup := WithRetry(EmailLookupFunc(func(ctx context.Context, accessToken string) ([]Email, error) {
		atomic.AddInt32(&calls, 1)
		return nil, &ProviderError{Provider: "github", Status: http.StatusTooManyRequests}
	}), fastPolicy())

	_, err := lookup.ListEmails(context.Background(), "token")
	require.Error(t, err)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusTooManyRequests, perr.Status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestWithRetry_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	lookup := WithRetry(EmailLookupFunc(func(ctx context.Context, accessToken string) ([]Email, error) {
		atomic.AddInt32(&calls, 1)
		return nil, &ProviderError{Provider: "github", Status: http.StatusForbidden}
	}), fastPolicy())

	_, err := lookup.ListEmails(context.Background(), "token")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestWithRetry_AttemptTimeout(t *testing.T) {
	var calls int32
	lookup := WithRetry(EmailLookupFunc(func(ctx context.Context, accessToken string) ([]Email, error) {
		atomic.AddInt32(&calls, 1)
		<-ctx.Done()
		return nil, ctx.Err()
	}), RetryPolicy{Timeout: 10 * time.Millisecond, MaxRetries: 1, Base: time.Millisecond})

	_, err := lookup.ListEmails(context.Background(), "token")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOIDCResolver(t *testing.T) {
	resolver := NewOIDCResolver(authgate.ProviderGoogle)

	t.Run("email from id token claims", func(t *testing.T) {
		identity := resolver.Resolve(&Profile{
			Registration:  "google",
			IDTokenClaims: map[string]any{"sub": "123", "email": "g@x.com"},
			UserInfo:      map[string]any{"email": "other@x.com", "picture": "p.png"},
			RawIDToken:    "raw",
		})

		assert.Equal(t, "g@x.com", identity.Email)
		assert.Equal(t, authgate.ProviderGoogle, identity.Provider)
		require.NotNil(t, identity.OIDC)
		assert.Equal(t, "raw", identity.OIDC.RawIDToken)
		assert.Equal(t, "p.png", identity.Attributes["picture"])
		assert.Equal(t, "g@x.com", identity.Attributes["email"])
	})

	t.Run("falls back to userinfo", func(t *testing.T) {
		identity := resolver.Resolve(&Profile{
			Registration:  "google",
			IDTokenClaims: map[string]any{"sub": "123"},
			UserInfo:      map[string]any{"email": "u@x.com"},
		})
		assert.Equal(t, "u@x.com", identity.Email)
	})

	t.Run("no email", func(t *testing.T) {
		identity := resolver.Resolve(&Profile{Registration: "google"})
		assert.Empty(t, identity.Email)
	})
}
