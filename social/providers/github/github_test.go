package github

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	authgate "github.com/goliatone/go-authgate"
	"github.com/goliatone/go-authgate/social"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() social.RetryPolicy {
	return social.RetryPolicy{Timeout: time.Second, MaxRetries: 2, Base: time.Millisecond}
}

type githubServer struct {
	*httptest.Server
	user        map[string]any
	emails      []map[string]any
	emailStatus []int
	emailCalls  int32
}

func newGitHubServer(t *testing.T) *githubServer {
	t.Helper()
	gs := &githubServer{
		user: map[string]any{
			"id":         1234,
			"login":      "octo",
			"name":       "Octo Cat",
			"email":      nil,
			"avatar_url": "https://example.com/avatar.png",
			"html_url":   "https://github.com/octo",
		},
		emails: []map[string]any{
			{"email": "secondary@example.com", "primary": false, "verified": true},
			{"email": "octo@example.com", "primary": true, "verified": true},
		},
	}

	gs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login/oauth/access_token":
			assert.Equal(t, http.MethodPost, r.Method)
			body, err := io.ReadAll(r.Body)
			assert.NoError(t, err)
			values, err := url.ParseQuery(string(body))
			assert.NoError(t, err)
			assert.Equal(t, "auth-code", values.Get("code"))
			assert.Equal(t, "verifier", values.Get("code_verifier"))

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token": "token",
				"token_type":   "bearer",
				"scope":        "user:email,read:user",
			})
		case "/user":
			assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(gs.user)
		case "/user/emails":
			assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
			call := int(atomic.AddInt32(&gs.emailCalls, 1)) - 1
			if call < len(gs.emailStatus) && gs.emailStatus[call] != http.StatusOK {
				w.WriteHeader(gs.emailStatus[call])
				_, _ = w.Write([]byte(`{"message":"unavailable"}`))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(gs.emails)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(gs.Close)
	return gs
}

func (gs *githubServer) provider() *Provider {
	return New(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		CallbackURL:  "https://example.com/callback",
		AuthURL:      gs.URL + "/login/oauth/authorize",
		TokenURL:     gs.URL + "/login/oauth/access_token",
		UserURL:      gs.URL + "/user",
		EmailsURL:    gs.URL + "/user/emails",
		HTTPClient:   gs.Client(),
		EmailLookup:  fastRetry(),
	})
}

func TestProviderAuthCodeURL(t *testing.T) {
	provider := New(Config{
		ClientID:    "client-id",
		CallbackURL: "https://example.com/callback",
	})

	authURL := provider.AuthCodeURL("state-token", social.WithScopes("repo"), social.WithPKCE("challenge", "S256"))

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)

	query := parsed.Query()
	assert.Equal(t, "client-id", query.Get("client_id"))
	assert.Equal(t, "https://example.com/callback", query.Get("redirect_uri"))
	assert.Equal(t, "state-token", query.Get("state"))
	assert.Equal(t, "challenge", query.Get("code_challenge"))
	assert.Equal(t, "S256", query.Get("code_challenge_method"))

	scope := query.Get("scope")
	assert.Contains(t, scope, "read:user")
	assert.Contains(t, scope, "user:email")
	assert.Contains(t, scope, "repo")

	assert.Equal(t, Name, provider.Name())
	assert.Equal(t, authgate.ProviderGitHub, provider.Family())
}

func TestProviderExchangeAndIdentity(t *testing.T) {
	gs := newGitHubServer(t)
	provider := gs.provider()

	token, err := provider.Exchange(context.Background(), "auth-code", social.WithCodeVerifier("verifier"))
	require.NoError(t, err)
	assert.Equal(t, "token", token.AccessToken)

	identity, err := provider.Identity(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, authgate.ProviderGitHub, identity.Provider)
	assert.Equal(t, "github", identity.Registration)
	assert.Equal(t, "octo@example.com", identity.Email)
	assert.Equal(t, "octo@example.com", identity.Attributes["email"])
	assert.Equal(t, "octo", identity.Attributes["login"])
}

func TestProviderIdentity_PublicEmailSkipsLookup(t *testing.T) {
	gs := newGitHubServer(t)
	gs.user["email"] = "public@example.com"

	identity, err := gs.provider().Identity(context.Background(), &social.Token{AccessToken: "token"})
	require.NoError(t, err)
	assert.Equal(t, "public@example.com", identity.Email)
	assert.Equal(t, int32(0), atomic.LoadInt32(&gs.emailCalls))
}

func TestProviderIdentity_NoPrimaryVerifiedEmail(t *testing.T) {
	gs := newGitHubServer(t)
	gs.emails = []map[string]any{
		{"email": "unverified@example.com", "primary": true, "verified": false},
	}

	identity, err := gs.provider().Identity(context.Background(), &social.Token{AccessToken: "token"})
	require.NoError(t, err)
	assert.Empty(t, identity.Email)
}

func TestProviderIdentity_RetriesEmailLookup(t *testing.T) {
	gs := newGitHubServer(t)
	gs.emailStatus = []int{http.StatusServiceUnavailable, http.StatusBadGateway}

	identity, err := gs.provider().Identity(context.Background(), &social.Token{AccessToken: "token"})
	require.NoError(t, err)
	assert.Equal(t, "octo@example.com", identity.Email)
	assert.Equal(t, int32(3), atomic.LoadInt32(&gs.emailCalls))
}

func TestProviderIdentity_LookupFailure(t *testing.T) {
	gs := newGitHubServer(t)
	gs.emailStatus = []int{http.StatusUnauthorized}

	_, err := gs.provider().Identity(context.Background(), &social.Token{AccessToken: "token"})
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, social.TextCodeEmailLookupFail, richErr.TextCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&gs.emailCalls))
}

func TestProviderExchangeErrorNormalized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":             "bad_verification_code",
			"error_description": "bad code",
		})
	}))
	defer server.Close()

	provider := New(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		CallbackURL:  "https://example.com/callback",
		TokenURL:     server.URL,
		HTTPClient:   server.Client(),
	})

	_, err := provider.Exchange(context.Background(), "bad-code")
	require.Error(t, err)

	perr, ok := err.(*social.ProviderError)
	require.True(t, ok)
	assert.Equal(t, "github", perr.Provider)
	assert.Equal(t, "exchange", perr.Operation)
	assert.Equal(t, http.StatusBadRequest, perr.Status)
	assert.Equal(t, "bad_verification_code", perr.Code)
}

func TestEmailsClient_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"a list"}`))
	}))
	defer server.Close()

	_, err := NewEmailsClient(server.URL, server.Client()).ListEmails(context.Background(), "token")
	require.Error(t, err)

	perr, ok := err.(*social.ProviderError)
	require.True(t, ok)
	assert.Equal(t, "invalid_response", perr.Code)
	assert.False(t, perr.Temporary())
}

func TestEmailsClient_OversizedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"email":"`))
		_, _ = w.Write([]byte(strings.Repeat("a", maxResponseBytes)))
		_, _ = w.Write([]byte(`@example.com","primary":true,"verified":true}]`))
	}))
	defer server.Close()

	_, err := NewEmailsClient(server.URL, server.Client()).ListEmails(context.Background(), "token")
	require.Error(t, err)

	perr, ok := err.(*social.ProviderError)
	require.True(t, ok)
	assert.Equal(t, "invalid_response", perr.Code)
	assert.ErrorIs(t, err, errBodyTooLarge)
	assert.False(t, perr.Temporary())
}
