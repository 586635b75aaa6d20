package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/gofiber/fiber/v2"
	authgate "github.com/goliatone/go-authgate"
	"github.com/goliatone/go-authgate/social"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memoryStore struct {
	users map[string]*authgate.User
}

func (s *memoryStore) FindByEmail(ctx context.Context, email string) (*authgate.User, error) {
	if u, ok := s.users[strings.ToLower(email)]; ok {
		return u, nil
	}
	return nil, authgate.ErrUserNotFound
}

func (s *memoryStore) FindByID(ctx context.Context, id int64) (*authgate.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, authgate.ErrUserNotFound
}

func (s *memoryStore) VerifyCredentials(ctx context.Context, identifier, password string) (*authgate.User, error) {
	u, err := s.FindByEmail(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if err := authgate.ComparePasswordAndHash(password, u.PasswordHash); err != nil {
		return nil, err
	}
	return u, nil
}

type stubFlow struct {
	logins   *authgate.Authenticator
	identity authgate.ExternalIdentity
	err      error
}

func (f *stubFlow) Providers() []string { return []string{"github"} }

func (f *stubFlow) BeginAuth(ctx context.Context, registration string, opts ...social.BeginAuthOption) (*social.AuthRedirect, error) {
	if registration != "github" {
		return nil, social.ErrProviderNotFound
	}
	return &social.AuthRedirect{URL: "https://github.test/authorize?state=opaque", State: "opaque", Registration: registration}, nil
}

func (f *stubFlow) CompleteAuth(ctx context.Context, registration, code, state string) (*social.AuthResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	identity := f.identity
	identity.Registration = registration
	principal, login, err := f.logins.CompleteExternalLogin(ctx, identity)
	if err != nil {
		return nil, err
	}
	return &social.AuthResult{Principal: principal, Login: login, Identity: identity, Registration: registration}, nil
}

type fixture struct {
	router *chi.Mux
	app    *fiber.App
	logins *authgate.Authenticator
	flow   *stubFlow
	tokens *authgate.TokenService
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	hash, err := authgate.HashPasswordWithCost("s3cret-pass", bcrypt.MinCost)
	require.NoError(t, err)

	store := &memoryStore{users: map[string]*authgate.User{
		"alice@example.com": {
			ID:           1,
			Email:        "alice@example.com",
			PasswordHash: hash,
			Roles:        []string{authgate.RoleUser},
			Providers: []*authgate.UserProvider{
				{UserID: 1, Provider: authgate.ProviderEmail},
				{UserID: 1, Provider: authgate.ProviderGitHub},
			},
		},
		"root@example.com": {
			ID:           2,
			Email:        "root@example.com",
			PasswordHash: hash,
			Roles:        []string{authgate.RoleUser, authgate.RoleAdmin},
			Providers:    []*authgate.UserProvider{{UserID: 2, Provider: authgate.ProviderEmail}},
		},
	}}

	tokens := authgate.NewTokenService([]byte("api-test-signing-key-0123456789ab"))
	logins := authgate.NewAuthenticator(store, authgate.NewLinkVerifier(store), tokens)
	flow := &stubFlow{logins: logins}

	authn := authgate.NewRequestAuthenticator(tokens)
	h := NewHandler(logins, cfg, WithProviderFlow(flow))

	r := chi.NewRouter()
	h.RegisterHTTP(r, authn)

	srv := router.NewFiberAdapter(func(*fiber.App) *fiber.App { return fiber.New() })
	RegisterRoutes(srv.Router(), h, RouteConfig{Authenticator: authn, ContextKey: routeContextKey})

	return &fixture{router: r, app: srv.WrappedRouter(), logins: logins, flow: flow, tokens: tokens}
}

func (f *fixture) do(t *testing.T, method, target, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func (f *fixture) login(t *testing.T, email string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/auth/login", `{"email":"`+email+`","password":"s3cret-pass"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[authgate.LoginSuccess](t, rec).AccessToken
}

func TestLogin(t *testing.T) {
	f := newFixture(t, Config{})

	rec := f.do(t, http.MethodPost, "/auth/login", `{"email":"alice@example.com","password":"s3cret-pass"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	success := decode[map[string]any](t, rec)
	assert.Equal(t, authgate.LoginStatusSuccess, success["status"])
	assert.Equal(t, "alice@example.com", success["username"])
	assert.Equal(t, "EMAIL", success["identityProvider"])
	assert.NotEmpty(t, success["accessToken"])
	assert.NotEmpty(t, success["issuedAt"])

	claims, err := f.tokens.Verify(success["accessToken"].(string))
	require.NoError(t, err)
	assert.Equal(t, int64(1), claims.SubjectUserID)
}

func TestLogin_Failures(t *testing.T) {
	f := newFixture(t, Config{})

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"wrong password", `{"email":"alice@example.com","password":"nope"}`, http.StatusUnauthorized, authgate.CodeInvalidCredentials.Code},
		{"unknown user", `{"email":"ghost@example.com","password":"s3cret-pass"}`, http.StatusUnauthorized, authgate.CodeInvalidCredentials.Code},
		{"empty body", "", http.StatusBadRequest, authgate.CodeValidationFailed.Code},
		{"malformed json", `{"email":`, http.StatusBadRequest, authgate.CodeValidationFailed.Code},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/auth/login", tt.body, "")
			assert.Equal(t, tt.status, rec.Code)
			resp := decode[authgate.APIErrorResponse](t, rec)
			assert.Equal(t, tt.code, resp.ErrorCode)
			assert.Equal(t, "/auth/login", resp.Path)
		})
	}
}

func TestLogin_FieldErrors(t *testing.T) {
	f := newFixture(t, Config{})

	rec := f.do(t, http.MethodPost, "/auth/login", `{"email":"not-an-email@","password":""}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decode[authgate.APIErrorResponse](t, rec)
	require.Len(t, resp.Errors, 2)
	assert.Equal(t, "email", resp.Errors[0].Field)
	assert.Equal(t, "password", resp.Errors[1].Field)
}

func TestBeginAuth(t *testing.T) {
	f := newFixture(t, Config{})

	rec := f.do(t, http.MethodGet, "/auth/oauth2/github?redirect_url=/home", "", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://github.test/authorize?state=opaque", rec.Header().Get("Location"))

	rec = f.do(t, http.MethodGet, "/auth/oauth2/gitlab", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, authgate.CodeNotFound.Code, decode[authgate.APIErrorResponse](t, rec).ErrorCode)

	rec = f.do(t, http.MethodGet, "/auth/providers", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"providers":["github"]}`, rec.Body.String())
}

func TestCallback_Success(t *testing.T) {
	f := newFixture(t, Config{})
	f.flow.identity = authgate.ExternalIdentity{Provider: authgate.ProviderGitHub, Email: "alice@example.com"}

	rec := f.do(t, http.MethodGet, "/auth/oauth2/github/callback?code=c&state=s", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	success := decode[map[string]any](t, rec)
	assert.Equal(t, "GITHUB", success["identityProvider"])
	assert.Equal(t, "alice@example.com", success["username"])
}

func TestCallback_LinkErrors(t *testing.T) {
	tests := []struct {
		name        string
		email       string
		code        string
		actionToken bool
	}{
		{"email missing", "", authgate.CodeEmailMissing.Code, false},
		{"user not registered", "new@example.com", authgate.CodeUserNotRegistered.Code, true},
		{"provider not linked", "root@example.com", authgate.CodeAuthProviderNotLinked.Code, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{})
			f.flow.identity = authgate.ExternalIdentity{Provider: authgate.ProviderGitHub, Email: tt.email}

			rec := f.do(t, http.MethodGet, "/auth/oauth2/github/callback?code=c&state=s", "", "")
			assert.Equal(t, http.StatusUnauthorized, rec.Code)

			resp := decode[authgate.APIErrorResponse](t, rec)
			assert.Equal(t, tt.code, resp.ErrorCode)
			assert.Equal(t, "github", resp.AuthProvider)
			if tt.actionToken {
				assert.NotEmpty(t, resp.ActionToken)
			} else {
				assert.Empty(t, resp.ActionToken)
			}
		})
	}
}

func TestCallback_ErrorRedirect(t *testing.T) {
	f := newFixture(t, Config{ErrorRedirect: "https://app.example.com/login?from=oauth"})
	f.flow.identity = authgate.ExternalIdentity{Provider: authgate.ProviderGitHub, Email: "root@example.com"}

	rec := f.do(t, http.MethodGet, "/auth/oauth2/github/callback?code=c&state=s", "", "")
	require.Equal(t, http.StatusFound, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	query := location.Query()
	assert.Equal(t, "oauth", query.Get("from"))
	assert.Equal(t, authgate.CodeAuthProviderNotLinked.Code, query.Get("error"))
	assert.Equal(t, "github", query.Get("authProvider"))

	action, err := f.tokens.VerifyActionToken(query.Get("actionToken"), authgate.ActionLinkProvider)
	require.NoError(t, err)
	assert.Equal(t, "root@example.com", action.Email)
}

func TestCallback_BadRequests(t *testing.T) {
	f := newFixture(t, Config{})

	rec := f.do(t, http.MethodGet, "/auth/oauth2/github/callback?state=s", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[authgate.APIErrorResponse](t, rec)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "code", resp.Errors[0].Field)

	rec = f.do(t, http.MethodGet, "/auth/oauth2/github/callback?error=access_denied&error_description=denied", "", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "denied", decode[authgate.APIErrorResponse](t, rec).Message)

	f.flow.err = social.ErrInvalidState
	rec = f.do(t, http.MethodGet, "/auth/oauth2/github/callback?code=c&state=s", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProtectedRoutes(t *testing.T) {
	f := newFixture(t, Config{})
	userToken := f.login(t, "alice@example.com")
	adminToken := f.login(t, "root@example.com")

	rec := f.do(t, http.MethodGet, "/api/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, authgate.CodeInvalidCredentials.Code, decode[authgate.APIErrorResponse](t, rec).ErrorCode)

	rec = f.do(t, http.MethodGet, "/api/me", "", userToken)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[Me](t, rec)
	assert.Equal(t, int64(1), me.UserID)
	assert.Equal(t, "alice@example.com", me.Username)
	assert.Equal(t, []string{"ROLE_USER"}, me.Authorities)

	rec = f.do(t, http.MethodGet, "/api/me", "", "not.a.token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/admin", "", userToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, authgate.CodeAccessDenied.Code, decode[authgate.APIErrorResponse](t, rec).ErrorCode)

	rec = f.do(t, http.MethodGet, "/api/admin", "", adminToken)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAppendQueryParam(t *testing.T) {
	assert.Equal(t, "", appendQueryParam("", "a", "b"))
	assert.Equal(t, "/login?error=x", appendQueryParam("/login", "error", "x"))
	assert.Equal(t, "/login?a=1&error=x+y", appendQueryParam("/login?a=1", "error", "x y"))
}
