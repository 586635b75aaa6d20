package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	authgate "github.com/goliatone/go-authgate"
	"github.com/goliatone/go-authgate/social"
	"golang.org/x/oauth2"
)

// GoogleIssuer is the default issuer.
const GoogleIssuer = "https://accounts.google.com"

// Config holds OIDC client configuration.
type Config struct {
	// Name is the client registration id, "google" by default.
	Name string
	// Family is the provider family principals are tagged with, GOOGLE by default.
	Family       authgate.ProviderID
	Issuer       string
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	// FetchUserInfo also reads the userinfo endpoint after the exchange.
	FetchUserInfo bool

	HTTPClient *http.Client
}

// DefaultScopes returns the default OIDC scopes.
func DefaultScopes() []string {
	return []string{gooidc.ScopeOpenID, "email", "profile"}
}

// Provider implements social.Provider on top of an OpenID Connect issuer.
type Provider struct {
	name          string
	family        authgate.ProviderID
	oauth         *oauth2.Config
	verifier      *gooidc.IDTokenVerifier
	discovery     *gooidc.Provider
	fetchUserInfo bool
	httpClient    *http.Client
	resolver      *social.OIDCResolver
}

var _ social.Provider = (*Provider)(nil)

// New discovers the issuer configuration and creates a provider.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("oidc config missing client credentials")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = GoogleIssuer
	}

	client := httpClient(cfg.HTTPClient)
	discovery, err := gooidc.NewProvider(gooidc.ClientContext(ctx, client), cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init oidc provider %s: %w", cfg.Issuer, err)
	}

	p := NewWithVerifier(cfg, discovery.Endpoint(), discovery.Verifier(&gooidc.Config{ClientID: cfg.ClientID}))
	p.discovery = discovery
	return p, nil
}

// NewWithVerifier creates a provider from an explicit endpoint and ID token
// verifier, without discovery. Userinfo is not available in this mode.
func NewWithVerifier(cfg Config, endpoint oauth2.Endpoint, verifier *gooidc.IDTokenVerifier) *Provider {
	if cfg.Name == "" {
		cfg.Name = "google"
	}
	if cfg.Family == "" {
		cfg.Family = authgate.ProviderGoogle
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes()
	}

	return &Provider{
		name:   cfg.Name,
		family: cfg.Family,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       cfg.Scopes,
			Endpoint:     endpoint,
		},
		verifier:      verifier,
		fetchUserInfo: cfg.FetchUserInfo,
		httpClient:    httpClient(cfg.HTTPClient),
		resolver:      social.NewOIDCResolver(cfg.Family),
	}
}

// Name implements social.Provider.
func (p *Provider) Name() string {
	return p.name
}

// Family implements social.Provider.
func (p *Provider) Family() authgate.ProviderID {
	return p.family
}

// AuthCodeURL implements social.Provider.
func (p *Provider) AuthCodeURL(state string, opts ...social.AuthCodeOption) string {
	cfg := social.ApplyAuthCodeOptions(nil, opts...)

	params := []oauth2.AuthCodeOption{oauth2.AccessTypeOnline}
	if len(cfg.Scopes) > 0 {
		scopes := append(append([]string{}, p.oauth.Scopes...), cfg.Scopes...)
		params = append(params, oauth2.SetAuthURLParam("scope", strings.Join(scopes, " ")))
	}
	if cfg.CodeChallenge != "" {
		method := cfg.CodeChallengeMethod
		if method == "" {
			method = "S256"
		}
		params = append(params,
			oauth2.SetAuthURLParam("code_challenge", cfg.CodeChallenge),
			oauth2.SetAuthURLParam("code_challenge_method", method),
		)
	}
	if cfg.Nonce != "" {
		params = append(params, gooidc.Nonce(cfg.Nonce))
	}

	return p.oauth.AuthCodeURL(state, params...)
}

// Exchange implements social.Provider. The ID token is verified here and
// its claims are carried on the returned token.
func (p *Provider) Exchange(ctx context.Context, code string, opts ...social.ExchangeOption) (*social.Token, error) {
	cfg := social.ApplyExchangeOptions(opts...)
	ctx = gooidc.ClientContext(ctx, p.httpClient)

	params := []oauth2.AuthCodeOption{}
	if cfg.CodeVerifier != "" {
		params = append(params, oauth2.VerifierOption(cfg.CodeVerifier))
	}

	tok, err := p.oauth.Exchange(ctx, code, params...)
	if err != nil {
		return nil, p.providerError("exchange", err)
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, p.providerError("exchange", errors.New("token response has no id_token"))
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, p.providerError("verify_id_token", err)
	}
	if cfg.Nonce != "" && idToken.Nonce != cfg.Nonce {
		return nil, p.providerError("verify_id_token", errors.New("id_token nonce missing or mismatched"))
	}

	claims := map[string]any{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, p.providerError("verify_id_token", err)
	}

	return &social.Token{
		AccessToken:   tok.AccessToken,
		TokenType:     tok.TokenType,
		RefreshToken:  tok.RefreshToken,
		ExpiresAt:     tok.Expiry,
		RawIDToken:    rawIDToken,
		IDTokenClaims: claims,
	}, nil
}

// Identity implements social.Provider.
func (p *Provider) Identity(ctx context.Context, token *social.Token) (authgate.ExternalIdentity, error) {
	if token == nil || token.IDTokenClaims == nil {
		return authgate.ExternalIdentity{}, social.WrapProviderError(social.ErrUserInfoFailed, p.name, "user_info",
			errors.New("missing verified id_token"))
	}

	profile := &social.Profile{
		Registration:  p.name,
		IDTokenClaims: token.IDTokenClaims,
		RawIDToken:    token.RawIDToken,
	}
	if sub, ok := token.IDTokenClaims["sub"].(string); ok {
		profile.ProviderUserID = sub
	}

	if p.fetchUserInfo && p.discovery != nil {
		info, err := p.discovery.UserInfo(gooidc.ClientContext(ctx, p.httpClient), oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: token.AccessToken,
			TokenType:   "Bearer",
		}))
		if err != nil {
			return authgate.ExternalIdentity{}, social.WrapProviderError(social.ErrUserInfoFailed, p.name, "user_info", err)
		}
		userInfo := map[string]any{}
		if err := info.Claims(&userInfo); err == nil {
			profile.UserInfo = userInfo
		}
	}

	return p.resolver.Resolve(profile), nil
}

func (p *Provider) providerError(operation string, err error) *social.ProviderError {
	perr := &social.ProviderError{
		Provider:  p.name,
		Operation: operation,
		Err:       err,
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) && rerr != nil {
		perr.Code = rerr.ErrorCode
		perr.Description = rerr.ErrorDescription
		if rerr.Response != nil {
			perr.Status = rerr.Response.StatusCode
		}
	}
	return perr
}

func httpClient(client *http.Client) *http.Client {
	if client == nil {
		return &http.Client{Timeout: 10 * time.Second}
	}
	return client
}
