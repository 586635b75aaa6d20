package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	authgate "github.com/goliatone/go-authgate"
	"github.com/goliatone/go-authgate/social"
	"golang.org/x/oauth2"
	githubOAuth "golang.org/x/oauth2/github"
)

// Name is the client registration id of the GitHub provider.
const Name = "github"

const (
	defaultUserURL   = "https://api.github.com/user"
	defaultEmailsURL = "https://api.github.com/user/emails"
)

// Config holds GitHub OAuth configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string

	AuthURL   string
	TokenURL  string
	UserURL   string
	EmailsURL string

	HTTPClient  *http.Client
	EmailLookup social.RetryPolicy
}

// DefaultScopes returns the default GitHub scopes.
func DefaultScopes() []string {
	return []string{"user:email", "read:user"}
}

// Provider implements social.Provider for GitHub.
type Provider struct {
	oauth      *oauth2.Config
	userURL    string
	httpClient *http.Client
	resolver   *social.OAuth2Resolver
}

var _ social.Provider = (*Provider)(nil)

// New creates a new GitHub provider. Email lookups go through the emails
// endpoint with the retry policy from cfg.
func New(cfg Config) *Provider {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes()
	}
	if cfg.UserURL == "" {
		cfg.UserURL = defaultUserURL
	}
	if cfg.EmailsURL == "" {
		cfg.EmailsURL = defaultEmailsURL
	}

	endpoint := githubOAuth.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	lookup := social.WithRetry(NewEmailsClient(cfg.EmailsURL, client), cfg.EmailLookup)

	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       cfg.Scopes,
			Endpoint:     endpoint,
		},
		userURL:    cfg.UserURL,
		httpClient: client,
		resolver:   social.NewOAuth2Resolver(authgate.ProviderGitHub, lookup),
	}
}

// Name implements social.Provider.
func (p *Provider) Name() string {
	return Name
}

// Family implements social.Provider.
func (p *Provider) Family() authgate.ProviderID {
	return authgate.ProviderGitHub
}

// AuthCodeURL implements social.Provider.
func (p *Provider) AuthCodeURL(state string, opts ...social.AuthCodeOption) string {
	cfg := social.ApplyAuthCodeOptions(nil, opts...)

	params := []oauth2.AuthCodeOption{}
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

	return p.oauth.AuthCodeURL(state, params...)
}

// Exchange implements social.Provider.
func (p *Provider) Exchange(ctx context.Context, code string, opts ...social.ExchangeOption) (*social.Token, error) {
	cfg := social.ApplyExchangeOptions(opts...)

	params := []oauth2.AuthCodeOption{}
	if cfg.CodeVerifier != "" {
		params = append(params, oauth2.VerifierOption(cfg.CodeVerifier))
	}

	tok, err := p.oauth.Exchange(p.clientContext(ctx), code, params...)
	if err != nil {
		return nil, exchangeError(err)
	}

	return &social.Token{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}, nil
}

// Identity implements social.Provider. A public profile email is used as
// is; otherwise the primary verified address is looked up.
func (p *Provider) Identity(ctx context.Context, token *social.Token) (authgate.ExternalIdentity, error) {
	if token == nil || token.AccessToken == "" {
		return authgate.ExternalIdentity{}, social.WrapProviderError(social.ErrUserInfoFailed, Name, "user_info",
			errors.New("missing access token"))
	}

	user, err := p.fetchUser(ctx, token.AccessToken)
	if err != nil {
		return authgate.ExternalIdentity{}, social.WrapProviderError(social.ErrUserInfoFailed, Name, "user_info", err)
	}

	return p.resolver.Resolve(ctx, mapProfile(user), token.AccessToken)
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

func (p *Provider) fetchUser(ctx context.Context, accessToken string) (*githubUser, error) {
	client := p.oauth.Client(p.clientContext(ctx), &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, providerError("user_info", 0, "", "", err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if errors.Is(err, errBodyTooLarge) {
		return nil, providerError("user_info", resp.StatusCode, "invalid_response", "user response too large", err)
	}
	if err != nil {
		return nil, providerError("user_info", resp.StatusCode, "", "", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, providerError("user_info", resp.StatusCode, "", apiErrorMessage(body), nil)
	}

	var user githubUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, providerError("user_info", resp.StatusCode, "invalid_response", "failed to decode user response", err)
	}

	return &user, nil
}

// maxResponseBytes caps provider API response bodies.
const maxResponseBytes = 1 << 20

var errBodyTooLarge = errors.New("github: response body exceeds limit")

func readBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxResponseBytes {
		return nil, errBodyTooLarge
	}
	return body, nil
}

func exchangeError(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) && rerr != nil {
		status := 0
		if rerr.Response != nil {
			status = rerr.Response.StatusCode
		}
		return providerError("exchange", status, rerr.ErrorCode, rerr.ErrorDescription, err)
	}
	return providerError("exchange", 0, "", "", err)
}

type githubAPIError struct {
	Message string `json:"message"`
}

func apiErrorMessage(body []byte) string {
	var apiErr githubAPIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return apiErr.Message
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "github request failed"
	}
	return msg
}

func providerError(operation string, status int, code, description string, err error) *social.ProviderError {
	return &social.ProviderError{
		Provider:    Name,
		Operation:   operation,
		Status:      status,
		Code:        code,
		Description: description,
		Err:         err,
	}
}

func fmtUserID(id int64) string {
	return fmt.Sprintf("%d", id)
}
