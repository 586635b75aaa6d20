package authgate

import (
	"context"
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

// LoginStatusSuccess is the status field of a successful login envelope.
const LoginStatusSuccess = "LOGIN_SUCCESS"

// LoginSuccess is the body returned after any successful login.
type LoginSuccess struct {
	Status           string     `json:"status"`
	Username         string     `json:"username"`
	AccessToken      string     `json:"accessToken"`
	IdentityProvider ProviderID `json:"identityProvider"`
	IssuedAt         time.Time  `json:"issuedAt"`
}

// LoginRequest is the payload of a password login. Identifier is an email
// or a username.
type LoginRequest struct {
	Identifier string `json:"email"`
	Password   string `json:"password"`
}

// Validate runs the payload rules.
func (r LoginRequest) Validate() error {
	identifierRules := []validation.Rule{validation.Required, validation.Length(3, 254)}
	if strings.Contains(r.Identifier, "@") {
		identifierRules = append(identifierRules, is.Email)
	}
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, identifierRules...),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 128)),
	)
}

// Authenticator runs password and external logins and produces the
// login-success envelope.
type Authenticator struct {
	credentials CredentialVerifier
	linker      *LinkVerifier
	tokens      *TokenService
	logger      Logger
	sink        ActivitySink
	now         func() time.Time
}

// AuthenticatorOption configures an Authenticator.
type AuthenticatorOption func(*Authenticator)

// WithLogger sets the logger.
func WithLogger(logger Logger) AuthenticatorOption {
	return func(a *Authenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func WithActivitySink(sink ActivitySink) AuthenticatorOption {
	return func(a *Authenticator) {
		a.sink = activitySinkOrDiscard(sink)
	}
}

// WithAuthenticatorClock overrides the time source used for issuedAt.
func WithAuthenticatorClock(now func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAuthenticator returns a new Authenticator.
func NewAuthenticator(credentials CredentialVerifier, linker *LinkVerifier, tokens *TokenService, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		credentials: credentials,
		linker:      linker,
		tokens:      tokens,
		logger:      defaultLogger(),
		sink:        discardActivity,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Tokens returns the token service used to sign access tokens.
func (a *Authenticator) Tokens() *TokenService {
	return a.tokens
}

// Login verifies a password login. Unknown accounts and wrong passwords
// both yield ErrInvalidCredentials.
func (a *Authenticator) Login(ctx context.Context, req LoginRequest) (*LoginSuccess, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := a.credentials.VerifyCredentials(ctx, req.Identifier, req.Password)
	if err != nil {
		a.emit(ctx, ActivityEventLoginFailure, 0, ProviderEmail, map[string]any{
			"identifier": req.Identifier,
			"error":      err.Error(),
		})
		if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrInvalidPassword) {
			return nil, ErrInvalidCredentials
		}
		a.logger.Error("login verify credentials error", "error", err)
		return nil, err
	}

	principal := FromLocalUser(user)
	success, err := a.LoginSuccessFor(principal)
	if err != nil {
		return nil, err
	}

	a.emit(ctx, ActivityEventLoginSuccess, user.ID, ProviderEmail, nil)
	return success, nil
}

// CompleteExternalLogin reconciles a resolved external identity with its
// local account and signs an access token for it.
func (a *Authenticator) CompleteExternalLogin(ctx context.Context, identity ExternalIdentity) (*Principal, *LoginSuccess, error) {
	registration := identity.Registration
	if registration == "" {
		registration = strings.ToLower(string(identity.Provider))
	}

	user, err := a.linker.Verify(ctx, identity.Email, registration, identity.Provider)
	if err != nil {
		if le, ok := AsLinkError(err); ok {
			a.emit(ctx, ActivityEventLinkRejected, 0, identity.Provider, map[string]any{
				"error_code":    le.Code.Code,
				"auth_provider": le.AuthProvider,
			})
		}
		return nil, nil, err
	}

	attributes := identity.Attributes
	if attributes == nil {
		attributes = map[string]any{}
	}

	principal := FromExternalLogin(user, identity.Provider, attributes, identity.OIDC)
	success, err := a.LoginSuccessFor(principal)
	if err != nil {
		return nil, nil, err
	}

	a.emit(ctx, ActivityEventExternalLogin, user.ID, identity.Provider, map[string]any{
		"registration": registration,
	})
	return principal, success, nil
}

// LoginSuccessFor signs a token for p and builds the success envelope.
func (a *Authenticator) LoginSuccessFor(p *Principal) (*LoginSuccess, error) {
	if p == nil {
		return nil, goerrors.New("unsupported principal", goerrors.CategoryInternal)
	}

	token, err := a.tokens.Issue(p)
	if err != nil {
		a.logger.Error("failed to issue access token", "error", err, "user_id", p.UserID)
		return nil, err
	}

	return &LoginSuccess{
		Status:           LoginStatusSuccess,
		Username:         p.Username(),
		AccessToken:      token,
		IdentityProvider: p.Provider,
		IssuedAt:         a.now().UTC(),
	}, nil
}

// ActionTokenFor mints the continuation token attached to a link error.
// email_missing has no continuation and returns "".
func (a *Authenticator) ActionTokenFor(le *LinkError) string {
	if le == nil || le.Email == "" {
		return ""
	}

	var purpose string
	switch le.Code.Code {
	case CodeUserNotRegistered.Code:
		purpose = ActionRegister
	case CodeAuthProviderNotLinked.Code:
		purpose = ActionLinkProvider
	default:
		return ""
	}

	provider, _ := ParseProviderID(le.AuthProvider)
	token, err := a.tokens.IssueActionToken(purpose, le.Email, provider)
	if err != nil {
		a.logger.Warn("failed to issue action token", "error", err)
		return ""
	}
	return token
}

func (a *Authenticator) emit(ctx context.Context, eventType ActivityEventType, userID int64, provider ProviderID, metadata map[string]any) {
	if err := a.sink.Record(ctx, ActivityEvent{
		EventType:  eventType,
		UserID:     userID,
		Provider:   provider,
		Metadata:   metadata,
		OccurredAt: a.now(),
	}); err != nil {
		a.logger.Warn("failed to record activity", "event", eventType, "error", err)
	}
}
