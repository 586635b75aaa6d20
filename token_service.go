package authgate

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	defaultTokenTTL       = time.Hour
	defaultActionTokenTTL = 15 * time.Minute
)

// Purposes of action tokens handed out with link errors.
const (
	ActionLinkProvider = "link_provider"
	ActionRegister     = "register"
)

// TokenService issues and verifies HS256 access tokens. It holds no
// mutable state after construction and is safe for concurrent use.
type TokenService struct {
	signingKey []byte
	ttl        time.Duration
	actionTTL  time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	now        func() time.Time
	logger     Logger
}

// TokenServiceOption configures a TokenService.
type TokenServiceOption func(*TokenService)

// WithTokenTTL sets the access token lifetime.
func WithTokenTTL(ttl time.Duration) TokenServiceOption {
	return func(ts *TokenService) {
		if ttl > 0 {
			ts.ttl = ttl
		}
	}
}

// WithActionTokenTTL sets the action token lifetime.
func WithActionTokenTTL(ttl time.Duration) TokenServiceOption {
	return func(ts *TokenService) {
		if ttl > 0 {
			ts.actionTTL = ttl
		}
	}
}

// WithIssuer sets the iss claim and requires it on verification.
func WithIssuer(issuer string) TokenServiceOption {
	return func(ts *TokenService) {
		ts.issuer = issuer
	}
}

// WithAudience sets the aud claim and requires it on verification.
func WithAudience(audience ...string) TokenServiceOption {
	return func(ts *TokenService) {
		ts.audience = append(jwt.ClaimStrings(nil), audience...)
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) TokenServiceOption {
	return func(ts *TokenService) {
		if now != nil {
			ts.now = now
		}
	}
}

// WithTokenLogger sets the logger.
func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenService) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

// NewTokenService creates a TokenService signing with signingKey.
func NewTokenService(signingKey []byte, opts ...TokenServiceOption) *TokenService {
	ts := &TokenService{
		signingKey: append([]byte(nil), signingKey...),
		ttl:        defaultTokenTTL,
		actionTTL:  defaultActionTokenTTL,
		now:        time.Now,
		logger:     defaultLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}
	return ts
}

// NewTokenServiceFromConfig creates a TokenService from Config getters.
func NewTokenServiceFromConfig(cfg Config, logger Logger) *TokenService {
	return NewTokenService([]byte(cfg.GetSigningKey()),
		WithTokenTTL(cfg.GetTokenTTL()),
		WithActionTokenTTL(cfg.GetActionTokenTTL()),
		WithIssuer(cfg.GetIssuer()),
		WithAudience(cfg.GetAudience()...),
		WithTokenLogger(logger),
	)
}

// Issue signs an access token for the principal.
func (ts *TokenService) Issue(p *Principal) (string, error) {
	token, _, err := ts.IssueClaims(p)
	return token, err
}

// IssueClaims signs an access token and returns the claims it carries.
func (ts *TokenService) IssueClaims(p *Principal) (string, TokenClaims, error) {
	if p == nil {
		return "", TokenClaims{}, goerrors.New("principal must not be nil", goerrors.CategoryInternal)
	}
	if !p.Provider.Valid() {
		return "", TokenClaims{}, goerrors.New("principal has unknown identity provider", goerrors.CategoryInternal).
			WithMetadata(map[string]any{"provider": string(p.Provider)})
	}

	now := ts.now()
	claims := &jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   strconv.FormatInt(p.UserID, 10),
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.ttl)),
		},
		Email:            p.Email,
		IdentityProvider: string(p.Provider),
		Roles:            RoleList(append([]string{}, p.Authorities...)),
	}

	signed, err := ts.sign(claims)
	if err != nil {
		return "", TokenClaims{}, err
	}

	return signed, toTokenClaims(claims, p.UserID, p.Provider), nil
}

// Verify checks signature and expiry and returns the token claims.
// Failures are ErrTokenMalformed, ErrTokenExpired or ErrTokenInvalidSignature
// (compare by TextCode). A token past its expiry reports expired even when
// its signature is also wrong.
func (ts *TokenService) Verify(tokenString string) (TokenClaims, error) {
	claims, err := ts.parse(tokenString)
	if err != nil {
		return TokenClaims{}, err
	}

	if claims.Purpose != "" {
		return TokenClaims{}, tokenError(ErrTokenMalformed, fmt.Errorf("unexpected token purpose %q", claims.Purpose))
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return TokenClaims{}, tokenError(ErrTokenMalformed, fmt.Errorf("subject is not a user id: %w", err))
	}

	provider, ok := ParseProviderID(claims.IdentityProvider)
	if !ok {
		return TokenClaims{}, tokenError(ErrTokenMalformed, fmt.Errorf("unknown identity provider %q", claims.IdentityProvider))
	}

	return toTokenClaims(claims, userID, provider), nil
}

// ActionClaims is the content of a verified action token.
type ActionClaims struct {
	Purpose   string
	Email     string
	Provider  ProviderID
	ExpiresAt time.Time
}

// IssueActionToken signs a short lived token that lets a client continue a
// link or register flow for email.
func (ts *TokenService) IssueActionToken(purpose, email string, provider ProviderID) (string, error) {
	if purpose == "" {
		return "", goerrors.New("action token purpose must not be empty", goerrors.CategoryInternal)
	}
	now := ts.now()
	claims := &jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.actionTTL)),
		},
		Email:            email,
		IdentityProvider: string(provider),
		Purpose:          purpose,
	}
	return ts.sign(claims)
}

// VerifyActionToken verifies an action token minted for purpose.
func (ts *TokenService) VerifyActionToken(tokenString, purpose string) (ActionClaims, error) {
	claims, err := ts.parse(tokenString)
	if err != nil {
		return ActionClaims{}, err
	}
	if claims.Purpose == "" || claims.Purpose != purpose {
		return ActionClaims{}, ErrActionTokenPurpose
	}
	provider, _ := ParseProviderID(claims.IdentityProvider)
	return ActionClaims{
		Purpose:   claims.Purpose,
		Email:     claims.Email,
		Provider:  provider,
		ExpiresAt: numericTime(claims.ExpiresAt),
	}, nil
}

func (ts *TokenService) sign(claims *jwtClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}
	return signed, nil
}

func (ts *TokenService) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(ts.now),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
	}
	if ts.issuer != "" {
		opts = append(opts, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		opts = append(opts, jwt.WithAudience(ts.audience[0]))
	}
	return opts
}

// parse classifies failures in this order: expired, invalid signature,
// malformed. A token whose third segment has the shape of an HS256 MAC but
// does not match header.payload is a signature failure even when the
// header or payload no longer decode.
func (ts *TokenService) parse(tokenString string) (*jwtClaims, error) {
	segments := strings.Split(tokenString, ".")
	if len(segments) != 3 {
		return nil, tokenError(ErrTokenMalformed, errors.New("token must have three segments"))
	}
	if !looksLikeMAC(segments[2]) {
		return nil, tokenError(ErrTokenMalformed, errors.New("signature segment is not an HS256 MAC"))
	}

	claims := &jwtClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return ts.signingKey, nil
	}, ts.parserOptions()...)
	if err == nil {
		return claims, nil
	}
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, tokenError(ErrTokenExpired, err)
	}

	if ts.signatureMatches(segments) {
		ts.logger.Debug("token rejected as malformed", "error", err)
		return nil, tokenError(ErrTokenMalformed, err)
	}
	if ts.payloadExpired(segments[1]) {
		return nil, tokenError(ErrTokenExpired, err)
	}

	ts.logger.Debug("token signature rejected", "error", err)
	return nil, tokenError(ErrTokenInvalidSignature, jwt.ErrTokenSignatureInvalid)
}

func (ts *TokenService) signatureMatches(segments []string) bool {
	sig, err := base64.RawURLEncoding.Strict().DecodeString(segments[2])
	if err != nil {
		return false
	}
	signingString := segments[0] + "." + segments[1]
	return jwt.SigningMethodHS256.Verify(signingString, sig, ts.signingKey) == nil
}

// payloadExpired reads exp from an unverified payload segment.
func (ts *TokenService) payloadExpired(segment string) bool {
	raw, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		return false
	}
	var payload struct {
		ExpiresAt *jwt.NumericDate `json:"exp"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ExpiresAt == nil {
		return false
	}
	return !ts.now().Before(payload.ExpiresAt.Time)
}

func looksLikeMAC(segment string) bool {
	if len(segment) != base64.RawURLEncoding.EncodedLen(sha256.Size) {
		return false
	}
	for i := 0; i < len(segment); i++ {
		if !strings.ContainsRune(macAlphabet, rune(segment[i])) {
			return false
		}
	}
	return true
}

const macAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

func toTokenClaims(claims *jwtClaims, userID int64, provider ProviderID) TokenClaims {
	roles := []string(claims.Roles)
	if roles == nil {
		roles = []string{}
	}
	return TokenClaims{
		SubjectUserID: userID,
		Email:         claims.Email,
		Provider:      provider,
		Roles:         append([]string{}, roles...),
		IssuedAt:      numericTime(claims.IssuedAt),
		ExpiresAt:     numericTime(claims.ExpiresAt),
		TokenID:       claims.ID,
	}
}

func tokenError(base *goerrors.Error, cause error) error {
	clone := base.Clone()
	if clone == nil {
		return base
	}
	clone.Source = cause
	return clone
}
