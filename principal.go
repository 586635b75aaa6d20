package authgate

import "strings"

// PrincipalOrigin tells where a principal was built from.
type PrincipalOrigin int

const (
	// OriginUserRecord principals were built from a stored account.
	OriginUserRecord PrincipalOrigin = iota + 1
	// OriginToken principals were rebuilt from verified token claims only.
	OriginToken
)

func (o PrincipalOrigin) String() string {
	switch o {
	case OriginUserRecord:
		return "user_record"
	case OriginToken:
		return "token"
	default:
		return "unknown"
	}
}

// OIDCExtras carries the OpenID Connect material of an OIDC login.
type OIDCExtras struct {
	IDTokenClaims map[string]any
	UserInfo      map[string]any
	RawIDToken    string
}

// Principal is the unified authenticated identity of a request.
// Downstream consumers should only rely on UserID and Authorities.
type Principal struct {
	UserID      int64
	Email       string
	Provider    ProviderID
	Authorities []string
	Attributes  map[string]any
	OIDC        *OIDCExtras
	Origin      PrincipalOrigin
}

// Username is the email address, which is the account login name.
func (p *Principal) Username() string {
	if p == nil {
		return ""
	}
	return p.Email
}

// HasAuthority reports whether the principal was granted authority.
func (p *Principal) HasAuthority(authority string) bool {
	if p == nil {
		return false
	}
	for _, a := range p.Authorities {
		if a == authority {
			return true
		}
	}
	return false
}

// HasRole checks for ROLE_<role> among the authorities.
func (p *Principal) HasRole(role string) bool {
	if !strings.HasPrefix(role, RolePrefix) {
		role = RolePrefix + role
	}
	return p.HasAuthority(role)
}

// OIDCClaims returns the ID token claims, or an empty map for non OIDC logins.
func (p *Principal) OIDCClaims() map[string]any {
	if p == nil || p.OIDC == nil || p.OIDC.IDTokenClaims == nil {
		return map[string]any{}
	}
	return p.OIDC.IDTokenClaims
}

// FromLocalUser builds the principal of a password login.
func FromLocalUser(user *User) *Principal {
	p := baseFromUser(user)
	p.Provider = ProviderEmail
	return p
}

// FromExternalLogin builds the principal of an OAuth2 or OIDC login that
// passed account link verification.
func FromExternalLogin(user *User, provider ProviderID, attributes map[string]any, oidc *OIDCExtras) *Principal {
	p := baseFromUser(user)
	p.Provider = provider
	p.Attributes = attributes
	p.OIDC = oidc
	return p
}

// FromTokenClaims rebuilds a principal from verified claims. The roles
// claim is used verbatim as the authority set; no store lookup happens.
func FromTokenClaims(claims TokenClaims) *Principal {
	return &Principal{
		UserID:      claims.SubjectUserID,
		Email:       claims.Email,
		Provider:    claims.Provider,
		Authorities: orderedSet(claims.Roles),
		Origin:      OriginToken,
	}
}

func baseFromUser(user *User) *Principal {
	authorities := make([]string, 0, len(user.Roles))
	for _, role := range user.Roles {
		authorities = append(authorities, RolePrefix+role)
	}
	return &Principal{
		UserID:      user.ID,
		Email:       user.Email,
		Authorities: orderedSet(authorities),
		Origin:      OriginUserRecord,
	}
}

func orderedSet(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
