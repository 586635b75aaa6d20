package authgate

import (
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is the verified content of an access token. Values are
// copied out of the parsed token and never mutated afterwards.
type TokenClaims struct {
	SubjectUserID int64
	Email         string
	Provider      ProviderID
	Roles         []string
	IssuedAt      time.Time
	ExpiresAt     time.Time
	TokenID       string
}

// HasRole reports whether role is present in the roles claim.
func (c TokenClaims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// jwtClaims is the wire form of the access token payload.
type jwtClaims struct {
	jwt.RegisteredClaims
	Email            string   `json:"email,omitempty"`
	IdentityProvider string   `json:"identityProvider,omitempty"`
	Roles            RoleList `json:"roles"`
	Purpose          string   `json:"purpose,omitempty"`
}

// RoleList decodes the roles claim leniently: entries that are not
// strings are dropped and anything other than an array decodes as empty.
type RoleList []string

// UnmarshalJSON implements json.Unmarshaler.
func (r *RoleList) UnmarshalJSON(data []byte) error {
	out := RoleList{}

	var items []any
	if err := json.Unmarshal(data, &items); err == nil {
		for _, item := range items {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}

	*r = out
	return nil
}

// MarshalJSON implements json.Marshaler, always emitting an array.
func (r RoleList) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(r))
}

func numericTime(d *jwt.NumericDate) time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time
}
