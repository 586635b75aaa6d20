package authgate

import (
	"time"

	"github.com/uptrace/bun"
)

// RolePrefix is prepended to role names when they become authorities.
const RolePrefix = "ROLE_"

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User is a local account.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            int64           `bun:"id,pk,autoincrement" json:"id"`
	Email         string          `bun:"email,notnull,unique" json:"email"`
	Username      string          `bun:"username" json:"username,omitempty"`
	PasswordHash  string          `bun:"password_hash" json:"-"`
	EmailVerified bool            `bun:"email_verified" json:"email_verified"`
	Roles         []string        `bun:"roles,type:jsonb" json:"roles"`
	Providers     []*UserProvider `bun:"rel:has-many,join:id=user_id" json:"providers,omitempty"`
	CreatedAt     *time.Time      `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time      `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// UserProvider records that an identity provider may sign in to an account.
type UserProvider struct {
	bun.BaseModel  `bun:"table:user_auth_providers,alias:uap"`
	ID             int64      `bun:"id,pk,autoincrement" json:"id"`
	UserID         int64      `bun:"user_id,notnull" json:"user_id"`
	Provider       ProviderID `bun:"provider,notnull" json:"provider"`
	ProviderUserID string     `bun:"provider_user_id" json:"provider_user_id,omitempty"`
	LinkedAt       *time.Time `bun:"linked_at,nullzero,default:current_timestamp" json:"linked_at,omitempty"`
}

// IdentityProviders lists the providers registered on the account.
func (u *User) IdentityProviders() []ProviderID {
	if u == nil {
		return nil
	}
	out := make([]ProviderID, 0, len(u.Providers))
	for _, p := range u.Providers {
		if p != nil {
			out = append(out, p.Provider)
		}
	}
	return out
}

// HasProvider reports whether provider is registered on the account.
func (u *User) HasProvider(provider ProviderID) bool {
	for _, p := range u.IdentityProviders() {
		if p == provider {
			return true
		}
	}
	return false
}
