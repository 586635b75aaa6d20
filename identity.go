package authgate

// ExternalIdentity is the normalized result of a provider login, before
// it is reconciled with a local account.
type ExternalIdentity struct {
	Provider     ProviderID
	Registration string
	Email        string
	Attributes   map[string]any
	OIDC         *OIDCExtras
}

// LocalResolver resolves password logins. The stored account is the identity.
type LocalResolver struct{}

// Resolve returns the identity of a local account.
func (LocalResolver) Resolve(user *User) ExternalIdentity {
	if user == nil {
		return ExternalIdentity{Provider: ProviderEmail}
	}
	return ExternalIdentity{
		Provider:     ProviderEmail,
		Registration: "local",
		Email:        user.Email,
	}
}
