package authgate

import "strings"

// ProviderID names the family of identity source a principal came from.
type ProviderID string

const (
	ProviderEmail  ProviderID = "EMAIL"
	ProviderGitHub ProviderID = "GITHUB"
	ProviderGoogle ProviderID = "GOOGLE"
)

// String implements fmt.Stringer.
func (p ProviderID) String() string {
	return string(p)
}

// Valid reports whether p is one of the known providers.
func (p ProviderID) Valid() bool {
	switch p {
	case ProviderEmail, ProviderGitHub, ProviderGoogle:
		return true
	}
	return false
}

// ParseProviderID maps an enum name or a client registration id
// ("github", "google", "local") to its provider family.
func ParseProviderID(s string) (ProviderID, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "EMAIL", "LOCAL", "PASSWORD":
		return ProviderEmail, true
	case "GITHUB":
		return ProviderGitHub, true
	case "GOOGLE":
		return ProviderGoogle, true
	}
	return "", false
}
