// Package authgate authenticates API requests for a service that accepts
// password logins and GitHub or OpenID Connect sign-in.
//
// Login flows:
//   - Authenticator.Login verifies a password against the account store and
//     returns the login-success envelope with a signed access token.
//   - Authenticator.CompleteExternalLogin reconciles an identity resolved by a
//     provider with an existing local account through LinkVerifier. Accounts
//     are never created or linked on the fly; failures are LinkError values
//     carrying a registry code and, where a follow-up flow exists, an action
//     token.
//
// Request authentication:
//   - RequestAuthenticator inspects the Authorization header and attaches a
//     Principal built from verified token claims to the request context. It is
//     transport agnostic; middleware/jwtware adapts it to go-router and
//     net/http.
//
// Errors:
//   - Every failure rendered to clients goes through APIErrorResponse and the
//     closed ErrorCode registry.
package authgate
