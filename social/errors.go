package social

import (
	"net/http"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeProviderNotFound  = "social_provider_not_found"
	TextCodeInvalidState      = "social_invalid_state"
	TextCodeStateExpired      = "social_state_expired"
	TextCodeTokenExchangeFail = "social_token_exchange_failed"
	TextCodeUserInfoFail      = "social_user_info_failed"
	TextCodeEmailLookupFail   = "EMAIL_LOOKUP_FAILED"
)

// ErrProviderNotFound is returned when a requested provider is not configured.
var ErrProviderNotFound = errors.New("social provider not found", errors.CategoryNotFound).
	WithTextCode(TextCodeProviderNotFound).
	WithCode(errors.CodeNotFound)

// ErrInvalidState is returned when the OAuth state is invalid or tampered.
var ErrInvalidState = errors.New("invalid oauth state", errors.CategoryBadInput).
	WithTextCode(TextCodeInvalidState).
	WithCode(errors.CodeBadRequest)

// ErrStateExpired is returned when the OAuth state has expired.
var ErrStateExpired = errors.New("oauth state expired", errors.CategoryBadInput).
	WithTextCode(TextCodeStateExpired).
	WithCode(errors.CodeBadRequest)

// ErrTokenExchangeFailed is returned when a provider token exchange fails.
var ErrTokenExchangeFailed = errors.New("token exchange failed", errors.CategoryOperation).
	WithTextCode(TextCodeTokenExchangeFail).
	WithCode(http.StatusBadGateway)

// ErrUserInfoFailed is returned when fetching user info fails.
var ErrUserInfoFailed = errors.New("failed to fetch user info", errors.CategoryOperation).
	WithTextCode(TextCodeUserInfoFail).
	WithCode(http.StatusBadGateway)

// ErrEmailLookupFailed is returned when the provider email endpoint could
// not be read. It is distinct from a lookup that found no usable email.
var ErrEmailLookupFailed = errors.New("email lookup failed", errors.CategoryOperation).
	WithTextCode(TextCodeEmailLookupFail).
	WithCode(http.StatusBadGateway)
