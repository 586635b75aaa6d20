package authgate

import (
	"errors"
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// ErrorCode is an entry of the closed error registry. Code is what clients
// see as errorCode, Status is the HTTP status used when rendering.
type ErrorCode struct {
	Code           string
	Status         int
	DefaultMessage string
}

var (
	CodeInvalidCredentials = ErrorCode{
		Code:           "INVALID_CREDENTIALS",
		Status:         http.StatusUnauthorized,
		DefaultMessage: "Invalid or missing authentication credentials",
	}
	CodeAccessDenied = ErrorCode{
		Code:           "ACCESS_DENIED",
		Status:         http.StatusForbidden,
		DefaultMessage: "You do not have permission to access this resource",
	}
	CodeEmailMissing = ErrorCode{
		Code:           "email_missing",
		Status:         http.StatusUnauthorized,
		DefaultMessage: "Provider account has no accessible email",
	}
	CodeUserNotRegistered = ErrorCode{
		Code:           "user_not_registered",
		Status:         http.StatusUnauthorized,
		DefaultMessage: "No user exists with this email",
	}
	CodeAuthProviderNotLinked = ErrorCode{
		Code:           "auth_provider_not_linked",
		Status:         http.StatusUnauthorized,
		DefaultMessage: "This sign-in method is not linked with the account",
	}
	CodeValidationFailed = ErrorCode{
		Code:           "VALIDATION_FAILED",
		Status:         http.StatusBadRequest,
		DefaultMessage: "Request validation failed",
	}
	CodeNotFound = ErrorCode{
		Code:           "NOT_FOUND",
		Status:         http.StatusNotFound,
		DefaultMessage: "Resource not found",
	}
	CodeProviderFailure = ErrorCode{
		Code:           "PROVIDER_FAILURE",
		Status:         http.StatusBadGateway,
		DefaultMessage: "Identity provider request failed",
	}
	CodeInternal = ErrorCode{
		Code:           "INTERNAL_ERROR",
		Status:         http.StatusInternalServerError,
		DefaultMessage: "An unexpected error occurred",
	}
)

var registry = map[string]ErrorCode{}

func init() {
	for _, c := range []ErrorCode{
		CodeInvalidCredentials,
		CodeAccessDenied,
		CodeEmailMissing,
		CodeUserNotRegistered,
		CodeAuthProviderNotLinked,
		CodeValidationFailed,
		CodeNotFound,
		CodeProviderFailure,
		CodeInternal,
	} {
		registry[c.Code] = c
	}
}

// LookupErrorCode returns the registered entry for code.
func LookupErrorCode(code string) (ErrorCode, bool) {
	c, ok := registry[code]
	return c, ok
}

const (
	TextCodeTokenMalformed        = "TOKEN_MALFORMED"
	TextCodeTokenExpired          = "TOKEN_EXPIRED"
	TextCodeTokenInvalidSignature = "TOKEN_INVALID_SIGNATURE"
	TextCodeActionTokenPurpose    = "ACTION_TOKEN_PURPOSE"
)

// ErrTokenMalformed is returned when a token cannot be parsed.
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired is returned when the exp claim is in the past.
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenInvalidSignature is returned when the signature does not match the signing key.
var ErrTokenInvalidSignature = goerrors.New("token signature is invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalidSignature).
	WithCode(goerrors.CodeUnauthorized)

// ErrActionTokenPurpose is returned when an action token is used for the wrong flow.
var ErrActionTokenPurpose = goerrors.New("action token purpose mismatch", goerrors.CategoryAuth).
	WithTextCode(TextCodeActionTokenPurpose).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidCredentials is returned when a password login fails, whatever
// the reason.
var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode(CodeInvalidCredentials.Code).
	WithCode(goerrors.CodeUnauthorized)

// ErrUserNotFound is returned by stores when no account matches a lookup.
var ErrUserNotFound = errors.New("user not found")

// ErrInvalidPassword is returned by credential verifiers on password mismatch.
var ErrInvalidPassword = errors.New("invalid password")

// ErrNoEmptyString is returned when hashing an empty password.
var ErrNoEmptyString = errors.New("password must not be empty")

// IsTokenError reports whether err is one of the classified token failures.
func IsTokenError(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	switch richErr.TextCode {
	case TextCodeTokenMalformed, TextCodeTokenExpired, TextCodeTokenInvalidSignature, TextCodeActionTokenPurpose:
		return true
	}
	return false
}

// TokenErrorCode returns the text code of a classified token failure, or "".
func TokenErrorCode(err error) string {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return ""
	}
	return richErr.TextCode
}

// LinkError reports that an external identity could not be reconciled with
// a local account.
type LinkError struct {
	Code         ErrorCode
	AuthProvider string
	Email        string
	Message      string
}

func (e *LinkError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code.DefaultMessage
}

// Metadata returns the structured fields of the error, omitting empty ones.
func (e *LinkError) Metadata() map[string]any {
	meta := map[string]any{}
	if e.AuthProvider != "" {
		meta["authProvider"] = e.AuthProvider
	}
	if e.Email != "" {
		meta["email"] = e.Email
	}
	return meta
}

// RichError converts the link error into a go-errors value for handlers
// that work on categories.
func (e *LinkError) RichError() *goerrors.Error {
	return goerrors.New(e.Error(), goerrors.CategoryAuth).
		WithTextCode(e.Code.Code).
		WithCode(e.Code.Status).
		WithMetadata(e.Metadata())
}

// AsLinkError unwraps err into a *LinkError.
func AsLinkError(err error) (*LinkError, bool) {
	var le *LinkError
	if errors.As(err, &le) && le != nil {
		return le, true
	}
	return nil, false
}

func errEmailMissing(provider string) *LinkError {
	return &LinkError{
		Code:         CodeEmailMissing,
		AuthProvider: provider,
		Message:      fmt.Sprintf("%s account has no accessible email", provider),
	}
}

func errUserNotRegistered(provider, email string) *LinkError {
	return &LinkError{
		Code:         CodeUserNotRegistered,
		AuthProvider: provider,
		Email:        email,
		Message:      fmt.Sprintf("No user exists with email: %s", email),
	}
}

func errProviderNotLinked(provider, email string) *LinkError {
	return &LinkError{
		Code:         CodeAuthProviderNotLinked,
		AuthProvider: provider,
		Email:        email,
		Message:      fmt.Sprintf("The email %s is not linked with %s sign-in.", email, provider),
	}
}
