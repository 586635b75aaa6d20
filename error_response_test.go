package authgate_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation"
	authgate "github.com/goliatone/go-authgate"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrorResponse(t *testing.T) {
	resp := authgate.NewErrorResponse(authgate.CodeAccessDenied, "/api/admin")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "ACCESS_DENIED", resp.ErrorCode)
	assert.Equal(t, authgate.CodeAccessDenied.DefaultMessage, resp.Message)
	assert.Equal(t, "/api/admin", resp.Path)
	assert.False(t, resp.Timestamp.IsZero())

	resp = authgate.NewErrorResponse(authgate.CodeAccessDenied, "/api/admin", "", "ignored")
	assert.Equal(t, authgate.CodeAccessDenied.DefaultMessage, resp.Message)

	resp = authgate.NewErrorResponse(authgate.CodeAccessDenied, "/api/admin", "nope")
	assert.Equal(t, "nope", resp.Message)
}

func TestErrorResponseFromError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   authgate.ErrorCode
		status int
	}{
		{
			name:   "invalid credentials",
			err:    authgate.ErrInvalidCredentials,
			code:   authgate.CodeInvalidCredentials,
			status: http.StatusUnauthorized,
		},
		{
			name:   "wrapped link error",
			err:    fmt.Errorf("callback: %w", &authgate.LinkError{Code: authgate.CodeUserNotRegistered, AuthProvider: "github"}),
			code:   authgate.CodeUserNotRegistered,
			status: http.StatusUnauthorized,
		},
		{
			name:   "token error",
			err:    authgate.ErrTokenExpired,
			code:   authgate.CodeInvalidCredentials,
			status: http.StatusUnauthorized,
		},
		{
			name:   "authorization category",
			err:    goerrors.New("forbidden", goerrors.CategoryAuthz),
			code:   authgate.CodeAccessDenied,
			status: http.StatusForbidden,
		},
		{
			name:   "not found category",
			err:    goerrors.New("no such provider", goerrors.CategoryNotFound),
			code:   authgate.CodeNotFound,
			status: http.StatusNotFound,
		},
		{
			name:   "bad gateway code",
			err:    goerrors.New("upstream", goerrors.CategoryOperation).WithCode(http.StatusBadGateway),
			code:   authgate.CodeProviderFailure,
			status: http.StatusBadGateway,
		},
		{
			name:   "bad input category",
			err:    goerrors.New("bad state", goerrors.CategoryBadInput),
			code:   authgate.CodeValidationFailed,
			status: http.StatusBadRequest,
		},
		{
			name:   "plain error",
			err:    errors.New("disk full"),
			code:   authgate.CodeInternal,
			status: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := authgate.ErrorResponseFromError(tt.err, "/p")
			assert.Equal(t, tt.code.Code, resp.ErrorCode)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, "/p", resp.Path)
		})
	}
}

func TestErrorResponseFromError_LinkErrorFields(t *testing.T) {
	resp := authgate.ErrorResponseFromError(&authgate.LinkError{
		Code:         authgate.CodeAuthProviderNotLinked,
		AuthProvider: "google",
		Email:        "ada@example.com",
		Message:      "not linked",
	}, "/auth/oauth2/google/callback")

	assert.Equal(t, "google", resp.AuthProvider)
	assert.Equal(t, "not linked", resp.Message)
	assert.Empty(t, resp.ActionToken)
}

func TestErrorResponseFromError_Validation(t *testing.T) {
	err := validation.Errors{
		"password": errors.New("cannot be blank"),
		"email":    errors.New("must be a valid email address"),
		"profile": validation.Errors{
			"name": errors.New("too long"),
		},
	}

	resp := authgate.ErrorResponseFromError(err, "/auth/login")
	assert.Equal(t, authgate.CodeValidationFailed.Code, resp.ErrorCode)
	assert.Equal(t, []authgate.FieldError{
		{Field: "email", Message: "must be a valid email address"},
		{Field: "password", Message: "cannot be blank"},
		{Field: "profile.name", Message: "too long"},
	}, resp.Errors)
}

func TestAPIErrorResponse_Write(t *testing.T) {
	rec := httptest.NewRecorder()
	resp := authgate.NewErrorResponse(authgate.CodeUserNotRegistered, "/cb").WithActionToken("tok")
	resp.AuthProvider = "github"

	require.NoError(t, resp.Write(rec))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(401), body["statusCode"])
	assert.Equal(t, "user_not_registered", body["errorCode"])
	assert.Equal(t, "github", body["authProvider"])
	assert.Equal(t, "tok", body["actionToken"])
	assert.NotContains(t, body, "errors")
	assert.Contains(t, body, "timestamp")
}

func TestLookupErrorCode(t *testing.T) {
	code, ok := authgate.LookupErrorCode("email_missing")
	require.True(t, ok)
	assert.Equal(t, authgate.CodeEmailMissing, code)

	_, ok = authgate.LookupErrorCode("SOMETHING_ELSE")
	assert.False(t, ok)
}
