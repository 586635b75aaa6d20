package authgate

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIErrorResponse is the single error envelope rendered by every entry
// point. Empty optional fields are omitted from the JSON form.
type APIErrorResponse struct {
	Timestamp    time.Time    `json:"timestamp"`
	StatusCode   int          `json:"statusCode"`
	ErrorCode    string       `json:"errorCode"`
	Message      string       `json:"message,omitempty"`
	Path         string       `json:"path,omitempty"`
	Errors       []FieldError `json:"errors,omitempty"`
	AuthProvider string       `json:"authProvider,omitempty"`
	ActionToken  string       `json:"actionToken,omitempty"`
}

// NewErrorResponse builds an envelope for code. The first non empty
// message overrides the registry default.
func NewErrorResponse(code ErrorCode, path string, message ...string) *APIErrorResponse {
	msg := code.DefaultMessage
	if len(message) > 0 && message[0] != "" {
		msg = message[0]
	}
	return &APIErrorResponse{
		Timestamp:  time.Now().UTC(),
		StatusCode: code.Status,
		ErrorCode:  code.Code,
		Message:    msg,
		Path:       path,
	}
}

// WithFieldErrors attaches field level errors.
func (r *APIErrorResponse) WithFieldErrors(errs ...FieldError) *APIErrorResponse {
	r.Errors = append(r.Errors, errs...)
	return r
}

// WithActionToken attaches a continuation token for link or register flows.
func (r *APIErrorResponse) WithActionToken(token string) *APIErrorResponse {
	r.ActionToken = token
	return r
}

// Write renders the envelope as JSON with its status code.
func (r *APIErrorResponse) Write(w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(r.StatusCode)
	return json.NewEncoder(w).Encode(r)
}

// ErrorResponseFromError maps err onto the registry and builds an envelope.
func ErrorResponseFromError(err error, path string) *APIErrorResponse {
	if le, ok := AsLinkError(err); ok {
		resp := NewErrorResponse(le.Code, path, le.Error())
		resp.AuthProvider = le.AuthProvider
		return resp
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		return NewErrorResponse(CodeValidationFailed, path).WithFieldErrors(FieldErrors(verrs)...)
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if code, ok := LookupErrorCode(richErr.TextCode); ok {
			return NewErrorResponse(code, path, richErr.Message)
		}
		if richErr.Code == CodeProviderFailure.Status {
			return NewErrorResponse(CodeProviderFailure, path)
		}
		switch richErr.Category {
		case goerrors.CategoryAuth:
			return NewErrorResponse(CodeInvalidCredentials, path)
		case goerrors.CategoryAuthz:
			return NewErrorResponse(CodeAccessDenied, path)
		case goerrors.CategoryValidation, goerrors.CategoryBadInput:
			return NewErrorResponse(CodeValidationFailed, path, richErr.Message)
		case goerrors.CategoryNotFound:
			return NewErrorResponse(CodeNotFound, path, richErr.Message)
		}
	}

	return NewErrorResponse(CodeInternal, path)
}

// FieldErrors flattens ozzo validation errors into a list sorted by field.
func FieldErrors(errs validation.Errors) []FieldError {
	out := make([]FieldError, 0, len(errs))
	flattenFieldErrors("", errs, &out)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Field < out[j].Field
	})
	return out
}

func flattenFieldErrors(prefix string, errs validation.Errors, out *[]FieldError) {
	for field, err := range errs {
		if err == nil {
			continue
		}
		name := field
		if prefix != "" {
			name = prefix + "." + field
		}
		var nested validation.Errors
		if errors.As(err, &nested) {
			flattenFieldErrors(name, nested, out)
			continue
		}
		*out = append(*out, FieldError{Field: name, Message: err.Error()})
	}
}
