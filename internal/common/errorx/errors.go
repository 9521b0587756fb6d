package errorx

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorCategory groups errors surfaced over HTTP.
type ErrorCategory string

const (
	CategoryValidation     ErrorCategory = "validation"
	CategoryAuthentication ErrorCategory = "authentication"
	CategoryAuthorization  ErrorCategory = "authorization"
	CategoryNotFound       ErrorCategory = "not_found"
	CategoryInternal       ErrorCategory = "internal"
	CategoryUnavailable    ErrorCategory = "unavailable"
)

// APIError is the JSON error body of the console's HTTP endpoints.
type APIError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Category   ErrorCategory  `json:"category"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	TraceID    string         `json:"trace_id,omitempty"`
	Timestamp  string         `json:"timestamp,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Category, e.Message)
}

// JSON returns the error as a JSON string.
func (e *APIError) JSON() string {
	out, _ := json.Marshal(e)
	return string(out)
}

// WithDetail returns a copy of e carrying an additional detail.
func (e *APIError) WithDetail(key string, value any) *APIError {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

var (
	ErrInvalidInput = &APIError{
		Code:       "E1001",
		Message:    "Invalid input provided",
		Category:   CategoryValidation,
		HTTPStatus: http.StatusBadRequest,
	}

	ErrUnauthorized = &APIError{
		Code:       "E2001",
		Message:    "Authentication required",
		Category:   CategoryAuthentication,
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrForbidden = &APIError{
		Code:       "E3001",
		Message:    "Access denied",
		Category:   CategoryAuthorization,
		HTTPStatus: http.StatusForbidden,
	}

	ErrNotFound = &APIError{
		Code:       "E4001",
		Message:    "Resource not found",
		Category:   CategoryNotFound,
		HTTPStatus: http.StatusNotFound,
	}

	ErrInternalServer = &APIError{
		Code:       "E5001",
		Message:    "Internal server error occurred",
		Category:   CategoryInternal,
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrShuttingDown = &APIError{
		Code:       "E5002",
		Message:    "Console is shutting down",
		Category:   CategoryUnavailable,
		HTTPStatus: http.StatusServiceUnavailable,
	}
)
