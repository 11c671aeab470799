package domain

import (
	"fmt"
	"net/http"
)

// ErrorType represents the category of a gateway error.
type ErrorType string

const (
	// ErrorTypeConfig indicates a missing mandatory credential, endpoint,
	// or project ID. Raised before any network call; never retried.
	ErrorTypeConfig ErrorType = "config"

	// ErrorTypeAuthentication indicates the vendor rejected the credentials.
	ErrorTypeAuthentication ErrorType = "authentication"

	// ErrorTypePermission indicates a permission/authorization failure.
	ErrorTypePermission ErrorType = "permission"

	// ErrorTypeNotFound indicates a model or region mismatch. Drives the
	// single Vertex region-fallback retry; surfaced everywhere else.
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeRateLimit indicates rate limiting or quota exhaustion.
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeVendor indicates any other non-2xx vendor response. The
	// message always embeds the HTTP status and the vendor's raw body.
	ErrorTypeVendor ErrorType = "vendor"

	// ErrorTypeNetwork indicates a transport-level failure.
	ErrorTypeNetwork ErrorType = "network"

	// ErrorTypeConsent indicates the interactive OAuth consent flow failed
	// or was dismissed.
	ErrorTypeConsent ErrorType = "consent"
)

// APIError is the canonical error produced by adapters and the resolver.
type APIError struct {
	Type       ErrorType  `json:"type"`
	Message    string     `json:"message"`
	StatusCode int        `json:"-"`
	Provider   ProviderID `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Type, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// WithStatusCode sets the originating HTTP status code.
func (e *APIError) WithStatusCode(code int) *APIError {
	e.StatusCode = code
	return e
}

// WithProvider records which provider produced the error.
func (e *APIError) WithProvider(p ProviderID) *APIError {
	e.Provider = p
	return e
}

// NewAPIError creates a new canonical error.
func NewAPIError(errType ErrorType, message string) *APIError {
	return &APIError{Type: errType, Message: message}
}

// ErrConfig creates a configuration error.
func ErrConfig(message string) *APIError {
	return NewAPIError(ErrorTypeConfig, message)
}

// ErrAuthentication creates an authentication error.
func ErrAuthentication(message string) *APIError {
	return NewAPIError(ErrorTypeAuthentication, message)
}

// ErrNotFound creates a not-found error.
func ErrNotFound(message string) *APIError {
	return NewAPIError(ErrorTypeNotFound, message)
}

// ErrRateLimit creates a rate limit error.
func ErrRateLimit(message string) *APIError {
	return NewAPIError(ErrorTypeRateLimit, message)
}

// ErrVendor creates a generic vendor error.
func ErrVendor(message string) *APIError {
	return NewAPIError(ErrorTypeVendor, message)
}

// ErrNetwork creates a transport error.
func ErrNetwork(message string) *APIError {
	return NewAPIError(ErrorTypeNetwork, message)
}

// ErrConsent creates an OAuth consent error.
func ErrConsent(message string) *APIError {
	return NewAPIError(ErrorTypeConsent, message)
}

// FromStatus builds the canonical error for a vendor non-2xx response. The
// raw body is embedded verbatim so callers can distinguish auth, quota, and
// malformed-request failures.
func FromStatus(status int, body string) *APIError {
	msg := fmt.Sprintf("API error (status %d): %s", status, body)
	switch status {
	case http.StatusUnauthorized:
		return ErrAuthentication(msg).WithStatusCode(status)
	case http.StatusForbidden:
		return NewAPIError(ErrorTypePermission, msg).WithStatusCode(status)
	case http.StatusNotFound:
		return ErrNotFound(msg).WithStatusCode(status)
	case http.StatusTooManyRequests:
		return ErrRateLimit(msg).WithStatusCode(status)
	default:
		return ErrVendor(msg).WithStatusCode(status)
	}
}
