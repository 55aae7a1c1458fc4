package dhl

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every typed error below matches its sentinel with errors.Is.
var (
	// ErrNotConfigured indicates missing client credentials at construction time.
	ErrNotConfigured = errors.New("dhl client is not configured")

	// ErrAuthentication matches any *AuthenticationError.
	ErrAuthentication = errors.New("dhl authentication failed")

	// ErrAPI matches any *APIError.
	ErrAPI = errors.New("dhl api error")

	// ErrDownloadLabel matches any *DownloadLabelError.
	ErrDownloadLabel = errors.New("dhl label download failed")
)

// AuthenticationError is returned when a bearer token cannot be obtained.
type AuthenticationError struct {
	StatusCode int
	Message    string
	Body       string // carrier error body, when the carrier answered
	Cause      error
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("dhl authentication error: %s: %v", e.Message, e.Cause)
	}
	return "dhl authentication error: " + e.Message
}

// Unwrap returns the underlying cause.
func (e *AuthenticationError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrAuthentication.
func (e *AuthenticationError) Is(target error) bool {
	return target == ErrAuthentication
}

// NewAuthenticationError creates a new AuthenticationError.
func NewAuthenticationError(message string) *AuthenticationError {
	return &AuthenticationError{Message: message}
}

// WithCause adds a cause to the error.
func (e *AuthenticationError) WithCause(err error) *AuthenticationError {
	e.Cause = err
	return e
}

// WithStatusCode adds the HTTP status returned by the auth endpoint.
func (e *AuthenticationError) WithStatusCode(code int) *AuthenticationError {
	e.StatusCode = code
	return e
}

// WithBody attaches the carrier error body.
func (e *AuthenticationError) WithBody(body string) *AuthenticationError {
	e.Body = body
	return e
}

// APIError is returned when a shipment or label call fails.
type APIError struct {
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("dhl api error: %s: %v", e.Message, e.Cause)
	}
	return "dhl api error: " + e.Message
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrAPI.
func (e *APIError) Is(target error) bool {
	return target == ErrAPI
}

// NewAPIError creates a new APIError.
func NewAPIError(message string) *APIError {
	return &APIError{Message: message}
}

// WithCause adds a cause to the error.
func (e *APIError) WithCause(err error) *APIError {
	e.Cause = err
	return e
}

// WithStatusCode adds an HTTP status code to the error.
func (e *APIError) WithStatusCode(code int) *APIError {
	e.StatusCode = code
	return e
}

// DownloadLabelError is returned when a label payload is missing, cannot be
// decoded, or cannot be written to disk.
type DownloadLabelError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *DownloadLabelError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("dhl label error: %s: %v", e.Message, e.Cause)
	}
	return "dhl label error: " + e.Message
}

// Unwrap returns the underlying cause.
func (e *DownloadLabelError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is ErrDownloadLabel.
func (e *DownloadLabelError) Is(target error) bool {
	return target == ErrDownloadLabel
}

// NewDownloadLabelError creates a new DownloadLabelError.
func NewDownloadLabelError(message string) *DownloadLabelError {
	return &DownloadLabelError{Message: message}
}

// WithCause adds a cause to the error.
func (e *DownloadLabelError) WithCause(err error) *DownloadLabelError {
	e.Cause = err
	return e
}

// isDomainError reports whether err already belongs to the taxonomy and must
// be returned unchanged.
func isDomainError(err error) bool {
	return errors.Is(err, ErrAuthentication) || errors.Is(err, ErrAPI) || errors.Is(err, ErrDownloadLabel)
}
