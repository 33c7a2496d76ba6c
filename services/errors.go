package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeMissingToken  ErrorType = "missing_token"
	ErrorTypeInvalidToken  ErrorType = "invalid_token"
	ErrorTypeUnauthorized  ErrorType = "unauthorized"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeAuthorization ErrorType = "authorization"
	ErrorTypeInternal      ErrorType = "internal"
)

// User facing messages. Invalid token and authorization messages are followed by the cause.
const (
	MsgMissingToken     = "No access token was found in request header."
	MsgValidationFailed = "Access token failed validation."
	MsgConfiguration    = "Failed to construct the on-behalf-of credential using your access token. " +
		"Ensure your function app is configured with the right Azure AD App registration."
	MsgInvalidToken  = "Access token is invalid."
	MsgAuthorization = "Failed to retrieve user profile from Microsoft Graph. The application may not be authorized."
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// withCause appends the cause text to a user facing message
func withCause(message string, err error) string {
	if err == nil {
		return message
	}
	return message + " " + err.Error()
}

// Sentinels, one per ErrorType, used as errors.Is targets. ErrMissingToken is also
// returned as is; never attach details to a sentinel.
var (
	ErrMissingToken     = &DomainError{Type: ErrorTypeMissingToken, Message: MsgMissingToken}
	ErrValidationFailed = &DomainError{Type: ErrorTypeUnauthorized, Message: MsgValidationFailed}
	ErrConfiguration    = &DomainError{Type: ErrorTypeConfiguration, Message: MsgConfiguration}
	ErrInvalidToken     = &DomainError{Type: ErrorTypeInvalidToken, Message: MsgInvalidToken}
	ErrAuthorization    = &DomainError{Type: ErrorTypeAuthorization, Message: MsgAuthorization}
	ErrInternal         = &DomainError{Type: ErrorTypeInternal, Message: "internal server error"}
)

// IsMissingTokenError checks if an error is a missing token error
func IsMissingTokenError(err error) bool {
	return errors.Is(err, ErrMissingToken)
}

// IsInvalidTokenError checks if an error is an invalid token error
func IsInvalidTokenError(err error) bool {
	return errors.Is(err, ErrInvalidToken)
}

// IsUnauthorizedError checks if an error is a token validation failure
func IsUnauthorizedError(err error) bool {
	return errors.Is(err, ErrValidationFailed)
}

// IsConfigurationError checks if an error is a credential configuration error
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsAuthorizationError checks if an error is a downstream authorization error
func IsAuthorizationError(err error) bool {
	return errors.Is(err, ErrAuthorization)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return errors.Is(err, ErrInternal)
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorMessage returns the user facing message of a domain error, or empty string if not a domain error
func GetErrorMessage(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}
