package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeInvalidToken        ErrorType = "invalid_token"
	ErrorTypeNotFound            ErrorType = "not_found"
	ErrorTypeInvalidCredential   ErrorType = "invalid_credential"
	ErrorTypeAlreadyExists       ErrorType = "already_exists"
	ErrorTypeUnauthorized        ErrorType = "unauthorized"
	ErrorTypeForbidden           ErrorType = "forbidden"
	ErrorTypeRateLimited         ErrorType = "rate_limited"
	ErrorTypeBotDetected         ErrorType = "bot_detected"
	ErrorTypeRequestBlocked      ErrorType = "request_blocked"
	ErrorTypeUpstreamUnavailable ErrorType = "upstream_unavailable"
	ErrorTypeValidation          ErrorType = "validation"
	ErrorTypeInternal            ErrorType = "internal"
)

// DomainError represents a structured error with additional context.
// Message is safe to show to clients; Err is for logs only.
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

// Wrap returns a copy of e carrying cause. Sentinels stay untouched.
func (e *DomainError) Wrap(cause error) *DomainError {
	return NewDomainError(e.Type, e.Message, cause)
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

// Sentinels. Use Wrap or NewDomainError before attaching details.
var (
	ErrInvalidToken        = NewDomainError(ErrorTypeInvalidToken, "invalid authentication token", nil)
	ErrNotFound            = NewDomainError(ErrorTypeNotFound, "resource not found", nil)
	ErrUserNotFound        = NewDomainError(ErrorTypeNotFound, "user not found", nil)
	ErrInvalidCredential   = NewDomainError(ErrorTypeInvalidCredential, "invalid email or password", nil)
	ErrAlreadyExists       = NewDomainError(ErrorTypeAlreadyExists, "user with this email already exists", nil)
	ErrUnauthorized        = NewDomainError(ErrorTypeUnauthorized, "authentication required", nil)
	ErrForbidden           = NewDomainError(ErrorTypeForbidden, "insufficient permissions", nil)
	ErrCannotDeleteSelf    = NewDomainError(ErrorTypeForbidden, "you cannot delete your own account", nil)
	ErrRateLimited         = NewDomainError(ErrorTypeRateLimited, "too many requests", nil)
	ErrBotDetected         = NewDomainError(ErrorTypeBotDetected, "automated requests are not allowed", nil)
	ErrRequestBlocked      = NewDomainError(ErrorTypeRequestBlocked, "request blocked by security policy", nil)
	ErrUpstreamUnavailable = NewDomainError(ErrorTypeUpstreamUnavailable, "service temporarily unavailable", nil)
	ErrInvalidInput        = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrInternal            = NewDomainError(ErrorTypeInternal, "internal server error", nil)
)

// Error type checking helper functions

func isType(err error, errType ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == errType
	}
	return false
}

// IsInvalidTokenError checks if an error is a token verification failure
func IsInvalidTokenError(err error) bool { return isType(err, ErrorTypeInvalidToken) }

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool { return isType(err, ErrorTypeNotFound) }

// IsInvalidCredentialError checks if an error is a password mismatch
func IsInvalidCredentialError(err error) bool { return isType(err, ErrorTypeInvalidCredential) }

// IsAlreadyExistsError checks if an error is a uniqueness conflict
func IsAlreadyExistsError(err error) bool { return isType(err, ErrorTypeAlreadyExists) }

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool { return isType(err, ErrorTypeUnauthorized) }

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool { return isType(err, ErrorTypeForbidden) }

// IsRateLimitedError checks if an error is a rate limit error
func IsRateLimitedError(err error) bool { return isType(err, ErrorTypeRateLimited) }

// IsBotDetectedError checks if an error is a bot verdict
func IsBotDetectedError(err error) bool { return isType(err, ErrorTypeBotDetected) }

// IsRequestBlockedError checks if an error is a shield verdict
func IsRequestBlockedError(err error) bool { return isType(err, ErrorTypeRequestBlocked) }

// IsUpstreamUnavailableError checks if a collaborator failed
func IsUpstreamUnavailableError(err error) bool { return isType(err, ErrorTypeUpstreamUnavailable) }

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool { return isType(err, ErrorTypeValidation) }

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool { return isType(err, ErrorTypeInternal) }

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
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

// PublicMessage returns the client-safe message of a domain error.
func PublicMessage(err error, fallback string) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) && domainErr.Message != "" {
		return domainErr.Message
	}
	return fallback
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapUpstream wraps a persistence or detector failure
func WrapUpstream(message string, err error) error {
	return NewDomainError(ErrorTypeUpstreamUnavailable, message, err)
}
