package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Validation Errors (VALIDATION_*)
	ErrorCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// Capability Errors
	ErrorCodeFeatureUnsupported   ErrorCode = "FEATURE_UNSUPPORTED"
	ErrorCodeInvalidConfiguration ErrorCode = "INVALID_CONFIGURATION"

	// Payment Gateway Errors (GATEWAY_*)
	ErrorCodeGatewayError ErrorCode = "GATEWAY_ERROR"

	// Token Errors (TOKEN_*)
	ErrorCodeTokenNotFound      ErrorCode = "TOKEN_NOT_FOUND"
	ErrorCodeTokenInvalid       ErrorCode = "TOKEN_INVALID"
	ErrorCodeTokenizationFailed ErrorCode = "TOKENIZATION_FAILED"

	// Order Errors
	ErrorCodeOrderNotFound ErrorCode = "ORDER_NOT_FOUND"

	// Capture Errors
	ErrorCodeAlreadyCaptured      ErrorCode = "ALREADY_CAPTURED"
	ErrorCodeNotCapturable        ErrorCode = "NOT_CAPTURABLE"
	ErrorCodeCaptureInProgress    ErrorCode = "CAPTURE_IN_PROGRESS"
	ErrorCodeAuthorizationExpired ErrorCode = "AUTHORIZATION_EXPIRED"

	// Internal Errors
	ErrorCodeStorageError ErrorCode = "STORAGE_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches another DomainError by code so sentinels work with errors.Is.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsTokenError reports whether err means the referenced token cannot be used.
func IsTokenError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeTokenNotFound || code == ErrorCodeTokenInvalid
}

// IsCaptureRefusal reports whether err is a capture guard refusal rather than a failure.
func IsCaptureRefusal(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeAlreadyCaptured ||
		code == ErrorCodeNotCapturable ||
		code == ErrorCodeCaptureInProgress
}

// Structured error instances
var (
	ErrValidationFailed     = NewDomainError(ErrorCodeValidationFailed, "validation failed")
	ErrFeatureUnsupported   = NewDomainError(ErrorCodeFeatureUnsupported, "feature not supported by gateway")
	ErrInvalidConfiguration = NewDomainError(ErrorCodeInvalidConfiguration, "invalid gateway configuration")
	ErrGatewayError         = NewDomainError(ErrorCodeGatewayError, "payment gateway error")

	ErrTokenNotFound      = NewDomainError(ErrorCodeTokenNotFound, "payment token not found")
	ErrTokenInvalid       = NewDomainError(ErrorCodeTokenInvalid, "payment token is invalid")
	ErrTokenizationFailed = NewDomainError(ErrorCodeTokenizationFailed, "tokenization failed")

	ErrOrderNotFound = NewDomainError(ErrorCodeOrderNotFound, "order not found")

	ErrAlreadyCaptured      = NewDomainError(ErrorCodeAlreadyCaptured, "charge already captured")
	ErrNotCapturable        = NewDomainError(ErrorCodeNotCapturable, "order is not eligible for capture")
	ErrCaptureInProgress    = NewDomainError(ErrorCodeCaptureInProgress, "capture already in progress")
	ErrAuthorizationExpired = NewDomainError(ErrorCodeAuthorizationExpired, "authorization has expired")

	ErrStorageError = NewDomainError(ErrorCodeStorageError, "storage error")
)

// FieldError is a single per-field validation problem shown to the customer.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects field problems found before any gateway call.
type ValidationErrors struct {
	Fields []FieldError
}

// Add records a problem for field.
func (v *ValidationErrors) Add(field, message string) {
	v.Fields = append(v.Fields, FieldError{Field: field, Message: message})
}

// HasErrors reports whether any field failed.
func (v *ValidationErrors) HasErrors() bool {
	return v != nil && len(v.Fields) > 0
}

// Error implements the error interface
func (v *ValidationErrors) Error() string {
	if !v.HasErrors() {
		return "validation failed"
	}
	msg := "validation failed: " + v.Fields[0].Field + ": " + v.Fields[0].Message
	if len(v.Fields) > 1 {
		msg += fmt.Sprintf(" (and %d more)", len(v.Fields)-1)
	}
	return msg
}

// Is lets errors.Is(err, ErrValidationFailed) match.
func (v *ValidationErrors) Is(target error) bool {
	return target == ErrValidationFailed
}

// OrNil returns v as an error only when it holds problems.
func (v *ValidationErrors) OrNil() error {
	if v.HasErrors() {
		return v
	}
	return nil
}
