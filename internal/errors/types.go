// Package errors defines the site's error taxonomy. Every failure that
// crosses a package boundary is a *SiteError whose Type decides how callers
// react: composers fall back, editors keep drafts, and the HTTP layer picks
// a status with HTTPStatus.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeUnavailable   ErrorType = "unavailable"
	ErrorTypeMalformedEdit ErrorType = "malformed_edit"
	ErrorTypeSaveFailed    ErrorType = "save_failed"
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeConflict      ErrorType = "conflict"
	ErrorTypeForbidden     ErrorType = "forbidden"
	ErrorTypeConfig        ErrorType = "config"
	ErrorTypeInternal      ErrorType = "internal"
)

// Sentinel errors usable with errors.Is. Matching is done on Type and Code.
var (
	ErrNotFound       = &SiteError{Type: ErrorTypeNotFound, Code: "NOT_FOUND"}
	ErrUnavailable    = &SiteError{Type: ErrorTypeUnavailable, Code: "UNAVAILABLE"}
	ErrMalformedEdit  = &SiteError{Type: ErrorTypeMalformedEdit, Code: "MALFORMED_EDIT"}
	ErrSaveFailed     = &SiteError{Type: ErrorTypeSaveFailed, Code: "SAVE_FAILED"}
	ErrSaveInProgress = &SiteError{Type: ErrorTypeConflict, Code: "SAVE_IN_PROGRESS"}
	ErrSystemPage     = &SiteError{Type: ErrorTypeForbidden, Code: "SYSTEM_PAGE"}
	ErrNoSession      = &SiteError{Type: ErrorTypeNotFound, Code: "NO_EDIT_SESSION"}
)

// SiteError is a structured error type with context.
type SiteError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Recoverable bool
}

// Error implements the error interface.
func (e *SiteError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if id, ok := e.Context["id"]; ok {
		parts = append(parts, fmt.Sprintf("id:%v", id))
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else {
		parts = append(parts, strings.ReplaceAll(string(e.Type), "_", " "))
	}

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *SiteError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *SiteError) Is(target error) bool {
	var t *SiteError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *SiteError) WithContext(key string, value interface{}) *SiteError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// NewNotFoundError reports a missing page or section.
func NewNotFoundError(kind, id string) *SiteError {
	return (&SiteError{
		Type:        ErrorTypeNotFound,
		Code:        "NOT_FOUND",
		Message:     kind + " not found",
		Recoverable: true,
	}).WithContext("id", id)
}

// NewUnavailableError wraps a failed or timed out repository call.
func NewUnavailableError(op string, cause error) *SiteError {
	return &SiteError{
		Type:        ErrorTypeUnavailable,
		Code:        "UNAVAILABLE",
		Message:     op + " failed",
		Cause:       cause,
		Recoverable: true,
	}
}

// NewMalformedEditError rejects operator input that is not a structured document.
func NewMalformedEditError(message string, cause error) *SiteError {
	return &SiteError{
		Type:        ErrorTypeMalformedEdit,
		Code:        "MALFORMED_EDIT",
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewSaveFailedError wraps a rejected create or update.
func NewSaveFailedError(sectionID string, cause error) *SiteError {
	return (&SiteError{
		Type:        ErrorTypeSaveFailed,
		Code:        "SAVE_FAILED",
		Message:     "save failed",
		Cause:       cause,
		Recoverable: true,
	}).WithContext("id", sectionID)
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *SiteError {
	return &SiteError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewConflictError reports a write that clashes with existing state.
func NewConflictError(code, message string) *SiteError {
	return &SiteError{
		Type:        ErrorTypeConflict,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *SiteError {
	return &SiteError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *SiteError {
	return &SiteError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// Error classification utilities

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var se *SiteError
	if errors.As(err, &se) {
		return se.Recoverable
	}

	return false
}

// IsNotFound reports whether err is in the not-found class.
func IsNotFound(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// IsUnavailable reports whether err is in the unavailable class. Context
// deadlines and cancellations count as unavailable too.
func IsUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	return hasType(err, ErrorTypeUnavailable)
}

// IsMalformedEdit reports whether err rejected operator input.
func IsMalformedEdit(err error) bool {
	return hasType(err, ErrorTypeMalformedEdit)
}

// IsSaveFailed reports whether err is a failed save.
func IsSaveFailed(err error) bool {
	return hasType(err, ErrorTypeSaveFailed)
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsConflict reports whether err is a uniqueness or state conflict.
func IsConflict(err error) bool {
	return hasType(err, ErrorTypeConflict)
}

func hasType(err error, t ErrorType) bool {
	var se *SiteError
	if errors.As(err, &se) {
		return se.Type == t
	}

	return false
}

// HTTPStatus maps the error taxonomy to a response status.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if IsUnavailable(err) {
		return http.StatusServiceUnavailable
	}

	var se *SiteError
	if !errors.As(err, &se) {
		return http.StatusInternalServerError
	}

	switch se.Type {
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeMalformedEdit, ErrorTypeValidation:
		return http.StatusUnprocessableEntity
	case ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypeForbidden:
		return http.StatusForbidden
	case ErrorTypeSaveFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
