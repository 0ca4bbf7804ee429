package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code so cloned errors still compare equal.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict     = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss    = New("CACHE_MISS", http.StatusNotFound, "cache miss")

	ErrScopeIncomplete   = New("SCOPE_INCOMPLETE", http.StatusBadRequest, "please select division, paper, academic year, semester, date and time slot")
	ErrRenderFailed      = New("QR_RENDER_FAILED", http.StatusInternalServerError, "QR code image is not ready, please try again")
	ErrUploadFailed      = New("QR_UPLOAD_FAILED", http.StatusBadGateway, "failed to upload QR code image")
	ErrPersistFailed     = New("QR_PERSIST_FAILED", http.StatusBadGateway, "failed to save QR code session")
	ErrUpstream          = New("UPSTREAM_ERROR", http.StatusBadGateway, "college service request failed")
	ErrNoActiveSession   = New("NO_ACTIVE_SESSION", http.StatusConflict, "no active QR session")
	ErrNoExistingSession = New("NO_EXISTING_SESSION", http.StatusNotFound, "no existing QR session for the selected class")
	ErrGenerating        = New("SESSION_GENERATING", http.StatusConflict, "a QR session is already being generated")
	ErrHistoryDisabled   = New("HISTORY_DISABLED", http.StatusServiceUnavailable, "session history is disabled")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WrapAs wraps err with the code and status of base, optionally overriding the message.
func WrapAs(base *Error, err error, message string) *Error {
	if message == "" {
		message = base.Message
	}
	return Wrap(err, base.Code, base.Status, message)
}
