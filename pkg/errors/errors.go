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
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid credentials")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "an unexpected error occurred")

	// ErrInvalidCSRF aborts a state-changing request whose token does not
	// match the session-scoped one.
	ErrInvalidCSRF = New("INVALID_CSRF", http.StatusForbidden, "invalid CSRF token")
	// ErrNotEligible rejects evaluation of a teacher outside the student's
	// course/year assignments.
	ErrNotEligible = New("NOT_ELIGIBLE", http.StatusForbidden, "you are not allowed to evaluate this teacher")
	// ErrAlreadyEvaluated enforces the one-evaluation-per-teacher invariant.
	ErrAlreadyEvaluated = New("ALREADY_EVALUATED", http.StatusConflict, "you have already evaluated this teacher")
	// ErrIncompleteAnswers sends the student back to the form rather than the
	// dashboard; the code lets clients distinguish the redirect target.
	ErrIncompleteAnswers = New("INCOMPLETE_ANSWERS", http.StatusUnprocessableEntity, "please answer all questions")
	// ErrPeriodClosed rejects submissions outside an open evaluation period.
	ErrPeriodClosed = New("PERIOD_CLOSED", http.StatusConflict, "evaluations are not being accepted at this time")

	// ErrCacheMiss signals a missing cache entry to callers that fall back to
	// the primary store.
	ErrCacheMiss = New("CACHE_MISS", http.StatusNotFound, "cache miss")
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
