// Package apperr defines the typed error kinds shared across the portal's
// service layer. Components return these instead of ad hoc errors so that
// the HTTP boundary (internal/httpserver) can translate them into the fixed
// error envelope without re-deriving intent from error strings.
package apperr

import (
	"errors"
	"fmt"
)

// Kind enumerates the fixed error taxonomy used across the service layer and
// the HTTP error envelope.
type Kind string

const (
	KindInvalidInput           Kind = "INVALID_INPUT"
	KindInvalidFormat          Kind = "INVALID_INPUT"
	KindNotFound               Kind = "NOT_FOUND"
	KindConflict               Kind = "CONFLICT"
	KindUnauthorized           Kind = "UNAUTHORIZED"
	KindForbidden              Kind = "RBAC_FORBIDDEN"
	KindControllerUnavailable  Kind = "CONTROLLER_UNAVAILABLE"
	KindControllerTimeout      Kind = "CONTROLLER_TIMEOUT"
	KindRateLimited            Kind = "RATE_LIMITED"
	KindInternal               Kind = "INTERNAL_ERROR"
	KindDuplicateRedemption    Kind = "DUPLICATE_REDEMPTION"
	KindRetryExhausted         Kind = "RETRY_EXHAUSTED"
	KindOutsideWindow          Kind = "OUTSIDE_WINDOW"
	KindIntegrationUnavailable Kind = "INTEGRATION_UNAVAILABLE"
	KindExpired                Kind = "EXPIRED"
	KindRevoked                Kind = "REVOKED"
)

// Error is a typed error carrying a Kind and a guest-safe message. Internal
// detail (for audit/logging) is kept in the wrapped error only.
type Error struct {
	Kind    Kind
	Message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

// New creates an Error of the given kind with a guest/admin-safe message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind, preserving the underlying error
// for logging/audit while keeping Message as the safe, user-facing text.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, err: err}
}

// As extracts an *Error from err, if present.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or KindInternal if err is not an *Error.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}
