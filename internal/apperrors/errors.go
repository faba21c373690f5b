// internal/apperrors/errors.go
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies the failure class shared by the HTTP and realtime surfaces.
type Kind string

const (
	KindAuthenticationRequired Kind = "AUTHENTICATION_REQUIRED"
	KindPermissionDenied       Kind = "PERMISSION_DENIED"
	KindNotFound               Kind = "NOT_FOUND"
	KindConflict               Kind = "CONFLICT"
	KindLicenseViolation       Kind = "LICENSE_VIOLATION"
	KindValidation             Kind = "VALIDATION_ERROR"
	KindUnavailable            Kind = "UNAVAILABLE"
	KindInternal               Kind = "INTERNAL_ERROR"
)

// License denial sub-reasons, evaluated in this order by the license gate.
const (
	ReasonNoCompany         = "NO_COMPANY"
	ReasonNoLicense         = "NO_LICENSE"
	ReasonExpired           = "EXPIRED"
	ReasonSeatLimitExceeded = "SEAT_LIMIT_EXCEEDED"
)

// Websocket close codes for refused subscriptions.
const (
	CloseAuthenticationRequired = 4001
	CloseUnauthorizedScope      = 4003
	CloseInvalidScope           = 4004
)

type Error struct {
	Kind    Kind        `json:"kind"`
	Reason  string      `json:"reason,omitempty"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Reason, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func AuthenticationRequired(message string) *Error {
	if message == "" {
		message = "authentication required"
	}
	return New(KindAuthenticationRequired, message)
}

func PermissionDenied(message string) *Error {
	if message == "" {
		message = "permission denied"
	}
	return New(KindPermissionDenied, message)
}

// NotFound is also what cross-tenant lookups return, so that a wrong-tenant
// probe cannot distinguish "exists elsewhere" from "does not exist".
func NotFound(resource string) *Error {
	return New(KindNotFound, fmt.Sprintf("%s not found", resource))
}

func Conflict(message string) *Error {
	return New(KindConflict, message)
}

func LicenseViolation(reason, message string) *Error {
	return &Error{Kind: KindLicenseViolation, Reason: reason, Message: message}
}

func Validation(message string, details interface{}) *Error {
	return &Error{Kind: KindValidation, Message: message, Details: details}
}

func Unavailable(message string, cause error) *Error {
	return Wrap(KindUnavailable, message, cause)
}

func Internal(cause error) *Error {
	return Wrap(KindInternal, "internal server error", cause)
}

// KindOf classifies an arbitrary error; unknown errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// AsError returns the structured form of err, wrapping unknown errors.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// HTTPStatus maps an error kind to its response status.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuthenticationRequired:
		return http.StatusUnauthorized
	case KindPermissionDenied, KindLicenseViolation:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// CloseCode maps an error to the websocket close code used when a
// subscription is refused at connection time.
func CloseCode(err error) int {
	switch KindOf(err) {
	case KindAuthenticationRequired:
		return CloseAuthenticationRequired
	case KindNotFound, KindValidation:
		return CloseInvalidScope
	default:
		return CloseUnauthorizedScope
	}
}
