// Package errors provides structured error handling with i18n support.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Lookup errors
	CodeNotFound Code = "NOT_FOUND"

	// Input errors
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeInvalidStatus   Code = "INVALID_STATUS"

	// Access errors
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeRateLimited     Code = "RATE_LIMITED"

	// State errors
	CodeConflict             Code = "CONFLICT"
	CodeTransitionNotAllowed Code = "TRANSITION_NOT_ALLOWED"

	// Deployment errors
	CodeConfiguration Code = "CONFIGURATION"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidArgument, CodeInvalidStatus:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeTransitionNotAllowed:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Internal reports whether the code hides its details from callers.
func (c Code) Internal() bool {
	return c.HTTPStatus() >= http.StatusInternalServerError
}
