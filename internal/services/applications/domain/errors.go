// Package domain implements the job application status workflow: the status
// catalog, application records, the authorization of status transitions and
// the append-only history ledger.
package domain

import (
	"errors"

	apperrors "github.com/ansa-jobboard/jobboard/internal/platform/errors"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a concurrent write or a referential constraint won.
	ErrConflict = errors.New("record conflict")
)

func notFound(resource string, cause error) error {
	return apperrors.WrapWithMetadata(apperrors.CodeNotFound, resource+" not found", map[string]string{"Resource": resource}, cause)
}

func invalidStatus(code string, cause error) error {
	return apperrors.WrapWithMetadata(apperrors.CodeInvalidStatus, "unknown status "+code, map[string]string{"StatusCode": code}, cause)
}

func invalidArgument(field, message string) error {
	return apperrors.WithMetadata(apperrors.CodeInvalidArgument, message, map[string]string{"Field": field})
}

func forbidden(message string) error {
	return apperrors.New(apperrors.CodeForbidden, message)
}
