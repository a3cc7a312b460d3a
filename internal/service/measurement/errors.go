package measurement

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nutriadmin/admin-api/internal/repository"
	apperrors "github.com/nutriadmin/admin-api/pkg/errors"
)

// ValidationError rejects an upload whose workbook is unreadable or whose
// parsed document has no session date or no usable measurements.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid measurement file: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// DuplicateFileError reports that the same content was already imported for
// the subject group and session date.
type DuplicateFileError struct {
	SessionID uuid.UUID
}

func (e *DuplicateFileError) Error() string {
	return fmt.Sprintf("file already imported in session %s", e.SessionID)
}

// ImportError wraps a storage failure that aborted the import.
type ImportError struct {
	Err error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import failed: %v", e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

// ToAppError maps service errors onto application error codes.
func ToAppError(err error) *apperrors.AppError {
	if appErr, ok := apperrors.As(err); ok {
		return appErr
	}

	var validationErr *ValidationError
	var duplicateErr *DuplicateFileError
	switch {
	case errors.As(err, &validationErr):
		return apperrors.Unprocessable("invalid measurement file", validationErr.Err)
	case errors.As(err, &duplicateErr):
		return apperrors.Conflict("file already imported", duplicateErr)
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound("resource", err)
	default:
		return apperrors.Internal(err)
	}
}
