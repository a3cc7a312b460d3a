package spreadsheet

import (
	"errors"

	"github.com/nutriadmin/admin-api/internal/model"
)

var (
	ErrMissingSessionDate = errors.New("session date could not be resolved")
	ErrNoMeasurements     = errors.New("no usable measurements found")
)

// Validate rejects documents that cannot be imported. It runs before any
// storage access.
func Validate(doc *model.ParsedDocument) error {
	if doc == nil || doc.SessionDate.IsZero() {
		return ErrMissingSessionDate
	}
	if len(doc.Measurements) == 0 {
		return ErrNoMeasurements
	}
	return nil
}
