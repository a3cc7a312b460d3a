package model

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

type Patient struct {
	Base
	Name    string `db:"name" json:"name"`
	NameKey string `db:"name_key" json:"-"`
	Active  bool   `db:"active" json:"active"`
}

// SubjectGroup is a named cohort ("plantel") that import sessions belong to.
type SubjectGroup struct {
	Base
	Name    string `db:"name" json:"name"`
	NameKey string `db:"name_key" json:"-"`
}

// DisplayName returns the NFC form of name with surrounding and repeated
// inner whitespace removed.
func DisplayName(name string) string {
	return strings.Join(strings.Fields(norm.NFC.String(name)), " ")
}

// NameKey is the identity used to match patients and subject groups by name.
// Case is ignored, accents are not: "Ana Pérez" and "ANA PÉREZ" share a key,
// "ANA PEREZ" does not.
func NameKey(name string) string {
	return norm.NFC.String(cases.Fold().String(DisplayName(name)))
}

// PatientMeasurementFilter narrows a patient's measurement history.
type PatientMeasurementFilter struct {
	PatientID uuid.UUID
	Pagination
}
