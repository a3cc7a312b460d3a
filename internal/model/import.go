package model

import (
	"time"

	"github.com/google/uuid"
)

// ImportSession records one accepted upload. (SubjectGroupID, SessionDate,
// ContentDigest) is unique.
type ImportSession struct {
	Base
	SubjectGroupID   uuid.UUID `db:"subject_group_id" json:"subject_group_id"`
	SubjectGroupName string    `db:"subject_group_name" json:"subject_group_name,omitempty"`
	ImportedByID     uuid.UUID `db:"imported_by" json:"imported_by"`
	SessionDate      time.Time `db:"session_date" json:"session_date"`
	OriginalFilename string    `db:"original_filename" json:"original_filename"`
	ContentDigest    string    `db:"content_digest" json:"content_digest"`
	RecordCount      int       `db:"record_count" json:"record_count"`
}

type ImportSessionFilter struct {
	SubjectGroupName string
	Pagination
}

type ImportResult struct {
	SessionID        uuid.UUID `json:"session_id"`
	SubjectGroupName string    `json:"subject_group_name"`
	SessionDate      time.Time `json:"session_date"`
	InsertedCount    int       `json:"inserted_count"`
	DuplicateCount   int       `json:"duplicate_count"`
	TotalParsed      int       `json:"total_parsed"`
}
