package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nutriadmin/admin-api/internal/model"
)

var (
	// ErrNotFound is returned by lookups that match nothing.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateSession is returned when an import session with the same
	// subject group, date and digest already exists.
	ErrDuplicateSession = errors.New("import session already exists")
)

type (
	// MeasurementStore is the storage the import pipeline needs. Find methods
	// return ErrNotFound when nothing matches.
	MeasurementStore interface {
		FindSubjectGroupByName(ctx context.Context, name string) (uuid.UUID, error)
		CreateSubjectGroup(ctx context.Context, name string) (uuid.UUID, error)
		FindImportSession(ctx context.Context, subjectGroupID uuid.UUID, sessionDate time.Time, digest string) (uuid.UUID, error)
		CreateImportSession(ctx context.Context, session *model.ImportSession) (uuid.UUID, error)
		UpdateImportSessionCount(ctx context.Context, sessionID uuid.UUID, recordCount int) error
		// FindPatientByName matches on model.NameKey.
		FindPatientByName(ctx context.Context, name string) (uuid.UUID, error)
		CreatePatient(ctx context.Context, name string) (uuid.UUID, error)
		// FindExistingMeasurement compares calendar dates only; a nil date
		// matches a stored nil date.
		FindExistingMeasurement(ctx context.Context, patientID uuid.UUID, measuredOn *time.Time) (uuid.UUID, error)
		InsertMeasurementRecord(ctx context.Context, record *model.MeasurementRecord) (uuid.UUID, error)
	}

	// ImportStore runs an import as one unit of work. The store passed to fn
	// is bound to the transaction; fn returning an error rolls back.
	ImportStore interface {
		MeasurementStore
		CreateOutboxEvent(ctx context.Context, event *model.OutboxEvent) error
		WithinTx(ctx context.Context, fn func(tx ImportStore) error) error
	}

	MeasurementQueryRepository interface {
		GetImportSession(ctx context.Context, id uuid.UUID) (*model.ImportSession, error)
		ListImportSessions(ctx context.Context, filter *model.ImportSessionFilter) ([]*model.ImportSession, error)
		GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error)
		ListPatientMeasurements(ctx context.Context, filter *model.PatientMeasurementFilter) ([]*model.MeasurementRecord, error)
	}

	// OutboxBatch is a set of claimed events. Rows stay locked until the
	// enclosing WithLockedBatch returns.
	OutboxBatch interface {
		Events() []*model.OutboxEvent
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error
	}

	OutboxRepository interface {
		// WithLockedBatch claims up to limit due events, skipping rows locked
		// by other workers, and commits status changes when fn returns nil.
		WithLockedBatch(ctx context.Context, limit int, fn func(batch OutboxBatch) error) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
