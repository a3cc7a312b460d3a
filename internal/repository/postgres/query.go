package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nutriadmin/admin-api/internal/model"
	"github.com/nutriadmin/admin-api/internal/repository"
)

type measurementQueryRepository struct {
	BaseRepository
}

func NewMeasurementQueryRepository(base BaseRepository) repository.MeasurementQueryRepository {
	return &measurementQueryRepository{base}
}

const sessionSelect = `
	SELECT s.id, s.subject_group_id, g.name AS subject_group_name, s.imported_by,
		s.session_date, s.original_filename, s.content_digest, s.record_count,
		s.created_at, s.updated_at
	FROM measurement_sessions s
	JOIN subject_groups g ON g.id = s.subject_group_id
`

func (r *measurementQueryRepository) GetImportSession(ctx context.Context, id uuid.UUID) (*model.ImportSession, error) {
	var session model.ImportSession
	err := r.db.GetContext(ctx, &session, sessionSelect+` WHERE s.id = $1`, id)
	if err := lookupErr(err, "import session"); err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *measurementQueryRepository) ListImportSessions(ctx context.Context, filter *model.ImportSessionFilter) ([]*model.ImportSession, error) {
	if filter == nil {
		filter = &model.ImportSessionFilter{}
	}
	query := sessionSelect
	args := []interface{}{}
	if filter.SubjectGroupName != "" {
		args = append(args, model.NameKey(filter.SubjectGroupName))
		query += fmt.Sprintf(" WHERE g.name_key = $%d", len(args))
	}
	args = append(args, filter.Limit(), filter.Offset())
	query += fmt.Sprintf(" ORDER BY s.session_date DESC, s.created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	sessions := []*model.ImportSession{}
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list import sessions: %w", err)
	}
	return sessions, nil
}

func (r *measurementQueryRepository) GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	var patient model.Patient
	err := r.db.GetContext(ctx, &patient,
		`SELECT id, name, name_key, active, created_at, updated_at FROM patients WHERE id = $1`, id)
	if err := lookupErr(err, "patient"); err != nil {
		return nil, err
	}
	return &patient, nil
}

func (r *measurementQueryRepository) ListPatientMeasurements(ctx context.Context, filter *model.PatientMeasurementFilter) ([]*model.MeasurementRecord, error) {
	query := `
		SELECT id, patient_id, imported_by, import_session_id, measured_on, recorded_at,
			` + anthropometricColumns + `
		FROM anthropometric_measurements
		WHERE patient_id = $1
		ORDER BY measured_on DESC NULLS LAST, recorded_at DESC
		LIMIT $2 OFFSET $3
	`
	records := []*model.MeasurementRecord{}
	if err := r.db.SelectContext(ctx, &records, query, filter.PatientID, filter.Limit(), filter.Offset()); err != nil {
		return nil, fmt.Errorf("failed to list measurements: %w", err)
	}
	return records, nil
}
