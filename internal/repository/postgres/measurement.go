package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nutriadmin/admin-api/internal/model"
	"github.com/nutriadmin/admin-api/internal/repository"
)

const sessionUniqueConstraint = "measurement_sessions_file_uq"

const anthropometricColumns = `weight, height, seated_height,
	humerus_diameter, femur_diameter, wrist_diameter,
	arm_relaxed_girth, arm_flexed_girth, waist_girth, hip_girth, mid_thigh_girth, calf_girth,
	triceps_skinfold, subscapular_skinfold, biceps_skinfold, iliac_crest_skinfold,
	supraspinale_skinfold, abdominal_skinfold, thigh_skinfold, calf_skinfold,
	bmi, waist_hip_ratio,
	fat_percent, fat_mass_kg, muscle_mass_kg, bone_mass_kg, residual_mass_kg,
	sum_six_skinfolds, sum_eight_skinfolds`

const anthropometricParams = `:weight, :height, :seated_height,
	:humerus_diameter, :femur_diameter, :wrist_diameter,
	:arm_relaxed_girth, :arm_flexed_girth, :waist_girth, :hip_girth, :mid_thigh_girth, :calf_girth,
	:triceps_skinfold, :subscapular_skinfold, :biceps_skinfold, :iliac_crest_skinfold,
	:supraspinale_skinfold, :abdominal_skinfold, :thigh_skinfold, :calf_skinfold,
	:bmi, :waist_hip_ratio,
	:fat_percent, :fat_mass_kg, :muscle_mass_kg, :bone_mass_kg, :residual_mass_kg,
	:sum_six_skinfolds, :sum_eight_skinfolds`

// importStore implements repository.ImportStore. ext is either the pool or
// the transaction opened by WithinTx.
type importStore struct {
	BaseRepository
	ext  sqlx.ExtContext
	inTx bool
}

func NewImportStore(base BaseRepository) repository.ImportStore {
	return &importStore{BaseRepository: base, ext: base.db}
}

func (r *importStore) WithinTx(ctx context.Context, fn func(tx repository.ImportStore) error) error {
	if r.inTx {
		return fn(r)
	}
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		return fn(&importStore{BaseRepository: r.BaseRepository, ext: tx, inTx: true})
	})
}

func (r *importStore) FindSubjectGroupByName(ctx context.Context, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := sqlx.GetContext(ctx, r.ext, &id,
		`SELECT id FROM subject_groups WHERE name_key = $1`, model.NameKey(name))
	return id, lookupErr(err, "subject group")
}

func (r *importStore) CreateSubjectGroup(ctx context.Context, name string) (uuid.UUID, error) {
	query := `
		INSERT INTO subject_groups (id, name, name_key, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (name_key) DO UPDATE SET name_key = EXCLUDED.name_key
		RETURNING id
	`
	var id uuid.UUID
	if err := sqlx.GetContext(ctx, r.ext, &id, query, uuid.New(), model.DisplayName(name), model.NameKey(name)); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create subject group: %w", err)
	}
	return id, nil
}

func (r *importStore) FindImportSession(ctx context.Context, subjectGroupID uuid.UUID, sessionDate time.Time, digest string) (uuid.UUID, error) {
	query := `
		SELECT id FROM measurement_sessions
		WHERE subject_group_id = $1 AND session_date = $2::date AND content_digest = $3
	`
	var id uuid.UUID
	err := sqlx.GetContext(ctx, r.ext, &id, query, subjectGroupID, dateArg(&sessionDate), digest)
	return id, lookupErr(err, "import session")
}

func (r *importStore) CreateImportSession(ctx context.Context, session *model.ImportSession) (uuid.UUID, error) {
	query := `
		INSERT INTO measurement_sessions (
			id, subject_group_id, imported_by, session_date, original_filename,
			content_digest, record_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9)
	`
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	_, err := r.ext.ExecContext(ctx, query,
		session.ID,
		session.SubjectGroupID,
		session.ImportedByID,
		dateArg(&session.SessionDate),
		session.OriginalFilename,
		session.ContentDigest,
		session.RecordCount,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if isUniqueViolation(err, sessionUniqueConstraint) {
		return uuid.Nil, repository.ErrDuplicateSession
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create import session: %w", err)
	}
	return session.ID, nil
}

func (r *importStore) UpdateImportSessionCount(ctx context.Context, sessionID uuid.UUID, recordCount int) error {
	res, err := r.ext.ExecContext(ctx,
		`UPDATE measurement_sessions SET record_count = $1, updated_at = NOW() WHERE id = $2`,
		recordCount, sessionID)
	if err != nil {
		return fmt.Errorf("failed to update import session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *importStore) FindPatientByName(ctx context.Context, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := sqlx.GetContext(ctx, r.ext, &id,
		`SELECT id FROM patients WHERE name_key = $1`, model.NameKey(name))
	return id, lookupErr(err, "patient")
}

func (r *importStore) CreatePatient(ctx context.Context, name string) (uuid.UUID, error) {
	query := `
		INSERT INTO patients (id, name, name_key, active, created_at, updated_at)
		VALUES ($1, $2, $3, TRUE, NOW(), NOW())
		ON CONFLICT (name_key) DO UPDATE SET name_key = EXCLUDED.name_key
		RETURNING id
	`
	var id uuid.UUID
	if err := sqlx.GetContext(ctx, r.ext, &id, query, uuid.New(), model.DisplayName(name), model.NameKey(name)); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create patient: %w", err)
	}
	return id, nil
}

func (r *importStore) FindExistingMeasurement(ctx context.Context, patientID uuid.UUID, measuredOn *time.Time) (uuid.UUID, error) {
	query := `
		SELECT id FROM anthropometric_measurements
		WHERE patient_id = $1 AND measured_on IS NOT DISTINCT FROM $2::date
		LIMIT 1
	`
	var id uuid.UUID
	err := sqlx.GetContext(ctx, r.ext, &id, query, patientID, dateArg(measuredOn))
	return id, lookupErr(err, "measurement")
}

func (r *importStore) InsertMeasurementRecord(ctx context.Context, record *model.MeasurementRecord) (uuid.UUID, error) {
	query := `
		INSERT INTO anthropometric_measurements (
			id, patient_id, imported_by, import_session_id, measured_on, recorded_at,
			` + anthropometricColumns + `
		) VALUES (
			:id, :patient_id, :imported_by, :import_session_id, :measured_on, :recorded_at,
			` + anthropometricParams + `
		)
	`
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now().UTC()
	}
	if record.MeasuredOn != nil {
		d := model.DateOnly(*record.MeasuredOn)
		record.MeasuredOn = &d
	}

	if _, err := sqlx.NamedExecContext(ctx, r.ext, query, record); err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert measurement: %w", err)
	}
	return record.ID, nil
}

func (r *importStore) CreateOutboxEvent(ctx context.Context, event *model.OutboxEvent) error {
	return insertOutboxEvent(ctx, r.ext, event)
}

// dateArg renders a calendar date so the server never applies its own
// time zone to the value.
func dateArg(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format("2006-01-02")
}

func lookupErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return repository.ErrNotFound
	default:
		return fmt.Errorf("failed to find %s: %w", what, err)
	}
}
