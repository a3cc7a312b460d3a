package measurement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nutriadmin/admin-api/internal/model"
	"github.com/nutriadmin/admin-api/internal/repository"
	"github.com/nutriadmin/admin-api/internal/spreadsheet"
	apperrors "github.com/nutriadmin/admin-api/pkg/errors"
	"github.com/nutriadmin/admin-api/pkg/logger"
	"github.com/nutriadmin/admin-api/pkg/metrics"
	"github.com/nutriadmin/admin-api/pkg/validator"
)

type MeasurementService interface {
	Upload(ctx context.Context, req *ImportRequest) (*model.ImportResult, error)
	Import(ctx context.Context, doc *model.ParsedDocument, digest, subjectGroupName string, uploaderID uuid.UUID, originalFilename string) (*model.ImportResult, error)
	GetImportSession(ctx context.Context, id uuid.UUID) (*model.ImportSession, error)
	ListImportSessions(ctx context.Context, filter *model.ImportSessionFilter) ([]*model.ImportSession, error)
	GetPatientHistory(ctx context.Context, filter *model.PatientMeasurementFilter) (*PatientHistory, error)
}

// ImportRequest is one uploaded workbook.
type ImportRequest struct {
	Content          []byte    `validate:"required,min=1"`
	OriginalFilename string    `validate:"required,spreadsheet"`
	SubjectGroupName string    `validate:"required,max=200"`
	UploaderID       uuid.UUID `validate:"required"`
}

type PatientHistory struct {
	Patient      *model.Patient             `json:"patient"`
	Measurements []*model.MeasurementRecord `json:"measurements"`
}

// ImportCompletedEvent is the outbox payload written with every import.
type ImportCompletedEvent struct {
	model.ImportResult
	ImportedBy       uuid.UUID `json:"imported_by"`
	OriginalFilename string    `json:"original_filename"`
	ContentDigest    string    `json:"content_digest"`
}

type Service struct {
	store     repository.ImportStore
	queries   repository.MeasurementQueryRepository
	parser    *spreadsheet.Parser
	validator validator.Validator
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewService(
	store repository.ImportStore,
	queries repository.MeasurementQueryRepository,
	parser *spreadsheet.Parser,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Service {
	return &Service{
		store:     store,
		queries:   queries,
		parser:    parser,
		validator: validator.New(),
		logger:    logger,
		metrics:   metrics,
	}
}

// Upload hashes and parses the workbook, then imports it.
func (s *Service) Upload(ctx context.Context, req *ImportRequest) (*model.ImportResult, error) {
	if err := s.validator.Validate(req); err != nil {
		s.metrics.Imports.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return nil, apperrors.BadRequest(err.Error(), err)
	}

	digest := spreadsheet.Digest(req.Content)
	sheet, err := spreadsheet.ReadWorkbook(req.Content)
	if err != nil {
		s.metrics.Imports.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return nil, &ValidationError{Err: err}
	}

	doc := s.parser.Parse(sheet)
	return s.Import(ctx, doc, digest, req.SubjectGroupName, req.UploaderID, req.OriginalFilename)
}

// Import persists a parsed document in one transaction. Byte-identical
// content for the same group and date fails with DuplicateFileError; rows
// whose patient already has a measurement on the same day are counted as
// duplicates and skipped.
func (s *Service) Import(ctx context.Context, doc *model.ParsedDocument, digest, subjectGroupName string, uploaderID uuid.UUID, originalFilename string) (*model.ImportResult, error) {
	if err := spreadsheet.Validate(doc); err != nil {
		s.metrics.Imports.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return nil, &ValidationError{Err: err}
	}

	start := time.Now()
	log := s.logger.WithFields(map[string]interface{}{
		"subject_group": subjectGroupName,
		"session_date":  doc.SessionDate.Format("2006-01-02"),
		"digest":        digest,
	})
	log.Info("Starting measurement import", "records", len(doc.Measurements))

	var result *model.ImportResult
	err := s.store.WithinTx(ctx, func(tx repository.ImportStore) error {
		r, err := s.importDocument(ctx, tx, doc, digest, subjectGroupName, uploaderID, originalFilename)
		result = r
		return err
	})
	s.metrics.ImportDuration.Observe(time.Since(start).Seconds())

	if errors.Is(err, repository.ErrDuplicateSession) {
		err = s.existingSession(ctx, doc.SessionDate, digest, subjectGroupName)
	}

	var dupErr *DuplicateFileError
	switch {
	case err == nil:
	case errors.As(err, &dupErr):
		s.metrics.Imports.WithLabelValues(metrics.OutcomeDuplicateFile).Inc()
		log.Warn("File already imported", "session_id", dupErr.SessionID.String())
		return nil, err
	default:
		s.metrics.Imports.WithLabelValues(metrics.OutcomeFailed).Inc()
		log.Error(err, "Measurement import failed")
		return nil, &ImportError{Err: err}
	}

	s.metrics.Imports.WithLabelValues(metrics.OutcomeImported).Inc()
	s.metrics.MeasurementsInserted.Add(float64(result.InsertedCount))
	s.metrics.MeasurementsDuplicate.Add(float64(result.DuplicateCount))
	log.Info("Measurement import completed",
		"session_id", result.SessionID.String(),
		"inserted", result.InsertedCount,
		"duplicates", result.DuplicateCount)
	return result, nil
}

func (s *Service) importDocument(
	ctx context.Context,
	tx repository.ImportStore,
	doc *model.ParsedDocument,
	digest, subjectGroupName string,
	uploaderID uuid.UUID,
	originalFilename string,
) (*model.ImportResult, error) {
	groupID, err := resolveSubjectGroup(ctx, tx, subjectGroupName)
	if err != nil {
		return nil, err
	}

	existing, err := tx.FindImportSession(ctx, groupID, doc.SessionDate, digest)
	switch {
	case err == nil:
		return nil, &DuplicateFileError{SessionID: existing}
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("failed to check import session: %w", err)
	}

	sessionID, err := tx.CreateImportSession(ctx, &model.ImportSession{
		SubjectGroupID:   groupID,
		ImportedByID:     uploaderID,
		SessionDate:      doc.SessionDate,
		OriginalFilename: originalFilename,
		ContentDigest:    digest,
		RecordCount:      len(doc.Measurements),
	})
	if err != nil {
		return nil, err
	}

	result := &model.ImportResult{
		SessionID:        sessionID,
		SubjectGroupName: model.DisplayName(subjectGroupName),
		SessionDate:      doc.SessionDate,
		TotalParsed:      len(doc.Measurements),
	}

	for _, m := range doc.Measurements {
		patientID, err := resolvePatient(ctx, tx, m.SubjectName)
		if err != nil {
			return nil, err
		}

		_, err = tx.FindExistingMeasurement(ctx, patientID, m.MeasuredOn)
		if err == nil {
			result.DuplicateCount++
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("failed to check existing measurement: %w", err)
		}

		if _, err := tx.InsertMeasurementRecord(ctx, &model.MeasurementRecord{
			PatientID:       patientID,
			ImportedByID:    uploaderID,
			ImportSessionID: sessionID,
			MeasuredOn:      m.MeasuredOn,
			Anthropometrics: m.Anthropometrics,
		}); err != nil {
			return nil, err
		}
		result.InsertedCount++
	}

	if err := tx.UpdateImportSessionCount(ctx, sessionID, result.InsertedCount); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(ImportCompletedEvent{
		ImportResult:     *result,
		ImportedBy:       uploaderID,
		OriginalFilename: originalFilename,
		ContentDigest:    digest,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal import event: %w", err)
	}
	if err := tx.CreateOutboxEvent(ctx, &model.OutboxEvent{
		EventType: model.EventMeasurementImportCompleted,
		Payload:   payload,
	}); err != nil {
		return nil, err
	}

	return result, nil
}

// existingSession resolves the session that won a concurrent insert of the
// same file.
func (s *Service) existingSession(ctx context.Context, sessionDate time.Time, digest, subjectGroupName string) error {
	groupID, err := s.store.FindSubjectGroupByName(ctx, subjectGroupName)
	if err != nil {
		return fmt.Errorf("failed to resolve subject group after conflict: %w", err)
	}
	id, err := s.store.FindImportSession(ctx, groupID, sessionDate, digest)
	if err != nil {
		return fmt.Errorf("failed to resolve import session after conflict: %w", err)
	}
	return &DuplicateFileError{SessionID: id}
}

func resolveSubjectGroup(ctx context.Context, tx repository.MeasurementStore, name string) (uuid.UUID, error) {
	id, err := tx.FindSubjectGroupByName(ctx, name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return uuid.Nil, err
	}
	return tx.CreateSubjectGroup(ctx, name)
}

func resolvePatient(ctx context.Context, tx repository.MeasurementStore, name string) (uuid.UUID, error) {
	id, err := tx.FindPatientByName(ctx, name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return uuid.Nil, err
	}
	return tx.CreatePatient(ctx, name)
}

func (s *Service) GetImportSession(ctx context.Context, id uuid.UUID) (*model.ImportSession, error) {
	session, err := s.queries.GetImportSession(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("import session", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get import session: %w", err)
	}
	return session, nil
}

func (s *Service) ListImportSessions(ctx context.Context, filter *model.ImportSessionFilter) ([]*model.ImportSession, error) {
	sessions, err := s.queries.ListImportSessions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list import sessions: %w", err)
	}
	return sessions, nil
}

func (s *Service) GetPatientHistory(ctx context.Context, filter *model.PatientMeasurementFilter) (*PatientHistory, error) {
	patient, err := s.queries.GetPatient(ctx, filter.PatientID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("patient", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}

	records, err := s.queries.ListPatientMeasurements(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list measurements: %w", err)
	}
	return &PatientHistory{Patient: patient, Measurements: records}, nil
}
