package measurement

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/nutriadmin/admin-api/internal/model"
	"github.com/nutriadmin/admin-api/internal/repository"
	"github.com/nutriadmin/admin-api/internal/repository/memory"
	"github.com/nutriadmin/admin-api/internal/spreadsheet"
	apperrors "github.com/nutriadmin/admin-api/pkg/errors"
	"github.com/nutriadmin/admin-api/pkg/logger"
	"github.com/nutriadmin/admin-api/pkg/metrics"
)

var errStorage = errors.New("connection reset")

// row maps a spreadsheet column letter to a cell value.
type row map[string]interface{}

func buildWorkbook(t *testing.T, sessionDate interface{}, rows ...row) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	if sessionDate != nil {
		require.NoError(t, f.SetCellValue("Sheet1", "B4", sessionDate))
	}
	for i, r := range rows {
		for col, v := range r {
			cell, err := excelize.JoinCellName(col, 7+i)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("Sheet1", cell, v))
		}
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

// anaPerezWorkbook is a session sheet with one subject run and a second,
// differently spelled subject.
func anaPerezWorkbook(t *testing.T) []byte {
	return buildWorkbook(t, 45672,
		row{"A": "Ana Pérez", "B": 45672, "D": 60, "E": 165},
		row{"B": "20/02/2025", "D": 61},
		row{"A": "ANA PEREZ", "D": 70},
	)
}

type fixture struct {
	store   *memory.Store
	faulty  *faultyStore
	metrics *metrics.Metrics
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	faulty := &faultyStore{Store: store}
	m := metrics.NewMetrics("test", "import", prometheus.NewRegistry())
	parser := spreadsheet.NewParser(spreadsheet.DefaultLayout(), spreadsheet.WithClock(func() time.Time {
		return time.Date(2025, 3, 9, 10, 0, 0, 0, time.UTC)
	}))
	return &fixture{
		store:   store,
		faulty:  faulty,
		metrics: m,
		svc:     NewService(faulty, store, parser, logger.Nop(), m),
	}
}

func uploadRequest(content []byte, group string, uploader uuid.UUID) *ImportRequest {
	return &ImportRequest{
		Content:          content,
		OriginalFilename: "sesion.xlsx",
		SubjectGroupName: group,
		UploaderID:       uploader,
	}
}

func TestUpload_FirstImportInsertsEveryRecord(t *testing.T) {
	f := newFixture(t)
	uploader := uuid.New()
	content := anaPerezWorkbook(t)

	result, err := f.svc.Upload(context.Background(), uploadRequest(content, "Sub-17", uploader))
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalParsed)
	assert.Equal(t, 3, result.InsertedCount)
	assert.Zero(t, result.DuplicateCount)
	assert.Equal(t, "Sub-17", result.SubjectGroupName)
	assert.Equal(t, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), result.SessionDate)

	assert.Equal(t, 2, f.store.PatientCount())
	records := f.store.Measurements()
	require.Len(t, records, 3)
	for _, r := range records {
		assert.Equal(t, uploader, r.ImportedByID)
		assert.Equal(t, result.SessionID, r.ImportSessionID)
	}

	session, err := f.svc.GetImportSession(context.Background(), result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 3, session.RecordCount)
	assert.Equal(t, "sesion.xlsx", session.OriginalFilename)
	assert.Equal(t, spreadsheet.Digest(content), session.ContentDigest)

	events := f.store.OutboxEvents()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventMeasurementImportCompleted, events[0].EventType)
	var payload ImportCompletedEvent
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, result.SessionID, payload.SessionID)
	assert.Equal(t, 3, payload.InsertedCount)
	assert.Equal(t, uploader, payload.ImportedBy)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Imports.WithLabelValues(metrics.OutcomeImported)))
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.MeasurementsInserted))
}

func TestUpload_FooterAveragesAreNotStored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	content := buildWorkbook(t, 45672,
		row{"A": "Ana Pérez", "B": 45672, "D": 60},
		row{"A": "Bea Ruiz", "B": 45672, "D": 50},
		row{"A": "Promedio", "D": 55, "E": 165},
	)

	result, err := f.svc.Upload(ctx, uploadRequest(content, "Sub-17", uuid.New()))
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalParsed)
	assert.Equal(t, 2, result.InsertedCount)

	records := f.store.Measurements()
	require.Len(t, records, 2)
	for _, r := range records {
		assert.NotNil(t, r.MeasuredOn)
		assert.NotEqual(t, 55.0, *r.Weight)
	}

	undated := buildWorkbook(t, 45673, row{"A": "Bea Ruiz", "D": 51})
	result, err = f.svc.Upload(ctx, uploadRequest(undated, "Sub-17", uuid.New()))
	require.NoError(t, err)
	assert.Equal(t, 1, result.InsertedCount)
	assert.Zero(t, result.DuplicateCount)
}

func TestUpload_IdenticalFileIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	content := anaPerezWorkbook(t)

	first, err := f.svc.Upload(ctx, uploadRequest(content, "Sub-17", uuid.New()))
	require.NoError(t, err)

	_, err = f.svc.Upload(ctx, uploadRequest(content, "sub-17", uuid.New()))
	var dupErr *DuplicateFileError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, first.SessionID, dupErr.SessionID)

	assert.Len(t, f.store.Measurements(), 3)
	assert.Len(t, f.store.OutboxEvents(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Imports.WithLabelValues(metrics.OutcomeDuplicateFile)))
	assert.Equal(t, 409, ToAppError(err).StatusCode())
}

func TestImport_SameContentWithNewDigestCountsDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sheet, err := spreadsheet.ReadWorkbook(anaPerezWorkbook(t))
	require.NoError(t, err)
	doc := spreadsheet.NewParser(spreadsheet.DefaultLayout()).Parse(sheet)

	_, err = f.svc.Import(ctx, doc, "digest-1", "Sub-17", uuid.New(), "a.xlsx")
	require.NoError(t, err)

	result, err := f.svc.Import(ctx, doc, "digest-2", "Sub-17", uuid.New(), "b.xlsx")
	require.NoError(t, err)
	assert.Zero(t, result.InsertedCount)
	assert.Equal(t, 3, result.DuplicateCount)
	assert.Equal(t, 3, result.TotalParsed)

	session, err := f.svc.GetImportSession(ctx, result.SessionID)
	require.NoError(t, err)
	assert.Zero(t, session.RecordCount)
}

func TestImport_DuplicateCheckIsGlobalAcrossGroups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	nextDay := day.AddDate(0, 0, 1)
	weight := 72.5

	first := &model.ParsedDocument{SessionDate: day, Measurements: []model.Measurement{
		{SubjectName: "Luis Gómez", MeasuredOn: &day, Anthropometrics: model.Anthropometrics{Weight: &weight}},
	}}
	_, err := f.svc.Import(ctx, first, "d1", "Sub-17", uuid.New(), "a.xlsx")
	require.NoError(t, err)

	later := day.Add(9 * time.Hour)
	second := &model.ParsedDocument{SessionDate: nextDay, Measurements: []model.Measurement{
		{SubjectName: "  luis   GÓMEZ ", MeasuredOn: &later, Anthropometrics: model.Anthropometrics{Weight: &weight}},
		{SubjectName: "Luis Gómez", MeasuredOn: &nextDay, Anthropometrics: model.Anthropometrics{Weight: &weight}},
	}}
	result, err := f.svc.Import(ctx, second, "d2", "Senior", uuid.New(), "b.xlsx")
	require.NoError(t, err)

	assert.Equal(t, 1, result.InsertedCount)
	assert.Equal(t, 1, result.DuplicateCount)
	assert.Equal(t, 1, f.store.PatientCount())
}

func TestImport_NullDatesOnlyMatchNullDates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	weight := 60.0

	doc := &model.ParsedDocument{SessionDate: day, Measurements: []model.Measurement{
		{SubjectName: "Ana", MeasuredOn: &day, Anthropometrics: model.Anthropometrics{Weight: &weight}},
		{SubjectName: "Ana", Anthropometrics: model.Anthropometrics{Weight: &weight}},
		{SubjectName: "Ana", Anthropometrics: model.Anthropometrics{Weight: &weight}},
	}}
	result, err := f.svc.Import(ctx, doc, "d1", "Sub-17", uuid.New(), "a.xlsx")
	require.NoError(t, err)

	assert.Equal(t, 2, result.InsertedCount)
	assert.Equal(t, 1, result.DuplicateCount)
}

func TestUpload_RejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name    string
		content func(t *testing.T) []byte
		wantErr error
	}{
		{
			name: "no usable rows",
			content: func(t *testing.T) []byte {
				return buildWorkbook(t, 45672, row{"A": "Ana Pérez", "F": 80})
			},
			wantErr: spreadsheet.ErrNoMeasurements,
		},
		{
			name: "only header rows",
			content: func(t *testing.T) []byte {
				return buildWorkbook(t, 45672, row{"A": "Nombre", "D": "Peso"})
			},
			wantErr: spreadsheet.ErrNoMeasurements,
		},
		{
			name:    "not a workbook",
			content: func(t *testing.T) []byte { return []byte("not a zip archive") },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Upload(context.Background(), uploadRequest(tt.content(t), "Sub-17", uuid.New()))

			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, 422, ToAppError(err).StatusCode())
			assert.Zero(t, f.store.PatientCount())
			assert.Empty(t, f.store.OutboxEvents())
		})
	}
}

func TestUpload_RejectsInvalidRequest(t *testing.T) {
	f := newFixture(t)
	content := anaPerezWorkbook(t)

	tests := []struct {
		name string
		req  *ImportRequest
	}{
		{"empty content", uploadRequest(nil, "Sub-17", uuid.New())},
		{"missing group", uploadRequest(content, "", uuid.New())},
		{"missing uploader", uploadRequest(content, "Sub-17", uuid.Nil)},
		{"csv file", &ImportRequest{Content: content, OriginalFilename: "sesion.csv", SubjectGroupName: "Sub-17", UploaderID: uuid.New()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Upload(context.Background(), tt.req)
			appErr, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, apperrors.ErrBadRequest, appErr.Code)
		})
	}
}

func TestImport_StorageFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.faulty.failOnInsert = 2

	_, err := f.svc.Upload(context.Background(), uploadRequest(anaPerezWorkbook(t), "Sub-17", uuid.New()))

	var importErr *ImportError
	require.ErrorAs(t, err, &importErr)
	assert.ErrorIs(t, err, errStorage)
	assert.Equal(t, 500, ToAppError(err).StatusCode())

	assert.Empty(t, f.store.Measurements())
	assert.Zero(t, f.store.PatientCount())
	assert.Empty(t, f.store.OutboxEvents())
	sessions, err := f.store.ListImportSessions(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Imports.WithLabelValues(metrics.OutcomeFailed)))
}

func TestImport_ConcurrentSessionInsertReportsDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	content := anaPerezWorkbook(t)

	first, err := f.svc.Upload(ctx, uploadRequest(content, "Sub-17", uuid.New()))
	require.NoError(t, err)

	// The pre-check misses the winner, so the insert hits the unique key.
	f.faulty.hideSessions = true
	_, err = f.svc.Upload(ctx, uploadRequest(content, "Sub-17", uuid.New()))

	var dupErr *DuplicateFileError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, first.SessionID, dupErr.SessionID)
	assert.Len(t, f.store.Measurements(), 3)
}

func TestGetPatientHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Upload(ctx, uploadRequest(anaPerezWorkbook(t), "Sub-17", uuid.New()))
	require.NoError(t, err)

	patientID, err := f.store.FindPatientByName(ctx, "ana pérez")
	require.NoError(t, err)

	history, err := f.svc.GetPatientHistory(ctx, &model.PatientMeasurementFilter{PatientID: patientID})
	require.NoError(t, err)
	assert.Equal(t, "Ana Pérez", history.Patient.Name)
	require.Len(t, history.Measurements, 2)
	assert.Equal(t, 2, int(history.Measurements[0].MeasuredOn.Month()))
	assert.Equal(t, 61.0, *history.Measurements[0].Weight)

	_, err = f.svc.GetPatientHistory(ctx, &model.PatientMeasurementFilter{PatientID: uuid.New()})
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, 404, appErr.StatusCode())
}

// faultyStore wraps the memory store to inject storage failures inside the
// import transaction.
type faultyStore struct {
	*memory.Store
	failOnInsert int
	hideSessions bool
	inserts      int
}

func (s *faultyStore) WithinTx(ctx context.Context, fn func(tx repository.ImportStore) error) error {
	return s.Store.WithinTx(ctx, func(tx repository.ImportStore) error {
		return fn(&faultyTx{ImportStore: tx, parent: s})
	})
}

type faultyTx struct {
	repository.ImportStore
	parent *faultyStore
}

func (t *faultyTx) FindImportSession(ctx context.Context, groupID uuid.UUID, date time.Time, digest string) (uuid.UUID, error) {
	if t.parent.hideSessions {
		return uuid.Nil, repository.ErrNotFound
	}
	return t.ImportStore.FindImportSession(ctx, groupID, date, digest)
}

func (t *faultyTx) InsertMeasurementRecord(ctx context.Context, record *model.MeasurementRecord) (uuid.UUID, error) {
	t.parent.inserts++
	if t.parent.failOnInsert > 0 && t.parent.inserts == t.parent.failOnInsert {
		return uuid.Nil, errStorage
	}
	return t.ImportStore.InsertMeasurementRecord(ctx, record)
}
