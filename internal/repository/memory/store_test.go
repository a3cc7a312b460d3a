package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutriadmin/admin-api/internal/model"
	"github.com/nutriadmin/admin-api/internal/repository"
)

func TestStore_WithinTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(tx repository.ImportStore) error {
		id, err := tx.CreatePatient(ctx, "Ana Pérez")
		require.NoError(t, err)
		_, err = tx.InsertMeasurementRecord(ctx, &model.MeasurementRecord{PatientID: id})
		require.NoError(t, err)
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Zero(t, store.PatientCount())
	assert.Empty(t, store.Measurements())
}

func TestStore_WithinTxCommits(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	err := store.WithinTx(ctx, func(tx repository.ImportStore) error {
		_, err := tx.CreatePatient(ctx, "Ana Pérez")
		return err
	})
	require.NoError(t, err)

	id, err := store.FindPatientByName(ctx, "  ana   PÉREZ ")
	require.NoError(t, err)
	patient, err := store.GetPatient(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Ana Pérez", patient.Name)

	_, err = store.FindPatientByName(ctx, "Ana Perez")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStore_CreateImportSessionRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	groupID, err := store.CreateSubjectGroup(ctx, "Sub-17")
	require.NoError(t, err)

	date := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	first := &model.ImportSession{SubjectGroupID: groupID, SessionDate: date, ContentDigest: "abc"}
	id, err := store.CreateImportSession(ctx, first)
	require.NoError(t, err)

	_, err = store.CreateImportSession(ctx, &model.ImportSession{SubjectGroupID: groupID, SessionDate: date, ContentDigest: "abc"})
	assert.ErrorIs(t, err, repository.ErrDuplicateSession)

	found, err := store.FindImportSession(ctx, groupID, date.Add(15*time.Hour), "abc")
	require.NoError(t, err)
	assert.Equal(t, id, found)

	session, err := store.GetImportSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Sub-17", session.SubjectGroupName)
}

func TestStore_FindExistingMeasurementMatchesDayAndNil(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	patientID := uuid.New()
	day := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)

	_, err := store.InsertMeasurementRecord(ctx, &model.MeasurementRecord{PatientID: patientID, MeasuredOn: &day})
	require.NoError(t, err)
	_, err = store.InsertMeasurementRecord(ctx, &model.MeasurementRecord{PatientID: patientID})
	require.NoError(t, err)

	later := day.Add(10 * time.Hour)
	_, err = store.FindExistingMeasurement(ctx, patientID, &later)
	assert.NoError(t, err)
	_, err = store.FindExistingMeasurement(ctx, patientID, nil)
	assert.NoError(t, err)

	other := day.AddDate(0, 0, 1)
	_, err = store.FindExistingMeasurement(ctx, patientID, &other)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStore_ListImportSessionsFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	a, _ := store.CreateSubjectGroup(ctx, "Sub-17")
	b, _ := store.CreateSubjectGroup(ctx, "Senior")

	for i := 0; i < 3; i++ {
		_, err := store.CreateImportSession(ctx, &model.ImportSession{
			SubjectGroupID: a,
			SessionDate:    time.Date(2025, 3, 1+i, 0, 0, 0, 0, time.UTC),
			ContentDigest:  "d",
		})
		require.NoError(t, err)
	}
	_, err := store.CreateImportSession(ctx, &model.ImportSession{SubjectGroupID: b, SessionDate: time.Now(), ContentDigest: "d"})
	require.NoError(t, err)

	sessions, err := store.ListImportSessions(ctx, &model.ImportSessionFilter{
		SubjectGroupName: "sub-17",
		Pagination:       model.Pagination{Page: 1, PageSize: 2},
	})
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, 3, sessions[0].SessionDate.Day())
	assert.Equal(t, 2, sessions[1].SessionDate.Day())
}
