package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nutriadmin/admin-api/internal/model"
	"github.com/nutriadmin/admin-api/internal/repository"
)

// txStore operates on a state without locking. The owning Store holds the
// lock for as long as a txStore is in use.
type txStore struct {
	st  *state
	now func() time.Time
}

func (t *txStore) WithinTx(ctx context.Context, fn func(tx repository.ImportStore) error) error {
	return fn(t)
}

func (t *txStore) FindSubjectGroupByName(ctx context.Context, name string) (uuid.UUID, error) {
	key := model.NameKey(name)
	for id, g := range t.st.groups {
		if g.NameKey == key {
			return id, nil
		}
	}
	return uuid.Nil, repository.ErrNotFound
}

func (t *txStore) CreateSubjectGroup(ctx context.Context, name string) (uuid.UUID, error) {
	if id, err := t.FindSubjectGroupByName(ctx, name); err == nil {
		return id, nil
	}
	now := t.now()
	g := model.SubjectGroup{
		Base:    model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		Name:    model.DisplayName(name),
		NameKey: model.NameKey(name),
	}
	t.st.groups[g.ID] = g
	return g.ID, nil
}

func (t *txStore) FindImportSession(ctx context.Context, groupID uuid.UUID, sessionDate time.Time, digest string) (uuid.UUID, error) {
	id, ok := t.st.sessionIndex[newSessionKey(groupID, sessionDate, digest)]
	if !ok {
		return uuid.Nil, repository.ErrNotFound
	}
	return id, nil
}

func (t *txStore) CreateImportSession(ctx context.Context, session *model.ImportSession) (uuid.UUID, error) {
	key := newSessionKey(session.SubjectGroupID, session.SessionDate, session.ContentDigest)
	if _, exists := t.st.sessionIndex[key]; exists {
		return uuid.Nil, repository.ErrDuplicateSession
	}
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	now := t.now()
	session.CreatedAt = now
	session.UpdatedAt = now
	session.SessionDate = model.DateOnly(session.SessionDate)

	t.st.sessions[session.ID] = *session
	t.st.sessionIndex[key] = session.ID
	return session.ID, nil
}

func (t *txStore) UpdateImportSessionCount(ctx context.Context, id uuid.UUID, count int) error {
	session, ok := t.st.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	session.RecordCount = count
	session.UpdatedAt = t.now()
	t.st.sessions[id] = session
	return nil
}

func (t *txStore) FindPatientByName(ctx context.Context, name string) (uuid.UUID, error) {
	key := model.NameKey(name)
	for id, p := range t.st.patients {
		if p.NameKey == key {
			return id, nil
		}
	}
	return uuid.Nil, repository.ErrNotFound
}

func (t *txStore) CreatePatient(ctx context.Context, name string) (uuid.UUID, error) {
	if id, err := t.FindPatientByName(ctx, name); err == nil {
		return id, nil
	}
	now := t.now()
	p := model.Patient{
		Base:    model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		Name:    model.DisplayName(name),
		NameKey: model.NameKey(name),
		Active:  true,
	}
	t.st.patients[p.ID] = p
	return p.ID, nil
}

func (t *txStore) FindExistingMeasurement(ctx context.Context, patientID uuid.UUID, measuredOn *time.Time) (uuid.UUID, error) {
	for _, m := range t.st.measurements {
		if m.PatientID == patientID && model.SameDay(m.MeasuredOn, measuredOn) {
			return m.ID, nil
		}
	}
	return uuid.Nil, repository.ErrNotFound
}

func (t *txStore) InsertMeasurementRecord(ctx context.Context, record *model.MeasurementRecord) (uuid.UUID, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.RecordedAt.IsZero() {
		record.RecordedAt = t.now()
	}
	if record.MeasuredOn != nil {
		d := model.DateOnly(*record.MeasuredOn)
		record.MeasuredOn = &d
	}
	t.st.measurements = append(t.st.measurements, *record)
	return record.ID, nil
}

func (t *txStore) CreateOutboxEvent(ctx context.Context, event *model.OutboxEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	now := t.now()
	event.Status = string(model.OutboxStatusPending)
	event.CreatedAt = now
	event.UpdatedAt = now
	t.st.outbox = append(t.st.outbox, *event)
	return nil
}

func newSessionKey(groupID uuid.UUID, date time.Time, digest string) sessionKey {
	return sessionKey{groupID: groupID, date: model.DateOnly(date).Format("2006-01-02"), digest: digest}
}
