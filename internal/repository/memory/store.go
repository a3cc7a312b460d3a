// Package memory keeps import data in process memory. It backs dry runs of
// the importer and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nutriadmin/admin-api/internal/model"
	"github.com/nutriadmin/admin-api/internal/repository"
)

type sessionKey struct {
	groupID uuid.UUID
	date    string
	digest  string
}

type state struct {
	groups       map[uuid.UUID]model.SubjectGroup
	patients     map[uuid.UUID]model.Patient
	sessions     map[uuid.UUID]model.ImportSession
	sessionIndex map[sessionKey]uuid.UUID
	measurements []model.MeasurementRecord
	outbox       []model.OutboxEvent
}

func newState() state {
	return state{
		groups:       map[uuid.UUID]model.SubjectGroup{},
		patients:     map[uuid.UUID]model.Patient{},
		sessions:     map[uuid.UUID]model.ImportSession{},
		sessionIndex: map[sessionKey]uuid.UUID{},
	}
}

func (s state) clone() state {
	c := newState()
	for k, v := range s.groups {
		c.groups[k] = v
	}
	for k, v := range s.patients {
		c.patients[k] = v
	}
	for k, v := range s.sessions {
		c.sessions[k] = v
	}
	for k, v := range s.sessionIndex {
		c.sessionIndex[k] = v
	}
	c.measurements = append([]model.MeasurementRecord(nil), s.measurements...)
	c.outbox = append([]model.OutboxEvent(nil), s.outbox...)
	return c
}

// Store implements repository.ImportStore and
// repository.MeasurementQueryRepository. WithinTx works on a copy of the
// data and swaps it in only when fn succeeds.
type Store struct {
	mu    sync.Mutex
	state state
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{state: newState(), now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.ImportStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&txStore{st: &work, now: s.now}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) view() *txStore {
	return &txStore{st: &s.state, now: s.now}
}

func (s *Store) FindSubjectGroupByName(ctx context.Context, name string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().FindSubjectGroupByName(ctx, name)
}

func (s *Store) CreateSubjectGroup(ctx context.Context, name string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CreateSubjectGroup(ctx, name)
}

func (s *Store) FindImportSession(ctx context.Context, groupID uuid.UUID, sessionDate time.Time, digest string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().FindImportSession(ctx, groupID, sessionDate, digest)
}

func (s *Store) CreateImportSession(ctx context.Context, session *model.ImportSession) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CreateImportSession(ctx, session)
}

func (s *Store) UpdateImportSessionCount(ctx context.Context, id uuid.UUID, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().UpdateImportSessionCount(ctx, id, count)
}

func (s *Store) FindPatientByName(ctx context.Context, name string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().FindPatientByName(ctx, name)
}

func (s *Store) CreatePatient(ctx context.Context, name string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CreatePatient(ctx, name)
}

func (s *Store) FindExistingMeasurement(ctx context.Context, patientID uuid.UUID, measuredOn *time.Time) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().FindExistingMeasurement(ctx, patientID, measuredOn)
}

func (s *Store) InsertMeasurementRecord(ctx context.Context, record *model.MeasurementRecord) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().InsertMeasurementRecord(ctx, record)
}

func (s *Store) CreateOutboxEvent(ctx context.Context, event *model.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CreateOutboxEvent(ctx, event)
}

// Measurements returns a copy of every stored record in insertion order.
func (s *Store) Measurements() []model.MeasurementRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.MeasurementRecord(nil), s.state.measurements...)
}

// OutboxEvents returns a copy of every queued event.
func (s *Store) OutboxEvents() []model.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.OutboxEvent(nil), s.state.outbox...)
}

func (s *Store) PatientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.patients)
}

func (s *Store) GetImportSession(ctx context.Context, id uuid.UUID) (*model.ImportSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.state.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	session.SubjectGroupName = s.state.groups[session.SubjectGroupID].Name
	return &session, nil
}

func (s *Store) ListImportSessions(ctx context.Context, filter *model.ImportSessionFilter) ([]*model.ImportSession, error) {
	if filter == nil {
		filter = &model.ImportSessionFilter{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ""
	if filter.SubjectGroupName != "" {
		key = model.NameKey(filter.SubjectGroupName)
	}
	sessions := []*model.ImportSession{}
	for _, v := range s.state.sessions {
		group := s.state.groups[v.SubjectGroupID]
		if key != "" && group.NameKey != key {
			continue
		}
		session := v
		session.SubjectGroupName = group.Name
		sessions = append(sessions, &session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].SessionDate.Equal(sessions[j].SessionDate) {
			return sessions[i].SessionDate.After(sessions[j].SessionDate)
		}
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return page(sessions, filter.Pagination), nil
}

func (s *Store) GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	patient, ok := s.state.patients[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &patient, nil
}

func (s *Store) ListPatientMeasurements(ctx context.Context, filter *model.PatientMeasurementFilter) ([]*model.MeasurementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := []*model.MeasurementRecord{}
	for i := range s.state.measurements {
		if s.state.measurements[i].PatientID == filter.PatientID {
			record := s.state.measurements[i]
			records = append(records, &record)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].MeasuredOn, records[j].MeasuredOn
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.After(*b)
	})
	return page(records, filter.Pagination), nil
}

func page[T any](items []T, p model.Pagination) []T {
	start := p.Offset()
	if start >= len(items) {
		return items[:0]
	}
	end := start + p.Limit()
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
