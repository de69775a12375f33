package store

import (
	"context"
	"sync"

	"curator/internal/record/models"
	id "curator/pkg/domain"
	"curator/pkg/platform/sentinel"
)

// InMemoryRecordStore is the test double for RecordStore. Values are cloned
// on the way in and out so callers cannot alias internal state.
type InMemoryRecordStore struct {
	mu      sync.RWMutex
	records map[id.RecordID]*models.Record
}

func NewInMemoryRecordStore() *InMemoryRecordStore {
	return &InMemoryRecordStore{records: make(map[id.RecordID]*models.Record)}
}

func (s *InMemoryRecordStore) Create(_ context.Context, rec *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; exists {
		return sentinel.ErrConflict
	}
	s.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (s *InMemoryRecordStore) Get(_ context.Context, recordID id.RecordID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[recordID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *InMemoryRecordStore) Update(_ context.Context, rec *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (s *InMemoryRecordStore) ListByParent(_ context.Context, parentID id.ParentID) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Record
	for _, rec := range s.records {
		if rec.ParentID == parentID {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

func (s *InMemoryRecordStore) Execute(_ context.Context, recordID id.RecordID,
	validate func(rec *models.Record) error,
	mutate func(rec *models.Record)) (*models.Record, error) {

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[recordID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := cloneRecord(rec)
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.records[recordID] = working
	return cloneRecord(working), nil
}

// InMemoryParentStore is the test double for ParentStore.
type InMemoryParentStore struct {
	mu      sync.RWMutex
	parents map[id.ParentID]*models.Parent
}

func NewInMemoryParentStore() *InMemoryParentStore {
	return &InMemoryParentStore{parents: make(map[id.ParentID]*models.Parent)}
}

func (s *InMemoryParentStore) Create(_ context.Context, parent *models.Parent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.parents[parent.ID]; exists {
		return sentinel.ErrConflict
	}
	s.parents[parent.ID] = cloneParent(parent)
	return nil
}

func (s *InMemoryParentStore) Get(_ context.Context, parentID id.ParentID) (*models.Parent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	parent, ok := s.parents[parentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneParent(parent), nil
}

func (s *InMemoryParentStore) Update(_ context.Context, parent *models.Parent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.parents[parent.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.parents[parent.ID] = cloneParent(parent)
	return nil
}

// InMemoryVersionStore is the test double for VersionStore.
type InMemoryVersionStore struct {
	mu     sync.RWMutex
	states map[id.ParentID]models.VersionsState
}

func NewInMemoryVersionStore() *InMemoryVersionStore {
	return &InMemoryVersionStore{states: make(map[id.ParentID]models.VersionsState)}
}

func (s *InMemoryVersionStore) Get(_ context.Context, parentID id.ParentID) (*models.VersionsState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[parentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := state
	return &out, nil
}

func (s *InMemoryVersionStore) Save(_ context.Context, state *models.VersionsState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.ParentID] = *state
	return nil
}

func cloneRecord(rec *models.Record) *models.Record {
	out := *rec
	if rec.Tombstone != nil {
		ts := *rec.Tombstone
		out.Tombstone = &ts
	}
	if rec.PIDs != nil {
		out.PIDs = make(map[string]models.PID, len(rec.PIDs))
		for k, v := range rec.PIDs {
			out.PIDs[k] = v
		}
	}
	if rec.Access.EmbargoUntil != nil {
		until := *rec.Access.EmbargoUntil
		out.Access.EmbargoUntil = &until
	}
	return &out
}

func cloneParent(parent *models.Parent) *models.Parent {
	out := *parent
	if parent.PIDs != nil {
		out.PIDs = make(map[string]models.PID, len(parent.PIDs))
		for k, v := range parent.PIDs {
			out.PIDs[k] = v
		}
	}
	out.Communities = append([]string(nil), parent.Communities...)
	return &out
}
