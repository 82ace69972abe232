package memory

import (
	"context"
	"sync"

	"catalogue/internal/activitylog/models"
	"catalogue/pkg/platform/sentinel"
)

// InMemoryStore keeps activity-log entries in process memory, in insertion
// order. Used by tests and local development.
type InMemoryStore struct {
	mu     sync.RWMutex
	order  []string
	events map[string]*models.EventRecord
}

func New() *InMemoryStore {
	return &InMemoryStore{events: make(map[string]*models.EventRecord)}
}

func (s *InMemoryStore) Search(_ context.Context, q models.Query) ([]*models.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.EventRecord
	for _, id := range s.order {
		e := s.events[id]
		if q.Matches(e) {
			out = append(out, clone(e))
		}
	}
	return out, nil
}

func (s *InMemoryStore) Insert(_ context.Context, e *models.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.ID]; ok {
		return sentinel.ErrConflict
	}
	s.events[e.ID] = clone(e)
	s.order = append(s.order, e.ID)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*models.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.events[id]; ok {
		return clone(e), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.events, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// clone copies the slices so callers cannot mutate stored entries.
func clone(e *models.EventRecord) *models.EventRecord {
	c := *e
	c.AudienceTypes = append([]models.AudienceType(nil), e.AudienceTypes...)
	c.FieldDiffs = append([]models.FieldDiff(nil), e.FieldDiffs...)
	return &c
}
