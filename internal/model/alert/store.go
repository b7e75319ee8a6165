package alert

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

var (
	ErrNotFound          = errors.New("alert not found")
	ErrInvalidTransition = errors.New("invalid alert status transition")
	ErrInvalidStatus     = errors.New("invalid alert status")
	ErrDuplicateID       = errors.New("duplicate alert id")
)

// Filter narrows List results. Zero values mean no restriction.
type Filter struct {
	Status Status
	Limit  int
}

// Store persists crisis alerts. Inserts are append-only; status changes go
// through Transition, which enforces the review state machine.
type Store interface {
	Insert(ctx context.Context, a *CrisisAlert) error
	Get(ctx context.Context, id string) (CrisisAlert, error)
	List(ctx context.Context, f Filter) ([]CrisisAlert, error)
	Transition(ctx context.Context, id string, next Status, by string, at time.Time) (CrisisAlert, error)
}

// MemoryStore keeps alerts in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	alerts map[string]CrisisAlert
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{alerts: make(map[string]CrisisAlert)}
}

func (s *MemoryStore) Insert(_ context.Context, a *CrisisAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.alerts[a.ID]; exists {
		return ErrDuplicateID
	}
	s.alerts[a.ID] = *a
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (CrisisAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[id]
	if !ok {
		return CrisisAlert{}, ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]CrisisAlert, error) {
	s.mu.RLock()
	out := make([]CrisisAlert, 0, len(s.alerts))
	for _, a := range s.alerts {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, a)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b CrisisAlert) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Transition(_ context.Context, id string, next Status, by string, at time.Time) (CrisisAlert, error) {
	if !next.Valid() {
		return CrisisAlert{}, ErrInvalidStatus
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[id]
	if !ok {
		return CrisisAlert{}, ErrNotFound
	}
	if err := a.apply(next, by, at); err != nil {
		return CrisisAlert{}, err
	}
	s.alerts[id] = a
	return a, nil
}
