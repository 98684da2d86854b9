package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/re-cinq/plango/internal/plan"
)

// MemStore is an in-process PlanStore, used by the store package's tests
// and anywhere durability across process restarts isn't needed.
type MemStore struct {
	mu    sync.Mutex
	plans map[uuid.UUID][]byte // json-encoded snapshot, keyed by plan id
}

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{plans: make(map[uuid.UUID][]byte)}
}

// SavePlan stores a deep copy of p, taken via a JSON round-trip so that a
// caller's later in-place mutation of p can never leak into the store
// (mirrors the isolation a real out-of-process store gives for free).
func (s *MemStore) SavePlan(ctx context.Context, p *plan.Plan) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[p.ID] = data
	return nil
}

func (s *MemStore) GetPlan(ctx context.Context, id uuid.UUID) (*plan.Plan, error) {
	s.mu.Lock()
	data, ok := s.plans[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	var p plan.Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *MemStore) ListPlans(ctx context.Context) ([]*plan.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*plan.Plan, 0, len(s.plans))
	for _, data := range s.plans {
		var p plan.Plan
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, nil
}

func (s *MemStore) DeletePlan(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[id]; !ok {
		return ErrNotFound
	}
	delete(s.plans, id)
	return nil
}

func (s *MemStore) Close() error { return nil }
