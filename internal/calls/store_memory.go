package calls

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and early development.
// Per-external-id locks mirror the row locking of the Postgres store.
type MemoryStore struct {
	mu       sync.Mutex
	byID     map[string]*CallRecord
	byExtID  map[string]string // external call id -> internal id
	keyLocks map[string]*sync.Mutex

	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     map[string]*CallRecord{},
		byExtID:  map[string]string{},
		keyLocks: map[string]*sync.Mutex{},
		clock:    time.Now,
	}
}

func (s *MemoryStore) Insert(ctx context.Context, rec CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(rec)
}

func (s *MemoryStore) insertLocked(rec CallRecord) error {
	now := s.clock().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	cp := rec
	s.byID[rec.ID] = &cp
	if rec.ExternalCallID != "" {
		s.byExtID[rec.ExternalCallID] = rec.ID
	}
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, rec CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[rec.ID]; !ok {
		return ErrNotFound
	}
	rec.UpdatedAt = s.clock().UTC()
	cp := rec
	s.byID[rec.ID] = &cp
	if rec.ExternalCallID != "" {
		s.byExtID[rec.ExternalCallID] = rec.ID
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	return *rec, nil
}

func (s *MemoryStore) GetByExternalID(ctx context.Context, externalCallID string) (CallRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byExtID[externalCallID]
	if !ok {
		return CallRecord{}, false, nil
	}
	return *s.byID[id], true, nil
}

func (s *MemoryStore) FindOrCreateByExternalID(ctx context.Context, externalCallID string, seed CallRecord) (CallRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byExtID[externalCallID]; ok {
		return *s.byID[id], false, nil
	}
	seed.ExternalCallID = externalCallID
	if err := s.insertLocked(seed); err != nil {
		return CallRecord{}, false, err
	}
	return *s.byID[seed.ID], true, nil
}

func (s *MemoryStore) UpdateByExternalID(ctx context.Context, externalCallID string, fn func(*CallRecord) error) (CallRecord, error) {
	lock := s.lockFor(externalCallID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	id, ok := s.byExtID[externalCallID]
	if !ok {
		s.mu.Unlock()
		return CallRecord{}, ErrNotFound
	}
	rec := *s.byID[id]
	s.mu.Unlock()

	if err := fn(&rec); err != nil {
		return CallRecord{}, err
	}

	s.mu.Lock()
	rec.UpdatedAt = s.clock().UTC()
	cp := rec
	s.byID[id] = &cp
	s.mu.Unlock()
	return rec, nil
}

// All returns a snapshot of every record (test helper).
func (s *MemoryStore) All() []CallRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CallRecord, 0, len(s.byID))
	for _, r := range s.byID {
		out = append(out, *r)
	}
	return out
}

func (s *MemoryStore) lockFor(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.keyLocks[key]
	if !ok {
		l = &sync.Mutex{}
		s.keyLocks[key] = l
	}
	return l
}
