package crm

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryTaskStore is an in-memory TaskStore for tests and early development.
type MemoryTaskStore struct {
	mu    sync.Mutex
	tasks map[string]*Task

	// Phones maps agent user id to phone/extension (AgentDirectory).
	Phones map[string]string

	clock func() time.Time
}

func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{
		tasks:  map[string]*Task{},
		Phones: map[string]string{},
		clock:  time.Now,
	}
}

// Put seeds a task (test helper).
func (s *MemoryTaskStore) Put(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := t
	s.tasks[t.ID] = &cp
}

// AllTasks returns every stored task (test helper).
func (s *MemoryTaskStore) AllTasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	return out
}

func (s *MemoryTaskStore) FindTaskByID(ctx context.Context, id string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	return *t, nil
}

func (s *MemoryTaskStore) AppendNote(ctx context.Context, id, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	t.Notes = append(t.Notes, note)
	t.UpdatedAt = s.clock().UTC()
	return nil
}

func (s *MemoryTaskStore) SetStatus(ctx context.Context, id string, status TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	t.Status = status
	t.UpdatedAt = s.clock().UTC()
	return nil
}

func (s *MemoryTaskStore) EnsureCallbackTask(ctx context.Context, phone, reason string) (Task, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.CustomerPhone == phone && t.Reason == reason && t.Status == TaskStatusPending {
			return *t, false, nil
		}
	}
	now := s.clock().UTC()
	t := &Task{
		ID:            uuid.NewString(),
		CustomerPhone: phone,
		Status:        TaskStatusPending,
		Reason:        reason,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.tasks[t.ID] = t
	return *t, true, nil
}

func (s *MemoryTaskStore) AgentPhone(ctx context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.Phones[userID]
	if !ok {
		return "", ErrAgentNotFound
	}
	return p, nil
}
