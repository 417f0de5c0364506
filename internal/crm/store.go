package crm

import (
	"context"
	"errors"
)

var (
	ErrTaskNotFound  = errors.New("crm: task not found")
	ErrAgentNotFound = errors.New("crm: agent not found")
)

// TaskStore is the CRM collaborator surface consumed by the call core.
type TaskStore interface {
	FindTaskByID(ctx context.Context, id string) (Task, error)
	AppendNote(ctx context.Context, id, note string) error
	SetStatus(ctx context.Context, id string, status TaskStatus) error

	// EnsureCallbackTask creates a pending task for phone/reason unless one
	// already exists, and reports whether a new task was created. Repeated
	// missed-call webhooks for the same unanswered caller must not pile up
	// duplicate callbacks.
	EnsureCallbackTask(ctx context.Context, phone, reason string) (Task, bool, error)
}

// AgentDirectory resolves an agent's phone/extension from their profile.
type AgentDirectory interface {
	AgentPhone(ctx context.Context, userID string) (string, error)
}
