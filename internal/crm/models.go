package crm

import "time"

// Task is a CRM follow-up task. The telephony core reads its phone/status
// fields to originate calls and appends notes; it does not own the schema.
type Task struct {
	ID            string     `json:"task_id" db:"task_id"`
	CustomerPhone string     `json:"customer_phone" db:"customer_phone"`
	Status        TaskStatus `json:"status" db:"status"`

	// Reason tags system-generated tasks (e.g. missed_call callbacks).
	Reason string `json:"reason,omitempty" db:"reason"`

	Notes []string `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

// ReasonMissedCall marks callback tasks created from missed-call webhooks.
const ReasonMissedCall = "missed_call"
