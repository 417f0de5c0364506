package presence

import "time"

// Status is an agent's presence state. Agents with no recorded state are
// offline.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOnCall  Status = "on_call"
	StatusBreak   Status = "break"
	StatusOffline Status = "offline"
)

// Valid reports whether s is one of the four recognized states.
func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusOnCall, StatusBreak, StatusOffline:
		return true
	}
	return false
}

// Event is one presence transition. Events are append-only; the current
// state of an agent is the latest event, and historical reports are
// reconstructed by replaying the log.
type Event struct {
	ID      string `json:"id" db:"id"`
	AgentID string `json:"agent_id" db:"agent_id"`
	Status  Status `json:"status" db:"status"`

	// Source records what caused the transition: "manual" for an agent or
	// supervisor toggling state, "call" for engine-driven on_call flips,
	// "system" for automatic logout.
	Source string `json:"source,omitempty" db:"source"`

	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Snapshot is the current presence of one agent.
type Snapshot struct {
	AgentID string    `json:"agent_id"`
	Status  Status    `json:"status"`
	Since   time.Time `json:"since"`
}
