package presence

import (
	"context"
	"errors"
	"time"
)

// ErrValidation marks bad presence input (unknown status, empty agent id).
var ErrValidation = errors.New("presence: validation failed")

// EventLog is the append-only store of presence transitions.
//
// Range uses the half-open window [from, to): an event at exactly from is
// included, one at exactly to is not. LastBefore returns, per agent, the
// latest event strictly before the instant; it is the baseline query for
// window reconstruction.
type EventLog interface {
	Append(ctx context.Context, e Event) error

	// Range returns events in [from, to) ordered by occurrence. An empty
	// agentIDs slice means all agents.
	Range(ctx context.Context, from, to time.Time, agentIDs []string) ([]Event, error)

	// LastBefore returns the latest event strictly before the given instant
	// for each requested agent. Agents with no prior event are absent from
	// the result. An empty agentIDs slice means all agents.
	LastBefore(ctx context.Context, before time.Time, agentIDs []string) (map[string]Event, error)

	// AgentIDs lists every agent that has at least one recorded event.
	AgentIDs(ctx context.Context) ([]string, error)
}
