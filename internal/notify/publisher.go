package notify

import "context"

// Event names pushed to connected UI clients.
const (
	EventIncomingCall  = "incoming_call"
	EventCallUpdated   = "call_updated"
	EventAgentPresence = "agent_presence"
)

// Publisher pushes live updates to connected UI clients.
// Fire-and-forget: no delivery guarantee, and slow consumers must never
// block the core. Callers log failures and move on.
type Publisher interface {
	Publish(ctx context.Context, event string, payload any) error
	Close() error
}
