package calls

// EventKind is the closed set of webhook events the engine understands.
// Unrecognized names route to the generic status-mapping path, so a typo in
// a provider event name degrades to the fallback instead of silently
// matching nothing.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventIncomingCall
	EventCallAnswered
	EventCallEnded
	EventRecordingReady
	EventCallMissed
)

// ParseEventKind normalizes an event name (already lower-cased by the
// caller) into its kind, honoring the legacy aliases.
func ParseEventKind(name string) EventKind {
	switch name {
	case "incoming_call":
		return EventIncomingCall
	case "call_answered":
		return EventCallAnswered
	case "call_ended":
		return EventCallEnded
	case "call_recording_ready", "call_recording":
		return EventRecordingReady
	case "call_missed", "missed_call":
		return EventCallMissed
	default:
		return EventUnknown
	}
}

// WebhookEvent is a provider-agnostic view of one inbound webhook. The
// provider adapter extracts the recognized fields; Raw retains the full
// payload for audit.
type WebhookEvent struct {
	Kind EventKind
	Name string // normalized event name as delivered

	ExternalCallID string
	From           string // caller / customer number
	AgentExtension string
	Status         string // status-like field for the generic path
	EndReason      string
	Queue          string
	Trunk          string

	DurationSeconds *int
	RecordingURL    string

	Raw map[string]any
}

// mapProviderStatus translates a provider status string into a lifecycle
// status for the generic webhook path.
func mapProviderStatus(s string) (CallStatus, bool) {
	switch s {
	case "ringing":
		return CallStatusRinging, true
	case "answered", "connected":
		return CallStatusAnswered, true
	case "completed", "ended", "call_ended":
		return CallStatusCompleted, true
	case "failed", "busy", "no_answer":
		return CallStatusFailed, true
	default:
		return "", false
	}
}
