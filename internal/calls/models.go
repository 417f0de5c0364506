package calls

import "time"

// CallRecord is one call attempt.
//
// Correlation invariant: ExternalCallID (the provider's id for the call) is
// unique when present. A record with no external id and no inbound webhook
// correlation is a locally-initiated, not-yet-confirmed call. A record
// created purely from an unmatched webhook is an orphan (flagged in
// metadata) and is never silently deleted.
//
// Historical integrity: records are never physically deleted; reporting
// depends on the full history.
type CallRecord struct {
	ID             string `json:"call_id" db:"call_id"`
	Provider       string `json:"provider" db:"provider"`
	ExternalCallID string `json:"external_call_id,omitempty" db:"external_call_id"`

	TaskID      string `json:"task_id,omitempty" db:"task_id"`
	AgentUserID string `json:"agent_user_id,omitempty" db:"agent_user_id"`
	AgentPhone  string `json:"agent_phone,omitempty" db:"agent_phone"`

	CustomerPhone string `json:"customer_phone" db:"customer_phone"`

	Direction Direction  `json:"direction" db:"direction"`
	Status    CallStatus `json:"status" db:"status"`

	Queue       string `json:"queue,omitempty" db:"queue"`
	Trunk       string `json:"trunk,omitempty" db:"trunk"`
	Disposition string `json:"disposition,omitempty" db:"disposition"`

	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty" db:"answered_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	// DurationSeconds is derived on call end; nil until then.
	DurationSeconds *int `json:"duration_seconds,omitempty" db:"duration_seconds"`

	// HoldSeconds is provider-reported; zero when unknown.
	HoldSeconds int `json:"hold_seconds,omitempty" db:"hold_seconds"`

	RecordingURL string `json:"recording_url,omitempty" db:"recording_url"`

	// Metadata is an open bag for provider-specific fields; the raw payload
	// of the last processed webhook is retained under "lastWebhook".
	Metadata Metadata `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Metadata map[string]any

// Metadata keys written by the engine.
const (
	MetaOrphan          = "orphan"
	MetaLastWebhook     = "lastWebhook"
	MetaContractVersion = "contractVersion"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type CallStatus string

const (
	CallStatusInitiated CallStatus = "initiated"
	CallStatusRinging   CallStatus = "ringing"
	CallStatusAnswered  CallStatus = "answered"
	CallStatusCompleted CallStatus = "completed"
	CallStatusFailed    CallStatus = "failed"
)

// Terminal reports whether no further transitions are valid.
func (s CallStatus) Terminal() bool {
	return s == CallStatusCompleted || s == CallStatusFailed
}

// statusRank orders the lifecycle so that late or out-of-order events can
// never move a call backwards. completed and failed share the top rank.
func statusRank(s CallStatus) int {
	switch s {
	case CallStatusInitiated:
		return 0
	case CallStatusRinging:
		return 1
	case CallStatusAnswered:
		return 2
	case CallStatusCompleted, CallStatusFailed:
		return 3
	default:
		return -1
	}
}

// applyStatus advances the record toward target and reports whether anything
// changed. Terminal records absorb everything; duplicate or backwards events
// are no-ops. answeredAt, endedAt and durationSeconds are set at most once.
func (r *CallRecord) applyStatus(target CallStatus, now time.Time, payloadDuration *int) bool {
	if r.Status.Terminal() {
		return false
	}
	if statusRank(target) <= statusRank(r.Status) {
		return false
	}

	r.Status = target

	switch target {
	case CallStatusAnswered:
		if r.AnsweredAt == nil {
			t := now
			r.AnsweredAt = &t
		}
	case CallStatusCompleted, CallStatusFailed:
		if r.EndedAt == nil {
			t := now
			r.EndedAt = &t
		}
		if r.DurationSeconds == nil {
			if payloadDuration != nil {
				d := *payloadDuration
				r.DurationSeconds = &d
			} else if r.AnsweredAt != nil {
				d := int(r.EndedAt.Sub(*r.AnsweredAt) / time.Second)
				if d < 0 {
					d = 0
				}
				r.DurationSeconds = &d
			}
		}
	}
	return true
}

// IsOrphan reports whether the record was created from an unmatched webhook.
func (r *CallRecord) IsOrphan() bool {
	if r.Metadata == nil {
		return false
	}
	v, ok := r.Metadata[MetaOrphan].(bool)
	return ok && v
}
