package telephony

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"callcenter-platform/internal/calls"
)

// ParseWebhookEvent decodes a Bracknet webhook body into the engine's
// provider-agnostic event. Bracknet is inconsistent about field names
// across event types, so every recognized field has its aliases checked in
// order; the full payload is retained in Raw for audit.
func ParseWebhookEvent(eventName string, body []byte) (calls.WebhookEvent, error) {
	raw := map[string]any{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &raw); err != nil {
			return calls.WebhookEvent{}, fmt.Errorf("telephony: invalid webhook body: %w", err)
		}
	}

	name := strings.ToLower(strings.TrimSpace(eventName))
	if name == "" {
		name = firstString(raw, "event")
	}

	evt := calls.WebhookEvent{
		Kind:           calls.ParseEventKind(name),
		Name:           name,
		ExternalCallID: firstString(raw, "bracknet_call_id", "callId", "id"),
		From:           firstString(raw, "from", "customer_number", "customerPhone"),
		AgentExtension: firstString(raw, "to_extension", "agent_extension"),
		EndReason:      firstString(raw, "end_reason"),
		Queue:          firstString(raw, "queue"),
		Trunk:          firstString(raw, "trunk"),
		RecordingURL:   firstString(raw, "recording_url", "recordingUrl"),
		Raw:            raw,
	}

	evt.Status = firstString(raw, "status", "event")
	if evt.Status == "" {
		evt.Status = evt.EndReason
	}
	evt.Status = strings.ToLower(evt.Status)

	if d, ok := intField(raw, "duration"); ok {
		evt.DurationSeconds = &d
	}

	return evt, nil
}

// firstString returns the first non-empty string value among keys.
func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					return s
				}
			}
		}
	}
	return ""
}

// intField coerces a numeric or numeric-string field to an int.
func intField(m map[string]any, key string) (int, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}
