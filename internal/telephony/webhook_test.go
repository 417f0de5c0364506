package telephony

import (
	"testing"

	"callcenter-platform/internal/calls"
)

func TestParseWebhookEvent_FieldAliases(t *testing.T) {
	body := []byte(`{"callId":"BRK-7","customer_number":"01711111111","agent_extension":"104","status":"answered"}`)
	evt, err := ParseWebhookEvent("call_answered", body)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if evt.Kind != calls.EventCallAnswered {
		t.Fatalf("unexpected kind: %v", evt.Kind)
	}
	if evt.ExternalCallID != "BRK-7" {
		t.Fatalf("expected callId alias honored, got %q", evt.ExternalCallID)
	}
	if evt.From != "01711111111" || evt.AgentExtension != "104" {
		t.Fatalf("unexpected from/extension: %q %q", evt.From, evt.AgentExtension)
	}
}

func TestParseWebhookEvent_PrimaryIDWins(t *testing.T) {
	body := []byte(`{"bracknet_call_id":"BRK-1","id":"other"}`)
	evt, err := ParseWebhookEvent("call_ended", body)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if evt.ExternalCallID != "BRK-1" {
		t.Fatalf("expected bracknet_call_id to win, got %q", evt.ExternalCallID)
	}
}

func TestParseWebhookEvent_DurationCoercion(t *testing.T) {
	for _, body := range []string{
		`{"id":"X","duration":125}`,
		`{"id":"X","duration":"125"}`,
	} {
		evt, err := ParseWebhookEvent("call_ended", []byte(body))
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		if evt.DurationSeconds == nil || *evt.DurationSeconds != 125 {
			t.Fatalf("expected duration 125 from %s, got %v", body, evt.DurationSeconds)
		}
	}
}

func TestParseWebhookEvent_GenericFallsBackToEndReason(t *testing.T) {
	evt, err := ParseWebhookEvent("", []byte(`{"id":"X","end_reason":"no_answer"}`))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if evt.Kind != calls.EventUnknown {
		t.Fatalf("expected unknown kind, got %v", evt.Kind)
	}
	if evt.Status != "no_answer" {
		t.Fatalf("expected status from end_reason, got %q", evt.Status)
	}
}

func TestParseWebhookEvent_NameNormalized(t *testing.T) {
	evt, err := ParseWebhookEvent("  Missed_Call ", []byte(`{"from":"0170"}`))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if evt.Kind != calls.EventCallMissed {
		t.Fatalf("expected missed_call alias, got %v", evt.Kind)
	}
}

func TestParseWebhookEvent_RejectsInvalidJSON(t *testing.T) {
	if _, err := ParseWebhookEvent("call_ended", []byte(`{not json`)); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSignatureRoundTrip(t *testing.T) {
	body := []byte(`{"bracknet_call_id":"X1"}`)
	sig := ComputeSignature("s3cret", body)
	if !VerifySignature("s3cret", body, sig) {
		t.Fatalf("expected signature to verify")
	}
	if VerifySignature("s3cret", body, "deadbeef") {
		t.Fatalf("expected bad signature rejected")
	}
	if VerifySignature("s3cret", body, "") {
		t.Fatalf("expected empty signature rejected")
	}
	if VerifySignature("other", body, sig) {
		t.Fatalf("expected wrong secret rejected")
	}
}
