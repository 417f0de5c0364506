package calls

import "context"

// ProviderMode distinguishes a real provider round-trip from mock mode
// (no credentials configured, no network call made).
type ProviderMode string

const (
	ProviderModeLive ProviderMode = "live"
	ProviderModeMock ProviderMode = "mock"
)

type StartCallParams struct {
	CustomerPhone string
	AgentPhone    string
	CallerID      string
	CallType      string
}

type StartCallResult struct {
	// ExternalCallID is the provider-assigned call id; empty in mock mode
	// until a webhook confirms the call.
	ExternalCallID string
	Mode           ProviderMode
}

// VoiceProvider is the outbound adapter surface the engine drives.
// Implementations must bound each request with a timeout; the engine never
// holds a store lock across these calls.
type VoiceProvider interface {
	Name() string
	StartCall(ctx context.Context, p StartCallParams) (StartCallResult, error)
	Hangup(ctx context.Context, externalCallID string) (ProviderMode, error)
	Transfer(ctx context.Context, externalCallID, extension string) (ProviderMode, error)
}
