package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"callcenter-platform/internal/calls"
	"callcenter-platform/internal/config"
)

// ErrProvider marks outbound HTTP failures (non-2xx, timeout, transport).
var ErrProvider = errors.New("telephony: provider request failed")

const requestTimeout = 12 * time.Second

// BracknetProvider is the outbound REST adapter for the Bracknet voice API.
//
// Mock mode: when credentials are not configured every operation succeeds
// locally with no network call. This is a deliberate success path for
// local/offline operation, not a degraded one.
type BracknetProvider struct {
	cfg   config.BracknetConfig
	httpc *http.Client
	log   *slog.Logger
}

func NewBracknetProvider(cfg config.BracknetConfig, log *slog.Logger) *BracknetProvider {
	if log == nil {
		log = slog.Default()
	}
	return &BracknetProvider{
		cfg:   cfg,
		httpc: &http.Client{Timeout: requestTimeout},
		log:   log,
	}
}

func (p *BracknetProvider) Name() string { return "bracknet" }

func (p *BracknetProvider) StartCall(ctx context.Context, params calls.StartCallParams) (calls.StartCallResult, error) {
	if !p.cfg.Configured() {
		return calls.StartCallResult{Mode: calls.ProviderModeMock}, nil
	}

	body := map[string]any{
		"customer_number": params.CustomerPhone,
		"agent_extension": params.AgentPhone,
	}
	if params.CallerID != "" {
		body["caller_id"] = params.CallerID
	}
	if params.CallType != "" {
		body["call_type"] = params.CallType
	}

	var out struct {
		CallID string `json:"call_id"`
	}
	if err := p.post(ctx, "/v1/calls", body, &out); err != nil {
		return calls.StartCallResult{}, err
	}
	return calls.StartCallResult{ExternalCallID: out.CallID, Mode: calls.ProviderModeLive}, nil
}

func (p *BracknetProvider) Hangup(ctx context.Context, externalCallID string) (calls.ProviderMode, error) {
	if !p.cfg.Configured() {
		return calls.ProviderModeMock, nil
	}
	path := "/v1/calls/" + url.PathEscape(externalCallID) + "/hangup"
	if err := p.post(ctx, path, map[string]any{}, nil); err != nil {
		return calls.ProviderModeLive, err
	}
	return calls.ProviderModeLive, nil
}

func (p *BracknetProvider) Transfer(ctx context.Context, externalCallID, extension string) (calls.ProviderMode, error) {
	if !p.cfg.Configured() {
		return calls.ProviderModeMock, nil
	}
	path := "/v1/calls/" + url.PathEscape(externalCallID) + "/transfer"
	if err := p.post(ctx, path, map[string]any{"extension": extension}, nil); err != nil {
		return calls.ProviderModeLive, err
	}
	return calls.ProviderModeLive, nil
}

func (p *BracknetProvider) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: POST %s: %v", ErrProvider, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		p.log.Warn("bracknet request rejected", "path", path, "status", resp.StatusCode, "body", string(snippet))
		return fmt.Errorf("%w: POST %s returned %d", ErrProvider, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: POST %s: decode: %v", ErrProvider, path, err)
		}
	}
	return nil
}
