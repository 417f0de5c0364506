package calls

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"callcenter-platform/internal/crm"
	"callcenter-platform/internal/notify"

	"github.com/google/uuid"
)

// ContractVersion tags records created through the provider-contract-shaped
// start endpoint.
const ContractVersion = "v2"

// Engine owns the call lifecycle state machine. It consumes inbound webhook
// events and outbound initiate/hangup/transfer requests, produces call
// records, links CRM tasks and emits live-update notifications.
//
// Local state reflects "what the CRM decided"; provider calls are remote
// confirmation and never roll back a committed local transition.
type Engine struct {
	store    Store
	tasks    crm.TaskStore
	agents   crm.AgentDirectory
	provider VoiceProvider
	notifier notify.Publisher
	log      *slog.Logger
	clock    func() time.Time
}

type EngineOption func(*Engine)

// WithClock sets the time source. Override in tests.
func WithClock(fn func() time.Time) EngineOption {
	return func(e *Engine) { e.clock = fn }
}

func NewEngine(store Store, tasks crm.TaskStore, agents crm.AgentDirectory, provider VoiceProvider, notifier notify.Publisher, log *slog.Logger, opts ...EngineOption) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		store:    store,
		tasks:    tasks,
		agents:   agents,
		provider: provider,
		notifier: notifier,
		log:      log,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type InitiateCallRequest struct {
	TaskID        string `json:"task_id"`
	AgentUserID   string `json:"agent_user_id,omitempty"`
	AgentPhone    string `json:"agent_phone,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty"`
}

type InitiateCallResult struct {
	Call CallRecord   `json:"call"`
	Mode ProviderMode `json:"mode"`
}

// InitiateCall starts an outbound call for a CRM task. The customer phone
// falls back to the task's phone, the agent phone to the agent's profile.
// Exactly one record is created; the task is flipped to in_progress only
// when it was pending.
func (e *Engine) InitiateCall(ctx context.Context, req InitiateCallRequest) (InitiateCallResult, error) {
	task, err := e.tasks.FindTaskByID(ctx, req.TaskID)
	if err != nil {
		return InitiateCallResult{}, err
	}

	customer := strings.TrimSpace(req.CustomerPhone)
	if customer == "" {
		customer = strings.TrimSpace(task.CustomerPhone)
	}
	if customer == "" {
		return InitiateCallResult{}, fmt.Errorf("%w: customer phone required", ErrValidation)
	}

	agentPhone := strings.TrimSpace(req.AgentPhone)
	if agentPhone == "" && req.AgentUserID != "" {
		p, err := e.agents.AgentPhone(ctx, req.AgentUserID)
		if err != nil {
			e.log.Warn("agent phone resolution failed", "agent_user_id", req.AgentUserID, "err", err)
		} else {
			agentPhone = p
		}
	}

	now := e.clock().UTC()
	rec := CallRecord{
		ID:            uuid.NewString(),
		Provider:      e.providerName(),
		TaskID:        task.ID,
		AgentUserID:   req.AgentUserID,
		AgentPhone:    agentPhone,
		CustomerPhone: customer,
		Direction:     DirectionOutbound,
		Status:        CallStatusInitiated,
		StartedAt:     now,
		Metadata:      Metadata{},
	}
	if err := e.store.Insert(ctx, rec); err != nil {
		return InitiateCallResult{}, err
	}

	if task.Status == crm.TaskStatusPending {
		if err := e.tasks.SetStatus(ctx, task.ID, crm.TaskStatusInProgress); err != nil {
			e.log.Warn("task status flip failed", "task_id", task.ID, "err", err)
		}
	}

	res, err := e.provider.StartCall(ctx, StartCallParams{
		CustomerPhone: customer,
		AgentPhone:    agentPhone,
	})
	if err != nil {
		// Local record stays as intent; the adapter error propagates.
		return InitiateCallResult{}, err
	}

	if res.ExternalCallID != "" {
		rec.ExternalCallID = res.ExternalCallID
		if err := e.store.Update(ctx, rec); err != nil {
			return InitiateCallResult{}, err
		}
	}

	e.publish(ctx, notify.EventCallUpdated, rec)
	return InitiateCallResult{Call: rec, Mode: res.Mode}, nil
}

type ContractStartRequest struct {
	CustomerNumber string `json:"customer_number"`
	AgentExtension string `json:"agent_extension,omitempty"`
	CallerID       string `json:"caller_id,omitempty"`
	CallType       string `json:"call_type,omitempty"`
	ExternalTaskID string `json:"external_task_id,omitempty"`
}

// StartCallContractCompatible is the provider-contract-shaped variant of
// InitiateCall used for system-to-system integration. Same invariants;
// additionally tags the record with the contract version.
func (e *Engine) StartCallContractCompatible(ctx context.Context, req ContractStartRequest) (InitiateCallResult, error) {
	customer := strings.TrimSpace(req.CustomerNumber)
	if customer == "" {
		return InitiateCallResult{}, fmt.Errorf("%w: customer number required", ErrValidation)
	}

	var task crm.Task
	if req.ExternalTaskID != "" {
		t, err := e.tasks.FindTaskByID(ctx, req.ExternalTaskID)
		if err != nil {
			return InitiateCallResult{}, err
		}
		task = t
	}

	now := e.clock().UTC()
	rec := CallRecord{
		ID:            uuid.NewString(),
		Provider:      e.providerName(),
		TaskID:        task.ID,
		AgentPhone:    strings.TrimSpace(req.AgentExtension),
		CustomerPhone: customer,
		Direction:     DirectionOutbound,
		Status:        CallStatusInitiated,
		StartedAt:     now,
		Metadata:      Metadata{MetaContractVersion: ContractVersion},
	}
	if err := e.store.Insert(ctx, rec); err != nil {
		return InitiateCallResult{}, err
	}

	if task.ID != "" && task.Status == crm.TaskStatusPending {
		if err := e.tasks.SetStatus(ctx, task.ID, crm.TaskStatusInProgress); err != nil {
			e.log.Warn("task status flip failed", "task_id", task.ID, "err", err)
		}
	}

	res, err := e.provider.StartCall(ctx, StartCallParams{
		CustomerPhone: customer,
		AgentPhone:    rec.AgentPhone,
		CallerID:      req.CallerID,
		CallType:      req.CallType,
	})
	if err != nil {
		return InitiateCallResult{}, err
	}

	if res.ExternalCallID != "" {
		rec.ExternalCallID = res.ExternalCallID
		if err := e.store.Update(ctx, rec); err != nil {
			return InitiateCallResult{}, err
		}
	}

	e.publish(ctx, notify.EventCallUpdated, rec)
	return InitiateCallResult{Call: rec, Mode: res.Mode}, nil
}

type HangupResult struct {
	Call *CallRecord  `json:"call,omitempty"`
	Mode ProviderMode `json:"mode"`
}

// Hangup completes the local record (idempotent: a no-op once ended) and
// then attempts the provider-side hangup. The local completion is committed
// before the provider call, so an adapter error is reported without leaving
// local state ambiguous.
func (e *Engine) Hangup(ctx context.Context, externalCallID string) (HangupResult, error) {
	externalCallID = strings.TrimSpace(externalCallID)
	if externalCallID == "" {
		return HangupResult{}, fmt.Errorf("%w: external call id required", ErrValidation)
	}

	out := HangupResult{}
	rec, found, err := e.store.GetByExternalID(ctx, externalCallID)
	if err != nil {
		return HangupResult{}, err
	}
	if found {
		if rec.EndedAt == nil {
			now := e.clock().UTC()
			updated, err := e.store.UpdateByExternalID(ctx, externalCallID, func(r *CallRecord) error {
				r.applyStatus(CallStatusCompleted, now, nil)
				return nil
			})
			if err != nil {
				return HangupResult{}, err
			}
			rec = updated
			e.publish(ctx, notify.EventCallUpdated, rec)
		}
		out.Call = &rec
	}

	mode, provErr := e.provider.Hangup(ctx, externalCallID)
	out.Mode = mode
	if provErr != nil {
		e.log.Warn("provider hangup failed", "external_call_id", externalCallID, "err", provErr)
		return out, provErr
	}
	return out, nil
}

// Transfer forwards the call to another extension at the provider. A
// transfer does not end the call, so no local state changes.
func (e *Engine) Transfer(ctx context.Context, externalCallID, transferExtension string) (ProviderMode, error) {
	externalCallID = strings.TrimSpace(externalCallID)
	transferExtension = strings.TrimSpace(transferExtension)
	if externalCallID == "" || transferExtension == "" {
		return "", fmt.Errorf("%w: external call id and transfer extension required", ErrValidation)
	}
	return e.provider.Transfer(ctx, externalCallID, transferExtension)
}

type WebhookResult struct {
	Handled string      `json:"handled"`
	Changed bool        `json:"changed"`
	Call    *CallRecord `json:"call,omitempty"`
}

// HandleWebhook is the core dispatch point for inbound provider events.
// Duplicate, late and out-of-order deliveries are absorbed as no-ops; only
// missing required correlation ids fail, and they fail before any mutation.
func (e *Engine) HandleWebhook(ctx context.Context, evt WebhookEvent) (WebhookResult, error) {
	switch evt.Kind {
	case EventIncomingCall:
		return e.handleIncomingCall(ctx, evt)
	case EventCallAnswered:
		return e.applyCorrelatedEvent(ctx, evt, CallStatusAnswered)
	case EventCallEnded:
		return e.applyCorrelatedEvent(ctx, evt, CallStatusCompleted)
	case EventRecordingReady:
		return e.handleRecordingReady(ctx, evt)
	case EventCallMissed:
		return e.handleMissedCall(ctx, evt)
	default:
		return e.handleGeneric(ctx, evt)
	}
}

// handleIncomingCall always creates a new inbound record. Each inbound ring
// is its own record; it is never matched against existing ones.
func (e *Engine) handleIncomingCall(ctx context.Context, evt WebhookEvent) (WebhookResult, error) {
	now := e.clock().UTC()
	rec := CallRecord{
		ID:            uuid.NewString(),
		Provider:      e.providerName(),
		CustomerPhone: evt.From,
		AgentPhone:    evt.AgentExtension,
		Direction:     DirectionInbound,
		Status:        CallStatusRinging,
		Queue:         evt.Queue,
		Trunk:         evt.Trunk,
		StartedAt:     now,
		Metadata:      Metadata{MetaLastWebhook: evt.Raw},
	}

	if evt.ExternalCallID != "" {
		// Keep external ids unique: a duplicate ring for an id we already
		// track gets the id retained in metadata only.
		_, exists, err := e.store.GetByExternalID(ctx, evt.ExternalCallID)
		if err != nil {
			return WebhookResult{}, err
		}
		if exists {
			rec.Metadata["duplicateExternalCallId"] = evt.ExternalCallID
		} else {
			rec.ExternalCallID = evt.ExternalCallID
		}
	}

	if err := e.store.Insert(ctx, rec); err != nil {
		return WebhookResult{}, err
	}
	e.publish(ctx, notify.EventIncomingCall, rec)
	return WebhookResult{Handled: evt.Name, Changed: true, Call: &rec}, nil
}

// applyCorrelatedEvent handles call_answered / call_ended and the generic
// path once a target status is known. Unknown external ids produce a
// flagged orphan record first; webhook delivery is never failed just
// because we lack prior context for a call id.
func (e *Engine) applyCorrelatedEvent(ctx context.Context, evt WebhookEvent, target CallStatus) (WebhookResult, error) {
	if evt.ExternalCallID == "" {
		return WebhookResult{}, fmt.Errorf("%w: %s requires an external call id", ErrValidation, evt.Name)
	}

	now := e.clock().UTC()
	if _, created, err := e.store.FindOrCreateByExternalID(ctx, evt.ExternalCallID, e.orphanSeed(evt, now)); err != nil {
		return WebhookResult{}, err
	} else if created {
		e.log.Info("orphan call record created", "external_call_id", evt.ExternalCallID, "event", evt.Name)
	}

	changed := false
	rec, err := e.store.UpdateByExternalID(ctx, evt.ExternalCallID, func(r *CallRecord) error {
		changed = r.applyStatus(target, now, evt.DurationSeconds)
		if changed && target == CallStatusFailed && evt.EndReason != "" {
			r.Disposition = evt.EndReason
		}
		if r.Metadata == nil {
			r.Metadata = Metadata{}
		}
		r.Metadata[MetaLastWebhook] = evt.Raw
		return nil
	})
	if err != nil {
		return WebhookResult{}, err
	}

	if !changed {
		e.log.Debug("webhook absorbed as no-op", "external_call_id", evt.ExternalCallID, "event", evt.Name, "status", rec.Status)
		return WebhookResult{Handled: evt.Name, Call: &rec}, nil
	}

	if rec.Status.Terminal() && rec.TaskID != "" {
		// The task's own status is deliberately not forced to completed:
		// call completion and task resolution are different events.
		if err := e.tasks.AppendNote(ctx, rec.TaskID, terminalNote(rec)); err != nil {
			e.log.Warn("task note append failed", "task_id", rec.TaskID, "err", err)
		}
	}

	e.publish(ctx, notify.EventCallUpdated, rec)
	return WebhookResult{Handled: evt.Name, Changed: true, Call: &rec}, nil
}

func (e *Engine) handleRecordingReady(ctx context.Context, evt WebhookEvent) (WebhookResult, error) {
	if evt.ExternalCallID == "" {
		return WebhookResult{}, fmt.Errorf("%w: %s requires an external call id", ErrValidation, evt.Name)
	}

	now := e.clock().UTC()
	if _, created, err := e.store.FindOrCreateByExternalID(ctx, evt.ExternalCallID, e.orphanSeed(evt, now)); err != nil {
		return WebhookResult{}, err
	} else if created {
		e.log.Info("orphan call record created", "external_call_id", evt.ExternalCallID, "event", evt.Name)
	}

	changed := false
	rec, err := e.store.UpdateByExternalID(ctx, evt.ExternalCallID, func(r *CallRecord) error {
		if evt.RecordingURL != "" && r.RecordingURL != evt.RecordingURL {
			r.RecordingURL = evt.RecordingURL
			changed = true
		}
		if r.Metadata == nil {
			r.Metadata = Metadata{}
		}
		r.Metadata[MetaLastWebhook] = evt.Raw
		return nil
	})
	if err != nil {
		return WebhookResult{}, err
	}

	if changed {
		e.publish(ctx, notify.EventCallUpdated, rec)
	}
	return WebhookResult{Handled: evt.Name, Changed: changed, Call: &rec}, nil
}

// handleMissedCall ensures a pending callback task exists for the caller.
// Idempotent per (phone, reason, pending): repeated missed-call webhooks
// for the same unanswered caller never pile up duplicate callbacks.
func (e *Engine) handleMissedCall(ctx context.Context, evt WebhookEvent) (WebhookResult, error) {
	if strings.TrimSpace(evt.From) == "" {
		return WebhookResult{Handled: evt.Name}, nil
	}
	_, created, err := e.tasks.EnsureCallbackTask(ctx, strings.TrimSpace(evt.From), crm.ReasonMissedCall)
	if err != nil {
		return WebhookResult{}, err
	}
	return WebhookResult{Handled: evt.Name, Changed: created}, nil
}

// handleGeneric is the legacy fallback: no recognized event name, so the
// status-like payload field is mapped through the fixed lookup table. This
// path has no incoming-call shortcut and therefore requires correlation.
func (e *Engine) handleGeneric(ctx context.Context, evt WebhookEvent) (WebhookResult, error) {
	if evt.ExternalCallID == "" {
		return WebhookResult{}, fmt.Errorf("%w: webhook requires an external call id", ErrValidation)
	}
	target, ok := mapProviderStatus(evt.Status)
	if !ok {
		e.log.Warn("unmapped provider status", "status", evt.Status, "external_call_id", evt.ExternalCallID)
		return WebhookResult{Handled: evt.Name}, nil
	}
	return e.applyCorrelatedEvent(ctx, evt, target)
}

func (e *Engine) orphanSeed(evt WebhookEvent, now time.Time) CallRecord {
	return CallRecord{
		ID:            uuid.NewString(),
		Provider:      e.providerName(),
		CustomerPhone: evt.From,
		AgentPhone:    evt.AgentExtension,
		Direction:     DirectionInbound,
		Status:        CallStatusInitiated,
		Queue:         evt.Queue,
		Trunk:         evt.Trunk,
		StartedAt:     now,
		Metadata:      Metadata{MetaOrphan: true},
	}
}

func terminalNote(rec CallRecord) string {
	if rec.Status == CallStatusFailed {
		if rec.Disposition != "" {
			return fmt.Sprintf("Call failed: %s", rec.Disposition)
		}
		return "Call failed"
	}
	if rec.DurationSeconds != nil {
		return fmt.Sprintf("Call completed, duration %ds", *rec.DurationSeconds)
	}
	return "Call completed, duration unknown"
}

func (e *Engine) providerName() string {
	if e.provider != nil {
		return e.provider.Name()
	}
	return "bracknet"
}

// publish is fire-and-forget; a slow or failing notifier never blocks the
// engine.
func (e *Engine) publish(ctx context.Context, event string, payload any) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Publish(ctx, event, payload); err != nil {
		e.log.Warn("live update publish failed", "event", event, "err", err)
	}
}
