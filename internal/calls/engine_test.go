package calls

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"callcenter-platform/internal/crm"
	"callcenter-platform/internal/notify"
)

type mockProvider struct {
	mu         sync.Mutex
	mode       ProviderMode
	externalID string
	err        error

	startCalls int
	hangups    []string
	transfers  [][2]string
}

func (m *mockProvider) Name() string { return "bracknet" }

func (m *mockProvider) StartCall(_ context.Context, _ StartCallParams) (StartCallResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startCalls++
	if m.err != nil {
		return StartCallResult{}, m.err
	}
	return StartCallResult{ExternalCallID: m.externalID, Mode: m.mode}, nil
}

func (m *mockProvider) Hangup(_ context.Context, externalCallID string) (ProviderMode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hangups = append(m.hangups, externalCallID)
	return m.mode, m.err
}

func (m *mockProvider) Transfer(_ context.Context, externalCallID, ext string) (ProviderMode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers = append(m.transfers, [2]string{externalCallID, ext})
	return m.mode, m.err
}

type fixture struct {
	engine   *Engine
	store    *MemoryStore
	tasks    *crm.MemoryTaskStore
	provider *mockProvider
	notifier *notify.MockPublisher
	now      *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := time.Unix(1700000000, 0).UTC()
	now := &base
	store := NewMemoryStore()
	tasks := crm.NewMemoryTaskStore()
	provider := &mockProvider{mode: ProviderModeMock}
	notifier := notify.NewMockPublisher()
	e := NewEngine(store, tasks, tasks, provider, notifier, nil, WithClock(func() time.Time { return *now }))
	return &fixture{engine: e, store: store, tasks: tasks, provider: provider, notifier: notifier, now: now}
}

func (f *fixture) advance(d time.Duration) {
	t := f.now.Add(d)
	*f.now = t
}

func TestInitiateCall_MockModeFallsBackToTaskPhone(t *testing.T) {
	f := newFixture(t)
	f.tasks.Put(crm.Task{ID: "7", CustomerPhone: "01700000000", Status: crm.TaskStatusPending})

	res, err := f.engine.InitiateCall(context.Background(), InitiateCallRequest{TaskID: "7", AgentUserID: "3"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Mode != ProviderModeMock {
		t.Fatalf("expected mock mode, got %q", res.Mode)
	}
	if res.Call.CustomerPhone != "01700000000" {
		t.Fatalf("expected customer phone from task, got %q", res.Call.CustomerPhone)
	}
	if res.Call.Status != CallStatusInitiated {
		t.Fatalf("expected initiated, got %q", res.Call.Status)
	}
	if len(f.store.All()) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(f.store.All()))
	}

	task, _ := f.tasks.FindTaskByID(context.Background(), "7")
	if task.Status != crm.TaskStatusInProgress {
		t.Fatalf("expected task flipped to in_progress, got %q", task.Status)
	}
}

func TestInitiateCall_EmptyCustomerPhoneIsValidationError(t *testing.T) {
	f := newFixture(t)
	f.tasks.Put(crm.Task{ID: "7", Status: crm.TaskStatusPending})

	_, err := f.engine.InitiateCall(context.Background(), InitiateCallRequest{TaskID: "7"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if len(f.store.All()) != 0 {
		t.Fatalf("validation failure must not create records")
	}
	if f.provider.startCalls != 0 {
		t.Fatalf("validation failure must not call the provider")
	}
}

func TestInitiateCall_UnknownTask(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.InitiateCall(context.Background(), InitiateCallRequest{TaskID: "missing"})
	if !errors.Is(err, crm.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestInitiateCall_RecordsExternalIDFromProvider(t *testing.T) {
	f := newFixture(t)
	f.provider.mode = ProviderModeLive
	f.provider.externalID = "BRK-42"
	f.tasks.Put(crm.Task{ID: "7", CustomerPhone: "01700000000", Status: crm.TaskStatusInProgress})

	res, err := f.engine.InitiateCall(context.Background(), InitiateCallRequest{TaskID: "7"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Call.ExternalCallID != "BRK-42" {
		t.Fatalf("expected external id recorded, got %q", res.Call.ExternalCallID)
	}
	stored, found, _ := f.store.GetByExternalID(context.Background(), "BRK-42")
	if !found || stored.ID != res.Call.ID {
		t.Fatalf("expected record correlated by external id")
	}
}

func TestStartCallContractCompatible_TagsContractVersion(t *testing.T) {
	f := newFixture(t)
	res, err := f.engine.StartCallContractCompatible(context.Background(), ContractStartRequest{CustomerNumber: "01811111111", AgentExtension: "104"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Call.Metadata[MetaContractVersion] != ContractVersion {
		t.Fatalf("expected contract version tag, got %v", res.Call.Metadata[MetaContractVersion])
	}
	if res.Call.AgentPhone != "104" {
		t.Fatalf("expected agent extension, got %q", res.Call.AgentPhone)
	}
}

func TestHandleWebhook_AnsweredCreatesOrphan(t *testing.T) {
	f := newFixture(t)
	res, err := f.engine.HandleWebhook(context.Background(), WebhookEvent{
		Kind: EventCallAnswered, Name: "call_answered", ExternalCallID: "X1",
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Call == nil || res.Call.Status != CallStatusAnswered {
		t.Fatalf("expected answered orphan, got %+v", res.Call)
	}
	if res.Call.AnsweredAt == nil {
		t.Fatalf("expected answeredAt set")
	}
	if !res.Call.IsOrphan() {
		t.Fatalf("expected orphan flag in metadata")
	}
}

func TestHandleWebhook_AnsweredWithoutExternalID(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.HandleWebhook(context.Background(), WebhookEvent{Kind: EventCallAnswered, Name: "call_answered"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if len(f.store.All()) != 0 {
		t.Fatalf("validation failure must not create records")
	}
}

func TestHandleWebhook_EndedComputesDurationFromAnsweredAt(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.HandleWebhook(context.Background(), WebhookEvent{Kind: EventCallAnswered, Name: "call_answered", ExternalCallID: "X1"}); err != nil {
		t.Fatalf("answered: %v", err)
	}

	f.advance(125 * time.Second)
	res, err := f.engine.HandleWebhook(context.Background(), WebhookEvent{Kind: EventCallEnded, Name: "call_ended", ExternalCallID: "X1"})
	if err != nil {
		t.Fatalf("ended: %v", err)
	}
	if res.Call.DurationSeconds == nil || *res.Call.DurationSeconds != 125 {
		t.Fatalf("expected duration 125, got %v", res.Call.DurationSeconds)
	}
}

func TestHandleWebhook_EndedPrefersPayloadDuration(t *testing.T) {
	f := newFixture(t)
	d := 99
	res, err := f.engine.HandleWebhook(context.Background(), WebhookEvent{
		Kind: EventCallEnded, Name: "call_ended", ExternalCallID: "X2", DurationSeconds: &d,
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Call.DurationSeconds == nil || *res.Call.DurationSeconds != 99 {
		t.Fatalf("expected payload duration 99, got %v", res.Call.DurationSeconds)
	}
}

func TestHandleWebhook_DuplicateEndedIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.tasks.Put(crm.Task{ID: "t1", CustomerPhone: "0170", Status: crm.TaskStatusInProgress})

	rec := CallRecord{
		ID: "c1", Provider: "bracknet", ExternalCallID: "X3", TaskID: "t1",
		CustomerPhone: "0170", Direction: DirectionOutbound, Status: CallStatusAnswered,
		StartedAt: *f.now,
	}
	answered := *f.now
	rec.AnsweredAt = &answered
	if err := f.store.Insert(context.Background(), rec); err != nil {
		t.Fatalf("seed: %v", err)
	}

	f.advance(60 * time.Second)
	evt := WebhookEvent{Kind: EventCallEnded, Name: "call_ended", ExternalCallID: "X3"}
	first, err := f.engine.HandleWebhook(context.Background(), evt)
	if err != nil {
		t.Fatalf("first: %v", err)
	}

	f.advance(30 * time.Second)
	second, err := f.engine.HandleWebhook(context.Background(), evt)
	if err != nil {
		t.Fatalf("second: %v", err)
	}

	if second.Changed {
		t.Fatalf("duplicate delivery must be a no-op")
	}
	if *first.Call.DurationSeconds != *second.Call.DurationSeconds {
		t.Fatalf("duration changed on duplicate: %d vs %d", *first.Call.DurationSeconds, *second.Call.DurationSeconds)
	}

	task, _ := f.tasks.FindTaskByID(context.Background(), "t1")
	if len(task.Notes) != 1 {
		t.Fatalf("expected exactly one task note, got %d", len(task.Notes))
	}
}

func TestHandleWebhook_FinalStatusIsOrderIndependent(t *testing.T) {
	deliver := func(t *testing.T, f *fixture, events []WebhookEvent) CallRecord {
		t.Helper()
		for _, evt := range events {
			if _, err := f.engine.HandleWebhook(context.Background(), evt); err != nil {
				t.Fatalf("deliver %s: %v", evt.Name, err)
			}
		}
		rec, found, _ := f.store.GetByExternalID(context.Background(), "X9")
		if !found {
			t.Fatalf("expected record")
		}
		return rec
	}

	answered := WebhookEvent{Kind: EventCallAnswered, Name: "call_answered", ExternalCallID: "X9"}
	ended := WebhookEvent{Kind: EventCallEnded, Name: "call_ended", ExternalCallID: "X9"}

	inOrder := deliver(t, newFixture(t), []WebhookEvent{answered, ended})
	reversed := deliver(t, newFixture(t), []WebhookEvent{ended, answered})

	if inOrder.Status != CallStatusCompleted || reversed.Status != CallStatusCompleted {
		t.Fatalf("final status must not depend on delivery order: %q vs %q", inOrder.Status, reversed.Status)
	}
}

func TestHandleWebhook_IncomingCallAlwaysCreates(t *testing.T) {
	f := newFixture(t)
	evt := WebhookEvent{Kind: EventIncomingCall, Name: "incoming_call", From: "01755555555"}

	if _, err := f.engine.HandleWebhook(context.Background(), evt); err != nil {
		t.Fatalf("first ring: %v", err)
	}
	if _, err := f.engine.HandleWebhook(context.Background(), evt); err != nil {
		t.Fatalf("second ring: %v", err)
	}

	all := f.store.All()
	if len(all) != 2 {
		t.Fatalf("each inbound ring is its own record, got %d", len(all))
	}
	for _, rec := range all {
		if rec.Status != CallStatusRinging || rec.Direction != DirectionInbound {
			t.Fatalf("unexpected record: %+v", rec)
		}
	}
	if got := len(f.notifier.EventsNamed(notify.EventIncomingCall)); got != 2 {
		t.Fatalf("expected 2 incoming_call notifications, got %d", got)
	}
}

func TestHandleWebhook_MissedCallIsIdempotent(t *testing.T) {
	f := newFixture(t)
	evt := WebhookEvent{Kind: EventCallMissed, Name: "call_missed", From: "01700000000"}

	first, err := f.engine.HandleWebhook(context.Background(), evt)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := f.engine.HandleWebhook(context.Background(), evt)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !first.Changed || second.Changed {
		t.Fatalf("expected one callback task: first=%v second=%v", first.Changed, second.Changed)
	}
}

func TestHandleWebhook_RecordingReadyKeepsStatus(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.HandleWebhook(context.Background(), WebhookEvent{Kind: EventCallAnswered, Name: "call_answered", ExternalCallID: "X5"}); err != nil {
		t.Fatalf("answered: %v", err)
	}

	res, err := f.engine.HandleWebhook(context.Background(), WebhookEvent{
		Kind: EventRecordingReady, Name: "call_recording_ready", ExternalCallID: "X5",
		RecordingURL: "https://cdn.bracknet.example/rec/X5.mp3",
	})
	if err != nil {
		t.Fatalf("recording: %v", err)
	}
	if res.Call.RecordingURL == "" {
		t.Fatalf("expected recording url set")
	}
	if res.Call.Status != CallStatusAnswered {
		t.Fatalf("recording must not change status, got %q", res.Call.Status)
	}
}

func TestHandleWebhook_GenericMapsStatuses(t *testing.T) {
	f := newFixture(t)
	res, err := f.engine.HandleWebhook(context.Background(), WebhookEvent{
		Kind: EventUnknown, Name: "status_update", ExternalCallID: "X7", Status: "busy", EndReason: "busy",
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Call.Status != CallStatusFailed {
		t.Fatalf("expected busy to map to failed, got %q", res.Call.Status)
	}
	if res.Call.Disposition != "busy" {
		t.Fatalf("expected disposition recorded, got %q", res.Call.Disposition)
	}
}

func TestHandleWebhook_GenericRequiresExternalID(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.HandleWebhook(context.Background(), WebhookEvent{Kind: EventUnknown, Name: "status_update", Status: "ringing"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestHandleWebhook_TerminalAbsorbsLateEvents(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.HandleWebhook(context.Background(), WebhookEvent{Kind: EventCallEnded, Name: "call_ended", ExternalCallID: "X8"}); err != nil {
		t.Fatalf("ended: %v", err)
	}

	res, err := f.engine.HandleWebhook(context.Background(), WebhookEvent{Kind: EventCallAnswered, Name: "call_answered", ExternalCallID: "X8"})
	if err != nil {
		t.Fatalf("late answered must not error: %v", err)
	}
	if res.Changed {
		t.Fatalf("late event for terminal call must be a no-op")
	}
	if res.Call.Status != CallStatusCompleted {
		t.Fatalf("expected completed, got %q", res.Call.Status)
	}
}

func TestHangup_IdempotentAndCommitsBeforeProvider(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.HandleWebhook(context.Background(), WebhookEvent{Kind: EventCallAnswered, Name: "call_answered", ExternalCallID: "H1"}); err != nil {
		t.Fatalf("answered: %v", err)
	}

	f.provider.err = errors.New("bracknet 503")
	res, err := f.engine.Hangup(context.Background(), "H1")
	if err == nil {
		t.Fatalf("expected provider error surfaced")
	}
	if res.Call == nil || res.Call.Status != CallStatusCompleted {
		t.Fatalf("local completion must be committed before the adapter call: %+v", res.Call)
	}

	f.provider.err = nil
	endedAt := *res.Call.EndedAt
	again, err := f.engine.Hangup(context.Background(), "H1")
	if err != nil {
		t.Fatalf("second hangup: %v", err)
	}
	if !again.Call.EndedAt.Equal(endedAt) {
		t.Fatalf("repeated hangup must not move endedAt")
	}
	if len(f.provider.hangups) != 2 {
		t.Fatalf("provider hangup attempted on every call, got %d", len(f.provider.hangups))
	}
}

func TestHangup_RequiresExternalID(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.Hangup(context.Background(), "  "); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestTransfer_ValidatesAndDoesNotMutate(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.Transfer(context.Background(), "X1", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	if _, err := f.engine.HandleWebhook(context.Background(), WebhookEvent{Kind: EventCallAnswered, Name: "call_answered", ExternalCallID: "X1"}); err != nil {
		t.Fatalf("answered: %v", err)
	}
	if _, err := f.engine.Transfer(context.Background(), "X1", "105"); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	rec, _, _ := f.store.GetByExternalID(context.Background(), "X1")
	if rec.Status != CallStatusAnswered {
		t.Fatalf("transfer must not change local state, got %q", rec.Status)
	}
	if len(f.provider.transfers) != 1 {
		t.Fatalf("expected one provider transfer, got %d", len(f.provider.transfers))
	}
}

func TestHandleWebhook_RetainsRawPayload(t *testing.T) {
	f := newFixture(t)
	raw := map[string]any{"bracknet_call_id": "X1", "status": "answered"}
	res, err := f.engine.HandleWebhook(context.Background(), WebhookEvent{
		Kind: EventCallAnswered, Name: "call_answered", ExternalCallID: "X1", Raw: raw,
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if _, ok := res.Call.Metadata[MetaLastWebhook]; !ok {
		t.Fatalf("expected raw payload retained under lastWebhook")
	}
}
