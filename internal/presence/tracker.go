package presence

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"callcenter-platform/internal/notify"

	"github.com/google/uuid"
)

// Tracker answers "what is this agent doing right now" and records
// transitions. Reads are served from the cache with the event log as
// fallback; an agent with no recorded state is offline, never an error.
type Tracker struct {
	events   EventLog
	cache    Cache
	notifier notify.Publisher
	log      *slog.Logger
	clock    func() time.Time
}

type TrackerOption func(*Tracker)

// WithTrackerClock sets the time source. Override in tests.
func WithTrackerClock(fn func() time.Time) TrackerOption {
	return func(t *Tracker) { t.clock = fn }
}

func NewTracker(events EventLog, cache Cache, notifier notify.Publisher, log *slog.Logger, opts ...TrackerOption) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	if cache == nil {
		cache = NewMapCache()
	}
	t := &Tracker{
		events:   events,
		cache:    cache,
		notifier: notifier,
		log:      log,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Get returns the agent's current presence. Unknown agents are offline
// since the epoch; Get never fails on missing state.
func (t *Tracker) Get(ctx context.Context, agentID string) (Snapshot, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return Snapshot{}, fmt.Errorf("%w: agent id required", ErrValidation)
	}

	if snap, ok, err := t.cache.Get(ctx, agentID); err != nil {
		t.log.Warn("presence cache read failed", "agent_id", agentID, "err", err)
	} else if ok {
		return snap, nil
	}

	latest, err := t.events.LastBefore(ctx, t.clock().UTC(), []string{agentID})
	if err != nil {
		return Snapshot{}, err
	}
	if e, ok := latest[agentID]; ok {
		snap := Snapshot{AgentID: agentID, Status: e.Status, Since: e.OccurredAt}
		if err := t.cache.Set(ctx, snap); err != nil {
			t.log.Warn("presence cache warm failed", "agent_id", agentID, "err", err)
		}
		return snap, nil
	}

	return Snapshot{AgentID: agentID, Status: StatusOffline, Since: time.Unix(0, 0).UTC()}, nil
}

// Set records a transition. The event log is the source of truth: the
// append happens first, cache and notification follow best-effort.
func (t *Tracker) Set(ctx context.Context, agentID string, status Status, source string) (Snapshot, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return Snapshot{}, fmt.Errorf("%w: agent id required", ErrValidation)
	}
	if !status.Valid() {
		return Snapshot{}, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}

	now := t.clock().UTC()
	e := Event{
		ID:         uuid.NewString(),
		AgentID:    agentID,
		Status:     status,
		Source:     source,
		OccurredAt: now,
		CreatedAt:  now,
	}
	if err := t.events.Append(ctx, e); err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{AgentID: agentID, Status: status, Since: now}
	if err := t.cache.Set(ctx, snap); err != nil {
		t.log.Warn("presence cache write failed", "agent_id", agentID, "err", err)
	}
	if t.notifier != nil {
		if err := t.notifier.Publish(ctx, notify.EventAgentPresence, snap); err != nil {
			t.log.Warn("presence publish failed", "agent_id", agentID, "err", err)
		}
	}
	return snap, nil
}
