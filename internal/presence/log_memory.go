package presence

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryEventLog is an in-memory EventLog for tests and early development.
type MemoryEventLog struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryEventLog() *MemoryEventLog {
	return &MemoryEventLog{}
}

func (l *MemoryEventLog) Append(ctx context.Context, e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *MemoryEventLog) Range(ctx context.Context, from, to time.Time, agentIDs []string) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	want := idSet(agentIDs)
	var out []Event
	for _, e := range l.events {
		if e.OccurredAt.Before(from) || !e.OccurredAt.Before(to) {
			continue
		}
		if want != nil && !want[e.AgentID] {
			continue
		}
		out = append(out, e)
	}
	sortEvents(out)
	return out, nil
}

func (l *MemoryEventLog) LastBefore(ctx context.Context, before time.Time, agentIDs []string) (map[string]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	want := idSet(agentIDs)
	out := map[string]Event{}
	for _, e := range l.events {
		if !e.OccurredAt.Before(before) {
			continue
		}
		if want != nil && !want[e.AgentID] {
			continue
		}
		prev, ok := out[e.AgentID]
		if !ok || laterThan(e, prev) {
			out[e.AgentID] = e
		}
	}
	return out, nil
}

func (l *MemoryEventLog) AgentIDs(ctx context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := map[string]bool{}
	var out []string
	for _, e := range l.events {
		if !seen[e.AgentID] {
			seen[e.AgentID] = true
			out = append(out, e.AgentID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func idSet(ids []string) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

// sortEvents orders by occurrence, breaking ties by append order (CreatedAt,
// then ID) so replay is deterministic.
func sortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return laterThan(events[j], events[i])
	})
}

func laterThan(a, b Event) bool {
	if !a.OccurredAt.Equal(b.OccurredAt) {
		return a.OccurredAt.After(b.OccurredAt)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
