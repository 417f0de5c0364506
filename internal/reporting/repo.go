package reporting

import (
	"context"
	"sort"
	"sync"
	"time"

	"callcenter-platform/internal/calls"
)

// Repository reads call history. Reporting never writes; call records are
// produced by the lifecycle engine.
type Repository interface {
	// ListCalls returns the filtered page (newest first) and the total
	// match count. The filter passed here is already normalized by the
	// service.
	ListCalls(ctx context.Context, f CDRFilter) ([]calls.CallRecord, int, error)

	// CallsStartedBetween returns every record with started_at in [from, to).
	CallsStartedBetween(ctx context.Context, from, to time.Time) ([]calls.CallRecord, error)
}

// MemoryRepo is an in-memory Repository for tests and early development.
type MemoryRepo struct {
	mu      sync.Mutex
	records []calls.CallRecord
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{}
}

// Add seeds a record (test helper).
func (r *MemoryRepo) Add(recs ...calls.CallRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, recs...)
}

func (r *MemoryRepo) ListCalls(ctx context.Context, f CDRFilter) ([]calls.CallRecord, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []calls.CallRecord
	for _, rec := range r.records {
		if matchesFilter(rec, f) {
			matched = append(matched, rec)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})

	total := len(matched)
	start := (f.Page - 1) * f.PageSize
	if start >= total {
		return []calls.CallRecord{}, total, nil
	}
	end := start + f.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *MemoryRepo) CallsStartedBetween(ctx context.Context, from, to time.Time) ([]calls.CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []calls.CallRecord
	for _, rec := range r.records {
		if rec.StartedAt.Before(from) || !rec.StartedAt.Before(to) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func matchesFilter(rec calls.CallRecord, f CDRFilter) bool {
	if rec.StartedAt.Before(f.From) || !rec.StartedAt.Before(f.To) {
		return false
	}
	if f.AgentUserID != "" && rec.AgentUserID != f.AgentUserID {
		return false
	}
	if f.Direction != "" && rec.Direction != f.Direction {
		return false
	}
	if f.Status != "" && rec.Status != f.Status {
		return false
	}
	if f.Queue != "" && rec.Queue != f.Queue {
		return false
	}
	if f.Trunk != "" && rec.Trunk != f.Trunk {
		return false
	}
	if f.Disposition != "" && rec.Disposition != f.Disposition {
		return false
	}
	return true
}
