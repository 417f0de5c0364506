package reporting

import (
	"context"
	"testing"
	"time"

	"callcenter-platform/internal/calls"
)

func fixedClock(at time.Time) ServiceOption {
	return WithServiceClock(func() time.Time { return at })
}

func mkCall(id string, startedAt time.Time, mutate func(*calls.CallRecord)) calls.CallRecord {
	rec := calls.CallRecord{
		ID:            id,
		Provider:      "bracknet",
		CustomerPhone: "01700000000",
		Direction:     calls.DirectionInbound,
		Status:        calls.CallStatusCompleted,
		StartedAt:     startedAt,
	}
	if mutate != nil {
		mutate(&rec)
	}
	return rec
}

func TestListCDR_DefaultsToLastSevenDays(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := NewMemoryRepo()
	repo.Add(
		mkCall("recent", now.Add(-24*time.Hour), nil),
		mkCall("stale", now.Add(-10*24*time.Hour), nil),
	)
	svc := NewService(repo, nil, fixedClock(now))

	page, err := svc.ListCDR(context.Background(), CDRFilter{})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if page.Total != 1 || len(page.Calls) != 1 || page.Calls[0].ID != "recent" {
		t.Fatalf("expected only the recent call, got %+v", page)
	}
	if page.Page != 1 || page.PageSize != 50 {
		t.Fatalf("expected default pagination, got page=%d size=%d", page.Page, page.PageSize)
	}
}

func TestListCDR_FiltersAndPagination(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := NewMemoryRepo()
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		repo.Add(mkCall(id, now.Add(-time.Duration(i+1)*time.Hour), func(r *calls.CallRecord) {
			r.Queue = "support"
		}))
	}
	repo.Add(mkCall("other", now.Add(-time.Hour), func(r *calls.CallRecord) {
		r.Queue = "sales"
	}))
	svc := NewService(repo, nil, fixedClock(now))

	page, err := svc.ListCDR(context.Background(), CDRFilter{Queue: "support", Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if page.Total != 5 {
		t.Fatalf("expected 5 matches, got %d", page.Total)
	}
	if len(page.Calls) != 2 {
		t.Fatalf("expected page of 2, got %d", len(page.Calls))
	}
	// Newest first: page 2 of size 2 holds the 3rd and 4th newest.
	if page.Calls[0].ID != "c" || page.Calls[1].ID != "d" {
		t.Fatalf("unexpected page contents: %s, %s", page.Calls[0].ID, page.Calls[1].ID)
	}
}

func TestListCDR_ClampsPageSize(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := NewService(NewMemoryRepo(), nil, fixedClock(now))

	page, err := svc.ListCDR(context.Background(), CDRFilter{PageSize: 10000})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if page.PageSize != 200 {
		t.Fatalf("expected page size clamped to 200, got %d", page.PageSize)
	}

	page, err = svc.ListCDR(context.Background(), CDRFilter{PageSize: -3, Page: -1})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if page.PageSize != 50 || page.Page != 1 {
		t.Fatalf("expected defaults for nonsense pagination, got %+v", page)
	}
}

func TestListCDR_RangeDaysWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := NewMemoryRepo()
	repo.Add(
		mkCall("yesterday", now.Add(-20*time.Hour), nil),
		mkCall("lastweek", now.Add(-5*24*time.Hour), nil),
	)
	svc := NewService(repo, nil, fixedClock(now))

	page, err := svc.ListCDR(context.Background(), CDRFilter{RangeDays: 1})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if page.Total != 1 || page.Calls[0].ID != "yesterday" {
		t.Fatalf("expected range_days=1 to exclude older calls, got %+v", page)
	}
	if !page.From.Equal(now.AddDate(0, 0, -1)) {
		t.Fatalf("expected one-day window echoed, got from=%v", page.From)
	}

	// An explicit from wins over range_days.
	page, err = svc.ListCDR(context.Background(), CDRFilter{From: now.AddDate(0, 0, -6), RangeDays: 1})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("expected explicit from honored, got %+v", page)
	}
}

func TestResolveWindow_ClampsRangeDays(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	from, to, err := ResolveWindow(now, time.Time{}, time.Time{}, 999999)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !to.Equal(now) || !from.Equal(now.AddDate(0, 0, -3650)) {
		t.Fatalf("expected ten-year clamp, got [%v, %v)", from, to)
	}

	from, _, err = ResolveWindow(now, time.Time{}, time.Time{}, -5)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !from.Equal(now.AddDate(0, 0, -7)) {
		t.Fatalf("expected nonsense range_days to fall back to the default, got from=%v", from)
	}
}

func TestListCDR_RejectsInvertedWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := NewService(NewMemoryRepo(), nil, fixedClock(now))

	_, err := svc.ListCDR(context.Background(), CDRFilter{From: now, To: now.Add(-time.Hour)})
	if err == nil {
		t.Fatalf("expected inverted window rejected")
	}
}

func TestListCDR_ClampsOversizedWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := NewMemoryRepo()
	repo.Add(mkCall("ancient", now.AddDate(-20, 0, 0), nil))
	svc := NewService(repo, nil, fixedClock(now))

	page, err := svc.ListCDR(context.Background(), CDRFilter{From: now.AddDate(-20, 0, 0), To: now})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if page.Total != 0 {
		t.Fatalf("expected records beyond the clamp excluded, got %d", page.Total)
	}
	if !page.From.Equal(now.AddDate(0, 0, -3650)) {
		t.Fatalf("expected clamped window echoed, got from=%v", page.From)
	}
}

func TestSummarize_Rollups(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	from := now.Add(-time.Hour)

	dur := func(n int) *int { return &n }
	at := func(offset time.Duration) *time.Time {
		t := from.Add(offset)
		return &t
	}

	repo := NewMemoryRepo()
	repo.Add(
		mkCall("c1", from.Add(5*time.Minute), func(r *calls.CallRecord) {
			r.Queue = "support"
			r.Trunk = "trunk-1"
			r.AgentUserID = "agent-1"
			r.AnsweredAt = at(5*time.Minute + 10*time.Second)
			r.DurationSeconds = dur(120)
		}),
		mkCall("c2", from.Add(10*time.Minute), func(r *calls.CallRecord) {
			r.Queue = "support"
			r.Trunk = "trunk-1"
			r.AgentUserID = "agent-1"
			r.AnsweredAt = at(10*time.Minute + 30*time.Second)
			r.DurationSeconds = dur(60)
			r.HoldSeconds = 15
		}),
		mkCall("c3", from.Add(20*time.Minute), func(r *calls.CallRecord) {
			r.Queue = "sales"
			r.Trunk = "trunk-2"
			r.AgentUserID = "agent-2"
			r.Status = calls.CallStatusFailed
			r.Disposition = "busy"
		}),
		mkCall("c4", from.Add(30*time.Minute), func(r *calls.CallRecord) {
			r.Status = calls.CallStatusAnswered
			r.AnsweredAt = at(30*time.Minute + 20*time.Second)
		}),
	)
	svc := NewService(repo, nil, fixedClock(now))

	sum, err := svc.Summarize(context.Background(), from, now, 0)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if sum.Totals.Total != 4 || sum.Totals.Completed != 2 || sum.Totals.Failed != 1 || sum.Totals.InFlight != 1 {
		t.Fatalf("unexpected totals: %+v", sum.Totals)
	}
	if sum.Totals.AvgWaitSeconds != 20 {
		// (10 + 30 + 20) / 3 answered calls.
		t.Fatalf("expected avg wait 20s, got %v", sum.Totals.AvgWaitSeconds)
	}
	if sum.Totals.AvgDurationSeconds != 90 {
		t.Fatalf("expected avg duration 90s, got %v", sum.Totals.AvgDurationSeconds)
	}

	if len(sum.ByQueue) != 2 || sum.ByQueue[0].Key != "support" || sum.ByQueue[0].Total != 2 {
		t.Fatalf("unexpected queue rollups: %+v", sum.ByQueue)
	}
	if len(sum.ByAgent) != 2 || sum.ByAgent[0].Key != "agent-1" {
		t.Fatalf("unexpected agent rollups: %+v", sum.ByAgent)
	}

	if len(sum.ByTrunk) != 2 {
		t.Fatalf("expected 2 trunk rollups, got %d", len(sum.ByTrunk))
	}
	t1 := sum.ByTrunk[0]
	if t1.Key != "trunk-1" || t1.TotalDurationSeconds != 180 {
		t.Fatalf("unexpected trunk rollup: %+v", t1)
	}
	if t1.UtilizationPct != 5 {
		// 180s of talk over a 3600s window.
		t.Fatalf("expected 5%% utilization, got %v", t1.UtilizationPct)
	}
}

func TestSummarize_EmptyWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := NewService(NewMemoryRepo(), nil, fixedClock(now))

	sum, err := svc.Summarize(context.Background(), now.Add(-time.Hour), now, 0)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if sum.Totals.Total != 0 || len(sum.ByQueue) != 0 || len(sum.ByTrunk) != 0 || len(sum.ByAgent) != 0 {
		t.Fatalf("expected empty summary, got %+v", sum)
	}
}
