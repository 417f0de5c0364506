package reporting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"callcenter-platform/internal/calls"
)

// ErrValidation marks bad report input.
var ErrValidation = errors.New("reporting: validation failed")

const (
	defaultRangeDays = 7
	maxRangeDays     = 3650

	defaultPageSize = 50
	maxPageSize     = 200
)

// Service produces CDR listings and aggregate summaries from call history.
type Service struct {
	repo  Repository
	log   *slog.Logger
	clock func() time.Time
}

type ServiceOption func(*Service)

// WithServiceClock sets the time source. Override in tests.
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) { s.clock = fn }
}

func NewService(repo Repository, log *slog.Logger, opts ...ServiceOption) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{repo: repo, log: log, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveWindow applies the report-window defaults and clamps shared by
// the CDR listing, the summary and the presence report: a missing `to` is
// now, a missing `from` is rangeDays before `to` (default 7, clamped to
// [1,3650]), and an explicit `from` never reaches back further than the
// 3650-day ceiling. rangeDays is ignored when `from` is given.
func ResolveWindow(now, from, to time.Time, rangeDays int) (time.Time, time.Time, error) {
	if to.IsZero() {
		to = now
	}
	if from.IsZero() {
		days := rangeDays
		if days < 1 {
			days = defaultRangeDays
		}
		if days > maxRangeDays {
			days = maxRangeDays
		}
		from = to.AddDate(0, 0, -days)
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: report window must satisfy from < to", ErrValidation)
	}
	if limit := to.AddDate(0, 0, -maxRangeDays); from.Before(limit) {
		from = limit
	}
	return from, to, nil
}

// ListCDR returns one page of call records. Missing window bounds default
// to the last seven days; oversized windows and page sizes are clamped, not
// rejected.
func (s *Service) ListCDR(ctx context.Context, f CDRFilter) (CDRPage, error) {
	f, err := s.normalize(f)
	if err != nil {
		return CDRPage{}, err
	}

	records, total, err := s.repo.ListCalls(ctx, f)
	if err != nil {
		return CDRPage{}, err
	}
	return CDRPage{
		Calls:    records,
		Total:    total,
		From:     f.From,
		To:       f.To,
		Page:     f.Page,
		PageSize: f.PageSize,
	}, nil
}

// Summarize aggregates the window into totals plus per-queue, per-trunk and
// per-agent rollups. Calls without a queue, trunk or agent stay out of the
// respective breakdown but still count in the totals.
func (s *Service) Summarize(ctx context.Context, from, to time.Time, rangeDays int) (Summary, error) {
	from, to, err := ResolveWindow(s.clock().UTC(), from, to, rangeDays)
	if err != nil {
		return Summary{}, err
	}

	records, err := s.repo.CallsStartedBetween(ctx, from, to)
	if err != nil {
		return Summary{}, err
	}

	totals := newAccumulator("")
	byQueue := map[string]*accumulator{}
	byTrunk := map[string]*accumulator{}
	byAgent := map[string]*accumulator{}

	for _, rec := range records {
		totals.observe(rec)
		if rec.Queue != "" {
			bucket(byQueue, rec.Queue).observe(rec)
		}
		if rec.Trunk != "" {
			bucket(byTrunk, rec.Trunk).observe(rec)
		}
		if rec.AgentUserID != "" {
			bucket(byAgent, rec.AgentUserID).observe(rec)
		}
	}

	periodSeconds := to.Unix() - from.Unix()
	out := Summary{
		From:    from,
		To:      to,
		Totals:  totals.rollup(),
		ByQueue: finishRollups(byQueue),
		ByAgent: finishRollups(byAgent),
		ByTrunk: finishTrunkRollups(byTrunk, periodSeconds),
	}
	return out, nil
}

func (s *Service) normalize(f CDRFilter) (CDRFilter, error) {
	from, to, err := ResolveWindow(s.clock().UTC(), f.From, f.To, f.RangeDays)
	if err != nil {
		return CDRFilter{}, err
	}
	f.From, f.To = from, to

	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
	return f, nil
}

type accumulator struct {
	key string

	total     int
	completed int
	failed    int
	inFlight  int

	waitSum  float64
	waitN    int
	holdSum  float64
	holdN    int
	durSum   int64
	durN     int
}

func newAccumulator(key string) *accumulator {
	return &accumulator{key: key}
}

func bucket(m map[string]*accumulator, key string) *accumulator {
	acc, ok := m[key]
	if !ok {
		acc = newAccumulator(key)
		m[key] = acc
	}
	return acc
}

func (a *accumulator) observe(rec calls.CallRecord) {
	a.total++
	switch rec.Status {
	case calls.CallStatusCompleted:
		a.completed++
	case calls.CallStatusFailed:
		a.failed++
	default:
		a.inFlight++
	}

	if rec.AnsweredAt != nil {
		a.waitSum += rec.AnsweredAt.Sub(rec.StartedAt).Seconds()
		a.waitN++
	}
	if rec.HoldSeconds > 0 {
		a.holdSum += float64(rec.HoldSeconds)
		a.holdN++
	}
	if rec.DurationSeconds != nil {
		a.durSum += int64(*rec.DurationSeconds)
		a.durN++
	}
}

func (a *accumulator) rollup() Rollup {
	r := Rollup{
		Key:       a.key,
		Total:     a.total,
		Completed: a.completed,
		Failed:    a.failed,
		InFlight:  a.inFlight,
	}
	if a.waitN > 0 {
		r.AvgWaitSeconds = a.waitSum / float64(a.waitN)
	}
	if a.holdN > 0 {
		r.AvgHoldSeconds = a.holdSum / float64(a.holdN)
	}
	if a.durN > 0 {
		r.AvgDurationSeconds = float64(a.durSum) / float64(a.durN)
	}
	return r
}

func finishRollups(m map[string]*accumulator) []Rollup {
	out := make([]Rollup, 0, len(m))
	for _, acc := range m {
		out = append(out, acc.rollup())
	}
	sortRollups(out, func(r Rollup) (int, string) { return r.Total, r.Key })
	return out
}

func finishTrunkRollups(m map[string]*accumulator, periodSeconds int64) []TrunkRollup {
	out := make([]TrunkRollup, 0, len(m))
	for _, acc := range m {
		tr := TrunkRollup{Rollup: acc.rollup(), TotalDurationSeconds: acc.durSum}
		if periodSeconds > 0 {
			tr.UtilizationPct = 100 * float64(acc.durSum) / float64(periodSeconds)
		}
		out = append(out, tr)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func sortRollups(rs []Rollup, key func(Rollup) (int, string)) {
	sort.SliceStable(rs, func(i, j int) bool {
		ti, ki := key(rs[i])
		tj, kj := key(rs[j])
		if ti != tj {
			return ti > tj
		}
		return ki < kj
	})
}
