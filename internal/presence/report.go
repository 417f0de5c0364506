package presence

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// AgentReport is one agent's reconstructed activity over a window. The four
// duration buckets always sum to the window length in whole seconds.
type AgentReport struct {
	AgentID string `json:"agent_id"`

	OnlineSeconds  int64 `json:"online_seconds"`
	OnCallSeconds  int64 `json:"on_call_seconds"`
	BreakSeconds   int64 `json:"break_seconds"`
	OfflineSeconds int64 `json:"offline_seconds"`

	LoginCount  int `json:"login_count"`
	LogoutCount int `json:"logout_count"`
	BreakCount  int `json:"break_count"`
}

// Reconstructor rebuilds per-agent activity reports by replaying the
// presence event log over a window.
type Reconstructor struct {
	events EventLog
}

func NewReconstructor(events EventLog) *Reconstructor {
	return &Reconstructor{events: events}
}

// Report reconstructs activity for [from, to). An empty agentIDs slice
// reports on every agent known to the log. The state at `from` comes from
// the latest event before the window; agents with no prior event start
// offline.
//
// Results are ordered most-active first: descending online+on_call seconds,
// then agent id for a stable order.
func (r *Reconstructor) Report(ctx context.Context, from, to time.Time, agentIDs []string) ([]AgentReport, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: report window must satisfy from < to", ErrValidation)
	}

	if len(agentIDs) == 0 {
		ids, err := r.events.AgentIDs(ctx)
		if err != nil {
			return nil, err
		}
		agentIDs = ids
	}
	if len(agentIDs) == 0 {
		return []AgentReport{}, nil
	}

	baselines, err := r.events.LastBefore(ctx, from, agentIDs)
	if err != nil {
		return nil, err
	}
	events, err := r.events.Range(ctx, from, to, agentIDs)
	if err != nil {
		return nil, err
	}

	byAgent := map[string][]Event{}
	for _, e := range events {
		byAgent[e.AgentID] = append(byAgent[e.AgentID], e)
	}

	reports := make([]AgentReport, 0, len(agentIDs))
	for _, id := range agentIDs {
		baseline := StatusOffline
		if b, ok := baselines[id]; ok {
			baseline = b.Status
		}
		reports = append(reports, replay(id, baseline, byAgent[id], from, to))
	}

	sort.SliceStable(reports, func(i, j int) bool {
		ai := reports[i].OnlineSeconds + reports[i].OnCallSeconds
		aj := reports[j].OnlineSeconds + reports[j].OnCallSeconds
		if ai != aj {
			return ai > aj
		}
		return reports[i].AgentID < reports[j].AgentID
	})
	return reports, nil
}

// replay walks one agent's events through the window. Durations accumulate
// on Unix seconds so the buckets sum exactly to to-from regardless of
// sub-second event timestamps.
func replay(agentID string, baseline Status, events []Event, from, to time.Time) AgentReport {
	rep := AgentReport{AgentID: agentID}

	cursor := from.Unix()
	current := baseline

	for _, e := range events {
		at := e.OccurredAt.Unix()
		if at > cursor {
			rep.add(current, at-cursor)
			cursor = at
		}
		rep.count(current, e.Status)
		current = e.Status
	}
	rep.add(current, to.Unix()-cursor)
	return rep
}

func (r *AgentReport) add(status Status, seconds int64) {
	if seconds <= 0 {
		return
	}
	switch status {
	case StatusOnline:
		r.OnlineSeconds += seconds
	case StatusOnCall:
		r.OnCallSeconds += seconds
	case StatusBreak:
		r.BreakSeconds += seconds
	default:
		r.OfflineSeconds += seconds
	}
}

// count classifies a transition. The login rule is deliberately narrower
// than the others: only offline->online is a login, while any transition to
// offline is a logout and any entry into break is a break.
func (r *AgentReport) count(fromStatus, toStatus Status) {
	if fromStatus == toStatus {
		return
	}
	if fromStatus == StatusOffline && toStatus == StatusOnline {
		r.LoginCount++
	}
	if toStatus == StatusOffline {
		r.LogoutCount++
	}
	if toStatus == StatusBreak {
		r.BreakCount++
	}
}
