package reporting

import (
	"time"

	"callcenter-platform/internal/calls"
)

// CDRFilter selects call records for listing. Zero-valued fields match
// everything; a zero time window defaults to the last seven days.
type CDRFilter struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`

	// RangeDays is an alternative to From: when From is unset the window
	// starts RangeDays before To. Ignored when From is given.
	RangeDays int `json:"range_days,omitempty"`

	AgentUserID string           `json:"agent_user_id,omitempty"`
	Direction   calls.Direction  `json:"direction,omitempty"`
	Status      calls.CallStatus `json:"status,omitempty"`
	Queue       string           `json:"queue,omitempty"`
	Trunk       string           `json:"trunk,omitempty"`
	Disposition string           `json:"disposition,omitempty"`

	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// CDRPage is one page of call records plus the total match count. From/To
// echo the normalized window actually applied (defaults and clamps
// included), so callers can see what their query resolved to.
type CDRPage struct {
	Calls    []calls.CallRecord `json:"calls"`
	Total    int                `json:"total"`
	From     time.Time          `json:"from"`
	To       time.Time          `json:"to"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
}

// Rollup aggregates calls sharing one key (a queue, trunk or agent).
// Averages are computed only over the calls that have the underlying value:
// wait over answered calls, duration over ended ones.
type Rollup struct {
	Key string `json:"key"`

	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	InFlight  int `json:"in_flight"`

	AvgWaitSeconds     float64 `json:"avg_wait_seconds"`
	AvgHoldSeconds     float64 `json:"avg_hold_seconds"`
	AvgDurationSeconds float64 `json:"avg_duration_seconds"`
}

// TrunkRollup extends Rollup with capacity use: total talk time against the
// report window.
type TrunkRollup struct {
	Rollup

	TotalDurationSeconds int64   `json:"total_duration_seconds"`
	UtilizationPct       float64 `json:"utilization_pct"`
}

// Summary is the aggregate report over a window.
type Summary struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`

	Totals  Rollup        `json:"totals"`
	ByQueue []Rollup      `json:"by_queue"`
	ByTrunk []TrunkRollup `json:"by_trunk"`
	ByAgent []Rollup      `json:"by_agent"`
}
