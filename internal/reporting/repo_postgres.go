package reporting

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"callcenter-platform/internal/calls"
)

// PostgresRepo reads call history from the `call_records` table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const cdrColumns = `
call_id, provider, external_call_id, task_id, agent_user_id, agent_phone,
customer_phone, direction, status, queue, trunk, disposition,
started_at, answered_at, ended_at, duration_seconds, hold_seconds,
recording_url, metadata, created_at, updated_at`

func (r *PostgresRepo) ListCalls(ctx context.Context, f CDRFilter) ([]calls.CallRecord, int, error) {
	where := `WHERE started_at >= $1 AND started_at < $2`
	args := []any{f.From, f.To}

	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		where += fmt.Sprintf(" AND %s = $%d", col, len(args))
	}
	add("agent_user_id", f.AgentUserID)
	add("direction", string(f.Direction))
	add("status", string(f.Status))
	add("queue", f.Queue)
	add("trunk", f.Trunk)
	add("disposition", f.Disposition)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM call_records `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.PageSize, (f.Page-1)*f.PageSize)
	q := fmt.Sprintf(`SELECT %s FROM call_records %s ORDER BY started_at DESC LIMIT $%d OFFSET $%d`,
		cdrColumns, where, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out, err := collectCDRs(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *PostgresRepo) CallsStartedBetween(ctx context.Context, from, to time.Time) ([]calls.CallRecord, error) {
	const q = `
SELECT ` + cdrColumns + `
FROM call_records
WHERE started_at >= $1 AND started_at < $2
ORDER BY started_at`
	rows, err := r.db.QueryContext(ctx, q, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCDRs(rows)
}

func collectCDRs(rows *sql.Rows) ([]calls.CallRecord, error) {
	var out []calls.CallRecord
	for rows.Next() {
		var rec calls.CallRecord
		var meta []byte
		err := rows.Scan(
			&rec.ID, &rec.Provider, &rec.ExternalCallID, &rec.TaskID, &rec.AgentUserID, &rec.AgentPhone,
			&rec.CustomerPhone, &rec.Direction, &rec.Status, &rec.Queue, &rec.Trunk, &rec.Disposition,
			&rec.StartedAt, &rec.AnsweredAt, &rec.EndedAt, &rec.DurationSeconds, &rec.HoldSeconds,
			&rec.RecordingURL, &meta, &rec.CreatedAt, &rec.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
