package presence

import (
	"context"
	"database/sql"
	"time"
)

// PostgresEventLog persists presence transitions in the
// `agent_presence_events` table. The table is append-only; reporting replays
// it, so rows are never updated or deleted.
type PostgresEventLog struct {
	db *sql.DB
}

func NewPostgresEventLog(db *sql.DB) *PostgresEventLog {
	return &PostgresEventLog{db: db}
}

const presenceColumns = `id, agent_id, status, source, occurred_at, created_at`

func (l *PostgresEventLog) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO agent_presence_events (` + presenceColumns + `)
VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := l.db.ExecContext(ctx, q,
		e.ID, e.AgentID, e.Status, e.Source, e.OccurredAt, e.CreatedAt,
	)
	return err
}

func (l *PostgresEventLog) Range(ctx context.Context, from, to time.Time, agentIDs []string) ([]Event, error) {
	q := `
SELECT ` + presenceColumns + `
FROM agent_presence_events
WHERE occurred_at >= $1 AND occurred_at < $2`
	args := []any{from, to}
	if len(agentIDs) > 0 {
		q += ` AND agent_id = ANY($3)`
		args = append(args, agentIDs)
	}
	q += ` ORDER BY occurred_at, created_at, id`

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		e, err := scanPresence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LastBefore uses DISTINCT ON to fetch one baseline row per agent in a
// single query instead of one query per agent.
func (l *PostgresEventLog) LastBefore(ctx context.Context, before time.Time, agentIDs []string) (map[string]Event, error) {
	q := `
SELECT DISTINCT ON (agent_id) ` + presenceColumns + `
FROM agent_presence_events
WHERE occurred_at < $1`
	args := []any{before}
	if len(agentIDs) > 0 {
		q += ` AND agent_id = ANY($2)`
		args = append(args, agentIDs)
	}
	q += ` ORDER BY agent_id, occurred_at DESC, created_at DESC, id DESC`

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]Event{}
	for rows.Next() {
		e, err := scanPresence(rows)
		if err != nil {
			return nil, err
		}
		out[e.AgentID] = e
	}
	return out, rows.Err()
}

func (l *PostgresEventLog) AgentIDs(ctx context.Context) ([]string, error) {
	const q = `SELECT DISTINCT agent_id FROM agent_presence_events ORDER BY agent_id`
	rows, err := l.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanPresence(rows *sql.Rows) (Event, error) {
	var e Event
	err := rows.Scan(&e.ID, &e.AgentID, &e.Status, &e.Source, &e.OccurredAt, &e.CreatedAt)
	return e, err
}
