package calls

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"callcenter-platform/pkg/utils"
)

// PostgresStore persists call records in the `call_records` table.
//
// Assumed constraints:
//   UNIQUE (external_call_id) WHERE external_call_id <> ''
//
// UpdateByExternalID serializes concurrent webhook writers with a
// SELECT ... FOR UPDATE row lock inside a transaction.
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

const callColumns = `
call_id, provider, external_call_id, task_id, agent_user_id, agent_phone,
customer_phone, direction, status, queue, trunk, disposition,
started_at, answered_at, ended_at, duration_seconds, hold_seconds,
recording_url, metadata, created_at, updated_at`

func (s *PostgresStore) Insert(ctx context.Context, rec CallRecord) error {
	now := s.clock().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	meta, err := marshalMetadata(rec.Metadata)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO call_records (` + callColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`
	_, err = s.db.ExecContext(ctx, q,
		rec.ID, rec.Provider, rec.ExternalCallID, rec.TaskID, rec.AgentUserID, rec.AgentPhone,
		rec.CustomerPhone, rec.Direction, rec.Status, rec.Queue, rec.Trunk, rec.Disposition,
		rec.StartedAt, rec.AnsweredAt, rec.EndedAt, rec.DurationSeconds, rec.HoldSeconds,
		rec.RecordingURL, meta, rec.CreatedAt, rec.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) Update(ctx context.Context, rec CallRecord) error {
	rec.UpdatedAt = s.clock().UTC()
	meta, err := marshalMetadata(rec.Metadata)
	if err != nil {
		return err
	}

	const q = `
UPDATE call_records SET
	provider = $2, external_call_id = $3, task_id = $4, agent_user_id = $5,
	agent_phone = $6, customer_phone = $7, direction = $8, status = $9,
	queue = $10, trunk = $11, disposition = $12, started_at = $13,
	answered_at = $14, ended_at = $15, duration_seconds = $16,
	hold_seconds = $17, recording_url = $18, metadata = $19, updated_at = $20
WHERE call_id = $1`
	res, err := s.db.ExecContext(ctx, q,
		rec.ID, rec.Provider, rec.ExternalCallID, rec.TaskID, rec.AgentUserID,
		rec.AgentPhone, rec.CustomerPhone, rec.Direction, rec.Status,
		rec.Queue, rec.Trunk, rec.Disposition, rec.StartedAt,
		rec.AnsweredAt, rec.EndedAt, rec.DurationSeconds,
		rec.HoldSeconds, rec.RecordingURL, meta, rec.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (CallRecord, error) {
	const q = `SELECT ` + callColumns + ` FROM call_records WHERE call_id = $1`
	rec, err := scanCall(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return CallRecord{}, ErrNotFound
	}
	return rec, err
}

func (s *PostgresStore) GetByExternalID(ctx context.Context, externalCallID string) (CallRecord, bool, error) {
	const q = `SELECT ` + callColumns + ` FROM call_records WHERE external_call_id = $1`
	rec, err := scanCall(s.db.QueryRowContext(ctx, q, externalCallID))
	if errors.Is(err, sql.ErrNoRows) {
		return CallRecord{}, false, nil
	}
	if err != nil {
		return CallRecord{}, false, err
	}
	return rec, true, nil
}

func (s *PostgresStore) FindOrCreateByExternalID(ctx context.Context, externalCallID string, seed CallRecord) (CallRecord, bool, error) {
	var out CallRecord
	created := false

	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const q = `SELECT ` + callColumns + ` FROM call_records WHERE external_call_id = $1 FOR UPDATE`
		rec, err := scanCall(tx.QueryRowContext(ctx, q, externalCallID))
		if err == nil {
			out = rec
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		seed.ExternalCallID = externalCallID
		now := s.clock().UTC()
		if seed.CreatedAt.IsZero() {
			seed.CreatedAt = now
		}
		seed.UpdatedAt = now
		meta, err := marshalMetadata(seed.Metadata)
		if err != nil {
			return err
		}
		const ins = `
INSERT INTO call_records (` + callColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
ON CONFLICT (external_call_id) DO NOTHING`
		res, err := tx.ExecContext(ctx, ins,
			seed.ID, seed.Provider, seed.ExternalCallID, seed.TaskID, seed.AgentUserID, seed.AgentPhone,
			seed.CustomerPhone, seed.Direction, seed.Status, seed.Queue, seed.Trunk, seed.Disposition,
			seed.StartedAt, seed.AnsweredAt, seed.EndedAt, seed.DurationSeconds, seed.HoldSeconds,
			seed.RecordingURL, meta, seed.CreatedAt, seed.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// Lost the race to a concurrent insert; read the winner.
			rec, err := scanCall(tx.QueryRowContext(ctx, q, externalCallID))
			if err != nil {
				return err
			}
			out = rec
			return nil
		}
		out = seed
		created = true
		return nil
	})
	if err != nil {
		return CallRecord{}, false, err
	}
	return out, created, nil
}

func (s *PostgresStore) UpdateByExternalID(ctx context.Context, externalCallID string, fn func(*CallRecord) error) (CallRecord, error) {
	var out CallRecord
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const q = `SELECT ` + callColumns + ` FROM call_records WHERE external_call_id = $1 FOR UPDATE`
		rec, err := scanCall(tx.QueryRowContext(ctx, q, externalCallID))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if err := fn(&rec); err != nil {
			return err
		}
		rec.UpdatedAt = s.clock().UTC()

		meta, err := marshalMetadata(rec.Metadata)
		if err != nil {
			return err
		}
		const upd = `
UPDATE call_records SET
	status = $2, task_id = $3, agent_user_id = $4, agent_phone = $5,
	customer_phone = $6, direction = $7, queue = $8, trunk = $9,
	disposition = $10, answered_at = $11, ended_at = $12,
	duration_seconds = $13, hold_seconds = $14, recording_url = $15,
	metadata = $16, updated_at = $17
WHERE external_call_id = $1`
		_, err = tx.ExecContext(ctx, upd,
			externalCallID, rec.Status, rec.TaskID, rec.AgentUserID, rec.AgentPhone,
			rec.CustomerPhone, rec.Direction, rec.Queue, rec.Trunk,
			rec.Disposition, rec.AnsweredAt, rec.EndedAt,
			rec.DurationSeconds, rec.HoldSeconds, rec.RecordingURL,
			meta, rec.UpdatedAt,
		)
		if err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return CallRecord{}, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (CallRecord, error) {
	var rec CallRecord
	var meta []byte
	err := row.Scan(
		&rec.ID, &rec.Provider, &rec.ExternalCallID, &rec.TaskID, &rec.AgentUserID, &rec.AgentPhone,
		&rec.CustomerPhone, &rec.Direction, &rec.Status, &rec.Queue, &rec.Trunk, &rec.Disposition,
		&rec.StartedAt, &rec.AnsweredAt, &rec.EndedAt, &rec.DurationSeconds, &rec.HoldSeconds,
		&rec.RecordingURL, &meta, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return CallRecord{}, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
			return CallRecord{}, err
		}
	}
	return rec, nil
}

func marshalMetadata(m Metadata) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}
