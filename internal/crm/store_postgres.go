package crm

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"callcenter-platform/pkg/utils"

	"github.com/google/uuid"
)

// PostgresTaskStore persists tasks in the `call_tasks` table.
//
// Assumed schema:
//   call_tasks(task_id, customer_phone, status, reason, created_at, updated_at)
//   call_task_notes(id, task_id, note, created_at)
//   agents(user_id, phone)
type PostgresTaskStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresTaskStore(db *sql.DB) *PostgresTaskStore {
	return &PostgresTaskStore{db: db, clock: time.Now}
}

func (s *PostgresTaskStore) FindTaskByID(ctx context.Context, id string) (Task, error) {
	const q = `
SELECT task_id, customer_phone, status, reason, created_at, updated_at
FROM call_tasks
WHERE task_id = $1
`
	var t Task
	var reason sql.NullString
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&t.ID, &t.CustomerPhone, &t.Status, &reason, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrTaskNotFound
	}
	if err != nil {
		return Task{}, err
	}
	t.Reason = reason.String
	return t, nil
}

func (s *PostgresTaskStore) AppendNote(ctx context.Context, id, note string) error {
	now := s.clock().UTC()
	return utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE call_tasks SET updated_at = $2 WHERE task_id = $1`, id, now)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrTaskNotFound
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO call_task_notes (id, task_id, note, created_at) VALUES ($1, $2, $3, $4)`,
			uuid.NewString(), id, note, now)
		return err
	})
}

func (s *PostgresTaskStore) SetStatus(ctx context.Context, id string, status TaskStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE call_tasks SET status = $2, updated_at = $3 WHERE task_id = $1`,
		id, status, s.clock().UTC())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (s *PostgresTaskStore) EnsureCallbackTask(ctx context.Context, phone, reason string) (Task, bool, error) {
	now := s.clock().UTC()
	var out Task
	created := false

	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// Serialize concurrent webhooks for the same caller on the existing
		// pending row; two racing inserts are resolved by the partial unique
		// index on (customer_phone, reason) WHERE status = 'pending'.
		const q = `
SELECT task_id, customer_phone, status, reason, created_at, updated_at
FROM call_tasks
WHERE customer_phone = $1 AND reason = $2 AND status = 'pending'
FOR UPDATE
`
		var reasonCol sql.NullString
		err := tx.QueryRowContext(ctx, q, phone, reason).Scan(
			&out.ID, &out.CustomerPhone, &out.Status, &reasonCol, &out.CreatedAt, &out.UpdatedAt,
		)
		if err == nil {
			out.Reason = reasonCol.String
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		out = Task{
			ID:            uuid.NewString(),
			CustomerPhone: phone,
			Status:        TaskStatusPending,
			Reason:        reason,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO call_tasks (task_id, customer_phone, status, reason, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			out.ID, out.CustomerPhone, out.Status, out.Reason, out.CreatedAt, out.UpdatedAt)
		if err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return Task{}, false, err
	}
	return out, created, nil
}

func (s *PostgresTaskStore) AgentPhone(ctx context.Context, userID string) (string, error) {
	var phone sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT phone FROM agents WHERE user_id = $1`, userID).Scan(&phone)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrAgentNotFound
	}
	if err != nil {
		return "", err
	}
	return phone.String, nil
}
