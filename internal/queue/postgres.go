package queue

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/edgar-pipeline/internal/db"
)

// Postgres is a durable queue over a task table. Claims use
// FOR UPDATE SKIP LOCKED so any number of workers can poll the same table
// without serialising on each other.
type Postgres struct {
	pool        db.Pool
	maxAttempts int
}

var _ Queue = (*Postgres)(nil)

// NewPostgres creates a Postgres queue on an existing pool (the catalogue
// store's pool is shared).
func NewPostgres(pool db.Pool, maxAttempts int) *Postgres {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Postgres{pool: pool, maxAttempts: maxAttempts}
}

const postgresQueueMigration = `
CREATE TABLE IF NOT EXISTS tasks (
	id          UUID PRIMARY KEY,
	name        TEXT NOT NULL,
	payload     JSONB NOT NULL DEFAULT '{}',
	status      TEXT NOT NULL DEFAULT 'pending',
	attempts    INTEGER NOT NULL DEFAULT 0,
	last_error  TEXT,
	enqueued_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at  TIMESTAMPTZ,
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_tasks_pending ON tasks (enqueued_at) WHERE status = 'pending';
`

// Migrate applies the task table DDL.
func (q *Postgres) Migrate(ctx context.Context) error {
	_, err := q.pool.Exec(ctx, postgresQueueMigration)
	return eris.Wrap(err, "queue: migrate")
}

func (q *Postgres) Enqueue(ctx context.Context, name string, payload any) (uuid.UUID, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return uuid.Nil, err
	}
	id := uuid.New()
	_, err = q.pool.Exec(ctx,
		`INSERT INTO tasks (id, name, payload) VALUES ($1, $2, $3)`,
		id, name, raw,
	)
	if err != nil {
		return uuid.Nil, eris.Wrapf(err, "queue: enqueue %s", name)
	}
	return id, nil
}

// Dequeue claims the oldest pending task. The claim and the attempt bump
// happen in one statement so a crash between them is impossible.
func (q *Postgres) Dequeue(ctx context.Context) (*Task, error) {
	var task Task
	var payload []byte
	err := q.pool.QueryRow(ctx,
		`UPDATE tasks SET status = 'running', attempts = attempts + 1, started_at = now()
		WHERE id = (
			SELECT id FROM tasks WHERE status = 'pending'
			ORDER BY enqueued_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, name, payload`,
	).Scan(&task.ID, &task.Name, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "queue: dequeue")
	}
	task.Payload = json.RawMessage(payload)
	return &task, nil
}

func (q *Postgres) Ack(ctx context.Context, task Task) error {
	_, err := q.pool.Exec(ctx,
		`UPDATE tasks SET status = 'done', finished_at = now(), last_error = NULL WHERE id = $1`,
		task.ID,
	)
	return eris.Wrapf(err, "queue: ack %s", task.ID)
}

// Fail records the error and either re-queues the task or, when the
// attempt budget is spent, parks it as failed for operator inspection.
func (q *Postgres) Fail(ctx context.Context, task Task, taskErr error) error {
	msg := ""
	if taskErr != nil {
		msg = taskErr.Error()
	}
	_, err := q.pool.Exec(ctx,
		`UPDATE tasks SET
			status = CASE WHEN attempts >= $2 THEN 'failed' ELSE 'pending' END,
			finished_at = CASE WHEN attempts >= $2 THEN now() ELSE NULL END,
			started_at = NULL,
			last_error = $3
		WHERE id = $1`,
		task.ID, q.maxAttempts, msg,
	)
	return eris.Wrapf(err, "queue: fail %s", task.ID)
}

func (q *Postgres) Close() error {
	// The pool belongs to the store; nothing to release here.
	return nil
}
