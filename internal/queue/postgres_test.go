package queue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgresQueue(t *testing.T) (*Postgres, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgres(mock, 3), mock
}

func TestPostgresQueue_Migrate(t *testing.T) {
	q, mock := newMockPostgresQueue(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS tasks`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	assert.NoError(t, q.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueue_Enqueue(t *testing.T) {
	q, mock := newMockPostgresQueue(t)

	payload := map[string]string{"store_path": "edgar/data/100/a.txt"}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO tasks`).
		WithArgs(pgxmock.AnyArg(), "process_filing", json.RawMessage(raw)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := q.Enqueue(context.Background(), "process_filing", payload)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueue_Dequeue_Empty(t *testing.T) {
	q, mock := newMockPostgresQueue(t)

	mock.ExpectQuery(`UPDATE tasks SET status = 'running'`).
		WillReturnError(pgx.ErrNoRows)

	task, err := q.Dequeue(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, task)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueue_Dequeue_Claims(t *testing.T) {
	q, mock := newMockPostgresQueue(t)

	id := uuid.New()
	mock.ExpectQuery(`UPDATE tasks SET status = 'running'`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "payload"}).
			AddRow(id, "search_document", []byte(`{"sha1":"abc"}`)))

	task, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, id, task.ID)
	assert.Equal(t, "search_document", task.Name)
	assert.JSONEq(t, `{"sha1":"abc"}`, string(task.Payload))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueue_AckAndFail(t *testing.T) {
	q, mock := newMockPostgresQueue(t)
	task := Task{ID: uuid.New(), Name: "process_filing"}

	mock.ExpectExec(`UPDATE tasks SET status = 'done'`).
		WithArgs(task.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE tasks SET`).
		WithArgs(task.ID, 3, "boom").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, q.Ack(context.Background(), task))
	require.NoError(t, q.Fail(context.Background(), task, eris.New("boom")))
	assert.NoError(t, mock.ExpectationsWereMet())
}
