package queue

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Memory is an in-process queue over a buffered channel. The crawl and
// search drivers use it when no Postgres queue is configured; tasks that
// outlive the process are lost, which is acceptable because every task is
// re-derivable from the catalogue.
type Memory struct {
	mu          sync.Mutex
	tasks       chan Task
	attempts    map[uuid.UUID]int
	maxAttempts int
	closed      bool
}

var _ Queue = (*Memory)(nil)

// NewMemory creates a Memory queue holding up to capacity pending tasks.
func NewMemory(capacity, maxAttempts int) *Memory {
	if capacity <= 0 {
		capacity = 10000
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Memory{
		tasks:       make(chan Task, capacity),
		attempts:    map[uuid.UUID]int{},
		maxAttempts: maxAttempts,
	}
}

func (q *Memory) Enqueue(ctx context.Context, name string, payload any) (uuid.UUID, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return uuid.Nil, err
	}
	task := Task{ID: uuid.New(), Name: name, Payload: raw}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return uuid.Nil, eris.New("queue: closed")
	}
	select {
	case q.tasks <- task:
		return task.ID, nil
	default:
		return uuid.Nil, eris.Errorf("queue: full (capacity %d)", cap(q.tasks))
	}
}

func (q *Memory) Dequeue(ctx context.Context) (*Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The receive and the attempts bump happen under one lock so Idle
	// never observes a task that is neither buffered nor in flight.
	q.mu.Lock()
	defer q.mu.Unlock()
	select {
	case task, ok := <-q.tasks:
		if !ok {
			return nil, eris.New("queue: closed")
		}
		q.attempts[task.ID]++
		return &task, nil
	default:
		return nil, nil
	}
}

func (q *Memory) Ack(ctx context.Context, task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.attempts, task.ID)
	return nil
}

func (q *Memory) Fail(ctx context.Context, task Task, taskErr error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.attempts[task.ID] >= q.maxAttempts {
		delete(q.attempts, task.ID)
		zap.L().Error("task exhausted attempts",
			zap.String("task", task.Name),
			zap.String("id", task.ID.String()),
			zap.Int("attempts", q.maxAttempts),
			zap.Error(taskErr),
		)
		return nil
	}
	if q.closed {
		return eris.New("queue: closed")
	}
	select {
	case q.tasks <- task:
		return nil
	default:
		delete(q.attempts, task.ID)
		return eris.Errorf("queue: full, dropping task %s", task.ID)
	}
}

// Pending reports the number of buffered tasks.
func (q *Memory) Pending() int {
	return len(q.tasks)
}

// Idle reports whether no tasks are buffered or in flight. Drain loops
// poll it once publishing has finished.
func (q *Memory) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks) == 0 && len(q.attempts) == 0
}

func (q *Memory) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	return nil
}
