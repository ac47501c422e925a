// Package queue moves task descriptors between the crawl driver and the
// workers. Two implementations: Memory (buffered channel, single process)
// and Postgres (task table claimed with FOR UPDATE SKIP LOCKED, shared by
// a worker fleet). Publishing never waits for completion; correctness
// relies on task idempotency, not delivery ordering.
package queue

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Task is one unit of queued work. Payload is the handler's JSON argument.
type Task struct {
	ID      uuid.UUID       `json:"id"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

// Queue is the transport between publishers and workers. Dequeue returns
// (nil, nil) when no task is ready; workers poll. A dequeued task must be
// settled with Ack or Fail; Fail re-queues until the attempt budget is
// spent.
type Queue interface {
	Enqueue(ctx context.Context, name string, payload any) (uuid.UUID, error)
	Dequeue(ctx context.Context) (*Task, error)
	Ack(ctx context.Context, task Task) error
	Fail(ctx context.Context, task Task, taskErr error) error
	Close() error
}

// marshalPayload normalises a payload value into raw JSON. A nil payload
// becomes an empty object so the column stays NOT NULL.
func marshalPayload(payload any) (json.RawMessage, error) {
	if payload == nil {
		return json.RawMessage(`{}`), nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "queue: marshal payload")
	}
	return raw, nil
}
