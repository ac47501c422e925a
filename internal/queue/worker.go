package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Handler executes one named task. Handlers must be idempotent: a crashed
// worker leaves its task eligible for re-delivery.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Worker polls a queue and dispatches tasks to registered handlers with
// bounded parallelism.
type Worker struct {
	queue       Queue
	handlers    map[string]Handler
	poll        time.Duration
	concurrency int
}

// WorkerOptions tunes the polling loop. Zero values take the defaults.
type WorkerOptions struct {
	// PollInterval is the sleep between empty dequeues. Default 250ms.
	PollInterval time.Duration
	// Concurrency is the number of polling goroutines. Default 4.
	Concurrency int
}

// NewWorker creates a Worker on q.
func NewWorker(q Queue, opts WorkerOptions) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Worker{
		queue:       q,
		handlers:    map[string]Handler{},
		poll:        opts.PollInterval,
		concurrency: opts.Concurrency,
	}
}

// Register binds a task name to its handler. Not safe to call after Run.
func (w *Worker) Register(name string, h Handler) {
	w.handlers[name] = h
}

// Run polls until ctx is cancelled. Cancellation stops new dequeues;
// in-flight handlers observe ctx themselves. Returns nil on a clean stop.
func (w *Worker) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			return w.loop(gctx)
		})
	}
	return g.Wait()
}

// Drain runs the pool until idle reports true, then stops. Single-process
// drivers publish their tasks first and drain second, so an empty queue
// cannot be observed before the last enqueue.
func (w *Worker) Drain(ctx context.Context, idle func() bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return <-done
		case <-ticker.C:
			if idle() {
				cancel()
				return <-done
			}
		}
	}
}

func (w *Worker) loop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			zap.L().Error("dequeue failed", zap.Error(err))
			if !w.sleep(ctx) {
				return nil
			}
			continue
		}
		if task == nil {
			if !w.sleep(ctx) {
				return nil
			}
			continue
		}

		w.dispatch(ctx, *task)
	}
}

func (w *Worker) dispatch(ctx context.Context, task Task) {
	log := zap.L().With(zap.String("task", task.Name), zap.String("id", task.ID.String()))

	handler, ok := w.handlers[task.Name]
	if !ok {
		err := eris.Errorf("queue: no handler registered for %q", task.Name)
		log.Error("unknown task name")
		if failErr := w.queue.Fail(ctx, task, err); failErr != nil {
			log.Error("fail after unknown task", zap.Error(failErr))
		}
		return
	}

	start := time.Now()
	if err := handler(ctx, task.Payload); err != nil {
		log.Warn("task failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		if failErr := w.queue.Fail(ctx, task, err); failErr != nil {
			log.Error("fail task", zap.Error(failErr))
		}
		return
	}

	log.Debug("task done", zap.Duration("elapsed", time.Since(start)))
	if err := w.queue.Ack(ctx, task); err != nil {
		log.Error("ack task", zap.Error(err))
	}
}

// sleep waits one poll interval; false means ctx ended first.
func (w *Worker) sleep(ctx context.Context) bool {
	timer := time.NewTimer(w.poll)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
