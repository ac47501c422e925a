package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/edgar-pipeline/internal/blob"
	"github.com/sells-group/edgar-pipeline/internal/edgar"
	"github.com/sells-group/edgar-pipeline/internal/process"
	"github.com/sells-group/edgar-pipeline/internal/queue"
	"github.com/sells-group/edgar-pipeline/internal/resilience"
	"github.com/sells-group/edgar-pipeline/internal/store"
	"github.com/sells-group/edgar-pipeline/internal/tasks"
	"github.com/sells-group/edgar-pipeline/pkg/tika"
)

// openStore connects the configured catalogue backend.
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres", "":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q (want postgres or sqlite)", cfg.Store.Driver)
	}
}

// openBlob connects the configured object-store backend.
func openBlob(ctx context.Context) (blob.Store, error) {
	return blob.Open(ctx, blob.Options{
		ClientType: cfg.Blob.ClientType,
		S3: blob.S3Options{
			Bucket:          cfg.Blob.S3.Bucket,
			Region:          cfg.Blob.S3.Region,
			AccessKeyID:     cfg.Blob.S3.AccessKeyID,
			SecretAccessKey: cfg.Blob.S3.SecretAccessKey,
			Endpoint:        cfg.Blob.S3.Endpoint,
		},
		Azure: blob.AzureOptions{
			ConnectionString: cfg.Blob.Azure.ConnectionString,
			Container:        cfg.Blob.Azure.Container,
		},
		Datalake: blob.DatalakeOptions{
			AccountName:  cfg.Blob.ADL.AccountName,
			FileSystem:   cfg.Blob.ADL.FileSystem,
			TenantID:     cfg.Blob.ADL.TenantID,
			ClientID:     cfg.Blob.ADL.ClientID,
			ClientSecret: cfg.Blob.ADL.ClientSecret,
		},
		Local: blob.LocalOptions{RootDir: cfg.Blob.Local.RootDir},
	})
}

// newEdgarClient builds the paced EDGAR client from config.
func newEdgarClient() (edgar.Client, error) {
	schedule := resilience.FromBackoffSchedule(cfg.EDGAR.BackoffSecs)

	return edgar.NewHTTPClient(edgar.Options{
		BaseURL:           cfg.EDGAR.BaseURL,
		UserAgent:         cfg.EDGAR.UserAgent,
		Sleep:             time.Duration(cfg.EDGAR.SleepSecs * float64(time.Second)),
		Backoffs:          schedule.Backoffs,
		RequestsPerSecond: cfg.EDGAR.RequestsPerSecond,
		Timeout:           time.Duration(cfg.EDGAR.TimeoutSecs) * time.Second,
	})
}

// newQueue builds the configured task queue. The Postgres queue shares the
// catalogue's connection pool.
func newQueue(st store.Store) (queue.Queue, error) {
	switch cfg.Queue.Driver {
	case "postgres":
		pg, ok := st.(*store.PostgresStore)
		if !ok {
			return nil, eris.New("queue.driver postgres requires store.driver postgres")
		}
		return queue.NewPostgres(pg.Pool(), cfg.Queue.MaxAttempts), nil
	case "memory", "":
		return queue.NewMemory(0, cfg.Queue.MaxAttempts), nil
	default:
		return nil, eris.Errorf("unknown queue driver %q (want postgres or memory)", cfg.Queue.Driver)
	}
}

// newTika builds the text-extraction client. Returns nil when no endpoint
// is configured; parses then skip the text tiers.
func newTika() tika.Client {
	if cfg.Tika.Endpoint == "" {
		return nil
	}

	return tika.NewClient(cfg.Tika.Endpoint,
		tika.WithTimeout(time.Duration(cfg.Tika.TimeoutSecs)*time.Second),
		tika.WithRetryConfig(resilience.FromRetryConfig(cfg.Tika.MaxRetries, 0, 0, 0, 0)),
		tika.WithCircuitBreaker(resilience.NewCircuitBreaker(
			resilience.FromCircuitConfig(cfg.Tika.FailureThreshold, cfg.Tika.ResetTimeoutSecs))),
	)
}

// newRunner assembles the task handlers over the shared clients.
func newRunner(st store.Store, blobs blob.Store, client edgar.Client) *tasks.Runner {
	return tasks.NewRunner(st, blobs, client, newTika(), tasks.Options{
		DocumentPrefix: cfg.Blob.DocumentPath,
		Deflate:        cfg.Blob.Deflate,
	})
}

// newProcess assembles the pipeline drivers.
func newProcess(st store.Store, blobs blob.Store, client edgar.Client, q queue.Queue) (*process.Process, error) {
	return process.New(st, blobs, client, q, process.Options{
		MinYear:   cfg.EDGAR.MinYear,
		MirrorURL: cfg.Crawl.MirrorURL,
		UserAgent: cfg.EDGAR.UserAgent,
	})
}

// newWorker builds a worker pool over q with the configured concurrency.
func newWorker(q queue.Queue) *queue.Worker {
	return queue.NewWorker(q, queue.WorkerOptions{
		PollInterval: time.Duration(cfg.Queue.PollIntervalMs) * time.Millisecond,
		Concurrency:  cfg.Worker.Concurrency,
	})
}

// drainLocalTasks processes the published tasks in this process when the
// memory queue is configured. Fleet deployments use the Postgres queue and
// leave execution to the worker command.
func drainLocalTasks(ctx context.Context, q queue.Queue, runner *tasks.Runner) error {
	mem, ok := q.(*queue.Memory)
	if !ok {
		return nil
	}

	w := newWorker(q)
	runner.Register(w)
	return w.Drain(ctx, mem.Idle)
}
