package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run queue workers",
	Long: `Polls the Postgres task queue and executes parse, search and
extraction tasks until interrupted. Crashed tasks become visible again
after the lease interval; handlers are idempotent, so re-delivery is safe.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg.Worker.Concurrency = intFlagOr(cmd, "concurrency", cfg.Worker.Concurrency)
		if err := cfg.Validate("worker"); err != nil {
			return err
		}
		if cfg.Queue.Driver != "postgres" {
			return eris.New("worker requires queue.driver postgres; the memory queue has no cross-process tasks")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		blobs, err := openBlob(ctx)
		if err != nil {
			return err
		}
		defer blobs.Close() //nolint:errcheck

		client, err := newEdgarClient()
		if err != nil {
			return err
		}

		q, err := newQueue(st)
		if err != nil {
			return err
		}
		defer q.Close() //nolint:errcheck

		w := newWorker(q)
		newRunner(st, blobs, client).Register(w)

		zap.L().Info("worker started",
			zap.Int("concurrency", cfg.Worker.Concurrency),
			zap.Int("poll_interval_ms", cfg.Queue.PollIntervalMs),
		)

		if err := w.Run(ctx); err != nil {
			return eris.Wrap(err, "worker")
		}

		zap.L().Info("worker stopped")
		return nil
	},
}

func init() {
	workerCmd.Flags().Int("concurrency", 0, "worker goroutines; falls back to worker.concurrency")
	rootCmd.AddCommand(workerCmd)
}
