package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/edgar-pipeline/internal/queue"
	"github.com/sells-group/edgar-pipeline/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply catalogue and queue schema",
	Long:  "Creates the catalogue tables (companies, filings, documents, search) and, with the Postgres queue configured, the task table.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate: catalogue")
		}

		if cfg.Queue.Driver == "postgres" {
			pg, ok := st.(*store.PostgresStore)
			if !ok {
				return eris.New("queue.driver postgres requires store.driver postgres")
			}
			if err := queue.NewPostgres(pg.Pool(), cfg.Queue.MaxAttempts).Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate: queue")
			}
		}

		fmt.Println("Migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
