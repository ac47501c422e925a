package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-pipeline/internal/process"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Mirror, parse and catalogue EDGAR filings",
	Long: `Mirrors the in-scope index files and publishes one parse task per
file. With the Postgres queue, tasks run on separate worker processes;
with the memory queue this process works them off before exiting.

Flags fall back to config and to the canonical EDGAR_YEAR, EDGAR_QUARTER,
EDGAR_MONTH and FORM_TYPES environment variables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("crawl"); err != nil {
			return err
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

		proc, err := newProcess(st, blobs, client, q)
		if err != nil {
			return err
		}

		opts := process.CrawlOptions{
			Year:           intFlagOr(cmd, "year", cfg.Crawl.Year),
			Quarter:        intFlagOr(cmd, "quarter", cfg.Crawl.Quarter),
			Month:          intFlagOr(cmd, "month", cfg.Crawl.Month),
			FormTypes:      stringSliceFlagOr(cmd, "forms", cfg.Crawl.FormTypes),
			NewOnly:        boolFlagOr(cmd, "new-only", cfg.Crawl.NewOnly),
			DoubleGz:       boolFlagOr(cmd, "double-gz", cfg.Crawl.DoubleGz),
			StoreRaw:       boolFlagOr(cmd, "store-raw", cfg.Crawl.StoreRaw),
			StoreText:      boolFlagOr(cmd, "store-text", cfg.Crawl.StoreText),
			StoreProcessed: boolFlagOr(cmd, "store-processed", cfg.Crawl.StoreProcessed),
		}

		zap.L().Info("starting crawl",
			zap.Int("year", opts.Year),
			zap.Int("quarter", opts.Quarter),
			zap.Int("month", opts.Month),
			zap.Strings("forms", opts.FormTypes),
			zap.Bool("new_only", opts.NewOnly),
		)

		dispatched, err := proc.ProcessAllFilingIndex(ctx, opts)
		if err != nil {
			return eris.Wrap(err, "crawl")
		}

		runner := newRunner(st, blobs, client)
		if err := drainLocalTasks(ctx, q, runner); err != nil {
			return eris.Wrap(err, "crawl: run tasks")
		}

		fmt.Printf("Crawl dispatched %d index tasks\n", dispatched)
		return nil
	},
}

func init() {
	crawlCmd.Flags().Int("year", 0, "narrow the crawl to one year")
	crawlCmd.Flags().Int("quarter", 0, "narrow the crawl to one quarter (needs --year)")
	crawlCmd.Flags().Int("month", 0, "narrow the crawl to one month (needs --year)")
	crawlCmd.Flags().StringSlice("forms", nil, "form types to process (e.g. 10-K,10-Q); empty processes all")
	crawlCmd.Flags().Bool("new-only", false, "skip index files already parsed")
	crawlCmd.Flags().Bool("double-gz", false, "index files on this mirror were gzipped twice")
	crawlCmd.Flags().Bool("store-raw", true, "store raw document artifacts")
	crawlCmd.Flags().Bool("store-text", true, "store extracted text artifacts")
	crawlCmd.Flags().Bool("store-processed", true, "store searchable plain-text artifacts")
	rootCmd.AddCommand(crawlCmd)
}
