package main

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/edgar-pipeline/internal/hygiene"
)

var hygieneCmd = &cobra.Command{
	Use:   "hygiene",
	Short: "Find and repair poisoned objects in the envelope mirror",
	Long: `EDGAR sometimes answers a fetch with a rate-limit page, an empty body
or an access-denied document, and those responses end up stored where a
filing should be. Each subcommand sweeps for one failure mode, lists the
offending keys and repairs them unless --dry-run is set.`,
}

var hygieneRateLimitedCmd = &cobra.Command{
	Use:   "rate-limited",
	Short: "Replace stored rate-limit pages with the real filing",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHygieneSweep(cmd, func(ctx context.Context, s *hygiene.Sweeper, opts hygiene.Options) ([]string, error) {
			opts.FullScan, _ = cmd.Flags().GetBool("full-scan")
			return s.CleanRateLimited(ctx, opts)
		})
	},
}

var hygieneZeroByteCmd = &cobra.Command{
	Use:   "zero-byte",
	Short: "Refetch objects that were stored with no content",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHygieneSweep(cmd, func(ctx context.Context, s *hygiene.Sweeper, opts hygiene.Options) ([]string, error) {
			return s.CleanEmpty(ctx, opts)
		})
	},
}

var hygieneAccessDeniedCmd = &cobra.Command{
	Use:   "access-denied",
	Short: "Delete stored access-denied documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHygieneSweep(cmd, func(ctx context.Context, s *hygiene.Sweeper, opts hygiene.Options) ([]string, error) {
			return s.CleanAccessDenied(ctx, opts)
		})
	},
}

// runHygieneSweep assembles the sweeper, runs one sweep and prints the
// offending keys.
func runHygieneSweep(
	cmd *cobra.Command,
	sweep func(ctx context.Context, s *hygiene.Sweeper, opts hygiene.Options) ([]string, error),
) error {
	ctx := cmd.Context()

	if err := cfg.Validate("hygiene"); err != nil {
		return err
	}

	cik, _ := cmd.Flags().GetInt64("cik")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	blobs, err := openBlob(ctx)
	if err != nil {
		return err
	}
	defer blobs.Close() //nolint:errcheck

	client, err := newEdgarClient()
	if err != nil {
		return err
	}

	offending, err := sweep(ctx, hygiene.NewSweeper(blobs, client), hygiene.Options{
		CIK: cik,
		Fix: !dryRun,
	})
	if err != nil {
		return eris.Wrap(err, "hygiene")
	}

	for _, key := range offending {
		fmt.Println(key)
	}
	if dryRun {
		fmt.Printf("Found %d offending objects (dry run, nothing repaired)\n", len(offending))
	} else {
		fmt.Printf("Found and repaired %d offending objects\n", len(offending))
	}
	return nil
}

func init() {
	hygieneCmd.PersistentFlags().Int64("cik", 0, "sweep a single company folder instead of the whole mirror")
	hygieneCmd.PersistentFlags().Bool("dry-run", false, "report offending objects without repairing them")
	hygieneRateLimitedCmd.Flags().Bool("full-scan", false, "match page content instead of the size heuristic; reads every object")

	hygieneCmd.AddCommand(hygieneRateLimitedCmd)
	hygieneCmd.AddCommand(hygieneZeroByteCmd)
	hygieneCmd.AddCommand(hygieneAccessDeniedCmd)
	rootCmd.AddCommand(hygieneCmd)
}
