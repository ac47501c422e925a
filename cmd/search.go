package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/edgar-pipeline/internal/process"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Count terms across stored document text",
	Long: `Creates a search query over the document catalogue and publishes one
counting task per document. Results are per (document, term) occurrence
counts; fetch them with "search export" once the tasks finish.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("search"); err != nil {
			return err
		}

		terms, _ := cmd.Flags().GetStringSlice("terms")
		if len(terms) == 0 {
			return eris.New("search: --terms is required")
		}
		forms, _ := cmd.Flags().GetStringSlice("forms")
		sequence, _ := cmd.Flags().GetInt("sequence")
		limit, _ := cmd.Flags().GetInt("limit")
		caseSensitive, _ := cmd.Flags().GetBool("case-sensitive")
		token, _ := cmd.Flags().GetBool("token")
		stem, _ := cmd.Flags().GetBool("stem")

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

		query, dispatched, err := proc.SearchFilingDocuments(ctx, process.SearchOptions{
			Terms:         terms,
			FormTypes:     forms,
			Sequence:      sequence,
			Limit:         limit,
			CaseSensitive: caseSensitive,
			Token:         token,
			Stem:          stem,
		})
		if err != nil {
			return eris.Wrap(err, "search")
		}

		runner := newRunner(st, blobs, client)
		if err := drainLocalTasks(ctx, q, runner); err != nil {
			return eris.Wrap(err, "search: run tasks")
		}

		fmt.Printf("Search query %d dispatched over %d documents\n", query.ID, dispatched)
		return nil
	},
}

var searchExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a search query's results",
	Long:  "Writes the joined result rows of a finished search query to a file. The extension picks the format: .xlsx for a workbook, anything else CSV.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("search"); err != nil {
			return err
		}

		queryID, _ := cmd.Flags().GetInt64("query-id")
		if queryID <= 0 {
			return eris.New("search export: --query-id is required")
		}
		outPath, _ := cmd.Flags().GetString("out")
		if outPath == "" {
			return eris.New("search export: --out is required")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := process.ExportSearchResults(ctx, st, queryID, outPath)
		if err != nil {
			return eris.Wrap(err, "search export")
		}

		fmt.Printf("Exported %d rows to %s\n", n, outPath)
		return nil
	},
}

func init() {
	searchCmd.Flags().StringSlice("terms", nil, "terms to count (required)")
	searchCmd.Flags().StringSlice("forms", nil, "restrict to form types (e.g. 10-K,10-Q)")
	searchCmd.Flags().Int("sequence", 0, "restrict to one document sequence per filing, usually 1")
	searchCmd.Flags().Int("limit", 0, "cap the number of documents searched")
	searchCmd.Flags().Bool("case-sensitive", false, "match case exactly")
	searchCmd.Flags().Bool("token", false, "count whole-token matches instead of substrings")
	searchCmd.Flags().Bool("stem", false, "count stemmed-token matches")

	searchExportCmd.Flags().Int64("query-id", 0, "search query to export (required)")
	searchExportCmd.Flags().String("out", "", "output path; .xlsx writes a workbook, anything else CSV (required)")

	searchCmd.AddCommand(searchExportCmd)
	rootCmd.AddCommand(searchCmd)
}
