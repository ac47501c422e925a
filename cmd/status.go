package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/edgar-pipeline/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show catalogue row counts",
	Long:  "Displays per-table totals plus processed and errored counts where the table tracks them.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("status"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		counts, err := st.Counts(ctx)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		formatStatus(os.Stdout, counts)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// formatStatus writes a tabular representation of catalogue counts to out.
func formatStatus(out io.Writer, st *store.Status) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TABLE\tTOTAL\tPROCESSED\tERRORED")
	_, _ = fmt.Fprintln(w, "-----\t-----\t---------\t-------")

	row := func(name string, total int64, processed, errored string) {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", name, total, processed, errored)
	}
	n := func(v int64) string { return strconv.FormatInt(v, 10) }

	row("companies", st.Companies, "-", "-")
	row("company info", st.CompanyInfoRows, "-", "-")
	row("filing indices", st.FilingIndices, n(st.IndicesProcessed), "-")
	row("filings", st.Filings, n(st.FilingsProcessed), n(st.FilingsErrored))
	row("documents", st.FilingDocuments, n(st.DocumentsProcessed), "-")
	row("search queries", st.SearchQueries, "-", "-")
	_ = w.Flush()
}
