package process

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-pipeline/internal/model"
	"github.com/sells-group/edgar-pipeline/internal/store"
)

var exportHeader = []string{
	"accession_number", "date_filed", "cik", "company_name", "sic",
	"state_location", "form_type", "sequence", "description", "sha1",
	"term", "count",
}

// ExportSearchResults writes a query's joined result rows to outPath. The
// extension picks the format: .xlsx writes a workbook, anything else CSV.
// Returns the number of data rows written.
func ExportSearchResults(ctx context.Context, st store.Store, queryID int64, outPath string) (int, error) {
	rows, err := st.ExportRows(ctx, queryID)
	if err != nil {
		return 0, err
	}

	if strings.EqualFold(filepath.Ext(outPath), ".xlsx") {
		err = writeXLSX(outPath, rows)
	} else {
		err = writeCSV(outPath, rows)
	}
	if err != nil {
		return 0, err
	}

	zap.L().Info("exported search results",
		zap.Int64("query_id", queryID),
		zap.Int("rows", len(rows)),
		zap.String("path", outPath),
	)
	return len(rows), nil
}

func exportRecord(row model.SearchExportRow) []string {
	date := ""
	if row.DateFiled != nil {
		date = row.DateFiled.Format("2006-01-02")
	}
	return []string{
		row.AccessionNumber,
		date,
		strconv.FormatInt(row.CIK, 10),
		row.CompanyName,
		row.SIC,
		row.StateLocation,
		row.FormType,
		strconv.Itoa(row.Sequence),
		row.Description,
		row.SHA1,
		row.Term,
		strconv.FormatInt(row.Count, 10),
	}
}

func writeCSV(path string, rows []model.SearchExportRow) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "process: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write(exportHeader); err != nil {
		return eris.Wrap(err, "process: write csv header")
	}
	for _, row := range rows {
		if err := w.Write(exportRecord(row)); err != nil {
			return eris.Wrap(err, "process: write csv row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "process: flush csv")
	}
	return eris.Wrapf(f.Close(), "process: close %s", path)
}

func writeXLSX(path string, rows []model.SearchExportRow) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("results")
	if err != nil {
		return eris.Wrap(err, "process: add worksheet")
	}

	header := sheet.AddRow()
	for _, name := range exportHeader {
		header.AddCell().Value = name
	}
	for _, row := range rows {
		xr := sheet.AddRow()
		for _, value := range exportRecord(row) {
			xr.AddCell().Value = value
		}
	}

	return eris.Wrapf(f.Save(path), "process: save %s", path)
}
