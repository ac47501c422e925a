// Package index parses EDGAR form index files: fixed-width directories of
// filings served plain, gzipped or, for some early-era artifacts, gzipped
// twice. Parsing is byte-in, record-out and never fails: unrecoverable
// input yields an empty table so an index task can record a zero count and
// finish.
package index

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Row is one filing entry of a form index file. Values are kept verbatim;
// CIK and date parsing happen downstream where a bad row can be counted.
type Row struct {
	FormType    string
	CIK         string
	CompanyName string
	DateFiled   string
	FileName    string
}

// ParseFile parses the index at path, falling back to path + ".gz" when the
// plain name is absent.
func ParseFile(path string, doubleGz bool) []Row {
	if _, err := os.Stat(path); err != nil {
		if _, gzErr := os.Stat(path + ".gz"); gzErr != nil {
			zap.L().Error("index file does not exist", zap.String("path", path))
			return nil
		}
		path += ".gz"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		zap.L().Error("unable to read index file", zap.String("path", path), zap.Error(err))
		return nil
	}
	return Parse(data, doubleGz)
}

// Parse decompresses and parses an index buffer.
func Parse(data []byte, doubleGz bool) []Row {
	text, ok := decodeBuffer(data, doubleGz)
	if !ok {
		return nil
	}
	return parseTable(text)
}

// decodeBuffer peels compression until the buffer is valid UTF-8: gzip
// first, then the bare zlib framing some archives carry, then a second
// gzip pass for the malformed doubly-compressed indices.
func decodeBuffer(data []byte, doubleGz bool) (string, bool) {
	if doubleGz {
		once, err := gunzip(data)
		if err == nil {
			data = once
		}
	}

	switch {
	case isGzip(data):
		if decoded, err := gunzip(data); err == nil {
			data = decoded
		}
	case isZlib(data):
		if decoded, err := inflate(data); err == nil {
			zap.L().Info("zlib header found, inflated index buffer", zap.Int("bytes", len(decoded)))
			data = decoded
		}
	}

	if !utf8.Valid(data) {
		// Doubly-compressed artifact: the first pass exposed another
		// gzip stream.
		if isGzip(data) {
			if decoded, err := gunzip(data); err == nil && utf8.Valid(decoded) {
				zap.L().Warn("double-decompressed index buffer", zap.Int("bytes", len(decoded)))
				return string(decoded), true
			}
		}
		zap.L().Error("unable to decode index buffer",
			zap.ByteString("head", data[:min(len(data), 10)]))
		return "", false
	}
	return string(data), true
}

func isGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

func isZlib(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x78 && (int(data[1])+0x7800)%31 == 0
}

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close() //nolint:errcheck
	return io.ReadAll(r)
}

func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close() //nolint:errcheck
	return io.ReadAll(r)
}

// headerLabels matches column labels, which may carry single interior
// spaces ("Form Type") but are separated by runs of two or more.
var headerLabels = regexp.MustCompile(`[^ ](?:[^ ]| [^ ])*`)

type column struct {
	name       string
	start, end int
}

// parseTable locates the header line, the dash separator under it and the
// first data line, then slices the remainder as fixed-width rows.
func parseTable(text string) []Row {
	// A missing "\nForm Type" leaves the scan at offset zero, which is
	// where the malformed "Form"-headed variants put their header line.
	headerPos := strings.Index(text, "\nForm Type") + 1

	sepPos := indexFrom(text, "-", headerPos+1)
	if sepPos < 0 {
		zap.L().Error("no separator line in index buffer")
		return nil
	}
	dataPos := indexFrom(text, "\n", sepPos+1)
	if dataPos < 0 {
		zap.L().Error("no data lines in index buffer")
		return nil
	}
	headerEnd := indexFrom(text, "\n", headerPos)
	if headerEnd < 0 || headerEnd > sepPos {
		zap.L().Error("malformed header line in index buffer")
		return nil
	}

	headerLine := strings.TrimRight(text[headerPos:headerEnd], "\r")
	separatorLine := strings.TrimRight(text[sepPos:dataPos], "\r")

	cols := inferColumns(headerLine, separatorLine)
	if len(cols) == 0 {
		zap.L().Error("unable to infer index columns", zap.String("header", headerLine))
		return nil
	}

	// Deal with the broken header variant.
	for i := range cols {
		if cols[i].name == "Form" {
			zap.L().Warn("index file has abnormal columns", zap.String("header", headerLine))
			cols[i].name = "Form Type"
		}
	}

	known := map[string]bool{}
	for _, col := range cols {
		known[col.name] = true
	}
	for _, want := range []string{"CIK", "Company Name", "Date Filed", "File Name", "Form Type"} {
		if !known[want] {
			zap.L().Error("unable to identify proper index columns",
				zap.String("missing", want),
				zap.String("header", headerLine))
		}
	}

	rows := []Row{}
	for _, line := range strings.Split(text[dataPos+1:], "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, projectRow(line, cols))
	}
	return rows
}

// inferColumns derives the column spans. A segmented separator (distinct
// dash runs) fixes them directly; EDGAR's usual continuous dash line falls
// back to the header label offsets.
func inferColumns(headerLine, separatorLine string) []column {
	if runs := dashRuns(separatorLine); len(runs) > 1 {
		cols := make([]column, 0, len(runs))
		for i, run := range runs {
			end := run[1]
			if i == len(runs)-1 {
				end = -1
			}
			cols = append(cols, column{
				name:  sliceField(headerLine, run[0], end),
				start: run[0],
				end:   end,
			})
		}
		return cols
	}

	labels := headerLabels.FindAllStringIndex(headerLine, -1)
	cols := make([]column, 0, len(labels))
	for i, loc := range labels {
		end := -1
		if i < len(labels)-1 {
			end = labels[i+1][0]
		}
		cols = append(cols, column{
			name:  headerLine[loc[0]:loc[1]],
			start: loc[0],
			end:   end,
		})
	}
	return cols
}

// dashRuns returns the [start, end) spans of dash runs in the separator.
func dashRuns(line string) [][2]int {
	runs := [][2]int{}
	start := -1
	for i := 0; i < len(line); i++ {
		if line[i] == '-' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			runs = append(runs, [2]int{start, i})
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, [2]int{start, len(line)})
	}
	return runs
}

func projectRow(line string, cols []column) Row {
	var row Row
	for _, col := range cols {
		value := sliceField(line, col.start, col.end)
		switch col.name {
		case "Form Type":
			row.FormType = value
		case "CIK":
			row.CIK = value
		case "Company Name":
			row.CompanyName = value
		case "Date Filed":
			row.DateFiled = value
		case "File Name":
			row.FileName = value
		}
	}
	return row
}

// sliceField clips [start, end) to the line; end < 0 means to end of line.
func sliceField(line string, start, end int) string {
	if start >= len(line) {
		return ""
	}
	if end < 0 || end > len(line) {
		end = len(line)
	}
	return strings.TrimSpace(line[start:end])
}

func indexFrom(s, substr string, from int) int {
	if from < 0 || from >= len(s) {
		return -1
	}
	idx := strings.Index(s[from:], substr)
	if idx < 0 {
		return -1
	}
	return idx + from
}
