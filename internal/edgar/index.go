package edgar

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// ListIndexByYear returns the form index paths under every quarter of a
// year directory.
func (c *HTTPClient) ListIndexByYear(ctx context.Context, year int) ([]string, error) {
	entries, err := c.ListPath(ctx, c.yearPath(year))
	if err != nil {
		return nil, err
	}

	indexes := []string{}
	for _, entry := range entries {
		if !strings.Contains(entry, "/QTR") {
			continue
		}
		quarterEntries, err := c.ListPath(ctx, entry)
		if err != nil {
			return nil, err
		}
		indexes = appendFormIndexes(indexes, quarterEntries, "/form.")
	}

	zap.L().Info("located form index files",
		zap.Int("year", year),
		zap.Int("count", len(indexes)))
	return indexes, nil
}

// ListIndexByQuarter narrows ListIndexByYear to a single quarter.
func (c *HTTPClient) ListIndexByQuarter(ctx context.Context, year, quarter int) ([]string, error) {
	entries, err := c.ListPath(ctx, c.yearPath(year))
	if err != nil {
		return nil, err
	}

	quarterMatch := "QTR" + strconv.Itoa(quarter)
	indexes := []string{}
	for _, entry := range entries {
		if !strings.Contains(entry, "/QTR") || !strings.Contains(entry, quarterMatch) {
			continue
		}
		quarterEntries, err := c.ListPath(ctx, entry)
		if err != nil {
			return nil, err
		}
		indexes = appendFormIndexes(indexes, quarterEntries, "/form.")
	}
	return indexes, nil
}

// ListIndexByMonth narrows ListIndexByYear to one month's daily indexes,
// which embed a yyyymm stamp in their file names (form.20190102.idx).
func (c *HTTPClient) ListIndexByMonth(ctx context.Context, year, month int) ([]string, error) {
	entries, err := c.ListPath(ctx, c.yearPath(year))
	if err != nil {
		return nil, err
	}

	stamp := fmt.Sprintf("/form.%04d%02d", year, month)
	indexes := []string{}
	for _, entry := range entries {
		if !strings.Contains(entry, "/QTR") {
			continue
		}
		quarterEntries, err := c.ListPath(ctx, entry)
		if err != nil {
			return nil, err
		}
		indexes = appendFormIndexes(indexes, quarterEntries, stamp)
	}
	return indexes, nil
}

// ListIndex walks the index root and expands every child whose final path
// segment is a year within [minYear, maxYear]. Stray form index files at
// the root are kept as-is.
func (c *HTTPClient) ListIndex(ctx context.Context, minYear, maxYear int) ([]string, error) {
	rootEntries, err := c.ListPath(ctx, c.indexPath)
	if err != nil {
		return nil, err
	}

	indexes := []string{}
	for _, entry := range rootEntries {
		segment := lastSegment(entry)
		year, err := strconv.Atoi(segment)
		if err != nil {
			if strings.HasPrefix(segment, "form.") {
				indexes = append(indexes, entry)
			}
			continue
		}
		if year < minYear || year > maxYear {
			zap.L().Info("skipping year outside range", zap.String("path", entry))
			continue
		}

		yearIndexes, err := c.ListIndexByYear(ctx, year)
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, yearIndexes...)
	}

	zap.L().Info("located form index files", zap.Int("count", len(indexes)))
	return indexes, nil
}

func (c *HTTPClient) yearPath(year int) string {
	return strings.TrimSuffix(c.indexPath, "/") + "/" + strconv.Itoa(year) + "/"
}

// appendFormIndexes keeps entries whose lowercase form matches the wanted
// index pattern, collapsing the doubled slash the directory join leaves
// behind.
func appendFormIndexes(dst, entries []string, match string) []string {
	for _, entry := range entries {
		if strings.Contains(strings.ToLower(entry), match) {
			dst = append(dst, strings.ReplaceAll(entry, "//", "/"))
		}
	}
	return dst
}

func lastSegment(path string) string {
	trimmed := strings.Trim(path, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}

// CIKPath returns the canonical object prefix for a company's filings.
func CIKPath(cik int64) string {
	return fmt.Sprintf("edgar/data/%d/", cik)
}
