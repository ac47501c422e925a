package tasks

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-pipeline/internal/edgar"
	"github.com/sells-group/edgar-pipeline/internal/filing"
	"github.com/sells-group/edgar-pipeline/internal/index"
	"github.com/sells-group/edgar-pipeline/internal/model"
	"github.com/sells-group/edgar-pipeline/internal/store"
)

// ProcessFilingIndex parses one mirrored index file and processes every
// row inline. Row-level failures are counted as bad records and never fail
// the task; the index row lands in a terminal processed state with
// bad + successful == total.
func (r *Runner) ProcessFilingIndex(ctx context.Context, p ProcessFilingIndexPayload) error {
	log := zap.L().With(
		zap.String("task", TaskProcessFilingIndex),
		zap.String("path", p.FilePath),
	)
	log.Info("processing filing index")

	buf, err := r.blobs.Get(ctx, p.FilePath, false)
	if err != nil {
		return eris.Wrapf(err, "tasks: read index %s", p.FilePath)
	}

	rows := index.Parse(buf, p.DoubleGz)
	log.Info("parsed index rows", zap.Int("count", len(rows)))

	wanted := formTypeSet(p.FormTypes)

	var badRecords int64
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(wanted) > 0 {
			if _, ok := wanted[strings.ToUpper(strings.TrimSpace(row.FormType))]; !ok {
				continue
			}
		}

		filingPath, ok := canonicalFilingPath(row.FileName)
		if !ok {
			log.Warn("unusable file name in index row",
				zap.String("file_name", row.FileName),
				zap.String("cik", row.CIK),
			)
			badRecords++
			continue
		}

		n, err := r.store.CountFilingsByStorePath(ctx, filingPath)
		if err != nil {
			return eris.Wrapf(err, "tasks: count filings for %s", filingPath)
		}
		switch {
		case n == 1:
			log.Debug("filing record exists", zap.String("filing_path", filingPath))
			continue
		case n > 1:
			// Duplicate keys are a schema-level fault; never repaired here.
			log.Warn("multiple filing records for one store path",
				zap.String("filing_path", filingPath),
				zap.Int64("count", n),
			)
			continue
		}

		envelope, err := r.ensureEnvelope(ctx, filingPath)
		if err != nil && !edgar.IsSentinel(err) {
			return err
		}
		if envelope == nil {
			if err != nil {
				log.Error("filing fetch failed",
					zap.String("filing_path", filingPath), zap.Error(err))
			} else {
				log.Error("filing fetch surrendered",
					zap.String("filing_path", filingPath))
			}
			badRecords++
			r.createFilingError(ctx, row, filingPath)
			continue
		}

		created, err := r.processFiling(ctx, filingPath, envelope, p.StoreFlags)
		if err != nil {
			log.Error("unable to process filing",
				zap.String("filing_path", filingPath), zap.Error(err))
		}
		if created == nil {
			badRecords++
			r.createFilingError(ctx, row, filingPath)
		}
	}

	return r.finishIndex(ctx, p.FilePath, int64(len(rows)), badRecords)
}

// finishIndex records the index file's terminal state under its canonical
// EDGAR URL. The publication date survives upserts; the download date is
// set once, on first completion.
func (r *Runner) finishIndex(ctx context.Context, filePath string, total, bad int64) error {
	edgarURL := strings.ReplaceAll("/Archives/"+filePath, "//", "/")

	idx := model.FilingIndex{
		EdgarURL:         edgarURL,
		TotalRecordCount: total,
		BadRecordCount:   bad,
		IsProcessed:      true,
		IsError:          false,
	}

	existing, err := r.store.GetFilingIndex(ctx, edgarURL)
	if err != nil {
		return eris.Wrapf(err, "tasks: read filing index %s", edgarURL)
	}
	if existing != nil {
		idx.DatePublished = existing.DatePublished
		idx.DateDownloaded = existing.DateDownloaded
	}
	if idx.DateDownloaded == nil {
		today := midnightUTC(time.Now())
		idx.DateDownloaded = &today
	}

	if err := r.store.UpsertFilingIndex(ctx, idx); err != nil {
		return eris.Wrapf(err, "tasks: upsert filing index %s", edgarURL)
	}

	zap.L().Info("filing index processed",
		zap.String("edgar_url", edgarURL),
		zap.Int64("total", total),
		zap.Int64("bad", bad),
	)
	return nil
}

// ensureEnvelope returns the filing envelope at filingPath, fetching and
// mirroring it from EDGAR when the store does not hold it yet. Mirrors are
// verbatim bytes. A (nil, nil) return means the fetch surrendered.
func (r *Runner) ensureEnvelope(ctx context.Context, filingPath string) ([]byte, error) {
	exists, err := r.blobs.Exists(ctx, filingPath)
	if err != nil {
		return nil, eris.Wrapf(err, "tasks: check envelope %s", filingPath)
	}
	if exists {
		buf, err := r.blobs.Get(ctx, filingPath, false)
		if err != nil {
			return nil, eris.Wrapf(err, "tasks: read envelope %s", filingPath)
		}
		return buf, nil
	}

	body, _, err := r.edgar.GetBuffer(ctx, "/Archives/"+filingPath)
	if err != nil || body == nil {
		return nil, err
	}
	if err := r.blobs.Put(ctx, filingPath, body, false); err != nil {
		return nil, eris.Wrapf(err, "tasks: mirror envelope %s", filingPath)
	}
	return body, nil
}

// createFilingError records a failed filing attempt from the index row
// alone, so reruns skip the row instead of refetching a known-bad filing.
// Best effort: recording failures is logged, never propagated.
func (r *Runner) createFilingError(ctx context.Context, row index.Row, filingPath string) {
	log := zap.L().With(zap.String("filing_path", filingPath))

	cik, err := strconv.ParseInt(strings.TrimSpace(row.CIK), 10, 64)
	if err != nil {
		log.Error("cannot record filing error without a CIK", zap.String("cik", row.CIK))
		return
	}
	dateFiled := filing.ParseDate(row.DateFiled)

	if _, _, err := r.store.GetOrCreateCompany(ctx, cik, row.CompanyName); err != nil {
		log.Error("create company for filing error", zap.Error(err))
		return
	}
	if _, _, err := r.store.GetOrCreateCompanyInfo(ctx, model.CompanyInfo{
		CIK:  cik,
		Name: row.CompanyName,
		Date: dateFiled,
	}); err != nil {
		log.Error("create company info for filing error", zap.Error(err))
		return
	}

	f := &model.Filing{
		CIK:       cik,
		FormType:  row.FormType,
		DateFiled: dateFiled,
		StorePath: filingPath,
		IsError:   true,
	}
	if err := r.store.CreateFiling(ctx, f); err != nil && !errors.Is(err, store.ErrAlreadyExists) {
		log.Error("create filing error record", zap.Error(err))
	}
}

// canonicalFilingPath maps an index row's File Name column onto the
// envelope mirror key. Rows pointing outside the Archives tree are bad.
func canonicalFilingPath(fileName string) (string, bool) {
	name := strings.TrimSpace(fileName)
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, "data/"):
		return "edgar/" + name, true
	case strings.HasPrefix(lower, "edgar/"):
		return name, true
	default:
		return "", false
	}
}

func formTypeSet(formTypes []string) map[string]struct{} {
	set := make(map[string]struct{}, len(formTypes))
	for _, ft := range formTypes {
		ft = strings.ToUpper(strings.TrimSpace(ft))
		if ft != "" {
			set[ft] = struct{}{}
		}
	}
	return set
}

func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
