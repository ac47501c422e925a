// Package process drives the pipeline end to end: seeding the index
// mirror, dispatching parse tasks over the mirrored indices, dispatching
// term searches over the document catalogue, and exporting search results.
// Drivers publish tasks and return; workers own the execution.
package process

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-pipeline/internal/blob"
	"github.com/sells-group/edgar-pipeline/internal/edgar"
	"github.com/sells-group/edgar-pipeline/internal/fetch"
	"github.com/sells-group/edgar-pipeline/internal/queue"
	"github.com/sells-group/edgar-pipeline/internal/store"
)

// Options tunes a Process. Zero values take the defaults.
type Options struct {
	// MinYear and MaxYear bound full-archive index walks.
	// Defaults 1950 and 2050.
	MinYear int
	MaxYear int

	// MirrorURL seeds index files from an EDGAR mirror instead of
	// sec.gov. An ftp:// mirror uses the FTP transport, anything else
	// plain HTTP. Empty means fetch from EDGAR itself.
	MirrorURL string

	// UserAgent identifies HTTP mirror fetches.
	UserAgent string
}

// Process wires the drivers over the catalogue, the object store, EDGAR
// and the task queue.
type Process struct {
	store  store.Store
	blobs  blob.Store
	edgar  edgar.Client
	queue  queue.Queue
	mirror fetch.Fetcher
	opts   Options
}

// New builds a Process. The mirror fetcher is constructed up front so a
// bad mirror URL fails here, not mid-walk.
func New(st store.Store, blobs blob.Store, client edgar.Client, q queue.Queue, opts Options) (*Process, error) {
	if opts.MinYear <= 0 {
		opts.MinYear = 1950
	}
	if opts.MaxYear <= 0 {
		opts.MaxYear = 2050
	}

	p := &Process{store: st, blobs: blobs, edgar: client, queue: q, opts: opts}

	if opts.MirrorURL != "" {
		u, err := url.Parse(opts.MirrorURL)
		if err != nil {
			return nil, eris.Wrapf(err, "process: parse mirror url %s", opts.MirrorURL)
		}
		switch u.Scheme {
		case "ftp":
			p.mirror = fetch.NewFTPFetcher(fetch.FTPOptions{})
		case "http", "https":
			p.mirror = fetch.NewHTTPFetcher(fetch.HTTPOptions{UserAgent: opts.UserAgent})
		default:
			return nil, eris.Errorf("process: unsupported mirror scheme %q", u.Scheme)
		}
	}
	return p, nil
}

// IndexFile describes one index file after a download pass.
type IndexFile struct {
	// Path is the object-store key, e.g. edgar/full-index/2004/QTR1/form.idx.
	Path string
	// Downloaded is true when this pass fetched the file; false when the
	// mirror already held it.
	Downloaded bool
	// Processed is true when the catalogue has a terminal index record
	// for the file.
	Processed bool
}

// DownloadFilingIndexData walks the EDGAR index tree and mirrors every
// form index file into the object store. Year alone narrows the walk to
// one year, year+quarter to one quarter, year+month to one month; zero
// values walk the full archive. Files that cannot be fetched are logged
// and skipped; a later pass picks them up.
func (p *Process) DownloadFilingIndexData(ctx context.Context, year, quarter, month int) ([]IndexFile, error) {
	var (
		paths []string
		err   error
	)
	switch {
	case year > 0 && month > 0:
		paths, err = p.edgar.ListIndexByMonth(ctx, year, month)
	case year > 0 && quarter > 0:
		paths, err = p.edgar.ListIndexByQuarter(ctx, year, quarter)
	case year > 0:
		paths, err = p.edgar.ListIndexByYear(ctx, year)
	default:
		paths, err = p.edgar.ListIndex(ctx, p.opts.MinYear, p.opts.MaxYear)
	}
	if err != nil {
		return nil, eris.Wrap(err, "process: list index files")
	}

	files := make([]IndexFile, 0, len(paths))
	for _, indexPath := range paths {
		if err := ctx.Err(); err != nil {
			return files, err
		}

		key := strings.TrimPrefix(strings.TrimPrefix(indexPath, "/Archives"), "/")

		record, err := p.store.GetFilingIndex(ctx, indexPath)
		if err != nil {
			return files, eris.Wrapf(err, "process: read index record %s", indexPath)
		}
		processed := record != nil && record.IsProcessed

		exists, err := p.blobs.Exists(ctx, key)
		if err != nil {
			return files, eris.Wrapf(err, "process: check index %s", key)
		}
		if exists {
			files = append(files, IndexFile{Path: key, Processed: processed})
			continue
		}

		body, err := p.fetchIndex(ctx, indexPath)
		if err != nil {
			zap.L().Error("index fetch failed",
				zap.String("path", indexPath), zap.Error(err))
			continue
		}
		if body == nil {
			zap.L().Warn("index fetch surrendered", zap.String("path", indexPath))
			continue
		}

		if err := p.blobs.Put(ctx, key, body, false); err != nil {
			return files, eris.Wrapf(err, "process: mirror index %s", key)
		}
		files = append(files, IndexFile{Path: key, Downloaded: true, Processed: processed})
	}

	zap.L().Info("index mirror pass finished",
		zap.Int("located", len(paths)),
		zap.Int("usable", len(files)),
	)
	return files, nil
}

// fetchIndex reads one index file from the configured mirror, or from
// EDGAR when no mirror is set. A (nil, nil) return means the EDGAR fetch
// surrendered.
func (p *Process) fetchIndex(ctx context.Context, indexPath string) ([]byte, error) {
	if p.mirror == nil {
		body, _, err := p.edgar.GetBuffer(ctx, indexPath)
		return body, err
	}

	mirrorURL := strings.TrimRight(p.opts.MirrorURL, "/") + indexPath
	rc, err := p.mirror.Download(ctx, mirrorURL)
	if err != nil {
		return nil, eris.Wrapf(err, "process: mirror fetch %s", mirrorURL)
	}
	defer rc.Close() //nolint:errcheck

	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, eris.Wrapf(err, "process: mirror read %s", mirrorURL)
	}
	return body, nil
}
