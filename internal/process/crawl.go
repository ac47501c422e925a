package process

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-pipeline/internal/tasks"
)

// CrawlOptions scopes one crawl pass.
type CrawlOptions struct {
	// Year, Quarter and Month narrow the index walk; zero values widen it.
	Year    int
	Quarter int
	Month   int

	// FormTypes filters index rows; empty processes every form type.
	FormTypes []string

	// NewOnly skips index files the catalogue already processed, making
	// incremental crawls cheap.
	NewOnly bool

	// DoubleGz handles historical mirrors whose index files were gzipped
	// twice.
	DoubleGz bool

	StoreRaw       bool
	StoreText      bool
	StoreProcessed bool
}

// ProcessAllFilingIndex mirrors the in-scope index files and publishes one
// parse task per file. It returns the number of tasks dispatched; it does
// not wait for them.
func (p *Process) ProcessAllFilingIndex(ctx context.Context, opts CrawlOptions) (int, error) {
	files, err := p.DownloadFilingIndexData(ctx, opts.Year, opts.Quarter, opts.Month)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for _, f := range files {
		if opts.NewOnly && f.Processed {
			zap.L().Info("skipping processed index", zap.String("path", f.Path))
			continue
		}

		_, err := p.queue.Enqueue(ctx, tasks.TaskProcessFilingIndex, tasks.ProcessFilingIndexPayload{
			FilePath:  f.Path,
			FormTypes: opts.FormTypes,
			DoubleGz:  opts.DoubleGz,
			StoreFlags: tasks.StoreFlags{
				StoreRaw:       opts.StoreRaw,
				StoreText:      opts.StoreText,
				StoreProcessed: opts.StoreProcessed,
			},
		})
		if err != nil {
			return dispatched, eris.Wrapf(err, "process: enqueue index %s", f.Path)
		}
		dispatched++
	}

	zap.L().Info("crawl dispatched",
		zap.Int("indices", len(files)),
		zap.Int("tasks", dispatched),
	)
	return dispatched, nil
}
