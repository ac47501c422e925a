package tasks

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-pipeline/internal/filing"
)

// ExtractDocumentData backfills the text and processed tiers for one raw
// artifact, then marks every document row sharing the hash as processed.
// Crawls that ran with extraction disabled use this to add text later
// without re-parsing envelopes.
func (r *Runner) ExtractDocumentData(ctx context.Context, p ExtractDocumentPayload) error {
	log := zap.L().With(
		zap.String("task", TaskExtractDocumentData),
		zap.String("sha1", p.SHA1),
	)

	if r.extractor == nil {
		return eris.New("tasks: no text extractor configured")
	}

	raw, err := r.blobs.Get(ctx, r.documentPath("raw", p.SHA1), r.opts.Deflate)
	if err != nil {
		return eris.Wrapf(err, "tasks: read raw artifact %s", p.SHA1)
	}

	text, err := r.extractor.Extract(ctx, raw)
	if err != nil {
		return eris.Wrapf(err, "tasks: extract %s", p.SHA1)
	}
	if text == "" {
		log.Info("document yielded no text")
	} else {
		if err := r.putIfAbsent(ctx, r.documentPath("text", p.SHA1), []byte(text)); err != nil {
			return err
		}
		if err := r.putIfAbsent(ctx, r.documentPath("processed", p.SHA1), []byte(filing.HTMLToText(text))); err != nil {
			return err
		}
	}

	n, err := r.store.MarkDocumentsProcessedBySHA1(ctx, p.SHA1)
	if err != nil {
		return eris.Wrapf(err, "tasks: mark documents for %s", p.SHA1)
	}

	log.Info("document text backfilled",
		zap.Int64("documents", n),
		zap.Int("bytes", len(text)),
	)
	return nil
}
