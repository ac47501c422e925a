package tasks

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-pipeline/internal/filing"
	"github.com/sells-group/edgar-pipeline/internal/model"
	"github.com/sells-group/edgar-pipeline/internal/store"
)

// ProcessFiling parses one already-mirrored filing envelope. The queued
// form of the inline work ProcessFilingIndex does per row; reruns
// short-circuit on the existing filing record.
func (r *Runner) ProcessFiling(ctx context.Context, p ProcessFilingPayload) error {
	buf, err := r.blobs.Get(ctx, p.StorePath, false)
	if err != nil {
		return eris.Wrapf(err, "tasks: read envelope %s", p.StorePath)
	}

	f, err := r.processFiling(ctx, p.StorePath, buf, p.StoreFlags)
	if err != nil {
		return err
	}
	if f == nil {
		// Unparseable envelopes never become parseable; retrying is waste.
		zap.L().Error("envelope abandoned", zap.String("store_path", p.StorePath))
	}
	return nil
}

// processFiling parses an envelope and persists the filing, its company
// records, its documents and their artifacts. A (nil, nil) return means
// the envelope was abandoned: undecodable or missing a CIK. An existing
// filing for the store path short-circuits and is returned as-is.
func (r *Runner) processFiling(ctx context.Context, storePath string, envelope []byte, flags StoreFlags) (*model.Filing, error) {
	log := zap.L().With(
		zap.String("task", TaskProcessFiling),
		zap.String("store_path", storePath),
	)
	log.Info("processing filing")

	existing, err := r.store.GetFilingByStorePath(ctx, storePath)
	if err != nil {
		return nil, eris.Wrapf(err, "tasks: read filing %s", storePath)
	}
	if existing != nil {
		log.Info("filing record exists", zap.Int64("filing_id", existing.ID))
		return existing, nil
	}

	extract := flags.StoreText || flags.StoreProcessed
	data := filing.Parse(ctx, envelope, filing.ParseOptions{
		Extract:   extract && r.extractor != nil,
		Extractor: r.extractor,
	})
	if data.CIK == nil {
		log.Error("no CIK in envelope header, abandoning")
		return nil, nil
	}

	if err := r.recordCompany(ctx, data); err != nil {
		return nil, err
	}

	f := &model.Filing{
		CIK:             *data.CIK,
		FormType:        data.FormType,
		AccessionNumber: data.AccessionNumber,
		DateFiled:       data.DateFiled,
		SHA1:            filing.SHA1(envelope),
		StorePath:       storePath,
		DocumentCount:   data.DocumentCount,
		IsProcessed:     false,
		IsError:         true,
	}
	if err := r.store.CreateFiling(ctx, f); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			// Lost the creation race; the winner's row is the filing.
			log.Info("filing created concurrently")
			return r.store.GetFilingByStorePath(ctx, storePath)
		}
		return nil, eris.Wrapf(err, "tasks: create filing %s", storePath)
	}

	n, err := r.createFilingDocuments(ctx, data.Documents, f.ID, flags)
	if err != nil {
		// The filing stays in its error state for a later repair pass.
		return nil, eris.Wrapf(err, "tasks: create documents for filing %d", f.ID)
	}

	if err := r.store.UpdateFilingStatus(ctx, f.ID, true, false); err != nil {
		return nil, eris.Wrapf(err, "tasks: finish filing %d", f.ID)
	}
	f.IsProcessed = true
	f.IsError = false

	log.Info("filing processed",
		zap.Int64("filing_id", f.ID),
		zap.Int64("cik", f.CIK),
		zap.String("form_type", f.FormType),
		zap.Int64("documents", n),
	)
	return f, nil
}

// recordCompany upserts the company and its point-in-time info snapshot
// from the envelope header. The company row's denormalised name tracks the
// latest observed conformed name.
func (r *Runner) recordCompany(ctx context.Context, data filing.Data) error {
	company, created, err := r.store.GetOrCreateCompany(ctx, *data.CIK, data.CompanyName)
	if err != nil {
		return eris.Wrapf(err, "tasks: company %d", *data.CIK)
	}
	if !created && data.CompanyName != "" && company.LastName != data.CompanyName {
		if err := r.store.UpdateCompanyLastName(ctx, *data.CIK, data.CompanyName); err != nil {
			zap.L().Warn("update company name",
				zap.Int64("cik", *data.CIK), zap.Error(err))
		}
	}

	if _, _, err := r.store.GetOrCreateCompanyInfo(ctx, model.CompanyInfo{
		CIK:                *data.CIK,
		Name:               data.CompanyName,
		SIC:                data.SIC,
		StateLocation:      data.StateLocation,
		StateIncorporation: data.StateIncorporation,
		Date:               data.DateFiled,
	}); err != nil {
		return eris.Wrapf(err, "tasks: company info %d", *data.CIK)
	}
	return nil
}

// createFilingDocuments uploads each document's artifact tiers and bulk
// inserts the document rows. Empty documents (typically uudecode misses)
// are recorded with IsError set so the catalogue still accounts for them.
func (r *Runner) createFilingDocuments(ctx context.Context, docs []filing.Document, filingID int64, flags StoreFlags) (int64, error) {
	records := make([]model.FilingDocument, 0, len(docs))
	for i, doc := range docs {
		if flags.StoreRaw && len(doc.Content) > 0 {
			if err := r.putIfAbsent(ctx, r.documentPath("raw", doc.SHA1), doc.Content); err != nil {
				return 0, err
			}
		}
		if doc.ContentText != nil && *doc.ContentText != "" {
			if flags.StoreText {
				if err := r.putIfAbsent(ctx, r.documentPath("text", doc.SHA1), []byte(*doc.ContentText)); err != nil {
					return 0, err
				}
			}
			if flags.StoreProcessed {
				processed := filing.HTMLToText(*doc.ContentText)
				if err := r.putIfAbsent(ctx, r.documentPath("processed", doc.SHA1), []byte(processed)); err != nil {
					return 0, err
				}
			}
		}

		records = append(records, model.FilingDocument{
			FilingID:    filingID,
			Sequence:    sequenceNumber(doc.Sequence, i),
			Type:        doc.Type,
			FileName:    doc.FileName,
			ContentType: doc.ContentType,
			Description: doc.Description,
			SHA1:        doc.SHA1,
			StartPos:    doc.StartPos,
			EndPos:      doc.EndPos,
			IsProcessed: true,
			IsError:     len(doc.Content) == 0,
		})
	}
	return r.store.CreateFilingDocuments(ctx, records)
}
