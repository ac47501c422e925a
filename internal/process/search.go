package process

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-pipeline/internal/model"
	"github.com/sells-group/edgar-pipeline/internal/store"
	"github.com/sells-group/edgar-pipeline/internal/tasks"
)

// SearchOptions scopes one term search over the document catalogue.
type SearchOptions struct {
	// Terms are counted per document. Required.
	Terms []string

	// FormTypes restricts the documents searched; empty searches all.
	FormTypes []string

	// Sequence restricts to one document per filing, usually 1 for the
	// primary document. Zero searches every document.
	Sequence int

	// Limit caps the number of documents searched; zero means no cap.
	Limit int

	CaseSensitive bool
	Token         bool
	Stem          bool
}

// SearchFilingDocuments creates the search query record and publishes one
// search task per in-scope document. Documents whose text never made it to
// the store are skipped. Returns the query and the task count.
func (p *Process) SearchFilingDocuments(ctx context.Context, opts SearchOptions) (*model.SearchQuery, int, error) {
	if len(opts.Terms) == 0 {
		return nil, 0, eris.New("process: search needs at least one term")
	}

	query, err := p.store.CreateSearchQuery(ctx, strings.Join(opts.FormTypes, ";"))
	if err != nil {
		return nil, 0, eris.Wrap(err, "process: create search query")
	}

	// Terms are registered up front so an export lists them even when
	// nothing matched.
	for _, term := range opts.Terms {
		if _, err := p.store.GetOrCreateSearchQueryTerm(ctx, query.ID, term); err != nil {
			return nil, 0, eris.Wrapf(err, "process: register term %q", term)
		}
	}

	docs, err := p.store.ListDocuments(ctx, store.DocumentFilter{
		FormTypes: opts.FormTypes,
		Sequence:  opts.Sequence,
		Limit:     opts.Limit,
	})
	if err != nil {
		return nil, 0, eris.Wrap(err, "process: list documents")
	}

	dispatched := 0
	for _, doc := range docs {
		if doc.SHA1 == "" || doc.IsError {
			continue
		}

		_, err := p.queue.Enqueue(ctx, tasks.TaskSearchDocument, tasks.SearchDocumentPayload{
			SHA1:          doc.SHA1,
			Terms:         opts.Terms,
			QueryID:       query.ID,
			DocumentID:    doc.ID,
			CaseSensitive: opts.CaseSensitive,
			Token:         opts.Token,
			Stem:          opts.Stem,
		})
		if err != nil {
			return query, dispatched, eris.Wrapf(err, "process: enqueue search for document %d", doc.ID)
		}
		dispatched++
	}

	zap.L().Info("search dispatched",
		zap.Int64("query_id", query.ID),
		zap.Int("documents", len(docs)),
		zap.Int("tasks", dispatched),
	)
	return query, dispatched, nil
}
