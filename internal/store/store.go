// Package store persists the EDGAR catalogue: companies, their
// point-in-time info snapshots, index files, filings, filing documents and
// full-text search results. Two implementations back the Store interface,
// Postgres for fleet deployments and SQLite for single-node runs and tests.
//
// Every creation path is keyed: Company by CIK, CompanyInfo by
// (company, date), FilingIndex by URL, Filing by store path,
// FilingDocument by (filing, sequence). Concurrent creators race on those
// keys and the loser must end up observing the winner's row, so the
// GetOrCreate operations recover from unique violations by re-reading.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/edgar-pipeline/internal/model"
)

// ErrAlreadyExists reports an insert that lost a race on an idempotency
// key. Callers treat it as "someone else did the work".
var ErrAlreadyExists = eris.New("store: row already exists")

// DocumentFilter scopes ListDocuments. Zero values mean unfiltered.
type DocumentFilter struct {
	// FormTypes restricts to documents of filings with these form types.
	FormTypes []string
	// Sequence restricts to one document per filing, usually 1 (the
	// primary document). Zero or negative selects all sequences.
	Sequence int
	// Limit caps the result set; zero means no cap.
	Limit int
}

// Status is a snapshot of catalogue row counts for the status command.
type Status struct {
	Companies          int64
	CompanyInfoRows    int64
	FilingIndices      int64
	IndicesProcessed   int64
	Filings            int64
	FilingsProcessed   int64
	FilingsErrored     int64
	FilingDocuments    int64
	DocumentsProcessed int64
	SearchQueries      int64
}

// Store defines the persistence interface for the EDGAR catalogue.
type Store interface {
	// Companies
	GetCompany(ctx context.Context, cik int64) (*model.Company, error)
	GetOrCreateCompany(ctx context.Context, cik int64, name string) (*model.Company, bool, error)
	UpdateCompanyLastName(ctx context.Context, cik int64, name string) error
	GetOrCreateCompanyInfo(ctx context.Context, info model.CompanyInfo) (*model.CompanyInfo, bool, error)

	// Filing indices
	GetFilingIndex(ctx context.Context, edgarURL string) (*model.FilingIndex, error)
	UpsertFilingIndex(ctx context.Context, idx model.FilingIndex) error

	// Filings
	CountFilingsByStorePath(ctx context.Context, storePath string) (int64, error)
	GetFilingByStorePath(ctx context.Context, storePath string) (*model.Filing, error)
	CreateFiling(ctx context.Context, f *model.Filing) error
	UpdateFilingStatus(ctx context.Context, id int64, isProcessed, isError bool) error

	// Filing documents
	CreateFilingDocuments(ctx context.Context, docs []model.FilingDocument) (int64, error)
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]model.FilingDocument, error)
	MarkDocumentsProcessedBySHA1(ctx context.Context, sha1 string) (int64, error)

	// Search
	CreateSearchQuery(ctx context.Context, formTypes string) (*model.SearchQuery, error)
	GetOrCreateSearchQueryTerm(ctx context.Context, queryID int64, term string) (*model.SearchQueryTerm, error)
	CreateSearchQueryResults(ctx context.Context, results []model.SearchQueryResult) (int64, error)
	ExportRows(ctx context.Context, queryID int64) ([]model.SearchExportRow, error)

	// Lifecycle
	Counts(ctx context.Context) (*Status, error)
	Migrate(ctx context.Context) error
	Close() error
}
