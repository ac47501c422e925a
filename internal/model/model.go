// Package model defines the catalogue entities persisted for the EDGAR corpus.
package model

import "time"

// Company is an SEC registrant, identified by its Central Index Key.
// Rows are immutable except for the denormalised LastName, which tracks
// the most recently observed conformed name.
type Company struct {
	CIK      int64  `json:"cik"`
	LastName string `json:"last_name,omitempty"`
}

// CompanyInfo is a point-in-time snapshot of a company's header metadata,
// keyed by (CIK, Date). Created when first observed on that date; never
// mutated afterwards.
type CompanyInfo struct {
	ID                 int64      `json:"id"`
	CIK                int64      `json:"cik"`
	Name               string     `json:"name"`
	SIC                string     `json:"sic,omitempty"`
	StateLocation      string     `json:"state_location,omitempty"`
	StateIncorporation string     `json:"state_incorporation,omitempty"`
	BusinessAddress    string     `json:"business_address,omitempty"`
	Date               *time.Time `json:"date,omitempty"`
}

// FilingIndex tracks one EDGAR index file, keyed by its canonical EDGAR URL.
// It is mutated only to transition into a terminal processed state.
type FilingIndex struct {
	EdgarURL         string     `json:"edgar_url"`
	DatePublished    *time.Time `json:"date_published,omitempty"`
	DateDownloaded   *time.Time `json:"date_downloaded,omitempty"`
	TotalRecordCount int64      `json:"total_record_count"`
	BadRecordCount   int64      `json:"bad_record_count"`
	IsProcessed      bool       `json:"is_processed"`
	IsError          bool       `json:"is_error"`
}

// Filing is one parsed (or attempted) filing envelope. StorePath is the
// object-store key of the envelope mirror and serves as the idempotency
// key: a Filing exists iff at least one parse attempt has occurred.
type Filing struct {
	ID              int64      `json:"id"`
	CIK             int64      `json:"cik"`
	FormType        string     `json:"form_type,omitempty"`
	AccessionNumber string     `json:"accession_number,omitempty"`
	DateFiled       *time.Time `json:"date_filed,omitempty"`
	SHA1            string     `json:"sha1,omitempty"`
	StorePath       string     `json:"store_path"`
	DocumentCount   *int64     `json:"document_count,omitempty"`
	IsProcessed     bool       `json:"is_processed"`
	IsError         bool       `json:"is_error"`
}

// FilingDocument is one <DOCUMENT> section within a filing envelope.
// (FilingID, Sequence) is unique. StartPos and EndPos are byte offsets
// into the decoded envelope.
type FilingDocument struct {
	ID          int64  `json:"id"`
	FilingID    int64  `json:"filing_id"`
	Sequence    int    `json:"sequence"`
	Type        string `json:"type,omitempty"`
	FileName    string `json:"file_name,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Description string `json:"description,omitempty"`
	SHA1        string `json:"sha1,omitempty"`
	StartPos    int64  `json:"start_pos"`
	EndPos      int64  `json:"end_pos"`
	IsProcessed bool   `json:"is_processed"`
	IsError     bool   `json:"is_error"`
}

// SearchQuery is a stored full-text search request. FormTypes holds the
// semicolon-joined form type scope the query was created with.
type SearchQuery struct {
	ID        int64     `json:"id"`
	FormTypes string    `json:"form_types,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchQueryTerm is one search term owned by a query; (QueryID, Term)
// is unique.
type SearchQueryTerm struct {
	ID      int64  `json:"id"`
	QueryID int64  `json:"query_id"`
	Term    string `json:"term"`
}

// SearchQueryResult records one term's occurrence count within one
// document. Only counts greater than zero are persisted.
type SearchQueryResult struct {
	ID         int64 `json:"id"`
	QueryID    int64 `json:"query_id"`
	DocumentID int64 `json:"document_id"`
	TermID     int64 `json:"term_id"`
	Count      int64 `json:"count"`
}

// SearchExportRow is one row of a search-result export, joining the
// result back through its document, filing, and company snapshot.
type SearchExportRow struct {
	AccessionNumber string     `json:"accession_number"`
	DateFiled       *time.Time `json:"date_filed,omitempty"`
	CIK             int64      `json:"cik"`
	CompanyName     string     `json:"company_name"`
	SIC             string     `json:"sic,omitempty"`
	StateLocation   string     `json:"state_location,omitempty"`
	FormType        string     `json:"form_type,omitempty"`
	Sequence        int        `json:"sequence"`
	Description     string     `json:"description,omitempty"`
	SHA1            string     `json:"sha1"`
	Term            string     `json:"term"`
	Count           int64      `json:"count"`
}
