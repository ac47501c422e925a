package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sells-group/edgar-pipeline/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode. The pool is pinned to a single connection: SQLite serialises
// writers anyway, and one connection keeps the session pragmas in force
// and makes in-memory databases usable in tests.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	cik       INTEGER PRIMARY KEY,
	last_name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS company_info (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	company_cik         INTEGER NOT NULL REFERENCES companies(cik) ON DELETE CASCADE,
	name                TEXT NOT NULL DEFAULT '',
	sic                 TEXT NOT NULL DEFAULT '',
	state_location      TEXT NOT NULL DEFAULT '',
	state_incorporation TEXT NOT NULL DEFAULT '',
	business_address    TEXT NOT NULL DEFAULT '',
	date                DATE,
	UNIQUE (company_cik, date)
);

CREATE TABLE IF NOT EXISTS filing_indices (
	edgar_url          TEXT PRIMARY KEY,
	date_published     DATE,
	date_downloaded    DATE,
	total_record_count INTEGER NOT NULL DEFAULT 0,
	bad_record_count   INTEGER NOT NULL DEFAULT 0,
	is_processed       BOOLEAN NOT NULL DEFAULT 0,
	is_error           BOOLEAN NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS filings (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	company_cik      INTEGER NOT NULL REFERENCES companies(cik) ON DELETE CASCADE,
	form_type        TEXT NOT NULL DEFAULT '',
	accession_number TEXT NOT NULL DEFAULT '',
	date_filed       DATE,
	sha1             TEXT NOT NULL DEFAULT '',
	store_path       TEXT NOT NULL UNIQUE,
	document_count   INTEGER,
	is_processed     BOOLEAN NOT NULL DEFAULT 0,
	is_error         BOOLEAN NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS filing_documents (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	filing_id    INTEGER NOT NULL REFERENCES filings(id) ON DELETE CASCADE,
	sequence     INTEGER NOT NULL,
	type         TEXT NOT NULL DEFAULT '',
	file_name    TEXT NOT NULL DEFAULT '',
	content_type TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	sha1         TEXT NOT NULL DEFAULT '',
	start_pos    INTEGER NOT NULL DEFAULT 0,
	end_pos      INTEGER NOT NULL DEFAULT 0,
	is_processed BOOLEAN NOT NULL DEFAULT 0,
	is_error     BOOLEAN NOT NULL DEFAULT 0,
	UNIQUE (filing_id, sequence)
);

CREATE TABLE IF NOT EXISTS search_queries (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	form_types TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS search_query_terms (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	query_id INTEGER NOT NULL REFERENCES search_queries(id) ON DELETE CASCADE,
	term     TEXT NOT NULL,
	UNIQUE (query_id, term)
);

CREATE TABLE IF NOT EXISTS search_query_results (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	query_id    INTEGER NOT NULL REFERENCES search_queries(id) ON DELETE CASCADE,
	document_id INTEGER NOT NULL REFERENCES filing_documents(id) ON DELETE CASCADE,
	term_id     INTEGER NOT NULL REFERENCES search_query_terms(id) ON DELETE CASCADE,
	count       INTEGER NOT NULL DEFAULT 0,
	UNIQUE (query_id, document_id, term_id)
);

CREATE INDEX IF NOT EXISTS idx_company_info_cik ON company_info(company_cik);
CREATE INDEX IF NOT EXISTS idx_filings_company ON filings(company_cik);
CREATE INDEX IF NOT EXISTS idx_filings_form_type ON filings(form_type);
CREATE INDEX IF NOT EXISTS idx_filing_documents_filing ON filing_documents(filing_id);
CREATE INDEX IF NOT EXISTS idx_filing_documents_sha1 ON filing_documents(sha1);
CREATE INDEX IF NOT EXISTS idx_search_results_query ON search_query_results(query_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetCompany(ctx context.Context, cik int64) (*model.Company, error) {
	var c model.Company
	err := s.db.QueryRowContext(ctx,
		`SELECT cik, last_name FROM companies WHERE cik = ?`, cik,
	).Scan(&c.CIK, &c.LastName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get company %d", cik)
	}
	return &c, nil
}

func (s *SQLiteStore) GetOrCreateCompany(ctx context.Context, cik int64, name string) (*model.Company, bool, error) {
	c, err := s.GetCompany(ctx, cik)
	if err != nil {
		return nil, false, err
	}
	if c != nil {
		return c, false, nil
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO companies (cik, last_name) VALUES (?, ?)`, cik, name,
	)
	if err == nil {
		return &model.Company{CIK: cik, LastName: name}, true, nil
	}
	if !isSQLiteUniqueViolation(err) {
		return nil, false, eris.Wrapf(err, "sqlite: insert company %d", cik)
	}

	c, err = s.GetCompany(ctx, cik)
	if err != nil {
		return nil, false, err
	}
	if c == nil {
		return nil, false, eris.Errorf("sqlite: company %d missing after unique violation", cik)
	}
	return c, false, nil
}

func (s *SQLiteStore) UpdateCompanyLastName(ctx context.Context, cik int64, name string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE companies SET last_name = ? WHERE cik = ?`, name, cik,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update company name %d", cik)
	}
	return checkRowsAffected(res, "company", cik)
}

func (s *SQLiteStore) GetOrCreateCompanyInfo(ctx context.Context, info model.CompanyInfo) (*model.CompanyInfo, bool, error) {
	existing, err := s.getCompanyInfo(ctx, info.CIK, info.Date)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	err = s.db.QueryRowContext(ctx,
		`INSERT INTO company_info (company_cik, name, sic, state_location, state_incorporation, business_address, date) VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		info.CIK, info.Name, info.SIC, info.StateLocation, info.StateIncorporation, info.BusinessAddress, info.Date,
	).Scan(&info.ID)
	if err == nil {
		return &info, true, nil
	}
	if !isSQLiteUniqueViolation(err) {
		return nil, false, eris.Wrapf(err, "sqlite: insert company info %d", info.CIK)
	}

	existing, err = s.getCompanyInfo(ctx, info.CIK, info.Date)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, eris.Errorf("sqlite: company info %d missing after unique violation", info.CIK)
	}
	return existing, false, nil
}

func (s *SQLiteStore) getCompanyInfo(ctx context.Context, cik int64, date *time.Time) (*model.CompanyInfo, error) {
	var info model.CompanyInfo
	err := s.db.QueryRowContext(ctx,
		`SELECT id, company_cik, name, sic, state_location, state_incorporation, business_address, date FROM company_info WHERE company_cik = ? AND date IS ?`,
		cik, date,
	).Scan(&info.ID, &info.CIK, &info.Name, &info.SIC, &info.StateLocation, &info.StateIncorporation, &info.BusinessAddress, &info.Date)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get company info %d", cik)
	}
	return &info, nil
}

func (s *SQLiteStore) GetFilingIndex(ctx context.Context, edgarURL string) (*model.FilingIndex, error) {
	var idx model.FilingIndex
	err := s.db.QueryRowContext(ctx,
		`SELECT edgar_url, date_published, date_downloaded, total_record_count, bad_record_count, is_processed, is_error FROM filing_indices WHERE edgar_url = ?`,
		edgarURL,
	).Scan(&idx.EdgarURL, &idx.DatePublished, &idx.DateDownloaded, &idx.TotalRecordCount, &idx.BadRecordCount, &idx.IsProcessed, &idx.IsError)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get filing index %s", edgarURL)
	}
	return &idx, nil
}

func (s *SQLiteStore) UpsertFilingIndex(ctx context.Context, idx model.FilingIndex) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO filing_indices (edgar_url, date_published, date_downloaded, total_record_count, bad_record_count, is_processed, is_error) VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT (edgar_url) DO UPDATE SET date_published = excluded.date_published, date_downloaded = excluded.date_downloaded, total_record_count = excluded.total_record_count, bad_record_count = excluded.bad_record_count, is_processed = excluded.is_processed, is_error = excluded.is_error`,
		idx.EdgarURL, idx.DatePublished, idx.DateDownloaded, idx.TotalRecordCount, idx.BadRecordCount, idx.IsProcessed, idx.IsError,
	)
	return eris.Wrapf(err, "sqlite: upsert filing index %s", idx.EdgarURL)
}

func (s *SQLiteStore) CountFilingsByStorePath(ctx context.Context, storePath string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM filings WHERE store_path = ?`, storePath,
	).Scan(&n)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: count filings %s", storePath)
	}
	return n, nil
}

func (s *SQLiteStore) GetFilingByStorePath(ctx context.Context, storePath string) (*model.Filing, error) {
	var f model.Filing
	err := s.db.QueryRowContext(ctx,
		`SELECT id, company_cik, form_type, accession_number, date_filed, sha1, store_path, document_count, is_processed, is_error FROM filings WHERE store_path = ? ORDER BY id LIMIT 1`,
		storePath,
	).Scan(&f.ID, &f.CIK, &f.FormType, &f.AccessionNumber, &f.DateFiled, &f.SHA1, &f.StorePath, &f.DocumentCount, &f.IsProcessed, &f.IsError)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get filing %s", storePath)
	}
	return &f, nil
}

func (s *SQLiteStore) CreateFiling(ctx context.Context, f *model.Filing) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO filings (company_cik, form_type, accession_number, date_filed, sha1, store_path, document_count, is_processed, is_error) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		f.CIK, f.FormType, f.AccessionNumber, f.DateFiled, f.SHA1, f.StorePath, f.DocumentCount, f.IsProcessed, f.IsError,
	).Scan(&f.ID)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return eris.Wrapf(err, "sqlite: insert filing %s", f.StorePath)
	}
	return nil
}

func (s *SQLiteStore) UpdateFilingStatus(ctx context.Context, id int64, isProcessed, isError bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE filings SET is_processed = ?, is_error = ? WHERE id = ?`,
		isProcessed, isError, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update filing status %d", id)
	}
	return checkRowsAffected(res, "filing", id)
}

func (s *SQLiteStore) CreateFilingDocuments(ctx context.Context, docs []model.FilingDocument) (int64, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO filing_documents (filing_id, sequence, type, file_name, content_type, description, sha1, start_pos, end_pos, is_processed, is_error) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (filing_id, sequence) DO UPDATE SET type = excluded.type, file_name = excluded.file_name, content_type = excluded.content_type, description = excluded.description, sha1 = excluded.sha1, start_pos = excluded.start_pos, end_pos = excluded.end_pos, is_processed = excluded.is_processed, is_error = excluded.is_error`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare document upsert")
	}
	defer stmt.Close()

	for _, d := range docs {
		if _, err := stmt.ExecContext(ctx,
			d.FilingID, d.Sequence, d.Type, d.FileName, d.ContentType,
			d.Description, d.SHA1, d.StartPos, d.EndPos, d.IsProcessed, d.IsError,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert document %d/%d", d.FilingID, d.Sequence)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit documents")
	}
	return int64(len(docs)), nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, filter DocumentFilter) ([]model.FilingDocument, error) {
	query := `SELECT d.id, d.filing_id, d.sequence, d.type, d.file_name, d.content_type, d.description, d.sha1, d.start_pos, d.end_pos, d.is_processed, d.is_error FROM filing_documents d JOIN filings f ON f.id = d.filing_id WHERE 1=1`
	var args []any

	if len(filter.FormTypes) > 0 {
		query += ` AND f.form_type IN (` + placeholders(len(filter.FormTypes)) + `)`
		for _, ft := range filter.FormTypes {
			args = append(args, ft)
		}
	}
	if filter.Sequence > 0 {
		query += ` AND d.sequence = ?`
		args = append(args, filter.Sequence)
	}
	query += ` ORDER BY d.id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list documents")
	}
	defer rows.Close()

	var docs []model.FilingDocument
	for rows.Next() {
		var d model.FilingDocument
		if err := rows.Scan(&d.ID, &d.FilingID, &d.Sequence, &d.Type, &d.FileName, &d.ContentType, &d.Description, &d.SHA1, &d.StartPos, &d.EndPos, &d.IsProcessed, &d.IsError); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan document")
		}
		docs = append(docs, d)
	}
	return docs, eris.Wrap(rows.Err(), "sqlite: list documents iterate")
}

func (s *SQLiteStore) MarkDocumentsProcessedBySHA1(ctx context.Context, sha1 string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE filing_documents SET is_processed = 1, is_error = 0 WHERE sha1 = ?`, sha1,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: mark documents processed %s", sha1)
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) CreateSearchQuery(ctx context.Context, formTypes string) (*model.SearchQuery, error) {
	q := model.SearchQuery{FormTypes: formTypes, CreatedAt: time.Now().UTC()}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO search_queries (form_types, created_at) VALUES (?, ?) RETURNING id`,
		q.FormTypes, q.CreatedAt,
	).Scan(&q.ID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert search query")
	}
	return &q, nil
}

func (s *SQLiteStore) GetOrCreateSearchQueryTerm(ctx context.Context, queryID int64, term string) (*model.SearchQueryTerm, error) {
	t, err := s.getQueryTerm(ctx, queryID, term)
	if err != nil {
		return nil, err
	}
	if t != nil {
		return t, nil
	}

	created := model.SearchQueryTerm{QueryID: queryID, Term: term}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO search_query_terms (query_id, term) VALUES (?, ?) RETURNING id`,
		queryID, term,
	).Scan(&created.ID)
	if err == nil {
		return &created, nil
	}
	if !isSQLiteUniqueViolation(err) {
		return nil, eris.Wrapf(err, "sqlite: insert term %q", term)
	}

	t, err = s.getQueryTerm(ctx, queryID, term)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, eris.Errorf("sqlite: term %q missing after unique violation", term)
	}
	return t, nil
}

func (s *SQLiteStore) getQueryTerm(ctx context.Context, queryID int64, term string) (*model.SearchQueryTerm, error) {
	var t model.SearchQueryTerm
	err := s.db.QueryRowContext(ctx,
		`SELECT id, query_id, term FROM search_query_terms WHERE query_id = ? AND term = ?`,
		queryID, term,
	).Scan(&t.ID, &t.QueryID, &t.Term)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get term %q", term)
	}
	return &t, nil
}

func (s *SQLiteStore) CreateSearchQueryResults(ctx context.Context, results []model.SearchQueryResult) (int64, error) {
	if len(results) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO search_query_results (query_id, document_id, term_id, count) VALUES (?, ?, ?, ?) ON CONFLICT (query_id, document_id, term_id) DO UPDATE SET count = excluded.count`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare result upsert")
	}
	defer stmt.Close()

	for _, r := range results {
		if _, err := stmt.ExecContext(ctx, r.QueryID, r.DocumentID, r.TermID, r.Count); err != nil {
			return 0, eris.Wrap(err, "sqlite: upsert search result")
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit results")
	}
	return int64(len(results)), nil
}

func (s *SQLiteStore) ExportRows(ctx context.Context, queryID int64) ([]model.SearchExportRow, error) {
	rows, err := s.db.QueryContext(ctx, exportRowsSQL, queryID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: export rows for query %d", queryID)
	}
	defer rows.Close()

	var out []model.SearchExportRow
	for rows.Next() {
		var row model.SearchExportRow
		var name, sic, state *string
		if err := rows.Scan(&row.AccessionNumber, &row.DateFiled, &row.CIK, &name, &sic, &state, &row.FormType, &row.Sequence, &row.Description, &row.SHA1, &row.Term, &row.Count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan export row")
		}
		if name != nil {
			row.CompanyName = *name
		}
		if sic != nil {
			row.SIC = *sic
		}
		if state != nil {
			row.StateLocation = *state
		}
		out = append(out, row)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: export rows iterate")
}

func (s *SQLiteStore) Counts(ctx context.Context) (*Status, error) {
	var st Status
	err := s.db.QueryRowContext(ctx, countsSQL).Scan(
		&st.Companies, &st.CompanyInfoRows,
		&st.FilingIndices, &st.IndicesProcessed,
		&st.Filings, &st.FilingsProcessed, &st.FilingsErrored,
		&st.FilingDocuments, &st.DocumentsProcessed,
		&st.SearchQueries,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: counts")
	}
	return &st, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %v", entity, id)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isSQLiteUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT,
		sqlite3.SQLITE_CONSTRAINT_UNIQUE,
		sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
