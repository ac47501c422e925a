package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/edgar-pipeline/internal/db"
	"github.com/sells-group/edgar-pipeline/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

var _ Store = (*PostgresStore)(nil)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	sqlGetCompany = `SELECT cik, last_name FROM companies WHERE cik = $1`

	sqlGetFilingByPath = `SELECT id, company_cik, form_type, accession_number, date_filed, sha1, store_path, document_count, is_processed, is_error FROM filings WHERE store_path = $1 ORDER BY id LIMIT 1`

	sqlCountFilingsByPath = `SELECT count(*) FROM filings WHERE store_path = $1`

	sqlInsertFiling = `INSERT INTO filings (company_cik, form_type, accession_number, date_filed, sha1, store_path, document_count, is_processed, is_error) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`

	sqlUpdateFilingStatus = `UPDATE filings SET is_processed = $1, is_error = $2 WHERE id = $3`

	sqlGetQueryTerm = `SELECT id, query_id, term FROM search_query_terms WHERE query_id = $1 AND term = $2`
)

// preparedStatements lists the queries the filing tasks hammer. Each new
// connection prepares them keyed by their own text, so the plain Query
// calls hit the prepared plan without naming it.
var preparedStatements = map[string]string{
	"get_company":           sqlGetCompany,
	"get_filing_by_path":    sqlGetFilingByPath,
	"count_filings_by_path": sqlCountFilingsByPath,
	"insert_filing":         sqlInsertFiling,
	"update_filing_status":  sqlUpdateFilingStatus,
	"get_query_term":        sqlGetQueryTerm,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, sql, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access (the Postgres task queue shares it).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	cik       BIGINT PRIMARY KEY,
	last_name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS company_info (
	id                  BIGSERIAL PRIMARY KEY,
	company_cik         BIGINT NOT NULL REFERENCES companies(cik) ON DELETE CASCADE,
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
	total_record_count BIGINT NOT NULL DEFAULT 0,
	bad_record_count   BIGINT NOT NULL DEFAULT 0,
	is_processed       BOOLEAN NOT NULL DEFAULT FALSE,
	is_error           BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS filings (
	id               BIGSERIAL PRIMARY KEY,
	company_cik      BIGINT NOT NULL REFERENCES companies(cik) ON DELETE CASCADE,
	form_type        TEXT NOT NULL DEFAULT '',
	accession_number TEXT NOT NULL DEFAULT '',
	date_filed       DATE,
	sha1             TEXT NOT NULL DEFAULT '',
	store_path       TEXT NOT NULL UNIQUE,
	document_count   BIGINT,
	is_processed     BOOLEAN NOT NULL DEFAULT FALSE,
	is_error         BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS filing_documents (
	id           BIGSERIAL PRIMARY KEY,
	filing_id    BIGINT NOT NULL REFERENCES filings(id) ON DELETE CASCADE,
	sequence     INTEGER NOT NULL,
	type         TEXT NOT NULL DEFAULT '',
	file_name    TEXT NOT NULL DEFAULT '',
	content_type TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	sha1         TEXT NOT NULL DEFAULT '',
	start_pos    BIGINT NOT NULL DEFAULT 0,
	end_pos      BIGINT NOT NULL DEFAULT 0,
	is_processed BOOLEAN NOT NULL DEFAULT FALSE,
	is_error     BOOLEAN NOT NULL DEFAULT FALSE,
	UNIQUE (filing_id, sequence)
);

CREATE TABLE IF NOT EXISTS search_queries (
	id         BIGSERIAL PRIMARY KEY,
	form_types TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS search_query_terms (
	id       BIGSERIAL PRIMARY KEY,
	query_id BIGINT NOT NULL REFERENCES search_queries(id) ON DELETE CASCADE,
	term     TEXT NOT NULL,
	UNIQUE (query_id, term)
);

CREATE TABLE IF NOT EXISTS search_query_results (
	id          BIGSERIAL PRIMARY KEY,
	query_id    BIGINT NOT NULL REFERENCES search_queries(id) ON DELETE CASCADE,
	document_id BIGINT NOT NULL REFERENCES filing_documents(id) ON DELETE CASCADE,
	term_id     BIGINT NOT NULL REFERENCES search_query_terms(id) ON DELETE CASCADE,
	count       BIGINT NOT NULL DEFAULT 0,
	UNIQUE (query_id, document_id, term_id)
);

CREATE INDEX IF NOT EXISTS idx_company_info_cik ON company_info(company_cik);
CREATE INDEX IF NOT EXISTS idx_filings_company ON filings(company_cik);
CREATE INDEX IF NOT EXISTS idx_filings_form_type ON filings(form_type);
CREATE INDEX IF NOT EXISTS idx_filings_date_filed ON filings(date_filed);
CREATE INDEX IF NOT EXISTS idx_filing_documents_filing ON filing_documents(filing_id);
CREATE INDEX IF NOT EXISTS idx_filing_documents_sha1 ON filing_documents(sha1);
CREATE INDEX IF NOT EXISTS idx_search_results_query ON search_query_results(query_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetCompany(ctx context.Context, cik int64) (*model.Company, error) {
	var c model.Company
	err := s.pool.QueryRow(ctx, sqlGetCompany, cik).Scan(&c.CIK, &c.LastName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get company %d", cik)
	}
	return &c, nil
}

func (s *PostgresStore) GetOrCreateCompany(ctx context.Context, cik int64, name string) (*model.Company, bool, error) {
	c, err := s.GetCompany(ctx, cik)
	if err != nil {
		return nil, false, err
	}
	if c != nil {
		return c, false, nil
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO companies (cik, last_name) VALUES ($1, $2)`,
		cik, name,
	)
	if err == nil {
		return &model.Company{CIK: cik, LastName: name}, true, nil
	}
	if !isPgUniqueViolation(err) {
		return nil, false, eris.Wrapf(err, "postgres: insert company %d", cik)
	}

	// Lost the race; the winner's row must be observable now.
	c, err = s.GetCompany(ctx, cik)
	if err != nil {
		return nil, false, err
	}
	if c == nil {
		return nil, false, eris.Errorf("postgres: company %d missing after unique violation", cik)
	}
	return c, false, nil
}

func (s *PostgresStore) UpdateCompanyLastName(ctx context.Context, cik int64, name string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE companies SET last_name = $1 WHERE cik = $2`,
		name, cik,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update company name %d", cik)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("company not found: %d", cik)
	}
	return nil
}

func (s *PostgresStore) GetOrCreateCompanyInfo(ctx context.Context, info model.CompanyInfo) (*model.CompanyInfo, bool, error) {
	existing, err := s.getCompanyInfo(ctx, info.CIK, info.Date)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO company_info (company_cik, name, sic, state_location, state_incorporation, business_address, date) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		info.CIK, info.Name, info.SIC, info.StateLocation, info.StateIncorporation, info.BusinessAddress, info.Date,
	).Scan(&info.ID)
	if err == nil {
		return &info, true, nil
	}
	if !isPgUniqueViolation(err) {
		return nil, false, eris.Wrapf(err, "postgres: insert company info %d", info.CIK)
	}

	existing, err = s.getCompanyInfo(ctx, info.CIK, info.Date)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, eris.Errorf("postgres: company info %d missing after unique violation", info.CIK)
	}
	return existing, false, nil
}

func (s *PostgresStore) getCompanyInfo(ctx context.Context, cik int64, date *time.Time) (*model.CompanyInfo, error) {
	var info model.CompanyInfo
	err := s.pool.QueryRow(ctx,
		`SELECT id, company_cik, name, sic, state_location, state_incorporation, business_address, date FROM company_info WHERE company_cik = $1 AND date IS NOT DISTINCT FROM $2::date`,
		cik, date,
	).Scan(&info.ID, &info.CIK, &info.Name, &info.SIC, &info.StateLocation, &info.StateIncorporation, &info.BusinessAddress, &info.Date)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get company info %d", cik)
	}
	return &info, nil
}

func (s *PostgresStore) GetFilingIndex(ctx context.Context, edgarURL string) (*model.FilingIndex, error) {
	var idx model.FilingIndex
	err := s.pool.QueryRow(ctx,
		`SELECT edgar_url, date_published, date_downloaded, total_record_count, bad_record_count, is_processed, is_error FROM filing_indices WHERE edgar_url = $1`,
		edgarURL,
	).Scan(&idx.EdgarURL, &idx.DatePublished, &idx.DateDownloaded, &idx.TotalRecordCount, &idx.BadRecordCount, &idx.IsProcessed, &idx.IsError)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get filing index %s", edgarURL)
	}
	return &idx, nil
}

func (s *PostgresStore) UpsertFilingIndex(ctx context.Context, idx model.FilingIndex) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO filing_indices (edgar_url, date_published, date_downloaded, total_record_count, bad_record_count, is_processed, is_error) VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (edgar_url) DO UPDATE SET date_published = EXCLUDED.date_published, date_downloaded = EXCLUDED.date_downloaded, total_record_count = EXCLUDED.total_record_count, bad_record_count = EXCLUDED.bad_record_count, is_processed = EXCLUDED.is_processed, is_error = EXCLUDED.is_error`,
		idx.EdgarURL, idx.DatePublished, idx.DateDownloaded, idx.TotalRecordCount, idx.BadRecordCount, idx.IsProcessed, idx.IsError,
	)
	return eris.Wrapf(err, "postgres: upsert filing index %s", idx.EdgarURL)
}

func (s *PostgresStore) CountFilingsByStorePath(ctx context.Context, storePath string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, sqlCountFilingsByPath, storePath).Scan(&n)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: count filings %s", storePath)
	}
	return n, nil
}

func (s *PostgresStore) GetFilingByStorePath(ctx context.Context, storePath string) (*model.Filing, error) {
	f, err := scanFiling(s.pool.QueryRow(ctx, sqlGetFilingByPath, storePath))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get filing %s", storePath)
	}
	return f, nil
}

func scanFiling(row pgx.Row) (*model.Filing, error) {
	var f model.Filing
	err := row.Scan(&f.ID, &f.CIK, &f.FormType, &f.AccessionNumber, &f.DateFiled, &f.SHA1, &f.StorePath, &f.DocumentCount, &f.IsProcessed, &f.IsError)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *PostgresStore) CreateFiling(ctx context.Context, f *model.Filing) error {
	err := s.pool.QueryRow(ctx, sqlInsertFiling,
		f.CIK, f.FormType, f.AccessionNumber, f.DateFiled, f.SHA1, f.StorePath, f.DocumentCount, f.IsProcessed, f.IsError,
	).Scan(&f.ID)
	if err != nil {
		if isPgUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return eris.Wrapf(err, "postgres: insert filing %s", f.StorePath)
	}
	return nil
}

func (s *PostgresStore) UpdateFilingStatus(ctx context.Context, id int64, isProcessed, isError bool) error {
	tag, err := s.pool.Exec(ctx, sqlUpdateFilingStatus, isProcessed, isError, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: update filing status %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("filing not found: %d", id)
	}
	return nil
}

var filingDocumentColumns = []string{
	"filing_id", "sequence", "type", "file_name", "content_type",
	"description", "sha1", "start_pos", "end_pos", "is_processed", "is_error",
}

func (s *PostgresStore) CreateFilingDocuments(ctx context.Context, docs []model.FilingDocument) (int64, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(docs))
	for _, d := range docs {
		rows = append(rows, []any{
			d.FilingID, d.Sequence, d.Type, d.FileName, d.ContentType,
			d.Description, d.SHA1, d.StartPos, d.EndPos, d.IsProcessed, d.IsError,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "filing_documents",
		Columns:      filingDocumentColumns,
		ConflictKeys: []string{"filing_id", "sequence"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert filing documents")
	}
	return n, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, filter DocumentFilter) ([]model.FilingDocument, error) {
	query := `SELECT d.id, d.filing_id, d.sequence, d.type, d.file_name, d.content_type, d.description, d.sha1, d.start_pos, d.end_pos, d.is_processed, d.is_error FROM filing_documents d JOIN filings f ON f.id = d.filing_id WHERE true`
	args := []any{}
	argIdx := 1

	if len(filter.FormTypes) > 0 {
		query += fmt.Sprintf(` AND f.form_type = ANY($%d)`, argIdx)
		args = append(args, filter.FormTypes)
		argIdx++
	}
	if filter.Sequence > 0 {
		query += fmt.Sprintf(` AND d.sequence = $%d`, argIdx)
		args = append(args, filter.Sequence)
		argIdx++
	}
	query += ` ORDER BY d.id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list documents")
	}
	defer rows.Close()

	var docs []model.FilingDocument
	for rows.Next() {
		var d model.FilingDocument
		if err := rows.Scan(&d.ID, &d.FilingID, &d.Sequence, &d.Type, &d.FileName, &d.ContentType, &d.Description, &d.SHA1, &d.StartPos, &d.EndPos, &d.IsProcessed, &d.IsError); err != nil {
			return nil, eris.Wrap(err, "postgres: scan document")
		}
		docs = append(docs, d)
	}
	return docs, eris.Wrap(rows.Err(), "postgres: list documents iterate")
}

func (s *PostgresStore) MarkDocumentsProcessedBySHA1(ctx context.Context, sha1 string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE filing_documents SET is_processed = TRUE, is_error = FALSE WHERE sha1 = $1`,
		sha1,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: mark documents processed %s", sha1)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) CreateSearchQuery(ctx context.Context, formTypes string) (*model.SearchQuery, error) {
	q := model.SearchQuery{FormTypes: formTypes, CreatedAt: time.Now().UTC()}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO search_queries (form_types, created_at) VALUES ($1, $2) RETURNING id`,
		q.FormTypes, q.CreatedAt,
	).Scan(&q.ID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert search query")
	}
	return &q, nil
}

func (s *PostgresStore) GetOrCreateSearchQueryTerm(ctx context.Context, queryID int64, term string) (*model.SearchQueryTerm, error) {
	t, err := s.getQueryTerm(ctx, queryID, term)
	if err != nil {
		return nil, err
	}
	if t != nil {
		return t, nil
	}

	created := model.SearchQueryTerm{QueryID: queryID, Term: term}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO search_query_terms (query_id, term) VALUES ($1, $2) RETURNING id`,
		queryID, term,
	).Scan(&created.ID)
	if err == nil {
		return &created, nil
	}
	if !isPgUniqueViolation(err) {
		return nil, eris.Wrapf(err, "postgres: insert term %q", term)
	}

	t, err = s.getQueryTerm(ctx, queryID, term)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, eris.Errorf("postgres: term %q missing after unique violation", term)
	}
	return t, nil
}

func (s *PostgresStore) getQueryTerm(ctx context.Context, queryID int64, term string) (*model.SearchQueryTerm, error) {
	var t model.SearchQueryTerm
	err := s.pool.QueryRow(ctx, sqlGetQueryTerm, queryID, term).Scan(&t.ID, &t.QueryID, &t.Term)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get term %q", term)
	}
	return &t, nil
}

func (s *PostgresStore) CreateSearchQueryResults(ctx context.Context, results []model.SearchQueryResult) (int64, error) {
	if len(results) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(results))
	for _, r := range results {
		rows = append(rows, []any{r.QueryID, r.DocumentID, r.TermID, r.Count})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "search_query_results",
		Columns:      []string{"query_id", "document_id", "term_id", "count"},
		ConflictKeys: []string{"query_id", "document_id", "term_id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert search results")
	}
	return n, nil
}

const exportRowsSQL = `SELECT f.accession_number, f.date_filed, f.company_cik, ci.name, ci.sic, ci.state_location, f.form_type, d.sequence, d.description, d.sha1, t.term, r.count
FROM search_query_results r
JOIN search_query_terms t ON t.id = r.term_id
JOIN filing_documents d ON d.id = r.document_id
JOIN filings f ON f.id = d.filing_id
LEFT JOIN company_info ci ON ci.company_cik = f.company_cik AND ci.date = f.date_filed
WHERE r.query_id = $1
ORDER BY f.date_filed, f.company_cik`

func (s *PostgresStore) ExportRows(ctx context.Context, queryID int64) ([]model.SearchExportRow, error) {
	rows, err := s.pool.Query(ctx, exportRowsSQL, queryID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: export rows for query %d", queryID)
	}
	defer rows.Close()

	var out []model.SearchExportRow
	for rows.Next() {
		var row model.SearchExportRow
		var name, sic, state *string
		if err := rows.Scan(&row.AccessionNumber, &row.DateFiled, &row.CIK, &name, &sic, &state, &row.FormType, &row.Sequence, &row.Description, &row.SHA1, &row.Term, &row.Count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan export row")
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
	return out, eris.Wrap(rows.Err(), "postgres: export rows iterate")
}

const countsSQL = `SELECT
	(SELECT count(*) FROM companies),
	(SELECT count(*) FROM company_info),
	(SELECT count(*) FROM filing_indices),
	(SELECT count(*) FROM filing_indices WHERE is_processed),
	(SELECT count(*) FROM filings),
	(SELECT count(*) FROM filings WHERE is_processed),
	(SELECT count(*) FROM filings WHERE is_error),
	(SELECT count(*) FROM filing_documents),
	(SELECT count(*) FROM filing_documents WHERE is_processed),
	(SELECT count(*) FROM search_queries)`

func (s *PostgresStore) Counts(ctx context.Context) (*Status, error) {
	var st Status
	err := s.pool.QueryRow(ctx, countsSQL).Scan(
		&st.Companies, &st.CompanyInfoRows,
		&st.FilingIndices, &st.IndicesProcessed,
		&st.Filings, &st.FilingsProcessed, &st.FilingsErrored,
		&st.FilingDocuments, &st.DocumentsProcessed,
		&st.SearchQueries,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: counts")
	}
	return &st, nil
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
