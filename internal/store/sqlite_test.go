package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/edgar-pipeline/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testDate(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

// --- Companies ---

func TestSQLite_GetOrCreateCompany(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c, created, err := st.GetOrCreateCompany(ctx, 1599891, "Sunshine Bancorp, Inc.")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(1599891), c.CIK)

	// Second call observes the existing row.
	c2, created, err := st.GetOrCreateCompany(ctx, 1599891, "different name")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "Sunshine Bancorp, Inc.", c2.LastName)

	got, err := st.GetCompany(ctx, 1599891)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Sunshine Bancorp, Inc.", got.LastName)
}

func TestSQLite_GetCompany_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	c, err := st.GetCompany(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestSQLite_UpdateCompanyLastName(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, _, err := st.GetOrCreateCompany(ctx, 7323, "ARKANSAS POWER & LIGHT CO")
	require.NoError(t, err)

	require.NoError(t, st.UpdateCompanyLastName(ctx, 7323, "ENTERGY ARKANSAS INC"))
	c, err := st.GetCompany(ctx, 7323)
	require.NoError(t, err)
	assert.Equal(t, "ENTERGY ARKANSAS INC", c.LastName)

	err = st.UpdateCompanyLastName(ctx, 99999, "nobody")
	assert.Error(t, err)
}

func TestSQLite_GetOrCreateCompanyInfo(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, _, err := st.GetOrCreateCompany(ctx, 1599891, "Sunshine Bancorp, Inc.")
	require.NoError(t, err)

	info := model.CompanyInfo{
		CIK:                1599891,
		Name:               "Sunshine Bancorp, Inc.",
		SIC:                "SAVINGS INSTITUTION, FEDERALLY CHARTERED [6035]",
		StateLocation:      "FL",
		StateIncorporation: "MD",
		Date:               testDate(2018, time.January, 3),
	}

	first, created, err := st.GetOrCreateCompanyInfo(ctx, info)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, first.ID)

	// Same (company, date) key converges on the first snapshot.
	dup := info
	dup.Name = "renamed"
	second, created, err := st.GetOrCreateCompanyInfo(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Sunshine Bancorp, Inc.", second.Name)

	// A different date is a new snapshot.
	other := info
	other.Date = testDate(2018, time.February, 1)
	third, created, err := st.GetOrCreateCompanyInfo(ctx, other)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestSQLite_GetOrCreateCompanyInfo_NilDate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, _, err := st.GetOrCreateCompany(ctx, 7323, "ARKANSAS POWER & LIGHT CO")
	require.NoError(t, err)

	info := model.CompanyInfo{CIK: 7323, Name: "ARKANSAS POWER & LIGHT CO"}
	first, created, err := st.GetOrCreateCompanyInfo(ctx, info)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := st.GetOrCreateCompanyInfo(ctx, info)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
}

// --- Filing indices ---

func TestSQLite_FilingIndexUpsert(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	url := "/Archives/edgar/full-index/2018/QTR1/form.idx"
	missing, err := st.GetFilingIndex(ctx, url)
	require.NoError(t, err)
	assert.Nil(t, missing)

	idx := model.FilingIndex{
		EdgarURL:         url,
		DateDownloaded:   testDate(2018, time.April, 2),
		TotalRecordCount: 120000,
		BadRecordCount:   3,
		IsProcessed:      true,
	}
	require.NoError(t, st.UpsertFilingIndex(ctx, idx))

	got, err := st.GetFilingIndex(ctx, url)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(120000), got.TotalRecordCount)
	assert.True(t, got.IsProcessed)

	idx.BadRecordCount = 0
	idx.TotalRecordCount = 120010
	require.NoError(t, st.UpsertFilingIndex(ctx, idx))

	got, err = st.GetFilingIndex(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, int64(120010), got.TotalRecordCount)
	assert.Equal(t, int64(0), got.BadRecordCount)
}

// --- Filings ---

func TestSQLite_FilingLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, _, err := st.GetOrCreateCompany(ctx, 1599891, "Sunshine Bancorp, Inc.")
	require.NoError(t, err)

	count := int64(2)
	f := &model.Filing{
		CIK:             1599891,
		FormType:        "8-K",
		AccessionNumber: "0001193125-18-000566",
		DateFiled:       testDate(2018, time.January, 3),
		SHA1:            "da39a3ee5e6b4b0d3255bfef95601890afd80709",
		StorePath:       "edgar/data/1599891/0001193125-18-000566.txt",
		DocumentCount:   &count,
		IsError:         true,
	}
	require.NoError(t, st.CreateFiling(ctx, f))
	assert.NotZero(t, f.ID)

	n, err := st.CountFilingsByStorePath(ctx, f.StorePath)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Same store path loses the uniqueness race.
	dup := *f
	dup.ID = 0
	assert.ErrorIs(t, st.CreateFiling(ctx, &dup), ErrAlreadyExists)

	got, err := st.GetFilingByStorePath(ctx, f.StorePath)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, f.ID, got.ID)
	assert.Equal(t, "8-K", got.FormType)
	require.NotNil(t, got.DocumentCount)
	assert.Equal(t, int64(2), *got.DocumentCount)
	require.NotNil(t, got.DateFiled)
	assert.Equal(t, 2018, got.DateFiled.Year())
	assert.True(t, got.IsError)
	assert.False(t, got.IsProcessed)

	require.NoError(t, st.UpdateFilingStatus(ctx, f.ID, true, false))
	got, err = st.GetFilingByStorePath(ctx, f.StorePath)
	require.NoError(t, err)
	assert.True(t, got.IsProcessed)
	assert.False(t, got.IsError)

	missing, err := st.GetFilingByStorePath(ctx, "edgar/data/0/nope.txt")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

// --- Filing documents ---

func seedFiling(t *testing.T, st *SQLiteStore, cik int64, formType, storePath string) *model.Filing {
	t.Helper()
	ctx := context.Background()
	_, _, err := st.GetOrCreateCompany(ctx, cik, "co")
	require.NoError(t, err)
	f := &model.Filing{CIK: cik, FormType: formType, StorePath: storePath}
	require.NoError(t, st.CreateFiling(ctx, f))
	return f
}

func TestSQLite_CreateFilingDocuments_Converges(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	f := seedFiling(t, st, 100, "10-K", "edgar/data/100/acc-1.txt")

	docs := []model.FilingDocument{
		{FilingID: f.ID, Sequence: 1, Type: "10-K", FileName: "main.htm", ContentType: "text/html", SHA1: "aaa", StartPos: 10, EndPos: 90},
		{FilingID: f.ID, Sequence: 2, Type: "EX-99", FileName: "ex.txt", ContentType: "text/plain", SHA1: "bbb", StartPos: 90, EndPos: 140},
	}
	n, err := st.CreateFilingDocuments(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Reprocessing the filing converges on the same rows.
	docs[1].SHA1 = "ccc"
	_, err = st.CreateFilingDocuments(ctx, docs)
	require.NoError(t, err)

	listed, err := st.ListDocuments(ctx, DocumentFilter{})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "ccc", listed[1].SHA1)
	assert.Equal(t, 2, listed[1].Sequence)
}

func TestSQLite_ListDocuments_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	tenK := seedFiling(t, st, 100, "10-K", "edgar/data/100/a.txt")
	eightK := seedFiling(t, st, 101, "8-K", "edgar/data/101/b.txt")

	_, err := st.CreateFilingDocuments(ctx, []model.FilingDocument{
		{FilingID: tenK.ID, Sequence: 1, SHA1: "k1"},
		{FilingID: tenK.ID, Sequence: 2, SHA1: "k2"},
		{FilingID: eightK.ID, Sequence: 1, SHA1: "e1"},
	})
	require.NoError(t, err)

	docs, err := st.ListDocuments(ctx, DocumentFilter{FormTypes: []string{"10-K"}})
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	docs, err = st.ListDocuments(ctx, DocumentFilter{FormTypes: []string{"10-K", "8-K"}, Sequence: 1})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "k1", docs[0].SHA1)
	assert.Equal(t, "e1", docs[1].SHA1)

	docs, err = st.ListDocuments(ctx, DocumentFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	docs, err = st.ListDocuments(ctx, DocumentFilter{FormTypes: []string{"S-1"}})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestSQLite_MarkDocumentsProcessedBySHA1(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := seedFiling(t, st, 100, "10-K", "edgar/data/100/a.txt")
	b := seedFiling(t, st, 101, "10-K", "edgar/data/101/b.txt")

	// The same document can appear in two filings; sha1 marks both.
	_, err := st.CreateFilingDocuments(ctx, []model.FilingDocument{
		{FilingID: a.ID, Sequence: 1, SHA1: "shared", IsError: true},
		{FilingID: b.ID, Sequence: 1, SHA1: "shared", IsError: true},
		{FilingID: b.ID, Sequence: 2, SHA1: "other"},
	})
	require.NoError(t, err)

	n, err := st.MarkDocumentsProcessedBySHA1(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	docs, err := st.ListDocuments(ctx, DocumentFilter{})
	require.NoError(t, err)
	for _, d := range docs {
		if d.SHA1 == "shared" {
			assert.True(t, d.IsProcessed)
			assert.False(t, d.IsError)
		} else {
			assert.False(t, d.IsProcessed)
		}
	}
}

// --- Search ---

func TestSQLite_SearchQueryTermsAndResults(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	f := seedFiling(t, st, 100, "10-K", "edgar/data/100/a.txt")
	_, err := st.CreateFilingDocuments(ctx, []model.FilingDocument{
		{FilingID: f.ID, Sequence: 1, SHA1: "doc1"},
	})
	require.NoError(t, err)
	docs, err := st.ListDocuments(ctx, DocumentFilter{})
	require.NoError(t, err)
	docID := docs[0].ID

	q, err := st.CreateSearchQuery(ctx, "10-K;10-Q")
	require.NoError(t, err)
	assert.NotZero(t, q.ID)

	term, err := st.GetOrCreateSearchQueryTerm(ctx, q.ID, "cybersecurity")
	require.NoError(t, err)
	again, err := st.GetOrCreateSearchQueryTerm(ctx, q.ID, "cybersecurity")
	require.NoError(t, err)
	assert.Equal(t, term.ID, again.ID)

	n, err := st.CreateSearchQueryResults(ctx, []model.SearchQueryResult{
		{QueryID: q.ID, DocumentID: docID, TermID: term.ID, Count: 7},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Re-running the search converges on the latest count.
	_, err = st.CreateSearchQueryResults(ctx, []model.SearchQueryResult{
		{QueryID: q.ID, DocumentID: docID, TermID: term.ID, Count: 9},
	})
	require.NoError(t, err)

	rows, err := st.ExportRows(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "cybersecurity", rows[0].Term)
	assert.Equal(t, int64(9), rows[0].Count)
	assert.Equal(t, int64(100), rows[0].CIK)
	assert.Equal(t, 1, rows[0].Sequence)
	assert.Equal(t, "doc1", rows[0].SHA1)
}

func TestSQLite_ExportRows_JoinsCompanyInfo(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, _, err := st.GetOrCreateCompany(ctx, 200, "Acme Corp")
	require.NoError(t, err)
	filed := testDate(2019, time.March, 5)
	_, _, err = st.GetOrCreateCompanyInfo(ctx, model.CompanyInfo{
		CIK: 200, Name: "Acme Corp", SIC: "3714", StateLocation: "MI", Date: filed,
	})
	require.NoError(t, err)

	f := &model.Filing{CIK: 200, FormType: "10-K", AccessionNumber: "0000000200-19-000001", DateFiled: filed, StorePath: "edgar/data/200/x.txt"}
	require.NoError(t, st.CreateFiling(ctx, f))
	_, err = st.CreateFilingDocuments(ctx, []model.FilingDocument{{FilingID: f.ID, Sequence: 1, SHA1: "d"}})
	require.NoError(t, err)
	docs, err := st.ListDocuments(ctx, DocumentFilter{})
	require.NoError(t, err)

	q, err := st.CreateSearchQuery(ctx, "10-K")
	require.NoError(t, err)
	term, err := st.GetOrCreateSearchQueryTerm(ctx, q.ID, "recall")
	require.NoError(t, err)
	_, err = st.CreateSearchQueryResults(ctx, []model.SearchQueryResult{
		{QueryID: q.ID, DocumentID: docs[0].ID, TermID: term.ID, Count: 3},
	})
	require.NoError(t, err)

	rows, err := st.ExportRows(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Acme Corp", rows[0].CompanyName)
	assert.Equal(t, "3714", rows[0].SIC)
	assert.Equal(t, "MI", rows[0].StateLocation)
	assert.Equal(t, "0000000200-19-000001", rows[0].AccessionNumber)
}

// --- Counts ---

func TestSQLite_Counts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	f := seedFiling(t, st, 100, "10-K", "edgar/data/100/a.txt")
	require.NoError(t, st.UpdateFilingStatus(ctx, f.ID, true, false))
	require.NoError(t, st.UpsertFilingIndex(ctx, model.FilingIndex{EdgarURL: "/Archives/x.idx", IsProcessed: true}))
	_, err := st.CreateFilingDocuments(ctx, []model.FilingDocument{{FilingID: f.ID, Sequence: 1, SHA1: "d"}})
	require.NoError(t, err)

	status, err := st.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), status.Companies)
	assert.Equal(t, int64(1), status.FilingIndices)
	assert.Equal(t, int64(1), status.IndicesProcessed)
	assert.Equal(t, int64(1), status.Filings)
	assert.Equal(t, int64(1), status.FilingsProcessed)
	assert.Equal(t, int64(0), status.FilingsErrored)
	assert.Equal(t, int64(1), status.FilingDocuments)
	assert.Equal(t, int64(0), status.DocumentsProcessed)
}

func TestSQLite_CascadeDelete(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	f := seedFiling(t, st, 100, "10-K", "edgar/data/100/a.txt")
	_, err := st.CreateFilingDocuments(ctx, []model.FilingDocument{{FilingID: f.ID, Sequence: 1}})
	require.NoError(t, err)

	_, err = st.db.ExecContext(ctx, `DELETE FROM companies WHERE cik = 100`)
	require.NoError(t, err)

	docs, err := st.ListDocuments(ctx, DocumentFilter{})
	require.NoError(t, err)
	assert.Empty(t, docs)
}
