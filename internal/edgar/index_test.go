package edgar

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listingPage(links ...string) string {
	page := `<html><body><div id="main-content"><a href="../">Parent Directory</a>`
	for _, link := range links {
		page += fmt.Sprintf(`<a href="%s">%s</a>`, link, link)
	}
	return page + `</div></body></html>`
}

// newIndexTreeServer serves a miniature daily-index tree. Quarter pages are
// registered under the doubled-slash paths the year listing produces.
func newIndexTreeServer(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, ok := pages[r.URL.Path]
		if !ok {
			t.Errorf("unexpected request path %q", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(page))
	}))
}

func TestListIndexByYear(t *testing.T) {
	pages := map[string]string{
		"/Archives/edgar/daily-index/1994/":       listingPage("QTR3/", "QTR4/"),
		"/Archives/edgar/daily-index/1994//QTR3/": listingPage("form.093094.idx", "company.093094.idx"),
		"/Archives/edgar/daily-index/1994//QTR4/": listingPage("form.100394.idx"),
	}
	srv := newIndexTreeServer(t, pages)
	defer srv.Close()

	client := newTestClient(t, Options{
		BaseURL:   srv.URL,
		IndexPath: "/Archives/edgar/daily-index/",
	})
	indexes, err := client.ListIndexByYear(context.Background(), 1994)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/Archives/edgar/daily-index/1994/QTR3/form.093094.idx",
		"/Archives/edgar/daily-index/1994/QTR4/form.100394.idx",
	}, indexes)
}

func TestListIndexByQuarter(t *testing.T) {
	pages := map[string]string{
		"/Archives/edgar/daily-index/1994/":       listingPage("QTR3/", "QTR4/"),
		"/Archives/edgar/daily-index/1994//QTR4/": listingPage("form.100394.idx", "company.100394.idx"),
	}
	srv := newIndexTreeServer(t, pages)
	defer srv.Close()

	client := newTestClient(t, Options{
		BaseURL:   srv.URL,
		IndexPath: "/Archives/edgar/daily-index/",
	})
	indexes, err := client.ListIndexByQuarter(context.Background(), 1994, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/Archives/edgar/daily-index/1994/QTR4/form.100394.idx",
	}, indexes)
}

func TestListIndexByMonth(t *testing.T) {
	pages := map[string]string{
		"/Archives/edgar/daily-index/2019/":       listingPage("QTR1/"),
		"/Archives/edgar/daily-index/2019//QTR1/": listingPage("form.20190102.idx", "form.20190201.idx"),
	}
	srv := newIndexTreeServer(t, pages)
	defer srv.Close()

	client := newTestClient(t, Options{
		BaseURL:   srv.URL,
		IndexPath: "/Archives/edgar/daily-index/",
	})
	indexes, err := client.ListIndexByMonth(context.Background(), 2019, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/Archives/edgar/daily-index/2019/QTR1/form.20190102.idx",
	}, indexes)
}

func TestListIndexWalksYearsInRange(t *testing.T) {
	pages := map[string]string{
		"/Archives/edgar/daily-index/":            listingPage("1994/", "2005/", "sitemap.xml"),
		"/Archives/edgar/daily-index/1994/":       listingPage("QTR3/"),
		"/Archives/edgar/daily-index/1994//QTR3/": listingPage("form.093094.idx"),
	}
	srv := newIndexTreeServer(t, pages)
	defer srv.Close()

	client := newTestClient(t, Options{
		BaseURL:   srv.URL,
		IndexPath: "/Archives/edgar/daily-index/",
	})
	indexes, err := client.ListIndex(context.Background(), 1990, 2000)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/Archives/edgar/daily-index/1994/QTR3/form.093094.idx",
	}, indexes)
}

func TestCIKPath(t *testing.T) {
	assert.Equal(t, "edgar/data/320193/", CIKPath(320193))
	assert.Equal(t, "edgar/data/0/", CIKPath(0))
}

func TestLastSegment(t *testing.T) {
	assert.Equal(t, "1994", lastSegment("/Archives/edgar/daily-index/1994/"))
	assert.Equal(t, "form.idx", lastSegment("form.idx"))
	assert.Equal(t, "QTR3", lastSegment("/a/b/QTR3"))
}
