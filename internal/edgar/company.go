package edgar

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
)

// CompanyPage is the scrape of EDGAR's company lookup page. Fields the page
// omits come back empty.
type CompanyPage struct {
	Name               string
	SIC                string
	StateLocation      string
	StateIncorporation string
	MailingAddress     string
	BusinessAddress    string
}

// CFIARow is one row of a 2006 CFIA cross-reference table.
type CFIARow struct {
	Name string
	CIK  string
	SIC  string
}

// GetCompany scrapes the company lookup page for a CIK.
func (c *HTTPClient) GetCompany(ctx context.Context, cik int64) (*CompanyPage, error) {
	path := fmt.Sprintf("/cgi-bin/browse-edgar?action=getcompany&CIK=%d", cik)
	body, _, err := c.GetBuffer(ctx, path)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, eris.Errorf("edgar: company page fetch surrendered for CIK %d", cik)
	}
	return parseCompanyPage(body)
}

// parseCompanyPage pulls the address blocks and identification fields out
// of the lookup page. Individual fields degrade to empty when the page
// drops them; only a missing contentDiv is an error.
func parseCompanyPage(body []byte) (*CompanyPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "edgar: parse company page")
	}

	content := doc.Find("#contentDiv")
	if content.Length() == 0 {
		return nil, eris.New("edgar: no contentDiv element in company page")
	}

	info := content.Children().Eq(1)
	block := info.Children().Eq(2)
	ident := block.Children().Eq(1).Children()

	return &CompanyPage{
		Name:               strings.TrimSpace(leadingText(block.Children().Eq(0))),
		SIC:                strings.TrimSpace(ident.Eq(1).Text()),
		StateLocation:      strings.TrimSpace(ident.Eq(3).Text()),
		StateIncorporation: strings.TrimSpace(ident.Eq(4).Text()),
		MailingAddress:     addressText(info.Children().Eq(0)),
		BusinessAddress:    addressText(info.Children().Eq(1)),
	}, nil
}

// addressText drops an address block's label line and joins the rest.
func addressText(sel *goquery.Selection) string {
	lines := strings.Split(sel.Text(), "\n")
	if len(lines) < 2 {
		return ""
	}
	return strings.TrimSpace(strings.Join(lines[1:], " "))
}

// leadingText returns the text nodes ahead of the element's first child
// element, the way the lookup page carries the company name ahead of its
// CIK link.
func leadingText(sel *goquery.Selection) string {
	if len(sel.Nodes) == 0 {
		return ""
	}
	var b strings.Builder
	for n := sel.Nodes[0].FirstChild; n != nil && n.Type != html.ElementNode; n = n.NextSibling {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
	}
	return b.String()
}

// GetCFIAIndex returns the index tokens of the CFIA tables, one per
// cfia-<token>.htm link on the index page.
func (c *HTTPClient) GetCFIAIndex(ctx context.Context) ([]string, error) {
	body, _, err := c.GetBuffer(ctx, "/divisions/corpfin/organization/cfia.shtml")
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, eris.New("edgar: CFIA index fetch surrendered")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "edgar: parse CFIA index")
	}

	indexes := []string{}
	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || !strings.HasPrefix(href, "cfia-") {
			return
		}
		token := href[strings.LastIndex(href, "-")+1:]
		if len(token) > 4 {
			token = token[:len(token)-len(".htm")]
		} else {
			token = ""
		}
		indexes = append(indexes, token)
	})
	return indexes, nil
}

// GetCFIATable returns the (name, CIK, SIC) rows of one CFIA table.
func (c *HTTPClient) GetCFIATable(ctx context.Context, index string) ([]CFIARow, error) {
	path := fmt.Sprintf("/divisions/corpfin/organization/cfia-%s.htm", index)
	body, _, err := c.GetBuffer(ctx, path)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, eris.Errorf("edgar: CFIA table fetch surrendered for index %s", index)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrapf(err, "edgar: parse CFIA table %s", index)
	}

	table := doc.Find("#cos")
	if table.Length() == 0 {
		return nil, eris.Errorf("edgar: no cos table in CFIA page %s", index)
	}

	rows := []CFIARow{}
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Children()
		if cells.Length() < 3 {
			return
		}
		rows = append(rows, CFIARow{
			Name: strings.TrimSpace(cells.Eq(0).Text()),
			CIK:  strings.TrimSpace(cells.Eq(1).Text()),
			SIC:  strings.TrimSpace(cells.Eq(2).Text()),
		})
	})
	return rows, nil
}
