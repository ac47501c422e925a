package edgar

import (
	"bytes"
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ListPath fetches a directory page and returns its links as absolute
// paths. Directory entries keep their trailing slash. A surrendered fetch
// yields an empty list.
func (c *HTTPClient) ListPath(ctx context.Context, remotePath string) ([]string, error) {
	body, _, err := c.GetBuffer(ctx, remotePath)
	if err != nil {
		return nil, err
	}
	if body == nil {
		zap.L().Warn("directory fetch surrendered", zap.String("path", remotePath))
		return []string{}, nil
	}

	urls, err := parseListing(remotePath, body)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("listed remote directory",
		zap.String("path", remotePath),
		zap.Int("links", len(urls)))
	return urls, nil
}

// parseListing extracts the anchors inside the main-content element,
// dropping the Parent Directory entry and normalising relative hrefs
// against the listed path.
func parseListing(remotePath string, body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrapf(err, "edgar: parse listing %s", remotePath)
	}

	main := doc.Find("#main-content")
	if main.Length() == 0 {
		return nil, eris.Errorf("edgar: no main-content element in %s", remotePath)
	}

	urls := []string{}
	main.Find("a").Each(func(_ int, a *goquery.Selection) {
		if strings.Contains(a.Text(), "Parent Directory") {
			return
		}
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		if strings.HasPrefix(href, "/") {
			urls = append(urls, href)
			return
		}
		urls = append(urls, remotePath+"/"+strings.TrimLeft(href, "/"))
	})
	return urls, nil
}
