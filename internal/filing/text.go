package filing

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// xbrlTextTag matches the element names XBRL uses for narrative blocks,
// e.g. us-gaap:AccountingPolicyTextBlock or dei:DocumentDescription.
var xbrlTextTag = regexp.MustCompile(`(?i)text|description`)

// HTMLToText projects markup down to searchable plain text, one trimmed
// line per text node. XBRL instance documents get special treatment: only
// the narrative block elements are kept, and their escaped HTML payloads
// are unwrapped first. Input that is not markup passes through with
// whitespace normalised, so the projection is safe to run on extractor
// output as well.
func HTMLToText(markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return strings.TrimSpace(markup)
	}
	if doc.Find("xbrl").Length() > 0 {
		return xbrlToText(doc)
	}
	return nodesToText(doc)
}

func xbrlToText(doc *goquery.Document) string {
	var b strings.Builder
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		if !xbrlTextTag.MatchString(goquery.NodeName(s)) {
			return
		}

		// Only leaf elements holding a single text payload count as
		// narrative blocks; container elements are skipped.
		node := s.Nodes[0]
		child := node.FirstChild
		if child == nil || child.NextSibling != nil || child.Type != html.TextNode {
			return
		}

		// Narrative payloads are HTML escaped inside the instance
		// document, so they parse as markup a second time.
		inner, err := goquery.NewDocumentFromReader(strings.NewReader(child.Data))
		if err != nil {
			return
		}
		if line := strings.Join(strings.Fields(inner.Text()), " "); line != "" {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	})
	return b.String()
}

func nodesToText(doc *goquery.Document) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if line := strings.Join(strings.Fields(n.Data), " "); line != "" {
				b.WriteString(line)
				b.WriteByte('\n')
			}
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return b.String()
}
