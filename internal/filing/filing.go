// Package filing parses SEC filing envelopes: the <SEC-HEADER> metadata
// block and every <DOCUMENT> section inside it, classifying each payload
// and decoding the uuencoded binary ones. Parsing is byte-in, record-out;
// text extraction is delegated to an injected Extractor so the parser
// itself stays free of network effects.
package filing

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"mime"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Extractor produces plain text from raw document bytes. The Tika client
// satisfies it; Parse calls it only when extraction is requested.
type Extractor interface {
	Extract(ctx context.Context, buf []byte) (string, error)
}

// Data is one parsed filing envelope. Header fields keep their EDGAR
// values verbatim; dates and counts are nil when missing or unparseable.
type Data struct {
	AccessionNumber    string
	FormType           string
	DocumentCount      *int64
	ReportingPeriod    *time.Time
	DateFiled          *time.Time
	CompanyName        string
	CIK                *int64
	SIC                string
	IRSNumber          string
	StateIncorporation string
	StateLocation      string
	Documents          []Document
}

// Document is one <DOCUMENT> section. Content holds the payload after
// uudecoding; SHA1 addresses it in the object store. StartPos and EndPos
// are byte offsets of the section within the decoded envelope.
type Document struct {
	Type        string
	Sequence    string
	FileName    string
	Description string
	ContentType string
	SHA1        string
	Content     []byte
	ContentText *string
	StartPos    int64
	EndPos      int64
}

// ParseOptions controls per-document text extraction.
type ParseOptions struct {
	Extract   bool
	Extractor Extractor
}

const (
	docStartTag = "<DOCUMENT>"
	docEndTag   = "</DOCUMENT>"
)

// Parse decodes and parses a filing envelope. A buffer that cannot be
// decoded, or that carries no header block, yields a Data with nil header
// fields and no documents; the caller decides whether that is an error.
func Parse(ctx context.Context, buf []byte, opts ParseOptions) Data {
	var data Data

	text, ok := Decode(buf)
	if !ok {
		return data
	}

	header, ok := headerBlock(text)
	if !ok {
		return data
	}

	data.AccessionNumber = HeaderField(header, "ACCESSION NUMBER")
	data.FormType = HeaderField(header, "CONFORMED SUBMISSION TYPE")
	data.DocumentCount = parseCount(HeaderField(header, "PUBLIC DOCUMENT COUNT"))
	data.ReportingPeriod = ParseDate(HeaderField(header, "CONFORMED PERIOD OF REPORT"))
	data.DateFiled = ParseDate(HeaderField(header, "FILED AS OF DATE"))
	data.CompanyName = HeaderField(header, "COMPANY CONFORMED NAME")
	data.CIK = parseCount(HeaderField(header, "CENTRAL INDEX KEY"))
	data.SIC = HeaderField(header, "STANDARD INDUSTRIAL CLASSIFICATION")
	data.IRSNumber = HeaderField(header, "IRS NUMBER")
	data.StateIncorporation = HeaderField(header, "STATE OF INCORPORATION")
	data.StateLocation = HeaderField(header, "STATE")

	p0 := strings.Index(text, docStartTag)
	for p0 >= 0 {
		rel := strings.Index(text[p0:], docEndTag)
		if rel < 0 {
			zap.L().Warn("unterminated document section", zap.Int("start_pos", p0))
			break
		}
		p1 := p0 + rel
		end := p1 + len(docEndTag)

		doc := parseDocument(ctx, text[p0:end], opts)
		doc.StartPos = int64(p0)
		doc.EndPos = int64(end)
		data.Documents = append(data.Documents, doc)

		next := strings.Index(text[p1:], docStartTag)
		if next < 0 {
			break
		}
		p0 = p1 + next
	}

	return data
}

// headerBlock returns the text between <SEC-HEADER> (or the archaic
// <IMS-HEADER>) and its close.
func headerBlock(text string) (string, bool) {
	for _, tags := range [][2]string{
		{"<SEC-HEADER>", "</SEC-HEADER>"},
		{"<IMS-HEADER>", "</IMS-HEADER>"},
	} {
		p0 := strings.Index(text, tags[0])
		if p0 < 0 {
			continue
		}
		p1 := strings.Index(text, tags[1])
		if p1 < 0 {
			zap.L().Error("invalid header block in filing", zap.String("tag", tags[0]))
			return "", false
		}
		return text[p0+len(tags[0]) : p1], true
	}
	return "", false
}

// HeaderField extracts a "FIELD: VALUE" line from a header block by
// literal label lookup. A missing field returns "".
func HeaderField(header, field string) string {
	label := field + ":"
	p0 := strings.Index(header, label)
	if p0 < 0 {
		return ""
	}
	p0 += len(label)
	p1 := strings.Index(header[p0:], "\n")
	if p1 < 0 {
		return strings.TrimSpace(header[p0:])
	}
	return strings.TrimSpace(header[p0 : p0+p1])
}

var dateLayouts = []string{"20060102", "2006-01-02", "2006/01/02", "01/02/2006", "1/2/2006", "01/02/06"}

// ParseDate parses the date formats EDGAR headers and indexes carry.
// Returns nil rather than an error: a bad date downgrades a field, never a
// filing.
func ParseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	zap.L().Warn("unparseable date", zap.String("value", value))
	return nil
}

func parseCount(value string) *int64 {
	if value == "" {
		return nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		zap.L().Warn("non-integer header value", zap.String("value", value))
		return nil
	}
	return &n
}

var (
	typeRe        = regexp.MustCompile(`<TYPE>(.+)`)
	sequenceRe    = regexp.MustCompile(`<SEQUENCE>(.+)`)
	fileNameRe    = regexp.MustCompile(`<FILENAME>(.+)`)
	descriptionRe = regexp.MustCompile(`<DESCRIPTION>(.+)`)
)

// parseDocument parses one <DOCUMENT> block into metadata and content.
func parseDocument(ctx context.Context, block string, opts ParseOptions) Document {
	doc := Document{
		Type:        firstMatch(typeRe, block),
		Sequence:    firstMatch(sequenceRe, block),
		FileName:    firstMatch(fileNameRe, block),
		Description: firstMatch(descriptionRe, block),
	}

	content, ok := contentSpan(block)
	if !ok {
		zap.L().Warn("document block without content tags", zap.String("type", doc.Type))
	}

	contentType, uuencoded := classify(content, doc.FileName)
	doc.ContentType = contentType

	raw := []byte(content)
	if uuencoded {
		decoded, err := Uudecode(raw)
		if err != nil {
			zap.L().Warn("uudecode failed, keeping encoded payload",
				zap.String("file_name", doc.FileName),
				zap.Error(err))
		} else {
			raw = decoded
		}
	}
	doc.Content = raw
	doc.SHA1 = SHA1(raw)

	if opts.Extract && opts.Extractor != nil {
		text, err := opts.Extractor.Extract(ctx, raw)
		if err != nil {
			zap.L().Warn("text extraction failed",
				zap.String("sha1", doc.SHA1),
				zap.Error(err))
		} else if text != "" {
			doc.ContentText = &text
		}
	}

	return doc
}

func firstMatch(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// contentSpan brackets the payload. The tag before the block's closing
// </DOCUMENT> names the inner content tag (usually TEXT); the payload runs
// from that tag's first opening to its first close.
func contentSpan(block string) (string, bool) {
	last := strings.LastIndex(block, "</")
	if last <= 0 {
		return "", false
	}
	p0 := strings.LastIndex(block[:last], "</")
	if p0 < 0 {
		return "", false
	}
	rel := strings.Index(block[p0:], ">")
	if rel < 0 {
		return "", false
	}
	tag := block[p0+2 : p0+rel]

	startTag := "<" + tag + ">"
	endTag := "</" + tag + ">"
	c0 := strings.Index(block, startTag)
	c1 := strings.Index(block, endTag)
	if c0 < 0 || c1 < 0 || c0+len(startTag) > c1 {
		return "", false
	}
	return block[c0+len(startTag) : c1], true
}

// classify maps the first 100 bytes of content to a content type and
// reports whether the payload is uuencoded.
func classify(content, fileName string) (string, bool) {
	head := content
	if len(head) > 100 {
		head = head[:100]
	}
	headUpper := strings.ToUpper(head)

	switch {
	case strings.Contains(headUpper, "<PDF>"):
		return "application/pdf", true
	case strings.Contains(headUpper, "<HTML"):
		return "text/html", false
	case strings.Contains(headUpper, "<XML"), strings.Contains(headUpper, "<?XML"):
		return "application/xml", false
	case strings.HasPrefix(head, "\nbegin "):
		return mimeByFileName(fileName), true
	default:
		return "text/plain", false
	}
}

// mimeByFileName guesses a MIME type from the file name extension,
// stripping any charset parameter, with application/octet-stream as the
// fallback for unknown and missing names.
func mimeByFileName(fileName string) string {
	if fileName == "" {
		return "application/octet-stream"
	}
	mt := mime.TypeByExtension(strings.ToLower(path.Ext(path.Base(fileName))))
	if mt == "" {
		return "application/octet-stream"
	}
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}

// SHA1 returns the hex digest used to content-address document payloads.
// Dedup, not security: collisions in this corpus are tolerated.
func SHA1(buf []byte) string {
	sum := sha1.Sum(buf)
	return hex.EncodeToString(sum[:])
}
