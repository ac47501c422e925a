package tasks

import (
	"context"
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-pipeline/internal/model"
)

// SearchDocument counts each query term in one document's text artifact
// and persists the non-zero counts. Three projections are supported:
// plain substring counting, whole-token counting, and stemmed-token
// counting. Counts are tied to the term as the user wrote it, whatever
// projection matched it.
func (r *Runner) SearchDocument(ctx context.Context, p SearchDocumentPayload) error {
	log := zap.L().With(
		zap.String("task", TaskSearchDocument),
		zap.String("sha1", p.SHA1),
		zap.Int64("query_id", p.QueryID),
	)

	buf, err := r.blobs.Get(ctx, r.documentPath("text", p.SHA1), r.opts.Deflate)
	if err != nil {
		return eris.Wrapf(err, "tasks: read text artifact %s", p.SHA1)
	}

	content := string(buf)
	if !p.CaseSensitive {
		content = strings.ToLower(content)
	}

	var tokens []string
	switch {
	case p.Stem:
		tokens = stemAll(Tokenize(content))
	case p.Token:
		tokens = Tokenize(content)
	}

	results := make([]model.SearchQueryResult, 0, len(p.Terms))
	for _, term := range p.Terms {
		needle := term
		if !p.CaseSensitive {
			needle = strings.ToLower(needle)
		}

		var count int64
		switch {
		case p.Stem:
			count = countToken(tokens, Stem(needle))
		case p.Token:
			count = countToken(tokens, needle)
		default:
			count = int64(strings.Count(content, needle))
		}
		if count == 0 {
			continue
		}

		queryTerm, err := r.store.GetOrCreateSearchQueryTerm(ctx, p.QueryID, term)
		if err != nil {
			return eris.Wrapf(err, "tasks: search term %q", term)
		}
		results = append(results, model.SearchQueryResult{
			QueryID:    p.QueryID,
			DocumentID: p.DocumentID,
			TermID:     queryTerm.ID,
			Count:      count,
		})
	}

	if len(results) > 0 {
		if _, err := r.store.CreateSearchQueryResults(ctx, results); err != nil {
			return eris.Wrap(err, "tasks: persist search results")
		}
	}

	log.Info("searched document",
		zap.Int("terms", len(p.Terms)),
		zap.Int("hits", len(results)),
	)
	return nil
}

// Tokenize splits text into alphanumeric runs; everything else is a
// separator.
func Tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// Stem reduces a word to its Porter2 English stem.
func Stem(word string) string {
	return english.Stem(word, true)
}

func stemAll(tokens []string) []string {
	stems := make([]string, len(tokens))
	for i, tok := range tokens {
		stems[i] = Stem(tok)
	}
	return stems
}

func countToken(tokens []string, needle string) int64 {
	var n int64
	for _, tok := range tokens {
		if tok == needle {
			n++
		}
	}
	return n
}
