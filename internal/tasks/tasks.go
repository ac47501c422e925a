// Package tasks implements the pipeline's queue task handlers: parsing
// index files into filing records, parsing filing envelopes into the
// catalogue and the artifact store, term search over stored text, and
// text-extraction backfill. Every handler is idempotent, keyed by the
// catalogue's natural keys, so re-delivery after a crash converges on the
// same state.
package tasks

import (
	"context"
	"encoding/json"
	"path"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-pipeline/internal/blob"
	"github.com/sells-group/edgar-pipeline/internal/edgar"
	"github.com/sells-group/edgar-pipeline/internal/queue"
	"github.com/sells-group/edgar-pipeline/internal/store"
	"github.com/sells-group/edgar-pipeline/pkg/tika"
)

// Task names, shared between the drivers that enqueue and the workers
// that consume.
const (
	TaskProcessFilingIndex  = "process_filing_index"
	TaskProcessFiling       = "process_filing"
	TaskSearchDocument      = "search_document"
	TaskExtractDocumentData = "extract_document_data"
)

// StoreFlags selects which artifact tiers a parse persists.
type StoreFlags struct {
	StoreRaw       bool `json:"store_raw"`
	StoreText      bool `json:"store_text"`
	StoreProcessed bool `json:"store_processed"`
}

// ProcessFilingIndexPayload names one mirrored index file to parse.
type ProcessFilingIndexPayload struct {
	// FilePath is the object-store key of the index file, e.g.
	// edgar/full-index/2004/QTR1/form.idx.
	FilePath string `json:"file_path"`
	// FormTypes filters rows; empty means every form type.
	FormTypes []string `json:"form_types,omitempty"`
	// DoubleGz handles historical mirrors whose files were gzipped twice.
	DoubleGz bool `json:"double_gz,omitempty"`
	StoreFlags
}

// ProcessFilingPayload names one mirrored filing envelope to parse.
type ProcessFilingPayload struct {
	// StorePath is the object-store key of the envelope, e.g.
	// edgar/data/320193/0000320193-17-000070.txt.
	StorePath string `json:"store_path"`
	StoreFlags
}

// SearchDocumentPayload counts query terms in one document's text artifact.
type SearchDocumentPayload struct {
	SHA1          string   `json:"sha1"`
	Terms         []string `json:"terms"`
	QueryID       int64    `json:"query_id"`
	DocumentID    int64    `json:"document_id"`
	CaseSensitive bool     `json:"case_sensitive,omitempty"`
	Token         bool     `json:"token,omitempty"`
	Stem          bool     `json:"stem,omitempty"`
}

// ExtractDocumentPayload backfills text for one raw artifact.
type ExtractDocumentPayload struct {
	SHA1 string `json:"sha1"`
}

// Options tunes the Runner. Zero values take the defaults.
type Options struct {
	// DocumentPrefix roots the content-addressed artifact tiers.
	// Default "documents".
	DocumentPrefix string
	// Deflate compresses document artifacts in the object store.
	// Envelope and index mirrors are always stored verbatim so the
	// hygiene size heuristic keeps working.
	Deflate bool
}

// Runner holds the clients the task handlers need. Extraction is optional:
// a nil extractor limits parses to the raw tier.
type Runner struct {
	store     store.Store
	blobs     blob.Store
	edgar     edgar.Client
	extractor tika.Client
	opts      Options
}

// NewRunner wires a Runner over the catalogue, the object store and EDGAR.
func NewRunner(st store.Store, blobs blob.Store, client edgar.Client, extractor tika.Client, opts Options) *Runner {
	if opts.DocumentPrefix == "" {
		opts.DocumentPrefix = "documents"
	}
	return &Runner{
		store:     st,
		blobs:     blobs,
		edgar:     client,
		extractor: extractor,
		opts:      opts,
	}
}

// Register binds every task handler onto the worker.
func (r *Runner) Register(w *queue.Worker) {
	w.Register(TaskProcessFilingIndex, payloadHandler(r.ProcessFilingIndex))
	w.Register(TaskProcessFiling, payloadHandler(r.ProcessFiling))
	w.Register(TaskSearchDocument, payloadHandler(r.SearchDocument))
	w.Register(TaskExtractDocumentData, payloadHandler(r.ExtractDocumentData))
}

// payloadHandler adapts a typed task method to the queue handler shape.
func payloadHandler[P any](fn func(context.Context, P) error) queue.Handler {
	return func(ctx context.Context, raw json.RawMessage) error {
		var p P
		if err := json.Unmarshal(raw, &p); err != nil {
			return eris.Wrap(err, "tasks: decode payload")
		}
		return fn(ctx, p)
	}
}

// documentPath keys a content-addressed artifact: <prefix>/<tier>/<sha1>.
func (r *Runner) documentPath(tier, sha1 string) string {
	return path.Join(r.opts.DocumentPrefix, tier, sha1)
}

// putIfAbsent writes an artifact unless its key already exists. Keys are
// content hashes, so an existing object is already the right bytes.
func (r *Runner) putIfAbsent(ctx context.Context, key string, buf []byte) error {
	exists, err := r.blobs.Exists(ctx, key)
	if err != nil {
		return eris.Wrapf(err, "tasks: check artifact %s", key)
	}
	if exists {
		zap.L().Debug("artifact already stored", zap.String("path", key))
		return nil
	}
	if err := r.blobs.Put(ctx, key, buf, r.opts.Deflate); err != nil {
		return eris.Wrapf(err, "tasks: store artifact %s", key)
	}
	return nil
}

// sequenceNumber parses an envelope <SEQUENCE> value, falling back to the
// document's one-based position when the header is missing or mangled.
func sequenceNumber(value string, ordinal int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return ordinal + 1
	}
	return n
}
