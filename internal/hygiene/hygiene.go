// Package hygiene sweeps the envelope mirror for objects EDGAR poisoned:
// rate-limit pages stored as filings, zero-byte fetches and access-denied
// XML documents. Sweeps report the offending keys and, when asked,
// repair them in place.
package hygiene

import (
	"bytes"
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-pipeline/internal/blob"
	"github.com/sells-group/edgar-pipeline/internal/edgar"
)

// RateLimitedPageSize is the exact byte size of SEC's request-rate
// threshold page. The size check is brittle on purpose: when SEC revises
// the page this constant is the single edit, and FullScan covers the gap.
const RateLimitedPageSize = 2139

// Options scopes a sweep.
type Options struct {
	// CIK narrows the sweep to one company folder. Zero sweeps every CIK
	// folder under edgar/data/.
	CIK int64

	// Fix repairs offending objects. False only reports them.
	Fix bool

	// FullScan matches rate-limit pages by body content instead of the
	// size heuristic. Much slower: it reads every object.
	FullScan bool
}

// Sweeper walks envelope mirrors and applies hygiene checks.
type Sweeper struct {
	blobs blob.Store
	edgar edgar.Client
}

// NewSweeper builds a Sweeper over the object store and EDGAR.
func NewSweeper(blobs blob.Store, client edgar.Client) *Sweeper {
	return &Sweeper{blobs: blobs, edgar: client}
}

// CleanRateLimited finds stored rate-limit pages and refetches the real
// filing over them.
func (s *Sweeper) CleanRateLimited(ctx context.Context, opts Options) ([]string, error) {
	check := func(ctx context.Context, key string) (bool, error) {
		if !opts.FullScan {
			size, err := s.blobs.Size(ctx, key)
			if err != nil {
				return false, err
			}
			return size == RateLimitedPageSize, nil
		}
		buf, err := s.blobs.Get(ctx, key, false)
		if err != nil {
			return false, err
		}
		return bytes.Contains(buf, []byte(edgar.SentinelRateLimited)), nil
	}
	return s.sweep(ctx, "rate-limited", opts, check, s.refetch)
}

// CleanEmpty finds zero-byte objects and refetches their content.
func (s *Sweeper) CleanEmpty(ctx context.Context, opts Options) ([]string, error) {
	check := func(ctx context.Context, key string) (bool, error) {
		size, err := s.blobs.Size(ctx, key)
		if err != nil {
			return false, err
		}
		return size == 0, nil
	}
	return s.sweep(ctx, "zero-byte", opts, check, s.refetch)
}

// CleanAccessDenied finds stored access-denied XML documents and deletes
// them; there is nothing behind those paths to refetch.
func (s *Sweeper) CleanAccessDenied(ctx context.Context, opts Options) ([]string, error) {
	check := func(ctx context.Context, key string) (bool, error) {
		buf, err := s.blobs.Get(ctx, key, false)
		if err != nil {
			return false, err
		}
		return bytes.Contains(buf, []byte(edgar.SentinelAccessDenied)), nil
	}
	repair := func(ctx context.Context, key string) error {
		return s.blobs.Delete(ctx, key)
	}
	return s.sweep(ctx, "access-denied", opts, check, repair)
}

// sweep walks the in-scope CIK folders, collects keys the check flags and
// repairs them when Fix is set. Per-key errors are logged and skipped so
// a single bad object never stops a long sweep.
func (s *Sweeper) sweep(
	ctx context.Context,
	kind string,
	opts Options,
	check func(ctx context.Context, key string) (bool, error),
	repair func(ctx context.Context, key string) error,
) ([]string, error) {
	log := zap.L().With(zap.String("sweep", kind))

	prefixes, err := s.cikPrefixes(ctx, opts.CIK)
	if err != nil {
		return nil, err
	}

	var offending []string
	for _, prefix := range prefixes {
		keys, err := s.blobs.List(ctx, prefix)
		if err != nil {
			return offending, eris.Wrapf(err, "hygiene: list %s", prefix)
		}

		for _, key := range keys {
			if err := ctx.Err(); err != nil {
				return offending, err
			}

			bad, err := check(ctx, key)
			if err != nil {
				log.Warn("check failed", zap.String("key", key), zap.Error(err))
				continue
			}
			if !bad {
				continue
			}

			log.Info("offending object", zap.String("key", key))
			offending = append(offending, key)

			if !opts.Fix {
				continue
			}
			if err := repair(ctx, key); err != nil {
				log.Error("repair failed", zap.String("key", key), zap.Error(err))
			}
		}
	}

	log.Info("sweep finished",
		zap.Int("folders", len(prefixes)),
		zap.Int("offending", len(offending)),
		zap.Bool("fixed", opts.Fix),
	)
	return offending, nil
}

// cikPrefixes resolves the sweep scope: one company folder, or every
// folder under the envelope mirror root.
func (s *Sweeper) cikPrefixes(ctx context.Context, cik int64) ([]string, error) {
	if cik > 0 {
		return []string{edgar.CIKPath(cik)}, nil
	}
	folders, err := s.blobs.ListFolders(ctx, "edgar/data/", 0)
	if err != nil {
		return nil, eris.Wrap(err, "hygiene: list cik folders")
	}
	return folders, nil
}

// refetch replaces a poisoned object with a fresh EDGAR fetch. Fetches
// that surrender or return another sentinel leave the object untouched
// for the next sweep.
func (s *Sweeper) refetch(ctx context.Context, key string) error {
	body, _, err := s.edgar.GetBuffer(ctx, archivesPath(key))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return eris.Errorf("hygiene: no replacement for %s", key)
	}
	return s.blobs.Put(ctx, key, body, false)
}

// archivesPath maps an object key back onto its EDGAR path.
func archivesPath(key string) string {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(key, "/"), "Archives/")
	return "/Archives/" + trimmed
}
