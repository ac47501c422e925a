// Package edgar speaks SEC EDGAR's public HTTP surface: raw byte fetches
// with the failure ladder, directory listings, form index enumeration and
// the company lookup pages.
package edgar

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/edgar-pipeline/internal/resilience"
)

// Client is the EDGAR operation surface the tasks and processes consume.
type Client interface {
	// GetBuffer fetches a path resolved against the EDGAR base and returns
	// the body with the parsed Last-Modified header, if any. A fetch that
	// exhausts the failure ladder surrenders with (nil, nil, nil) so index
	// walks keep moving; sentinel bodies return a typed error.
	GetBuffer(ctx context.Context, remotePath string) ([]byte, *time.Time, error)

	// ListPath returns the links of a directory page as absolute paths,
	// excluding the Parent Directory entry.
	ListPath(ctx context.Context, remotePath string) ([]string, error)

	// ListIndex walks the index root and returns every form index path
	// under the year directories within [minYear, maxYear].
	ListIndex(ctx context.Context, minYear, maxYear int) ([]string, error)
	ListIndexByYear(ctx context.Context, year int) ([]string, error)
	ListIndexByQuarter(ctx context.Context, year, quarter int) ([]string, error)
	ListIndexByMonth(ctx context.Context, year, month int) ([]string, error)

	// GetCompany scrapes the company lookup page for a CIK.
	GetCompany(ctx context.Context, cik int64) (*CompanyPage, error)

	// GetCFIAIndex and GetCFIATable read the 2006 CFIA SIC/CIK
	// cross-reference tables.
	GetCFIAIndex(ctx context.Context) ([]string, error)
	GetCFIATable(ctx context.Context, index string) ([]CFIARow, error)
}

// Options configures the HTTP client. Zero values take the documented
// defaults.
type Options struct {
	// BaseURL is the EDGAR host. Default https://www.sec.gov.
	BaseURL string

	// IndexPath is the root of the index tree. Default
	// /Archives/edgar/full-index/.
	IndexPath string

	// UserAgent must identify the operator; SEC rejects anonymous agents.
	UserAgent string

	// Sleep pauses after every successful fetch. Zero disables it.
	Sleep time.Duration

	// Backoffs is the ordered failure ladder: the n-th consecutive failure
	// sleeps Backoffs[n] before retrying, and once the ladder is exhausted
	// the fetch surrenders. Defaults to 5s/10s/30s/60s/120s/300s.
	Backoffs []time.Duration

	// RequestsPerSecond bounds the in-process request rate. Default 10,
	// SEC's published fair-access ceiling.
	RequestsPerSecond float64

	// Timeout bounds a single request. Default 60s.
	Timeout time.Duration
}

// HTTPClient implements Client against the live EDGAR host.
type HTTPClient struct {
	httpClient *http.Client
	base       *url.URL
	indexPath  string
	userAgent  string
	sleep      time.Duration
	limiter    *rate.Limiter
	retry      resilience.RetryConfig
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient builds a client from opts.
func NewHTTPClient(opts Options) (*HTTPClient, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://www.sec.gov"
	}
	if opts.IndexPath == "" {
		opts.IndexPath = "/Archives/edgar/full-index/"
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "edgar-pipeline admin@example.com"
	}
	if len(opts.Backoffs) == 0 {
		opts.Backoffs = []time.Duration{
			5 * time.Second, 10 * time.Second, 30 * time.Second,
			60 * time.Second, 120 * time.Second, 300 * time.Second,
		}
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 10
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, eris.Wrapf(err, "edgar: parse base url %s", opts.BaseURL)
	}

	burst := int(opts.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}

	return &HTTPClient{
		httpClient: &http.Client{Timeout: opts.Timeout},
		base:       base,
		indexPath:  opts.IndexPath,
		userAgent:  opts.UserAgent,
		sleep:      opts.Sleep,
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst),
		retry: resilience.RetryConfig{
			Backoffs:    opts.Backoffs,
			MaxAttempts: len(opts.Backoffs) + 1,
			// The ladder walks on every failure; sentinel bodies are only
			// detectable after a fetch succeeds.
			ShouldRetry: func(error) bool { return true },
			OnRetry:     resilience.RetryLogger("edgar", "get_buffer"),
		},
	}, nil
}

type fetchResult struct {
	body         []byte
	lastModified *time.Time
}

// GetBuffer fetches remotePath through the failure ladder.
func (c *HTTPClient) GetBuffer(ctx context.Context, remotePath string) ([]byte, *time.Time, error) {
	target, err := c.resolve(remotePath)
	if err != nil {
		return nil, nil, err
	}

	res, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (fetchResult, error) {
		return c.fetchOnce(ctx, target)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, eris.Wrapf(err, "edgar: fetch %s", remotePath)
		}
		// Ladder exhausted. Surrender with nothing so the caller can
		// record the miss and move on; hygiene re-fetches stragglers.
		zap.L().Error("fetch surrendered",
			zap.String("path", remotePath),
			zap.Error(err))
		return nil, nil, nil
	}

	if c.sleep > 0 {
		timer := time.NewTimer(c.sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, nil, ctx.Err()
		case <-timer.C:
		}
	}

	if err := CheckBody(res.body); err != nil {
		return nil, nil, err
	}

	zap.L().Debug("fetched remote path",
		zap.String("path", remotePath),
		zap.Int("bytes", len(res.body)))
	return res.body, res.lastModified, nil
}

func (c *HTTPClient) fetchOnce(ctx context.Context, target string) (fetchResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return fetchResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fetchResult{}, eris.Wrapf(err, "edgar: create request %s", target)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fetchResult{}, eris.Wrapf(err, "edgar: get %s", target)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 500 {
		return fetchResult{}, resilience.NewTransientError(
			eris.Errorf("edgar: server status %d for %s", resp.StatusCode, target),
			resp.StatusCode)
	}

	var res fetchResult
	if v := resp.Header.Get("Last-Modified"); v != "" {
		if t, perr := http.ParseTime(v); perr != nil {
			zap.L().Warn("unparseable last-modified header",
				zap.String("url", target),
				zap.String("value", v))
		} else {
			res.lastModified = &t
		}
	}

	res.body, err = io.ReadAll(resp.Body)
	if err != nil {
		return fetchResult{}, eris.Wrapf(err, "edgar: read body %s", target)
	}
	return res, nil
}

// resolve joins a remote path onto the configured base. Error pages aside,
// EDGAR paths may carry doubled slashes from directory joins; those are
// preserved because the host serves them.
func (c *HTTPClient) resolve(remotePath string) (string, error) {
	ref, err := url.Parse(strings.TrimLeft(remotePath, "/"))
	if err != nil {
		return "", eris.Wrapf(err, "edgar: parse path %s", remotePath)
	}
	return c.base.ResolveReference(ref).String(), nil
}
