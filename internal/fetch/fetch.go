package fetch

import (
	"context"
	"io"
)

// Fetcher defines the interface for downloading remote data. Index mirror
// seeding picks an implementation by URL scheme: ftp:// mirrors use the FTP
// fetcher, everything else goes over HTTP.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}
