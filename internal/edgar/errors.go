package edgar

import (
	"bytes"
	"errors"

	"github.com/rotisserie/eris"
)

// EDGAR serves recognisable HTML or XML bodies instead of HTTP errors for
// throttled, missing and denied paths. Fetches inspect the payload for these
// fragments; hygiene sweeps look for the same fragments in stored objects.
const (
	SentinelRateLimited  = "SEC.gov | Request Rate Threshold Exceeded"
	SentinelNotFound     = "SEC.gov | File Not Found Error Alert (404)"
	SentinelAccessDenied = "<Error><Code>AccessDenied</Code><Message>Access Denied</Message><RequestId>"
)

var (
	// ErrRateLimited means the body is SEC's request-rate threshold page.
	ErrRateLimited = eris.New("edgar: request rate threshold exceeded")

	// ErrNotFound means the body is SEC's 404 alert page.
	ErrNotFound = eris.New("edgar: file not found alert")

	// ErrAccessDenied means the body is an access-denied XML document.
	ErrAccessDenied = eris.New("edgar: access denied")
)

// IsSentinel reports whether err is one of the typed sentinel-page errors,
// as opposed to a transport or context failure.
func IsSentinel(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAccessDenied)
}

// CheckBody matches a fetched payload against the sentinel fragments and
// returns the typed error for the first one found.
func CheckBody(body []byte) error {
	switch {
	case bytes.Contains(body, []byte(SentinelRateLimited)):
		return ErrRateLimited
	case bytes.Contains(body, []byte(SentinelNotFound)):
		return ErrNotFound
	case bytes.Contains(body, []byte(SentinelAccessDenied)):
		return ErrAccessDenied
	}
	return nil
}
