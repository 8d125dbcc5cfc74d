package crawler

import (
	"errors"
	"fmt"
)

// ErrInvalidURL marks input that could not be normalized. It fails before
// the rate gate or the network are touched.
var ErrInvalidURL = errors.New("invalid url")

// ErrRecordNotFound is returned by RecordStore lookups that match nothing.
var ErrRecordNotFound = errors.New("website record not found")

// FetchErrorKind classifies a failed fetch.
type FetchErrorKind string

// Fetch failure kinds. All are per-page and non-fatal to a multi-page run.
const (
	FetchTimeout          FetchErrorKind = "timeout"
	FetchConnectionFailed FetchErrorKind = "connection_failed"
	FetchTooManyRedirects FetchErrorKind = "too_many_redirects"
	FetchInvalidResponse  FetchErrorKind = "invalid_response"
)

// FetchError is a typed fetch failure attributed to a URL.
type FetchError struct {
	URL  string
	Kind FetchErrorKind
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// CrawlError wraps any failure of a single page visit with the URL that
// caused it.
type CrawlError struct {
	URL   string
	Cause error
}

func (e *CrawlError) Error() string {
	return fmt.Sprintf("crawl %s: %v", e.URL, e.Cause)
}

func (e *CrawlError) Unwrap() error {
	return e.Cause
}

// FetchKind extracts the FetchErrorKind from err, if any.
func FetchKind(err error) (FetchErrorKind, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}
