package crawler

import (
	"encoding/json"
	"net/http"
	"time"
)

// CrawlStatus is the outcome persisted on a website record after a crawl.
type CrawlStatus string

// Crawl status values stored in the website record store.
const (
	CrawlStatusSuccess CrawlStatus = "success"
	CrawlStatusFailed  CrawlStatus = "failed"
	CrawlStatusPartial CrawlStatus = "partial"
)

// PageMetadata holds the structured metadata extracted from a single page.
// A missing tag yields an empty string, never an error.
type PageMetadata struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	Keywords      string `json:"keywords"`
	CanonicalURL  string `json:"canonical_url"`
	Viewport      string `json:"viewport"`
	OGTitle       string `json:"og_title"`
	OGDescription string `json:"og_description"`
	OGImage       string `json:"og_image"`
}

// LinkRef is a single anchor discovered on a page. URL is normalized and
// absolute. External is true when the resolved host differs from the host
// of the page the link was found on.
type LinkRef struct {
	URL        string `json:"url"`
	AnchorText string `json:"anchor_text"`
	External   bool   `json:"external"`
}

// CrawlResult is produced per visited URL. It is immutable once constructed;
// ownership passes from CrawlUnit to the traversal to the runner.
type CrawlResult struct {
	RunID        string       `json:"run_id,omitempty"`
	URL          string       `json:"url"`
	HTTPStatus   int          `json:"http_status"`
	Metadata     PageMetadata `json:"metadata"`
	Technologies []string     `json:"technologies"`
	Links        []LinkRef    `json:"links"`
	Depth        int          `json:"depth"`
	FetchedAt    time.Time    `json:"fetched_at"`
	Rendered     bool         `json:"rendered,omitempty"`
	SnapshotURI  string       `json:"snapshot_uri,omitempty"`
}

// CrawlFailure attributes an error to the URL that caused it.
type CrawlFailure struct {
	URL string `json:"url"`
	Err error  `json:"-"`
}

// ErrorText returns the failure cause as a string for serialization.
func (f CrawlFailure) ErrorText() string {
	if f.Err == nil {
		return ""
	}
	return f.Err.Error()
}

// MarshalJSON flattens the wrapped error into its text form.
func (f CrawlFailure) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		URL   string `json:"url"`
		Error string `json:"error,omitempty"`
	}{URL: f.URL, Error: f.ErrorText()})
}

// BatchResult collects the outcome of a batch crawl. One URL's failure
// never affects the others.
type BatchResult struct {
	RunID     string         `json:"run_id,omitempty"`
	Succeeded []CrawlResult  `json:"succeeded"`
	Failed    []CrawlFailure `json:"failed"`
}

// TraversalResult is the outcome of a bounded breadth-first crawl.
// Aborted is set when the run was cut short by cancellation; the results
// collected up to that point are still usable.
type TraversalResult struct {
	RunID    string         `json:"run_id,omitempty"`
	Results  []CrawlResult  `json:"results"`
	Failures []CrawlFailure `json:"failures"`
	Aborted  bool           `json:"aborted"`
}

// Page is the raw outcome of a single fetch: status, headers, and body.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Rendered   bool
}

// WebsiteRecord is the directory entity the crawler reconciles results
// into. The crawler mutates it only through RecordStore.UpdateCrawlStatus.
type WebsiteRecord struct {
	ID              string       `json:"id"`
	Domain          string       `json:"domain"`
	Technologies    []string     `json:"technologies"`
	Metadata        PageMetadata `json:"metadata"`
	LastCrawledAt   time.Time    `json:"last_crawled_at"`
	LastCrawlStatus CrawlStatus  `json:"last_crawl_status"`
	LastCrawlError  string       `json:"last_crawl_error,omitempty"`
}

// CrawlStatusUpdate carries the fields UpdateCrawlStatus reconciles into a
// record. Technologies are union-merged with the stored set; a nil Metadata
// leaves the stored metadata untouched.
type CrawlStatusUpdate struct {
	Technologies []string
	Metadata     *PageMetadata
	CrawledAt    time.Time
	ErrorText    string
}

// CrawlEvent is published after a crawl result has been persisted.
type CrawlEvent struct {
	RunID        string    `json:"run_id"`
	WebsiteID    string    `json:"website_id"`
	Domain       string    `json:"domain"`
	Status       string    `json:"status"`
	Pages        int       `json:"pages"`
	Technologies int       `json:"technologies"`
	Timestamp    time.Time `json:"timestamp"`
}
