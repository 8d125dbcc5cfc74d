package crawler

import (
	"context"
	"time"
)

// Fetcher performs a single HTTP GET against a normalized URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// Renderer produces a DOM snapshot of a page with JavaScript executed.
type Renderer interface {
	Render(ctx context.Context, rawURL string) (Page, error)
	Close(ctx context.Context) error
}

// Detector decides whether a fetched page warrants a JS-rendered re-fetch.
type Detector interface {
	NeedsJS(ctx context.Context, page Page) bool
}

// RecordStore persists website records keyed by domain.
type RecordStore interface {
	FindByDomain(ctx context.Context, domain string) (WebsiteRecord, error)
	Save(ctx context.Context, record WebsiteRecord) (string, error)
	UpdateCrawlStatus(ctx context.Context, id string, status CrawlStatus, update CrawlStatusUpdate) error
}

// BlobStore writes raw page snapshots and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes crawl-completed events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests used for snapshot object naming.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces crawl run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// PageVisitor visits one URL and returns its result. CrawlUnit is the
// production implementation; the traversal depends only on this.
type PageVisitor interface {
	Visit(ctx context.Context, rawURL string) (CrawlResult, error)
}
