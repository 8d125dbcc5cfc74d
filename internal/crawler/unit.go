package crawler

import (
	"context"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/atlasdir/site-crawler/internal/metrics"
)

// CrawlUnit orchestrates a single URL: normalize, rate-gate, fetch, parse
// once, extract metadata and links. Retries are the caller's policy; the
// unit reports each failure exactly once as a *CrawlError.
type CrawlUnit struct {
	gate          *RateGate
	fetcher       Fetcher
	renderer      Renderer
	detector      Detector
	archive       BlobStore
	hasher        Hasher
	signatures    []TechSignature
	archivePrefix string
	logger        *zap.Logger
}

// UnitOption customizes a CrawlUnit.
type UnitOption func(*CrawlUnit)

// WithRenderer enables JS-render escalation for pages the detector flags.
func WithRenderer(r Renderer, d Detector) UnitOption {
	return func(u *CrawlUnit) {
		u.renderer = r
		u.detector = d
	}
}

// WithSignatures overrides the technology fingerprint table.
func WithSignatures(signatures []TechSignature) UnitOption {
	return func(u *CrawlUnit) {
		if len(signatures) > 0 {
			u.signatures = signatures
		}
	}
}

// WithArchive enables content-addressed snapshot archiving of fetched
// bodies. Archive failures are logged, never fatal to a visit.
func WithArchive(store BlobStore, hasher Hasher, prefix string) UnitOption {
	return func(u *CrawlUnit) {
		u.archive = store
		u.hasher = hasher
		u.archivePrefix = prefix
	}
}

// NewCrawlUnit constructs a CrawlUnit.
func NewCrawlUnit(gate *RateGate, fetcher Fetcher, logger *zap.Logger, opts ...UnitOption) *CrawlUnit {
	u := &CrawlUnit{
		gate:       gate,
		fetcher:    fetcher,
		signatures: DefaultTechSignatures(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Visit crawls one URL and returns a fully populated CrawlResult. Input
// that fails normalization is rejected before the rate gate is touched.
// A page that fetches but fails to parse is still "visited": the result
// carries the HTTP status with empty extraction.
func (u *CrawlUnit) Visit(ctx context.Context, rawURL string) (CrawlResult, error) {
	normalized, err := Normalize(rawURL)
	if err != nil {
		return CrawlResult{}, &CrawlError{URL: rawURL, Cause: err}
	}

	if err := u.gate.Acquire(ctx); err != nil {
		return CrawlResult{}, &CrawlError{URL: normalized, Cause: err}
	}

	page, err := u.fetcher.Fetch(ctx, normalized)
	if err != nil {
		if kind, ok := FetchKind(err); ok {
			metrics.ObserveFetchError(string(kind))
		}
		return CrawlResult{}, &CrawlError{URL: normalized, Cause: err}
	}

	page = u.maybeRender(ctx, normalized, page)

	result := CrawlResult{
		URL:         normalized,
		HTTPStatus:  page.StatusCode,
		FetchedAt:   time.Now().UTC(),
		Rendered:    page.Rendered,
		SnapshotURI: u.maybeArchive(ctx, normalized, page),
	}

	doc, err := ParseDocument(page.Body)
	if err != nil {
		// Malformed HTML degrades to empty extraction, not a failed visit.
		u.logger.Debug("parse failed, returning empty extraction",
			zap.String("url", normalized),
			zap.Error(err),
		)
		metrics.ObservePage(HostOf(normalized), page.StatusCode)
		return result, nil
	}

	result.Metadata = ExtractMetadata(doc, normalized)
	result.Technologies = DetectTechnologies(page.Headers, doc, u.signatures)
	result.Links = ExtractLinks(doc, normalized)

	for _, tech := range result.Technologies {
		metrics.ObserveTechnology(tech)
	}
	metrics.ObservePage(HostOf(normalized), page.StatusCode)

	return result, nil
}

func (u *CrawlUnit) maybeRender(ctx context.Context, normalized string, page Page) Page {
	if u.renderer == nil || u.detector == nil || !u.detector.NeedsJS(ctx, page) {
		return page
	}
	// Rendered fetches consume the same global budget as plain ones.
	if err := u.gate.Acquire(ctx); err != nil {
		return page
	}
	rendered, err := u.renderer.Render(ctx, normalized)
	if err != nil {
		u.logger.Warn("render escalation failed",
			zap.String("url", normalized),
			zap.Error(err),
		)
		return page
	}
	metrics.ObserveRenderPromotion()
	if rendered.StatusCode == 0 {
		rendered.StatusCode = page.StatusCode
	}
	return rendered
}

// maybeArchive stores the raw body under a content-hash name and returns
// the snapshot URI, or "" when archiving is off or fails.
func (u *CrawlUnit) maybeArchive(ctx context.Context, normalized string, page Page) string {
	if u.archive == nil || u.hasher == nil || len(page.Body) == 0 {
		return ""
	}
	hash, err := u.hasher.Hash(page.Body)
	if err != nil {
		u.logger.Warn("hash snapshot failed", zap.String("url", normalized), zap.Error(err))
		return ""
	}
	uri, err := u.archive.PutObject(ctx, u.archivePath(hash), "text/html; charset=utf-8", page.Body)
	if err != nil {
		u.logger.Warn("archive snapshot failed", zap.String("url", normalized), zap.Error(err))
		return ""
	}
	return uri
}

func (u *CrawlUnit) archivePath(hash string) string {
	name := fmt.Sprintf("%s.html", hash)
	if u.archivePrefix == "" {
		return name
	}
	return path.Join(u.archivePrefix, name)
}
