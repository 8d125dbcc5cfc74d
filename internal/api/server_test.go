package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/atlasdir/site-crawler/internal/crawler"
	storememory "github.com/atlasdir/site-crawler/internal/store/memory"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title>Acme Plumbing</title>
  <meta name="description" content="Pipes fixed fast.">
  <script src="https://example.com/react.production.min.js"></script>
</head>
<body><a href="/contact">Contact</a></body>
</html>`

type stubFetcher struct {
	err error
}

func (f *stubFetcher) Fetch(_ context.Context, url string) (crawler.Page, error) {
	if f.err != nil {
		return crawler.Page{}, f.err
	}
	return crawler.Page{
		URL:        url,
		FinalURL:   url,
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Server": {"nginx"}},
		Body:       []byte(samplePage),
	}, nil
}

func newTestServer(t *testing.T, fetcher crawler.Fetcher, store crawler.RecordStore) *Server {
	t.Helper()

	logger := zaptest.NewLogger(t)
	cfg := crawler.Config{}.WithDefaults()
	gate := crawler.NewRateGate(cfg.RateLimit, cfg.RateWindow)
	unit := crawler.NewCrawlUnit(gate, fetcher, logger)

	opts := []crawler.RunnerOption{}
	if store != nil {
		opts = append(opts, crawler.WithRecordStore(store))
	}
	runner := crawler.NewRunner(unit, cfg, logger, opts...)
	return NewServer(runner, store, logger)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubFetcher{}, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCrawlOne(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubFetcher{}, nil)
	body := strings.NewReader(`{"url": "https://example.com"}`)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/crawl", body))

	require.Equal(t, http.StatusOK, rec.Code)

	var result crawler.CrawlResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "https://example.com/", result.URL)
	assert.Equal(t, http.StatusOK, result.HTTPStatus)
	assert.Equal(t, "Acme Plumbing", result.Metadata.Title)
	assert.Contains(t, result.Technologies, "React")
	require.Len(t, result.Links, 1)
	assert.Equal(t, "https://example.com/contact", result.Links[0].URL)
}

func TestCrawlOneMissingURL(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubFetcher{}, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/crawl", strings.NewReader(`{}`)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCrawlOneInvalidURL(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubFetcher{}, nil)
	body := strings.NewReader(`{"url": "ftp://example.com"}`)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/crawl", body))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCrawlOneFetchTimeout(t *testing.T) {
	t.Parallel()

	fetchErr := &crawler.FetchError{URL: "https://slow.example/", Kind: crawler.FetchTimeout}
	srv := newTestServer(t, &stubFetcher{err: fetchErr}, nil)
	body := strings.NewReader(`{"url": "https://slow.example"}`)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/crawl", body))

	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestCrawlOnePersists(t *testing.T) {
	t.Parallel()

	store := storememory.New()
	id, err := store.Save(context.Background(), crawler.WebsiteRecord{Domain: "example.com"})
	require.NoError(t, err)

	srv := newTestServer(t, &stubFetcher{}, store)
	body := strings.NewReader(`{"url": "https://example.com", "website_id": "` + id + `"}`)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/crawl", body))

	require.Equal(t, http.StatusOK, rec.Code)

	record, err := store.FindByDomain(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, crawler.CrawlStatusSuccess, record.LastCrawlStatus)
	assert.Contains(t, record.Technologies, "React")
	assert.WithinDuration(t, time.Now().UTC(), record.LastCrawledAt, time.Minute)
}

func TestCrawlBatch(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubFetcher{}, nil)
	body := strings.NewReader(`{"urls": ["https://a.example", "https://b.example"]}`)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/crawl/batch", body))

	require.Equal(t, http.StatusOK, rec.Code)

	var res crawler.BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Len(t, res.Succeeded, 2)
	assert.Empty(t, res.Failed)
}

func TestCrawlDeep(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubFetcher{}, nil)
	body := strings.NewReader(`{"url": "https://example.com", "max_depth": 1}`)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/crawl/deep", body))

	require.Equal(t, http.StatusOK, rec.Code)

	var res crawler.TraversalResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	// Seed plus the /contact link it references.
	assert.Len(t, res.Results, 2)
	assert.False(t, res.Aborted)
}

func TestGetSite(t *testing.T) {
	t.Parallel()

	store := storememory.New()
	_, err := store.Save(context.Background(), crawler.WebsiteRecord{
		Domain:       "example.com",
		Technologies: []string{"WordPress"},
	})
	require.NoError(t, err)

	srv := newTestServer(t, &stubFetcher{}, store)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sites/example.com", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var record crawler.WebsiteRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, "example.com", record.Domain)
	assert.Equal(t, []string{"WordPress"}, record.Technologies)
}

func TestGetSiteNotFound(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubFetcher{}, storememory.New())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sites/missing.example", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
}
