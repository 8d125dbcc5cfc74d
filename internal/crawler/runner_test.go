package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	publishermemory "github.com/atlasdir/site-crawler/internal/publisher/memory"
)

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }

type sequenceIDs struct {
	mu sync.Mutex
	n  int
}

func (g *sequenceIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("run-%d", g.n), nil
}

type recordedUpdate struct {
	ID     string
	Status CrawlStatus
	Update CrawlStatusUpdate
}

type stubRecordStore struct {
	mu      sync.Mutex
	updates []recordedUpdate
	err     error
}

func (s *stubRecordStore) FindByDomain(_ context.Context, _ string) (WebsiteRecord, error) {
	return WebsiteRecord{}, ErrRecordNotFound
}

func (s *stubRecordStore) Save(_ context.Context, _ WebsiteRecord) (string, error) {
	return "", errors.New("not implemented")
}

func (s *stubRecordStore) UpdateCrawlStatus(_ context.Context, id string, status CrawlStatus, update CrawlStatusUpdate) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, recordedUpdate{ID: id, Status: status, Update: update})
	return nil
}

func newTestRunner(fetcher Fetcher, opts ...RunnerOption) *Runner {
	cfg := Config{Concurrency: 2}.WithDefaults()
	unit := newTestUnit(fetcher)
	base := []RunnerOption{WithIDGenerator(&sequenceIDs{})}
	return NewRunner(unit, cfg, zap.NewNop(), append(base, opts...)...)
}

func TestCrawlOneStampsRunID(t *testing.T) {
	t.Parallel()

	fetcher := new(mockFetcher)
	fetcher.On("Fetch", mock.Anything, "https://acme.example/").
		Return(htmlPage("https://acme.example/", unitTestHTML), nil).Once()

	runner := newTestRunner(fetcher)
	result, err := runner.CrawlOne(context.Background(), "https://acme.example/")
	require.NoError(t, err)
	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, "Acme", result.Metadata.Title)
}

func TestCrawlBatchIsolatesFailures(t *testing.T) {
	t.Parallel()

	fetchErr := &FetchError{URL: "https://down.example/", Kind: FetchConnectionFailed}
	fetcher := new(mockFetcher)
	fetcher.On("Fetch", mock.Anything, "https://a.example/").
		Return(htmlPage("https://a.example/", unitTestHTML), nil).Once()
	fetcher.On("Fetch", mock.Anything, "https://down.example/").
		Return(Page{}, fetchErr).Once()
	fetcher.On("Fetch", mock.Anything, "https://b.example/").
		Return(htmlPage("https://b.example/", unitTestHTML), nil).Once()

	runner := newTestRunner(fetcher)
	res := runner.CrawlBatch(context.Background(), []string{
		"https://a.example/",
		"https://down.example/",
		"https://b.example/",
	})

	assert.Len(t, res.Succeeded, 2)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "https://down.example/", res.Failed[0].URL)

	for _, r := range res.Succeeded {
		assert.Equal(t, res.RunID, r.RunID)
	}
	fetcher.AssertExpectations(t)
}

func TestDeepCrawlStampsRunID(t *testing.T) {
	t.Parallel()

	fetcher := new(mockFetcher)
	fetcher.On("Fetch", mock.Anything, "https://acme.example/").
		Return(htmlPage("https://acme.example/", `<html><body><a href="/about">a</a></body></html>`), nil).Once()
	fetcher.On("Fetch", mock.Anything, "https://acme.example/about").
		Return(htmlPage("https://acme.example/about", "<html></html>"), nil).Once()

	runner := newTestRunner(fetcher)
	res, err := runner.DeepCrawl(context.Background(), "https://acme.example/", 1)
	require.NoError(t, err)

	require.Len(t, res.Results, 2)
	assert.NotEmpty(t, res.RunID)
	for _, r := range res.Results {
		assert.Equal(t, res.RunID, r.RunID)
	}
}

func TestDeepCrawlNegativeDepthUsesDefault(t *testing.T) {
	t.Parallel()

	fetcher := new(mockFetcher)
	fetcher.On("Fetch", mock.Anything, "https://acme.example/").
		Return(htmlPage("https://acme.example/", "<html></html>"), nil).Once()

	runner := newTestRunner(fetcher)
	res, err := runner.DeepCrawl(context.Background(), "https://acme.example/", -1)
	require.NoError(t, err)
	assert.Len(t, res.Results, 1)
}

func TestPersistResultSuccess(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	store := &stubRecordStore{}
	pub := publishermemory.New()

	runner := newTestRunner(new(mockFetcher),
		WithRecordStore(store),
		WithPublisher(pub, "crawl-events"),
		WithClock(fixedClock{t: now}),
	)

	result := CrawlResult{
		RunID:        "run-9",
		URL:          "https://acme.example/",
		HTTPStatus:   http.StatusOK,
		Metadata:     PageMetadata{Title: "Acme"},
		Technologies: []string{"React", "nginx"},
	}

	require.NoError(t, runner.PersistResult(context.Background(), "site-1", result, nil))

	require.Len(t, store.updates, 1)
	up := store.updates[0]
	assert.Equal(t, "site-1", up.ID)
	assert.Equal(t, CrawlStatusSuccess, up.Status)
	assert.Equal(t, []string{"React", "nginx"}, up.Update.Technologies)
	require.NotNil(t, up.Update.Metadata)
	assert.Equal(t, "Acme", up.Update.Metadata.Title)
	assert.Equal(t, now, up.Update.CrawledAt)
	assert.Empty(t, up.Update.ErrorText)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	event, ok := msgs[0].Payload.(CrawlEvent)
	require.True(t, ok)
	assert.Equal(t, "site-1", event.WebsiteID)
	assert.Equal(t, "acme.example", event.Domain)
	assert.Equal(t, "success", event.Status)
}

func TestPersistResultFailureStillStampsTime(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	store := &stubRecordStore{}

	runner := newTestRunner(new(mockFetcher),
		WithRecordStore(store),
		WithClock(fixedClock{t: now}),
	)

	runErr := &CrawlError{
		URL:   "https://down.example/",
		Cause: &FetchError{URL: "https://down.example/", Kind: FetchTimeout},
	}
	require.NoError(t, runner.PersistResult(context.Background(), "site-2", CrawlResult{URL: "https://down.example/"}, runErr))

	require.Len(t, store.updates, 1)
	up := store.updates[0]
	assert.Equal(t, CrawlStatusFailed, up.Status)
	assert.Empty(t, up.Update.Technologies)
	assert.Nil(t, up.Update.Metadata)
	assert.Equal(t, now, up.Update.CrawledAt)
	assert.Contains(t, up.Update.ErrorText, "timeout")
}

func TestPersistResultStoreErrorPropagates(t *testing.T) {
	t.Parallel()

	store := &stubRecordStore{err: errors.New("connection reset")}
	runner := newTestRunner(new(mockFetcher), WithRecordStore(store))

	err := runner.PersistResult(context.Background(), "site-3", CrawlResult{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestPersistResultWithoutStore(t *testing.T) {
	t.Parallel()

	runner := newTestRunner(new(mockFetcher))
	err := runner.PersistResult(context.Background(), "site-4", CrawlResult{}, nil)
	require.Error(t, err)
}

func TestPersistResultPublishFailureNotFatal(t *testing.T) {
	t.Parallel()

	store := &stubRecordStore{}
	runner := newTestRunner(new(mockFetcher),
		WithRecordStore(store),
		WithPublisher(failingPublisher{}, "crawl-events"),
	)

	require.NoError(t, runner.PersistResult(context.Background(), "site-5", CrawlResult{URL: "https://acme.example/"}, nil))
	assert.Len(t, store.updates, 1)
}

type failingPublisher struct{}

func (failingPublisher) Publish(_ context.Context, _ string, _ any) (string, error) {
	return "", errors.New("broker unavailable")
}
