package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/atlasdir/site-crawler/internal/crawler"
)

func TestStoreSaveAndFind(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := New()

	id, err := store.Save(ctx, crawler.WebsiteRecord{Domain: "example.com"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := store.FindByDomain(ctx, "example.com")
	require.NoError(t, err)
	require.Equal(t, id, got.ID)

	_, err = store.FindByDomain(ctx, "missing.example")
	require.ErrorIs(t, err, crawler.ErrRecordNotFound)
}

func TestStoreSaveReusesIDForDomain(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := New()

	first, err := store.Save(ctx, crawler.WebsiteRecord{Domain: "example.com"})
	require.NoError(t, err)
	second, err := store.Save(ctx, crawler.WebsiteRecord{Domain: "example.com"})
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestUpdateCrawlStatusUnionMergesTechnologies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := New()

	id, err := store.Save(ctx, crawler.WebsiteRecord{Domain: "example.com"})
	require.NoError(t, err)

	now := time.Now().UTC()
	err = store.UpdateCrawlStatus(ctx, id, crawler.CrawlStatusSuccess, crawler.CrawlStatusUpdate{
		Technologies: []string{"React", "nginx"},
		CrawledAt:    now,
	})
	require.NoError(t, err)

	// A later crawl detecting fewer technologies must not retract any.
	err = store.UpdateCrawlStatus(ctx, id, crawler.CrawlStatusSuccess, crawler.CrawlStatusUpdate{
		Technologies: []string{"jQuery"},
		CrawledAt:    now.Add(time.Minute),
	})
	require.NoError(t, err)

	got, err := store.FindByDomain(ctx, "example.com")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"React", "nginx", "jQuery"}, got.Technologies)
	require.Equal(t, now.Add(time.Minute), got.LastCrawledAt)
}

func TestUpdateCrawlStatusFailedKeepsMetadata(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := New()

	meta := crawler.PageMetadata{Title: "Example"}
	id, err := store.Save(ctx, crawler.WebsiteRecord{Domain: "example.com", Metadata: meta})
	require.NoError(t, err)

	now := time.Now().UTC()
	err = store.UpdateCrawlStatus(ctx, id, crawler.CrawlStatusFailed, crawler.CrawlStatusUpdate{
		CrawledAt: now,
		ErrorText: "connection refused",
	})
	require.NoError(t, err)

	got, err := store.FindByDomain(ctx, "example.com")
	require.NoError(t, err)
	require.Equal(t, crawler.CrawlStatusFailed, got.LastCrawlStatus)
	require.Equal(t, "connection refused", got.LastCrawlError)
	require.Equal(t, meta, got.Metadata, "failed crawl must not erase metadata")
	require.Equal(t, now, got.LastCrawledAt, "failed attempt is still attempted now")
}
