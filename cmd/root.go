// Package cmd defines the CLI commands for the sitecrawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	pubsubapi "cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	archivegcs "github.com/atlasdir/site-crawler/internal/archive/gcs"
	archivelocal "github.com/atlasdir/site-crawler/internal/archive/local"
	archivememory "github.com/atlasdir/site-crawler/internal/archive/memory"
	"github.com/atlasdir/site-crawler/internal/clock/system"
	"github.com/atlasdir/site-crawler/internal/config"
	"github.com/atlasdir/site-crawler/internal/crawler"
	"github.com/atlasdir/site-crawler/internal/hash/sha256"
	"github.com/atlasdir/site-crawler/internal/id/uuid"
	"github.com/atlasdir/site-crawler/internal/logging"
	pubsubpublisher "github.com/atlasdir/site-crawler/internal/publisher/pubsub"
	storememory "github.com/atlasdir/site-crawler/internal/store/memory"
	storepostgres "github.com/atlasdir/site-crawler/internal/store/postgres"
)

var cfgFile string

// runtime bundles the wired service components a command needs.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
	runner *crawler.Runner
	store  crawler.RecordStore

	closers []func()
}

// Close releases runtime resources in reverse construction order.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	_ = rt.logger.Sync()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sitecrawler",
		Short: "Crawls business websites and extracts directory metadata",
		Long: `sitecrawler keeps the business directory's website profiles fresh.
It fetches pages politely under a global rate budget, extracts page
metadata and detected technologies, and reconciles the findings into
website records.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults plus SITECRAWLER_* env vars)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// buildRuntime loads configuration and wires the crawl pipeline.
func buildRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	rt := &runtime{cfg: cfg, logger: logger}

	engineCfg := cfg.CrawlerConfig()
	if err := engineCfg.Validate(); err != nil {
		return nil, err
	}

	gate := crawler.NewRateGate(engineCfg.RateLimit, engineCfg.RateWindow)

	var fetcher crawler.Fetcher
	collyFetcher, err := crawler.NewCollyFetcher(engineCfg, logger.Named("fetcher"))
	if err != nil {
		return nil, fmt.Errorf("init fetcher: %w", err)
	}
	fetcher = collyFetcher
	if engineCfg.MaxRetries > 0 {
		fetcher = crawler.NewRetryFetcher(fetcher, engineCfg.MaxRetries, logger.Named("retry"))
	}

	unitOpts := []crawler.UnitOption{}

	if engineCfg.RenderEnabled {
		renderer, err := crawler.NewChromedpRenderer(engineCfg, logger.Named("renderer"))
		switch {
		case err == nil:
			detector := crawler.NewHeuristicDetector(engineCfg.DetectorMinHTMLBytes, engineCfg.DetectorKeywords)
			unitOpts = append(unitOpts, crawler.WithRenderer(renderer, detector))
			rt.closers = append(rt.closers, func() { _ = renderer.Close(context.Background()) })
		case errors.Is(err, crawler.ErrRendererDisabled):
			logger.Warn("renderer disabled despite feature flag; crawling without escalation")
		default:
			return nil, fmt.Errorf("init renderer: %w", err)
		}
	}

	archive, err := buildArchive(ctx, cfg, rt)
	if err != nil {
		return nil, err
	}
	if archive != nil {
		unitOpts = append(unitOpts, crawler.WithArchive(archive, sha256.New(), cfg.Archive.Prefix))
	}

	unit := crawler.NewCrawlUnit(gate, fetcher, logger.Named("unit"), unitOpts...)

	runnerOpts := []crawler.RunnerOption{
		crawler.WithClock(system.New()),
		crawler.WithIDGenerator(uuid.New()),
	}

	store, err := buildStore(ctx, cfg, rt)
	if err != nil {
		return nil, err
	}
	rt.store = store
	runnerOpts = append(runnerOpts, crawler.WithRecordStore(store))

	if cfg.PubSub.ProjectID != "" {
		client, err := pubsubapi.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("init pubsub client: %w", err)
		}
		publisher, err := pubsubpublisher.New(client)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() { _ = publisher.Close() })
		runnerOpts = append(runnerOpts, crawler.WithPublisher(publisher, cfg.PubSub.TopicName))
	}

	rt.runner = crawler.NewRunner(unit, engineCfg, logger.Named("runner"), runnerOpts...)
	return rt, nil
}

func buildStore(ctx context.Context, cfg config.Config, rt *runtime) (crawler.RecordStore, error) {
	if cfg.DB.DSN == "" {
		return storememory.New(), nil
	}
	store, err := storepostgres.New(ctx, storepostgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: int32(cfg.DB.MaxConns),
		MinConns: int32(cfg.DB.MinConns),
	})
	if err != nil {
		return nil, fmt.Errorf("init postgres store: %w", err)
	}
	rt.closers = append(rt.closers, store.Close)
	return store, nil
}

func buildArchive(ctx context.Context, cfg config.Config, rt *runtime) (crawler.BlobStore, error) {
	switch cfg.Archive.Backend {
	case "", "none":
		return nil, nil
	case "memory":
		return archivememory.NewBlobStore(), nil
	case "local":
		store, err := archivelocal.New(archivelocal.Config{BaseDir: cfg.Archive.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local archive: %w", err)
		}
		return store, nil
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = client.Close() })
		store, err := archivegcs.New(client, archivegcs.Config{Bucket: cfg.Archive.GCSBucket})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Archive.Backend)
	}
}
