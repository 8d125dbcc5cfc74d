package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atlasdir/site-crawler/internal/metrics"
)

// Runner is the top-level crawl entry point consumed by the CLI and HTTP
// layers: single-URL crawl, independent batch crawl, bounded deep crawl,
// and the persistence step that reconciles results into website records.
type Runner struct {
	unit      *CrawlUnit
	cfg       Config
	store     RecordStore
	publisher Publisher
	topic     string
	clock     Clock
	ids       IDGenerator
	logger    *zap.Logger
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithRecordStore wires the website record store used by PersistResult.
func WithRecordStore(store RecordStore) RunnerOption {
	return func(r *Runner) { r.store = store }
}

// WithPublisher wires a crawl-completed event publisher.
func WithPublisher(p Publisher, topic string) RunnerOption {
	return func(r *Runner) {
		r.publisher = p
		r.topic = topic
	}
}

// WithClock overrides the time source.
func WithClock(c Clock) RunnerOption {
	return func(r *Runner) { r.clock = c }
}

// WithIDGenerator overrides the run ID source.
func WithIDGenerator(g IDGenerator) RunnerOption {
	return func(r *Runner) { r.ids = g }
}

// NewRunner constructs a Runner around a crawl unit.
func NewRunner(unit *CrawlUnit, cfg Config, logger *zap.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		unit:   unit,
		cfg:    cfg.WithDefaults(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CrawlOne crawls a single URL with no traversal: the refresh-one-site
// case.
func (r *Runner) CrawlOne(ctx context.Context, rawURL string) (CrawlResult, error) {
	ctx, cancel := r.runtimeCeiling(ctx)
	defer cancel()

	result, err := r.unit.Visit(ctx, rawURL)
	if err != nil {
		metrics.ObserveRun("one", "failed")
		return CrawlResult{}, err
	}
	result.RunID = r.newRunID()
	metrics.ObserveRun("one", "success")
	return result, nil
}

// CrawlBatch crawls each URL independently across the configured worker
// pool. One URL's failure never affects the others; the result always
// pairs successes with an explicit failure list keyed by URL.
func (r *Runner) CrawlBatch(ctx context.Context, urls []string) BatchResult {
	ctx, cancel := r.runtimeCeiling(ctx)
	defer cancel()

	res := BatchResult{RunID: r.newRunID()}
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Concurrency)

	for _, raw := range urls {
		if ctx.Err() != nil {
			// Cancellation is checked before each dispatch; what finished
			// stays in the result.
			break
		}
		g.Go(func() error {
			result, err := r.unit.Visit(ctx, raw)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed = append(res.Failed, CrawlFailure{URL: raw, Err: err})
				return nil
			}
			result.RunID = res.RunID
			res.Succeeded = append(res.Succeeded, result)
			return nil
		})
	}
	_ = g.Wait()

	outcome := "success"
	if len(res.Failed) > 0 {
		outcome = "partial"
	}
	metrics.ObserveRun("batch", outcome)
	return res
}

// DeepCrawl runs a bounded breadth-first traversal from seedURL. maxDepth
// below zero falls back to the configured default.
func (r *Runner) DeepCrawl(ctx context.Context, seedURL string, maxDepth int) (TraversalResult, error) {
	ctx, cancel := r.runtimeCeiling(ctx)
	defer cancel()

	if maxDepth < 0 {
		maxDepth = r.cfg.MaxDepth
	}

	// Each traversal owns its visited-set and frontier; concurrent deep
	// crawls never share state.
	traversal := NewTraversal(r.unit, maxDepth, r.logger)
	res, err := traversal.Run(ctx, seedURL)
	if err != nil {
		metrics.ObserveRun("deep", "failed")
		return TraversalResult{}, err
	}
	res.RunID = r.newRunID()
	for i := range res.Results {
		res.Results[i].RunID = res.RunID
	}

	outcome := "success"
	if res.Aborted {
		outcome = "aborted"
	} else if len(res.Failures) > 0 {
		outcome = "partial"
	}
	metrics.ObserveRun("deep", outcome)
	return res, nil
}

// PersistResult reconciles a crawl outcome into the website record with
// the given ID. On success the detected technologies are union-merged
// into the stored set (a later crawl that fails to re-detect never
// retracts), metadata is replaced, and the record is stamped success. A
// non-nil runErr instead stamps failed with the error cause. Both paths
// update lastCrawledAt: a failed attempt is still "attempted now". The
// crawl result stays with the caller even when the write fails.
func (r *Runner) PersistResult(ctx context.Context, websiteID string, result CrawlResult, runErr error) error {
	if r.store == nil {
		return fmt.Errorf("no record store configured")
	}

	now := r.now()
	status := CrawlStatusSuccess
	update := CrawlStatusUpdate{CrawledAt: now}
	if runErr != nil {
		status = CrawlStatusFailed
		update.ErrorText = runErr.Error()
	} else {
		update.Technologies = result.Technologies
		meta := result.Metadata
		update.Metadata = &meta
	}

	if err := r.store.UpdateCrawlStatus(ctx, websiteID, status, update); err != nil {
		return fmt.Errorf("update crawl status: %w", err)
	}

	r.publishEvent(ctx, CrawlEvent{
		RunID:        result.RunID,
		WebsiteID:    websiteID,
		Domain:       HostOf(result.URL),
		Status:       string(status),
		Pages:        1,
		Technologies: len(result.Technologies),
		Timestamp:    now,
	})
	return nil
}

func (r *Runner) publishEvent(ctx context.Context, event CrawlEvent) {
	if r.publisher == nil {
		return
	}
	if _, err := r.publisher.Publish(ctx, r.topic, event); err != nil {
		// Event delivery is best-effort; the record update already landed.
		r.logger.Warn("publish crawl event failed",
			zap.String("website_id", event.WebsiteID),
			zap.Error(err),
		)
	}
}

func (r *Runner) runtimeCeiling(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.MaxRuntime > 0 {
		return context.WithTimeout(ctx, r.cfg.MaxRuntime)
	}
	return context.WithCancel(ctx)
}

func (r *Runner) newRunID() string {
	if r.ids == nil {
		return ""
	}
	id, err := r.ids.NewID()
	if err != nil {
		r.logger.Warn("generate run id failed", zap.Error(err))
		return ""
	}
	return id
}

func (r *Runner) now() time.Time {
	if r.clock != nil {
		return r.clock.Now()
	}
	return time.Now().UTC()
}
