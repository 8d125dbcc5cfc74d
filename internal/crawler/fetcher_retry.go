package crawler

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"

	"go.uber.org/zap"
)

// RetryFetcher decorates a Fetcher with jittered exponential backoff on
// transient failures. Retries run below the CrawlUnit, so the visited-once
// guarantee of a traversal is unaffected. MaxRetries zero disables it.
type RetryFetcher struct {
	base       Fetcher
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	logger     *zap.Logger
}

// NewRetryFetcher wraps base with up to maxRetries additional attempts.
func NewRetryFetcher(base Fetcher, maxRetries int, logger *zap.Logger) *RetryFetcher {
	return &RetryFetcher{
		base:       base,
		maxRetries: maxRetries,
		baseDelay:  250 * time.Millisecond,
		maxDelay:   5 * time.Second,
		logger:     logger,
	}
}

// Fetch attempts the fetch, retrying transient failures until the retry
// budget or the context runs out.
func (f *RetryFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		page, err := f.base.Fetch(ctx, rawURL)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if attempt >= f.maxRetries || !retryable(err) {
			return Page{}, lastErr
		}
		f.logger.Debug("retrying fetch",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return Page{}, ctx.Err()
		case <-time.After(f.backoff(attempt)):
		}
	}
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	kind, ok := FetchKind(err)
	if !ok {
		return false
	}
	return kind == FetchTimeout || kind == FetchConnectionFailed
}

func (f *RetryFetcher) backoff(attempt int) time.Duration {
	delay := float64(f.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(f.maxDelay) {
		delay = float64(f.maxDelay)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
