package crawler

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// acceptHeader favors HTML responses; everything else is best-effort.
const acceptHeader = "text/html,application/xhtml+xml;q=0.9,*/*;q=0.1"

var errRedirectCap = errors.New("redirect cap exceeded")

// CollyFetcher implements Fetcher using the Colly collector. Each Fetch
// clones the base collector so concurrent fetches never share callback
// state. It performs no retries and mutates no shared state.
type CollyFetcher struct {
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// NewCollyFetcher constructs a configured Colly-based Fetcher.
func NewCollyFetcher(cfg Config, logger *zap.Logger) (*CollyFetcher, error) {
	cfg = cfg.WithDefaults()

	base := colly.NewCollector(
		colly.Async(false),
		colly.UserAgent(cfg.UserAgent),
	)
	// Revisit bookkeeping belongs to the traversal's visited-set, not the
	// transport layer.
	base.AllowURLRevisit = true
	base.ParseHTTPErrorResponse = true
	base.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.RequestTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        128,
		MaxIdleConnsPerHost: 32,
		MaxConnsPerHost:     cfg.Concurrency * 2,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
	})
	base.SetRequestTimeout(cfg.RequestTimeout)

	maxRedirects := cfg.MaxRedirects
	base.SetRedirectHandler(func(_ *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return errRedirectCap
		}
		return nil
	})

	return &CollyFetcher{
		baseCollector: base,
		logger:        logger,
	}, nil
}

// Fetch retrieves a single page. The returned error, when non-nil, is a
// *FetchError classifying the failure.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	collector := f.baseCollector.Clone()

	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() {
			resultCh <- res
		})
	}

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", acceptHeader)
	})

	collector.OnResponse(func(r *colly.Response) {
		headers := http.Header{}
		if r.Headers != nil {
			for k, v := range *r.Headers {
				cp := make([]string, len(v))
				copy(cp, v)
				headers[k] = cp
			}
		}
		page := Page{
			URL:        rawURL,
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte{}, r.Body...),
		}
		send(fetchResult{page: page})
	})

	collector.OnError(func(_ *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		send(fetchResult{err: err})
	})

	if err := collector.Visit(rawURL); err != nil {
		return Page{}, classifyFetchError(rawURL, err)
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return Page{}, ctx.Err()
		}
		if res.err != nil {
			return Page{}, classifyFetchError(rawURL, res.err)
		}
		return res.page, nil
	default:
		return Page{}, &FetchError{
			URL:  rawURL,
			Kind: FetchInvalidResponse,
			Err:  errors.New("fetch produced no response"),
		}
	}
}

type fetchResult struct {
	page Page
	err  error
}

func classifyFetchError(rawURL string, err error) *FetchError {
	kind := FetchConnectionFailed
	switch {
	case errors.Is(err, errRedirectCap):
		kind = FetchTooManyRedirects
	case errors.Is(err, context.DeadlineExceeded):
		kind = FetchTimeout
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			kind = FetchTimeout
		}
	}
	return &FetchError{URL: rawURL, Kind: kind, Err: err}
}
