// Package metrics exposes Prometheus collectors for the crawl engine.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal            *prometheus.CounterVec
	fetchErrorsTotal      *prometheus.CounterVec
	crawlRunsTotal        *prometheus.CounterVec
	technologiesTotal     *prometheus.CounterVec
	rateGateDelaySeconds  prometheus.Histogram
	renderPromotionsTotal prometheus.Counter

	once sync.Once
)

// Init registers the collectors with the default registry. It is safe to
// call multiple times; every recording helper calls it first.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitecrawler_pages_total",
				Help: "Total pages visited, labeled by site and HTTP status.",
			},
			[]string{"site", "status"},
		)

		fetchErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitecrawler_fetch_errors_total",
				Help: "Total failed fetches, labeled by failure kind.",
			},
			[]string{"kind"},
		)

		crawlRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitecrawler_crawl_runs_total",
				Help: "Total crawl runs, labeled by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		)

		technologiesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitecrawler_technologies_detected_total",
				Help: "Total technology fingerprint hits, labeled by technology.",
			},
			[]string{"technology"},
		)

		rateGateDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sitecrawler_rate_gate_delay_seconds",
				Help:    "Histogram of time spent waiting on the rate gate.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
		)

		renderPromotionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sitecrawler_render_promotions_total",
				Help: "Total pages escalated to the JS renderer.",
			},
		)
	})
}

// Handler returns an http.Handler exposing the Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage increments the page counter for a visited URL.
func ObservePage(site string, status int) {
	Init()
	pagesTotal.WithLabelValues(site, strconv.Itoa(status)).Inc()
}

// ObserveFetchError increments the fetch error counter for the given kind.
func ObserveFetchError(kind string) {
	Init()
	fetchErrorsTotal.WithLabelValues(kind).Inc()
}

// ObserveRun increments the run counter for a crawl mode and outcome.
func ObserveRun(mode, outcome string) {
	Init()
	crawlRunsTotal.WithLabelValues(mode, outcome).Inc()
}

// ObserveTechnology increments the fingerprint counter for a technology.
func ObserveTechnology(name string) {
	Init()
	technologiesTotal.WithLabelValues(name).Inc()
}

// ObserveRateGateDelay records time spent blocked on the rate gate.
func ObserveRateGateDelay(d time.Duration) {
	Init()
	rateGateDelaySeconds.Observe(d.Seconds())
}

// ObserveRenderPromotion counts a JS-render escalation.
func ObserveRenderPromotion() {
	Init()
	renderPromotionsTotal.Inc()
}
