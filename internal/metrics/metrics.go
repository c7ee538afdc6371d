// Package metrics exposes Prometheus collectors for the crawl pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlPagesTotal      *prometheus.CounterVec
	crawlItemsTotal      *prometheus.CounterVec
	apiErrorsTotal       *prometheus.CounterVec
	searchCacheHitsTotal prometheus.Counter
	tokensProcessedTotal *prometheus.CounterVec
	rankingRunsTotal     *prometheus.CounterVec
	rankingDuration      *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		crawlPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_pages_total",
				Help: "Total number of API pages fetched, labeled by request type.",
			},
			[]string{"request_type"},
		)

		crawlItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_items_total",
				Help: "Total number of items retrieved, labeled by request type.",
			},
			[]string{"request_type"},
		)

		apiErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "content_api_errors_total",
				Help: "Total content API failures, labeled by request type and reason.",
			},
			[]string{"request_type", "reason"},
		)

		searchCacheHitsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "search_cache_hits_total",
				Help: "Searches answered from the corpus without API calls.",
			},
		)

		tokensProcessedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resume_tokens_processed_total",
				Help: "Resume tokens processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		rankingRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ranking_runs_total",
				Help: "Ranking computations, labeled by algorithm.",
			},
			[]string{"algorithm"},
		)

		rankingDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ranking_duration_seconds",
				Help:    "Histogram of ranking run durations, labeled by algorithm.",
				Buckets: []float64{0.01, 0.05, 0.25, 1, 5, 30, 120},
			},
			[]string{"algorithm"},
		)
	})
}

// Handler returns an http.Handler exposing the Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage records a fetched API page and its item count.
func ObservePage(requestType string, items int) {
	if crawlPagesTotal == nil {
		return
	}
	crawlPagesTotal.WithLabelValues(requestType).Inc()
	if items > 0 {
		crawlItemsTotal.WithLabelValues(requestType).Add(float64(items))
	}
}

// ObserveAPIError records a content API failure.
func ObserveAPIError(requestType, reason string) {
	if apiErrorsTotal == nil {
		return
	}
	apiErrorsTotal.WithLabelValues(requestType, reason).Inc()
}

// ObserveCacheHit records a search served from the corpus cache.
func ObserveCacheHit() {
	if searchCacheHitsTotal == nil {
		return
	}
	searchCacheHitsTotal.Inc()
}

// ObserveTokenProcessed records a resume token outcome ("consumed"/"failed").
func ObserveTokenProcessed(outcome string) {
	if tokensProcessedTotal == nil {
		return
	}
	tokensProcessedTotal.WithLabelValues(outcome).Inc()
}

// ObserveRanking records a completed ranking run.
func ObserveRanking(algorithm string, duration time.Duration) {
	if rankingRunsTotal == nil {
		return
	}
	rankingRunsTotal.WithLabelValues(algorithm).Inc()
	rankingDuration.WithLabelValues(algorithm).Observe(duration.Seconds())
}
