// Package metrics exposes Prometheus collectors for the crawl and load pipelines.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlFetchesTotal           *prometheus.CounterVec
	crawlFetchDurationSeconds   *prometheus.HistogramVec
	crawlCandidatesTotal        *prometheus.CounterVec
	crawlProcessedURLs          prometheus.Gauge
	crawlRateLimitDelaysSeconds *prometheus.HistogramVec
	crawlHeadlessPromotions     prometheus.Counter
	loadEntitiesTotal           *prometheus.CounterVec
	loadQuotesTotal             prometheus.Counter
	loadUnitsTotal              *prometheus.CounterVec
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec
	once                        sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotes_crawl_fetches_total",
				Help: "Total detail page fetches, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		crawlFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quotes_crawl_fetch_duration_seconds",
				Help:    "Histogram of detail page fetch latencies, labeled by site.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		crawlCandidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotes_crawl_candidates_total",
				Help: "Total candidates handled by the crawl executor, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlProcessedURLs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "quotes_crawl_processed_urls",
				Help: "Number of URLs recorded in the processed set.",
			},
		)

		crawlRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quotes_crawl_rate_limit_delays_seconds",
				Help:    "Histogram of throttle wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		crawlHeadlessPromotions = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "quotes_crawl_headless_promotions_total",
				Help: "Movie pages re-fetched with the headless browser after a static probe.",
			},
		)
		loadEntitiesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotes_load_entities_total",
				Help: "Total movie rows resolved by the loader, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		loadQuotesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "quotes_load_quotes_total",
				Help: "Total quote rows inserted by the loader.",
			},
		)

		loadUnitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotes_load_units_total",
				Help: "Total load units processed, labeled by status.",
			},
			[]string{"status"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveFetch records one detail page fetch.
func ObserveFetch(rawURL, status string, duration time.Duration) {
	Init()
	site := SanitizeSite(rawURL)
	crawlFetchesTotal.WithLabelValues(site, status).Inc()
	if duration > 0 {
		crawlFetchDurationSeconds.WithLabelValues(site).Observe(duration.Seconds())
	}
}

// ObserveCandidates adds n to the candidate counter for outcome.
func ObserveCandidates(outcome string, n int) {
	Init()
	if n <= 0 {
		return
	}
	crawlCandidatesTotal.WithLabelValues(outcome).Add(float64(n))
}

// SetProcessedURLs sets the processed set size gauge.
func SetProcessedURLs(n int) {
	Init()
	crawlProcessedURLs.Set(float64(n))
}

// ObserveRateLimitDelay records the duration of a throttle wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	crawlRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// IncHeadlessPromotion counts one static page handed to the headless fetcher.
func IncHeadlessPromotion() {
	Init()
	crawlHeadlessPromotions.Inc()
}

// ObserveEntity increments the entity counter for outcome.
func ObserveEntity(outcome string) {
	Init()
	loadEntitiesTotal.WithLabelValues(outcome).Inc()
}

// ObserveQuotes adds n inserted quote rows.
func ObserveQuotes(n int) {
	Init()
	if n <= 0 {
		return
	}
	loadQuotesTotal.Add(float64(n))
}

// ObserveUnit increments the load unit counter for status.
func ObserveUnit(status string) {
	Init()
	loadUnitsTotal.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
