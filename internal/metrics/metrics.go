// Package metrics exposes Prometheus collectors for the archive service.
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
	archivesTotal              *prometheus.CounterVec
	archiveBytesTotal          *prometheus.CounterVec
	archiveDurationSeconds     *prometheus.HistogramVec
	fetchesTotal               *prometheus.CounterVec
	headlessPromotionsTotal    *prometheus.CounterVec
	bookmarkRequestsTotal      *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		archivesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_archives_total",
				Help: "Total number of archive requests, labeled by site and outcome.",
			},
			[]string{"site", "status"},
		)

		archiveBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_archive_bytes_total",
				Help: "Total number of archived HTML bytes uploaded, labeled by site.",
			},
			[]string{"site"},
		)

		archiveDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archiver_archive_duration_seconds",
				Help:    "Histogram of end-to-end archive latencies, labeled by outcome.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"status"},
		)

		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_fetches_total",
				Help: "Total number of page fetches, labeled by fetch mode and outcome.",
			},
			[]string{"mode", "outcome"},
		)

		headlessPromotionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_headless_promotions_total",
				Help: "Total number of direct fetches redone in a headless browser, labeled by reason.",
			},
			[]string{"reason"},
		)

		bookmarkRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_bookmark_requests_total",
				Help: "Total number of bookmarking service calls, labeled by operation and status code.",
			},
			[]string{"operation", "code"},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 30},
			},
			[]string{"method", "route"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archiver_rate_limit_delays_seconds",
				Help:    "Histogram of per-domain fetch rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
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
	return promhttp.Handler()
}

// ObserveArchive records the outcome of one archive request.
func ObserveArchive(site string, status string, bytesUploaded int, duration time.Duration) {
	Init()
	sanitizedSite := SanitizeSite(site)
	archivesTotal.WithLabelValues(sanitizedSite, status).Inc()
	if bytesUploaded > 0 {
		archiveBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesUploaded))
	}
	archiveDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
}

// ObserveFetch increments the fetch counter for the given mode and outcome.
func ObserveFetch(mode, outcome string) {
	Init()
	fetchesTotal.WithLabelValues(mode, outcome).Inc()
}

// ObserveHeadlessPromotion records why a direct fetch was redone headless.
func ObserveHeadlessPromotion(reason string) {
	Init()
	headlessPromotionsTotal.WithLabelValues(reason).Inc()
}

// ObserveBookmarkRequest records a bookmarking service call.
func ObserveBookmarkRequest(operation string, code int) {
	Init()
	bookmarkRequestsTotal.WithLabelValues(operation, strconv.Itoa(code)).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
