// Package metrics exposes Prometheus collectors for the crawler service.
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
	crawlerPagesTotal          *prometheus.CounterVec
	crawlerBytesTotal          *prometheus.CounterVec
	crawlerFetchRetriesTotal   *prometheus.CounterVec
	crawlerPortalRunsTotal     *prometheus.CounterVec
	crawlerNewEntriesTotal     *prometheus.CounterVec
	storeWritesTotal           *prometheus.CounterVec
	storeBackupsTotal          *prometheus.CounterVec
	refreshRunsTotal           *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaySeconds      *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the per-host rate limiter.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
			},
			[]string{"host"},
		)

		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of pages fetched, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		crawlerBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerFetchRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_fetch_retries_total",
				Help: "Total number of fetch retries, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerPortalRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_portal_runs_total",
				Help: "Total number of portal executions, labeled by portal and status.",
			},
			[]string{"portal", "status"},
		)

		crawlerNewEntriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_new_entries_total",
				Help: "Total number of previously unseen entries, labeled by category.",
			},
			[]string{"category"},
		)

		storeWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "store_writes_total",
				Help: "Total number of category file writes, labeled by category.",
			},
			[]string{"category"},
		)

		storeBackupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "store_backups_total",
				Help: "Total number of category snapshots, labeled by category and status.",
			},
			[]string{"category", "status"},
		)

		refreshRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "refresh_runs_total",
				Help: "Total number of pipeline refreshes, labeled by outcome.",
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
	return promhttp.Handler()
}

// ObserveFetch increments the page counters for one fetch attempt.
func ObserveFetch(site string, status string, bytesFetched int) {
	Init()
	sanitizedSite := SanitizeSite(site)
	crawlerPagesTotal.WithLabelValues(sanitizedSite, status).Inc()
	if bytesFetched > 0 {
		crawlerBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveRetry counts a retried fetch.
func ObserveRetry(site string) {
	Init()
	crawlerFetchRetriesTotal.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObservePortalRun counts one portal execution.
func ObservePortalRun(portal, status string) {
	Init()
	crawlerPortalRunsTotal.WithLabelValues(portal, status).Inc()
}

// ObserveNewEntries adds n to the new-entry counter of a category.
func ObserveNewEntries(category string, n int) {
	if n <= 0 {
		return
	}
	Init()
	crawlerNewEntriesTotal.WithLabelValues(category).Add(float64(n))
}

// ObserveStoreWrite counts an atomic category file write.
func ObserveStoreWrite(category string) {
	Init()
	storeWritesTotal.WithLabelValues(category).Inc()
}

// ObserveBackup counts a snapshot attempt.
func ObserveBackup(category string, ok bool) {
	Init()
	status := "success"
	if !ok {
		status = "error"
	}
	storeBackupsTotal.WithLabelValues(category, status).Inc()
}

// ObserveRefresh counts a finished refresh.
func ObserveRefresh(status string) {
	Init()
	refreshRunsTotal.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records time spent waiting for a host token.
func ObserveRateLimitDelay(host string, d time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}
