// Package metrics holds the batch-scoped Recorder used by the fetch and
// process stages, plus the process-wide Prometheus collectors.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels shared by the fetch and process collectors.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var (
	fetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_fetch_total",
			Help: "Total number of completed fetches, labeled by site and result.",
		},
		[]string{"site", "result"},
	)

	fetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_fetch_bytes_total",
			Help: "Total number of body bytes fetched, labeled by site.",
		},
		[]string{"site"},
	)

	fetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scraper_fetch_duration_seconds",
			Help:    "Histogram of fetch latencies, labeled by result.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"result"},
	)

	fetchInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scraper_fetch_in_flight",
			Help: "Number of fetches currently holding an admission permit.",
		},
	)

	processTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_process_total",
			Help: "Total number of documents processed, labeled by result.",
		},
		[]string{"result"},
	)

	processDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_process_duration_seconds",
			Help:    "Histogram of per-document extraction latencies.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
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
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30},
		},
		[]string{"method", "route"},
	)
)

// SanitizeSite extracts a lowercase hostname from a URL.
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

// ObserveFetch records one completed fetch.
func ObserveFetch(rawURL string, result string, bytesFetched int, duration time.Duration) {
	site := SanitizeSite(rawURL)
	fetchTotal.WithLabelValues(site, result).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
	fetchDurationSeconds.WithLabelValues(result).Observe(duration.Seconds())
}

// IncInFlight increments the in-flight fetch gauge.
func IncInFlight() {
	fetchInFlight.Inc()
}

// DecInFlight decrements the in-flight fetch gauge.
func DecInFlight() {
	fetchInFlight.Dec()
}

// ObserveProcess records one processed document.
func ObserveProcess(result string, duration time.Duration) {
	processTotal.WithLabelValues(result).Inc()
	processDurationSeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest records one API request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
