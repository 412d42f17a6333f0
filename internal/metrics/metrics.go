// Package metrics exposes Prometheus collectors for toprgb runs.
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
	urlsTotal                  *prometheus.CounterVec
	tasksTotal                 *prometheus.CounterVec
	fetchAttemptsTotal         *prometheus.CounterVec
	fetchDurationSeconds       prometheus.Histogram
	fetchBytesTotal            prometheus.Counter
	pixelsTotal                prometheus.Counter
	sortChunksTotal            prometheus.Counter
	sortChunkLines             prometheus.Histogram
	sinkWriteErrorsTotal       prometheus.Counter
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		urlsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toprgb_urls_total",
				Help: "URLs read from the sorted input, labeled by result.",
			},
			[]string{"result"},
		)

		tasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toprgb_tasks_total",
				Help: "Image tasks finished, labeled by status.",
			},
			[]string{"status"},
		)

		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toprgb_fetch_attempts_total",
				Help: "HTTP fetch attempts, labeled by response code or error.",
			},
			[]string{"code"},
		)

		fetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "toprgb_fetch_duration_seconds",
				Help:    "Histogram of image download latencies.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		)

		fetchBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "toprgb_fetch_bytes_total",
				Help: "Total image bytes downloaded.",
			},
		)

		pixelsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "toprgb_pixels_total",
				Help: "Total pixels counted across decoded images.",
			},
		)

		sortChunksTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "toprgb_sort_chunks_total",
				Help: "Chunks produced by the external sort split phase.",
			},
		)

		sortChunkLines = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "toprgb_sort_chunk_lines",
				Help:    "Histogram of lines per external sort chunk.",
				Buckets: prometheus.ExponentialBuckets(1, 10, 8),
			},
		)

		sinkWriteErrorsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "toprgb_sink_write_errors_total",
				Help: "Failed writes to the result file.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "toprgb_active_workers",
				Help: "Number of workers currently processing an image.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toprgb_rate_limit_delays_seconds",
				Help:    "Histogram of per-host rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
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

// Host extracts a lowercase hostname from rawURL.
// It returns "unknown" if the URL is invalid.
func Host(rawURL string) string {
	if !strings.Contains(rawURL, "://") {
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

// ObserveURL counts one URL from the sorted input.
func ObserveURL(result string) {
	Init()
	urlsTotal.WithLabelValues(result).Inc()
}

// ObserveTask counts one finished image task.
func ObserveTask(status string) {
	Init()
	tasksTotal.WithLabelValues(status).Inc()
}

// ObserveFetch records one download attempt. A zero code means the attempt
// failed before a response arrived.
func ObserveFetch(code int, duration time.Duration, bytes int64) {
	Init()
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	fetchAttemptsTotal.WithLabelValues(label).Inc()
	fetchDurationSeconds.Observe(duration.Seconds())
	if bytes > 0 {
		fetchBytesTotal.Add(float64(bytes))
	}
}

// AddPixels adds n counted pixels.
func AddPixels(n int64) {
	Init()
	pixelsTotal.Add(float64(n))
}

// ObserveSortChunk records a chunk handed to the sort pool.
func ObserveSortChunk(lines int) {
	Init()
	sortChunksTotal.Inc()
	sortChunkLines.Observe(float64(lines))
}

// ObserveSinkWriteError counts one failed result write.
func ObserveSinkWriteError() {
	Init()
	sinkWriteErrorsTotal.Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
