// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics track the health/readiness surface exposed by each binary.
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures HTTP request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// ActiveConnections tracks the number of active HTTP connections
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_connections",
			Help: "Number of active HTTP connections",
		},
	)
)

// Feed ingest metrics track the Ingestor's per-cycle fetch/normalize/store work.
var (
	// ArticlesTotal tracks total number of articles in database
	ArticlesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "articles_total",
			Help: "Total number of articles in the database",
		},
	)

	// FeedsTotal tracks total number of registered feeds
	FeedsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feeds_total",
			Help: "Total number of registered feeds",
		},
	)

	// ArticlesFetchedTotal counts new articles recorded per feed
	ArticlesFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "articles_fetched_total",
			Help: "Total number of new articles recorded from feeds",
		},
		[]string{"feed_id"},
	)

	// FeedCrawlDuration measures time to fetch and normalize one feed.
	FeedCrawlDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feed_crawl_duration_seconds",
			Help:    "Time taken to crawl a feed source",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"feed_id"},
	)

	// FeedCrawlErrors counts classified errors during feed crawling
	FeedCrawlErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_crawl_errors_total",
			Help: "Total number of feed crawl errors, by classified kind",
		},
		[]string{"feed_id", "error_kind"},
	)

	// FeedSkippedTotal counts cycles in which the governor excluded a feed.
	FeedSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_skipped_total",
			Help: "Total number of cycles a feed was skipped by the error governor",
		},
		[]string{"feed_id"},
	)
)

// Dispatch metrics track the Dispatcher's per-tick delivery work.
var (
	// PostsSentTotal counts successfully delivered chat posts, by channel.
	PostsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "posts_sent_total",
			Help: "Total number of chat posts delivered",
		},
		[]string{"channel"},
	)

	// PostsDroppedTotal counts articles skipped during routing/filtering, by reason.
	PostsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "posts_dropped_total",
			Help: "Total number of articles dropped before posting, by reason",
		},
		[]string{"channel", "reason"},
	)

	// DispatchThrottleSeconds measures the backend-advertised wait on throttle.
	DispatchThrottleSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_throttle_seconds",
			Help:    "Advertised retry_after durations observed from the chat backend",
			Buckets: []float64{1, 3, 5, 10, 20, 30, 60},
		},
	)

	// WatermarkLagSeconds measures how far behind wall clock each channel's watermark is.
	WatermarkLagSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watermark_lag_seconds",
			Help: "Seconds between now and each channel's dispatch watermark",
		},
		[]string{"channel"},
	)
)

// Database metrics track storage performance of the embedded article store.
var (
	// DBQueryDuration measures database query duration
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"operation"},
	)

	// DBConnectionsActive tracks active database connections
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	// DBConnectionsIdle tracks idle database connections
	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)

// RecordHTTPRequest records an HTTP request with its metadata
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordOperationDuration records the duration of a named operation
func RecordOperationDuration(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
