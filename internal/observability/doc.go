// Package observability provides the ingest/dispatch bus's observability
// infrastructure: structured logging and Prometheus metrics.
//
// This package centralizes observability concerns to enable:
//   - Structured logging with cycle/tick correlation ID propagation
//   - Prometheus metrics for monitoring
//
// Subpackages:
//   - logging: Structured logging utilities with slog
//   - corrid: cycle/tick correlation ID generation and context propagation
//   - metrics: Prometheus metrics registry and recorders
//
// Example usage:
//
//	import (
//	    "rss-media-bus/internal/observability/logging"
//	    "rss-media-bus/internal/observability/metrics"
//	)
//
//	func main() {
//	    logger := logging.NewLogger()
//	    logger.Info("application started")
//
//	    metrics.RecordArticlesFetched("example.com", 10)
//	}
package observability
