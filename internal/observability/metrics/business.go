package metrics

import "time"

// RecordArticlesFetched records the number of new articles recorded for a feed.
func RecordArticlesFetched(feedID string, count int) {
	if count <= 0 {
		return
	}
	ArticlesFetchedTotal.WithLabelValues(feedID).Add(float64(count))
}

// RecordFeedCrawl records the duration of one feed's fetch-and-normalize cycle
// and, if any articles were inserted, the fetched-count metric alongside it.
func RecordFeedCrawl(feedID string, duration time.Duration, inserted int) {
	FeedCrawlDuration.WithLabelValues(feedID).Observe(duration.Seconds())
	RecordArticlesFetched(feedID, inserted)
}

// RecordFeedCrawlError records a classified error for a feed crawl attempt.
func RecordFeedCrawlError(feedID string, errorKind string) {
	FeedCrawlErrors.WithLabelValues(feedID, errorKind).Inc()
}

// RecordFeedSkipped records that the error governor excluded a feed from a cycle.
func RecordFeedSkipped(feedID string) {
	FeedSkippedTotal.WithLabelValues(feedID).Inc()
}

// UpdateArticlesTotal updates the total count of articles in the database.
func UpdateArticlesTotal(count int) {
	ArticlesTotal.Set(float64(count))
}

// UpdateFeedsTotal updates the total count of registered feeds.
func UpdateFeedsTotal(count int) {
	FeedsTotal.Set(float64(count))
}

// RecordPostSent records a successfully delivered chat post for a channel.
func RecordPostSent(channel string) {
	PostsSentTotal.WithLabelValues(channel).Inc()
}

// RecordPostDropped records an article that was routed but not posted.
func RecordPostDropped(channel, reason string) {
	PostsDroppedTotal.WithLabelValues(channel, reason).Inc()
}

// RecordDispatchThrottle records a retry_after duration advertised by the chat backend.
func RecordDispatchThrottle(wait time.Duration) {
	DispatchThrottleSeconds.Observe(wait.Seconds())
}

// UpdateWatermarkLag updates how far behind wall clock a channel's watermark is.
func UpdateWatermarkLag(channel string, lag time.Duration) {
	WatermarkLagSeconds.WithLabelValues(channel).Set(lag.Seconds())
}

// RecordDBQuery records the duration of a database query operation.
// Operation should describe the query type (e.g., "record_article", "articles_since").
func RecordDBQuery(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateDBConnectionStats updates database connection pool statistics.
func UpdateDBConnectionStats(active, idle int) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}
