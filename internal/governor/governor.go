// Package governor implements the per-feed error-governance authority: it
// decides whether a feed should be skipped this cycle, and recommends a
// remediation class (user agent swap, proxy, or both) once a feed is
// returning access-denied responses repeatedly.
//
// The exact thresholds below (max 5 consecutive errors, cooldown
// min(60, 2^errors) minutes, 403 escalation at error counts <=2/<=4/>4)
// are load-bearing and must not be adjusted without re-checking the
// testable properties they back.
package governor

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"rss-media-bus/internal/domain/entity"
)

// Alternative is the remediation class recommended for a classified
// access-denied response.
type Alternative string

const (
	AlternativeNone      Alternative = "none"
	AlternativeUserAgent Alternative = "user_agent"
	AlternativeProxy     Alternative = "proxy"
	AlternativeBoth      Alternative = "both"
)

// ErrorDetail is one rolling history entry for a feed.
type ErrorDetail struct {
	Timestamp  time.Time
	Kind       entity.FetchErrorKind
	StatusCode int
	Message    string
	ErrorCount int
}

const maxHistory = 10

// feedState tracks failure bookkeeping for a single feed URL. Its own
// mutex is separate from the registry's map mutex so a read of one
// feed's state never blocks registration of another.
type feedState struct {
	mu              sync.Mutex
	consecutiveErrs int
	lastErrorAt     time.Time
	history         []ErrorDetail
}

// Governor is the per-process, process-local error authority. It is safe
// for concurrent use by multiple fetch workers.
type Governor struct {
	mu     sync.RWMutex
	feeds  map[string]*feedState
	logger *slog.Logger
}

// New builds a Governor. A nil logger falls back to slog's default.
func New(logger *slog.Logger) *Governor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Governor{feeds: make(map[string]*feedState), logger: logger}
}

func (g *Governor) stateFor(feedURL string) *feedState {
	g.mu.RLock()
	st, ok := g.feeds[feedURL]
	g.mu.RUnlock()
	if ok {
		return st
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if st, ok := g.feeds[feedURL]; ok {
		return st
	}
	st = &feedState{}
	g.feeds[feedURL] = st
	return st
}

// RecordError registers a classified failure for feedURL, bumping its
// consecutive-error count and appending to its bounded rolling history.
func (g *Governor) RecordError(feedURL string, kind entity.FetchErrorKind, statusCode int, message string) {
	st := g.stateFor(feedURL)

	st.mu.Lock()
	st.consecutiveErrs++
	st.lastErrorAt = time.Now()
	st.history = append(st.history, ErrorDetail{
		Timestamp:  st.lastErrorAt,
		Kind:       kind,
		StatusCode: statusCode,
		Message:    message,
		ErrorCount: st.consecutiveErrs,
	})
	if len(st.history) > maxHistory {
		st.history = st.history[len(st.history)-maxHistory:]
	}
	count := st.consecutiveErrs
	st.mu.Unlock()

	g.logger.Warn("feed fetch error recorded",
		slog.String("feed_url", feedURL),
		slog.String("kind", string(kind)),
		slog.Int("status_code", statusCode),
		slog.String("message", message),
		slog.Int("consecutive_errors", count))
}

// Reset clears feedURL's failure state on a successful fetch. It logs a
// recovery line when the prior count was positive.
func (g *Governor) Reset(feedURL string) {
	st := g.stateFor(feedURL)

	st.mu.Lock()
	prior := st.consecutiveErrs
	st.consecutiveErrs = 0
	st.lastErrorAt = time.Time{}
	st.mu.Unlock()

	if prior > 0 {
		g.logger.Info("feed recovered after errors",
			slog.String("feed_url", feedURL),
			slog.Int("error_count", prior))
	}
}

// ShouldSkip decides whether feedURL should be excluded from this cycle's
// fetch batch. Once consecutive errors reach maxErrors (5), the feed is
// skipped for a cooldown of min(60, 2^errors) minutes from the last
// failure.
func (g *Governor) ShouldSkip(feedURL string) (skip bool, reason string) {
	const maxErrors = 5
	st := g.stateFor(feedURL)

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.consecutiveErrs < maxErrors {
		return false, ""
	}

	delayMinutes := cooldownMinutes(st.consecutiveErrs)
	elapsed := time.Since(st.lastErrorAt)
	if elapsed < time.Duration(delayMinutes)*time.Minute {
		return true, feedSkipReason(delayMinutes, st.consecutiveErrs)
	}
	return false, ""
}

func cooldownMinutes(errorCount int) int {
	delay := 1 << errorCount
	if delay > 60 {
		return 60
	}
	return delay
}

func feedSkipReason(delayMinutes, errorCount int) string {
	return fmt.Sprintf("skipping for %d min (errors: %d)", delayMinutes, errorCount)
}

// RecommendAlternative suggests a remediation class for the given HTTP
// status observed on feedURL. 403 escalates with the feed's current
// consecutive-error count; 429/503 always suggest a proxy swap.
func (g *Governor) RecommendAlternative(feedURL string, statusCode int) Alternative {
	st := g.stateFor(feedURL)

	switch statusCode {
	case 403:
		st.mu.Lock()
		count := st.consecutiveErrs
		st.mu.Unlock()

		switch {
		case count <= 2:
			return AlternativeUserAgent
		case count <= 4:
			return AlternativeProxy
		default:
			return AlternativeBoth
		}
	case 429, 503:
		return AlternativeProxy
	default:
		return AlternativeNone
	}
}

// Statistics returns a snapshot of every feed currently tracked with a
// positive consecutive-error count, keyed by feed URL. Intended for
// operator diagnostics, not for decision logic.
func (g *Governor) Statistics() map[string]int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[string]int, len(g.feeds))
	for url, st := range g.feeds {
		st.mu.Lock()
		if st.consecutiveErrs > 0 {
			out[url] = st.consecutiveErrs
		}
		st.mu.Unlock()
	}
	return out
}
