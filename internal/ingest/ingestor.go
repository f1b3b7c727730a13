// Package ingest implements the Ingestor: the per-cycle orchestration that
// fetches every active feed, normalizes its entries, records new articles,
// and feeds classified failures back to the error governor. It is grounded
// on the teacher's fetch.Service.CrawlAllSources orchestration loop, with the
// governor/retry/circuit-breaker stack substituted for the teacher's plain
// per-source error logging.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"rss-media-bus/internal/domain/entity"
	"rss-media-bus/internal/governor"
	"rss-media-bus/internal/observability/corrid"
	"rss-media-bus/internal/observability/logging"
	"rss-media-bus/internal/observability/metrics"
	"rss-media-bus/internal/resilience/circuitbreaker"
	"rss-media-bus/internal/resilience/retry"
)

const (
	defaultInterval           = 5 * time.Minute
	defaultGlobalConcurrency  = 5
	defaultPerHostConcurrency = 3
)

// Fetcher retrieves a feed's raw bytes. Satisfied by *feed.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, feedURL string, proxy *entity.ProxyConfig) ([]byte, error)
}

// Normalizer parses raw feed bytes into canonical articles. Satisfied by *feed.Normalizer.
type Normalizer interface {
	Normalize(feedID string, raw []byte) (feedTitle string, articles []*entity.Article, err error)
}

// Store is the persistence boundary the Ingestor writes through. Satisfied by *store.ArticleStore.
type Store interface {
	ActiveFeeds(ctx context.Context) ([]*entity.Feed, error)
	RegisterFeed(ctx context.Context, feed *entity.Feed) error
	UpdateFeedCrawlState(ctx context.Context, feedID string, firstParseDone bool, lastUpdatedAt time.Time) error
	RecordArticle(ctx context.Context, article *entity.Article) (inserted bool, id int64, err error)
}

// SourceLoader rebuilds the feed set from the on-disk source list. It is
// consulted only at the start of a cycle, per the reload contract: a
// signal received mid-cycle takes effect on the next cycle, never the
// current one.
type SourceLoader interface {
	Load(ctx context.Context) ([]*entity.Feed, error)
}

// Ingestor runs the per-cycle fetch/normalize/store state machine described
// in the Ingestor specification. A single Ingestor is safe for one Run call;
// it is not re-entrant.
type Ingestor struct {
	store      Store
	fetcher    Fetcher
	normalizer Normalizer
	governor   *governor.Governor
	breaker    *circuitbreaker.CircuitBreaker
	loader     SourceLoader
	logger     *slog.Logger

	interval           time.Duration
	globalConcurrency  int
	perHostConcurrency int
	retryConfig        retry.Config

	reloadRequested atomic.Bool
}

// Option configures an Ingestor at construction time.
type Option func(*Ingestor)

// WithInterval overrides the default 5-minute cycle interval.
func WithInterval(d time.Duration) Option {
	return func(in *Ingestor) { in.interval = d }
}

// WithConcurrency overrides the default global/per-host fetch concurrency caps.
func WithConcurrency(global, perHost int) Option {
	return func(in *Ingestor) {
		in.globalConcurrency = global
		in.perHostConcurrency = perHost
	}
}

// WithRetryConfig overrides the default per-feed fetch retry/backoff
// schedule, mainly for tests that cannot afford real wall-clock delays.
func WithRetryConfig(cfg retry.Config) Option {
	return func(in *Ingestor) { in.retryConfig = cfg }
}

// New builds an Ingestor. loader may be nil if the feed set is managed
// entirely out of band (e.g. by a provisioning tool writing directly to the
// feeds table); in that case RequestReload is a no-op.
func New(st Store, fetcher Fetcher, normalizer Normalizer, gov *governor.Governor, loader SourceLoader, logger *slog.Logger, opts ...Option) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	in := &Ingestor{
		store:              st,
		fetcher:            fetcher,
		normalizer:         normalizer,
		governor:           gov,
		breaker:            circuitbreaker.New(circuitbreaker.FeedFetchConfig()),
		loader:             loader,
		logger:             logger,
		interval:           defaultInterval,
		globalConcurrency:  defaultGlobalConcurrency,
		perHostConcurrency: defaultPerHostConcurrency,
		retryConfig:        retry.FeedFetchConfig(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// RequestReload marks that the feed set should be rebuilt from the on-disk
// source list at the start of the next cycle. Safe to call from a signal
// handler; it never interrupts a cycle already in progress.
func (in *Ingestor) RequestReload() {
	in.reloadRequested.Store(true)
}

// Run executes cycles until ctx is canceled, sleeping interval between them.
func (in *Ingestor) Run(ctx context.Context) error {
	for {
		if err := in.RunOnce(ctx); err != nil {
			in.logger.Error("ingest cycle failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(in.interval):
		}
	}
}

// RunOnce performs exactly one pass of the state machine described in the
// Ingestor specification and returns once every feed in the batch has been
// attempted. Run calls this in a loop; callers driving their own schedule
// (tests, a cron-triggered invocation) may call it directly. Every log line
// emitted by this pass carries the same cycle_id, so a single crawl can be
// grepped out of the stream even while the next cycle's lines interleave.
func (in *Ingestor) RunOnce(ctx context.Context) error {
	ctx = corrid.WithCycleID(ctx, corrid.New())
	logger := logging.WithCycleID(ctx, in.logger)

	if in.loader != nil && in.reloadRequested.Swap(false) {
		if err := in.reloadSources(ctx, logger); err != nil {
			logger.Error("reload sources failed, continuing with existing feed set", slog.Any("error", err))
		}
	}

	feeds, err := in.store.ActiveFeeds(ctx)
	if err != nil {
		return fmt.Errorf("list active feeds: %w", err)
	}

	batch := make([]*entity.Feed, 0, len(feeds))
	for _, f := range feeds {
		if skip, reason := in.governor.ShouldSkip(f.URL); skip {
			logger.Info("feed skipped by governor", slog.String("feed_id", f.ID), slog.String("reason", reason))
			metrics.RecordFeedSkipped(f.ID)
			continue
		}
		batch = append(batch, f)
	}

	globalSem := make(chan struct{}, in.globalConcurrency)
	hosts := newHostLimiter(in.perHostConcurrency)

	g, gctx := errgroup.WithContext(ctx)
	for _, f := range batch {
		f := f
		host := hostOf(f.URL)

		g.Go(func() error {
			select {
			case globalSem <- struct{}{}:
				defer func() { <-globalSem }()
			case <-gctx.Done():
				return nil
			}

			release := hosts.acquire(gctx, host)
			if release == nil {
				return nil
			}
			defer release()

			// a single feed's failure never aborts the cycle
			in.processFeed(ctx, f, logger)
			return nil
		})
	}

	return g.Wait()
}

func (in *Ingestor) reloadSources(ctx context.Context, logger *slog.Logger) error {
	sources, err := in.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("load sources: %w", err)
	}
	for _, src := range sources {
		if err := in.store.RegisterFeed(ctx, src); err != nil {
			logger.Error("register feed failed during reload",
				slog.String("feed_id", src.ID), slog.Any("error", err))
		}
	}
	logger.Info("feed set reloaded", slog.Int("feeds", len(sources)))
	return nil
}

// processFeed runs the bounded-retry fetch, normalizes on success, records
// new articles, and reports the outcome to the governor.
func (in *Ingestor) processFeed(ctx context.Context, f *entity.Feed, logger *slog.Logger) {
	start := time.Now()

	body, fetchErr := in.fetchWithRetry(ctx, f)
	if fetchErr != nil {
		in.recordFailure(f, fetchErr, logger)
		metrics.RecordFeedCrawl(f.ID, time.Since(start), 0)

		if entity.ClassifyKind(fetchErr) == entity.KindForbidden {
			// honor the governor's now-updated recommendation by flagging the
			// feed for proxy routing and persisting it for the next cycle.
			if in.honorForbidden(f, logger) {
				if err := in.store.RegisterFeed(ctx, f); err != nil {
					logger.Error("persist proxy flag failed", slog.String("feed_id", f.ID), slog.Any("error", err))
				}
			}
		}
		return
	}

	title, articles, err := in.normalizer.Normalize(f.ID, body)
	if err != nil {
		in.recordFailure(f, &entity.ParsingError{URL: f.URL, Err: err}, logger)
		metrics.RecordFeedCrawl(f.ID, time.Since(start), 0)
		return
	}

	inserted := 0
	for _, article := range articles {
		ok, _, err := in.store.RecordArticle(ctx, article)
		if err != nil {
			logger.Error("record article failed",
				slog.String("feed_id", f.ID), slog.String("link", article.Link), slog.Any("error", err))
			continue
		}
		if ok {
			inserted++
		}
	}

	in.governor.Reset(f.URL)
	metrics.RecordFeedCrawl(f.ID, time.Since(start), inserted)

	if title != "" && title != f.Name {
		f.Name = title
	}
	if err := in.store.RegisterFeed(ctx, f); err != nil {
		logger.Error("update feed title failed", slog.String("feed_id", f.ID), slog.Any("error", err))
	}
	if err := in.store.UpdateFeedCrawlState(ctx, f.ID, true, time.Now()); err != nil {
		logger.Error("update feed crawl state failed", slog.String("feed_id", f.ID), slog.Any("error", err))
	}

	logger.Info("feed crawled",
		slog.String("feed_id", f.ID),
		slog.Int("entries", len(articles)),
		slog.Int("inserted", inserted),
		slog.Duration("duration", time.Since(start)))
}

// fetchWithRetry performs up to retry.FeedFetchConfig's MaxAttempts attempts
// with exponential backoff, stopping immediately on not_found or forbidden
// rather than exhausting the attempt budget on an outcome retrying cannot fix.
func (in *Ingestor) fetchWithRetry(ctx context.Context, f *entity.Feed) ([]byte, error) {
	cfg := in.retryConfig
	delay := cfg.InitialDelay

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, cbErr := in.breaker.Execute(func() (interface{}, error) {
			return in.fetcher.Fetch(ctx, f.URL, f.Proxy)
		})
		if cbErr == nil {
			return result.([]byte), nil
		}
		lastErr = cbErr

		kind := entity.ClassifyKind(cbErr)
		if kind == entity.KindNotFound || kind == entity.KindForbidden {
			return nil, lastErr
		}

		if attempt == cfg.MaxAttempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return nil, lastErr
}

// honorForbidden applies the governor's recommended remediation for a 403 as
// a per-feed proxy requirement. It reports whether the flag changed, so the
// caller only needs to persist the feed when there is something new to save.
func (in *Ingestor) honorForbidden(f *entity.Feed, logger *slog.Logger) bool {
	alt := in.governor.RecommendAlternative(f.URL, 403)
	logger.Warn("feed forbidden", slog.String("feed_id", f.ID), slog.String("alternative", string(alt)))

	switch alt {
	case governor.AlternativeProxy, governor.AlternativeBoth:
		if f.ProxyRequired {
			return false
		}
		f.ProxyRequired = true
		return true
	default:
		return false
	}
}

func (in *Ingestor) recordFailure(f *entity.Feed, err error, logger *slog.Logger) {
	kind := entity.ClassifyKind(err)
	statusCode := 0
	var httpErr *entity.HTTPStatusError
	if errors.As(err, &httpErr) {
		statusCode = httpErr.Status
	}
	in.governor.RecordError(f.URL, kind, statusCode, err.Error())
	metrics.RecordFeedCrawlError(f.ID, string(kind))
	logger.Warn("feed fetch failed",
		slog.String("feed_id", f.ID), slog.String("kind", string(kind)), slog.Any("error", err))
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}

// hostLimiter bounds concurrent fetches per host, lazily creating a
// semaphore channel the first time a host is seen.
type hostLimiter struct {
	mu       sync.Mutex
	perHost  int
	channels map[string]chan struct{}
}

func newHostLimiter(perHost int) *hostLimiter {
	return &hostLimiter{perHost: perHost, channels: make(map[string]chan struct{})}
}

func (h *hostLimiter) semFor(host string) chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	sem, ok := h.channels[host]
	if !ok {
		sem = make(chan struct{}, h.perHost)
		h.channels[host] = sem
	}
	return sem
}

// acquire blocks until a per-host slot is free or ctx is done, returning a
// release func, or nil if ctx ended first.
func (h *hostLimiter) acquire(ctx context.Context, host string) func() {
	sem := h.semFor(host)
	select {
	case sem <- struct{}{}:
		return func() { <-sem }
	case <-ctx.Done():
		return nil
	}
}
