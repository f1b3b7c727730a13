// Package dispatch implements the Dispatcher: the per-tick scan over
// every recipient channel's watermark, routing and filtering each new
// article, and serialized posting to the chat backend. It is grounded on
// the teacher's notify.Service fan-out (goroutine per recipient, a
// worker-pool semaphore bounding concurrency, panic recovery around each
// recipient's work), re-architected from push-on-insert to a
// pull/watermark-scan model per spec 4.8.
package dispatch

import (
	"context"
	"errors"
	"html"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"rss-media-bus/internal/domain/entity"
	"rss-media-bus/internal/infra/chat"
	"rss-media-bus/internal/observability/corrid"
	"rss-media-bus/internal/observability/logging"
	"rss-media-bus/internal/observability/metrics"
)

const (
	defaultTickInterval = 30 * time.Second
	defaultBatchLimit   = 500
	defaultConcurrency  = 8

	// postsPerMinute and its token-bucket translation give the
	// ≥3s-between-posts contract from spec 4.8 step 3.
	postsPerMinute = 20.0
)

// Store is the Dispatcher's read side of the shared ArticleStore.
type Store interface {
	ArticlesSince(ctx context.Context, feedIDs []string, cutoff time.Time, limit int) ([]*entity.Article, error)
	AllFeedIDs(ctx context.Context) ([]string, error)
}

// ChatClient is the outbound posting surface, satisfied by *chat.Client.
type ChatClient interface {
	Post(ctx context.Context, botToken, chatID string, threadID *int64, text, parseMode string) error
}

// FilterEngine decides inclusion for one article against one channel's
// resolved filter spec, satisfied by *filter.Engine.
type FilterEngine interface {
	Apply(article *entity.Article, spec entity.FilterSpec) (include bool, matched []string, reason string)
}

// ChannelSource supplies the current recipient channel snapshot and a
// place to persist each channel's advancing watermark, satisfied by
// *registry.Registry.
type ChannelSource interface {
	Channels() []*entity.RecipientChannel
	AdvanceWatermark(key string, t time.Time)
	Load() error
}

// Dispatcher is the Telegram fan-out service: one goroutine per
// recipient channel per tick, each serialized through its own rate
// limiter so that a slow channel never blocks another.
type Dispatcher struct {
	store    Store
	channels ChannelSource
	chat     ChatClient
	filter   FilterEngine
	logger   *slog.Logger

	tickInterval time.Duration
	batchLimit   int
	concurrency  int

	limiterMu sync.Mutex
	limiters  map[string]*chat.RateLimiter

	reloadRequested atomic.Bool
}

// Option configures a Dispatcher at construction time.
type Option func(*Dispatcher)

func WithTickInterval(d time.Duration) Option { return func(disp *Dispatcher) { disp.tickInterval = d } }
func WithBatchLimit(n int) Option             { return func(disp *Dispatcher) { disp.batchLimit = n } }
func WithConcurrency(n int) Option            { return func(disp *Dispatcher) { disp.concurrency = n } }

// New builds a Dispatcher ready to Run.
func New(store Store, channels ChannelSource, chatClient ChatClient, filterEngine FilterEngine, logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	disp := &Dispatcher{
		store: store, channels: channels, chat: chatClient, filter: filterEngine, logger: logger,
		tickInterval: defaultTickInterval, batchLimit: defaultBatchLimit, concurrency: defaultConcurrency,
		limiters: make(map[string]*chat.RateLimiter),
	}
	for _, opt := range opts {
		opt(disp)
	}
	return disp
}

// RequestReload marks the recipient registry for reload at the start of
// the next tick, mirroring the Ingestor's reload contract but against
// the registry's own SIGUSR1 signal per spec 10.3.
func (d *Dispatcher) RequestReload() { d.reloadRequested.Store(true) }

// Run ticks RunOnce until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		if d.reloadRequested.Swap(false) {
			if err := d.channels.Load(); err != nil {
				d.logger.Error("reload recipients failed, continuing with prior set", slog.Any("error", err))
			}
		}

		d.RunOnce(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.tickInterval):
		}
	}
}

// RunOnce scans every recipient channel once, posting whatever articles
// survive routing and filtering. Every log line from this tick carries the
// same tick_id, so one scan-all-channels pass can be grepped out of the
// stream even while concurrent channels interleave.
func (d *Dispatcher) RunOnce(ctx context.Context) {
	ctx = corrid.WithTickID(ctx, corrid.New())
	logger := logging.WithTickID(ctx, d.logger)

	channels := d.channels.Channels()

	var wg sync.WaitGroup
	sem := make(chan struct{}, d.concurrency)

	for _, ch := range channels {
		ch := ch
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			d.processChannelSafely(ctx, ch, logger)
		}()
	}
	wg.Wait()
}

// processChannelSafely wraps processChannel with panic recovery so one
// misbehaving recipient's work can never take down a dispatch tick.
func (d *Dispatcher) processChannelSafely(ctx context.Context, ch *entity.RecipientChannel, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("dispatch panic recovered",
				slog.String("channel", ch.Key()), slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
		}
	}()
	d.processChannel(ctx, ch, logger)
}

func (d *Dispatcher) processChannel(ctx context.Context, ch *entity.RecipientChannel, logger *slog.Logger) {
	feedIDs, err := d.resolveFeedIDs(ctx, ch)
	if err != nil {
		logger.Error("resolve feed ids failed", slog.String("channel", ch.Key()), slog.Any("error", err))
		return
	}
	if len(feedIDs) == 0 {
		return
	}

	cutoff := ch.Watermark
	articles, err := d.store.ArticlesSince(ctx, feedIDs, cutoff, d.batchLimit)
	if err != nil {
		logger.Error("articles_since failed", slog.String("channel", ch.Key()), slog.Any("error", err))
		return
	}
	metrics.UpdateWatermarkLag(ch.Key(), time.Since(cutoff))
	if len(articles) == 0 {
		return
	}

	limiter := d.limiterFor(ch.Key())

	for _, article := range articles {
		if ctx.Err() != nil {
			return
		}

		topicID, spec, ok := ch.ResolveRoute(article.FeedID)
		if !ok {
			metrics.RecordPostDropped(ch.Key(), "unrouted")
			continue
		}

		if spec != nil {
			include, matched, reason := d.filter.Apply(article, *spec)
			if !include {
				logger.Debug("article filtered", slog.String("channel", ch.Key()), slog.String("link", article.Link), slog.String("reason", reason))
				metrics.RecordPostDropped(ch.Key(), "filtered")
				continue
			}
			_ = matched
		}

		if err := limiter.Allow(ctx); err != nil {
			return
		}

		hasTopic := topicID != 0
		d.postOne(ctx, ch, topicID, hasTopic, formatPost(article), logger)
	}

	d.channels.AdvanceWatermark(ch.Key(), time.Now())
}

// resolveFeedIDs expands a channel's allow-list into a concrete feed id
// slice, falling back to every known feed id when the channel has none
// configured (spec 4.6's "empty allow-list means all feeds" rule).
func (d *Dispatcher) resolveFeedIDs(ctx context.Context, ch *entity.RecipientChannel) ([]string, error) {
	if len(ch.AllowedFeeds) > 0 {
		ids := make([]string, 0, len(ch.AllowedFeeds))
		for id := range ch.AllowedFeeds {
			ids = append(ids, id)
		}
		return ids, nil
	}
	return d.store.AllFeedIDs(ctx)
}

// postOne delivers text, obeying ThrottledError by sleeping the exact
// advertised duration and retrying the same post, and falling back once
// to no topic id on UnknownThreadError. Any other failure drops the post
// after being recorded. It returns once the post is delivered or dropped,
// or when the context is cancelled during a throttle wait.
func (d *Dispatcher) postOne(ctx context.Context, ch *entity.RecipientChannel, topicID int64, hasTopic bool, text string, logger *slog.Logger) {
	var threadID *int64
	if hasTopic {
		threadID = &topicID
	}
	triedWithoutTopic := !hasTopic

	for {
		err := d.chat.Post(ctx, ch.BotToken, ch.ChatID, threadID, text, "HTML")
		if err == nil {
			metrics.RecordPostSent(ch.Key())
			return
		}

		var throttled *chat.ThrottledError
		if errors.As(err, &throttled) {
			metrics.RecordDispatchThrottle(throttled.RetryAfter)
			select {
			case <-time.After(throttled.RetryAfter):
				continue
			case <-ctx.Done():
				return
			}
		}

		var unknownThread *chat.UnknownThreadError
		if errors.As(err, &unknownThread) && !triedWithoutTopic {
			threadID = nil
			triedWithoutTopic = true
			continue
		}

		metrics.RecordPostDropped(ch.Key(), "chat_error")
		logger.Warn("post dropped", slog.String("channel", ch.Key()), slog.Any("error", err))
		return
	}
}

func (d *Dispatcher) limiterFor(key string) *chat.RateLimiter {
	d.limiterMu.Lock()
	defer d.limiterMu.Unlock()
	limiter, ok := d.limiters[key]
	if !ok {
		limiter = chat.NewRateLimiter(postsPerMinute/60.0, 1)
		d.limiters[key] = limiter
	}
	return limiter
}

// fallbackTag is the stable tag used when an article carries no
// category or keyword tags, mirroring the reference sender's
// "#без_категории" placeholder translated to this repo's English idiom.
const fallbackTag = "no_category"

// formatPost renders article per spec 4.8's post contract: bold title,
// blank line, description, blank line, hashtag list, blank line, link.
func formatPost(article *entity.Article) string {
	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(article.Title))
	b.WriteString("</b>\n\n")

	if article.Description != "" {
		b.WriteString(html.EscapeString(article.Description))
		b.WriteString("\n\n")
	}

	b.WriteString(hashtags(article))
	b.WriteString("\n\n")
	b.WriteString(article.Link)

	return b.String()
}

func hashtags(article *entity.Article) string {
	tags := article.Tags
	if len(tags) == 0 && article.Category != "" {
		tags = []string{article.Category}
	}
	if len(tags) == 0 {
		return "#" + fallbackTag
	}

	parts := make([]string, 0, len(tags))
	for _, tag := range tags {
		parts = append(parts, "#"+sanitizeTag(tag))
	}
	return strings.Join(parts, " ")
}

func sanitizeTag(tag string) string {
	tag = strings.ReplaceAll(tag, " ", "_")
	tag = strings.ReplaceAll(tag, "&", "and")
	return tag
}
