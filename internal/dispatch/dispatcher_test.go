package dispatch_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rss-media-bus/internal/dispatch"
	"rss-media-bus/internal/domain/entity"
	"rss-media-bus/internal/infra/chat"
)

type fakeStore struct {
	articles []*entity.Article
	allFeeds []string
}

func (f *fakeStore) ArticlesSince(ctx context.Context, feedIDs []string, cutoff time.Time, limit int) ([]*entity.Article, error) {
	return f.articles, nil
}

func (f *fakeStore) AllFeedIDs(ctx context.Context) ([]string, error) { return f.allFeeds, nil }

type fakeChat struct {
	mu    sync.Mutex
	calls []string
	fn    func(calls int, threadID *int64) error
}

func (f *fakeChat) Post(ctx context.Context, botToken, chatID string, threadID *int64, text, parseMode string) error {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	n := len(f.calls)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(n, threadID)
	}
	return nil
}

func (f *fakeChat) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeFilter struct {
	include bool
}

func (f *fakeFilter) Apply(article *entity.Article, spec entity.FilterSpec) (bool, []string, string) {
	return f.include, nil, "test"
}

type fakeChannels struct {
	mu       sync.Mutex
	channels []*entity.RecipientChannel
	advanced map[string]time.Time
}

func (f *fakeChannels) Channels() []*entity.RecipientChannel { return f.channels }

func (f *fakeChannels) AdvanceWatermark(key string, t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.advanced == nil {
		f.advanced = make(map[string]time.Time)
	}
	f.advanced[key] = t
}

func (f *fakeChannels) Load() error { return nil }

func testChannel() *entity.RecipientChannel {
	return &entity.RecipientChannel{
		TenantID:     "acme",
		ChannelID:    "main",
		BotToken:     "tok",
		ChatID:       "-1001",
		AllowedFeeds: map[string]bool{"example_com": true, "unmapped_com": true},
		Routes: map[string]entity.FeedRoute{
			"example_com": {TopicID: 5},
		},
		Watermark: time.Now().Add(-time.Hour),
	}
}

func testArticle() *entity.Article {
	return &entity.Article{
		FeedID: "example_com", Title: "Headline", Link: "https://example.com/a",
		Description: "Body text", Category: "tech",
	}
}

func TestDispatcher_PostsArticleAndAdvancesWatermark(t *testing.T) {
	store := &fakeStore{articles: []*entity.Article{testArticle()}}
	chatClient := &fakeChat{}
	channels := &fakeChannels{channels: []*entity.RecipientChannel{testChannel()}}

	d := dispatch.New(store, channels, chatClient, &fakeFilter{include: true}, nil)
	d.RunOnce(context.Background())

	assert.Equal(t, 1, chatClient.callCount())
	require.Contains(t, channels.advanced, "acme/main")
	assert.WithinDuration(t, time.Now(), channels.advanced["acme/main"], 5*time.Second)
	assert.Contains(t, chatClient.calls[0], "<b>Headline</b>")
	assert.Contains(t, chatClient.calls[0], "#tech")
	assert.Contains(t, chatClient.calls[0], "https://example.com/a")
}

func TestDispatcher_SkipsArticleWithNoResolvedRoute(t *testing.T) {
	article := testArticle()
	article.FeedID = "unmapped_com"
	store := &fakeStore{articles: []*entity.Article{article}}
	chatClient := &fakeChat{}
	channels := &fakeChannels{channels: []*entity.RecipientChannel{testChannel()}}

	d := dispatch.New(store, channels, chatClient, &fakeFilter{include: true}, nil)
	d.RunOnce(context.Background())

	assert.Equal(t, 0, chatClient.callCount())
}

func TestDispatcher_DropsFilteredArticle(t *testing.T) {
	ch := testChannel()
	ch.Routes["example_com"] = entity.FeedRoute{TopicID: 5, Filter: &entity.FilterSpec{Mode: entity.FilterExclude, Keywords: []string{"x"}}}
	store := &fakeStore{articles: []*entity.Article{testArticle()}}
	chatClient := &fakeChat{}
	channels := &fakeChannels{channels: []*entity.RecipientChannel{ch}}

	d := dispatch.New(store, channels, chatClient, &fakeFilter{include: false}, nil)
	d.RunOnce(context.Background())

	assert.Equal(t, 0, chatClient.callCount())
}

func TestDispatcher_ThrottledRetriesSamePost(t *testing.T) {
	store := &fakeStore{articles: []*entity.Article{testArticle()}}
	chatClient := &fakeChat{fn: func(n int, _ *int64) error {
		if n == 1 {
			return &chat.ThrottledError{RetryAfter: time.Millisecond}
		}
		return nil
	}}
	channels := &fakeChannels{channels: []*entity.RecipientChannel{testChannel()}}

	d := dispatch.New(store, channels, chatClient, &fakeFilter{include: true}, nil)
	d.RunOnce(context.Background())

	assert.Equal(t, 2, chatClient.callCount())
}

func TestDispatcher_UnknownThreadFallsBackWithoutTopic(t *testing.T) {
	store := &fakeStore{articles: []*entity.Article{testArticle()}}
	chatClient := &fakeChat{fn: func(n int, threadID *int64) error {
		if n == 1 {
			require.NotNil(t, threadID)
			return &chat.UnknownThreadError{ChatID: "-1001"}
		}
		assert.Nil(t, threadID)
		return nil
	}}
	channels := &fakeChannels{channels: []*entity.RecipientChannel{testChannel()}}

	d := dispatch.New(store, channels, chatClient, &fakeFilter{include: true}, nil)
	d.RunOnce(context.Background())

	assert.Equal(t, 2, chatClient.callCount())
}

func TestDispatcher_TerminalErrorDropsPostWithoutRetry(t *testing.T) {
	store := &fakeStore{articles: []*entity.Article{testArticle()}}
	chatClient := &fakeChat{fn: func(int, *int64) error {
		return &chat.TerminalChatError{Reason: "banned"}
	}}
	channels := &fakeChannels{channels: []*entity.RecipientChannel{testChannel()}}

	d := dispatch.New(store, channels, chatClient, &fakeFilter{include: true}, nil)
	d.RunOnce(context.Background())

	assert.Equal(t, 1, chatClient.callCount())
}

func TestFormatPost_FallsBackToNoCategoryTag(t *testing.T) {
	article := &entity.Article{FeedID: "example_com", Title: "T", Link: "https://x", Description: "d"}
	store := &fakeStore{articles: []*entity.Article{article}}
	chatClient := &fakeChat{}
	channels := &fakeChannels{channels: []*entity.RecipientChannel{testChannel()}}

	d := dispatch.New(store, channels, chatClient, &fakeFilter{include: true}, nil)
	d.RunOnce(context.Background())

	require.Equal(t, 1, chatClient.callCount())
	assert.True(t, strings.Contains(chatClient.calls[0], "#no_category"))
}
