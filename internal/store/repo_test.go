package store_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rss-media-bus/internal/domain/entity"
	"rss-media-bus/internal/store"
)

func TestArticleStore_RecordArticle_Inserted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	article := &entity.Article{
		FeedID: "example_com", Title: "headline", Link: "https://example.com/a",
		PublishedAt: now, IngestedAt: now,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO articles")).
		WillReturnResult(sqlmock.NewResult(7, 1))

	s := store.New(db)
	inserted, id, err := s.RecordArticle(context.Background(), article)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, int64(7), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArticleStore_RecordArticle_Duplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	now := time.Now()
	article := &entity.Article{
		FeedID: "example_com", Title: "headline", Link: "https://example.com/a",
		PublishedAt: now, IngestedAt: now,
	}

	// ON CONFLICT DO NOTHING: zero rows affected signals a duplicate link,
	// not an error -- callers must not treat a re-seen article as fatal.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO articles")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	s := store.New(db)
	inserted, _, err := s.RecordArticle(context.Background(), article)
	require.NoError(t, err)
	assert.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArticleStore_ArticlesSince_OrdersByPublishedThenIngested(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	older := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "feed_id", "title", "link", "guid", "description", "content",
		"author", "published_at", "updated_at", "category",
		"tags_json", "media_json", "extensions_json", "ingested_at",
	}).
		AddRow(1, "feed", "old", "https://example.com/old", "", "", "", "",
			older, nil, "", "[]", "[]", "{}", older).
		AddRow(2, "feed", "new", "https://example.com/new", "", "", "", "",
			newer, nil, "", "[]", "[]", "{}", newer)

	mock.ExpectQuery(regexp.QuoteMeta("FROM articles")).
		WillReturnRows(rows)

	s := store.New(db)
	got, err := s.ArticlesSince(context.Background(), []string{"feed"}, older, 50)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].PublishedAt.Before(got[1].PublishedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArticleStore_ArticlesSince_NoFeeds(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := store.New(db)
	got, err := s.ArticlesSince(context.Background(), nil, time.Now(), 50)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestArticleStore_AllFeedIDs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	rows := sqlmock.NewRows([]string{"id"}).AddRow("example_com").AddRow("gone_com")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM feeds")).WillReturnRows(rows)

	s := store.New(db)
	ids, err := s.AllFeedIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"example_com", "gone_com"}, ids)
}

func TestArticleStore_RegisterFeed_Upsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	feed := &entity.Feed{ID: "example_com", URL: "https://example.com/rss", Name: "Example", Active: true}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO feeds")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := store.New(db)
	err = s.RegisterFeed(context.Background(), feed)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArticleStore_UpdateFeedCrawlState_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE feeds")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	s := store.New(db)
	err = s.UpdateFeedCrawlState(context.Background(), "missing_feed", true, time.Now())
	require.Error(t, err)
	var notFound *entity.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestArticleStore_Prune(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM articles")).
		WillReturnResult(sqlmock.NewResult(0, 12))

	s := store.New(db)
	n, err := s.Prune(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}
