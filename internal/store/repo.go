package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"rss-media-bus/internal/domain/entity"
)

// ArticleStore is the shared persistence boundary between the Ingestor
// (writer) and Dispatcher (reader). Every method opens its own
// connection-scoped statement against the pool passed to New; callers
// supply the *sql.DB from Open rather than the store owning it, so a
// single file can be wrapped once per process.
type ArticleStore struct {
	db *sql.DB
}

// New wraps an already-opened, already-migrated database handle.
func New(db *sql.DB) *ArticleStore {
	return &ArticleStore{db: db}
}

// RegisterFeed inserts feed if its ID is not yet known, or updates its
// URL and mutable crawl metadata (name, group, active, proxy) if it is.
// The ID is taken from feed.ID as given; RegisterFeed does not derive it
// from the URL.
func (s *ArticleStore) RegisterFeed(ctx context.Context, feed *entity.Feed) error {
	var proxyURL, proxyRegion string
	if feed.Proxy != nil {
		proxyURL, proxyRegion = feed.Proxy.URL, feed.Proxy.Region
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO feeds (id, url, name, group_tag, active, proxy_required, proxy_url, proxy_region, first_parse_done, last_updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	url = excluded.url,
	name = excluded.name,
	group_tag = excluded.group_tag,
	active = excluded.active,
	proxy_required = excluded.proxy_required,
	proxy_url = excluded.proxy_url,
	proxy_region = excluded.proxy_region
`,
		feed.ID, feed.URL, feed.Name, feed.Group, feed.Active,
		feed.ProxyRequired, proxyURL, proxyRegion,
		feed.FirstParseDone, feed.LastUpdatedAt,
	)
	if err != nil {
		return classifyExecErr("RegisterFeed", err)
	}
	return nil
}

// UpdateFeedCrawlState marks a feed's first successful parse and bumps
// its last-updated timestamp. It never touches the routing fields, so
// concurrent config reload and crawl bookkeeping never race.
func (s *ArticleStore) UpdateFeedCrawlState(ctx context.Context, feedID string, firstParseDone bool, lastUpdatedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE feeds SET first_parse_done = ?, last_updated_at = ? WHERE id = ?
`, firstParseDone, lastUpdatedAt, feedID)
	if err != nil {
		return classifyExecErr("UpdateFeedCrawlState", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateFeedCrawlState: RowsAffected: %w", err)
	}
	if n == 0 {
		return &entity.NotFoundError{URL: feedID}
	}
	return nil
}

// ActiveFeeds returns every feed currently marked active, for the
// Ingestor's per-cycle fetch plan.
func (s *ArticleStore) ActiveFeeds(ctx context.Context) ([]*entity.Feed, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, url, name, group_tag, active, proxy_required, proxy_url, proxy_region, first_parse_done, last_updated_at
FROM feeds WHERE active = 1
`)
	if err != nil {
		return nil, classifyExecErr("ActiveFeeds", err)
	}
	defer func() { _ = rows.Close() }()

	feeds := make([]*entity.Feed, 0, 32)
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("ActiveFeeds: Scan: %w", err)
		}
		feeds = append(feeds, feed)
	}
	return feeds, rows.Err()
}

// AllFeedIDs returns every feed id ever registered, active or not, for
// the Dispatcher to resolve an unrestricted recipient channel's article
// query against. Inactive feeds keep their historical articles eligible
// for delivery even after the Ingestor stops crawling them.
func (s *ArticleStore) AllFeedIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM feeds`)
	if err != nil {
		return nil, classifyExecErr("AllFeedIDs", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("AllFeedIDs: Scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanFeed(rows *sql.Rows) (*entity.Feed, error) {
	var (
		feed                  entity.Feed
		proxyURL, proxyRegion string
		lastUpdatedAt         sql.NullTime
	)
	if err := rows.Scan(
		&feed.ID, &feed.URL, &feed.Name, &feed.Group, &feed.Active,
		&feed.ProxyRequired, &proxyURL, &proxyRegion,
		&feed.FirstParseDone, &lastUpdatedAt,
	); err != nil {
		return nil, err
	}
	if proxyURL != "" {
		feed.Proxy = &entity.ProxyConfig{URL: proxyURL, Region: proxyRegion}
	}
	if lastUpdatedAt.Valid {
		feed.LastUpdatedAt = lastUpdatedAt.Time
	}
	return &feed, nil
}

// RecordArticle inserts article if its link has not been seen before.
// It reports inserted=false on a duplicate link rather than treating the
// conflict as an error, so callers can loop over a feed's entries
// without pre-checking existence.
func (s *ArticleStore) RecordArticle(ctx context.Context, article *entity.Article) (inserted bool, id int64, err error) {
	tagsJSON, err := json.Marshal(article.Tags)
	if err != nil {
		return false, 0, fmt.Errorf("RecordArticle: marshal tags: %w", err)
	}
	mediaJSON, err := json.Marshal(article.Media)
	if err != nil {
		return false, 0, fmt.Errorf("RecordArticle: marshal media: %w", err)
	}
	extJSON, err := json.Marshal(article.Extensions)
	if err != nil {
		return false, 0, fmt.Errorf("RecordArticle: marshal extensions: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
INSERT INTO articles
	(feed_id, title, link, guid, description, content, author, published_at, updated_at, category, tags_json, media_json, extensions_json, ingested_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(link) DO NOTHING
`,
		article.FeedID, article.Title, article.Link, article.GUID,
		article.Description, article.Content, article.Author,
		article.PublishedAt, article.UpdatedAt, article.Category,
		string(tagsJSON), string(mediaJSON), string(extJSON),
		article.IngestedAt,
	)
	if err != nil {
		return false, 0, classifyExecErr("RecordArticle", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, 0, fmt.Errorf("RecordArticle: RowsAffected: %w", err)
	}
	if n == 0 {
		return false, 0, nil
	}

	insertedID, err := res.LastInsertId()
	if err != nil {
		return false, 0, fmt.Errorf("RecordArticle: LastInsertId: %w", err)
	}
	return true, insertedID, nil
}

// ArticlesSince returns articles ingested at or after cutoff, for feeds
// in feedIDs, ordered oldest-first by (published_at, ingested_at) so a
// dispatcher reading in order advances its watermark monotonically even
// when a slow feed backfills an older published_at after a newer one
// was already ingested. limit bounds a single dispatch tick's batch.
func (s *ArticleStore) ArticlesSince(ctx context.Context, feedIDs []string, cutoff time.Time, limit int) ([]*entity.Article, error) {
	if len(feedIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(feedIDs))
	args := make([]interface{}, 0, len(feedIDs)+2)
	for i, id := range feedIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	args = append(args, cutoff, limit)

	query := fmt.Sprintf(`
SELECT id, feed_id, title, link, guid, description, content, author, published_at, updated_at, category, tags_json, media_json, extensions_json, ingested_at
FROM articles
WHERE feed_id IN (%s) AND ingested_at >= ?
ORDER BY published_at ASC, ingested_at ASC
LIMIT ?
`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyExecErr("ArticlesSince", err)
	}
	defer func() { _ = rows.Close() }()

	articles := make([]*entity.Article, 0, limit)
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("ArticlesSince: Scan: %w", err)
		}
		articles = append(articles, article)
	}
	return articles, rows.Err()
}

func scanArticle(rows *sql.Rows) (*entity.Article, error) {
	var (
		article                      entity.Article
		updatedAt                    sql.NullTime
		tagsJSON, mediaJSON, extJSON string
	)
	if err := rows.Scan(
		&article.ID, &article.FeedID, &article.Title, &article.Link, &article.GUID,
		&article.Description, &article.Content, &article.Author,
		&article.PublishedAt, &updatedAt, &article.Category,
		&tagsJSON, &mediaJSON, &extJSON, &article.IngestedAt,
	); err != nil {
		return nil, err
	}
	if updatedAt.Valid {
		article.UpdatedAt = updatedAt.Time
	}
	if err := json.Unmarshal([]byte(tagsJSON), &article.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if err := json.Unmarshal([]byte(mediaJSON), &article.Media); err != nil {
		return nil, fmt.Errorf("unmarshal media: %w", err)
	}
	if err := json.Unmarshal([]byte(extJSON), &article.Extensions); err != nil {
		return nil, fmt.Errorf("unmarshal extensions: %w", err)
	}
	return &article, nil
}

// Prune deletes articles ingested more than olderThanDays ago and
// reports how many rows were removed.
func (s *ArticleStore) Prune(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	res, err := s.db.ExecContext(ctx, `DELETE FROM articles WHERE ingested_at < ?`, cutoff)
	if err != nil {
		return 0, classifyExecErr("Prune", err)
	}
	return res.RowsAffected()
}

// classifyExecErr maps a sqlite-busy condition to StorageBusyError so
// callers can apply the small bounded retry the store's connection-pool
// doc comment promises, instead of treating contention as fatal.
func classifyExecErr(op string, err error) error {
	var sqliteErr sqlite3.Error
	if asSqliteErr(err, &sqliteErr) && (sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked) {
		return &entity.StorageBusyError{Op: op}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func asSqliteErr(err error, target *sqlite3.Error) bool {
	if se, ok := err.(sqlite3.Error); ok {
		*target = se
		return true
	}
	return false
}
