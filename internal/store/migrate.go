package store

import "database/sql"

// baseArticleColumns lists every optional column the articles table must
// carry. On open, any column missing from an older on-disk file is added
// with a permissive default so the store stays forward-compatible
// without a full migration tool.
var baseArticleColumns = []struct {
	name       string
	definition string
}{
	{"guid", "TEXT NOT NULL DEFAULT ''"},
	{"description", "TEXT NOT NULL DEFAULT ''"},
	{"content", "TEXT NOT NULL DEFAULT ''"},
	{"author", "TEXT NOT NULL DEFAULT ''"},
	{"updated_at", "TIMESTAMP"},
	{"category", "TEXT NOT NULL DEFAULT ''"},
	{"tags_json", "TEXT NOT NULL DEFAULT '[]'"},
	{"media_json", "TEXT NOT NULL DEFAULT '[]'"},
	{"extensions_json", "TEXT NOT NULL DEFAULT '{}'"},
}

// Migrate creates the feeds/articles schema if absent and backfills any
// optional article column an older file is missing.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS feeds (
	id                TEXT PRIMARY KEY,
	url               TEXT NOT NULL UNIQUE,
	name              TEXT NOT NULL DEFAULT '',
	group_tag         TEXT NOT NULL DEFAULT '',
	active            BOOLEAN NOT NULL DEFAULT 1,
	proxy_required    BOOLEAN NOT NULL DEFAULT 0,
	proxy_url         TEXT NOT NULL DEFAULT '',
	proxy_region      TEXT NOT NULL DEFAULT '',
	first_parse_done  BOOLEAN NOT NULL DEFAULT 0,
	last_updated_at   TIMESTAMP
)`); err != nil {
		return err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS articles (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	feed_id      TEXT NOT NULL,
	title        TEXT NOT NULL,
	link         TEXT NOT NULL UNIQUE,
	published_at TIMESTAMP NOT NULL,
	ingested_at  TIMESTAMP NOT NULL
)`); err != nil {
		return err
	}

	if err := backfillArticleColumns(db); err != nil {
		return err
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_articles_link ON articles(link)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_ingested_at ON articles(ingested_at)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_feed_id ON articles(feed_id)`,
		`CREATE INDEX IF NOT EXISTS idx_feeds_active ON feeds(active)`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return err
		}
	}

	return nil
}

func backfillArticleColumns(db *sql.DB) error {
	existing, err := existingColumns(db, "articles")
	if err != nil {
		return err
	}

	for _, col := range baseArticleColumns {
		if existing[col.name] {
			continue
		}
		if _, err := db.Exec("ALTER TABLE articles ADD COLUMN " + col.name + " " + col.definition); err != nil {
			return err
		}
	}
	return nil
}

func existingColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name       string
			ctype      string
			notNull    int
			dfltValue  sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &primaryKey); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}
