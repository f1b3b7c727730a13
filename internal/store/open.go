// Package store implements the ArticleStore: a single embedded SQL file
// holding the feeds and articles relations, opened with
// connection-per-call discipline so the Ingestor (writer) and Dispatcher
// (reader) can share the file across processes.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Open creates the sqlite connection pool for path and runs migrations.
// A busy_timeout pragma is set so that the reader (Dispatcher) tolerates
// the writer (Ingestor) holding a short write lock instead of failing
// outright; callers still need their own bounded-retry for StorageBusy.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A single embedded file tolerates only one writer; keep the pool
	// small so sqlite3's own locking, not Go's pool, is the bottleneck.
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("article store opened", slog.String("path", path))
	return db, nil
}
