// Package sqlstore persists tweets, the social graph, interests and
// timeline cursors in SQLite (embedded) or Postgres.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// Options tunes the connection pool. Zero values keep driver defaults.
type Options struct {
	MaxOpenConns int
	MaxIdleConns int
}

// DB wraps the relational store used by the ranking core.
type DB struct {
	sql     *sql.DB
	dialect dialect
}

// Open connects to driver ("sqlite" or "postgres") and applies migrations.
func Open(ctx context.Context, driver, dsn string, opts Options) (*DB, error) {
	var d dialect
	switch driver {
	case "sqlite", "":
		driver, d = "sqlite", dialectSQLite
	case "postgres":
		d = dialectPostgres
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	if dsn == "" {
		return nil, errors.New("empty dsn")
	}
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if d == dialectSQLite {
		// one writer, and ":memory:" is per-connection
		conn.SetMaxOpenConns(1)
		if _, err := conn.ExecContext(ctx, `PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=5000;`); err != nil {
			_ = conn.Close()
			return nil, err
		}
	} else {
		if opts.MaxOpenConns > 0 {
			conn.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			conn.SetMaxIdleConns(opts.MaxIdleConns)
		}
		conn.SetConnMaxLifetime(30 * time.Minute)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	db := &DB{sql: conn, dialect: d}
	if err := db.migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

// Ping reports whether the database is reachable.
func (d *DB) Ping(ctx context.Context) error { return d.sql.PingContext(ctx) }

var schema = []string{
	`CREATE TABLE IF NOT EXISTS authors (
	  id TEXT PRIMARY KEY,
	  handle TEXT NOT NULL,
	  verified BOOLEAN NOT NULL DEFAULT FALSE,
	  region TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS follows (
	  follower_id TEXT NOT NULL,
	  followee_id TEXT NOT NULL,
	  PRIMARY KEY (follower_id, followee_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_follows_followee ON follows(followee_id)`,
	`CREATE TABLE IF NOT EXISTS tweets (
	  id TEXT PRIMARY KEY,
	  author_id TEXT NOT NULL,
	  content TEXT NOT NULL,
	  media TEXT NOT NULL DEFAULT '[]',
	  created_at BIGINT NOT NULL,
	  likes BIGINT NOT NULL DEFAULT 0,
	  reposts BIGINT NOT NULL DEFAULT 0,
	  quotes BIGINT NOT NULL DEFAULT 0,
	  replies BIGINT NOT NULL DEFAULT 0,
	  views BIGINT NOT NULL DEFAULT 0,
	  bookmarks BIGINT NOT NULL DEFAULT 0,
	  deleted_at BIGINT,
	  type TEXT NOT NULL DEFAULT 'original',
	  parent_id TEXT NOT NULL DEFAULT '',
	  conversation_id TEXT NOT NULL DEFAULT '',
	  hotness DOUBLE PRECISION NOT NULL DEFAULT 0,
	  hotness_at BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tweets_author_created ON tweets(author_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_tweets_created ON tweets(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_tweets_hotness ON tweets(hotness)`,
	`CREATE TABLE IF NOT EXISTS tweet_categories (
	  tweet_id TEXT NOT NULL,
	  category TEXT NOT NULL,
	  percentage INTEGER NOT NULL,
	  PRIMARY KEY (tweet_id, category)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tweet_categories_category ON tweet_categories(category)`,
	`CREATE TABLE IF NOT EXISTS user_interests (
	  user_id TEXT NOT NULL,
	  category TEXT NOT NULL,
	  score BIGINT NOT NULL,
	  PRIMARY KEY (user_id, category)
	)`,
	`CREATE TABLE IF NOT EXISTS processed_events (
	  id TEXT PRIMARY KEY,
	  seen_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS timeline_cursors (
	  user_id TEXT PRIMARY KEY,
	  last_tweet_id TEXT NOT NULL DEFAULT '',
	  last_position BIGINT NOT NULL,
	  updated_at BIGINT NOT NULL
	)`,
}

func (d *DB) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.sql.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (d *DB) rebind(q string) string {
	if d.dialect != dialectPostgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 16)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// in renders a membership predicate for col against vals. Postgres gets a
// single array parameter, SQLite an expanded placeholder list.
func (d *DB) in(col string, vals []string) (string, []any) {
	if d.dialect == dialectPostgres {
		return col + " = ANY(?)", []any{pq.Array(vals)}
	}
	args := make([]any, len(vals))
	for i, v := range vals {
		args[i] = v
	}
	return col + " IN (" + strings.TrimSuffix(strings.Repeat("?,", len(vals)), ",") + ")", args
}

func isNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }

func micros(t time.Time) int64 { return t.UTC().UnixMicro() }

func fromMicros(v int64) time.Time { return time.UnixMicro(v).UTC() }
