package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"skyfeed/internal/model"
)

const tweetCols = `t.id, t.author_id, t.content, t.media, t.created_at, t.likes, t.reposts, t.quotes,
 t.replies, t.views, t.bookmarks, t.deleted_at, t.type, t.parent_id, t.conversation_id, t.hotness, t.hotness_at`

type scanner interface{ Scan(dest ...any) error }

func scanTweet(s scanner) (model.Tweet, error) {
	var (
		t         model.Tweet
		media     string
		created   int64
		deleted   sql.NullInt64
		typ       string
		hotnessAt int64
	)
	err := s.Scan(&t.ID, &t.AuthorID, &t.Content, &media, &created,
		&t.Likes, &t.Reposts, &t.Quotes, &t.Replies, &t.Views, &t.Bookmarks,
		&deleted, &typ, &t.ParentID, &t.ConversationID, &t.Hotness, &hotnessAt)
	if err != nil {
		return t, err
	}
	if media != "" && media != "[]" {
		if err := json.Unmarshal([]byte(media), &t.Media); err != nil {
			return t, fmt.Errorf("tweet %s media: %w", t.ID, err)
		}
	}
	t.CreatedAt = fromMicros(created)
	if deleted.Valid {
		at := fromMicros(deleted.Int64)
		t.DeletedAt = &at
	}
	t.Type = model.TweetType(typ)
	if hotnessAt > 0 {
		t.HotnessAt = fromMicros(hotnessAt)
	}
	return t, nil
}

func collectTweets(rows *sql.Rows) ([]model.Tweet, error) {
	defer rows.Close()
	var out []model.Tweet
	for rows.Next() {
		t, err := scanTweet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// PutTweet inserts or replaces a tweet and its category distribution.
func (d *DB) PutTweet(ctx context.Context, t model.Tweet) error {
	if t.ID == "" || t.AuthorID == "" {
		return errors.New("tweet id and author id are required")
	}
	if err := model.ValidateCategories(t.Categories); err != nil {
		return fmt.Errorf("tweet %s: %w", t.ID, err)
	}
	if t.Type == "" {
		t.Type = model.TweetOriginal
	}
	media := "[]"
	if len(t.Media) > 0 {
		b, err := json.Marshal(t.Media)
		if err != nil {
			return err
		}
		media = string(b)
	}
	var deleted any
	if t.DeletedAt != nil {
		deleted = micros(*t.DeletedAt)
	}
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	_, err = tx.ExecContext(ctx, d.rebind(`INSERT INTO tweets(id, author_id, content, media, created_at, likes, reposts, quotes, replies, views, bookmarks, deleted_at, type, parent_id, conversation_id)
	VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	ON CONFLICT(id) DO UPDATE SET author_id=excluded.author_id, content=excluded.content, media=excluded.media,
	  created_at=excluded.created_at, likes=excluded.likes, reposts=excluded.reposts, quotes=excluded.quotes,
	  replies=excluded.replies, views=excluded.views, bookmarks=excluded.bookmarks, deleted_at=excluded.deleted_at,
	  type=excluded.type, parent_id=excluded.parent_id, conversation_id=excluded.conversation_id`),
		t.ID, t.AuthorID, t.Content, media, micros(t.CreatedAt), t.Likes, t.Reposts, t.Quotes, t.Replies, t.Views, t.Bookmarks,
		deleted, string(t.Type), t.ParentID, t.ConversationID)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM tweet_categories WHERE tweet_id=?`), t.ID); err != nil {
		return err
	}
	for _, c := range t.Categories {
		if _, err := tx.ExecContext(ctx, d.rebind(`INSERT INTO tweet_categories(tweet_id, category, percentage) VALUES(?,?,?)`), t.ID, string(c.Category), c.Percentage); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SoftDelete marks a tweet deleted. Its row and counters stay.
func (d *DB) SoftDelete(ctx context.Context, id string, at time.Time) error {
	res, err := d.sql.ExecContext(ctx, d.rebind(`UPDATE tweets SET deleted_at=?, hotness=0 WHERE id=? AND deleted_at IS NULL`), micros(at), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Tweet loads one tweet including soft-deleted ones.
func (d *DB) Tweet(ctx context.Context, id string) (model.Tweet, error) {
	row := d.sql.QueryRowContext(ctx, d.rebind(`SELECT `+tweetCols+` FROM tweets t WHERE t.id=?`), id)
	t, err := scanTweet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

// TweetsByIDs loads live tweets for ids in one query. Order is unspecified
// and missing or deleted ids are skipped.
func (d *DB) TweetsByIDs(ctx context.Context, ids []string) ([]model.Tweet, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	pred, args := d.in("t.id", ids)
	rows, err := d.sql.QueryContext(ctx, d.rebind(`SELECT `+tweetCols+` FROM tweets t WHERE `+pred+` AND t.deleted_at IS NULL`), args...)
	if err != nil {
		return nil, err
	}
	return collectTweets(rows)
}

// Position is a chronological keyset position (created_at, id).
type Position struct {
	CreatedAt time.Time
	ID        string
}

// FollowingTweets returns live tweets by accounts userID follows, newest
// first with id desc as tie-break, strictly after before when set, created
// no earlier than since when set.
func (d *DB) FollowingTweets(ctx context.Context, userID string, before *Position, since time.Time, limit int) ([]model.Tweet, error) {
	if limit <= 0 {
		return nil, nil
	}
	var (
		where = []string{"f.follower_id = ?", "t.deleted_at IS NULL"}
		args  = []any{userID}
	)
	if !since.IsZero() {
		where = append(where, "t.created_at >= ?")
		args = append(args, micros(since))
	}
	if before != nil {
		ts := micros(before.CreatedAt)
		where = append(where, "(t.created_at < ? OR (t.created_at = ? AND t.id < ?))")
		args = append(args, ts, ts, before.ID)
	}
	args = append(args, limit)
	q := `SELECT ` + tweetCols + ` FROM tweets t JOIN follows f ON f.followee_id = t.author_id
	WHERE ` + strings.Join(where, " AND ") + `
	ORDER BY t.created_at DESC, t.id DESC LIMIT ?`
	rows, err := d.sql.QueryContext(ctx, d.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	return collectTweets(rows)
}

// HotQuery filters HotTweets.
type HotQuery struct {
	// Categories restricts to tweets carrying any of them; empty means all.
	Categories []model.Category
	// Since drops tweets created before it.
	Since time.Time
	// OutsideNetworkOf excludes the viewer's own tweets and tweets by
	// accounts the viewer follows.
	OutsideNetworkOf string
	Limit            int
}

// HotTweets returns live tweets ordered by stored hotness, then newest, then id.
func (d *DB) HotTweets(ctx context.Context, q HotQuery) ([]model.Tweet, error) {
	if q.Limit <= 0 {
		return nil, nil
	}
	where := []string{"t.deleted_at IS NULL"}
	var args []any
	if !q.Since.IsZero() {
		where = append(where, "t.created_at >= ?")
		args = append(args, micros(q.Since))
	}
	if len(q.Categories) > 0 {
		cats := make([]string, len(q.Categories))
		for i, c := range q.Categories {
			cats[i] = string(c)
		}
		pred, cargs := d.in("c.category", cats)
		where = append(where, "EXISTS (SELECT 1 FROM tweet_categories c WHERE c.tweet_id = t.id AND "+pred+")")
		args = append(args, cargs...)
	}
	if q.OutsideNetworkOf != "" {
		where = append(where, "t.author_id <> ?", "NOT EXISTS (SELECT 1 FROM follows f WHERE f.follower_id = ? AND f.followee_id = t.author_id)")
		args = append(args, q.OutsideNetworkOf, q.OutsideNetworkOf)
	}
	args = append(args, q.Limit)
	query := `SELECT ` + tweetCols + ` FROM tweets t WHERE ` + strings.Join(where, " AND ") + `
	ORDER BY t.hotness DESC, t.created_at DESC, t.id ASC LIMIT ?`
	rows, err := d.sql.QueryContext(ctx, d.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return collectTweets(rows)
}

// TweetCategories returns category distributions for ids in one query.
// Uncategorized tweets are absent from the map.
func (d *DB) TweetCategories(ctx context.Context, ids []string) (map[string][]model.CategoryShare, error) {
	out := make(map[string][]model.CategoryShare, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	pred, args := d.in("tweet_id", ids)
	rows, err := d.sql.QueryContext(ctx, d.rebind(`SELECT tweet_id, category, percentage FROM tweet_categories WHERE `+pred+` ORDER BY tweet_id, percentage DESC, category`), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, cat string
		var pct int
		if err := rows.Scan(&id, &cat, &pct); err != nil {
			return nil, err
		}
		out[id] = append(out[id], model.CategoryShare{Category: model.Category(cat), Percentage: pct})
	}
	return out, rows.Err()
}

// Counter names an engagement counter column.
type Counter string

const (
	CounterLikes     Counter = "likes"
	CounterReposts   Counter = "reposts"
	CounterQuotes    Counter = "quotes"
	CounterReplies   Counter = "replies"
	CounterViews     Counter = "views"
	CounterBookmarks Counter = "bookmarks"
)

func (c Counter) valid() bool {
	switch c {
	case CounterLikes, CounterReposts, CounterQuotes, CounterReplies, CounterViews, CounterBookmarks:
		return true
	}
	return false
}

// IncrementCounter adds delta to one counter, flooring at zero.
func (d *DB) IncrementCounter(ctx context.Context, tweetID string, c Counter, delta int64) error {
	_, err := d.ApplyEngagement(ctx, "", tweetID, c, delta, time.Now())
	return err
}

// ApplyEngagement records eventID and adds delta to one counter in a single
// transaction. It reports false without writing when eventID was already
// applied. A failed increment leaves eventID unrecorded so a redelivery
// applies it. An empty eventID is never deduplicated.
func (d *DB) ApplyEngagement(ctx context.Context, eventID, tweetID string, c Counter, delta int64, at time.Time) (bool, error) {
	if !c.valid() {
		return false, fmt.Errorf("unknown counter %q", c)
	}
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()
	if eventID != "" {
		res, err := tx.ExecContext(ctx, d.rebind(`INSERT INTO processed_events(id, seen_at) VALUES(?,?) ON CONFLICT(id) DO NOTHING`), eventID, micros(at))
		if err != nil {
			return false, err
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return false, err
		}
	}
	col := string(c)
	q := `UPDATE tweets SET ` + col + ` = CASE WHEN ` + col + ` + ? < 0 THEN 0 ELSE ` + col + ` + ? END WHERE id = ? AND deleted_at IS NULL`
	res, err := tx.ExecContext(ctx, d.rebind(q), delta, delta, tweetID)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, ErrNotFound
	}
	return true, tx.Commit()
}

// UpdateHotness stores a recomputed hotness score.
func (d *DB) UpdateHotness(ctx context.Context, id string, score float64, at time.Time) error {
	_, err := d.sql.ExecContext(ctx, d.rebind(`UPDATE tweets SET hotness=?, hotness_at=? WHERE id=?`), score, micros(at), id)
	return err
}

// TweetsCreatedSince pages live tweets created at or after since by id.
func (d *DB) TweetsCreatedSince(ctx context.Context, since time.Time, afterID string, limit int) ([]model.Tweet, error) {
	rows, err := d.sql.QueryContext(ctx, d.rebind(`SELECT `+tweetCols+` FROM tweets t
	WHERE t.created_at >= ? AND t.deleted_at IS NULL AND t.id > ? ORDER BY t.id LIMIT ?`), micros(since), afterID, limit)
	if err != nil {
		return nil, err
	}
	return collectTweets(rows)
}

// ExpireHotness zeroes hotness of tweets created before cutoff (or deleted)
// that still carry a score, returning their ids.
func (d *DB) ExpireHotness(ctx context.Context, cutoff time.Time) ([]string, error) {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	rows, err := tx.QueryContext(ctx, d.rebind(`SELECT id FROM tweets WHERE hotness <> 0 AND (created_at < ? OR deleted_at IS NOT NULL)`), micros(cutoff))
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if _, err := tx.ExecContext(ctx, d.rebind(`UPDATE tweets SET hotness=0 WHERE hotness <> 0 AND (created_at < ? OR deleted_at IS NOT NULL)`), micros(cutoff)); err != nil {
		return nil, err
	}
	return ids, tx.Commit()
}
