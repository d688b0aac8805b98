package sqlstore

import (
	"context"
	"errors"
	"time"

	"skyfeed/internal/model"
)

// PutAuthor inserts or replaces an author profile.
func (d *DB) PutAuthor(ctx context.Context, a model.Author) error {
	if a.ID == "" {
		return errors.New("author id is required")
	}
	_, err := d.sql.ExecContext(ctx, d.rebind(`INSERT INTO authors(id, handle, verified, region) VALUES(?,?,?,?)
	ON CONFLICT(id) DO UPDATE SET handle=excluded.handle, verified=excluded.verified, region=excluded.region`),
		a.ID, a.Handle, a.Verified, a.Region)
	return err
}

// Authors loads profiles for ids in one query.
func (d *DB) Authors(ctx context.Context, ids []string) (map[string]model.Author, error) {
	out := make(map[string]model.Author, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	pred, args := d.in("id", ids)
	rows, err := d.sql.QueryContext(ctx, d.rebind(`SELECT id, handle, verified, region FROM authors WHERE `+pred), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var a model.Author
		if err := rows.Scan(&a.ID, &a.Handle, &a.Verified, &a.Region); err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

// Follow records follower -> followee. Idempotent.
func (d *DB) Follow(ctx context.Context, followerID, followeeID string) error {
	_, err := d.sql.ExecContext(ctx, d.rebind(`INSERT INTO follows(follower_id, followee_id) VALUES(?,?) ON CONFLICT DO NOTHING`), followerID, followeeID)
	return err
}

// Unfollow removes follower -> followee.
func (d *DB) Unfollow(ctx context.Context, followerID, followeeID string) error {
	_, err := d.sql.ExecContext(ctx, d.rebind(`DELETE FROM follows WHERE follower_id=? AND followee_id=?`), followerID, followeeID)
	return err
}

// Following lists ids userID follows.
func (d *DB) Following(ctx context.Context, userID string) ([]string, error) {
	rows, err := d.sql.QueryContext(ctx, d.rebind(`SELECT followee_id FROM follows WHERE follower_id=? ORDER BY followee_id`), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SetInterest overwrites a user's affinity score for one category.
func (d *DB) SetInterest(ctx context.Context, in model.UserInterest) error {
	_, err := d.sql.ExecContext(ctx, d.rebind(`INSERT INTO user_interests(user_id, category, score) VALUES(?,?,?)
	ON CONFLICT(user_id, category) DO UPDATE SET score=excluded.score`), in.UserID, string(in.Category), in.Score)
	return err
}

// AddInterest adjusts a user's affinity score by delta.
func (d *DB) AddInterest(ctx context.Context, userID string, c model.Category, delta int64) error {
	_, err := d.sql.ExecContext(ctx, d.rebind(`INSERT INTO user_interests(user_id, category, score) VALUES(?,?,?)
	ON CONFLICT(user_id, category) DO UPDATE SET score = user_interests.score + excluded.score`), userID, string(c), delta)
	return err
}

// UserInterests returns all of a user's category scores, highest first.
func (d *DB) UserInterests(ctx context.Context, userID string) ([]model.UserInterest, error) {
	rows, err := d.sql.QueryContext(ctx, d.rebind(`SELECT category, score FROM user_interests WHERE user_id=? ORDER BY score DESC, category`), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.UserInterest
	for rows.Next() {
		in := model.UserInterest{UserID: userID}
		var cat string
		if err := rows.Scan(&cat, &in.Score); err != nil {
			return nil, err
		}
		in.Category = model.Category(cat)
		out = append(out, in)
	}
	return out, rows.Err()
}

// LoadTimelineCursor returns the user's stored cursor, or a zero cursor
// when none has been written yet.
func (d *DB) LoadTimelineCursor(ctx context.Context, userID string) (model.TimelineCursor, error) {
	c := model.TimelineCursor{UserID: userID}
	var updated int64
	err := d.sql.QueryRowContext(ctx, d.rebind(`SELECT last_tweet_id, last_position, updated_at FROM timeline_cursors WHERE user_id=?`), userID).
		Scan(&c.LastTweetID, &c.LastPosition, &updated)
	if err != nil {
		if isNoRows(err) {
			return c, nil
		}
		return c, err
	}
	c.UpdatedAt = fromMicros(updated)
	return c, nil
}

// AdvanceTimelineCursor moves the cursor from expected to next. It reports
// false without writing when the stored position is no longer expected or
// next would move it backwards.
func (d *DB) AdvanceTimelineCursor(ctx context.Context, userID string, expected, next int64, lastTweetID string) (bool, error) {
	if next < expected {
		return false, nil
	}
	now := micros(time.Now())
	if expected == 0 {
		res, err := d.sql.ExecContext(ctx, d.rebind(`INSERT INTO timeline_cursors(user_id, last_tweet_id, last_position, updated_at) VALUES(?,?,?,?) ON CONFLICT(user_id) DO NOTHING`),
			userID, lastTweetID, next, now)
		if err != nil {
			return false, err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return true, nil
		}
	}
	res, err := d.sql.ExecContext(ctx, d.rebind(`UPDATE timeline_cursors SET last_tweet_id=?, last_position=?, updated_at=? WHERE user_id=? AND last_position=?`),
		lastTweetID, next, now, userID, expected)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}
