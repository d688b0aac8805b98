package sqlstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"skyfeed/internal/model"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), "sqlite", ":memory:", Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, db *DB) {
	t.Helper()
	ctx := context.Background()
	for _, a := range []model.Author{{ID: "alice", Handle: "alice", Verified: true, Region: "KE"}, {ID: "bob", Handle: "bob"}, {ID: "carol", Handle: "carol"}, {ID: "me", Handle: "me"}} {
		if err := db.PutAuthor(ctx, a); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.Follow(ctx, "me", "alice"); err != nil {
		t.Fatal(err)
	}
	if err := db.Follow(ctx, "me", "bob"); err != nil {
		t.Fatal(err)
	}
	tweets := []model.Tweet{
		{ID: "t1", AuthorID: "alice", Content: "one", CreatedAt: t0.Add(-1 * time.Hour), Categories: []model.CategoryShare{{Category: model.CategoryTechnology, Percentage: 70}, {Category: model.CategoryScience, Percentage: 30}}},
		{ID: "t2", AuthorID: "bob", Content: "two", CreatedAt: t0.Add(-2 * time.Hour), Media: []model.MediaRef{{Kind: model.MediaImage, URL: "https://img/1"}}},
		{ID: "t3", AuthorID: "bob", Content: "three", CreatedAt: t0.Add(-2 * time.Hour)},
		{ID: "t4", AuthorID: "carol", Content: "four", CreatedAt: t0.Add(-3 * time.Hour), Categories: []model.CategoryShare{{Category: model.CategoryTechnology, Percentage: 100}}},
		{ID: "t5", AuthorID: "alice", Content: "old", CreatedAt: t0.Add(-72 * time.Hour)},
		{ID: "t6", AuthorID: "me", Content: "mine", CreatedAt: t0.Add(-30 * time.Minute), Categories: []model.CategoryShare{{Category: model.CategoryTechnology, Percentage: 100}}},
	}
	for _, tw := range tweets {
		if err := db.PutTweet(ctx, tw); err != nil {
			t.Fatal(err)
		}
	}
}

func ids(ts []model.Tweet) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSQLite(t *testing.T) { runSuite(t, openTest) }

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	runSuite(t, func(t *testing.T) *DB {
		db, err := Open(context.Background(), "postgres", dsn, Options{MaxOpenConns: 4})
		if err != nil {
			t.Fatal(err)
		}
		for _, tbl := range []string{"authors", "follows", "tweets", "tweet_categories", "user_interests", "timeline_cursors"} {
			if _, err := db.sql.Exec("TRUNCATE " + tbl); err != nil {
				t.Fatal(err)
			}
		}
		t.Cleanup(func() { _ = db.Close() })
		return db
	})
}

func runSuite(t *testing.T, open func(*testing.T) *DB) {
	t.Run("following keyset", func(t *testing.T) {
		db := open(t)
		seed(t, db)
		ctx := context.Background()
		page, err := db.FollowingTweets(ctx, "me", nil, t0.Add(-48*time.Hour), 3)
		if err != nil {
			t.Fatal(err)
		}
		if got := ids(page); !equal(got, []string{"t1", "t3", "t2"}) {
			t.Fatalf("first page: %v", got)
		}
		last := page[len(page)-1]
		next, err := db.FollowingTweets(ctx, "me", &Position{CreatedAt: last.CreatedAt, ID: last.ID}, time.Time{}, 3)
		if err != nil {
			t.Fatal(err)
		}
		if got := ids(next); !equal(got, []string{"t5"}) {
			t.Fatalf("second page: %v", got)
		}
		if page[2].Media[0].Kind != model.MediaImage {
			t.Fatalf("media not round-tripped: %+v", page[2].Media)
		}
	})

	t.Run("no follows", func(t *testing.T) {
		db := open(t)
		seed(t, db)
		page, err := db.FollowingTweets(context.Background(), "carol", nil, time.Time{}, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(page) != 0 {
			t.Fatalf("expected empty, got %v", ids(page))
		}
	})

	t.Run("categories batch", func(t *testing.T) {
		db := open(t)
		seed(t, db)
		m, err := db.TweetCategories(context.Background(), []string{"t1", "t2", "t4"})
		if err != nil {
			t.Fatal(err)
		}
		if len(m["t1"]) != 2 || m["t1"][0].Category != model.CategoryTechnology || m["t1"][0].Percentage != 70 {
			t.Fatalf("t1: %+v", m["t1"])
		}
		if _, ok := m["t2"]; ok {
			t.Fatal("uncategorized tweet should be absent")
		}
	})

	t.Run("reject bad categories", func(t *testing.T) {
		db := open(t)
		err := db.PutTweet(context.Background(), model.Tweet{ID: "x", AuthorID: "a", CreatedAt: t0, Categories: []model.CategoryShare{{Category: model.CategoryArt, Percentage: 40}}})
		if err == nil {
			t.Fatal("expected sum-to-100 violation")
		}
	})

	t.Run("hot tweets outside network", func(t *testing.T) {
		db := open(t)
		seed(t, db)
		ctx := context.Background()
		if err := db.UpdateHotness(ctx, "t4", 5, t0); err != nil {
			t.Fatal(err)
		}
		if err := db.UpdateHotness(ctx, "t1", 9, t0); err != nil {
			t.Fatal(err)
		}
		got, err := db.HotTweets(ctx, HotQuery{Categories: []model.Category{model.CategoryTechnology}, OutsideNetworkOf: "me", Limit: 10})
		if err != nil {
			t.Fatal(err)
		}
		if !equal(ids(got), []string{"t4"}) {
			t.Fatalf("outside network: %v", ids(got))
		}
		all, err := db.HotTweets(ctx, HotQuery{Since: t0.Add(-24 * time.Hour), Limit: 2})
		if err != nil {
			t.Fatal(err)
		}
		if !equal(ids(all), []string{"t1", "t4"}) {
			t.Fatalf("by hotness: %v", ids(all))
		}
	})

	t.Run("authors and interests", func(t *testing.T) {
		db := open(t)
		seed(t, db)
		ctx := context.Background()
		as, err := db.Authors(ctx, []string{"alice", "bob", "nobody"})
		if err != nil {
			t.Fatal(err)
		}
		if len(as) != 2 || !as["alice"].Verified || as["alice"].Region != "KE" {
			t.Fatalf("authors: %+v", as)
		}
		if err := db.SetInterest(ctx, model.UserInterest{UserID: "me", Category: model.CategoryScience, Score: 4}); err != nil {
			t.Fatal(err)
		}
		if err := db.AddInterest(ctx, "me", model.CategoryTechnology, 3); err != nil {
			t.Fatal(err)
		}
		if err := db.AddInterest(ctx, "me", model.CategoryTechnology, 5); err != nil {
			t.Fatal(err)
		}
		in, err := db.UserInterests(ctx, "me")
		if err != nil {
			t.Fatal(err)
		}
		if len(in) != 2 || in[0].Category != model.CategoryTechnology || in[0].Score != 8 {
			t.Fatalf("interests: %+v", in)
		}
	})

	t.Run("counters floor at zero", func(t *testing.T) {
		db := open(t)
		seed(t, db)
		ctx := context.Background()
		if err := db.IncrementCounter(ctx, "t1", CounterLikes, 2); err != nil {
			t.Fatal(err)
		}
		if err := db.IncrementCounter(ctx, "t1", CounterLikes, -5); err != nil {
			t.Fatal(err)
		}
		tw, err := db.Tweet(ctx, "t1")
		if err != nil {
			t.Fatal(err)
		}
		if tw.Likes != 0 {
			t.Fatalf("likes: %d", tw.Likes)
		}
		if err := db.IncrementCounter(ctx, "missing", CounterLikes, 1); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := db.IncrementCounter(ctx, "t1", Counter("hotness"), 1); err == nil {
			t.Fatal("expected unknown counter error")
		}
	})

	t.Run("soft delete hides tweet", func(t *testing.T) {
		db := open(t)
		seed(t, db)
		ctx := context.Background()
		if err := db.SoftDelete(ctx, "t1", t0); err != nil {
			t.Fatal(err)
		}
		got, err := db.TweetsByIDs(ctx, []string{"t1", "t2"})
		if err != nil {
			t.Fatal(err)
		}
		if !equal(ids(got), []string{"t2"}) {
			t.Fatalf("by ids: %v", ids(got))
		}
	})

	t.Run("expire hotness", func(t *testing.T) {
		db := open(t)
		seed(t, db)
		ctx := context.Background()
		_ = db.UpdateHotness(ctx, "t5", 3, t0)
		_ = db.UpdateHotness(ctx, "t1", 3, t0)
		expired, err := db.ExpireHotness(ctx, t0.Add(-48*time.Hour))
		if err != nil {
			t.Fatal(err)
		}
		if !equal(expired, []string{"t5"}) {
			t.Fatalf("expired: %v", expired)
		}
		live, err := db.TweetsCreatedSince(ctx, t0.Add(-48*time.Hour), "", 100)
		if err != nil {
			t.Fatal(err)
		}
		if len(live) != 5 {
			t.Fatalf("live: %v", ids(live))
		}
	})

	t.Run("engagement applies once", func(t *testing.T) {
		db := open(t)
		seed(t, db)
		ctx := context.Background()
		applied, err := db.ApplyEngagement(ctx, "ev-1", "t1", CounterReposts, 1, t0)
		if err != nil || !applied {
			t.Fatalf("first apply=%v err=%v", applied, err)
		}
		again, err := db.ApplyEngagement(ctx, "ev-1", "t1", CounterReposts, 1, t0)
		if err != nil || again {
			t.Fatalf("second apply=%v err=%v", again, err)
		}
		tw, err := db.Tweet(ctx, "t1")
		if err != nil {
			t.Fatal(err)
		}
		if tw.Reposts != 1 {
			t.Fatalf("reposts: %d", tw.Reposts)
		}
	})

	t.Run("failed engagement is not recorded", func(t *testing.T) {
		db := open(t)
		ctx := context.Background()
		if _, err := db.ApplyEngagement(ctx, "ev-2", "late", CounterLikes, 1, t0); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := db.PutTweet(ctx, model.Tweet{ID: "late", AuthorID: "alice", CreatedAt: t0}); err != nil {
			t.Fatal(err)
		}
		applied, err := db.ApplyEngagement(ctx, "ev-2", "late", CounterLikes, 1, t0)
		if err != nil || !applied {
			t.Fatalf("redelivered apply=%v err=%v", applied, err)
		}
		tw, err := db.Tweet(ctx, "late")
		if err != nil {
			t.Fatal(err)
		}
		if tw.Likes != 1 {
			t.Fatalf("likes: %d", tw.Likes)
		}
	})

	t.Run("cursor compare and swap", func(t *testing.T) {
		db := open(t)
		ctx := context.Background()
		c, err := db.LoadTimelineCursor(ctx, "me")
		if err != nil {
			t.Fatal(err)
		}
		if c.LastPosition != 0 {
			t.Fatalf("fresh cursor: %+v", c)
		}
		ok, err := db.AdvanceTimelineCursor(ctx, "me", 0, 20, "t20")
		if err != nil || !ok {
			t.Fatalf("first advance ok=%v err=%v", ok, err)
		}
		// stale writer loses
		ok, err = db.AdvanceTimelineCursor(ctx, "me", 0, 20, "t20b")
		if err != nil || ok {
			t.Fatalf("stale advance ok=%v err=%v", ok, err)
		}
		// regression refused
		ok, _ = db.AdvanceTimelineCursor(ctx, "me", 20, 10, "t10")
		if ok {
			t.Fatal("cursor regressed")
		}
		ok, err = db.AdvanceTimelineCursor(ctx, "me", 20, 40, "t40")
		if err != nil || !ok {
			t.Fatalf("second advance ok=%v err=%v", ok, err)
		}
		c, _ = db.LoadTimelineCursor(ctx, "me")
		if c.LastPosition != 40 || c.LastTweetID != "t40" || c.UpdatedAt.IsZero() {
			t.Fatalf("cursor: %+v", c)
		}
	})
}

func TestRebind(t *testing.T) {
	d := &DB{dialect: dialectPostgres}
	if got := d.rebind("a=? AND b IN (?,?)"); got != "a=$1 AND b IN ($2,$3)" {
		t.Fatalf("rebind: %s", got)
	}
	s := &DB{dialect: dialectSQLite}
	pred, args := s.in("id", []string{"a", "b"})
	if pred != "id IN (?,?)" || len(args) != 2 {
		t.Fatalf("in: %s %v", pred, args)
	}
}
