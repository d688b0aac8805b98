package trending

import (
	"context"
	"errors"
	"testing"
	"time"

	"skyfeed/internal/model"
	"skyfeed/internal/store/sqlstore"
)

type stubIndex struct {
	entries []Scored
	err     error
}

func (s stubIndex) Top(_ context.Context, _ model.Category, n int) ([]Scored, error) {
	if s.err != nil {
		return nil, s.err
	}
	if n > len(s.entries) {
		n = len(s.entries)
	}
	return s.entries[:n], nil
}

func setup(t *testing.T) (*sqlstore.DB, time.Time) {
	t.Helper()
	ctx := context.Background()
	db, err := sqlstore.Open(ctx, "sqlite", ":memory:", sqlstore.Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	now := time.Now().UTC().Truncate(time.Second)
	tweets := []model.Tweet{
		{ID: "a", AuthorID: "x", Content: "a", CreatedAt: now.Add(-time.Hour), Categories: []model.CategoryShare{{Category: model.CategoryMusic, Percentage: 100}}},
		{ID: "b", AuthorID: "x", Content: "b", CreatedAt: now.Add(-2 * time.Hour), Categories: []model.CategoryShare{{Category: model.CategoryGaming, Percentage: 100}}},
		{ID: "c", AuthorID: "x", Content: "c", CreatedAt: now.Add(-3 * time.Hour)},
		{ID: "stale", AuthorID: "x", Content: "s", CreatedAt: now.Add(-9 * 24 * time.Hour)},
	}
	for _, tw := range tweets {
		if err := db.PutTweet(ctx, tw); err != nil {
			t.Fatal(err)
		}
	}
	for id, h := range map[string]float64{"a": 3, "b": 7, "c": 0} {
		if err := db.UpdateHotness(ctx, id, h, now); err != nil {
			t.Fatal(err)
		}
	}
	return db, now
}

func ids(ts []model.Tweet) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.ID
	}
	return out
}

func TestTopFromStore(t *testing.T) {
	db, _ := setup(t)
	s := NewService(nil, db, 0)
	got, err := s.Top(context.Background(), model.CategoryAll, 10)
	if err != nil {
		t.Fatal(err)
	}
	if g := ids(got); len(g) != 2 || g[0] != "b" || g[1] != "a" {
		t.Fatalf("all: %v", g)
	}
	got, err = s.Top(context.Background(), model.CategoryMusic, 10)
	if err != nil {
		t.Fatal(err)
	}
	if g := ids(got); len(g) != 1 || g[0] != "a" {
		t.Fatalf("music: %v", g)
	}
}

func TestTopFromIndexDropsStaleAndDeleted(t *testing.T) {
	db, now := setup(t)
	if err := db.SoftDelete(context.Background(), "b", now); err != nil {
		t.Fatal(err)
	}
	idx := stubIndex{entries: []Scored{{"stale", 50}, {"b", 20}, {"c", 5}, {"a", 5}}}
	s := NewService(idx, db, 0)
	got, err := s.Top(context.Background(), model.CategoryAll, 2)
	if err != nil {
		t.Fatal(err)
	}
	// a and c tie on score; a is newer
	if g := ids(got); len(g) != 2 || g[0] != "a" || g[1] != "c" {
		t.Fatalf("got %v", g)
	}
	if got[0].Hotness != 5 {
		t.Fatalf("index score not applied: %v", got[0].Hotness)
	}
}

func TestTopFallsBackWhenIndexFails(t *testing.T) {
	db, _ := setup(t)
	s := NewService(stubIndex{err: errors.New("connection refused")}, db, 0)
	got, err := s.Top(context.Background(), model.CategoryAll, 1)
	if err != nil {
		t.Fatal(err)
	}
	if g := ids(got); len(g) != 1 || g[0] != "b" {
		t.Fatalf("got %v", g)
	}
}
