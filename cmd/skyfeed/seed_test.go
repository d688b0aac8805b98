package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"skyfeed/internal/model"
	"skyfeed/internal/store/sqlstore"
)

const fixtureYAML = `
authors:
  - {id: alice, handle: alice, verified: true, region: us}
  - {id: bob, handle: bob}
follows:
  - {follower: alice, followee: bob}
interests:
  - {user_id: alice, category: music, score: 12}
tweets:
  - id: t1
    author_id: bob
    content: "hello    there
      world"
    type: original
    likes: 4
    age: 2h
    categories:
      - {category: music, percentage: 80}
  - id: t2
    author_id: alice
    content: mine
    type: original
    created_at: 2026-01-02T03:04:05Z
`

func TestSeedFixture(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	if err := os.WriteFile(path, []byte(fixtureYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	fx, err := loadFixture(path)
	if err != nil {
		t.Fatal(err)
	}
	db, err := sqlstore.Open(ctx, "sqlite", ":memory:", sqlstore.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n, err := applyFixture(ctx, db, fx, now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("seeded %d tweets", n)
	}

	t1, err := db.Tweet(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if t1.Content != "hello there world" {
		t.Fatalf("content %q", t1.Content)
	}
	if t1.Likes != 4 {
		t.Fatalf("likes %d", t1.Likes)
	}
	if !t1.CreatedAt.Equal(now.Add(-2 * time.Hour)) {
		t.Fatalf("created_at %v", t1.CreatedAt)
	}

	t2, err := db.Tweet(ctx, "t2")
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC); !t2.CreatedAt.Equal(want) {
		t.Fatalf("explicit created_at overwritten: %v", t2.CreatedAt)
	}

	following, err := db.Following(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(following) != 1 || following[0] != "bob" {
		t.Fatalf("following %v", following)
	}
	ins, err := db.UserInterests(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(ins) != 1 || ins[0].Category != model.CategoryMusic || ins[0].Score != 12 {
		t.Fatalf("interests %+v", ins)
	}
	authors, err := db.Authors(ctx, []string{"alice"})
	if err != nil {
		t.Fatal(err)
	}
	if !authors["alice"].Verified {
		t.Fatalf("author %+v", authors["alice"])
	}
}

func TestLoadFixtureRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("tweets: [oops"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadFixture(path); err == nil {
		t.Fatal("expected parse error")
	}
}
