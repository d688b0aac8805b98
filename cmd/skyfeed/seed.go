package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"skyfeed/internal/model"
	"skyfeed/internal/store/sqlstore"
	"skyfeed/internal/util"
)

type fixtureTweet struct {
	model.Tweet `yaml:",inline"`
	// Age places the tweet relative to load time when created_at is unset.
	Age time.Duration `yaml:"age"`
}

type fixtureFollow struct {
	Follower string `yaml:"follower"`
	Followee string `yaml:"followee"`
}

type fixture struct {
	Authors   []model.Author       `yaml:"authors"`
	Follows   []fixtureFollow      `yaml:"follows"`
	Interests []model.UserInterest `yaml:"interests"`
	Tweets    []fixtureTweet       `yaml:"tweets"`
}

func loadFixture(path string) (fixture, error) {
	var fx fixture
	b, err := os.ReadFile(path)
	if err != nil {
		return fx, err
	}
	if err := yaml.Unmarshal(b, &fx); err != nil {
		return fx, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return fx, nil
}

// applyFixture writes fx and returns the number of tweets stored.
func applyFixture(ctx context.Context, db *sqlstore.DB, fx fixture, now time.Time) (int, error) {
	for _, a := range fx.Authors {
		if err := db.PutAuthor(ctx, a); err != nil {
			return 0, fmt.Errorf("author %s: %w", a.ID, err)
		}
	}
	for _, f := range fx.Follows {
		if err := db.Follow(ctx, f.Follower, f.Followee); err != nil {
			return 0, fmt.Errorf("follow %s -> %s: %w", f.Follower, f.Followee, err)
		}
	}
	for _, in := range fx.Interests {
		if err := db.SetInterest(ctx, in); err != nil {
			return 0, fmt.Errorf("interest %s/%s: %w", in.UserID, in.Category, err)
		}
	}
	for _, ft := range fx.Tweets {
		t := ft.Tweet
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now.Add(-ft.Age)
		}
		t.Content = util.NormalizeWhitespace(t.Content)
		if err := db.PutTweet(ctx, t); err != nil {
			return 0, err
		}
	}
	return len(fx.Tweets), nil
}
