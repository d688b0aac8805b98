package hotness

import (
	"context"
	"fmt"
	"time"

	"skyfeed/internal/logging"
	"skyfeed/internal/metrics"
	"skyfeed/internal/model"
)

// Store is the persistence the recomputer needs.
type Store interface {
	Tweet(ctx context.Context, id string) (model.Tweet, error)
	TweetCategories(ctx context.Context, ids []string) (map[string][]model.CategoryShare, error)
	UpdateHotness(ctx context.Context, id string, score float64, at time.Time) error
	TweetsCreatedSince(ctx context.Context, since time.Time, afterID string, limit int) ([]model.Tweet, error)
	ExpireHotness(ctx context.Context, cutoff time.Time) ([]string, error)
}

// Index mirrors scores into a trending index. Optional.
type Index interface {
	Upsert(ctx context.Context, id string, categories []model.Category, score float64) error
	Remove(ctx context.Context, ids ...string) error
}

// Recomputer recomputes and persists hotness scores.
type Recomputer struct {
	store  Store
	index  Index
	window time.Duration
	batch  int
	now    func() time.Time
}

// NewRecomputer builds a recomputer. index may be nil.
func NewRecomputer(store Store, index Index, window time.Duration, batch int) *Recomputer {
	if window <= 0 {
		window = DefaultWindow
	}
	if batch <= 0 {
		batch = 500
	}
	return &Recomputer{store: store, index: index, window: window, batch: batch, now: time.Now}
}

func categoriesOf(shares []model.CategoryShare) []model.Category {
	out := make([]model.Category, len(shares))
	for i, s := range shares {
		out[i] = s.Category
	}
	return out
}

// RecomputeOne refreshes a single tweet's score.
func (r *Recomputer) RecomputeOne(ctx context.Context, id string) error {
	t, err := r.store.Tweet(ctx, id)
	if err != nil {
		return fmt.Errorf("load tweet %s: %w", id, err)
	}
	now := r.now().UTC()
	score := ScoreTweet(t, now, r.window)
	if err := r.store.UpdateHotness(ctx, id, score, now); err != nil {
		return err
	}
	metrics.HotnessRecomputed.Inc()
	if r.index == nil {
		return nil
	}
	if score == 0 {
		return r.index.Remove(ctx, id)
	}
	cats, err := r.store.TweetCategories(ctx, []string{id})
	if err != nil {
		return err
	}
	return r.index.Upsert(ctx, id, categoriesOf(cats[id]), score)
}

// Sweep expires scores that left the window and recomputes every live tweet
// in batches. It returns the number of tweets recomputed.
func (r *Recomputer) Sweep(ctx context.Context) (int, error) {
	now := r.now().UTC()
	cutoff := now.Add(-r.window)
	expired, err := r.store.ExpireHotness(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire: %w", err)
	}
	if r.index != nil && len(expired) > 0 {
		if err := r.index.Remove(ctx, expired...); err != nil {
			return 0, fmt.Errorf("index remove: %w", err)
		}
	}
	n := 0
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		page, err := r.store.TweetsCreatedSince(ctx, cutoff, after, r.batch)
		if err != nil {
			return n, err
		}
		if len(page) == 0 {
			break
		}
		var cats map[string][]model.CategoryShare
		if r.index != nil {
			ids := make([]string, len(page))
			for i, t := range page {
				ids[i] = t.ID
			}
			if cats, err = r.store.TweetCategories(ctx, ids); err != nil {
				return n, err
			}
		}
		for _, t := range page {
			score := ScoreTweet(t, now, r.window)
			if err := r.store.UpdateHotness(ctx, t.ID, score, now); err != nil {
				return n, err
			}
			if r.index != nil {
				if score > 0 {
					err = r.index.Upsert(ctx, t.ID, categoriesOf(cats[t.ID]), score)
				} else {
					err = r.index.Remove(ctx, t.ID)
				}
				if err != nil {
					return n, fmt.Errorf("index %s: %w", t.ID, err)
				}
			}
			n++
		}
		metrics.HotnessRecomputed.Add(float64(len(page)))
		after = page[len(page)-1].ID
		if len(page) < r.batch {
			break
		}
	}
	logging.Info("hotness_sweep", map[string]any{"recomputed": n, "expired": len(expired)})
	return n, nil
}
