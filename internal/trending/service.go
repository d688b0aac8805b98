// Package trending serves non-personalized feeds ranked by hotness.
package trending

import (
	"context"
	"sort"
	"time"

	"skyfeed/internal/hotness"
	"skyfeed/internal/logging"
	"skyfeed/internal/model"
	"skyfeed/internal/store/sqlstore"
)

// Ranked reads the top of a hotness index.
type Ranked interface {
	Top(ctx context.Context, category model.Category, n int) ([]Scored, error)
}

// TweetStore is the relational fallback and hydration source.
type TweetStore interface {
	TweetsByIDs(ctx context.Context, ids []string) ([]model.Tweet, error)
	HotTweets(ctx context.Context, q sqlstore.HotQuery) ([]model.Tweet, error)
}

// Service answers trend queries from the index when present, the store otherwise.
type Service struct {
	index  Ranked
	store  TweetStore
	window time.Duration
	now    func() time.Time
}

// NewService builds a trending service. index may be nil.
func NewService(index Ranked, store TweetStore, window time.Duration) *Service {
	if window <= 0 {
		window = hotness.DefaultWindow
	}
	return &Service{index: index, store: store, window: window, now: time.Now}
}

// Top returns up to limit live tweets in category ("all" for every
// category) ordered by hotness, then newest, then id.
func (s *Service) Top(ctx context.Context, category model.Category, limit int) ([]model.Tweet, error) {
	if limit <= 0 {
		return nil, nil
	}
	if s.index != nil {
		out, err := s.fromIndex(ctx, category, limit)
		if err == nil && len(out) > 0 {
			return out, nil
		}
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("category", string(category)).Msg("trending index unavailable, using store")
		}
	}
	q := sqlstore.HotQuery{Since: s.now().Add(-s.window), Limit: limit}
	if category != model.CategoryAll && category != "" {
		q.Categories = []model.Category{category}
	}
	out, err := s.store.HotTweets(ctx, q)
	if err != nil {
		return nil, err
	}
	// zero scores are cold, not trending
	live := out[:0]
	for _, t := range out {
		if t.Hotness > 0 {
			live = append(live, t)
		}
	}
	return live, nil
}

func (s *Service) fromIndex(ctx context.Context, category model.Category, limit int) ([]model.Tweet, error) {
	// over-fetch to absorb entries deleted or aged out since the last sweep
	scored, err := s.index.Top(ctx, category, limit*2)
	if err != nil || len(scored) == 0 {
		return nil, err
	}
	ids := make([]string, len(scored))
	score := make(map[string]float64, len(scored))
	for i, e := range scored {
		ids[i] = e.ID
		score[e.ID] = e.Score
	}
	tweets, err := s.store.TweetsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := tweets[:0]
	for _, t := range tweets {
		if !hotness.Live(t.CreatedAt, now, s.window) {
			continue
		}
		t.Hotness = score[t.ID]
		out = append(out, t)
	}
	SortByHotness(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SortByHotness orders by hotness desc, created_at desc, id asc.
func SortByHotness(ts []model.Tweet) {
	sort.SliceStable(ts, func(i, j int) bool {
		if ts[i].Hotness != ts[j].Hotness {
			return ts[i].Hotness > ts[j].Hotness
		}
		if !ts[i].CreatedAt.Equal(ts[j].CreatedAt) {
			return ts[i].CreatedAt.After(ts[j].CreatedAt)
		}
		return ts[i].ID < ts[j].ID
	})
}
