// Package candidates retrieves the tweets a personalized feed is ranked from.
package candidates

import (
	"context"
	"time"

	"skyfeed/internal/model"
	"skyfeed/internal/searchclient"
	"skyfeed/internal/store/sqlstore"
)

// Source produces candidates for one viewer.
type Source interface {
	Name() model.Source
	Candidates(ctx context.Context, userID string, limit int) ([]model.CandidateTweet, error)
}

// Store is the relational surface the built-in sources read.
type Store interface {
	FollowingTweets(ctx context.Context, userID string, before *sqlstore.Position, since time.Time, limit int) ([]model.Tweet, error)
	HotTweets(ctx context.Context, q sqlstore.HotQuery) ([]model.Tweet, error)
	Following(ctx context.Context, userID string) ([]string, error)
	UserInterests(ctx context.Context, userID string) ([]model.UserInterest, error)
}

// Trends is the non-personalized hot list.
type Trends interface {
	Top(ctx context.Context, category model.Category, limit int) ([]model.Tweet, error)
}

func wrap(ts []model.Tweet, src model.Source) []model.CandidateTweet {
	out := make([]model.CandidateTweet, 0, len(ts))
	for _, t := range ts {
		out = append(out, model.CandidateTweet{Tweet: t, Source: src})
	}
	return out
}

// InNetwork returns recent tweets by accounts the viewer follows.
type InNetwork struct {
	Store  Store
	Window time.Duration
	now    func() time.Time
}

func NewInNetwork(store Store, window time.Duration) *InNetwork {
	return &InNetwork{Store: store, Window: window, now: time.Now}
}

func (s *InNetwork) Name() model.Source { return model.SourceInNetwork }

func (s *InNetwork) Candidates(ctx context.Context, userID string, limit int) ([]model.CandidateTweet, error) {
	var since time.Time
	if s.Window > 0 {
		since = s.now().Add(-s.Window)
	}
	ts, err := s.Store.FollowingTweets(ctx, userID, nil, since, limit)
	if err != nil {
		return nil, err
	}
	return wrap(ts, model.SourceInNetwork), nil
}

// OutOfNetwork returns globally trending tweets by accounts the viewer
// neither is nor follows.
type OutOfNetwork struct {
	Store  Store
	Trends Trends
}

func NewOutOfNetwork(store Store, trends Trends) *OutOfNetwork {
	return &OutOfNetwork{Store: store, Trends: trends}
}

func (s *OutOfNetwork) Name() model.Source { return model.SourceOutOfNetwork }

func (s *OutOfNetwork) Candidates(ctx context.Context, userID string, limit int) ([]model.CandidateTweet, error) {
	following, err := s.Store.Following(ctx, userID)
	if err != nil {
		return nil, err
	}
	excluded := make(map[string]struct{}, len(following)+1)
	excluded[userID] = struct{}{}
	for _, id := range following {
		excluded[id] = struct{}{}
	}
	// over-fetch since part of the trend list is in-network
	ts, err := s.Trends.Top(ctx, model.CategoryAll, limit*2)
	if err != nil {
		return nil, err
	}
	kept := ts[:0]
	for _, t := range ts {
		if _, ok := excluded[t.AuthorID]; ok {
			continue
		}
		kept = append(kept, t)
		if len(kept) == limit {
			break
		}
	}
	return wrap(kept, model.SourceOutOfNetwork), nil
}

// topInterests returns up to n categories with positive scores, strongest first.
func topInterests(ctx context.Context, store Store, userID string, n int) ([]model.Category, error) {
	in, err := store.UserInterests(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []model.Category
	for _, i := range in {
		if i.Score <= 0 || !i.Category.Valid() {
			continue
		}
		out = append(out, i.Category)
		if len(out) == n {
			break
		}
	}
	return out, nil
}

// Interest returns hot out-of-network tweets in the viewer's top categories.
type Interest struct {
	Store  Store
	TopN   int
	Window time.Duration
	now    func() time.Time
}

func NewInterest(store Store, topN int, window time.Duration) *Interest {
	return &Interest{Store: store, TopN: topN, Window: window, now: time.Now}
}

func (s *Interest) Name() model.Source { return model.SourceInterest }

func (s *Interest) Candidates(ctx context.Context, userID string, limit int) ([]model.CandidateTweet, error) {
	cats, err := topInterests(ctx, s.Store, userID, s.TopN)
	if err != nil || len(cats) == 0 {
		return nil, err
	}
	q := sqlstore.HotQuery{Categories: cats, OutsideNetworkOf: userID, Limit: limit}
	if s.Window > 0 {
		q.Since = s.now().Add(-s.Window)
	}
	ts, err := s.Store.HotTweets(ctx, q)
	if err != nil {
		return nil, err
	}
	return wrap(ts, model.SourceInterest), nil
}

// Search asks the external search service for recent tweets in the
// viewer's top categories.
type Search struct {
	Store    Store
	Searcher searchclient.Searcher
	TopN     int
}

func NewSearch(store Store, searcher searchclient.Searcher, topN int) *Search {
	return &Search{Store: store, Searcher: searcher, TopN: topN}
}

func (s *Search) Name() model.Source { return model.SourceSearch }

func (s *Search) Candidates(ctx context.Context, userID string, limit int) ([]model.CandidateTweet, error) {
	cats, err := topInterests(ctx, s.Store, userID, s.TopN)
	if err != nil || len(cats) == 0 {
		return nil, err
	}
	ts, err := s.Searcher.SearchByCategories(ctx, cats, limit)
	if err != nil {
		return nil, err
	}
	kept := ts[:0]
	for _, t := range ts {
		if t.AuthorID != userID {
			kept = append(kept, t)
		}
	}
	return wrap(kept, model.SourceSearch), nil
}
