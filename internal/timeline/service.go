// Package timeline composes candidate retrieval, feature extraction,
// ranking and pagination into the served feeds.
package timeline

import (
	"context"
	"fmt"
	"time"

	"skyfeed/internal/features"
	"skyfeed/internal/logging"
	"skyfeed/internal/metrics"
	"skyfeed/internal/model"
	"skyfeed/internal/pagination"
	"skyfeed/internal/ranking"
	"skyfeed/internal/store/sqlstore"
)

const (
	FeedForYou    = "for_you"
	FeedFollowing = "following"
	FeedTrending  = "trending"

	// advanceAttempts bounds cursor compare-and-swap retries per request.
	advanceAttempts = 3
)

type Gatherer interface {
	Gather(ctx context.Context, userID string) []model.CandidateTweet
}

type Extractor interface {
	Extract(ctx context.Context, cands []model.CandidateTweet, userID string) *features.Batch
}

type Ranker interface {
	Rank(b *features.Batch, k int) []ranking.Result
}

// CursorStore persists how far each user has read the For You feed.
type CursorStore interface {
	LoadTimelineCursor(ctx context.Context, userID string) (model.TimelineCursor, error)
	AdvanceTimelineCursor(ctx context.Context, userID string, expected, next int64, lastTweetID string) (bool, error)
}

// FollowStore backs the chronological feed.
type FollowStore interface {
	FollowingTweets(ctx context.Context, userID string, before *sqlstore.Position, since time.Time, limit int) ([]model.Tweet, error)
	Authors(ctx context.Context, ids []string) (map[string]model.Author, error)
}

type Trends interface {
	Top(ctx context.Context, category model.Category, limit int) ([]model.Tweet, error)
}

// Item is one served tweet.
type Item struct {
	Tweet    model.Tweet          `json:"tweet"`
	Author   model.Author         `json:"author"`
	Source   model.Source         `json:"source,omitempty"`
	Score    float64              `json:"score"`
	Features *model.FeatureVector `json:"features,omitempty"`
}

// Page is a served slice of a feed. NextCursor is empty when HasMore is false.
type Page struct {
	Items      []Item
	NextCursor string
	HasMore    bool
}

// Limits bounds page sizes.
type Limits struct {
	Default int
	Max     int
}

func (l Limits) clamp(n int) int {
	if n <= 0 {
		n = l.Default
	}
	if l.Max > 0 && n > l.Max {
		n = l.Max
	}
	if n <= 0 {
		n = 20
	}
	return n
}

// Deps are the collaborators of a Service.
type Deps struct {
	Gatherer  Gatherer
	Extractor Extractor
	Ranker    Ranker
	Cursors   CursorStore
	Follows   FollowStore
	Trends    Trends
	Limits    Limits
}

type Service struct {
	d Deps
}

func NewService(d Deps) *Service { return &Service{d: d} }

// ForYou serves the next page of the viewer's personalized feed. An empty
// cursor starts a new session at the persisted read position. The stored
// position only moves forward; a concurrent advance makes this request
// reslice from the newer position.
func (s *Service) ForYou(ctx context.Context, userID, cursor string, limit int) (Page, error) {
	start := time.Now()
	defer metrics.ObserveRank(FeedForYou, start)
	limit = s.d.Limits.clamp(limit)

	var tok *pagination.Ranked
	if cursor != "" {
		r, err := pagination.DecodeRanked(cursor)
		if err != nil {
			return Page{}, err
		}
		tok = &r
	}

	cands := s.d.Gatherer.Gather(ctx, userID)
	batch := s.d.Extractor.Extract(ctx, cands, userID)
	log := logging.Ctx(ctx)

	var (
		page    pagination.Page[ranking.Result]
		next    pagination.Ranked
		ranked  []ranking.Result
		rankedK int
	)
	for attempt := 1; ; attempt++ {
		stored, err := s.d.Cursors.LoadTimelineCursor(ctx, userID)
		if err != nil {
			return Page{}, fmt.Errorf("load cursor: %w", err)
		}
		r := pagination.ResolveRanked(tok, stored.LastPosition)
		k := int(r.Offset()) + limit + 1
		if k > rankedK {
			ranked, rankedK = s.d.Ranker.Rank(batch, k), k
		}
		page, next = pagination.SliceRanked(ranked, r, limit)
		if next.Position == stored.LastPosition || len(page.Items) == 0 {
			break
		}
		last := page.Items[len(page.Items)-1].Candidate.Tweet.ID
		ok, err := s.d.Cursors.AdvanceTimelineCursor(ctx, userID, stored.LastPosition, next.Position, last)
		if err != nil {
			return Page{}, fmt.Errorf("advance cursor: %w", err)
		}
		if ok {
			break
		}
		metrics.CursorConflicts.Inc()
		if attempt == advanceAttempts {
			log.Warn().Str("user_id", userID).Msg("cursor advance kept conflicting, serving without persisting")
			break
		}
	}

	out := Page{Items: make([]Item, 0, len(page.Items)), HasMore: page.HasMore}
	for _, res := range page.Items {
		f := res.Features
		out.Items = append(out.Items, Item{Tweet: res.Candidate.Tweet, Author: res.Author, Source: res.Candidate.Source, Score: res.Score, Features: &f})
	}
	if out.HasMore {
		out.NextCursor = pagination.EncodeRanked(next)
	}
	log.Debug().Str("user_id", userID).Int("candidates", len(cands)).Int("served", len(out.Items)).Int64("position", next.Position).Msg("for you served")
	return out, nil
}

// Following serves the viewer's chronological feed of followed accounts,
// newest first.
func (s *Service) Following(ctx context.Context, userID, cursor string, limit int) (Page, error) {
	start := time.Now()
	defer metrics.ObserveRank(FeedFollowing, start)
	limit = s.d.Limits.clamp(limit)

	var before *sqlstore.Position
	if cursor != "" {
		c, err := pagination.DecodeChrono(cursor)
		if err != nil {
			return Page{}, err
		}
		before = &sqlstore.Position{CreatedAt: c.Timestamp, ID: c.TweetID}
	}
	fetched, err := s.d.Follows.FollowingTweets(ctx, userID, before, time.Time{}, limit+1)
	if err != nil {
		return Page{}, fmt.Errorf("following tweets: %w", err)
	}
	p := pagination.Take(fetched, limit)
	out := Page{Items: s.hydrate(ctx, p.Items, model.SourceInNetwork), HasMore: p.HasMore}
	if p.HasMore {
		last := p.Items[len(p.Items)-1]
		out.NextCursor = pagination.EncodeChrono(pagination.Chrono{Timestamp: last.CreatedAt, TweetID: last.ID})
	}
	return out, nil
}

// Trending serves the hottest live tweets in category. It is not
// paginated.
func (s *Service) Trending(ctx context.Context, category model.Category, limit int) (Page, error) {
	start := time.Now()
	defer metrics.ObserveRank(FeedTrending, start)
	limit = s.d.Limits.clamp(limit)
	if category == "" {
		category = model.CategoryAll
	}
	if _, err := model.ParseCategory(string(category)); err != nil {
		return Page{}, err
	}
	ts, err := s.d.Trends.Top(ctx, category, limit)
	if err != nil {
		return Page{}, fmt.Errorf("trending %s: %w", category, err)
	}
	items := s.hydrate(ctx, ts, model.SourceOutOfNetwork)
	for i := range items {
		items[i].Score = items[i].Tweet.Hotness
	}
	return Page{Items: items}, nil
}

func (s *Service) hydrate(ctx context.Context, ts []model.Tweet, src model.Source) []Item {
	ids := make([]string, 0, len(ts))
	for _, t := range ts {
		ids = append(ids, t.AuthorID)
	}
	var authors map[string]model.Author
	if len(ids) > 0 && s.d.Follows != nil {
		var err error
		if authors, err = s.d.Follows.Authors(ctx, ids); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("author hydration failed")
		}
	}
	out := make([]Item, 0, len(ts))
	for _, t := range ts {
		a, ok := authors[t.AuthorID]
		if !ok {
			a = model.Author{ID: t.AuthorID}
		}
		out = append(out, Item{Tweet: t, Author: a, Source: src})
	}
	return out
}
