// Package ingest applies engagement events to tweet counters and schedules
// hotness recomputation.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"skyfeed/internal/logging"
	"skyfeed/internal/metrics"
	"skyfeed/internal/model"
	"skyfeed/internal/store/sqlstore"
)

// Kind is an engagement event type.
type Kind string

const (
	KindLike     Kind = "like"
	KindUnlike   Kind = "unlike"
	KindRepost   Kind = "repost"
	KindQuote    Kind = "quote"
	KindReply    Kind = "reply"
	KindView     Kind = "view"
	KindBookmark Kind = "bookmark"
)

var counterOf = map[Kind]sqlstore.Counter{
	KindLike:     sqlstore.CounterLikes,
	KindUnlike:   sqlstore.CounterLikes,
	KindRepost:   sqlstore.CounterReposts,
	KindQuote:    sqlstore.CounterQuotes,
	KindReply:    sqlstore.CounterReplies,
	KindView:     sqlstore.CounterViews,
	KindBookmark: sqlstore.CounterBookmarks,
}

// interestWeight is how much one engagement of a kind moves the acting
// user's affinity for the tweet's categories. Views and unlikes do not.
var interestWeight = map[Kind]int64{
	KindLike:     1,
	KindBookmark: 2,
	KindRepost:   2,
	KindReply:    3,
	KindQuote:    3,
}

// Engagement is one counter change on a tweet.
type Engagement struct {
	// ID makes redelivered events idempotent when set.
	ID      string `json:"id,omitempty"`
	TweetID string `json:"tweet_id" validate:"required"`
	Kind    Kind   `json:"kind" validate:"required"`
	// Delta defaults to 1; unlike negates it.
	Delta int64 `json:"delta,omitempty" validate:"gte=0"`
	// UserID is the acting user, used to learn interests.
	UserID string `json:"user_id,omitempty"`
}

var (
	// ErrUnknownKind rejects events whose kind maps to no counter.
	ErrUnknownKind = errors.New("unknown engagement kind")
	// ErrNegativeDelta rejects events that would run a counter backwards.
	// Unlikes carry a positive delta.
	ErrNegativeDelta = errors.New("negative engagement delta")
)

// Store is the write surface Apply needs.
type Store interface {
	ApplyEngagement(ctx context.Context, eventID, tweetID string, c sqlstore.Counter, delta int64, at time.Time) (bool, error)
	TweetCategories(ctx context.Context, ids []string) (map[string][]model.CategoryShare, error)
	AddInterest(ctx context.Context, userID string, c model.Category, delta int64) error
}

// Enqueuer schedules an asynchronous hotness recompute.
type Enqueuer interface {
	Enqueue(id string) bool
}

// Applier turns engagement events into store writes.
type Applier struct {
	store Store
	queue Enqueuer
	now   func() time.Time
}

// NewApplier builds an applier. queue may be nil.
func NewApplier(store Store, queue Enqueuer) *Applier {
	return &Applier{store: store, queue: queue, now: time.Now}
}

// Apply increments the counter for ev and enqueues a hotness recompute. It
// does not wait for the recompute. Events with an id apply at most once, and
// an id whose increment failed stays eligible for redelivery. Unknown tweets
// return sqlstore.ErrNotFound.
func (a *Applier) Apply(ctx context.Context, ev Engagement) error {
	counter, ok := counterOf[ev.Kind]
	if !ok || ev.TweetID == "" {
		return fmt.Errorf("%w: %q", ErrUnknownKind, ev.Kind)
	}
	if ev.Delta < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeDelta, ev.Delta)
	}
	delta := ev.Delta
	if delta == 0 {
		delta = 1
	}
	if ev.Kind == KindUnlike {
		delta = -delta
	}
	applied, err := a.store.ApplyEngagement(ctx, ev.ID, ev.TweetID, counter, delta, a.now())
	if err != nil {
		return fmt.Errorf("apply %s to %s: %w", ev.Kind, ev.TweetID, err)
	}
	if !applied {
		logging.Info("engagement_duplicate", map[string]any{"event_id": ev.ID, "tweet_id": ev.TweetID})
		return nil
	}
	metrics.EngagementEvents.WithLabelValues(string(ev.Kind)).Inc()
	if a.queue != nil && !a.queue.Enqueue(ev.TweetID) {
		logging.Warn("hotness_enqueue_dropped", map[string]any{"tweet_id": ev.TweetID})
	}
	if w := interestWeight[ev.Kind]; w > 0 && ev.UserID != "" {
		a.learn(ctx, ev.UserID, ev.TweetID, w*delta)
	}
	return nil
}

// learn credits every category of the tweet. Failures only cost
// personalization and are logged.
func (a *Applier) learn(ctx context.Context, userID, tweetID string, weight int64) {
	cats, err := a.store.TweetCategories(ctx, []string{tweetID})
	if err != nil {
		logging.Warn("interest_lookup_failed", map[string]any{"tweet_id": tweetID, "error": err.Error()})
		return
	}
	for _, s := range cats[tweetID] {
		if err := a.store.AddInterest(ctx, userID, s.Category, weight); err != nil {
			logging.Warn("interest_update_failed", map[string]any{"user_id": userID, "category": string(s.Category), "error": err.Error()})
			return
		}
	}
}
