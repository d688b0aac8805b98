// Package features turns a candidate batch into per-candidate signal vectors.
package features

import (
	"context"
	"math"
	"strings"
	"time"

	"skyfeed/internal/logging"
	"skyfeed/internal/metrics"
	"skyfeed/internal/model"
)

// Flat boosts and defaults.
const (
	ImageBoost      = 10
	VideoBoost      = 15
	ImageVideoBoost = 18
	VerifiedBoost   = 25
	SameRegionBoost = 20
	MaxRelevance    = 100
	DefaultHalfLife = 12 * time.Hour
	DefaultEngScale = 10.0
)

// Lookup is the storage the extractor batch-reads before scoring.
type Lookup interface {
	TweetCategories(ctx context.Context, ids []string) (map[string][]model.CategoryShare, error)
	UserInterests(ctx context.Context, userID string) ([]model.UserInterest, error)
	Authors(ctx context.Context, ids []string) (map[string]model.Author, error)
}

// LocationFunc scores locality between the viewer and a tweet's author.
type LocationFunc func(viewer, author model.Author) float64

// ViralityFunc scores how fast a tweet is spreading.
type ViralityFunc func(t model.Tweet, now time.Time) float64

// SameRegion boosts authors in the viewer's region.
func SameRegion(viewer, author model.Author) float64 {
	if viewer.Region == "" || author.Region == "" {
		return 0
	}
	if strings.EqualFold(viewer.Region, author.Region) {
		return SameRegionBoost
	}
	return 0
}

// NoVirality is the default virality signal.
func NoVirality(model.Tweet, time.Time) float64 { return 0 }

// ShareVelocity is log(1 + shares per hour), with the same age floor as hotness.
func ShareVelocity(t model.Tweet, now time.Time) float64 {
	hours := now.Sub(t.CreatedAt).Hours()
	if hours < 0 {
		hours = 0
	}
	shares := float64(t.Reposts + t.Quotes)
	if shares <= 0 {
		return 0
	}
	return math.Log1p(shares / (hours + 2))
}

// Options configures an Extractor. Zero values take defaults.
type Options struct {
	HalfLife        time.Duration
	EngagementScale float64
	Location        LocationFunc
	Virality        ViralityFunc
}

// Extractor computes feature vectors.
type Extractor struct {
	lookup Lookup
	opts   Options
	now    func() time.Time
}

func NewExtractor(lookup Lookup, opts Options) *Extractor {
	if opts.HalfLife <= 0 {
		opts.HalfLife = DefaultHalfLife
	}
	if opts.EngagementScale <= 0 {
		opts.EngagementScale = DefaultEngScale
	}
	if opts.Location == nil {
		opts.Location = SameRegion
	}
	if opts.Virality == nil {
		opts.Virality = NoVirality
	}
	return &Extractor{lookup: lookup, opts: opts, now: time.Now}
}

// Batch is the per-request arena: one contiguous candidate slice with
// parallel per-candidate arrays.
type Batch struct {
	Candidates []model.CandidateTweet
	Features   []model.FeatureVector
	Categories [][]model.CategoryShare
	Authors    []model.Author
	// Topics holds each candidate's dominant category, "" if uncategorized.
	Topics []model.Category
}

// Len is the number of candidates.
func (b *Batch) Len() int { return len(b.Candidates) }

// Inputs is everything Compute reads.
type Inputs struct {
	Viewer     model.Author
	Interests  []model.UserInterest
	Categories map[string][]model.CategoryShare
	Authors    map[string]model.Author
	Now        time.Time
}

// Extract loads categories, interests and authors in one roundtrip each,
// then computes features. Lookup failures degrade to zero-valued signals.
func (e *Extractor) Extract(ctx context.Context, cands []model.CandidateTweet, userID string) *Batch {
	log := logging.Ctx(ctx)
	ids := make([]string, len(cands))
	authorIDs := make([]string, 0, len(cands)+1)
	seen := make(map[string]struct{}, len(cands)+1)
	authorIDs = append(authorIDs, userID)
	seen[userID] = struct{}{}
	for i, c := range cands {
		ids[i] = c.Tweet.ID
		if _, ok := seen[c.Tweet.AuthorID]; !ok {
			seen[c.Tweet.AuthorID] = struct{}{}
			authorIDs = append(authorIDs, c.Tweet.AuthorID)
		}
	}

	in := Inputs{Now: e.now().UTC()}
	var err error
	if len(cands) > 0 {
		if in.Categories, err = e.lookup.TweetCategories(ctx, ids); err != nil {
			log.Warn().Err(err).Msg("tweet categories unavailable, relevance defaults to zero")
		}
	}
	if in.Interests, err = e.lookup.UserInterests(ctx, userID); err != nil {
		log.Warn().Err(err).Msg("user interests unavailable, relevance defaults to zero")
	}
	if in.Authors, err = e.lookup.Authors(ctx, authorIDs); err != nil {
		log.Warn().Err(err).Msg("authors unavailable, credibility defaults to zero")
	}
	in.Viewer = in.Authors[userID]
	return e.Compute(cands, in)
}

// Compute is the synchronous single pass over the batch. It does no I/O.
func (e *Extractor) Compute(cands []model.CandidateTweet, in Inputs) *Batch {
	n := len(cands)
	b := &Batch{
		Candidates: cands,
		Features:   make([]model.FeatureVector, n),
		Categories: make([][]model.CategoryShare, n),
		Authors:    make([]model.Author, n),
		Topics:     make([]model.Category, n),
	}
	interest, maxInterest := interestMap(in.Interests)
	for i := range cands {
		t := &cands[i].Tweet
		shares := in.Categories[t.ID]
		if len(shares) == 0 {
			shares = t.Categories
		}
		if err := model.ValidateCategories(shares); err != nil {
			metrics.NonFinite.WithLabelValues("categories").Inc()
			shares = nil
		}
		b.Categories[i] = shares
		if top, ok := model.DominantCategory(shares); ok {
			b.Topics[i] = top
		}
		author, ok := in.Authors[t.AuthorID]
		if !ok {
			author = model.Author{ID: t.AuthorID}
		}
		b.Authors[i] = author

		f := &b.Features[i]
		f.Recency = guard(Recency(t.CreatedAt, in.Now, e.opts.HalfLife))
		f.Relevance = guard(relevance(shares, interest, maxInterest))
		f.Engagement = guard(Engagement(t.Counters, e.opts.EngagementScale))
		f.MediaBoost = MediaBoost(*t)
		if author.Verified {
			f.CredibilityBoost = VerifiedBoost
		}
		f.LocationBoost = guard(e.opts.Location(in.Viewer, author))
		f.Virality = guard(e.opts.Virality(*t, in.Now))
	}
	return b
}

// Recency is 2^(-age/halfLife): 1 at age zero (or a future timestamp),
// strictly decreasing, approaching 0.
func Recency(createdAt, now time.Time, halfLife time.Duration) float64 {
	age := now.Sub(createdAt)
	if age < 0 {
		age = 0
	}
	if halfLife <= 0 {
		halfLife = DefaultHalfLife
	}
	return math.Exp2(-float64(age) / float64(halfLife))
}

// Engagement is log(1 + likes + 3 replies + 3 quotes + 2 reposts + 0.01 views) * scale.
func Engagement(c model.Counters, scale float64) float64 {
	x := float64(c.Likes) + 3*float64(c.Replies) + 3*float64(c.Quotes) + 2*float64(c.Reposts) + 0.01*float64(c.Views)
	if x <= 0 {
		return 0
	}
	return math.Log1p(x) * scale
}

// MediaBoost is the flat bonus for attached images and videos.
func MediaBoost(t model.Tweet) float64 {
	img, vid := t.HasMedia()
	switch {
	case img && vid:
		return ImageVideoBoost
	case vid:
		return VideoBoost
	case img:
		return ImageBoost
	}
	return 0
}

func interestMap(in []model.UserInterest) (map[model.Category]float64, float64) {
	m := make(map[model.Category]float64, len(in))
	top := 0.0
	for _, i := range in {
		s := float64(i.Score)
		if s <= 0 {
			continue
		}
		m[i.Category] = s
		if s > top {
			top = s
		}
	}
	return m, top
}

// relevance sums interest x percentage with interests scaled to the user's
// strongest one, which keeps the result in [0,100].
func relevance(shares []model.CategoryShare, interest map[model.Category]float64, top float64) float64 {
	if top <= 0 || len(shares) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range shares {
		sum += interest[s.Category] / top * float64(s.Percentage)
	}
	return math.Min(sum, MaxRelevance)
}

func guard(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		metrics.NonFinite.WithLabelValues("features").Inc()
		return 0
	}
	return v
}
