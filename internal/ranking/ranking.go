// Package ranking combines feature vectors into one score per candidate and
// orders the batch with a deterministic diversity pass.
package ranking

import (
	"math"
	"sort"
	"time"

	"skyfeed/internal/config"
	"skyfeed/internal/features"
	"skyfeed/internal/logging"
	"skyfeed/internal/metrics"
	"skyfeed/internal/model"
)

// Weights are the named coefficients of the linear score.
type Weights struct {
	Recency     float64
	Relevance   float64
	Engagement  float64
	Media       float64
	Credibility float64
	Location    float64
	Virality    float64
	// Diversity scales the (non-positive) diversity penalty.
	Diversity float64
}

// Diversity configures the demotion of repeats among the last Window results.
type Diversity struct {
	Window        int
	AuthorPenalty float64
	TopicPenalty  float64
}

// FromConfig maps ranking configuration onto weights and diversity settings.
func FromConfig(c config.RankingConfig) (Weights, Diversity) {
	return Weights{
			Recency:     c.RecencyWeight,
			Relevance:   c.RelevanceWeight,
			Engagement:  c.EngagementWeight,
			Media:       c.MediaWeight,
			Credibility: c.CredibilityWeight,
			Location:    c.LocationWeight,
			Virality:    c.ViralityWeight,
			Diversity:   c.DiversityWeight,
		}, Diversity{
			Window:        c.DiversityWindow,
			AuthorPenalty: c.AuthorPenalty,
			TopicPenalty:  c.TopicPenalty,
		}
}

// Base is the weighted sum of every feature except the diversity penalty.
func (w Weights) Base(f model.FeatureVector) float64 {
	return w.Recency*f.Recency + w.Relevance*f.Relevance + w.Engagement*f.Engagement +
		w.Media*f.MediaBoost + w.Credibility*f.CredibilityBoost + w.Location*f.LocationBoost +
		w.Virality*f.Virality
}

// Result is one ranked candidate.
type Result struct {
	Candidate model.CandidateTweet
	Author    model.Author
	Features  model.FeatureVector
	Score     float64
}

// Ranker orders feature batches.
type Ranker struct {
	w Weights
	d Diversity
}

func New(w Weights, d Diversity) *Ranker { return &Ranker{w: w, d: d} }

type entry struct {
	idx     int
	base    float64
	created time.Time
	id      string
	author  string
	topic   model.Category
}

// before is the total order used for ties: score desc, created_at desc, id asc.
func before(sa float64, a *entry, sb float64, b *entry) bool {
	if sa != sb {
		return sa > sb
	}
	if !a.created.Equal(b.created) {
		return a.created.After(b.created)
	}
	return a.id < b.id
}

// Rank scores the batch and returns at most k results. Candidates whose
// score is not finite are logged and skipped.
func (r *Ranker) Rank(b *features.Batch, k int) []Result {
	if b == nil || k <= 0 || b.Len() == 0 {
		return nil
	}
	entries := make([]entry, 0, b.Len())
	seen := make(map[string]struct{}, b.Len())
	for i := range b.Candidates {
		t := &b.Candidates[i].Tweet
		if _, dup := seen[t.ID]; dup {
			continue
		}
		seen[t.ID] = struct{}{}
		s := r.w.Base(b.Features[i])
		if math.IsNaN(s) || math.IsInf(s, 0) {
			metrics.NonFinite.WithLabelValues("score").Inc()
			l := logging.WithComponent("ranking")
			l.Warn().Str("tweet_id", t.ID).Msg("non-finite score skipped")
			continue
		}
		entries = append(entries, entry{idx: i, base: s, created: t.CreatedAt, id: t.ID, author: t.AuthorID, topic: b.Topics[i]})
	}
	sort.Slice(entries, func(i, j int) bool { return before(entries[i].base, &entries[i], entries[j].base, &entries[j]) })

	if k > len(entries) {
		k = len(entries)
	}
	out := make([]Result, 0, k)
	picked := make([]*entry, 0, k)
	remaining := entries
	for len(out) < k {
		best, bestAdj, bestPen := -1, 0.0, 0.0
		for j := range remaining {
			e := &remaining[j]
			// penalties only lower scores, and remaining is sorted by base
			if best >= 0 && e.base < bestAdj {
				break
			}
			pen := r.penalty(e, picked)
			adj := e.base + r.w.Diversity*pen
			if best < 0 || before(adj, e, bestAdj, &remaining[best]) {
				best, bestAdj, bestPen = j, adj, pen
			}
		}
		e := remaining[best]
		f := b.Features[e.idx]
		f.DiversityPenalty = bestPen
		out = append(out, Result{Candidate: b.Candidates[e.idx], Author: b.Authors[e.idx], Features: f, Score: bestAdj})
		remaining = append(remaining[:best:best], remaining[best+1:]...)
		picked = append(picked, &e)
	}
	return out
}

// penalty is non-positive: the author penalty if any of the last Window
// picks share e's author, plus the topic penalty if any share its dominant
// category.
func (r *Ranker) penalty(e *entry, picked []*entry) float64 {
	if r.d.Window <= 0 || len(picked) == 0 {
		return 0
	}
	from := len(picked) - r.d.Window
	if from < 0 {
		from = 0
	}
	sameAuthor, sameTopic := false, false
	for _, p := range picked[from:] {
		if p.author == e.author {
			sameAuthor = true
		}
		if e.topic != "" && p.topic == e.topic {
			sameTopic = true
		}
	}
	pen := 0.0
	if sameAuthor {
		pen -= r.d.AuthorPenalty
	}
	if sameTopic {
		pen -= r.d.TopicPenalty
	}
	return pen
}
