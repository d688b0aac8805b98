package features

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"skyfeed/internal/model"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeLookup struct {
	cats      map[string][]model.CategoryShare
	interests []model.UserInterest
	authors   map[string]model.Author
	catErr    error
	calls     map[string]int
}

func (f *fakeLookup) TweetCategories(_ context.Context, ids []string) (map[string][]model.CategoryShare, error) {
	f.calls["categories"]++
	return f.cats, f.catErr
}

func (f *fakeLookup) UserInterests(context.Context, string) ([]model.UserInterest, error) {
	f.calls["interests"]++
	return f.interests, nil
}

func (f *fakeLookup) Authors(_ context.Context, ids []string) (map[string]model.Author, error) {
	f.calls["authors"]++
	return f.authors, nil
}

func TestRecencyStrictlyDecreasingAndBounded(t *testing.T) {
	prev := math.Inf(1)
	for m := 0; m <= 30*24*60; m += 37 {
		r := Recency(now.Add(-time.Duration(m)*time.Minute), now, DefaultHalfLife)
		if r < 0 || r > 1 {
			t.Fatalf("out of bounds at %dm: %v", m, r)
		}
		if r >= prev {
			t.Fatalf("not strictly decreasing at %dm", m)
		}
		prev = r
	}
	if r := Recency(now.Add(time.Hour), now, DefaultHalfLife); r != 1 {
		t.Fatalf("future tweet recency %v", r)
	}
}

func TestEngagementFormula(t *testing.T) {
	c := model.Counters{Likes: 10, Replies: 2, Quotes: 1, Reposts: 3, Views: 500}
	want := math.Log1p(10+6+3+6+5) * 10
	if got := Engagement(c, 10); math.Abs(got-want) > 1e-9 {
		t.Fatalf("got %v want %v", got, want)
	}
	if Engagement(model.Counters{}, 10) != 0 {
		t.Fatal("zero counters should score 0")
	}
	if Engagement(model.Counters{Likes: 1000}, 10) >= 2*Engagement(model.Counters{Likes: 100}, 10) {
		t.Fatal("engagement should be sub-linear")
	}
}

func TestMediaBoost(t *testing.T) {
	img := model.MediaRef{Kind: model.MediaImage}
	vid := model.MediaRef{Kind: model.MediaVideo}
	cases := []struct {
		media []model.MediaRef
		want  float64
	}{
		{nil, 0},
		{[]model.MediaRef{img, img}, 10},
		{[]model.MediaRef{vid}, 15},
		{[]model.MediaRef{img, vid}, 18},
	}
	for _, tc := range cases {
		if got := MediaBoost(model.Tweet{Media: tc.media}); got != tc.want {
			t.Fatalf("%v: got %v want %v", tc.media, got, tc.want)
		}
	}
}

func TestExtractBatchesLookups(t *testing.T) {
	lk := &fakeLookup{
		cats: map[string][]model.CategoryShare{
			"t1": {{Category: model.CategoryTechnology, Percentage: 60}, {Category: model.CategoryScience, Percentage: 40}},
			"t2": {{Category: model.CategoryArt, Percentage: 100}},
			"bad": {{Category: model.CategoryArt, Percentage: 30}},
		},
		interests: []model.UserInterest{{Category: model.CategoryTechnology, Score: 10}, {Category: model.CategoryScience, Score: 5}},
		authors: map[string]model.Author{
			"me":    {ID: "me", Region: "KE"},
			"alice": {ID: "alice", Verified: true, Region: "ke"},
			"bob":   {ID: "bob", Region: "US"},
		},
		calls: map[string]int{},
	}
	e := NewExtractor(lk, Options{})
	e.now = func() time.Time { return now }
	cands := []model.CandidateTweet{
		{Tweet: model.Tweet{ID: "t1", AuthorID: "alice", CreatedAt: now}, Source: model.SourceInNetwork},
		{Tweet: model.Tweet{ID: "t2", AuthorID: "bob", CreatedAt: now.Add(-time.Hour)}, Source: model.SourceOutOfNetwork},
		{Tweet: model.Tweet{ID: "bad", AuthorID: "bob", CreatedAt: now}, Source: model.SourceInterest},
	}
	for i := 0; i < 30; i++ {
		cands = append(cands, model.CandidateTweet{Tweet: model.Tweet{ID: string(rune('A' + i)), AuthorID: "bob", CreatedAt: now}})
	}
	b := e.Extract(context.Background(), cands, "me")
	for k, n := range lk.calls {
		if n != 1 {
			t.Fatalf("%s called %d times", k, n)
		}
	}
	if b.Len() != len(cands) || len(b.Features) != len(cands) {
		t.Fatalf("batch size %d", b.Len())
	}
	// 10/10*60 + 5/10*40
	if f := b.Features[0]; f.Relevance != 80 || f.CredibilityBoost != 25 || f.LocationBoost != 20 || f.Recency != 1 {
		t.Fatalf("t1 features: %+v", f)
	}
	if b.Topics[0] != model.CategoryTechnology {
		t.Fatalf("topic %q", b.Topics[0])
	}
	if f := b.Features[1]; f.Relevance != 0 || f.CredibilityBoost != 0 || f.LocationBoost != 0 {
		t.Fatalf("t2 features: %+v", f)
	}
	if b.Categories[2] != nil || b.Features[2].Relevance != 0 {
		t.Fatal("malformed categories should be treated as uncategorized")
	}
	if b.Features[0].Virality != 0 || b.Features[0].DiversityPenalty != 0 {
		t.Fatal("virality and diversity default to zero")
	}
}

func TestExtractColdStartAndLookupFailure(t *testing.T) {
	lk := &fakeLookup{catErr: errors.New("db down"), calls: map[string]int{}}
	e := NewExtractor(lk, Options{})
	b := e.Extract(context.Background(), []model.CandidateTweet{{Tweet: model.Tweet{ID: "t", AuthorID: "a", CreatedAt: now}}}, "me")
	if b.Features[0].Relevance != 0 || b.Features[0].CredibilityBoost != 0 {
		t.Fatalf("cold start: %+v", b.Features[0])
	}
}

func TestNonFiniteSignalsAreZeroed(t *testing.T) {
	lk := &fakeLookup{calls: map[string]int{}}
	e := NewExtractor(lk, Options{Virality: func(model.Tweet, time.Time) float64 { return math.NaN() }})
	b := e.Compute([]model.CandidateTweet{{Tweet: model.Tweet{ID: "t", CreatedAt: now}}}, Inputs{Now: now})
	if b.Features[0].Virality != 0 {
		t.Fatalf("virality %v", b.Features[0].Virality)
	}
}

func TestShareVelocity(t *testing.T) {
	tw := model.Tweet{CreatedAt: now.Add(-2 * time.Hour), Counters: model.Counters{Reposts: 6, Quotes: 2}}
	if got, want := ShareVelocity(tw, now), math.Log1p(2); math.Abs(got-want) > 1e-9 {
		t.Fatalf("got %v want %v", got, want)
	}
}
