// Package hotness maintains the time-decayed popularity score used by the
// trending and chronological fallback feeds.
package hotness

import (
	"math"
	"time"

	"skyfeed/internal/model"
)

const (
	// Gravity is the power-law exponent of the age decay.
	Gravity = 1.8
	// AgeOffsetHours keeps the denominator away from zero for fresh tweets.
	AgeOffsetHours = 2.0
	// DefaultWindow is how long a tweet's score is maintained.
	DefaultWindow = 7 * 24 * time.Hour
)

// Engagement weights.
const (
	LikeWeight   = 1
	RepostWeight = 10
	QuoteWeight  = 20
	ReplyWeight  = 30
)

// Raw is the weighted engagement numerator.
func Raw(c model.Counters) float64 {
	return float64(c.Likes)*LikeWeight + float64(c.Reposts)*RepostWeight +
		float64(c.Quotes)*QuoteWeight + float64(c.Replies)*ReplyWeight
}

// Score is Raw / (hours_since_created + 2)^1.8. A creation time in the future
// counts as age zero; negative counters or non-finite results score 0.
func Score(c model.Counters, createdAt, now time.Time) float64 {
	raw := Raw(c)
	if raw <= 0 {
		return 0
	}
	hours := now.Sub(createdAt).Hours()
	if hours < 0 || math.IsNaN(hours) {
		hours = 0
	}
	s := raw / math.Pow(hours+AgeOffsetHours, Gravity)
	if math.IsNaN(s) || math.IsInf(s, 0) || s < 0 {
		return 0
	}
	return s
}

// Live reports whether a tweet created at createdAt is inside the window.
func Live(createdAt, now time.Time, window time.Duration) bool {
	return now.Sub(createdAt) <= window
}

// ScoreTweet scores t, returning 0 for deleted tweets and tweets outside
// the window.
func ScoreTweet(t model.Tweet, now time.Time, window time.Duration) float64 {
	if t.Deleted() || !Live(t.CreatedAt, now, window) {
		return 0
	}
	return Score(t.Counters, t.CreatedAt, now)
}
