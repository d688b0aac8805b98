package model

import "time"

// TweetType distinguishes original posts from replies and quotes.
type TweetType string

const (
	TweetOriginal TweetType = "original"
	TweetReply    TweetType = "reply"
	TweetQuote    TweetType = "quote"
)

// MediaKind is the type of an attached media reference.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// MediaRef points at an uploaded media object.
type MediaRef struct {
	Kind MediaKind `json:"kind" yaml:"kind"`
	URL  string    `json:"url" yaml:"url"`
}

// Counters are the mutable engagement counts of a tweet.
type Counters struct {
	Likes     int64 `json:"likes" yaml:"likes"`
	Reposts   int64 `json:"reposts" yaml:"reposts"`
	Quotes    int64 `json:"quotes" yaml:"quotes"`
	Replies   int64 `json:"replies" yaml:"replies"`
	Views     int64 `json:"views" yaml:"views"`
	Bookmarks int64 `json:"bookmarks" yaml:"bookmarks"`
}

// Tweet is immutable content plus mutable counters and derived scores.
type Tweet struct {
	ID             string          `json:"id" yaml:"id"`
	AuthorID       string          `json:"author_id" yaml:"author_id"`
	Content        string          `json:"content" yaml:"content"`
	Media          []MediaRef      `json:"media,omitempty" yaml:"media"`
	CreatedAt      time.Time       `json:"created_at" yaml:"created_at"`
	Counters       `yaml:",inline"`
	DeletedAt      *time.Time      `json:"deleted_at,omitempty" yaml:"deleted_at"`
	Type           TweetType       `json:"type" yaml:"type"`
	ParentID       string          `json:"parent_id,omitempty" yaml:"parent_id"`
	ConversationID string          `json:"conversation_id,omitempty" yaml:"conversation_id"`
	Categories     []CategoryShare `json:"categories,omitempty" yaml:"categories"`
	Hotness        float64         `json:"hotness" yaml:"-"`
	HotnessAt      time.Time       `json:"-" yaml:"-"`
}

// Deleted reports whether the tweet carries a soft-delete marker.
func (t Tweet) Deleted() bool { return t.DeletedAt != nil }

// HasMedia reports image and video presence.
func (t Tweet) HasMedia() (image, video bool) {
	for _, m := range t.Media {
		switch m.Kind {
		case MediaImage:
			image = true
		case MediaVideo:
			video = true
		}
	}
	return image, video
}

// Author is the subset of a user profile the ranker reads.
type Author struct {
	ID       string `json:"id" yaml:"id"`
	Handle   string `json:"handle" yaml:"handle"`
	Verified bool   `json:"verified" yaml:"verified"`
	Region   string `json:"region,omitempty" yaml:"region"`
}

// UserInterest is a per (user, category) affinity score.
type UserInterest struct {
	UserID   string   `json:"user_id" yaml:"user_id"`
	Category Category `json:"category" yaml:"category"`
	Score    int64    `json:"score" yaml:"score"`
}

// TimelineCursor is the persisted for-you position of a user.
type TimelineCursor struct {
	UserID       string    `json:"user_id"`
	LastTweetID  string    `json:"last_tweet_id"`
	LastPosition int64     `json:"last_position"`
	UpdatedAt    time.Time `json:"updated_at"`
}
