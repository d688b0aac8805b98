package model

// Source tags which retrieval strategy produced a candidate.
type Source string

const (
	SourceInNetwork    Source = "in_network"
	SourceOutOfNetwork Source = "out_of_network"
	SourceInterest     Source = "interest"
	SourceSearch       Source = "search"
)

// CandidateTweet is a tweet eligible for ranking in one request.
type CandidateTweet struct {
	Tweet  Tweet
	Source Source
}

// FeatureVector holds the numeric signals computed for one candidate.
type FeatureVector struct {
	Recency          float64 `json:"recency"`
	Relevance        float64 `json:"relevance"`
	Engagement       float64 `json:"engagement"`
	MediaBoost       float64 `json:"media_boost"`
	CredibilityBoost float64 `json:"credibility_boost"`
	LocationBoost    float64 `json:"location_boost"`
	Virality         float64 `json:"virality"`
	DiversityPenalty float64 `json:"diversity_penalty"`
}
