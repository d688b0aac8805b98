package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model.
// It captures storage backends, ranking weights, and hotness maintenance.
type Config struct {
	Server  ServerConfig  `koanf:"server" yaml:"server"`
	Storage StorageConfig `koanf:"storage" yaml:"storage"`
	Redis   RedisConfig   `koanf:"redis" yaml:"redis"`
	Cursors CursorConfig  `koanf:"cursors" yaml:"cursors"`
	AMQP    AMQPConfig    `koanf:"amqp" yaml:"amqp"`
	Search  SearchConfig  `koanf:"search" yaml:"search"`
	Ranking RankingConfig `koanf:"ranking" yaml:"ranking"`
	Hotness HotnessConfig `koanf:"hotness" yaml:"hotness"`
	Logging LoggingConfig `koanf:"logging" yaml:"logging"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr" yaml:"addr" validate:"required"`
	RequestTimeout  time.Duration `koanf:"request_timeout" yaml:"request_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" yaml:"rate_limit_reqs" validate:"gte=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" yaml:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins" yaml:"cors_origins"`
}

type StorageConfig struct {
	// Driver is "sqlite" (embedded) or "postgres".
	Driver string `koanf:"driver" yaml:"driver" validate:"oneof=sqlite postgres"`
	// DSN is a file path for sqlite or a connection URL for postgres.
	// If empty, read from env DATABASE_URL (postgres) or ./skyfeed.db (sqlite).
	DSN          string `koanf:"dsn" yaml:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns" yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns int    `koanf:"max_idle_conns" yaml:"max_idle_conns" validate:"gte=0"`
}

type RedisConfig struct {
	Enabled  bool   `koanf:"enabled" yaml:"enabled"`
	// If empty, read from env REDIS_ADDR
	Addr     string `koanf:"addr" yaml:"addr" validate:"required_if=Enabled true"`
	Password string `koanf:"password" yaml:"password"`
	DB       int    `koanf:"db" yaml:"db" validate:"gte=0"`
	Prefix   string `koanf:"prefix" yaml:"prefix"`
}

type CursorConfig struct {
	// Backend is "sql" (same database as tweets) or "badger".
	Backend    string `koanf:"backend" yaml:"backend" validate:"oneof=sql badger"`
	BadgerPath string `koanf:"badger_path" yaml:"badger_path" validate:"required_if=Backend badger"`
}

type AMQPConfig struct {
	Enabled bool `koanf:"enabled" yaml:"enabled"`
	// If empty, read from env AMQP_URL
	URL      string `koanf:"url" yaml:"url" validate:"required_if=Enabled true"`
	Queue    string `koanf:"queue" yaml:"queue"`
	Prefetch int    `koanf:"prefetch" yaml:"prefetch" validate:"gte=0"`
}

type SearchConfig struct {
	Enabled bool   `koanf:"enabled" yaml:"enabled"`
	BaseURL string `koanf:"base_url" yaml:"base_url" validate:"required_if=Enabled true"`
	// If empty, read from env SEARCH_API_TOKEN
	Token       string        `koanf:"token" yaml:"token"`
	RPS         float64       `koanf:"rps" yaml:"rps" validate:"gte=0"`
	Burst       int           `koanf:"burst" yaml:"burst" validate:"gte=0"`
	MaxAttempts int           `koanf:"max_attempts" yaml:"max_attempts" validate:"gte=0"`
	BaseBackoff time.Duration `koanf:"base_backoff" yaml:"base_backoff"`
}

// RankingConfig holds the named scoring coefficients and retrieval bounds.
type RankingConfig struct {
	RecencyWeight     float64 `koanf:"recency_weight" yaml:"recency_weight"`
	RelevanceWeight   float64 `koanf:"relevance_weight" yaml:"relevance_weight"`
	EngagementWeight  float64 `koanf:"engagement_weight" yaml:"engagement_weight"`
	MediaWeight       float64 `koanf:"media_weight" yaml:"media_weight"`
	CredibilityWeight float64 `koanf:"credibility_weight" yaml:"credibility_weight"`
	LocationWeight    float64 `koanf:"location_weight" yaml:"location_weight"`
	ViralityWeight    float64 `koanf:"virality_weight" yaml:"virality_weight"`
	DiversityWeight   float64 `koanf:"diversity_weight" yaml:"diversity_weight" validate:"gte=0"`

	RecencyHalfLife time.Duration `koanf:"recency_half_life" yaml:"recency_half_life" validate:"gt=0"`
	EngagementScale float64       `koanf:"engagement_scale" yaml:"engagement_scale" validate:"gte=0"`
	// Virality selects the virality signal: "none" or "share_velocity".
	Virality string `koanf:"virality" yaml:"virality" validate:"oneof=none share_velocity"`

	DiversityWindow int     `koanf:"diversity_window" yaml:"diversity_window" validate:"gte=0"`
	AuthorPenalty   float64 `koanf:"author_penalty" yaml:"author_penalty" validate:"gte=0"`
	TopicPenalty    float64 `koanf:"topic_penalty" yaml:"topic_penalty" validate:"gte=0"`

	InNetworkWindow time.Duration `koanf:"in_network_window" yaml:"in_network_window" validate:"gt=0"`
	SourceLimit     int           `koanf:"source_limit" yaml:"source_limit" validate:"gt=0"`
	MaxCandidates   int           `koanf:"max_candidates" yaml:"max_candidates" validate:"gt=0"`
	SourceTimeout   time.Duration `koanf:"source_timeout" yaml:"source_timeout" validate:"gt=0"`
	InterestTopN    int           `koanf:"interest_top_n" yaml:"interest_top_n" validate:"gt=0"`

	DefaultPageSize int `koanf:"default_page_size" yaml:"default_page_size" validate:"gt=0"`
	MaxPageSize     int `koanf:"max_page_size" yaml:"max_page_size" validate:"gtefield=DefaultPageSize"`

	BreakerFailures int           `koanf:"breaker_failures" yaml:"breaker_failures" validate:"gt=0"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout" yaml:"breaker_timeout" validate:"gt=0"`
}

type HotnessConfig struct {
	Window        time.Duration `koanf:"window" yaml:"window" validate:"gt=0"`
	SweepInterval time.Duration `koanf:"sweep_interval" yaml:"sweep_interval" validate:"gt=0"`
	BatchSize     int           `koanf:"batch_size" yaml:"batch_size" validate:"gt=0"`
	QueueSize     int           `koanf:"queue_size" yaml:"queue_size" validate:"gt=0"`
	// CoalesceWindow bounds how long a recomputed id is skipped when it is
	// enqueued again.
	CoalesceWindow time.Duration `koanf:"coalesce_window" yaml:"coalesce_window" validate:"gt=0"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" yaml:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller" yaml:"caller"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			RequestTimeout:  5 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimitReqs:   120,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Storage: StorageConfig{Driver: "sqlite", MaxOpenConns: 8, MaxIdleConns: 4},
		Redis:   RedisConfig{Enabled: false, Prefix: "skyfeed"},
		Cursors: CursorConfig{Backend: "sql", BadgerPath: "./skyfeed-cursors"},
		AMQP:    AMQPConfig{Enabled: false, Queue: "skyfeed.engagements", Prefetch: 32},
		Search:  SearchConfig{Enabled: false, RPS: 2, Burst: 10, MaxAttempts: 5, BaseBackoff: 500 * time.Millisecond},
		Ranking: RankingConfig{
			RecencyWeight:     40,
			RelevanceWeight:   0.5,
			EngagementWeight:  1,
			MediaWeight:       1,
			CredibilityWeight: 1,
			LocationWeight:    1,
			ViralityWeight:    0,
			DiversityWeight:   1,
			RecencyHalfLife:   12 * time.Hour,
			EngagementScale:   10,
			Virality:          "none",
			DiversityWindow:   3,
			AuthorPenalty:     30,
			TopicPenalty:      10,
			InNetworkWindow:   48 * time.Hour,
			SourceLimit:       200,
			MaxCandidates:     500,
			SourceTimeout:     800 * time.Millisecond,
			InterestTopN:      3,
			DefaultPageSize:   20,
			MaxPageSize:       100,
			BreakerFailures:   5,
			BreakerTimeout:    30 * time.Second,
		},
		Hotness: HotnessConfig{
			Window:         7 * 24 * time.Hour,
			SweepInterval:  10 * time.Minute,
			BatchSize:      500,
			QueueSize:      4096,
			CoalesceWindow: 5 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// ResolveEnv fills in config fields from well-known environment variables if not set.
func (c *Config) ResolveEnv() {
	if c.Storage.DSN == "" {
		if c.Storage.Driver == "postgres" {
			c.Storage.DSN = os.Getenv("DATABASE_URL")
		} else {
			c.Storage.DSN = "./skyfeed.db"
		}
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = os.Getenv("REDIS_ADDR")
	}
	if c.AMQP.URL == "" {
		c.AMQP.URL = os.Getenv("AMQP_URL")
	}
	if c.Search.Token == "" {
		c.Search.Token = os.Getenv("SEARCH_API_TOKEN")
	}
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
