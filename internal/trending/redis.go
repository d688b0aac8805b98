package trending

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"skyfeed/internal/config"
	"skyfeed/internal/model"
)

// NewRedisClient creates a Redis client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Scored is an index entry.
type Scored struct {
	ID    string
	Score float64
}

// RedisIndex keeps one sorted set of hotness scores per category plus one
// for all categories.
type RedisIndex struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisIndex builds an index. ttl bounds how long per-tweet category
// bookkeeping survives without a refresh; use the hotness window.
func NewRedisIndex(rdb *redis.Client, prefix string, ttl time.Duration) *RedisIndex {
	if prefix == "" {
		prefix = "skyfeed"
	}
	return &RedisIndex{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (x *RedisIndex) zkey(c model.Category) string {
	if c == model.CategoryAll || c == "" {
		return fmt.Sprintf("%s:trending:all", x.prefix)
	}
	return fmt.Sprintf("%s:trending:cat:%s", x.prefix, c)
}

func (x *RedisIndex) catsKey(id string) string {
	return fmt.Sprintf("%s:trending:tweet:%s:cats", x.prefix, id)
}

// Upsert sets id's score in the all-set and in each of its categories,
// dropping it from categories it no longer carries.
func (x *RedisIndex) Upsert(ctx context.Context, id string, categories []model.Category, score float64) error {
	old, err := x.rdb.SMembers(ctx, x.catsKey(id)).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	keep := make(map[string]struct{}, len(categories))
	members := make([]any, 0, len(categories))
	for _, c := range categories {
		keep[string(c)] = struct{}{}
		members = append(members, string(c))
	}
	_, err = x.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, c := range old {
			if _, ok := keep[c]; !ok {
				p.ZRem(ctx, x.zkey(model.Category(c)), id)
			}
		}
		z := redis.Z{Score: score, Member: id}
		p.ZAdd(ctx, x.zkey(model.CategoryAll), z)
		for _, c := range categories {
			p.ZAdd(ctx, x.zkey(c), z)
		}
		p.Del(ctx, x.catsKey(id))
		if len(members) > 0 {
			p.SAdd(ctx, x.catsKey(id), members...)
			if x.ttl > 0 {
				p.Expire(ctx, x.catsKey(id), x.ttl)
			}
		}
		return nil
	})
	return err
}

// Remove drops ids from every set.
func (x *RedisIndex) Remove(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		cats, err := x.rdb.SMembers(ctx, x.catsKey(id)).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		_, err = x.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.ZRem(ctx, x.zkey(model.CategoryAll), id)
			for _, c := range cats {
				p.ZRem(ctx, x.zkey(model.Category(c)), id)
			}
			p.Del(ctx, x.catsKey(id))
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Top returns up to n entries for category, highest score first.
func (x *RedisIndex) Top(ctx context.Context, category model.Category, n int) ([]Scored, error) {
	if n <= 0 {
		return nil, nil
	}
	zs, err := x.rdb.ZRevRangeWithScores(ctx, x.zkey(category), 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Scored, 0, len(zs))
	for _, z := range zs {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		out = append(out, Scored{ID: id, Score: z.Score})
	}
	return out, nil
}

// Ping checks connectivity.
func (x *RedisIndex) Ping(ctx context.Context) error { return x.rdb.Ping(ctx).Err() }
