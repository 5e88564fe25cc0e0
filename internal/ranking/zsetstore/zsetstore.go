// Package zsetstore is the SortedSetStore primitive (spec §4 Components):
// ZINCRBY, ZREVRANGE WITHSCORES, ZREVRANK, ZCARD, EXPIRE-if-absent, and a
// weighted ZUNIONSTORE, all over go-redis/v9 the way
// Sergey-Bar-Alfred/services/gateway/redisclient wraps *redis.Client.
package zsetstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Member is one (member, score) pair as returned by a range query.
type Member struct {
	Member string
	Score  float64
}

// Store wraps a *redis.Client with the handful of sorted-set operations the
// ranking pipeline needs.
type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// NewFromURL builds a client from a REDIS_URL-style connection string,
// matching Sergey-Bar-Alfred's redisclient.New(cfg) shape.
func NewFromURL(url string) (*Store, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return &Store{rdb: redis.NewClient(opt)}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

// IncrBy atomically adds delta to member's score in key, creating both if
// absent; ZINCRBY itself is atomic so no caller-side locking is needed
// (spec §5 Shared-resource policy).
func (s *Store) IncrBy(ctx context.Context, key, member string, delta float64) error {
	if err := s.rdb.ZIncrBy(ctx, key, delta, member).Err(); err != nil {
		return fmt.Errorf("zincrby %s %s: %w", key, member, err)
	}
	return nil
}

// ExpireNX sets key's TTL only if it currently has none, so a ranking key's
// expiry is established exactly once on first write (spec §3: "TTL set
// once on first write").
func (s *Store) ExpireNX(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.rdb.ExpireNX(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("expire nx %s: %w", key, err)
	}
	return nil
}

// RevRangeWithScores returns members in [start, stop] ordered by score
// descending (ZREVRANGE WITHSCORES), the primary read path of spec §4.9.
func (s *Store) RevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]Member, error) {
	zs, err := s.rdb.ZRevRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange %s %d %d: %w", key, start, stop, err)
	}
	out := make([]Member, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			member = fmt.Sprintf("%v", z.Member)
		}
		out = append(out, Member{Member: member, Score: z.Score})
	}
	return out, nil
}

// RevRank returns the 0-based descending rank of member in key, or
// (0, false) if member is absent (ZREVRANK).
func (s *Store) RevRank(ctx context.Context, key, member string) (int64, bool, error) {
	rank, err := s.rdb.ZRevRank(ctx, key, member).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("zrevrank %s %s: %w", key, member, err)
	}
	return rank, true, nil
}

// Card returns the number of members in key (ZCARD).
func (s *Store) Card(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard %s: %w", key, err)
	}
	return n, nil
}

// WeightedUnionStore computes dest = weights[0]*src[0] + weights[1]*src[1] + ...
// via ZUNIONSTORE, used by the carry-over task to fold yesterday's scores
// into today's key in one atomic server-side operation rather than looping
// ZINCRBY per member (spec §4 Components lists "weighted ZUNIONSTORE" as a
// primitive; spec §4.7 describes the per-member loop as one valid way to
// reach the same result — see DESIGN.md).
func (s *Store) WeightedUnionStore(ctx context.Context, dest string, srcs []string, weights []float64) error {
	if len(srcs) != len(weights) {
		return fmt.Errorf("weighted union store: %d srcs != %d weights", len(srcs), len(weights))
	}
	store := &redis.ZStore{
		Keys:    srcs,
		Weights: weights,
	}
	if err := s.rdb.ZUnionStore(ctx, dest, store).Err(); err != nil {
		return fmt.Errorf("zunionstore %s: %w", dest, err)
	}
	return nil
}
