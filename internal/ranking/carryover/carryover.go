// Package carryover implements RankingCarryOver: the daily task that folds
// a fraction of yesterday's ranking into today's to mitigate cold-start
// (spec §4.7).
package carryover

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/loopers/commerce-core/internal/ranking"
	"github.com/loopers/commerce-core/internal/ranking/zsetstore"
)

// Task runs at 00:00 UTC: Start sleeps until the next UTC midnight before
// each Run, and Run takes "today" as the UTC date at the time of the call.
type Task struct {
	zset   *zsetstore.Store
	weight float64
	ttl    time.Duration
	log    zerolog.Logger
}

func New(zset *zsetstore.Store, weight float64, ttl time.Duration, log zerolog.Logger) *Task {
	return &Task{zset: zset, weight: weight, ttl: ttl, log: log}
}

// Run performs one carry-over: ZUNIONSTORE today = today + weight*yesterday,
// then ensures today's TTL. Failure is logged and skipped; the next day's
// cycle is independent (spec §4.7). Running this twice for the same date
// double-applies the bias — callers must not retry on the same date (spec
// §4.7's own caveat).
func (t *Task) Run(ctx context.Context) {
	today := ranking.Today()
	yesterday := today.AddDate(0, 0, -1)

	todayKey := ranking.Key(today)
	yesterdayKey := ranking.Key(yesterday)

	if err := t.zset.WeightedUnionStore(ctx, todayKey, []string{todayKey, yesterdayKey}, []float64{1, t.weight}); err != nil {
		t.log.Error().Err(err).Str("today", todayKey).Str("yesterday", yesterdayKey).Msg("ranking carry-over failed")
		return
	}
	if err := t.zset.ExpireNX(ctx, todayKey, t.ttl); err != nil {
		t.log.Error().Err(err).Str("key", todayKey).Msg("ranking carry-over ttl set failed")
	}
}

// Start runs Run once a day, sleeping until the next UTC midnight first.
func (t *Task) Start(ctx context.Context) {
	for {
		wait := time.Until(nextMidnightUTC())
		select {
		case <-time.After(wait):
			t.Run(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func nextMidnightUTC() time.Time {
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.AddDate(0, 0, 1)
}
