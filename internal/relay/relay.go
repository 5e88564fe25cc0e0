// Package relay implements the outbox Relay: polls OutboxStore, forwards
// to the StreamingBus, marks status. Grounded on the teacher's
// OutboxPublisher ticker/poll/publish/mark pattern, generalized to the
// configurable batch size/poll interval and to mark FAILED (not just
// PUBLISHED) on a publish error (spec §4.2).
package relay

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/loopers/commerce-core/internal/domain"
	"github.com/loopers/commerce-core/internal/streambus"
)

type Relay struct {
	store        OutboxStore
	bus          *streambus.Bus
	batchSize    int
	pollInterval time.Duration
	log          zerolog.Logger
}

// OutboxStore is the narrow subset of store.OutboxStore the relay needs.
type OutboxStore interface {
	ClaimPending(ctx context.Context, limit int) ([]*domain.OutboxEvent, func(), error)
	MarkPublished(ctx context.Context, ids []int64) error
	MarkFailed(ctx context.Context, ids []int64) error
}

func New(store OutboxStore, bus *streambus.Bus, batchSize int, pollInterval time.Duration, log zerolog.Logger) *Relay {
	return &Relay{store: store, bus: bus, batchSize: batchSize, pollInterval: pollInterval, log: log}
}

func (r *Relay) Start(ctx context.Context) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.tick(ctx); err != nil {
				r.log.Error().Err(err).Msg("relay tick failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

func (r *Relay) tick(ctx context.Context) error {
	events, commit, err := r.store.ClaimPending(ctx, r.batchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		commit()
		return nil
	}

	var published, failed []int64
	for _, ev := range events {
		envelope := domain.Envelope{
			EventID:       ev.EventID,
			EventType:     ev.EventType,
			AggregateID:   ev.AggregateID,
			AggregateType: ev.AggregateType,
			Version:       ev.Version,
			OccurredAt:    ev.CreatedAt,
			Payload:       ev.Payload,
		}
		body, err := marshalEnvelope(envelope)
		if err != nil {
			r.log.Error().Err(err).Str("event_id", ev.EventID).Msg("failed to marshal envelope")
			failed = append(failed, ev.ID)
			continue
		}
		if err := r.bus.Publish(ctx, ev.Topic, ev.PartitionKey, body); err != nil {
			r.log.Error().Err(err).Str("event_id", ev.EventID).Msg("failed to publish outbox event")
			failed = append(failed, ev.ID)
			continue
		}
		published = append(published, ev.ID)
	}

	// Release the row locks taken by ClaimPending before updating status,
	// since MarkPublished/MarkFailed run in their own statements.
	commit()

	if err := r.store.MarkPublished(ctx, published); err != nil {
		return err
	}
	if err := r.store.MarkFailed(ctx, failed); err != nil {
		return err
	}
	if n := len(published); n > 0 {
		r.log.Info().Int("count", n).Msg("published outbox events")
	}
	return nil
}
