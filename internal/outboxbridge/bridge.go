// Package outboxbridge is the single bridging subscriber the design notes
// call for: domain code emits only to the in-process bus; this is the one
// BEFORE_COMMIT handler that turns a raised domain event into a durable
// OutboxEvent row, in the same transaction as the domain mutation (spec §9:
// "do not replicate the duplication" between an ApplicationEvent-based and
// an Outbox-based publisher — there is exactly one path to the outbox).
package outboxbridge

import (
	"context"
	"fmt"

	"github.com/loopers/commerce-core/internal/domain"
	"github.com/loopers/commerce-core/internal/eventbus"
	"github.com/loopers/commerce-core/internal/store"
	uuidpkg "github.com/loopers/commerce-core/pkg/uuid"
)

// Draft is what domain code raises on the bus; the bridge fills in
// EventID and Version and persists it.
type Draft struct {
	Tx            store.Tx
	EventType     string
	AggregateID   int64
	AggregateType string
	Topic         string
	PartitionKey  string
	Payload       []byte
}

const EventTypeDraft = "outbox.draft"

// Register subscribes the bridge handler on bus for every outbox-bound
// domain event type.
func Register(bus *eventbus.Bus, outbox store.OutboxStore) {
	bus.Subscribe(eventbus.BeforeCommit, EventTypeDraft, func(ctx context.Context, ev eventbus.Event) error {
		draft, ok := ev.Data.(Draft)
		if !ok {
			return fmt.Errorf("outboxbridge: unexpected event data type %T", ev.Data)
		}
		version, err := outbox.NextVersion(ctx, draft.Tx, draft.AggregateID, draft.AggregateType)
		if err != nil {
			return err
		}
		row := &domain.OutboxEvent{
			EventID:       uuidpkg.New(),
			EventType:     draft.EventType,
			AggregateID:   draft.AggregateID,
			AggregateType: draft.AggregateType,
			Version:       version,
			Topic:         draft.Topic,
			PartitionKey:  draft.PartitionKey,
			Payload:       draft.Payload,
			Status:        domain.OutboxPending,
		}
		return outbox.Append(ctx, draft.Tx, row)
	})
}

// Raise is a convenience for domain code to enqueue a Draft on the
// transaction-scoped collector.
func Raise(c *eventbus.Collector, d Draft) {
	c.Raise(eventbus.Event{Type: EventTypeDraft, Data: d})
}
