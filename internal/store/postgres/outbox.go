package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/loopers/commerce-core/internal/domain"
	"github.com/loopers/commerce-core/internal/store"
)

type OutboxRepository struct {
	db *sql.DB
}

func NewOutboxRepository(db *sql.DB) *OutboxRepository { return &OutboxRepository{db: db} }

// NextVersion computes max(prior version)+1 for (aggregateId, aggregateType)
// within the caller's transaction, so the saga can stamp its OutboxEvent
// before inserting it (spec §4.1 step 7 / §8 invariant 3: monotonic,
// gapless per-aggregate version).
func (r *OutboxRepository) NextVersion(ctx context.Context, tx store.Tx, aggregateID int64, aggregateType string) (int64, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT coalesce(max(version), 0) + 1
		FROM outbox_events
		WHERE aggregate_id = $1 AND aggregate_type = $2`, aggregateID, aggregateType)

	var next int64
	if err := row.Scan(&next); err != nil {
		return 0, fmt.Errorf("compute next outbox version: %w", err)
	}
	return next, nil
}

// Append inserts ev; a unique-constraint conflict on
// (aggregate_id, aggregate_type, version) is swallowed and treated as
// success, since it means a saga retry is re-producing an event it already
// emitted (spec §4.2).
func (r *OutboxRepository) Append(ctx context.Context, tx store.Tx, ev *domain.OutboxEvent) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO outbox_events
			(event_id, event_type, aggregate_id, aggregate_type, version, topic, partition_key, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())`,
		ev.EventID, ev.EventType, ev.AggregateID, ev.AggregateType, ev.Version, ev.Topic, ev.PartitionKey, ev.Payload, domain.OutboxPending)
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("append outbox event: %w", err)
	}
	return nil
}

// ClaimPending selects up to limit PENDING rows ordered by createdAt
// ascending, locking them with FOR UPDATE SKIP LOCKED so a second relay
// replica (if ever run against spec §9's open question) doesn't double
// claim, and returns a commit func the caller invokes once publishing has
// been attempted for every row.
func (r *OutboxRepository) ClaimPending(ctx context.Context, limit int) ([]*domain.OutboxEvent, func(), error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin claim tx: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, event_id, event_type, aggregate_id, aggregate_type, version, topic, partition_key, payload, status, created_at, published_at
		FROM outbox_events
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, domain.OutboxPending, limit)
	if err != nil {
		_ = tx.Rollback()
		return nil, nil, fmt.Errorf("claim pending outbox events: %w", err)
	}

	var out []*domain.OutboxEvent
	for rows.Next() {
		var ev domain.OutboxEvent
		if err := rows.Scan(&ev.ID, &ev.EventID, &ev.EventType, &ev.AggregateID, &ev.AggregateType, &ev.Version, &ev.Topic, &ev.PartitionKey, &ev.Payload, &ev.Status, &ev.CreatedAt, &ev.PublishedAt); err != nil {
			rows.Close()
			_ = tx.Rollback()
			return nil, nil, fmt.Errorf("scan outbox event: %w", err)
		}
		out = append(out, &ev)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		_ = tx.Rollback()
		return nil, nil, err
	}
	rows.Close()

	commit := func() { _ = tx.Commit() }
	return out, commit, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_events SET status = $1, published_at = now() WHERE id = ANY($2)`,
		domain.OutboxPublished, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_events SET status = $1 WHERE id = ANY($2)`,
		domain.OutboxFailed, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}
