package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// IdempotencyRepository is the consumer-side dedup primitive (spec §3
// EventHandled). Its one caller, the ranking scorer, claims an event id
// here before buffering that event's score delta, so a crash between the
// claim and the next flush loses the delta instead of replaying it.
type IdempotencyRepository struct {
	db *sql.DB
}

func NewIdempotencyRepository(db *sql.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

// MarkProcessed atomically claims eventID. A single INSERT ... ON CONFLICT
// DO NOTHING avoids the check-then-act race an IsProcessed+Mark pair would
// have under concurrent delivery of the same message.
func (r *IdempotencyRepository) MarkProcessed(ctx context.Context, eventID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO event_handled (event_id, processed_at)
		VALUES ($1, now())
		ON CONFLICT (event_id) DO NOTHING`, eventID)
	if err != nil {
		return false, fmt.Errorf("mark event processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark event processed rows affected: %w", err)
	}
	return n == 1, nil
}
