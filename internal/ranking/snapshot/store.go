// Package snapshot implements RankingSnapshotStore and its periodic writer
// (spec §4.8): a persisted copy of the top-K ranking used as a fallback
// when live Redis is unreachable.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Item is one ranked entry as persisted in a snapshot.
type Item struct {
	Rank      int     `json:"rank"`
	ProductID int64   `json:"productId"`
	Score     float64 `json:"score"`
}

// Snapshot is the top-K ranking for a single UTC calendar date.
type Snapshot struct {
	Date      string
	Items     []Item
	TotalSize int64
	CreatedAt time.Time
}

// Store persists one Snapshot per date; a newer write replaces the older
// one for the same date (spec §3).
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Put upserts snap, replacing any prior snapshot for the same date.
func (s *Store) Put(ctx context.Context, snap Snapshot) error {
	payload, err := json.Marshal(snap.Items)
	if err != nil {
		return fmt.Errorf("marshal snapshot items: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ranking_snapshots (date, payload, total_size, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (date) DO UPDATE
			SET payload = EXCLUDED.payload, total_size = EXCLUDED.total_size, created_at = now()`,
		snap.Date, payload, snap.TotalSize)
	if err != nil {
		return fmt.Errorf("put ranking snapshot: %w", err)
	}
	return nil
}

// Get loads the snapshot for date, or (nil, nil) if none exists.
func (s *Store) Get(ctx context.Context, date string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT date, payload, total_size, created_at FROM ranking_snapshots WHERE date = $1`, date)

	var snap Snapshot
	var payload []byte
	if err := row.Scan(&snap.Date, &payload, &snap.TotalSize, &snap.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get ranking snapshot: %w", err)
	}
	if err := json.Unmarshal(payload, &snap.Items); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot items: %w", err)
	}
	return &snap, nil
}
