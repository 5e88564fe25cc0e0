// Package ranking holds the small pieces every ranking subpackage (scorer,
// carryover, snapshot, query) shares: the Redis key format spec §6 defines
// and the date conventions the pipeline uses (always UTC calendar days).
package ranking

import "time"

const keyPrefix = "ranking:all:"

// Key formats the sorted-set key for a given UTC calendar date, per spec §6:
// "ranking:all:YYYYMMDD".
func Key(date time.Time) string {
	return keyPrefix + date.UTC().Format("20060102")
}

// Today returns the current UTC calendar date truncated to midnight, the
// basis every component uses for "today's" ranking key.
func Today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
