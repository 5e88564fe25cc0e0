package postgres

import (
	"errors"

	"github.com/lib/pq"
)

// isUniqueViolation checks the typed Postgres error code rather than
// string-matching the error text.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
