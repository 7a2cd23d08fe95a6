package postgres

import (
	"errors"
	"time"

	"github.com/lib/pq"

	"yamo-chat/internal/observability"
)

const pqUniqueViolation = "23505"

// IsUniqueViolation checks if an error is a PostgreSQL unique constraint violation
// If constraint is empty, it returns true for any unique violation
// If constraint is specified, it only returns true for that specific constraint
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}

	if string(pqErr.Code) != pqUniqueViolation {
		return false
	}

	if constraint == "" {
		return true
	}

	return pqErr.Constraint == constraint
}

// observe times a query for the db_query_duration_seconds histogram.
// Use as: defer observe("create", "messages")()
func observe(operation, table string) func() {
	start := time.Now()
	return func() {
		observability.DBQueryDuration.WithLabelValues(operation, table).
			Observe(time.Since(start).Seconds())
	}
}
