package db

import (
	"errors"

	"github.com/lib/pq"
)

const (
	DuplicateEntry pq.ErrorCode = "23505"
	CheckViolation pq.ErrorCode = "23514"
	EntryTooLong   pq.ErrorCode = "22001"
	SerialFailure  pq.ErrorCode = "40001"
)

// IsSerializationFailure reports whether err is Postgres aborting the
// loser of two serializable transactions (SQLSTATE 40001). The loser's
// blocked statement fails with this code instead of returning zero
// rows, so callers must treat it as losing the race, not as a fault.
func IsSerializationFailure(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == SerialFailure
}

// IsUniqueViolation reports whether err is a unique-constraint breach,
// e.g. inserting a transaction reference that already exists.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == DuplicateEntry
}
